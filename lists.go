// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lispcore

// PairStore is a Pairs that can also allocate and mutate nodes. Arena
// implements it.
type PairStore interface {
	Pairs
	Cons(first, second Value) Value
	SetFirst(v, first Value)
	SetSecond(v, second Value)
}

// equalMaxDepth bounds the recursion of PairsEqual.
const equalMaxDepth = 200

// Length returns the number of nodes in list. It fails if list is circular
// or does not end in Nil.
func Length(p Pairs, list Value) (int, error) {
	w := Tails(p, list, EndOn, CycleOn)
	var n int
	for _, ok := w.Next(); ok; _, ok = w.Next() {
		n++
	}
	return n, w.Err()
}

// SafeLength returns the number of nodes in list without failing. If list is
// circular the result is finite and at least the number of distinct nodes.
func SafeLength(p Pairs, list Value) int {
	w := Tails(p, list, EndOff, CycleSafe)
	var n int
	for _, ok := w.Next(); ok; _, ok = w.Next() {
		n++
	}
	return n
}

// Nthcdr follows n links from list and returns what it finds, which may be a
// non-pair if the chain is shorter than n or ends in one. A circular chain
// is followed modulo its cycle length.
func Nthcdr(p Pairs, n int, list Value) (Value, error) {
	if n <= 0 {
		return list, nil
	}

	// Count down by hand rather than draining the walker: it must stop
	// exactly n links in so Rest is the answer even when that is a non-pair.
	w := Tails(p, list, EndOn, CycleSafe)
	for w.Steps() < n {
		if _, ok := w.Next(); !ok {
			break
		}
	}
	if err := w.Err(); err != nil {
		return Nil, err
	}
	tail := w.Rest()
	if !w.CycleSuppressed() {
		return tail, nil
	}

	// The walker stopped on a node inside the cycle. Measure the cycle and
	// take the remaining steps modulo its length.
	cycle := 1
	for x := second(p, tail); x != tail; x = second(p, x) {
		cycle++
	}
	for r := (n - w.Steps()) % cycle; r > 0; r-- {
		tail = second(p, tail)
	}
	return tail, nil
}

// Nth returns the first field of the node n links into list, or Nil if the
// list is shorter than that.
func Nth(p Pairs, n int, list Value) (Value, error) {
	tail, err := Nthcdr(p, n, list)
	if err != nil {
		return Nil, err
	}
	first, _, ok := p.Pair(tail)
	if !ok {
		if tail != Nil {
			return Nil, &WrongTypeError{Predicate: PredListp, Value: tail}
		}
		return Nil, nil
	}
	return first, nil
}

// Memq returns the first node of list whose first field is elt, or Nil.
func Memq(p Pairs, elt, list Value) (Value, error) {
	return Member(p, func(a, b Value) bool { return a == b }, elt, list)
}

// Member returns the first node of list whose first field equals elt
// according to equal, or Nil.
func Member(p Pairs, equal func(a, b Value) bool, elt, list Value) (Value, error) {
	w := Tails(p, list, EndOn, CycleOn)
	for cell, ok := w.Next(); ok; cell, ok = w.Next() {
		if equal(elt, first(p, cell)) {
			return cell, nil
		}
	}
	return Nil, w.Err()
}

// Assq returns the first element of the association list list whose first
// field is key, or Nil. Elements that are not pairs are ignored.
func Assq(p Pairs, key, list Value) (Value, error) {
	return Assoc(p, func(a, b Value) bool { return a == b }, key, list)
}

// Assoc is like Assq but compares keys with equal.
func Assoc(p Pairs, equal func(a, b Value) bool, key, list Value) (Value, error) {
	w := Tails(p, list, EndOn, CycleOn)
	for elt, ok := w.NextCar(); ok; elt, ok = w.NextCar() {
		if k, _, isPair := p.Pair(elt); isPair && equal(key, k) {
			return elt, nil
		}
	}
	return Nil, w.Err()
}

// Rassq returns the first element of list whose second field is key, or Nil.
func Rassq(p Pairs, key, list Value) (Value, error) {
	w := Tails(p, list, EndOn, CycleOn)
	for elt, ok := w.NextCar(); ok; elt, ok = w.NextCar() {
		if _, v, isPair := p.Pair(elt); isPair && v == key {
			return elt, nil
		}
	}
	return Nil, w.Err()
}

// Delq removes every node of list whose first field is elt by splicing the
// chain, and returns the resulting list, which differs from list if the
// leading nodes were removed.
func Delq(s PairStore, elt, list Value) (Value, error) {
	result := list
	prev := Nil
	w := Tails(s, list, EndOn, CycleOn)
	for cell, ok := w.Next(); ok; cell, ok = w.Next() {
		item, rest, _ := s.Pair(cell)
		if item != elt {
			prev = cell
			continue
		}
		if prev == Nil {
			result = rest
		} else {
			s.SetSecond(prev, rest)
		}
	}
	if err := w.Err(); err != nil {
		return Nil, err
	}
	return result, nil
}

// PlistGet returns the value following prop in the property list plist, or
// Nil. It never fails: malformed and circular lists are read as far as they
// make sense.
func PlistGet(p Pairs, plist, prop Value) Value {
	v, _ := plistGet(p, func(a, b Value) bool { return a == b }, plist, prop, EndOff, CycleSafe)
	return v
}

// LaxPlistGet is like PlistGet but compares properties with equal and fails
// on malformed or circular lists.
func LaxPlistGet(p Pairs, equal func(a, b Value) bool, plist, prop Value) (Value, error) {
	return plistGet(p, equal, plist, prop, EndOn, CycleOn)
}

func plistGet(
	p Pairs,
	equal func(a, b Value) bool,
	plist, prop Value,
	end EndPolicy,
	cycle CyclePolicy,
) (Value, error) {
	w := PlistTails(p, plist, end, cycle)
	for cell, ok := w.Next(); ok; cell, ok = w.Next() {
		key, rest, _ := p.Pair(cell)
		val, _, isPair := p.Pair(rest)
		if !isPair {
			// Odd-length list.
			if end == EndOn {
				return Nil, &WrongTypeError{Predicate: PredPlistp, Value: plist}
			}
			break
		}
		if equal(key, prop) {
			return val, nil
		}
	}
	return Nil, w.Err()
}

// PlistMember returns the node of plist holding the property prop, or Nil.
// This distinguishes a missing property from one whose value is Nil.
func PlistMember(p Pairs, plist, prop Value) (Value, error) {
	w := PlistTails(p, plist, EndOn, CycleOn)
	for cell, ok := w.Next(); ok; cell, ok = w.Next() {
		if first(p, cell) == prop {
			return cell, nil
		}
	}
	return Nil, w.Err()
}

// PlistPut sets the value of prop in plist to val, comparing properties with
// equal, and returns the resulting list. If prop is absent a new property is
// appended. plist is modified in place.
func PlistPut(s PairStore, equal func(a, b Value) bool, plist, prop, val Value) (Value, error) {
	last := Nil
	w := PlistTails(s, plist, EndOn, CycleOn)
	for cell, ok := w.Next(); ok; cell, ok = w.Next() {
		key, rest, _ := s.Pair(cell)
		if !isPair(s, rest) {
			return Nil, &WrongTypeError{Predicate: PredPlistp, Value: plist}
		}
		if equal(key, prop) {
			s.SetFirst(rest, val)
			return plist, nil
		}
		last = cell
	}
	if err := w.Err(); err != nil {
		return Nil, err
	}
	if last == Nil {
		return s.Cons(prop, s.Cons(val, Nil)), nil
	}
	valCell := second(s, last)
	s.SetSecond(valCell, s.Cons(prop, s.Cons(val, second(s, valCell))))
	return plist, nil
}

// SortList sorts list in place by less and returns the new head. The sort is
// stable.
func SortList(s PairStore, less func(a, b Value) bool, list Value) (Value, error) {
	n := SafeLength(s, list)
	if n < 2 {
		return list, nil
	}
	item, err := Nthcdr(s, n/2-1, list)
	if err != nil {
		return Nil, err
	}
	back := second(s, item)
	s.SetSecond(item, Nil)

	front, err := SortList(s, less, list)
	if err != nil {
		return Nil, err
	}
	back, err = SortList(s, less, back)
	if err != nil {
		return Nil, err
	}
	return Merge(s, less, front, back), nil
}

// Merge merges the sorted lists l1 and l2 in place. When elements are equal
// those of l1 come first.
func Merge(s PairStore, less func(a, b Value) bool, l1, l2 Value) Value {
	tail := Nil
	result := Nil
	for {
		if l1 == Nil || l2 == Nil {
			rest := l1
			if l1 == Nil {
				rest = l2
			}
			if tail == Nil {
				return rest
			}
			s.SetSecond(tail, rest)
			return result
		}

		var item Value
		if !less(first(s, l2), first(s, l1)) {
			item, l1 = l1, second(s, l1)
		} else {
			item, l2 = l2, second(s, l2)
		}
		if tail == Nil {
			result = item
		} else {
			s.SetSecond(tail, item)
		}
		tail = item
	}
}

// PairsEqual compares a and b structurally: pairs are equal if their first
// fields are equal and their second fields are equal, and non-pairs are
// compared with atom. It fails with a *CircularListError on circular chains
// and ErrTooDeep on structure nested deeper than equalMaxDepth.
func PairsEqual(p Pairs, atom func(a, b Value) bool, a, b Value) (bool, error) {
	return pairsEqual(p, atom, a, b, 0)
}

func pairsEqual(p Pairs, atom func(a, b Value) bool, a, b Value, depth int) (bool, error) {
	if depth > equalMaxDepth {
		return false, ErrTooDeep
	}
	if a == b {
		return true, nil
	}
	aPair, bPair := isPair(p, a), isPair(p, b)
	if !aPair || !bPair {
		return !aPair && !bPair && atom(a, b), nil
	}

	wa := Tails(p, a, EndOff, CycleOn)
	wb := Tails(p, b, EndOff, CycleOn)
	for {
		ca, oka := wa.Next()
		cb, okb := wb.Next()
		if !oka || !okb {
			if err := wa.Err(); err != nil {
				return false, err
			}
			if err := wb.Err(); err != nil {
				return false, err
			}
			if oka != okb {
				return false, nil
			}
			break
		}
		fa, ta, _ := p.Pair(ca)
		fb, tb, _ := p.Pair(cb)
		if eq, err := pairsEqual(p, atom, fa, fb, depth+1); err != nil || !eq {
			return false, err
		}
		if ta == tb {
			return true, nil
		}
	}
	return pairsEqual(p, atom, wa.Rest(), wb.Rest(), depth+1)
}

func isPair(p Pairs, v Value) bool {
	_, _, ok := p.Pair(v)
	return ok
}

func first(p Pairs, v Value) Value {
	f, _, _ := p.Pair(v)
	return f
}

func second(p Pairs, v Value) Value {
	_, s, _ := p.Pair(v)
	return s
}
