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

import "fmt"

// Value is an opaque handle to a datum owned by the host. The package never
// looks inside a Value except to ask a Pairs implementation whether it names
// a pair node. Values are compared by identity unless a Strategy says
// otherwise.
type Value uint64

// Nil is the chain terminator.
const Nil Value = 0

// pairTag marks handles minted by an Arena. Host values must leave it clear.
const pairTag Value = 1 << 63

// Pairs provides read access to pair nodes. Pair reports the two fields of v
// if v names a pair node, and ok=false otherwise.
type Pairs interface {
	Pair(v Value) (first, second Value, ok bool)
}

// Arena owns a set of mutable pair nodes addressed by index. Handles returned
// by Cons stay valid for the life of the Arena; nodes are never freed.
//
// An Arena is NOT goroutine-safe.
type Arena struct {
	first  []Value
	second []Value
}

// NewArena returns an empty arena with room for n nodes.
func NewArena(n int) *Arena {
	return &Arena{
		first:  make([]Value, 0, n),
		second: make([]Value, 0, n),
	}
}

// Cons allocates a new pair node.
func (a *Arena) Cons(first, second Value) Value {
	i := len(a.first)
	a.first = append(a.first, first)
	a.second = append(a.second, second)
	return pairTag | Value(i)
}

// List builds a chain of fresh nodes holding vals, terminated by Nil.
func (a *Arena) List(vals ...Value) Value {
	l := Nil
	for i := len(vals) - 1; i >= 0; i-- {
		l = a.Cons(vals[i], l)
	}
	return l
}

// Pair implements Pairs.
func (a *Arena) Pair(v Value) (first, second Value, ok bool) {
	i, ok := a.slot(v)
	if !ok {
		return Nil, Nil, false
	}
	return a.first[i], a.second[i], true
}

// IsPair returns true if v names a node of this arena.
func (a *Arena) IsPair(v Value) bool {
	_, ok := a.slot(v)
	return ok
}

// First returns the first field of v, or Nil if v is not a pair.
func (a *Arena) First(v Value) Value {
	if i, ok := a.slot(v); ok {
		return a.first[i]
	}
	return Nil
}

// Second returns the second field of v, or Nil if v is not a pair.
func (a *Arena) Second(v Value) Value {
	if i, ok := a.slot(v); ok {
		return a.second[i]
	}
	return Nil
}

// SetFirst overwrites the first field of the pair v.
func (a *Arena) SetFirst(v, first Value) {
	a.first[a.mustSlot(v)] = first
}

// SetSecond overwrites the second field of the pair v.
func (a *Arena) SetSecond(v, second Value) {
	a.second[a.mustSlot(v)] = second
}

// Len returns the number of nodes allocated.
func (a *Arena) Len() int {
	return len(a.first)
}

func (a *Arena) slot(v Value) (int, bool) {
	if v&pairTag == 0 {
		return 0, false
	}
	i := int(v &^ pairTag)
	if i >= len(a.first) {
		return 0, false
	}
	return i, true
}

func (a *Arena) mustSlot(v Value) int {
	i, ok := a.slot(v)
	if !ok {
		panic(fmt.Sprintf("lispcore: %#x is not a pair", uint64(v)))
	}
	return i
}
