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

import (
	"hash/maphash"
	"math/bits"

	"golang.org/x/text/cases"
)

// Strategy defines a table's notion of key identity. If Hash(a) != Hash(b)
// then Equal(a, b) must be false; the table does not verify this.
//
// Equal and Hash may call back into the table that invoked them.
type Strategy struct {
	Name  string
	Equal func(a, b Value) bool
	Hash  func(v Value) uintptr
}

// Eq returns the identity strategy: two keys are equal iff they are the same
// handle.
func Eq() Strategy {
	return Strategy{
		Name:  "eq",
		Equal: func(a, b Value) bool { return a == b },
		Hash:  mix,
	}
}

const (
	// sxhashMaxDepth bounds how deep into nested chains hashing looks.
	sxhashMaxDepth = 3
	// sxhashMaxLen bounds how many nodes of one chain hashing looks at.
	sxhashMaxLen = 7
)

// EqualStrategy returns a structural strategy over the pair chains of pairs.
// Two pairs are equal if their first fields are equal and their second
// fields are equal, recursively; non-pairs are compared with atom, or by
// identity if atom is the zero Strategy. Circular or overly deep keys compare
// equal only to themselves.
//
// Hashing looks at most sxhashMaxDepth levels deep and sxhashMaxLen nodes
// along each chain, so it terminates on circular structure.
func EqualStrategy(pairs Pairs, atom Strategy) Strategy {
	if atom.Equal == nil || atom.Hash == nil {
		atom = Eq()
	}
	return Strategy{
		Name: "equal",
		Equal: func(a, b Value) bool {
			eq, err := PairsEqual(pairs, atom.Equal, a, b)
			return err == nil && eq
		},
		Hash: func(v Value) uintptr {
			return sxhash(pairs, atom.Hash, v, 0)
		},
	}
}

func sxhash(pairs Pairs, atom func(Value) uintptr, v Value, depth int) uintptr {
	if depth > sxhashMaxDepth {
		return 0
	}
	if _, _, ok := pairs.Pair(v); !ok {
		return atom(v)
	}
	var h uintptr
	w := Tails(pairs, v, EndOff, CycleOff)
	for i := 0; i < sxhashMaxLen; i++ {
		first, ok := w.NextCar()
		if !ok {
			break
		}
		h = combine(h, sxhash(pairs, atom, first, depth+1))
	}
	if rest := w.Rest(); rest != Nil {
		h = combine(h, sxhash(pairs, atom, rest, depth+1))
	}
	return h
}

// FoldStrategy returns a strategy comparing text keys without regard to
// case. resolve maps a handle to its text; handles without text are compared
// by identity.
func FoldStrategy(name string, resolve func(v Value) (string, bool)) Strategy {
	fold := cases.Fold()
	seed := maphash.MakeSeed()
	return Strategy{
		Name: name,
		Equal: func(a, b Value) bool {
			sa, oka := resolve(a)
			sb, okb := resolve(b)
			if !oka || !okb {
				return a == b
			}
			return fold.String(sa) == fold.String(sb)
		},
		Hash: func(v Value) uintptr {
			s, ok := resolve(v)
			if !ok {
				return mix(v)
			}
			return uintptr(maphash.String(seed, fold.String(s)))
		},
	}
}

// mix is the 64-bit finalizer from MurmurHash3.
func mix(v Value) uintptr {
	x := uint64(v)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return uintptr(x)
}

func combine(x, y uintptr) uintptr {
	return uintptr(bits.RotateLeft64(uint64(x), 4)) + y
}
