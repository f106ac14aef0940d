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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// circular builds a chain of lead acyclic nodes followed by a cycle of cycle
// nodes. The nodes hold 1, 2, 3... in order.
func circular(a *Arena, lead, cycle int) Value {
	vals := make([]Value, lead+cycle)
	for i := range vals {
		vals[i] = Value(i + 1)
	}
	head := a.List(vals...)
	if cycle == 0 {
		return head
	}
	entry := head
	for i := 0; i < lead; i++ {
		entry = a.Second(entry)
	}
	last := entry
	for i := 1; i < cycle; i++ {
		last = a.Second(last)
	}
	a.SetSecond(last, entry)
	return head
}

func cars(w *Walker) []Value {
	var r []Value
	for v, ok := w.NextCar(); ok; v, ok = w.NextCar() {
		r = append(r, v)
	}
	return r
}

var allPolicies = []struct {
	end   EndPolicy
	cycle CyclePolicy
}{
	{EndOff, CycleOff},
	{EndOff, CycleSafe},
	{EndOff, CycleOn},
	{EndOn, CycleOff},
	{EndOn, CycleSafe},
	{EndOn, CycleOn},
}

func TestTailsAcyclic(t *testing.T) {
	a := NewArena(0)
	for n := 0; n <= 40; n++ {
		list := circular(a, n, 0)
		var expected []Value
		for cell := list; cell != Nil; cell = a.Second(cell) {
			expected = append(expected, cell)
		}

		for _, p := range allPolicies {
			t.Run(fmt.Sprintf("n=%d/end=%s/cycle=%s", n, p.end, p.cycle), func(t *testing.T) {
				w := Tails(a, list, p.end, p.cycle)
				var cells []Value
				for cell := range w.All {
					cells = append(cells, cell)
				}
				require.Equal(t, expected, cells)
				require.Equal(t, ExhaustedClean, w.State())
				require.NoError(t, w.Err())
				require.False(t, w.CycleSuppressed())
				require.Equal(t, n, w.Steps())
				require.Equal(t, Nil, w.Rest())

				_, ok := w.Next()
				require.False(t, ok)
				require.Equal(t, ExhaustedClean, w.State())
			})
		}
	}
}

func TestTailsThreeCycle(t *testing.T) {
	a := NewArena(0)
	head := circular(a, 0, 3)

	t.Run("on", func(t *testing.T) {
		w := Tails(a, head, EndOn, CycleOn)
		require.Equal(t, []Value{1, 2, 3, 1, 2}, cars(w))
		require.Equal(t, CycleDetected, w.State())
		require.False(t, w.CycleSuppressed())
		require.ErrorIs(t, w.Err(), ErrCircularList)
		var cerr *CircularListError
		require.True(t, errors.As(w.Err(), &cerr))
		require.Equal(t, head, cerr.Value)

		_, ok := w.Next()
		require.False(t, ok)
	})

	t.Run("safe", func(t *testing.T) {
		w := Tails(a, head, EndOn, CycleSafe)
		require.Equal(t, []Value{1, 2, 3, 1, 2}, cars(w))
		require.Equal(t, CycleDetected, w.State())
		require.True(t, w.CycleSuppressed())
		require.NoError(t, w.Err())
		require.Equal(t, 5, SafeLength(a, head))
	})

	t.Run("off", func(t *testing.T) {
		w := Tails(a, head, EndOn, CycleOff)
		for i := 0; i < 100; i++ {
			v, ok := w.NextCar()
			require.True(t, ok)
			require.EqualValues(t, i%3+1, v)
		}
		require.Equal(t, Running, w.State())
	})
}

// TestTailsTwoCycle pins the comparison schedule. The second link lands back
// on the tortoise, but that step moves the tortoise and does not compare, so
// the cycle is only found two links later.
func TestTailsTwoCycle(t *testing.T) {
	a := NewArena(0)
	head := circular(a, 0, 2)

	w := Tails(a, head, EndOn, CycleOn)
	require.Equal(t, []Value{1, 2, 1, 2}, cars(w))
	require.Equal(t, 4, w.Steps())
	require.Equal(t, head, w.Rest())
	require.ErrorIs(t, w.Err(), ErrCircularList)
}

func TestTailsSelfLoop(t *testing.T) {
	a := NewArena(0)
	cell := a.Cons(7, Nil)
	a.SetSecond(cell, cell)

	w := Tails(a, cell, EndOn, CycleSafe)
	require.Equal(t, []Value{7}, cars(w))
	require.True(t, w.CycleSuppressed())
	require.Equal(t, 1, SafeLength(a, cell))

	_, err := Length(a, cell)
	require.ErrorIs(t, err, ErrCircularList)
}

func TestTailsCycleBound(t *testing.T) {
	a := NewArena(0)
	for lead := 0; lead <= 40; lead++ {
		for cycle := 1; cycle <= 40; cycle++ {
			head := circular(a, lead, cycle)
			for _, policy := range []CyclePolicy{CycleSafe, CycleOn} {
				w := Tails(a, head, EndOn, policy)
				seen := make(map[Value]int)
				var n int
				for cell := range w.All {
					seen[cell]++
					n++
				}
				require.Equal(t, CycleDetected, w.State(), "lead=%d cycle=%d", lead, cycle)
				require.LessOrEqual(t, n, 4*(lead+cycle)+2, "lead=%d cycle=%d", lead, cycle)
				// Every node is reached before the cycle is reported.
				require.Len(t, seen, lead+cycle, "lead=%d cycle=%d", lead, cycle)
			}
		}
	}
}

func TestTailsMalformed(t *testing.T) {
	a := NewArena(0)
	list := a.Cons(1, a.Cons(2, 99))

	t.Run("end-on", func(t *testing.T) {
		w := Tails(a, list, EndOn, CycleOn)
		require.Equal(t, []Value{1, 2}, cars(w))
		require.Equal(t, ExhaustedMalformed, w.State())
		require.EqualValues(t, 99, w.Rest())
		require.ErrorIs(t, w.Err(), ErrWrongType)
		var werr *WrongTypeError
		require.True(t, errors.As(w.Err(), &werr))
		require.Equal(t, PredListp, werr.Predicate)
		require.Equal(t, list, werr.Value)
	})

	t.Run("end-off", func(t *testing.T) {
		w := Tails(a, list, EndOff, CycleOn)
		require.Equal(t, []Value{1, 2}, cars(w))
		require.Equal(t, ExhaustedClean, w.State())
		require.NoError(t, w.Err())
		require.EqualValues(t, 99, w.Rest())
	})

	t.Run("atom", func(t *testing.T) {
		w := Tails(a, 5, EndOn, CycleOn)
		_, ok := w.Next()
		require.False(t, ok)
		require.Equal(t, ExhaustedMalformed, w.State())
		require.Equal(t, 0, w.Steps())
	})

	t.Run("nil", func(t *testing.T) {
		w := Tails(a, Nil, EndOn, CycleOn)
		_, ok := w.Next()
		require.False(t, ok)
		require.Equal(t, ExhaustedClean, w.State())
	})
}

func TestTailsRest(t *testing.T) {
	a := NewArena(0)
	list := a.List(1, 2, 3)
	w := Tails(a, list, EndOn, CycleOn)
	require.Equal(t, list, w.Rest())
	for cell := range w.All {
		if a.First(cell) == 2 {
			break
		}
	}
	require.Equal(t, Running, w.State())
	require.EqualValues(t, 3, a.First(w.Rest()))
	require.Equal(t, []Value{3}, cars(w))
}

func TestTailsMutation(t *testing.T) {
	a := NewArena(0)
	list := a.List(1, 2, 3, 4, 5)
	node := func(i int) Value {
		v := list
		for ; i > 0; i-- {
			v = a.Second(v)
		}
		return v
	}

	w := Tails(a, list, EndOn, CycleOn)
	var got []Value
	for v, ok := w.NextCar(); ok; v, ok = w.NextCar() {
		got = append(got, v)
		switch v {
		case 1:
			// Splice 3 out ahead of the walker.
			a.SetSecond(node(1), node(3))
		case 4:
			// Extend the chain past the node the walker visits next.
			a.SetSecond(node(3), a.List(6, 7))
		}
	}
	require.Equal(t, []Value{1, 2, 4, 5, 6, 7}, got)
	require.NoError(t, w.Err())
}

func TestTailsNested(t *testing.T) {
	a := NewArena(0)
	list := a.List(1, 2, 3, 4)
	outer := Tails(a, list, EndOn, CycleOn)
	var pairs int
	for range outer.All {
		inner := Tails(a, list, EndOn, CycleOn)
		for range inner.All {
			pairs++
		}
		require.Equal(t, ExhaustedClean, inner.State())
	}
	require.Equal(t, 16, pairs)
}

func TestPlistTails(t *testing.T) {
	a := NewArena(0)
	plist := a.List(10, 1, 20, 2, 30, 3)

	w := PlistTails(a, plist, EndOn, CycleOn)
	var val Value
	for cell := range w.All {
		if a.First(cell) == 20 {
			val = a.First(a.Second(cell))
		}
	}
	require.EqualValues(t, 2, val)
	require.Equal(t, ExhaustedClean, w.State())
	require.Equal(t, 6, w.Steps())

	require.Equal(t, []Value{10, 20, 30}, cars(PlistTails(a, plist, EndOn, CycleOn)))

	t.Run("odd", func(t *testing.T) {
		odd := a.List(10, 1, 20)
		w := PlistTails(a, odd, EndOn, CycleOn)
		require.Equal(t, []Value{10, 20}, cars(w))
		require.Equal(t, ExhaustedClean, w.State())
	})

	t.Run("dotted", func(t *testing.T) {
		dotted := a.Cons(10, a.Cons(1, 99))
		w := PlistTails(a, dotted, EndOn, CycleOn)
		require.Equal(t, []Value{10}, cars(w))
		require.Equal(t, ExhaustedMalformed, w.State())
		var werr *WrongTypeError
		require.True(t, errors.As(w.Err(), &werr))
		require.Equal(t, PredPlistp, werr.Predicate)
	})

	t.Run("circular", func(t *testing.T) {
		for cycle := 1; cycle <= 12; cycle++ {
			head := circular(a, 0, cycle)
			w := PlistTails(a, head, EndOn, CycleOn)
			var n int
			for range w.All {
				n++
			}
			require.Equal(t, CycleDetected, w.State(), "cycle=%d", cycle)
			require.ErrorIs(t, w.Err(), ErrCircularList)
			require.LessOrEqual(t, n, 4*cycle+2)
		}
	})
}

func TestPolicyStrings(t *testing.T) {
	require.Equal(t, "off", CycleOff.String())
	require.Equal(t, "safe", CycleSafe.String())
	require.Equal(t, "on", CycleOn.String())
	require.Equal(t, "running", Running.String())
	require.Equal(t, "exhausted", ExhaustedClean.String())
	require.Equal(t, "malformed", ExhaustedMalformed.String())
	require.Equal(t, "cycle", CycleDetected.String())
}
