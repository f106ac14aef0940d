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

// EndPolicy selects what a Walker does when a chain ends in something other
// than a pair or Nil.
type EndPolicy uint8

const (
	// EndOff ends the traversal quietly at any non-pair.
	EndOff EndPolicy = iota
	// EndOn reports a *WrongTypeError if the chain ends in a non-pair other
	// than Nil.
	EndOn
)

func (p EndPolicy) String() string {
	switch p {
	case EndOff:
		return "off"
	case EndOn:
		return "on"
	}
	return "unknown"
}

// CyclePolicy selects whether and how a Walker detects circular chains.
type CyclePolicy uint8

const (
	// CycleOff performs no checks. The caller accepts that a circular chain
	// is never exhausted.
	CycleOff CyclePolicy = iota
	// CycleSafe ends the traversal without error when a cycle is found.
	CycleSafe
	// CycleOn reports a *CircularListError when a cycle is found.
	CycleOn
)

func (p CyclePolicy) String() string {
	switch p {
	case CycleOff:
		return "off"
	case CycleSafe:
		return "safe"
	case CycleOn:
		return "on"
	}
	return "unknown"
}

// Stride is the number of links a Walker advances per yielded node. Property
// lists interleave keys and values and are walked with StrideTwo.
type Stride uint8

const (
	StrideOne Stride = 1
	StrideTwo Stride = 2
)

// State is the lifecycle state of a Walker.
type State uint8

const (
	Running State = iota
	// ExhaustedClean means the chain ended without error.
	ExhaustedClean
	// ExhaustedMalformed means the chain ended in a non-pair under EndOn.
	ExhaustedMalformed
	// CycleDetected means a cycle was found under CycleSafe or CycleOn.
	CycleDetected
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case ExhaustedClean:
		return "exhausted"
	case ExhaustedMalformed:
		return "malformed"
	case CycleDetected:
		return "cycle"
	}
	return "unknown"
}

// Walker iterates over the pair nodes of a chain, one node per Next call,
// following the second field of each node. A Walker cannot be rewound; build
// a new one to start over.
//
// Cycles are found with Brent's algorithm: a tortoise is parked on a node and
// each step compares the current tail against it. After max steps the
// tortoise is moved to the current tail and max doubles; the step that moves
// it makes no comparison, and every other step does. A cycle of length L
// entered after μ links is found within O(μ+L) steps using O(1) state.
//
// The walker re-reads every node when it steps over it, so the chain may be
// mutated between calls to Next. The walker observes whatever shape exists at
// the time of each step.
//
// A Walker is NOT goroutine-safe.
type Walker struct {
	pairs    Pairs
	head     Value
	tail     Value
	tortoise Value
	pred     string
	stride   Stride
	end      EndPolicy
	cycle    CyclePolicy
	// max is the current tortoise budget, q the steps left in it.
	max int
	q   int
	// steps counts links advanced.
	steps int
	// found is set by the step that closed a cycle. The cycle is reported by
	// the following call to Next so the node that led into it is still
	// yielded.
	found bool
	state State
	err   error
}

// Tails returns a Walker over the nodes of the list head.
func Tails(pairs Pairs, head Value, end EndPolicy, cycle CyclePolicy) *Walker {
	return newWalker(pairs, head, PredListp, StrideOne, end, cycle)
}

// PlistTails returns a Walker over the key nodes of the property list head,
// i.e. every other node starting at head.
func PlistTails(pairs Pairs, head Value, end EndPolicy, cycle CyclePolicy) *Walker {
	return newWalker(pairs, head, PredPlistp, StrideTwo, end, cycle)
}

func newWalker(
	pairs Pairs, head Value, pred string, stride Stride, end EndPolicy, cycle CyclePolicy,
) *Walker {
	return &Walker{
		pairs:    pairs,
		head:     head,
		tail:     head,
		tortoise: head,
		pred:     pred,
		stride:   stride,
		end:      end,
		cycle:    cycle,
		max:      2,
		q:        2,
	}
}

// Next returns the next pair node and advances past it. It returns ok=false
// once the chain is exhausted or a cycle has stopped the traversal; State and
// Err then describe why.
func (w *Walker) Next() (cell Value, ok bool) {
	if w.state != Running {
		return Nil, false
	}
	if w.found {
		w.state = CycleDetected
		if w.cycle == CycleOn {
			w.err = &CircularListError{Value: w.head}
		}
		return Nil, false
	}
	_, second, ok := w.pairs.Pair(w.tail)
	if !ok {
		w.state = ExhaustedClean
		if w.tail != Nil && w.end == EndOn {
			w.state = ExhaustedMalformed
			w.err = &WrongTypeError{Predicate: w.pred, Value: w.head}
		}
		return Nil, false
	}
	cell = w.tail
	w.advance(second)
	for i := Stride(1); i < w.stride && !w.found; i++ {
		_, second, ok := w.pairs.Pair(w.tail)
		if !ok {
			break
		}
		w.advance(second)
	}
	return cell, true
}

// NextCar is like Next but returns the first field of the node.
func (w *Walker) NextCar() (Value, bool) {
	cell, ok := w.Next()
	if !ok {
		return Nil, false
	}
	first, _, _ := w.pairs.Pair(cell)
	return first, true
}

// All calls yield for each remaining node. If yield returns false, All
// stops. The Walker is left positioned after the last node yielded.
func (w *Walker) All(yield func(cell Value) bool) {
	for {
		cell, ok := w.Next()
		if !ok || !yield(cell) {
			return
		}
	}
}

// Rest returns the unconsumed tail without advancing. After the traversal
// ends it is the value that ended it, which may be a non-pair.
func (w *Walker) Rest() Value {
	return w.tail
}

// Err returns the error that stopped the traversal, if any.
func (w *Walker) Err() error {
	return w.err
}

// State returns the lifecycle state of the walker.
func (w *Walker) State() State {
	return w.state
}

// CycleSuppressed returns true if the traversal was stopped by a cycle that
// CycleSafe kept from being reported as an error.
func (w *Walker) CycleSuppressed() bool {
	return w.state == CycleDetected && w.cycle == CycleSafe
}

// Steps returns the number of links advanced so far.
func (w *Walker) Steps() int {
	return w.steps
}

func (w *Walker) advance(next Value) {
	w.tail = next
	w.steps++
	if w.cycle != CycleOff && w.checkCircular() {
		w.found = true
	}
}

// checkCircular runs one step of Brent's algorithm against the new tail.
func (w *Walker) checkCircular() bool {
	w.q--
	if w.q == 0 {
		w.max <<= 1
		w.q = w.max
		w.tortoise = w.tail
		return false
	}
	return w.tail == w.tortoise
}
