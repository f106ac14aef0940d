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

// Option configures a Table while it is being created.
type Option interface {
	apply(t *Table)
}

type rehashThresholdOption float64

func (op rehashThresholdOption) apply(t *Table) {
	t.rehashThreshold = float64(op)
}

// WithRehashThreshold sets the load factor above which a Table grows before
// the next insertion. It must be in (0, 1].
func WithRehashThreshold(threshold float64) Option {
	if !(threshold > 0 && threshold <= 1) {
		panic(fmt.Sprintf("lispcore: invalid rehash threshold %v", threshold))
	}
	return rehashThresholdOption(threshold)
}

type rehashSizeOption struct {
	factor    float64
	increment int
}

func (op rehashSizeOption) apply(t *Table) {
	t.rehashFactor = op.factor
	t.rehashIncrement = op.increment
}

// WithRehashSize sets the factor by which a Table multiplies its capacity
// when it grows. It must be greater than 1.
func WithRehashSize(factor float64) Option {
	if !(factor > 1) {
		panic(fmt.Sprintf("lispcore: invalid rehash size %v", factor))
	}
	return rehashSizeOption{factor: factor}
}

// WithRehashIncrement makes a Table grow by a fixed number of slots rather
// than by a factor.
func WithRehashIncrement(n int) Option {
	if n <= 0 {
		panic(fmt.Sprintf("lispcore: invalid rehash increment %d", n))
	}
	return rehashSizeOption{increment: n}
}

type weaknessOption struct {
	weakness Weakness
	registry *WeakRegistry
}

func (op weaknessOption) apply(t *Table) {
	t.weakness = op.weakness
	t.registry = op.registry
}

// WithWeakness makes the table weak. The table is linked into registry when
// it is created, and its entries are removed by Sweep according to kind.
func WithWeakness(kind Weakness, registry *WeakRegistry) Option {
	if kind != WeakNone && registry == nil {
		panic("lispcore: weak table requires a registry")
	}
	return weaknessOption{kind, registry}
}

// Allocator specifies an interface for allocating and releasing the parallel
// arrays used by a Table. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that the arrays
// be freed then Table.Close must be called in order to ensure the Free
// methods are called.
type Allocator interface {
	// AllocValues should return a slice equivalent to make([]Value, n).
	AllocValues(n int) []Value
	// AllocHashes should return a slice equivalent to make([]uintptr, n).
	AllocHashes(n int) []uintptr
	// AllocIndexes should return a slice equivalent to make([]int32, n).
	AllocIndexes(n int) []int32

	// FreeValues can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocValues.
	FreeValues(v []Value)
	// FreeHashes can optionally release memory allocated by AllocHashes.
	FreeHashes(v []uintptr)
	// FreeIndexes can optionally release memory allocated by AllocIndexes.
	FreeIndexes(v []int32)
}

type defaultAllocator struct{}

func (defaultAllocator) AllocValues(n int) []Value {
	return make([]Value, n)
}

func (defaultAllocator) AllocHashes(n int) []uintptr {
	return make([]uintptr, n)
}

func (defaultAllocator) AllocIndexes(n int) []int32 {
	return make([]int32, n)
}

func (defaultAllocator) FreeValues(v []Value) {
}

func (defaultAllocator) FreeHashes(v []uintptr) {
}

func (defaultAllocator) FreeIndexes(v []int32) {
}

type allocatorOption struct {
	allocator Allocator
}

func (op allocatorOption) apply(t *Table) {
	t.allocator = op.allocator
}

// WithAllocator sets the Allocator a Table uses for its arrays.
func WithAllocator(allocator Allocator) Option {
	return allocatorOption{allocator}
}
