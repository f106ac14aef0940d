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

// Package lispcore provides the two data structure engines a Lisp-style
// runtime is built on: an associative Table with a pluggable notion of key
// equality and weak entries, and a cycle-safe Walker over chains of pair
// nodes.
//
// # Tables
//
// A Table maps keys to values. Key identity is defined by a Strategy bound
// when the table is created, which supplies an equality predicate and a hash
// function. Storage is a set of parallel arrays indexed by slot:
//
//	keys   [k0 k1 k2 k3 ...]
//	values [v0 v1 v2 v3 ...]
//	hashes [h0 h1 -- h3 ...]   -- marks a free slot
//	next   [ 3 -1  5 -1 ...]   chain link, or free list link
//	index  [ 1  0 -1  ...  ]   bucket heads, hash % capacity
//
// A slot is occupied iff its hash is not hashEmpty. Occupied slots with the
// same bucket are chained through next, starting at index[bucket]; free
// slots are chained through next starting at freeHead. Insertion takes the
// first free slot and prepends it to its bucket chain. Removal unlinks the
// slot from its chain and pushes it onto the free list.
//
// Growth is driven by the rehash threshold: an insertion that would raise
// the load above capacity*threshold first grows the arrays by the rehash
// size. Growth extends the arrays in place, so slot numbers stay valid, and
// rebuilds the bucket chains from the stored hashes without calling the
// Strategy. Tables never shrink.
//
// # Weak tables
//
// A weak table is linked into a WeakRegistry. A collector calls
// WeakRegistry.Sweep with a liveness oracle and each table removes the
// entries its Weakness says are dead.
//
// # Walkers
//
// A Walker enumerates the pair nodes of a chain whose shape is unknown and
// may be circular. See Walker for the cycle detection scheme.
package lispcore

import (
	"fmt"
	"math/bits"
	"strings"
)

const (
	debug = false

	// minCapacity is the capacity an empty table grows to on first insert.
	minCapacity = 8

	defaultRehashThreshold = 0.8125
	defaultRehashSize      = 1.5

	// hashEmpty marks a free slot. Stored hashes always have this bit clear.
	hashEmpty uintptr = 1 << (bits.UintSize - 1)
	hashMask          = hashEmpty - 1

	// noSlot ends a chain or marks an empty bucket.
	noSlot int32 = -1
)

// Table is an associative container from keys to values. Keys are compared
// using the Strategy the table was created with.
//
// A Table is NOT goroutine-safe. The Strategy callbacks may reenter the
// table, including to insert or remove entries. A chain walk that observes a
// mutation across a callback starts over from the bucket head, so a callback
// that mutates the table on every call never lets the walk finish.
type Table struct {
	strategy  Strategy
	allocator Allocator

	// keys, values, hashes and next are capacity in length.
	keys   []Value
	values []Value
	hashes []uintptr
	// next links a slot to the next slot in its bucket chain, or, for a free
	// slot, to the next free slot.
	next []int32
	// index is capacity in length and holds the head slot of each bucket.
	index []int32
	// freeHead is the first free slot, or noSlot if the table is full.
	freeHead int32
	// The number of occupied slots.
	count int
	// The number of times an insertion has grown the table.
	resizes int
	// version changes on every structural mutation. Walks that call back
	// into the Strategy restart when it changes under them.
	version uint64

	rehashThreshold float64
	// Exactly one of rehashFactor and rehashIncrement is in effect.
	rehashFactor    float64
	rehashIncrement int

	weakness Weakness
	registry *WeakRegistry
	link     *weakLink
}

// New constructs a new Table using strategy with the specified initial
// capacity. If initialCapacity is 0 the table will start out with zero
// capacity and will grow on the first insert.
func New(strategy Strategy, initialCapacity int, options ...Option) *Table {
	t := &Table{
		strategy:        strategy,
		allocator:       defaultAllocator{},
		freeHead:        noSlot,
		rehashThreshold: defaultRehashThreshold,
		rehashFactor:    defaultRehashSize,
	}

	for _, op := range options {
		op.apply(t)
	}

	if t.weakness != WeakNone {
		t.registry.Register(t)
	}
	if initialCapacity > 0 {
		t.resize(initialCapacity)
	}

	t.checkInvariants()
	return t
}

// Close releases the table's arrays back to its configured allocator. It is
// unnecessary to close a table using the default allocator. It is invalid to
// use a Table after it has been closed, though Close itself is idempotent.
// Close does not unlink a weak table from its registry.
func (t *Table) Close() {
	if t.allocator != nil && len(t.keys) > 0 {
		t.free(t.keys, t.values, t.hashes, t.next, t.index)
	}
	t.keys, t.values, t.hashes, t.next, t.index = nil, nil, nil, nil, nil
	t.freeHead = noSlot
	t.count = 0
	t.allocator = nil
}

// Lookup searches for key. If it is present, Lookup returns its slot and
// ok=true. Otherwise it returns ok=false and the hash of key, which can be
// passed to Put to insert key without hashing it again.
func (t *Table) Lookup(key Value) (slot int, hash uintptr, ok bool) {
	hash = t.strategy.Hash(key) & hashMask
	if len(t.index) == 0 {
		return -1, hash, false
	}

restart:
	i := t.index[hash%uintptr(len(t.index))]
	for i != noSlot {
		if debug {
			fmt.Printf("lookup(checking): slot=%d key=%#x\n", i, uint64(t.keys[i]))
		}
		if t.hashes[i] == hash {
			k := t.keys[i]
			if k == key {
				return int(i), hash, true
			}
			v := t.version
			eq := t.strategy.Equal(key, k)
			if t.version != v {
				// Equal mutated the table. The chain may have been rebuilt and
				// slot i may hold a different entry.
				if debug {
					fmt.Printf("lookup(restart): key=%#x\n", uint64(key))
				}
				goto restart
			}
			if eq {
				return int(i), hash, true
			}
		}
		i = t.next[i]
	}
	if debug {
		fmt.Printf("lookup(not-found): key=%#x hash=%x\n", uint64(key), hash)
	}
	return -1, hash, false
}

// Put inserts an entry known not to be in the table, using the hash returned
// by a Lookup that missed. Violating either requirement will cause the table
// to behave erratically. Put returns the slot of the new entry.
func (t *Table) Put(key, value Value, hash uintptr) int {
	hash &= hashMask
	if float64(t.count+1) > float64(len(t.keys))*t.rehashThreshold {
		t.grow()
	}

	i := t.freeHead
	t.freeHead = t.next[i]
	b := hash % uintptr(len(t.index))
	t.keys[i] = key
	t.values[i] = value
	t.hashes[i] = hash
	t.next[i] = t.index[b]
	t.index[b] = i
	t.count++
	t.version++

	if debug {
		fmt.Printf("put(inserting): key=%#x slot=%d bucket=%d count=%d\n", uint64(key), i, b, t.count)
	}
	t.checkInvariants()
	return int(i)
}

// Get retrieves the value for key, returning ok=false if the key is not
// present.
func (t *Table) Get(key Value) (value Value, ok bool) {
	slot, _, ok := t.Lookup(key)
	if !ok {
		return Nil, false
	}
	return t.values[slot], true
}

// Set associates value with key, overwriting an existing value if key is
// already present. It returns the slot of the entry.
func (t *Table) Set(key, value Value) int {
	slot, hash, ok := t.Lookup(key)
	if ok {
		t.values[slot] = value
		return slot
	}
	return t.Put(key, value, hash)
}

// Remove deletes the entry for key, returning false if there was none. The
// arrays are never shrunk; the slot is reused by a later insertion.
func (t *Table) Remove(key Value) bool {
	hash := t.strategy.Hash(key) & hashMask
	if len(t.index) == 0 {
		return false
	}

restart:
	b := int32(hash % uintptr(len(t.index)))
	prev := noSlot
	for i := t.index[b]; i != noSlot; prev, i = i, t.next[i] {
		if t.hashes[i] != hash {
			continue
		}
		if k := t.keys[i]; k != key {
			v := t.version
			eq := t.strategy.Equal(key, k)
			if t.version != v {
				if debug {
					fmt.Printf("remove(restart): key=%#x\n", uint64(key))
				}
				goto restart
			}
			if !eq {
				continue
			}
		}
		if debug {
			fmt.Printf("remove(%#x): slot=%d count=%d\n", uint64(key), i, t.count-1)
		}
		t.removeSlot(b, prev, i)
		t.checkInvariants()
		return true
	}
	return false
}

// Clear removes all entries. The capacity, weakness and registry linkage are
// unchanged.
func (t *Table) Clear() {
	for i := range t.keys {
		t.keys[i] = Nil
		t.values[i] = Nil
		t.hashes[i] = hashEmpty
		t.next[i] = int32(i + 1)
		t.index[i] = noSlot
	}
	t.freeHead = noSlot
	if n := len(t.next); n > 0 {
		t.next[n-1] = noSlot
		t.freeHead = 0
	}
	t.count = 0
	t.version++
	t.checkInvariants()
}

// Copy returns an independent table with the same strategy, growth
// parameters, weakness and entries. Keys and values themselves are not
// copied. A weak copy is linked into the registry immediately ahead of t.
func (t *Table) Copy() *Table {
	c := &Table{
		strategy:        t.strategy,
		allocator:       t.allocator,
		freeHead:        t.freeHead,
		count:           t.count,
		rehashThreshold: t.rehashThreshold,
		rehashFactor:    t.rehashFactor,
		rehashIncrement: t.rehashIncrement,
		weakness:        t.weakness,
		registry:        t.registry,
	}
	if n := len(t.keys); n > 0 {
		c.keys, c.values, c.hashes, c.next, c.index = c.alloc(n)
		copy(c.keys, t.keys)
		copy(c.values, t.values)
		copy(c.hashes, t.hashes)
		copy(c.next, t.next)
		copy(c.index, t.index)
	}
	if c.weakness != WeakNone {
		if t.link == nil {
			c.registry.Register(c)
		} else {
			c.registry.linkAhead(t, c)
		}
	}
	c.checkInvariants()
	return c
}

// Sweep removes the entries that t's weakness marks dead according to
// isLive, returning the number removed. It is a noop on a table that is not
// weak. Sweep is called by a collector, once per table per collection.
func (t *Table) Sweep(isLive func(v Value) bool) int {
	if t.weakness == WeakNone {
		return 0
	}
	var removed int
	// isLive may reenter the table. If it mutates it the scan starts over,
	// since a resize can move unswept entries into buckets already passed.
scan:
	for b := 0; b < len(t.index); b++ {
		prev := noSlot
		for i := t.index[b]; i != noSlot; {
			v := t.version
			dead := t.weakness.Dead(isLive(t.keys[i]), isLive(t.values[i]))
			if t.version != v {
				if debug {
					fmt.Printf("sweep(restart): removed=%d\n", removed)
				}
				goto scan
			}
			next := t.next[i]
			if dead {
				t.removeSlot(int32(b), prev, i)
				removed++
			} else {
				prev = i
			}
			i = next
		}
	}
	if debug {
		fmt.Printf("sweep(%s): removed=%d count=%d\n", t.weakness, removed, t.count)
	}
	t.checkInvariants()
	return removed
}

// All calls yield sequentially for each key and value present in the table.
// If yield returns false, All stops the iteration. The table can be mutated
// during iteration; the array length is reread on every step, so entries
// added by yield may or may not be visited.
func (t *Table) All(yield func(key, value Value) bool) {
	for i := 0; i < len(t.hashes); i++ {
		if t.hashes[i] == hashEmpty {
			continue
		}
		if !yield(t.keys[i], t.values[i]) {
			return
		}
	}
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	return t.count
}

// Capacity returns the number of slots.
func (t *Table) Capacity() int {
	return len(t.keys)
}

// Resizes returns the number of times an insertion has grown the table.
func (t *Table) Resizes() int {
	return t.resizes
}

// Strategy returns the table's key strategy.
func (t *Table) Strategy() Strategy {
	return t.strategy
}

// RehashThreshold returns the load factor at which the table grows.
func (t *Table) RehashThreshold() float64 {
	return t.rehashThreshold
}

// RehashSize returns the growth factor, or the growth increment if the table
// was created WithRehashIncrement.
func (t *Table) RehashSize() float64 {
	if t.rehashIncrement > 0 {
		return float64(t.rehashIncrement)
	}
	return t.rehashFactor
}

// Weakness returns the table's weakness.
func (t *Table) Weakness() Weakness {
	return t.weakness
}

// Key returns the key in slot, which must be occupied.
func (t *Table) Key(slot int) Value {
	return t.keys[slot]
}

// Value returns the value in slot, which must be occupied.
func (t *Table) Value(slot int) Value {
	return t.values[slot]
}

// SetValue replaces the value in slot, which must be occupied.
func (t *Table) SetValue(slot int, value Value) {
	t.values[slot] = value
}

// grow resizes the table to the smallest capacity reached by repeatedly
// applying the rehash size that admits one more entry.
func (t *Table) grow() {
	newCapacity := t.nextCapacity(len(t.keys))
	for float64(t.count+1) > float64(newCapacity)*t.rehashThreshold {
		newCapacity = t.nextCapacity(newCapacity)
	}
	t.resize(newCapacity)
	t.resizes++
}

func (t *Table) nextCapacity(capacity int) int {
	var n int
	if t.rehashIncrement > 0 {
		n = capacity + t.rehashIncrement
	} else {
		n = int(float64(capacity) * t.rehashFactor)
	}
	if n <= capacity {
		n = capacity + 1
	}
	if n < minCapacity {
		n = minCapacity
	}
	return n
}

// resize grows the arrays to newCapacity. Existing slots keep their numbers;
// the new slots are pushed onto the free list and every bucket chain is
// rebuilt from the stored hashes. The new arrays are installed only once they
// are complete.
func (t *Table) resize(newCapacity int) {
	oldCapacity := len(t.keys)
	if newCapacity <= oldCapacity {
		return
	}

	keys, values, hashes, next, index := t.alloc(newCapacity)
	copy(keys, t.keys)
	copy(values, t.values)
	copy(hashes, t.hashes)
	copy(next, t.next)

	freeHead := t.freeHead
	for i := newCapacity - 1; i >= oldCapacity; i-- {
		hashes[i] = hashEmpty
		next[i] = freeHead
		freeHead = int32(i)
	}

	for b := range index {
		index[b] = noSlot
	}
	for i := 0; i < oldCapacity; i++ {
		if hashes[i] == hashEmpty {
			continue
		}
		b := hashes[i] % uintptr(newCapacity)
		next[i] = index[b]
		index[b] = int32(i)
	}

	if debug {
		fmt.Printf("resize: capacity=%d->%d count=%d\n", oldCapacity, newCapacity, t.count)
	}

	if oldCapacity > 0 {
		t.free(t.keys, t.values, t.hashes, t.next, t.index)
	}
	t.keys, t.values, t.hashes, t.next, t.index = keys, values, hashes, next, index
	t.freeHead = freeHead
	t.version++

	t.checkInvariants()
}

func (t *Table) alloc(
	n int,
) (keys, values []Value, hashes []uintptr, next, index []int32) {
	keys = t.allocator.AllocValues(n)
	values = t.allocator.AllocValues(n)
	hashes = t.allocator.AllocHashes(n)
	next = t.allocator.AllocIndexes(n)
	index = t.allocator.AllocIndexes(n)
	return keys, values, hashes, next, index
}

func (t *Table) free(keys, values []Value, hashes []uintptr, next, index []int32) {
	t.allocator.FreeValues(keys)
	t.allocator.FreeValues(values)
	t.allocator.FreeHashes(hashes)
	t.allocator.FreeIndexes(next)
	t.allocator.FreeIndexes(index)
}

// removeSlot unlinks slot i from bucket b, where prev is the slot preceding
// i in the chain or noSlot if i is the head, and pushes i onto the free list.
func (t *Table) removeSlot(b, prev, i int32) {
	if prev == noSlot {
		t.index[b] = t.next[i]
	} else {
		t.next[prev] = t.next[i]
	}
	t.keys[i] = Nil
	t.values[i] = Nil
	t.hashes[i] = hashEmpty
	t.next[i] = t.freeHead
	t.freeHead = i
	t.count--
	t.version++
}

func (t *Table) checkInvariants() {
	if invariants {
		if len(t.values) != len(t.keys) || len(t.hashes) != len(t.keys) ||
			len(t.next) != len(t.keys) || len(t.index) != len(t.keys) {
			panic(fmt.Sprintf("invariant failed: array lengths differ\n%s", t.debugString()))
		}

		// Every slot reachable from a bucket must be occupied and hash to
		// that bucket.
		var chained int
		for b := range t.index {
			for i := t.index[b]; i != noSlot; i = t.next[i] {
				if t.hashes[i] == hashEmpty {
					panic(fmt.Sprintf("invariant failed: free slot %d in bucket %d\n%s", i, b, t.debugString()))
				}
				if int(t.hashes[i]%uintptr(len(t.index))) != b {
					panic(fmt.Sprintf("invariant failed: slot %d in bucket %d, expected %d\n%s",
						i, b, t.hashes[i]%uintptr(len(t.index)), t.debugString()))
				}
				chained++
				if chained > len(t.keys) {
					panic(fmt.Sprintf("invariant failed: chain cycle in bucket %d\n%s", b, t.debugString()))
				}
			}
		}

		var used int
		for i := range t.hashes {
			if t.hashes[i] != hashEmpty {
				used++
			}
		}
		if used != t.count || chained != t.count {
			panic(fmt.Sprintf("invariant failed: found %d used and %d chained slots, but count is %d\n%s",
				used, chained, t.count, t.debugString()))
		}

		var free int
		for i := t.freeHead; i != noSlot; i = t.next[i] {
			if t.hashes[i] != hashEmpty {
				panic(fmt.Sprintf("invariant failed: occupied slot %d on free list\n%s", i, t.debugString()))
			}
			free++
			if free > len(t.keys) {
				panic(fmt.Sprintf("invariant failed: free list cycle\n%s", t.debugString()))
			}
		}
		if free+t.count != len(t.keys) {
			panic(fmt.Sprintf("invariant failed: %d free + %d used != capacity %d\n%s",
				free, t.count, len(t.keys), t.debugString()))
		}
	}
}

func (t *Table) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "strategy=%s capacity=%d count=%d free-head=%d weakness=%s\n",
		t.strategy.Name, len(t.keys), t.count, t.freeHead, t.weakness)
	for i := range t.keys {
		if t.hashes[i] == hashEmpty {
			fmt.Fprintf(&buf, "  %4d: free next=%d\n", i, t.next[i])
			continue
		}
		fmt.Fprintf(&buf, "  %4d: %#x=%#x [hash=%x bucket=%d next=%d]\n", i,
			uint64(t.keys[i]), uint64(t.values[i]), t.hashes[i],
			t.hashes[i]%uintptr(len(t.index)), t.next[i])
	}
	for b := range t.index {
		if t.index[b] != noSlot {
			fmt.Fprintf(&buf, "  bucket %4d -> %d\n", b, t.index[b])
		}
	}
	return buf.String()
}
