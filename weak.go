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

// Weakness selects which entries of a weak table a sweep removes.
type Weakness uint8

const (
	// WeakNone marks an ordinary table. Sweeps leave it alone.
	WeakNone Weakness = iota
	// WeakKey removes entries whose key is not live.
	WeakKey
	// WeakValue removes entries whose value is not live.
	WeakValue
	// WeakKeyOrValue removes entries whose key or value is not live.
	WeakKeyOrValue
	// WeakKeyAndValue removes entries whose key and value are both not live.
	WeakKeyAndValue
)

func (w Weakness) String() string {
	switch w {
	case WeakNone:
		return "none"
	case WeakKey:
		return "key"
	case WeakValue:
		return "value"
	case WeakKeyOrValue:
		return "key-or-value"
	case WeakKeyAndValue:
		return "key-and-value"
	}
	return "unknown"
}

// Dead returns true if an entry with the given key and value liveness is
// removed by a sweep.
func (w Weakness) Dead(keyLive, valueLive bool) bool {
	switch w {
	case WeakKey:
		return !keyLive
	case WeakValue:
		return !valueLive
	case WeakKeyOrValue:
		return !keyLive || !valueLive
	case WeakKeyAndValue:
		return !keyLive && !valueLive
	}
	return false
}

// WeakRegistry is the set of weak tables a collector sweeps. Tables are
// linked in at creation and only unlinked by the collector, once the table
// itself is unreachable.
//
// A WeakRegistry is NOT goroutine-safe.
type WeakRegistry struct {
	head *weakLink
	n    int
}

// weakLink is owned by the registry. A Table points at its link so a copy
// can be spliced in ahead of it without walking the list.
type weakLink struct {
	table *Table
	next  *weakLink
}

// NewWeakRegistry returns an empty registry.
func NewWeakRegistry() *WeakRegistry {
	return &WeakRegistry{}
}

// Register links t at the head of the registry. It is a noop if t is already
// linked.
func (r *WeakRegistry) Register(t *Table) {
	if t.link != nil {
		return
	}
	t.link = &weakLink{table: t, next: r.head}
	t.registry = r
	r.head = t.link
	r.n++
}

// linkAhead links c immediately ahead of t, which must already be linked:
// the registry becomes ... -> c -> t -> rest.
func (r *WeakRegistry) linkAhead(t, c *Table) {
	l := t.link
	moved := &weakLink{table: t, next: l.next}
	l.next = moved
	l.table = c
	c.link = l
	t.link = moved
	r.n++
}

// Unlink removes t from the registry, returning false if it was not linked.
func (r *WeakRegistry) Unlink(t *Table) bool {
	var prev *weakLink
	for l := r.head; l != nil; prev, l = l, l.next {
		if l.table != t {
			continue
		}
		if prev == nil {
			r.head = l.next
		} else {
			prev.next = l.next
		}
		t.link = nil
		r.n--
		return true
	}
	return false
}

// Tables calls yield for each linked table in link order. If yield returns
// false, Tables stops. yield may unlink the table it is given.
func (r *WeakRegistry) Tables(yield func(t *Table) bool) {
	for l := r.head; l != nil; {
		next := l.next
		if !yield(l.table) {
			return
		}
		l = next
	}
}

// Len returns the number of linked tables.
func (r *WeakRegistry) Len() int {
	return r.n
}

// Sweep sweeps every linked table once, returning the total number of
// entries removed.
func (r *WeakRegistry) Sweep(isLive func(v Value) bool) int {
	var removed int
	r.Tables(func(t *Table) bool {
		removed += t.Sweep(isLive)
		return true
	})
	return removed
}
