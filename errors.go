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
)

var (
	// ErrWrongType indicates a chain ended in something that is neither a
	// pair nor Nil.
	ErrWrongType = errors.New("lispcore: wrong type argument")
	// ErrCircularList indicates a traversal revisited a node.
	ErrCircularList = errors.New("lispcore: circular list")
	// ErrTooDeep indicates structural comparison exceeded its nesting limit.
	ErrTooDeep = errors.New("lispcore: nesting too deep")
)

// Predicates named by WrongTypeError.
const (
	PredListp  = "listp"
	PredPlistp = "plistp"
	PredConsp  = "consp"
)

// WrongTypeError is returned when a value fails the structural predicate a
// traversal required of it.
type WrongTypeError struct {
	Predicate string
	Value     Value
}

func (e *WrongTypeError) Error() string {
	return fmt.Sprintf("%s: %s %#x", ErrWrongType, e.Predicate, uint64(e.Value))
}

func (e *WrongTypeError) Unwrap() error { return ErrWrongType }

// CircularListError is returned when a traversal under CycleOn finds a
// cycle. Value is the head of the traversed chain.
type CircularListError struct {
	Value Value
}

func (e *CircularListError) Error() string {
	return fmt.Sprintf("%s: %#x", ErrCircularList, uint64(e.Value))
}

func (e *CircularListError) Unwrap() error { return ErrCircularList }
