// Copyright 2025 The Minos Authors.
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

// Package kerr contains kernel error values exported as the error interface.
// This allows for fast comparison with errors.Is at resolution boundaries.
package kerr

import (
	"errors"
)

var (
	// ErrNoFrame is returned when the user frame pool cannot satisfy an
	// allocation.
	ErrNoFrame = errors.New("out of user frames")

	// ErrMapLimit is returned when a virtual-to-physical mapping cannot
	// be installed because the mapping structure cannot be extended.
	ErrMapLimit = errors.New("cannot extend mapping structure")

	// ErrExists is returned when inserting a page descriptor for an
	// address that is already registered.
	ErrExists = errors.New("page already registered")

	// ErrNotMapped is returned when an operation references a virtual
	// address with no installed mapping.
	ErrNotMapped = errors.New("address not mapped")

	// ErrNoSwapSlot is returned when the swap store has no free slots.
	ErrNoSwapSlot = errors.New("out of swap slots")

	// ErrBadBacking is returned when page content cannot be read from
	// its backing file or swap slot.
	ErrBadBacking = errors.New("backing store read failed")

	// ErrInconsistent is returned when resolution observes page state
	// that the fault path can never legitimately produce, e.g. a
	// not-present fault on a descriptor already marked loaded.
	ErrInconsistent = errors.New("inconsistent page state")
)
