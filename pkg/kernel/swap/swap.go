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

// Package swap implements the swap store: a fixed collection of page-sized
// slots that evicted page content is written to and read back from.
package swap

import (
	"fmt"

	"github.com/minos-kernel/minos/pkg/hostarch"
	"github.com/minos-kernel/minos/pkg/kernel/kerr"
	"github.com/minos-kernel/minos/pkg/sync"
)

// Slot identifies one page-sized slot in the store.
type Slot uint32

// NilSlot is the zero Slot. A page descriptor that is not swapped carries
// NilSlot.
const NilSlot = Slot(0)

// Store is a swap store. Operations are safe to call from concurrently
// faulting threads.
type Store struct {
	mu sync.Mutex

	// data backs all slots. Slot s occupies the s'th page. Slot 0 is
	// reserved so that NilSlot never names live content.
	data []byte

	// free is a LIFO of free slots.
	free []Slot
}

// NewStore creates a Store with the given number of usable slots.
func NewStore(slots int) (*Store, error) {
	if slots <= 0 {
		return nil, fmt.Errorf("invalid swap store size %d", slots)
	}
	s := &Store{
		data: make([]byte, (slots+1)*hostarch.PageSize),
		free: make([]Slot, 0, slots),
	}
	for i := slots; i >= 1; i-- {
		s.free = append(s.free, Slot(i))
	}
	return s, nil
}

// Alloc reserves one slot. It fails with kerr.ErrNoSwapSlot when the store
// is full.
func (s *Store) Alloc() (Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.free) == 0 {
		return NilSlot, kerr.ErrNoSwapSlot
	}
	slot := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	return slot, nil
}

// Free releases a slot for reuse. Freeing NilSlot is a no-op.
func (s *Store) Free(slot Slot) {
	if slot == NilSlot {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.free = append(s.free, slot)
}

// Write stores one page of content into slot. src must be exactly one page.
func (s *Store) Write(slot Slot, src []byte) error {
	b, err := s.slice(slot)
	if err != nil {
		return err
	}
	if len(src) != hostarch.PageSize {
		return fmt.Errorf("swap write of %d bytes, want %d", len(src), hostarch.PageSize)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(b, src)
	return nil
}

// ReadInto loads one page of content from slot into dst. dst must be exactly
// one page.
func (s *Store) ReadInto(slot Slot, dst []byte) error {
	b, err := s.slice(slot)
	if err != nil {
		return err
	}
	if len(dst) != hostarch.PageSize {
		return fmt.Errorf("swap read into %d bytes, want %d", len(dst), hostarch.PageSize)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(dst, b)
	return nil
}

// FreeSlots returns the number of free slots.
func (s *Store) FreeSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.free)
}

func (s *Store) slice(slot Slot) ([]byte, error) {
	off := int(slot) * hostarch.PageSize
	if slot == NilSlot || off+hostarch.PageSize > len(s.data) {
		return nil, fmt.Errorf("%w: slot %d", kerr.ErrBadBacking, slot)
	}
	return s.data[off : off+hostarch.PageSize], nil
}
