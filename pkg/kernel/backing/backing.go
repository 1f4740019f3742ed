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

// Package backing implements the backing-store layer: loading a page's
// content from its backing file or its swap slot into frame bytes.
package backing

import (
	"fmt"

	"github.com/minos-kernel/minos/pkg/context"
	"github.com/minos-kernel/minos/pkg/hostarch"
	"github.com/minos-kernel/minos/pkg/kernel/kerr"
	"github.com/minos-kernel/minos/pkg/kernel/memmap"
	"github.com/minos-kernel/minos/pkg/kernel/swap"
)

// Store loads page content from files and the swap store.
type Store struct {
	// Swap is the swap store swapped pages reload from.
	Swap *swap.Store
}

// NewStore returns a Store reloading swapped pages from sw.
func NewStore(sw *swap.Store) *Store {
	return &Store{Swap: sw}
}

// LoadFile fills dst with pg's file content: ReadLength bytes from the
// backing file at its offset, the rest zero. A pg with no backing file
// zero-fills. dst must be exactly one page.
func (s *Store) LoadFile(ctx context.Context, pg *memmap.Page, dst []byte) error {
	if len(dst) != hostarch.PageSize {
		return fmt.Errorf("file load into %d bytes, want %d", len(dst), hostarch.PageSize)
	}
	fb := pg.File
	if fb == nil {
		clear(dst)
		return nil
	}
	if fb.ReadLength < 0 || fb.ReadLength > hostarch.PageSize {
		return fmt.Errorf("%w: read length %d", kerr.ErrBadBacking, fb.ReadLength)
	}
	if fb.ReadLength > 0 {
		n, err := fb.File.ReadAt(dst[:fb.ReadLength], fb.Offset)
		if n != fb.ReadLength {
			ctx.Debugf("short file read for %v: %d/%d bytes, %v", pg, n, fb.ReadLength, err)
			return fmt.Errorf("%w: short read at offset %#x", kerr.ErrBadBacking, fb.Offset)
		}
	}
	clear(dst[fb.ReadLength:])
	return nil
}

// ReleaseSlot returns a brought-in page's slot to the swap store. Releasing
// swap.NilSlot is a no-op.
func (s *Store) ReleaseSlot(slot swap.Slot) {
	if s.Swap != nil {
		s.Swap.Free(slot)
	}
}

// LoadSwap fills dst with pg's swapped-out content. dst must be exactly one
// page.
func (s *Store) LoadSwap(ctx context.Context, pg *memmap.Page, dst []byte) error {
	if !pg.Swapped {
		return fmt.Errorf("%w: swap load of unswapped %v", kerr.ErrInconsistent, pg)
	}
	if err := s.Swap.ReadInto(pg.Slot, dst); err != nil {
		return fmt.Errorf("%w: slot %d: %v", kerr.ErrBadBacking, pg.Slot, err)
	}
	return nil
}
