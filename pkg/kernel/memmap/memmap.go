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

// Package memmap defines the per-virtual-page backing records of a process
// and the supplemental page table that owns them.
package memmap

import (
	"fmt"
	"io"

	"github.com/minos-kernel/minos/pkg/hostarch"
	"github.com/minos-kernel/minos/pkg/kernel/swap"
)

// FileBacking describes the file content a lazily-loaded page reads on its
// first fault.
type FileBacking struct {
	// File provides the segment's content.
	File io.ReaderAt

	// Offset is the position in File the page's content starts at.
	Offset int64

	// ReadLength is the number of bytes read from File. The remainder of
	// the page, if any, is zero-filled.
	ReadLength int
}

// Page is the per-virtual-page backing record.
//
// Invariants:
//   - Addr is page-aligned.
//   - Loaded is true iff a frame is currently installed for Addr.
//   - Swapped and a non-nil File are mutually exclusive reload origins: a
//     swapped page reloads from Slot, a file-backed page from File, and an
//     anonymous page zero-fills.
//
// A Page is created when an address space gains a lazily-loaded segment or
// commits a new stack page, mutated only by the demand-paging resolver, and
// destroyed at address-space teardown.
type Page struct {
	// Addr is the page-aligned user virtual address this record backs.
	Addr hostarch.Addr

	// Writable is false for read-only pages.
	Writable bool

	// Loaded is true while a frame is installed for Addr.
	Loaded bool

	// Swapped is true while the page's content lives in the swap store.
	Swapped bool

	// File is the page's backing file, or nil for anonymous pages.
	File *FileBacking

	// Slot names the page's swap slot. Valid iff Swapped.
	Slot swap.Slot
}

// NewFilePage returns an unloaded page descriptor backed by file content.
func NewFilePage(addr hostarch.Addr, writable bool, fb *FileBacking) *Page {
	checkAligned(addr)
	return &Page{
		Addr:     addr,
		Writable: writable,
		File:     fb,
	}
}

// NewAnonymousPage returns an unloaded page descriptor with no backing file;
// its first load zero-fills.
func NewAnonymousPage(addr hostarch.Addr, writable bool) *Page {
	checkAligned(addr)
	return &Page{
		Addr:     addr,
		Writable: writable,
	}
}

// NewStackPage returns a committed stack page descriptor: writable, loaded,
// no backing file.
func NewStackPage(addr hostarch.Addr) *Page {
	checkAligned(addr)
	return &Page{
		Addr:     addr,
		Writable: true,
		Loaded:   true,
	}
}

// String implements fmt.Stringer.String.
func (pg *Page) String() string {
	origin := "anonymous"
	switch {
	case pg.Swapped:
		origin = fmt.Sprintf("swap slot %d", pg.Slot)
	case pg.File != nil:
		origin = fmt.Sprintf("file offset %#x", pg.File.Offset)
	}
	return fmt.Sprintf("page %s writable=%t loaded=%t (%s)", pg.Addr, pg.Writable, pg.Loaded, origin)
}

func checkAligned(addr hostarch.Addr) {
	if !addr.IsPageAligned() {
		panic(fmt.Sprintf("unaligned page address %s", addr))
	}
}
