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

package memmap

import (
	"github.com/google/btree"

	"github.com/minos-kernel/minos/pkg/hostarch"
	"github.com/minos-kernel/minos/pkg/kernel/kerr"
	"github.com/minos-kernel/minos/pkg/sync"
)

// tableDegree is the branching factor of the page table's btree.
const tableDegree = 16

// PageTable is a process's supplemental page table: an ordered mapping from
// page-aligned virtual address to page descriptor, with at most one
// descriptor per address.
//
// PageTable operations are safe to call from concurrently faulting threads;
// each operation is atomic relative to the others.
type PageTable struct {
	mu    sync.Mutex
	pages *btree.BTreeG[*Page]
}

// NewPageTable returns an empty PageTable.
func NewPageTable() *PageTable {
	return &PageTable{
		pages: btree.NewG(tableDegree, func(a, b *Page) bool {
			return a.Addr < b.Addr
		}),
	}
}

// Lookup returns the page descriptor for the page containing addr. addr need
// not be page-aligned; it is rounded down to its containing page.
func (pt *PageTable) Lookup(addr hostarch.Addr) (*Page, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.pages.Get(&Page{Addr: addr.RoundDown()})
}

// Insert registers pg. It fails with kerr.ErrExists if a descriptor is
// already registered for pg.Addr.
func (pt *PageTable) Insert(pg *Page) error {
	checkAligned(pg.Addr)
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pt.pages.Has(pg) {
		return kerr.ErrExists
	}
	pt.pages.ReplaceOrInsert(pg)
	return nil
}

// Remove deletes and returns the descriptor for the page containing addr.
func (pt *PageTable) Remove(addr hostarch.Addr) (*Page, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.pages.Delete(&Page{Addr: addr.RoundDown()})
}

// NextRegistered returns the registered descriptor with the lowest address
// at or above addr.
func (pt *PageTable) NextRegistered(addr hostarch.Addr) (*Page, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	var found *Page
	pt.pages.AscendGreaterOrEqual(&Page{Addr: addr.RoundDown()}, func(pg *Page) bool {
		found = pg
		return false
	})
	return found, found != nil
}

// Len returns the number of registered descriptors.
func (pt *PageTable) Len() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.pages.Len()
}
