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

package fault

import (
	"fmt"
	"time"

	"github.com/minos-kernel/minos/pkg/context"
	"github.com/minos-kernel/minos/pkg/hostarch"
	"github.com/minos-kernel/minos/pkg/kernel/arch"
	"github.com/minos-kernel/minos/pkg/kernel/kerr"
	"github.com/minos-kernel/minos/pkg/kernel/memmap"
	"github.com/minos-kernel/minos/pkg/kernel/pgalloc"
	"github.com/minos-kernel/minos/pkg/kernel/swap"
	"github.com/minos-kernel/minos/pkg/log"
)

// stackSlack is how far below the current stack pointer a fault may land
// and still count as stack growth. Bulk multi-word pushes probe up to 32
// bytes below the stack pointer before writing.
const stackSlack = 32

// memPressureLog throttles allocation-failure warnings, which otherwise
// repeat for every faulting thread under sustained pressure.
var memPressureLog = log.BasicRateLimitedLogger(5 * time.Second)

type resolveResult int

const (
	resolveOK resolveResult = iota
	resolveFailed
	resolveKilled
)

// resolve handles a legitimate not-present user fault: reload through an
// existing page descriptor if one is registered, otherwise consider the
// fault a stack-growth candidate.
//
// Preconditions: info.Addr is a user address, info.NotPresent is true, and
// no guard terminated the process.
func (h *Handler) resolve(ctx context.Context, info arch.FaultInfo, tf *arch.TrapFrame) (resolveResult, error) {
	if pg, ok := h.Table.Lookup(info.Addr); ok {
		if err := h.loadExisting(ctx, pg); err != nil {
			return resolveFailed, err
		}
		return resolveOK, nil
	}
	return h.growStack(ctx, info, tf)
}

// loadExisting brings a registered, not-yet-loaded page in from its reload
// origin. On failure the descriptor is left exactly as if no load had been
// attempted.
func (h *Handler) loadExisting(ctx context.Context, pg *memmap.Page) error {
	if pg.Loaded {
		// A not-present fault cannot reach a loaded page; the page
		// table and the installed mappings disagree.
		return fmt.Errorf("%w: not-present fault on loaded %v", kerr.ErrInconsistent, pg)
	}

	f, err := h.Pool.Alloc(pgalloc.AllocUser | pgalloc.AllocZero)
	if err != nil {
		memPressureLog.Warningf("no frame for %v: %v", pg, err)
		return err
	}
	dst := h.Pool.Slice(f)
	if pg.Swapped {
		err = h.Backing.LoadSwap(ctx, pg, dst)
	} else {
		err = h.Backing.LoadFile(ctx, pg, dst)
	}
	if err != nil {
		h.Pool.Free(f)
		return err
	}
	if err := h.AS.Map(pg.Addr, f, pg.Writable); err != nil {
		h.Pool.Free(f)
		return err
	}

	// All sub-steps succeeded; only now may the descriptor change.
	f.SetMappedPage(pg)
	if pg.Swapped {
		slot := pg.Slot
		pg.Swapped = false
		pg.Slot = swap.NilSlot
		h.Backing.ReleaseSlot(slot)
	}
	pg.Loaded = true
	ctx.Debugf("loaded %v", pg)
	return nil
}

// growStack commits new stack pages for a fault below the current stack
// pointer. The faulting address must lie within stackSlack bytes below the
// stack pointer and inside the stack region; anything else is a policy
// rejection that terminates the process directly, never generic-failure
// diagnostics.
func (h *Handler) growStack(ctx context.Context, info arch.FaultInfo, tf *arch.TrapFrame) (resolveResult, error) {
	if info.Addr < hostarch.StackFloor || info.Addr+stackSlack < tf.SP {
		ctx.Debugf("fault at %s is not stack growth (sp %s)", info.Addr, tf.SP)
		h.terminate(ctx, -1)
		return resolveKilled, nil
	}

	// Commit every page from the faulting page up to the first page
	// already registered. A single instruction can fault across several
	// unmapped pages at once; walking covers them in one pass. The
	// explicit bound keeps the walk finite even against an inconsistent
	// page table.
	for pa := info.Addr.RoundDown(); pa < hostarch.PhysBase; pa += hostarch.PageSize {
		if _, ok := h.Table.Lookup(pa); ok {
			break
		}
		if err := h.commitStackPage(ctx, pa); err != nil {
			return resolveFailed, err
		}
	}
	return resolveOK, nil
}

// commitStackPage maps one zero-filled, writable stack page at pa and
// registers its descriptor. Install success followed by registration
// failure surfaces as failure, with the install unwound.
func (h *Handler) commitStackPage(ctx context.Context, pa hostarch.Addr) error {
	f, err := h.Pool.Alloc(pgalloc.AllocUser | pgalloc.AllocZero)
	if err != nil {
		memPressureLog.Warningf("no frame for stack page %s: %v", pa, err)
		return err
	}
	if err := h.AS.Map(pa, f, true); err != nil {
		h.Pool.Free(f)
		return err
	}
	pg := memmap.NewStackPage(pa)
	f.SetMappedPage(pg)
	if err := h.Table.Insert(pg); err != nil {
		h.AS.Unmap(pa)
		h.Pool.Free(f)
		return err
	}
	ctx.Debugf("committed stack page %s", pa)
	return nil
}
