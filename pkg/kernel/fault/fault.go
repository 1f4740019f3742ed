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

// Package fault implements the page-fault resolution and exception-dispatch
// core: it classifies trapped exceptions and, for address-translation
// faults, resolves them by demand paging (file-backed load, swap-in, or
// zero-filled stack growth) or terminates the offending process.
//
// Fault handling runs on the interrupted thread's own execution context.
// Interrupts stay disabled only for the window needed to consume the
// hardware fault-address register; everything that may block (frame
// allocation, backing-store reads) runs with interrupts on.
package fault

import (
	"github.com/minos-kernel/minos/pkg/context"
	"github.com/minos-kernel/minos/pkg/hostarch"
	"github.com/minos-kernel/minos/pkg/kernel/arch"
	"github.com/minos-kernel/minos/pkg/kernel/memmap"
	"github.com/minos-kernel/minos/pkg/kernel/pgalloc"
	"github.com/minos-kernel/minos/pkg/kernel/platform"
	"github.com/minos-kernel/minos/pkg/kernel/swap"
	"github.com/minos-kernel/minos/pkg/kernel/thread"
)

// Outcome is the terminal state of one fault-handling pass.
type Outcome int

const (
	// Resolved means the fault was resolved transparently; returning
	// re-executes the faulting instruction.
	Resolved Outcome = iota

	// Killed means the faulting process was terminated (or, for a
	// kernel-context defect, the handler panicked instead of returning).
	Killed
)

// String implements fmt.Stringer.String.
func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Killed:
		return "killed"
	default:
		return "invalid"
	}
}

// Backing is the backing-store layer: it fills frame bytes with a page's
// content from its reload origin.
type Backing interface {
	// LoadFile loads pg's content from its backing file into dst,
	// zero-filling past the file content. A pg with no backing file
	// zero-fills entirely.
	LoadFile(ctx context.Context, pg *memmap.Page, dst []byte) error

	// LoadSwap loads pg's content from its swap slot into dst.
	LoadSwap(ctx context.Context, pg *memmap.Page, dst []byte) error

	// ReleaseSlot returns a swap slot to the allocator once its content
	// has been brought back in.
	ReleaseSlot(slot swap.Slot)
}

// Handler resolves the page faults of one process. All fields must be set
// before use and are immutable afterward.
//
// Distinct threads may fault concurrently through the same Handler on
// different addresses; Table, Pool and AS carry their own synchronization,
// and the Handler treats each of their operations as atomic.
type Handler struct {
	// Platform provides the trap primitives.
	Platform platform.Platform

	// AS is the faulting process's installed-mapping structure.
	AS platform.AddressSpace

	// Table is the process's supplemental page table.
	Table *memmap.PageTable

	// Pool is the user frame pool.
	Pool *pgalloc.Pool

	// Backing loads page content from files and swap.
	Backing Backing

	// Term is the process-termination primitive.
	Term thread.Terminator

	// Stats is the machine-wide fault counter.
	Stats *Stats
}

// HandlePageFault runs one fault-handling pass.
//
// Preconditions: called on the faulting thread's execution context with
// interrupts disabled, exactly once per fault, before any other work.
//
// The pass is never retried and exposes no partial state: it either returns
// Resolved, after which re-executing the faulting instruction succeeds (a
// later unrelated fault is a brand-new pass), or it terminates the process.
func (h *Handler) HandlePageFault(ctx context.Context, tf *arch.TrapFrame) Outcome {
	// Consume the fault-address register first: a nested fault would
	// overwrite it once interrupts come back on.
	addr := h.Platform.ReadFaultAddress()
	info := arch.DecodeFault(tf.Code, addr)
	h.Platform.EnableInterrupts()

	h.Stats.PageFaults.Add(1)

	if h.userAccessedKernel(ctx, info) {
		return Killed
	}
	if h.wroteReadOnlyPage(ctx, info) {
		return Killed
	}
	h.recoverStackPointer(ctx, info, tf)

	res := resolveFailed
	var err error
	if info.Addr.IsUserAddr() && info.NotPresent {
		res, err = h.resolve(ctx, info, tf)
		if res == resolveKilled {
			return Killed
		}
	}
	if res == resolveOK {
		return Resolved
	}

	ctx.Warningf("Page fault: %s: %v", info, err)
	return h.Kill(ctx, tf)
}

// userAccessedKernel terminates the process if a user-context access
// faulted on a kernel address. Resolving such a fault on the user's behalf
// would cross the security boundary, so this runs before any resolution
// attempt.
func (h *Handler) userAccessedKernel(ctx context.Context, info arch.FaultInfo) bool {
	if !info.Addr.IsKernelAddr() || !info.User {
		return false
	}
	ctx.Debugf("user access to kernel address %s", info.Addr)
	h.terminate(ctx, -1)
	return true
}

// wroteReadOnlyPage terminates the process on a write to a present,
// read-only page. It never evaluates not-present faults.
func (h *Handler) wroteReadOnlyPage(ctx context.Context, info arch.FaultInfo) bool {
	if !info.Addr.IsUserAddr() || info.NotPresent || !info.Write {
		return false
	}
	pg, ok := h.Table.Lookup(info.Addr)
	if !ok {
		// A present page this subsystem owns always has a
		// descriptor; a missing one is an invariant violation, not
		// something to pass through.
		ctx.Warningf("write fault on present page %s with no descriptor", info.Addr)
		h.terminate(ctx, -1)
		return true
	}
	if !pg.Writable {
		ctx.Debugf("write to read-only %v", pg)
		h.terminate(ctx, -1)
		return true
	}
	return false
}

// recoverStackPointer repairs a stale saved stack pointer on kernel-context
// not-present faults. System-call paths that fault on a user buffer can trap
// with a stack-pointer value that is not a valid user stack pointer; when
// the saved value lies below the stack region's floor, the value recorded in
// the thread control record at its last kernel entry replaces it, so that
// stack-growth eligibility keys off something valid. The trap frame is the
// only thing mutated.
func (h *Handler) recoverStackPointer(ctx context.Context, info arch.FaultInfo, tf *arch.TrapFrame) {
	if info.User || !info.NotPresent || tf.SP >= hostarch.StackFloor {
		return
	}
	if t := thread.FromContext(ctx); t != nil {
		ctx.Debugf("recovering stack pointer %s from %v", tf.SP, t)
		tf.SP = t.UserSP
	}
}

// terminate invokes the process-termination primitive.
func (h *Handler) terminate(ctx context.Context, status int32) {
	if t := thread.FromContext(ctx); t != nil {
		ctx.Infof("%v: exit(%d)", t, status)
	}
	h.Term.Exit(status)
}
