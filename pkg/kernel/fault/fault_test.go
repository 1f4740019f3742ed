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
	"bytes"
	"strings"
	"testing"

	"github.com/minos-kernel/minos/pkg/context"
	"github.com/minos-kernel/minos/pkg/hostarch"
	"github.com/minos-kernel/minos/pkg/kernel/arch"
	"github.com/minos-kernel/minos/pkg/kernel/backing"
	"github.com/minos-kernel/minos/pkg/kernel/interrupt"
	"github.com/minos-kernel/minos/pkg/kernel/memmap"
	"github.com/minos-kernel/minos/pkg/kernel/pgalloc"
	"github.com/minos-kernel/minos/pkg/kernel/platform/simplatform"
	"github.com/minos-kernel/minos/pkg/kernel/swap"
	"github.com/minos-kernel/minos/pkg/kernel/thread"
)

const page = hostarch.PageSize

// exitRecorder records process termination instead of performing it.
type exitRecorder struct {
	exited bool
	status int32
}

func (e *exitRecorder) Exit(status int32) {
	e.exited = true
	e.status = status
}

// countingBacking wraps a Backing and counts loads.
type countingBacking struct {
	Backing
	fileLoads int
	swapLoads int
}

func (b *countingBacking) LoadFile(ctx context.Context, pg *memmap.Page, dst []byte) error {
	b.fileLoads++
	return b.Backing.LoadFile(ctx, pg, dst)
}

func (b *countingBacking) LoadSwap(ctx context.Context, pg *memmap.Page, dst []byte) error {
	b.swapLoads++
	return b.Backing.LoadSwap(ctx, pg, dst)
}

type testEnv struct {
	machine *simplatform.Machine
	as      *simplatform.AddressSpace
	table   *memmap.PageTable
	pool    *pgalloc.Pool
	swap    *swap.Store
	backing *countingBacking
	exit    *exitRecorder
	handler *Handler
	ctx     context.Context
	th      *thread.Thread
}

func newEnv(t *testing.T, frames, maxMappings int) *testEnv {
	t.Helper()
	pool, err := pgalloc.New(frames)
	if err != nil {
		t.Fatalf("pgalloc.New: %v", err)
	}
	t.Cleanup(pool.Destroy)
	sw, err := swap.NewStore(8)
	if err != nil {
		t.Fatalf("swap.NewStore: %v", err)
	}

	env := &testEnv{
		machine: simplatform.NewMachine(),
		as:      simplatform.NewAddressSpace(maxMappings),
		table:   memmap.NewPageTable(),
		pool:    pool,
		swap:    sw,
		backing: &countingBacking{Backing: backing.NewStore(sw)},
		exit:    &exitRecorder{},
		th:      &thread.Thread{ID: 2, Name: "user-prog", UserSP: hostarch.PhysBase - 4},
	}
	env.handler = &Handler{
		Platform: env.machine,
		AS:       env.as,
		Table:    env.table,
		Pool:     pool,
		Backing:  env.backing,
		Term:     env.exit,
		Stats:    &Stats{},
	}
	env.ctx = thread.WithThread(context.Background(), env.th)
	return env
}

// fire simulates taking a page fault and runs one handling pass.
func (env *testEnv) fire(addr hostarch.Addr, code uint64, origin arch.Origin, sp hostarch.Addr) Outcome {
	env.machine.Trap(addr)
	tf := &arch.TrapFrame{
		Vector: interrupt.VecPageFault,
		Code:   code,
		Origin: origin,
		IP:     hostarch.Addr(0x8048000),
		SP:     sp,
	}
	return env.handler.HandlePageFault(env.ctx, tf)
}

// pageContent returns the installed frame content for va.
func (env *testEnv) pageContent(t *testing.T, va hostarch.Addr) []byte {
	t.Helper()
	f, _, ok := env.as.Lookup(va)
	if !ok {
		t.Fatalf("no mapping installed at %s", va)
	}
	return env.pool.Slice(f)
}

const userNotPresent = arch.FaultUser // Present bit clear.

func TestFileBackedLoad(t *testing.T) {
	env := newEnv(t, 4, 0)

	content := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	const va = hostarch.Addr(0x8048000)
	pg := memmap.NewFilePage(va, false, &memmap.FileBacking{
		File:       bytes.NewReader(content),
		Offset:     0,
		ReadLength: len(content),
	})
	if err := env.table.Insert(pg); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if got := env.fire(va+2, userNotPresent, arch.UserOrigin, env.th.UserSP); got != Resolved {
		t.Fatalf("fault outcome = %v, want %v", got, Resolved)
	}
	if !pg.Loaded {
		t.Errorf("descriptor not marked loaded")
	}
	b := env.pageContent(t, va)
	if !bytes.Equal(b[:4], content) {
		t.Errorf("page prefix = %x, want %x", b[:4], content)
	}
	for i := 4; i < page; i++ {
		if b[i] != 0 {
			t.Fatalf("byte %d = %#x, want zero fill past file content", i, b[i])
		}
	}
	if env.exit.exited {
		t.Errorf("process exited on a resolvable fault")
	}
	if got := env.handler.Stats.PageFaults.Load(); got != 1 {
		t.Errorf("fault count = %d, want 1", got)
	}
}

func TestSwapIn(t *testing.T) {
	env := newEnv(t, 4, 0)

	slot, err := env.swap.Alloc()
	if err != nil {
		t.Fatalf("swap Alloc: %v", err)
	}
	want := make([]byte, page)
	for i := range want {
		want[i] = byte(i % 253)
	}
	if err := env.swap.Write(slot, want); err != nil {
		t.Fatalf("swap Write: %v", err)
	}
	freeBefore := env.swap.FreeSlots()

	const va = hostarch.Addr(0x40000000)
	pg := memmap.NewAnonymousPage(va, true)
	pg.Swapped = true
	pg.Slot = slot
	if err := env.table.Insert(pg); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if got := env.fire(va, arch.FaultUser|arch.FaultWrite, arch.UserOrigin, env.th.UserSP); got != Resolved {
		t.Fatalf("fault outcome = %v, want %v", got, Resolved)
	}
	if !pg.Loaded || pg.Swapped {
		t.Errorf("descriptor loaded=%t swapped=%t, want true/false", pg.Loaded, pg.Swapped)
	}
	if !bytes.Equal(env.pageContent(t, va), want) {
		t.Errorf("swap-in content mismatch")
	}
	if got := env.swap.FreeSlots(); got != freeBefore+1 {
		t.Errorf("swap slot not released: free %d, want %d", got, freeBefore+1)
	}
	if env.backing.swapLoads != 1 || env.backing.fileLoads != 0 {
		t.Errorf("loads = %d file/%d swap, want 0/1", env.backing.fileLoads, env.backing.swapLoads)
	}
}

func TestStackGrowthScenarioA(t *testing.T) {
	env := newEnv(t, 4, 0)

	sp := hostarch.PhysBase - 4
	va := hostarch.PhysBase - 20 // 16 bytes below sp, above the floor.
	if got := env.fire(va, userNotPresent|arch.FaultWrite, arch.UserOrigin, sp); got != Resolved {
		t.Fatalf("fault outcome = %v, want %v", got, Resolved)
	}

	pg, ok := env.table.Lookup(va)
	if !ok {
		t.Fatalf("no descriptor registered for the new stack page")
	}
	if !pg.Writable || !pg.Loaded || pg.File != nil || pg.Swapped {
		t.Errorf("stack page state: %v", pg)
	}
	_, writable, ok := env.as.Lookup(va)
	if !ok || !writable {
		t.Errorf("stack page mapping: writable=%t ok=%t, want writable mapping", writable, ok)
	}
	for i, c := range env.pageContent(t, va) {
		if c != 0 {
			t.Fatalf("stack page byte %d = %#x, want zero", i, c)
		}
	}
}

func TestStackGrowthScenarioB(t *testing.T) {
	env := newEnv(t, 4, 0)
	freeBefore := env.pool.FreeFrames()

	va := hostarch.StackFloor - 100 // Below the 8 MiB floor.
	if got := env.fire(va, userNotPresent|arch.FaultWrite, arch.UserOrigin, va+4); got != Killed {
		t.Fatalf("fault outcome = %v, want %v", got, Killed)
	}
	if !env.exit.exited || env.exit.status != -1 {
		t.Errorf("exit = %t status %d, want exit(-1)", env.exit.exited, env.exit.status)
	}
	if got := env.pool.FreeFrames(); got != freeBefore {
		t.Errorf("frames allocated on a rejected fault: %d, want %d free", got, freeBefore)
	}
	if env.table.Len() != 0 {
		t.Errorf("descriptors registered on a rejected fault")
	}
}

func TestStackGrowthFarBelowSP(t *testing.T) {
	env := newEnv(t, 4, 0)

	sp := hostarch.PhysBase - 4
	va := sp - 33 // One byte past the probe slack.
	if got := env.fire(va, userNotPresent|arch.FaultWrite, arch.UserOrigin, sp); got != Killed {
		t.Fatalf("fault outcome = %v, want %v", got, Killed)
	}
	if !env.exit.exited || env.exit.status != -1 {
		t.Errorf("exit = %t status %d, want exit(-1)", env.exit.exited, env.exit.status)
	}
}

func TestStackGrowthWalkStopsAtRegistered(t *testing.T) {
	env := newEnv(t, 8, 0)

	// Highest pages: | fault | +1 | +2 | registered | ... PhysBase.
	registered := hostarch.PhysBase - page
	faultPage := registered - 3*page
	if err := env.table.Insert(memmap.NewStackPage(registered)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	sp := faultPage + 8
	if got := env.fire(faultPage+8, userNotPresent|arch.FaultWrite, arch.UserOrigin, sp); got != Resolved {
		t.Fatalf("fault outcome = %v, want %v", got, Resolved)
	}

	// Every page from the faulting one up to (excluding) the registered
	// page must now be committed.
	for va := faultPage; va < registered; va += page {
		pg, ok := env.table.Lookup(va)
		if !ok || !pg.Loaded || !pg.Writable {
			t.Errorf("walk page %s not committed (%v, %t)", va, pg, ok)
		}
		if _, _, ok := env.as.Lookup(va); !ok {
			t.Errorf("walk page %s has no installed mapping", va)
		}
	}
	// The pre-registered page was not remapped.
	if _, _, ok := env.as.Lookup(registered); ok {
		t.Errorf("walk touched the already-registered page")
	}
	if got := env.table.Len(); got != 4 {
		t.Errorf("table has %d descriptors, want 4", got)
	}
}

func TestWriteProtection(t *testing.T) {
	env := newEnv(t, 4, 0)

	// Install a loaded read-only page the way a resolved fault leaves it.
	const va = hostarch.Addr(0x8048000)
	pg := memmap.NewFilePage(va, false, nil)
	if err := env.table.Insert(pg); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got := env.fire(va, userNotPresent, arch.UserOrigin, env.th.UserSP); got != Resolved {
		t.Fatalf("setup fault outcome = %v, want %v", got, Resolved)
	}
	mappedBefore := env.as.Mapped()

	// Now a write rights-violation on the present page.
	if got := env.fire(va+8, arch.FaultPresent|arch.FaultWrite|arch.FaultUser, arch.UserOrigin, env.th.UserSP); got != Killed {
		t.Fatalf("write fault outcome = %v, want %v", got, Killed)
	}
	if !env.exit.exited || env.exit.status != -1 {
		t.Errorf("exit = %t status %d, want exit(-1)", env.exit.exited, env.exit.status)
	}
	if got := env.as.Mapped(); got != mappedBefore {
		t.Errorf("mappings changed on a rejected write: %d, want %d", got, mappedBefore)
	}
	// The guard path never re-attempts a load.
	if env.backing.fileLoads != 1 {
		t.Errorf("file loads = %d, want 1", env.backing.fileLoads)
	}
}

func TestWriteProtectionNoDescriptor(t *testing.T) {
	env := newEnv(t, 4, 0)

	// A present write fault with no descriptor is an invariant violation
	// and must be fatal, not passed through.
	if got := env.fire(hostarch.Addr(0x1000), arch.FaultPresent|arch.FaultWrite|arch.FaultUser, arch.UserOrigin, env.th.UserSP); got != Killed {
		t.Fatalf("fault outcome = %v, want %v", got, Killed)
	}
	if !env.exit.exited || env.exit.status != -1 {
		t.Errorf("exit = %t status %d, want exit(-1)", env.exit.exited, env.exit.status)
	}
}

func TestKernelAccessGuard(t *testing.T) {
	for _, code := range []uint64{
		arch.FaultUser,
		arch.FaultUser | arch.FaultWrite,
		arch.FaultUser | arch.FaultPresent,
		arch.FaultUser | arch.FaultPresent | arch.FaultWrite,
	} {
		env := newEnv(t, 4, 0)
		va := hostarch.PhysBase + hostarch.Addr(page)
		if got := env.fire(va, code, arch.UserOrigin, env.th.UserSP); got != Killed {
			t.Errorf("code %#x: outcome = %v, want %v", code, got, Killed)
		}
		if !env.exit.exited || env.exit.status != -1 {
			t.Errorf("code %#x: exit = %t status %d, want exit(-1)", code, env.exit.exited, env.exit.status)
		}
	}
}

func TestIdempotence(t *testing.T) {
	env := newEnv(t, 4, 0)

	const va = hostarch.Addr(0x8048000)
	pg := memmap.NewFilePage(va, false, &memmap.FileBacking{
		File:       bytes.NewReader([]byte{1, 2, 3}),
		ReadLength: 3,
	})
	if err := env.table.Insert(pg); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got := env.fire(va, userNotPresent, arch.UserOrigin, env.th.UserSP); got != Resolved {
		t.Fatalf("first fault outcome = %v, want %v", got, Resolved)
	}

	// Re-triggering a fault on the now-present page routes to the guard
	// path and never re-attempts the load.
	if got := env.fire(va, arch.FaultPresent|arch.FaultWrite|arch.FaultUser, arch.UserOrigin, env.th.UserSP); got != Killed {
		t.Fatalf("second fault outcome = %v, want %v", got, Killed)
	}
	if env.backing.fileLoads != 1 {
		t.Errorf("file loads = %d, want exactly 1", env.backing.fileLoads)
	}
	if !pg.Loaded {
		t.Errorf("descriptor lost loaded state")
	}
}

func TestLoadedDescriptorInconsistency(t *testing.T) {
	env := newEnv(t, 4, 0)

	const va = hostarch.Addr(0x8048000)
	pg := memmap.NewAnonymousPage(va, true)
	pg.Loaded = true // Claims a frame, but none is installed.
	if err := env.table.Insert(pg); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if got := env.fire(va, userNotPresent, arch.UserOrigin, env.th.UserSP); got != Killed {
		t.Fatalf("fault outcome = %v, want %v", got, Killed)
	}
	if env.backing.fileLoads != 0 || env.backing.swapLoads != 0 {
		t.Errorf("inconsistent descriptor was loaded anyway")
	}
}

func TestFrameExhaustion(t *testing.T) {
	env := newEnv(t, 1, 0)

	// Drain the pool.
	if _, err := env.pool.Alloc(pgalloc.AllocUser); err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	const va = hostarch.Addr(0x8048000)
	pg := memmap.NewFilePage(va, true, nil)
	if err := env.table.Insert(pg); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got := env.fire(va, userNotPresent|arch.FaultWrite, arch.UserOrigin, env.th.UserSP); got != Killed {
		t.Fatalf("fault outcome = %v, want %v", got, Killed)
	}
	// The descriptor must be exactly as if no load had been attempted.
	if pg.Loaded || pg.Swapped {
		t.Errorf("descriptor mutated by failed load: %v", pg)
	}
	if !env.exit.exited || env.exit.status != -1 {
		t.Errorf("exit = %t status %d, want exit(-1)", env.exit.exited, env.exit.status)
	}
}

func TestMapLimitDuringWalk(t *testing.T) {
	env := newEnv(t, 8, 1)
	freeBefore := env.pool.FreeFrames()

	va := hostarch.PhysBase - 2*page // Two pages to commit; only one fits.
	if got := env.fire(va, userNotPresent|arch.FaultWrite, arch.UserOrigin, va+4); got != Killed {
		t.Fatalf("fault outcome = %v, want %v", got, Killed)
	}
	// The failed page's frame was released; the successful page keeps its.
	if got := env.pool.FreeFrames(); got != freeBefore-1 {
		t.Errorf("free frames = %d, want %d", got, freeBefore-1)
	}
}

func TestStackPointerRecovery(t *testing.T) {
	env := newEnv(t, 4, 0)
	env.th.UserSP = hostarch.PhysBase - 4

	// Kernel-context fault on a user buffer with a garbage saved SP. The
	// repaired SP makes the fault an eligible stack growth.
	va := hostarch.PhysBase - 24
	env.machine.Trap(va)
	tf := &arch.TrapFrame{
		Vector: interrupt.VecPageFault,
		Code:   arch.FaultWrite, // Kernel context, not present.
		Origin: arch.KernelOrigin,
		SP:     hostarch.Addr(0x100), // Below the stack floor.
	}
	if got := env.handler.HandlePageFault(env.ctx, tf); got != Resolved {
		t.Fatalf("fault outcome = %v, want %v", got, Resolved)
	}
	if tf.SP != env.th.UserSP {
		t.Errorf("trap frame SP = %s, want recovered %s", tf.SP, env.th.UserSP)
	}
	if _, ok := env.table.Lookup(va); !ok {
		t.Errorf("no stack page committed after recovery")
	}
}

func TestStackPointerNotRecoveredWhenValid(t *testing.T) {
	env := newEnv(t, 4, 0)
	env.th.UserSP = hostarch.Addr(0x1000)

	sp := hostarch.PhysBase - 8
	va := hostarch.PhysBase - 16
	env.machine.Trap(va)
	tf := &arch.TrapFrame{
		Vector: interrupt.VecPageFault,
		Code:   arch.FaultWrite,
		Origin: arch.KernelOrigin,
		SP:     sp, // Inside the stack region; must stay untouched.
	}
	if got := env.handler.HandlePageFault(env.ctx, tf); got != Resolved {
		t.Fatalf("fault outcome = %v, want %v", got, Resolved)
	}
	if tf.SP != sp {
		t.Errorf("trap frame SP = %s, want untouched %s", tf.SP, sp)
	}
}

func TestKillUserOrigin(t *testing.T) {
	env := newEnv(t, 1, 0)
	tf := &arch.TrapFrame{Vector: interrupt.VecDivideError, Origin: arch.UserOrigin}
	if got := env.handler.Kill(env.ctx, tf); got != Killed {
		t.Errorf("Kill = %v, want %v", got, Killed)
	}
	if !env.exit.exited || env.exit.status != -1 {
		t.Errorf("exit = %t status %d, want exit(-1)", env.exit.exited, env.exit.status)
	}
}

func TestKillUnknownOrigin(t *testing.T) {
	env := newEnv(t, 1, 0)
	tf := &arch.TrapFrame{Vector: interrupt.VecGeneralProtection, Origin: arch.UnknownOrigin}
	if got := env.handler.Kill(env.ctx, tf); got != Killed {
		t.Errorf("Kill = %v, want %v", got, Killed)
	}
	if !env.exit.exited {
		t.Errorf("unknown origin did not terminate the process")
	}
}

func TestKillKernelOriginPanics(t *testing.T) {
	env := newEnv(t, 1, 0)
	tf := &arch.TrapFrame{Vector: interrupt.VecInvalidOpcode, Origin: arch.KernelOrigin}
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("kernel-origin Kill did not panic")
		}
		if s, ok := r.(string); !ok || !strings.Contains(s, "kernel bug") {
			t.Errorf("panic = %v, want kernel bug diagnostic", r)
		}
		if env.exit.exited {
			t.Errorf("kernel defect terminated the process instead of the system")
		}
	}()
	env.handler.Kill(env.ctx, tf)
}

func TestUnresolvedKernelFaultPanics(t *testing.T) {
	env := newEnv(t, 4, 0)

	// A kernel-context fault on an unmapped kernel address resolves
	// nothing and must escalate to a kernel panic.
	va := hostarch.PhysBase + hostarch.Addr(4*page)
	env.machine.Trap(va)
	tf := &arch.TrapFrame{
		Vector: interrupt.VecPageFault,
		Code:   0, // Kernel read, not present.
		Origin: arch.KernelOrigin,
		SP:     hostarch.PhysBase + hostarch.Addr(page),
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("unresolved kernel fault did not panic")
		}
	}()
	env.handler.HandlePageFault(env.ctx, tf)
}

func TestInitRegistersVectors(t *testing.T) {
	env := newEnv(t, 4, 0)
	d := interrupt.NewDispatcher()
	env.handler.Init(d)

	for _, vec := range []int{
		interrupt.VecDivideError,
		interrupt.VecDebug,
		interrupt.VecBreakpoint,
		interrupt.VecOverflow,
		interrupt.VecBoundRange,
		interrupt.VecInvalidOpcode,
		interrupt.VecDeviceNotAvailable,
		interrupt.VecSegmentNotPresent,
		interrupt.VecStackFault,
		interrupt.VecGeneralProtection,
		interrupt.VecFloatingPointError,
		interrupt.VecSIMDError,
		interrupt.VecPageFault,
	} {
		if !d.Registered(vec) {
			t.Errorf("vector %#04x (%s) not registered", vec, interrupt.Name(vec))
		}
	}

	// A dispatched breakpoint from user context reaches the kill path.
	if !d.Dispatch(env.ctx, &arch.TrapFrame{Vector: interrupt.VecBreakpoint, Origin: arch.UserOrigin}) {
		t.Fatalf("breakpoint did not dispatch")
	}
	if !env.exit.exited {
		t.Errorf("dispatched breakpoint did not terminate the process")
	}

	// A dispatched page fault runs a full resolution pass.
	sp := hostarch.PhysBase - 4
	va := hostarch.PhysBase - 20
	env.machine.Trap(va)
	d.Dispatch(env.ctx, &arch.TrapFrame{
		Vector: interrupt.VecPageFault,
		Code:   userNotPresent | arch.FaultWrite,
		Origin: arch.UserOrigin,
		SP:     sp,
	})
	if _, ok := env.table.Lookup(va); !ok {
		t.Errorf("dispatched page fault resolved nothing")
	}
}

func TestFaultCounter(t *testing.T) {
	env := newEnv(t, 4, 0)
	sp := hostarch.PhysBase - 4
	env.fire(hostarch.PhysBase-20, userNotPresent|arch.FaultWrite, arch.UserOrigin, sp)
	env.fire(hostarch.StackFloor-100, userNotPresent, arch.UserOrigin, sp)
	if got := env.handler.Stats.PageFaults.Load(); got != 2 {
		t.Errorf("fault count = %d, want 2", got)
	}
	if got := env.handler.Stats.String(); !strings.Contains(got, "2 page faults") {
		t.Errorf("Stats.String() = %q", got)
	}
}
