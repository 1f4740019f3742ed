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

// Package sim assembles a simulated machine from a scenario file and
// replays its fault trace through the exception subsystem.
package sim

import (
	"bytes"
	"fmt"
	"os"

	"github.com/minos-kernel/minos/minossim/config"
	"github.com/minos-kernel/minos/pkg/context"
	"github.com/minos-kernel/minos/pkg/hostarch"
	"github.com/minos-kernel/minos/pkg/kernel/arch"
	"github.com/minos-kernel/minos/pkg/kernel/backing"
	"github.com/minos-kernel/minos/pkg/kernel/fault"
	"github.com/minos-kernel/minos/pkg/kernel/interrupt"
	"github.com/minos-kernel/minos/pkg/kernel/memmap"
	"github.com/minos-kernel/minos/pkg/kernel/pgalloc"
	"github.com/minos-kernel/minos/pkg/kernel/platform/simplatform"
	"github.com/minos-kernel/minos/pkg/kernel/swap"
	"github.com/minos-kernel/minos/pkg/kernel/thread"
)

// exitLatch implements thread.Terminator for simulation. The real
// primitive does not return to the faulting context; in simulation the
// latch records the status and the replay loop stops consuming events.
type exitLatch struct {
	exited bool
	status int32
}

// Exit implements thread.Terminator.Exit.
func (e *exitLatch) Exit(status int32) {
	if e.exited {
		return
	}
	e.exited = true
	e.status = status
}

// Result is one replayed fault and its terminal state.
type Result struct {
	Fault   config.Fault
	Outcome fault.Outcome
	Skipped bool
}

// Report is the outcome of a whole scenario replay.
type Report struct {
	Results []Result

	// Exited reports whether the process was terminated, and with what
	// status.
	Exited     bool
	ExitStatus int32

	Stats *fault.Stats

	// MappedPages and FreeFrames describe the machine after the replay.
	MappedPages int
	FreeFrames  int
	FreeSlots   int
}

// Sim is one scenario's machine, process, and exception subsystem.
type Sim struct {
	conf    *config.Config
	machine *simplatform.Machine
	as      *simplatform.AddressSpace
	table   *memmap.PageTable
	pool    *pgalloc.Pool
	swap    *swap.Store
	handler *fault.Handler
	disp    *interrupt.Dispatcher
	exit    *exitLatch
	ctx     context.Context
}

// New builds the simulated machine described by conf and registers its
// process's segments. The caller owns the returned Sim and must Destroy it.
func New(ctx context.Context, conf *config.Config) (*Sim, error) {
	pool, err := pgalloc.New(conf.Machine.Frames)
	if err != nil {
		return nil, fmt.Errorf("creating frame pool: %w", err)
	}

	var sw *swap.Store
	if conf.Machine.SwapSlots > 0 {
		sw, err = swap.NewStore(conf.Machine.SwapSlots)
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("creating swap store: %w", err)
		}
	}

	s := &Sim{
		conf:    conf,
		machine: simplatform.NewMachine(),
		as:      simplatform.NewAddressSpace(conf.Machine.MapLimit),
		table:   memmap.NewPageTable(),
		pool:    pool,
		swap:    sw,
		exit:    &exitLatch{},
	}
	s.handler = &fault.Handler{
		Platform: s.machine,
		AS:       s.as,
		Table:    s.table,
		Pool:     pool,
		Backing:  backing.NewStore(sw),
		Term:     s.exit,
		Stats:    &fault.Stats{},
	}
	s.disp = interrupt.NewDispatcher()
	s.handler.Init(s.disp)

	s.ctx = thread.WithThread(ctx, &thread.Thread{
		ID:     conf.Thread.ID,
		Name:   conf.Thread.Name,
		UserSP: conf.Thread.StackPointer.Addr(),
	})

	for i := range conf.Segments {
		if err := s.registerSegment(&conf.Segments[i]); err != nil {
			s.Destroy()
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return s, nil
}

// Destroy releases the machine's resources.
func (s *Sim) Destroy() {
	s.pool.Destroy()
}

// registerSegment installs seg's page descriptors, page by page. A
// swapped segment additionally materializes its content and pushes it out
// to swap slots, leaving descriptors that reload from swap.
func (s *Sim) registerSegment(seg *config.Segment) error {
	var file *bytes.Reader
	if seg.File != "" {
		b, err := os.ReadFile(seg.File)
		if err != nil {
			return fmt.Errorf("reading segment file: %w", err)
		}
		file = bytes.NewReader(b)
	}

	remaining := seg.Length
	for i := 0; i < seg.Pages; i++ {
		va := seg.Addr.Addr() + hostarch.Addr(i*hostarch.PageSize)
		n := min(remaining, hostarch.PageSize)
		remaining -= n

		var pg *memmap.Page
		if file != nil && n > 0 {
			pg = memmap.NewFilePage(va, seg.Writable, &memmap.FileBacking{
				File:       file,
				Offset:     seg.Offset + int64(i*hostarch.PageSize),
				ReadLength: n,
			})
		} else {
			pg = memmap.NewAnonymousPage(va, seg.Writable)
		}

		if seg.Swapped {
			if err := s.pushToSwap(pg); err != nil {
				return err
			}
		}
		if err := s.table.Insert(pg); err != nil {
			return fmt.Errorf("registering %s: %w", va, err)
		}
	}
	return nil
}

// pushToSwap writes pg's content to a fresh swap slot and rewrites the
// descriptor to reload from it.
func (s *Sim) pushToSwap(pg *memmap.Page) error {
	slot, err := s.swap.Alloc()
	if err != nil {
		return fmt.Errorf("pushing %v to swap: %w", pg, err)
	}
	buf := make([]byte, hostarch.PageSize)
	if err := s.handler.Backing.LoadFile(s.ctx, pg, buf); err != nil {
		return err
	}
	if err := s.swap.Write(slot, buf); err != nil {
		return err
	}
	pg.File = nil
	pg.Swapped = true
	pg.Slot = slot
	return nil
}

// Run replays the scenario's fault trace. Events after a process
// termination are recorded as skipped.
func (s *Sim) Run() *Report {
	rep := &Report{Stats: s.handler.Stats}
	for _, f := range s.conf.Faults {
		if s.exit.exited {
			s.ctx.Infof("process exited, skipping fault at %s", f.Addr.Addr())
			rep.Results = append(rep.Results, Result{Fault: f, Skipped: true})
			continue
		}
		rep.Results = append(rep.Results, Result{
			Fault:   f,
			Outcome: s.replay(f),
		})
	}
	rep.Exited = s.exit.exited
	rep.ExitStatus = s.exit.status
	rep.MappedPages = s.as.Mapped()
	rep.FreeFrames = s.pool.FreeFrames()
	if s.swap != nil {
		rep.FreeSlots = s.swap.FreeSlots()
	}
	return rep
}

// replay raises one page fault on the simulated machine and dispatches it.
func (s *Sim) replay(f config.Fault) fault.Outcome {
	var code uint64
	if f.Present {
		code |= arch.FaultPresent
	}
	if f.Access == "write" {
		code |= arch.FaultWrite
	}
	origin := arch.KernelOrigin
	if f.Origin != "kernel" {
		code |= arch.FaultUser
		origin = arch.UserOrigin
	}

	sp := s.conf.Thread.StackPointer.Addr()
	if f.SP != nil {
		sp = f.SP.Addr()
	}
	tf := &arch.TrapFrame{
		Vector: interrupt.VecPageFault,
		Code:   code,
		Origin: origin,
		SP:     sp,
	}

	s.machine.Trap(f.Addr.Addr())
	return s.handler.HandlePageFault(s.ctx, tf)
}

// PageContent returns the installed content of the page containing va, for
// inspection after a replay.
func (s *Sim) PageContent(va hostarch.Addr) ([]byte, bool) {
	f, _, ok := s.as.Lookup(va)
	if !ok {
		return nil, false
	}
	return s.pool.Slice(f), true
}
