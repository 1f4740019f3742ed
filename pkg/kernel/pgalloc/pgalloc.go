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

// Package pgalloc implements the user frame pool: a fixed number of
// page-sized physical frames handed out to the demand-paging layer.
//
// Frame content is backed by an anonymous host mapping, so frames hold real
// bytes that loads and stores through Slice observe.
package pgalloc

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/minos-kernel/minos/pkg/hostarch"
	"github.com/minos-kernel/minos/pkg/kernel/kerr"
	"github.com/minos-kernel/minos/pkg/kernel/memmap"
	"github.com/minos-kernel/minos/pkg/sync"
)

// AllocFlags control frame allocation.
type AllocFlags int

const (
	// AllocUser requests a frame from the user pool.
	AllocUser AllocFlags = 1 << iota

	// AllocZero requests that the frame content be zero-filled.
	AllocZero
)

// Frame is one physical frame from the user pool.
//
// The page reference is weak: it points at the page descriptor currently
// mapped into this frame, is set at installation time, and is valid only
// while that mapping is live. The supplemental page table remains the sole
// owner of page descriptors.
type Frame struct {
	// base is the frame's base address in the kernel direct map.
	base hostarch.Addr

	// index is the frame's position in its pool.
	index uint32

	// page is the weak back-reference described above. nil while the
	// frame is free or not yet installed.
	page *memmap.Page
}

// Base returns the frame's base address.
func (f *Frame) Base() hostarch.Addr {
	return f.base
}

// MappedPage returns the page descriptor currently installed in this frame,
// or nil.
func (f *Frame) MappedPage() *memmap.Page {
	return f.page
}

// SetMappedPage links the frame to the page descriptor mapped into it. The
// caller links at installation time and clears at eviction/free time.
func (f *Frame) SetMappedPage(pg *memmap.Page) {
	f.page = pg
}

// Pool is a user frame pool. Frames are carved from a single anonymous host
// mapping created at pool construction.
//
// Pool operations are safe to call from concurrently faulting threads.
type Pool struct {
	mu sync.Mutex

	// arena backs all frame content. Immutable after New.
	arena []byte

	// frames holds one descriptor per frame. Immutable length.
	frames []Frame

	// free is a LIFO of free frame indices.
	free []uint32
}

// New creates a Pool of numFrames frames.
func New(numFrames int) (*Pool, error) {
	if numFrames <= 0 {
		return nil, fmt.Errorf("invalid pool size %d", numFrames)
	}
	arena, err := unix.Mmap(-1, 0, numFrames*hostarch.PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("cannot create frame arena: %w", err)
	}
	p := &Pool{
		arena:  arena,
		frames: make([]Frame, numFrames),
		free:   make([]uint32, 0, numFrames),
	}
	for i := range p.frames {
		p.frames[i] = Frame{
			base:  hostarch.PhysBase + hostarch.Addr(i*hostarch.PageSize),
			index: uint32(i),
		}
	}
	// Free LIFO: push high indices first so low frames hand out first.
	for i := numFrames - 1; i >= 0; i-- {
		p.free = append(p.free, uint32(i))
	}
	return p, nil
}

// Destroy releases the pool's backing mapping. No frames may be used
// afterward.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.arena != nil {
		unix.Munmap(p.arena)
		p.arena = nil
	}
}

// Alloc obtains one frame. It fails with kerr.ErrNoFrame under memory
// pressure.
func (p *Pool) Alloc(flags AllocFlags) (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return nil, kerr.ErrNoFrame
	}
	i := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	f := &p.frames[i]
	if flags&AllocZero != 0 {
		clear(p.sliceLocked(f))
	}
	return f, nil
}

// Free returns a frame to the pool and severs its weak page reference.
func (p *Pool) Free(f *Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.page = nil
	p.free = append(p.free, f.index)
}

// FromAddr returns the frame descriptor for the frame containing addr, or
// nil if addr is outside the pool.
func (p *Pool) FromAddr(addr hostarch.Addr) *Frame {
	if addr < hostarch.PhysBase {
		return nil
	}
	i := uint32((addr - hostarch.PhysBase) >> hostarch.PageShift)
	if int(i) >= len(p.frames) {
		return nil
	}
	return &p.frames[i]
}

// Slice returns the frame's content bytes. The slice stays valid until the
// pool is destroyed.
func (p *Pool) Slice(f *Frame) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sliceLocked(f)
}

func (p *Pool) sliceLocked(f *Frame) []byte {
	off := int(f.index) * hostarch.PageSize
	return p.arena[off : off+hostarch.PageSize : off+hostarch.PageSize]
}

// FreeFrames returns the number of frames currently available.
func (p *Pool) FreeFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
