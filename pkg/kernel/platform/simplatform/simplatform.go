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

// Package simplatform implements platform.Platform and platform.AddressSpace
// in software, for tests and the trace simulator.
package simplatform

import (
	"fmt"

	"github.com/minos-kernel/minos/pkg/atomicbitops"
	"github.com/minos-kernel/minos/pkg/hostarch"
	"github.com/minos-kernel/minos/pkg/kernel/kerr"
	"github.com/minos-kernel/minos/pkg/kernel/pgalloc"
	"github.com/minos-kernel/minos/pkg/sync"
)

// Machine simulates the trap-level platform primitives: the interrupt flag
// and the fault-address register.
type Machine struct {
	// intrEnabled is the simulated interrupt flag.
	intrEnabled atomicbitops.Bool

	mu sync.Mutex

	// faultAddr simulates the hardware fault-address register. Any new
	// trap overwrites it, which is why it must be consumed before
	// interrupts are re-enabled.
	faultAddr hostarch.Addr
}

// NewMachine returns a Machine with interrupts enabled, as at the end of
// kernel initialization.
func NewMachine() *Machine {
	m := &Machine{}
	m.intrEnabled.Store(true)
	return m
}

// Trap simulates taking a page fault: the fault-address register latches
// addr and interrupts are turned off, exactly as trap entry through an
// interrupt gate would leave the machine.
func (m *Machine) Trap(addr hostarch.Addr) {
	m.mu.Lock()
	m.faultAddr = addr
	m.mu.Unlock()
	m.intrEnabled.Store(false)
}

// ReadFaultAddress implements platform.Platform.ReadFaultAddress.
func (m *Machine) ReadFaultAddress() hostarch.Addr {
	if m.intrEnabled.Load() {
		panic("fault-address register read with interrupts enabled")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.faultAddr
}

// EnableInterrupts implements platform.Platform.EnableInterrupts.
func (m *Machine) EnableInterrupts() {
	m.intrEnabled.Store(true)
}

// DisableInterrupts implements platform.Platform.DisableInterrupts.
func (m *Machine) DisableInterrupts() {
	m.intrEnabled.Store(false)
}

// InterruptsEnabled implements platform.Platform.InterruptsEnabled.
func (m *Machine) InterruptsEnabled() bool {
	return m.intrEnabled.Load()
}

type mapping struct {
	frame    *pgalloc.Frame
	writable bool
}

// AddressSpace simulates one process's installed mappings. maxMappings
// bounds the mapping structure so that installation failure under pressure
// is exercisable.
type AddressSpace struct {
	mu          sync.Mutex
	mappings    map[hostarch.Addr]mapping
	maxMappings int
}

// NewAddressSpace returns an empty AddressSpace that can hold up to
// maxMappings installed pages. maxMappings <= 0 means unbounded.
func NewAddressSpace(maxMappings int) *AddressSpace {
	return &AddressSpace{
		mappings:    make(map[hostarch.Addr]mapping),
		maxMappings: maxMappings,
	}
}

// Map implements platform.AddressSpace.Map.
func (as *AddressSpace) Map(va hostarch.Addr, f *pgalloc.Frame, writable bool) error {
	if !va.IsPageAligned() {
		panic(fmt.Sprintf("unaligned map address %s", va))
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	if _, ok := as.mappings[va]; ok {
		return kerr.ErrExists
	}
	if as.maxMappings > 0 && len(as.mappings) >= as.maxMappings {
		return kerr.ErrMapLimit
	}
	as.mappings[va] = mapping{frame: f, writable: writable}
	return nil
}

// Unmap implements platform.AddressSpace.Unmap.
func (as *AddressSpace) Unmap(va hostarch.Addr) {
	as.mu.Lock()
	defer as.mu.Unlock()
	delete(as.mappings, va.RoundDown())
}

// Lookup implements platform.AddressSpace.Lookup.
func (as *AddressSpace) Lookup(va hostarch.Addr) (*pgalloc.Frame, bool, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	m, ok := as.mappings[va.RoundDown()]
	if !ok {
		return nil, false, false
	}
	return m.frame, m.writable, true
}

// Mapped returns the number of installed mappings.
func (as *AddressSpace) Mapped() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return len(as.mappings)
}
