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

// Package platform provides a Platform abstraction over the target machine's
// trap and memory-mapping primitives.
//
// Hardware ports implement Platform per target architecture; package
// simplatform provides the simulated implementation used by tests and the
// trace simulator.
package platform

import (
	"github.com/minos-kernel/minos/pkg/hostarch"
	"github.com/minos-kernel/minos/pkg/kernel/pgalloc"
)

// Platform provides the architecture primitives the fault layer depends on.
type Platform interface {
	// ReadFaultAddress returns the contents of the hardware
	// fault-address register (CR2 on x86) for the most recent fault.
	//
	// Preconditions: interrupts are disabled. The register is clobbered
	// by any nested fault, so it must be consumed exactly once, before
	// interrupts are re-enabled.
	ReadFaultAddress() hostarch.Addr

	// EnableInterrupts turns external interrupts on.
	EnableInterrupts()

	// DisableInterrupts turns external interrupts off.
	DisableInterrupts()

	// InterruptsEnabled returns the current interrupt state.
	InterruptsEnabled() bool
}

// AddressSpace represents one process's installed virtual-to-physical
// mappings. The mapping structure's internal synchronization is the
// implementation's responsibility; each operation is atomic with respect to
// other faulting threads.
type AddressSpace interface {
	// Map installs a mapping from the page-aligned virtual address va to
	// the given frame. It fails with kerr.ErrMapLimit if the mapping
	// structure cannot be extended, and kerr.ErrExists if va is already
	// mapped.
	Map(va hostarch.Addr, f *pgalloc.Frame, writable bool) error

	// Unmap removes the mapping at va, if any.
	Unmap(va hostarch.Addr)

	// Lookup returns the frame mapped at va and whether the mapping is
	// writable. ok is false if va has no installed mapping.
	Lookup(va hostarch.Addr) (f *pgalloc.Frame, writable bool, ok bool)
}
