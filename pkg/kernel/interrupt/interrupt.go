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

// Package interrupt defines exception vectors and the registration surface
// the fault layer hooks its handlers into. The interrupt-vector dispatch
// machinery itself is external; Dispatcher is the software stand-in used by
// tests and the trace simulator.
package interrupt

import (
	"fmt"

	"github.com/minos-kernel/minos/pkg/context"
	"github.com/minos-kernel/minos/pkg/kernel/arch"
	"github.com/minos-kernel/minos/pkg/log"
)

// Exception vector numbers.
const (
	VecDivideError        = 0
	VecDebug              = 1
	VecBreakpoint         = 3
	VecOverflow           = 4
	VecBoundRange         = 5
	VecInvalidOpcode      = 6
	VecDeviceNotAvailable = 7
	VecSegmentNotPresent  = 11
	VecStackFault         = 12
	VecGeneralProtection  = 13
	VecPageFault          = 14
	VecFloatingPointError = 16
	VecSIMDError          = 19
)

// vectorNames maps vector numbers to diagnostic names.
var vectorNames = map[int]string{
	VecDivideError:        "#DE Divide Error",
	VecDebug:              "#DB Debug Exception",
	VecBreakpoint:         "#BP Breakpoint Exception",
	VecOverflow:           "#OF Overflow Exception",
	VecBoundRange:         "#BR BOUND Range Exceeded Exception",
	VecInvalidOpcode:      "#UD Invalid Opcode Exception",
	VecDeviceNotAvailable: "#NM Device Not Available Exception",
	VecSegmentNotPresent:  "#NP Segment Not Present",
	VecStackFault:         "#SS Stack Fault Exception",
	VecGeneralProtection:  "#GP General Protection Exception",
	VecPageFault:          "#PF Page-Fault Exception",
	VecFloatingPointError: "#MF x87 FPU Floating-Point Error",
	VecSIMDError:          "#XF SIMD Floating-Point Exception",
}

// Name returns the diagnostic name of an exception vector.
func Name(vec int) string {
	if n, ok := vectorNames[vec]; ok {
		return n
	}
	return fmt.Sprintf("vector %#04x", vec)
}

// Mode states whether a handler runs with interrupts on or off.
type Mode int

const (
	// Enabled runs the handler with interrupts on.
	Enabled Mode = iota

	// Disabled runs the handler with interrupts off. Page faults need
	// this: the fault-address register must be preserved until read.
	Disabled
)

// Privilege levels for vector registration.
const (
	// KernelDPL prevents user code from raising the vector with an
	// explicit int instruction.
	KernelDPL = 0

	// UserDPL allows explicit raises from user code (int3 and friends).
	UserDPL = 3
)

// Handler handles one trap invocation.
type Handler func(ctx context.Context, tf *arch.TrapFrame)

// Registry is where handlers are installed. The real interrupt-descriptor
// machinery implements this; so does Dispatcher below.
type Registry interface {
	// Register installs h for vector vec with the given privilege level
	// and interrupt mode.
	Register(vec, dpl int, mode Mode, h Handler, name string)
}

// DumpFrame logs the contents of a trap frame for diagnostics.
func DumpFrame(l log.Logger, tf *arch.TrapFrame) {
	l.Warningf("Interrupt %#04x (%s)", tf.Vector, Name(tf.Vector))
	l.Warningf(" frame: %s", tf)
}
