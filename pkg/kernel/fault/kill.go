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
	"github.com/minos-kernel/minos/pkg/context"
	"github.com/minos-kernel/minos/pkg/kernel/arch"
	"github.com/minos-kernel/minos/pkg/kernel/interrupt"
	"github.com/minos-kernel/minos/pkg/kernel/thread"
)

// Kill is the terminal fallback for every exception except a successfully
// resolved page fault.
//
// A user-context exception kills the process, the moral equivalent of an
// uncatchable signal; there is no signal delivery to recover through. A
// kernel-context exception is a kernel defect: kernel code must never raise
// this class of exception, so the whole system halts with a diagnostic
// dump. An unknown origin is treated like user context.
func (h *Handler) Kill(ctx context.Context, tf *arch.TrapFrame) Outcome {
	switch tf.Origin {
	case arch.UserOrigin:
		name := "unknown thread"
		if t := thread.FromContext(ctx); t != nil {
			name = t.String()
		}
		ctx.Warningf("%s: dying due to interrupt %#04x (%s).", name, tf.Vector, interrupt.Name(tf.Vector))
		interrupt.DumpFrame(ctx, tf)
		h.terminate(ctx, -1)
		return Killed

	case arch.KernelOrigin:
		interrupt.DumpFrame(ctx, tf)
		panic("kernel bug: unexpected exception in kernel context")

	default:
		ctx.Warningf("Interrupt %#04x (%s) from unknown origin", tf.Vector, interrupt.Name(tf.Vector))
		h.terminate(ctx, -1)
		return Killed
	}
}

// Init installs the exception handlers.
//
// The explicitly-raisable vectors get user privilege so int3 and friends
// reach the kill path instead of faulting on the gate; everything else is
// kernel-only. The page-fault vector runs with interrupts off so the
// fault-address register survives until HandlePageFault consumes it.
func (h *Handler) Init(reg interrupt.Registry) {
	kill := func(ctx context.Context, tf *arch.TrapFrame) {
		h.Kill(ctx, tf)
	}
	pageFault := func(ctx context.Context, tf *arch.TrapFrame) {
		h.HandlePageFault(ctx, tf)
	}

	for _, vec := range []int{
		interrupt.VecBreakpoint,
		interrupt.VecOverflow,
		interrupt.VecBoundRange,
	} {
		reg.Register(vec, interrupt.UserDPL, interrupt.Enabled, kill, interrupt.Name(vec))
	}

	for _, vec := range []int{
		interrupt.VecDivideError,
		interrupt.VecDebug,
		interrupt.VecInvalidOpcode,
		interrupt.VecDeviceNotAvailable,
		interrupt.VecSegmentNotPresent,
		interrupt.VecStackFault,
		interrupt.VecGeneralProtection,
		interrupt.VecFloatingPointError,
		interrupt.VecSIMDError,
	} {
		reg.Register(vec, interrupt.KernelDPL, interrupt.Enabled, kill, interrupt.Name(vec))
	}

	reg.Register(interrupt.VecPageFault, interrupt.KernelDPL, interrupt.Disabled, pageFault, interrupt.Name(interrupt.VecPageFault))
}
