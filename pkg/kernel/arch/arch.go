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

// Package arch provides abstractions around architecture-dependent trap
// state: the saved trap frame, the privilege origin of an exception, and the
// page-fault status word.
package arch

import (
	"fmt"

	"github.com/minos-kernel/minos/pkg/hostarch"
)

// Origin tags the privilege context an exception originated from. It is
// derived by the interrupt-dispatch layer from the saved code-segment
// selector (or the architectural equivalent) before the frame reaches any
// handler.
type Origin int

const (
	// UnknownOrigin means the saved segment markers matched neither the
	// user nor the kernel code segment. It should not occur; handlers
	// treat it like a user-context exception.
	UnknownOrigin Origin = iota

	// UserOrigin means the interrupted instruction executed in user
	// context.
	UserOrigin

	// KernelOrigin means the interrupted instruction executed in kernel
	// context.
	KernelOrigin
)

// String implements fmt.Stringer.String.
func (o Origin) String() string {
	switch o {
	case UserOrigin:
		return "user"
	case KernelOrigin:
		return "kernel"
	default:
		return "unknown"
	}
}

// TrapFrame is the machine state saved by the interrupt-dispatch layer when
// an exception is taken. It stays valid for the duration of one trap
// invocation only.
type TrapFrame struct {
	// Vector is the exception vector number.
	Vector int

	// Code is the hardware error code pushed for this exception. For
	// page faults it is the fault status word decoded by DecodeFault.
	Code uint64

	// Origin is the privilege context the exception came from.
	Origin Origin

	// IP is the address of the faulting instruction.
	IP hostarch.Addr

	// SP is the interrupted stack pointer. For faults taken in kernel
	// context on behalf of a user buffer access, this value may be stale
	// and is repaired by the fault layer before use.
	SP hostarch.Addr
}

// String implements fmt.Stringer.String.
func (f *TrapFrame) String() string {
	return fmt.Sprintf("vec=%#04x code=%#x origin=%s ip=%s sp=%s",
		f.Vector, f.Code, f.Origin, f.IP, f.SP)
}

// Page-fault status word bits. These match the IA-32 #PF error code layout;
// other targets translate into this form in their dispatch glue.
const (
	// FaultPresent is set if the fault was a rights violation on a
	// present page, and clear if the page was not present.
	FaultPresent = 1 << 0

	// FaultWrite is set if the faulting access was a write.
	FaultWrite = 1 << 1

	// FaultUser is set if the faulting access came from user context.
	FaultUser = 1 << 2
)

// FaultInfo is the decoded cause of one page fault. It is transient: valid
// only while that fault is being resolved, never persisted.
type FaultInfo struct {
	// NotPresent is true if no mapping existed for the accessed page,
	// and false for an access-rights violation on a present page.
	NotPresent bool

	// Write is true if the access was a write, false for a read.
	Write bool

	// User is true if the access came from user context.
	User bool

	// Addr is the accessed virtual address that raised the fault. It is
	// not necessarily the address of the faulting instruction.
	Addr hostarch.Addr
}

// DecodeFault decodes the page-fault status word in code, pairing it with
// the faulting address read from the platform's fault-address register.
func DecodeFault(code uint64, addr hostarch.Addr) FaultInfo {
	return FaultInfo{
		NotPresent: code&FaultPresent == 0,
		Write:      code&FaultWrite != 0,
		User:       code&FaultUser != 0,
		Addr:       addr,
	}
}

// String implements fmt.Stringer.String.
func (i FaultInfo) String() string {
	p := "not present"
	if !i.NotPresent {
		p = "rights violation"
	}
	a := "reading"
	if i.Write {
		a = "writing"
	}
	c := "kernel"
	if i.User {
		c = "user"
	}
	return fmt.Sprintf("%s error %s page in %s context at %s", p, a, c, i.Addr)
}
