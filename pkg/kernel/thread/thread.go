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

// Package thread defines the slice of the thread control record the fault
// layer depends on, and the process-termination primitive. Scheduling, exit
// status propagation and descriptor lifecycle live elsewhere.
package thread

import (
	"fmt"

	"github.com/minos-kernel/minos/pkg/context"
	"github.com/minos-kernel/minos/pkg/hostarch"
)

// Thread is the fault layer's view of a thread control record.
type Thread struct {
	// ID is the thread identifier.
	ID int32

	// Name is the thread's name, used in diagnostics.
	Name string

	// UserSP is the thread's user stack pointer as saved at its last
	// kernel entry. Certain system-call paths fault on a user buffer
	// with a stale trap-frame stack pointer; this field is the value the
	// fault layer repairs it from.
	UserSP hostarch.Addr
}

// String implements fmt.Stringer.String.
func (t *Thread) String() string {
	return fmt.Sprintf("%s (tid %d)", t.Name, t.ID)
}

// Terminator is the process-termination primitive. In a running kernel,
// Exit tears the process down and does not return to the faulting code; the
// fault layer treats it as advisory and reports a killed outcome to its own
// caller either way.
type Terminator interface {
	// Exit terminates the current process with the given status code.
	Exit(status int32)
}

// contextID is this package's type for context.Context.Value keys.
type contextID int

const (
	// CtxThread is a Context.Value key for the current Thread.
	CtxThread contextID = iota
)

// FromContext returns the current Thread used by ctx, or nil if no Thread
// is running.
func FromContext(ctx context.Context) *Thread {
	if v := ctx.Value(CtxThread); v != nil {
		return v.(*Thread)
	}
	return nil
}

// WithThread returns a copy of ctx carrying t as the current thread.
func WithThread(ctx context.Context, t *Thread) context.Context {
	return context.WithValue(ctx, CtxThread, t)
}
