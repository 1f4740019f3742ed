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

package interrupt

import (
	"github.com/minos-kernel/minos/pkg/context"
	"github.com/minos-kernel/minos/pkg/kernel/arch"
	"github.com/minos-kernel/minos/pkg/sync"
)

type registration struct {
	h    Handler
	dpl  int
	mode Mode
	name string
}

// Dispatcher is a software vector table implementing Registry. It routes
// trap invocations from the simulator to registered handlers.
type Dispatcher struct {
	mu      sync.Mutex
	vectors map[int]registration
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		vectors: make(map[int]registration),
	}
}

// Register implements Registry.Register.
func (d *Dispatcher) Register(vec, dpl int, mode Mode, h Handler, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vectors[vec] = registration{h: h, dpl: dpl, mode: mode, name: name}
}

// Registered returns whether a handler is installed for vec.
func (d *Dispatcher) Registered(vec int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.vectors[vec]
	return ok
}

// Dispatch routes one trap invocation to the handler registered for
// tf.Vector. It returns false if no handler is installed.
func (d *Dispatcher) Dispatch(ctx context.Context, tf *arch.TrapFrame) bool {
	d.mu.Lock()
	reg, ok := d.vectors[tf.Vector]
	d.mu.Unlock()
	if !ok {
		return false
	}
	reg.h(ctx, tf)
	return true
}
