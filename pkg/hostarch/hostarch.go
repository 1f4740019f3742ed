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

// Package hostarch contains properties of the machine's virtual address
// layout: page arithmetic and the split between user and kernel space.
package hostarch

// Page-related constants.
const (
	// PageShift is log2(PageSize).
	PageShift = 12

	// PageSize is the size of a virtual page in bytes.
	PageSize = 1 << PageShift
)

// Address-space layout constants.
const (
	// PhysBase marks the boundary between user and kernel virtual
	// addresses. User space is [0, PhysBase); everything at or above
	// PhysBase belongs to the kernel.
	PhysBase Addr = 0xC0000000

	// StackLimit is the maximum size the user stack may grow to.
	StackLimit = 8 << 20

	// StackFloor is the lowest address the user stack may occupy. The
	// stack region is [StackFloor, PhysBase), growing downward.
	StackFloor = PhysBase - StackLimit
)
