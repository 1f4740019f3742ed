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

package hostarch

import (
	"testing"
)

func TestRoundDown(t *testing.T) {
	for _, test := range []struct {
		addr Addr
		want Addr
	}{
		{0, 0},
		{1, 0},
		{PageSize - 1, 0},
		{PageSize, PageSize},
		{PageSize + 1, PageSize},
		{2*PageSize - 1, PageSize},
	} {
		if got := test.addr.RoundDown(); got != test.want {
			t.Errorf("Addr(%#x).RoundDown() = %#x, want %#x", uintptr(test.addr), uintptr(got), uintptr(test.want))
		}
	}
}

func TestRoundUp(t *testing.T) {
	got, ok := Addr(1).RoundUp()
	if !ok || got != PageSize {
		t.Errorf("Addr(1).RoundUp() = %#x, %t, want %#x, true", uintptr(got), ok, uintptr(Addr(PageSize)))
	}
	if _, ok := Addr(^uintptr(0)).RoundUp(); ok {
		t.Errorf("RoundUp of top address should wrap")
	}
}

func TestUserKernelSplit(t *testing.T) {
	for _, test := range []struct {
		addr Addr
		user bool
	}{
		{0, true},
		{PhysBase - 1, true},
		{StackFloor, true},
		{PhysBase, false},
		{PhysBase + PageSize, false},
	} {
		if got := test.addr.IsUserAddr(); got != test.user {
			t.Errorf("Addr(%#x).IsUserAddr() = %t, want %t", uintptr(test.addr), got, test.user)
		}
		if got := test.addr.IsKernelAddr(); got == test.user {
			t.Errorf("Addr(%#x).IsKernelAddr() = %t, want %t", uintptr(test.addr), got, !test.user)
		}
	}
}

func TestStackRegion(t *testing.T) {
	if StackFloor != PhysBase-8<<20 {
		t.Errorf("StackFloor = %#x, want %#x", uintptr(StackFloor), uintptr(PhysBase-8<<20))
	}
	if !StackFloor.IsPageAligned() {
		t.Errorf("StackFloor %#x is not page aligned", uintptr(StackFloor))
	}
}
