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

package swap

import (
	"bytes"
	"errors"
	"testing"

	"github.com/minos-kernel/minos/pkg/hostarch"
	"github.com/minos-kernel/minos/pkg/kernel/kerr"
)

func TestRoundTrip(t *testing.T) {
	s, err := NewStore(4)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	slot, err := s.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if slot == NilSlot {
		t.Fatalf("Alloc returned NilSlot")
	}

	src := make([]byte, hostarch.PageSize)
	for i := range src {
		src[i] = byte(i)
	}
	if err := s.Write(slot, src); err != nil {
		t.Fatalf("Write: %v", err)
	}

	dst := make([]byte, hostarch.PageSize)
	if err := s.ReadInto(slot, dst); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if !bytes.Equal(src, dst) {
		t.Errorf("content mismatch after swap round trip")
	}
}

func TestExhaustion(t *testing.T) {
	s, err := NewStore(2)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	a, err := s.Alloc()
	if err != nil {
		t.Fatalf("Alloc 1: %v", err)
	}
	if _, err := s.Alloc(); err != nil {
		t.Fatalf("Alloc 2: %v", err)
	}
	if _, err := s.Alloc(); !errors.Is(err, kerr.ErrNoSwapSlot) {
		t.Errorf("Alloc on full store: got %v, want %v", err, kerr.ErrNoSwapSlot)
	}

	s.Free(a)
	if got := s.FreeSlots(); got != 1 {
		t.Errorf("FreeSlots after Free: got %d, want 1", got)
	}
	if _, err := s.Alloc(); err != nil {
		t.Errorf("Alloc after Free: %v", err)
	}
}

func TestBadSlot(t *testing.T) {
	s, err := NewStore(1)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	buf := make([]byte, hostarch.PageSize)
	if err := s.ReadInto(NilSlot, buf); !errors.Is(err, kerr.ErrBadBacking) {
		t.Errorf("ReadInto(NilSlot): got %v, want %v", err, kerr.ErrBadBacking)
	}
	if err := s.ReadInto(Slot(99), buf); !errors.Is(err, kerr.ErrBadBacking) {
		t.Errorf("ReadInto(out of range): got %v, want %v", err, kerr.ErrBadBacking)
	}
}
