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

// Package config defines the TOML scenario format consumed by minossim: a
// machine description, one simulated process with its memory segments, and
// the sequence of faults to replay against it.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/minos-kernel/minos/pkg/hostarch"
)

// Addr is a hostarch.Addr that decodes from a TOML string such as
// "0xbffffffc". Plain decimal strings are accepted too.
type Addr hostarch.Addr

// UnmarshalText implements encoding.TextUnmarshaler.UnmarshalText.
func (a *Addr) UnmarshalText(text []byte) error {
	v, err := strconv.ParseUint(string(text), 0, 64)
	if err != nil {
		return fmt.Errorf("bad address %q: %w", text, err)
	}
	*a = Addr(v)
	return nil
}

// Addr returns the decoded address.
func (a Addr) Addr() hostarch.Addr {
	return hostarch.Addr(a)
}

// Machine sizes the simulated machine.
type Machine struct {
	// Frames is the user frame pool size, in pages.
	Frames int `toml:"frames"`

	// SwapSlots is the number of swap slots, zero for no swap device.
	SwapSlots int `toml:"swap-slots"`

	// MapLimit caps the number of installed mappings. Zero means
	// unbounded; a small value provokes mapping-structure failures.
	MapLimit int `toml:"map-limit"`
}

// Thread describes the simulated process's thread control record.
type Thread struct {
	ID   int32  `toml:"id"`
	Name string `toml:"name"`

	// StackPointer is the user stack pointer saved at kernel entry.
	StackPointer Addr `toml:"stack-pointer"`
}

// Segment registers pages with the supplemental page table before any
// fault is replayed. Content comes from File when set, otherwise the
// pages are zero-filled on demand.
type Segment struct {
	Addr     Addr   `toml:"addr"`
	Pages    int    `toml:"pages"`
	Writable bool   `toml:"writable"`
	File     string `toml:"file"`
	Offset   int64  `toml:"offset"`
	Length   int    `toml:"length"`

	// Swapped pushes the segment's content out to swap slots at setup,
	// so replaying a fault on it exercises the swap-in path.
	Swapped bool `toml:"swapped"`
}

// Fault is one replayed page fault.
type Fault struct {
	Addr Addr `toml:"addr"`

	// Access is "read" or "write".
	Access string `toml:"access"`

	// Origin is "user" or "kernel".
	Origin string `toml:"origin"`

	// Present marks a rights violation on an already-present page.
	Present bool `toml:"present"`

	// SP overrides the trap frame's stack pointer for this fault. When
	// unset the thread's saved stack pointer is used.
	SP *Addr `toml:"sp"`
}

// Config is a full scenario.
type Config struct {
	Machine  Machine   `toml:"machine"`
	Thread   Thread    `toml:"thread"`
	Segments []Segment `toml:"segment"`
	Faults   []Fault   `toml:"fault"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Config, error) {
	var c Config
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, 0, len(undec))
		for _, k := range undec {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown keys in %q: %s", path, strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %q: %w", path, err)
	}
	return &c, nil
}

// Validate checks the scenario for internal consistency.
func (c *Config) Validate() error {
	if c.Machine.Frames <= 0 {
		return fmt.Errorf("machine.frames must be positive, got %d", c.Machine.Frames)
	}
	if c.Machine.SwapSlots < 0 {
		return fmt.Errorf("machine.swap-slots must not be negative, got %d", c.Machine.SwapSlots)
	}
	if c.Thread.Name == "" {
		c.Thread.Name = "main"
	}
	for i, s := range c.Segments {
		if !s.Addr.Addr().IsPageAligned() {
			return fmt.Errorf("segment %d: address %s is not page-aligned", i, s.Addr.Addr())
		}
		if s.Pages <= 0 {
			return fmt.Errorf("segment %d: pages must be positive, got %d", i, s.Pages)
		}
		if !s.Addr.Addr().IsUserAddr() {
			return fmt.Errorf("segment %d: address %s is not a user address", i, s.Addr.Addr())
		}
		if s.Length < 0 || s.Length > s.Pages*hostarch.PageSize {
			return fmt.Errorf("segment %d: length %d exceeds %d pages", i, s.Length, s.Pages)
		}
		if s.File == "" && s.Length != 0 {
			return fmt.Errorf("segment %d: length without a file", i)
		}
		if s.Swapped && c.Machine.SwapSlots == 0 {
			return fmt.Errorf("segment %d: swapped segment with no swap device", i)
		}
	}
	for i, f := range c.Faults {
		switch f.Access {
		case "", "read", "write":
		default:
			return fmt.Errorf("fault %d: access must be \"read\" or \"write\", got %q", i, f.Access)
		}
		switch f.Origin {
		case "", "user", "kernel":
		default:
			return fmt.Errorf("fault %d: origin must be \"user\" or \"kernel\", got %q", i, f.Origin)
		}
	}
	return nil
}
