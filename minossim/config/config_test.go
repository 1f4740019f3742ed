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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minos-kernel/minos/pkg/hostarch"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeScenario(t, `
[machine]
frames = 16
swap-slots = 4

[thread]
id = 7
name = "echo"
stack-pointer = "0xbffffffc"

[[segment]]
addr = "0x08048000"
pages = 2
writable = false
file = "echo.bin"
length = 5000

[[fault]]
addr = "0x08048123"
access = "read"
origin = "user"

[[fault]]
addr = "0xbfffffe0"
access = "write"
origin = "user"
sp = "0xbffffff0"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Machine.Frames != 16 || c.Machine.SwapSlots != 4 {
		t.Errorf("machine = %+v", c.Machine)
	}
	if c.Thread.ID != 7 || c.Thread.Name != "echo" {
		t.Errorf("thread = %+v", c.Thread)
	}
	if got := c.Thread.StackPointer.Addr(); got != hostarch.PhysBase-4 {
		t.Errorf("stack pointer = %s, want %s", got, hostarch.PhysBase-4)
	}
	if len(c.Segments) != 1 || c.Segments[0].Pages != 2 || c.Segments[0].Length != 5000 {
		t.Errorf("segments = %+v", c.Segments)
	}
	if len(c.Faults) != 2 {
		t.Fatalf("faults = %+v", c.Faults)
	}
	if c.Faults[0].SP != nil {
		t.Errorf("fault 0 has an SP override")
	}
	if c.Faults[1].SP == nil || c.Faults[1].SP.Addr() != hostarch.PhysBase-16 {
		t.Errorf("fault 1 SP = %v, want %s", c.Faults[1].SP, hostarch.PhysBase-16)
	}
}

func TestLoadErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "no frames",
			content: "[machine]\nswap-slots = 1\n",
			want:    "frames must be positive",
		},
		{
			name: "unaligned segment",
			content: `
[machine]
frames = 4
[[segment]]
addr = "0x08048010"
pages = 1
`,
			want: "not page-aligned",
		},
		{
			name: "kernel segment",
			content: `
[machine]
frames = 4
[[segment]]
addr = "0xc0001000"
pages = 1
`,
			want: "not a user address",
		},
		{
			name: "length without file",
			content: `
[machine]
frames = 4
[[segment]]
addr = "0x08048000"
pages = 1
length = 100
`,
			want: "length without a file",
		},
		{
			name: "swapped without swap",
			content: `
[machine]
frames = 4
[[segment]]
addr = "0x08048000"
pages = 1
swapped = true
`,
			want: "no swap device",
		},
		{
			name: "bad access",
			content: `
[machine]
frames = 4
[[fault]]
addr = "0x1000"
access = "execute"
`,
			want: "access must be",
		},
		{
			name: "bad address",
			content: `
[machine]
frames = 4
[[fault]]
addr = "not-an-address"
`,
			want: "bad address",
		},
		{
			name: "unknown key",
			content: `
[machine]
frames = 4
frame-color = "red"
`,
			want: "unknown keys",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeScenario(t, tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load error = %v, want substring %q", err, tc.want)
			}
		})
	}
}
