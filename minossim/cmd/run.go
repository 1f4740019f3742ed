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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/minos-kernel/minos/minossim/config"
	"github.com/minos-kernel/minos/minossim/sim"
	mcontext "github.com/minos-kernel/minos/pkg/context"
)

// Run implements subcommands.Command for the "run" command.
type Run struct {
	// quiet suppresses the per-fault trace and prints only the summary.
	quiet bool
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "replay a scenario's fault trace and report each outcome"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags] <scenario.toml>

Builds the machine and process described by the scenario file, replays its
fault trace through the exception subsystem, and prints each fault's
outcome followed by a machine summary.

OPTIONS:
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.quiet, "quiet", false, "print only the final summary")
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	conf, err := config.Load(f.Arg(0))
	if err != nil {
		Fatalf("loading scenario: %v", err)
	}

	s, err := sim.New(mcontext.Background(), conf)
	if err != nil {
		Fatalf("building machine: %v", err)
	}
	defer s.Destroy()

	rep := s.Run()
	if !r.quiet {
		for i, res := range rep.Results {
			ev := res.Fault
			access := ev.Access
			if access == "" {
				access = "read"
			}
			origin := ev.Origin
			if origin == "" {
				origin = "user"
			}
			if res.Skipped {
				fmt.Printf("fault %d: %s %s at %s: skipped\n", i, origin, access, ev.Addr.Addr())
				continue
			}
			fmt.Printf("fault %d: %s %s at %s: %v\n", i, origin, access, ev.Addr.Addr(), res.Outcome)
		}
	}

	fmt.Printf("%v\n", rep.Stats)
	fmt.Printf("mapped: %d pages, free: %d frames, %d swap slots\n",
		rep.MappedPages, rep.FreeFrames, rep.FreeSlots)
	if rep.Exited {
		fmt.Printf("process exited with status %d\n", rep.ExitStatus)
		os.Exit(int(rep.ExitStatus & 0xff))
	}
	return subcommands.ExitSuccess
}
