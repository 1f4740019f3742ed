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

	"github.com/google/subcommands"

	"github.com/minos-kernel/minos/minossim/config"
	"github.com/minos-kernel/minos/minossim/sim"
	mcontext "github.com/minos-kernel/minos/pkg/context"
)

// Stats implements subcommands.Command for the "stats" command.
type Stats struct{}

// Name implements subcommands.Command.Name.
func (*Stats) Name() string {
	return "stats"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stats) Synopsis() string {
	return "replay a scenario and print only the exception statistics"
}

// Usage implements subcommands.Command.Usage.
func (*Stats) Usage() string {
	return `stats <scenario.toml>

Replays the scenario and prints the exception subsystem's statistics line.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Stats) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Stats) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
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
	fmt.Printf("%v\n", rep.Stats)
	return subcommands.ExitSuccess
}
