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

// Package cli is the main entrypoint for minossim.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/google/subcommands"

	"github.com/minos-kernel/minos/minossim/cmd"
	"github.com/minos-kernel/minos/minossim/version"
	"github.com/minos-kernel/minos/pkg/log"
)

var (
	debug     = flag.Bool("debug", false, "enable debug logging.")
	logPath   = flag.String("log", "", "file path to log to. The default is stderr.")
	logFormat = flag.String("log-format", "text", "log format: text (default) or json.")
	showVer   = flag.Bool("version", false, "show version and exit.")
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(cmd.Run), "")
	subcommands.Register(new(cmd.Stats), "")
	subcommands.Register(new(cmd.Version), "")

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	if *showVer {
		fmt.Fprintf(os.Stdout, "minossim version %s\n", version.Version())
		os.Exit(0)
	}

	if *debug {
		log.SetLevel(log.Debug)
	}

	logFile := io.Writer(os.Stderr)
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			cmd.Fatalf("error opening log file %q: %v", *logPath, err)
		}
		logFile = f
	}
	e, err := newEmitter(*logFormat, logFile)
	if err != nil {
		cmd.Fatalf("%v", err)
	}
	log.SetTarget(e)

	log.Infof("***************** minossim *****************")
	log.Infof("Version %s, %s, %s/%s, PID %d", version.Version(), runtime.Version(), runtime.GOOS, runtime.GOARCH, os.Getpid())
	log.Infof("Args: %v", os.Args)

	os.Exit(int(subcommands.Execute(context.Background())))
}

func newEmitter(format string, logFile io.Writer) (log.Emitter, error) {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: logFile}}, nil
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}, nil
	}
	return nil, fmt.Errorf("invalid log format %q, must be 'text' or 'json'", format)
}
