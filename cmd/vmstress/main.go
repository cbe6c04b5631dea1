// Copyright 2024 The vmstress Authors.
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

// Binary vmstress drives Linux memory and OS stress workers, chief among
// them a userfaultfd demand-paging fault resolver.
package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/vmstress/vmstress/pkg/log"
	"github.com/vmstress/vmstress/runner/cmd"
	"github.com/vmstress/vmstress/runner/config"
	_ "github.com/vmstress/vmstress/stress/workers" // register all stressors
)

func newEmitter(format string, w io.Writer) log.Emitter {
	if format == "json" {
		return log.JSONEmitter{Writer: &log.Writer{Next: w}}
	}
	return log.GoogleEmitter{Writer: &log.Writer{Next: w}}
}

func main() {
	conf := config.Default()
	flag.String("config", "", "TOML configuration file; flags take precedence")
	conf.RegisterFlags(flag.CommandLine)

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(cmd.Run), "")
	subcommands.Register(new(cmd.List), "")

	// Load the config file, if any, before parsing so explicitly passed
	// flags override it.
	if path := config.PeekFile(os.Args[1:]); path != "" {
		if err := config.Load(path, conf); err != nil {
			cmd.Fatalf("%v", err)
		}
	}
	flag.Parse()

	if err := conf.Validate(); err != nil {
		cmd.Fatalf("%v", err)
	}

	if conf.Debug {
		log.SetLevel(log.Debug)
	}
	emitter := newEmitter(conf.LogFormat, os.Stderr)
	if conf.LogFile != "" {
		f, err := os.OpenFile(conf.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			cmd.Fatalf("opening log file: %v", err)
		}
		emitter = &log.MultiEmitter{emitter, newEmitter(conf.LogFormat, f)}
	}
	log.SetTarget(emitter)

	os.Exit(int(subcommands.Execute(context.Background(), conf)))
}
