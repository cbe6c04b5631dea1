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

package cmd

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/google/subcommands"
	"github.com/vmstress/vmstress/pkg/log"
	"github.com/vmstress/vmstress/runner/config"
	"github.com/vmstress/vmstress/stress"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Run implements subcommands.Command for the "run" command.
type Run struct{}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "runs the named stressors"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run <stressor>...`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Run) SetFlags(f *flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Run) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	var stressors []stress.Stressor
	for _, name := range f.Args() {
		s, ok := stress.Lookup(name)
		if !ok {
			Fatalf("unknown stressor %q, see \"list\" for the available ones", name)
		}
		stressors = append(stressors, s)
	}

	pageSize := os.Getpagesize()
	opts := conf.Options()

	type instance struct {
		args   *stress.Args
		status stress.Status
	}
	var instances []*instance
	var g errgroup.Group
	for _, s := range stressors {
		for i := 0; i < conf.Instances; i++ {
			inst := &instance{
				args: &stress.Args{
					Name:      s.Name(),
					Instance:  i,
					Instances: conf.Instances,
					PageSize:  pageSize,
					MaxOps:    conf.Ops,
					Opts:      opts,
					Metrics:   stress.NewMetrics(),
				},
			}
			instances = append(instances, inst)
			s := s
			g.Go(func() error {
				inst.status = s.Run(inst.args)
				return nil
			})
		}
	}

	stopAll := func() {
		for _, inst := range instances {
			inst.args.Stop()
		}
	}

	if d := time.Duration(conf.Timeout); d > 0 {
		timer := time.AfterFunc(d, stopAll)
		defer timer.Stop()
	}

	// An interrupt turns into the cooperative stop, and the stressors
	// unwind through their normal teardown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)
	go func() {
		if _, ok := <-sigCh; ok {
			log.Infof("interrupted, stopping stressors")
			stopAll()
		}
	}()

	g.Wait()
	signal.Stop(sigCh)
	close(sigCh)

	worst := stress.Success
	for _, inst := range instances {
		a := inst.args
		log.Infof("%s: instance %d: %s, %d ops", a.Name, a.Instance, inst.status, a.Metrics.Count())
		for name, value := range a.Metrics.Values() {
			log.Infof("%s: instance %d: %s: %.2f", a.Name, a.Instance, name, value)
		}
		if inst.status.Severity() > worst.Severity() {
			worst = inst.status
		}
	}

	if worst == stress.Success {
		return subcommands.ExitSuccess
	}
	return subcommands.ExitFailure
}
