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
	"fmt"

	"github.com/google/subcommands"
	"github.com/vmstress/vmstress/stress"
)

// List implements subcommands.Command for the "list" command.
type List struct{}

// Name implements subcommands.Command.Name.
func (*List) Name() string {
	return "list"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*List) Synopsis() string {
	return "lists the available stressors"
}

// Usage implements subcommands.Command.Usage.
func (*List) Usage() string {
	return `list`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*List) SetFlags(f *flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*List) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	for _, name := range stress.Names() {
		fmt.Println(name)
	}
	return subcommands.ExitSuccess
}
