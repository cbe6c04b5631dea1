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

// Package cmd holds the runner's subcommands.
package cmd

import (
	"fmt"
	"os"

	"github.com/vmstress/vmstress/pkg/log"
)

// Fatalf logs to stderr and exits with a failure status.
func Fatalf(format string, args ...any) {
	log.Warningf(format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(128)
}
