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

package workers

import (
	"testing"

	"github.com/vmstress/vmstress/stress"
)

func TestStressorsRegistered(t *testing.T) {
	for _, name := range []string{"userfaultfd", "pipe", "mlock", "flock", "mmapfixed", "udp"} {
		if _, ok := stress.Lookup(name); !ok {
			t.Errorf("stressor %q not registered", name)
		}
	}
}

func TestPipeRun(t *testing.T) {
	const maxOps = 1000
	args := runStressor(t, "pipe", maxOps, stress.Options{PipeDataSize: 64})
	if got := args.Metrics.Count(); got < maxOps {
		t.Errorf("transferred %d buffers, want at least %d", got, maxOps)
	}
}

func TestMlockRun(t *testing.T) {
	const maxOps = 64
	args := runStressor(t, "mlock", maxOps, stress.Options{MlockBytes: 64 << 10})
	if got := args.Metrics.Count(); got < maxOps {
		t.Errorf("locked %d pages, want at least %d", got, maxOps)
	}
}

func TestFlockRun(t *testing.T) {
	const maxOps = 1000
	args := runStressor(t, "flock", maxOps, stress.Options{})
	if got := args.Metrics.Count(); got < maxOps {
		t.Errorf("completed %d lock cycles, want at least %d", got, maxOps)
	}
}

func TestMmapFixedRun(t *testing.T) {
	const maxOps = 16
	args := runStressor(t, "mmapfixed", maxOps, stress.Options{MmapFixedBytes: 16 << 10})
	if got := args.Metrics.Count(); got < maxOps {
		t.Errorf("completed %d map cycles, want at least %d", got, maxOps)
	}
}

func TestUDPRun(t *testing.T) {
	const maxOps = 100
	args := runStressor(t, "udp", maxOps, stress.Options{UDPDataSize: 128})
	if got := args.Metrics.Count(); got < maxOps {
		t.Errorf("received %d datagrams, want at least %d", got, maxOps)
	}
}
