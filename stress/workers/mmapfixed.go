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
	"github.com/vmstress/vmstress/pkg/log"
	"github.com/vmstress/vmstress/pkg/memutil"
	"github.com/vmstress/vmstress/stress"
	"golang.org/x/sys/unix"
)

const (
	defaultMmapFixedBytes = 64 << 10

	// mmapFixedTop is the highest hint address tried; each attempt halves
	// it down to mmapFixedBottom.
	mmapFixedTop    = uintptr(1) << 38
	mmapFixedBottom = uintptr(1) << 21
)

func init() {
	stress.Register(mmapFixedStressor{})
}

// mmapFixedStressor maps and unmaps anonymous memory at a descending
// sequence of fixed hint addresses. MAP_FIXED_NOREPLACE keeps it from
// clobbering mappings the address hint happens to collide with.
type mmapFixedStressor struct{}

// Name implements stress.Stressor.Name.
func (mmapFixedStressor) Name() string { return "mmapfixed" }

// Run implements stress.Stressor.Run.
func (mmapFixedStressor) Run(args *stress.Args) stress.Status {
	bytes := args.Opts.MmapFixedBytes
	if bytes == 0 {
		bytes = defaultMmapFixedBytes
	}
	sz := int(bytes) &^ (args.PageSize - 1)
	if sz < args.PageSize {
		sz = args.PageSize
	}

	for args.KeepRunning() {
		for hint := mmapFixedTop; hint >= mmapFixedBottom && args.KeepRunning(); hint >>= 1 {
			m, err := memutil.MapSlice(hint, uintptr(sz),
				unix.PROT_READ|unix.PROT_WRITE,
				unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED_NOREPLACE,
				^uintptr(0), 0)
			if err != nil {
				// The hint is taken or unusable; try the next one.
				continue
			}
			// Touch the first page so the mapping is real.
			m[0] = 1
			if err := memutil.UnmapSlice(m); err != nil {
				log.Warningf("%s: munmap: %v", args.Name, err)
				return stress.Failure
			}
			args.Metrics.Inc()
		}
	}
	return stress.Success
}
