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
	"github.com/vmstress/vmstress/pkg/uffd"
	"github.com/vmstress/vmstress/stress"
	"golang.org/x/sys/unix"
)

const defaultMlockBytes = 256 << 10

func init() {
	stress.Register(mlockStressor{})
}

// mlockStressor sweeps mlock/munlock over an anonymous mapping, one page at
// a time.
type mlockStressor struct{}

// Name implements stress.Stressor.Name.
func (mlockStressor) Name() string { return "mlock" }

// Run implements stress.Stressor.Run.
func (mlockStressor) Run(args *stress.Args) stress.Status {
	bytes := args.Opts.MlockBytes
	if bytes == 0 {
		bytes = defaultMlockBytes
	}
	sz := int(bytes) &^ (args.PageSize - 1)
	if sz < args.PageSize {
		sz = args.PageSize
	}

	m, err := memutil.MapAnon(sz)
	if err != nil {
		log.Warningf("%s: mmap: %v", args.Name, err)
		return stress.NoResource
	}
	defer memutil.UnmapSlice(m)

	for args.KeepRunning() {
		for off := 0; off < sz && args.KeepRunning(); off += args.PageSize {
			if err := unix.Mlock(m[off : off+args.PageSize]); err != nil {
				// Lock limits vary; running out is not a defect.
				if st := stress.StatusFromErrno(uffd.Errno(err)); st == stress.NoResource {
					if args.Instance == 0 {
						log.Infof("%s: mlock: %v, skipping stressor", args.Name, err)
					}
					return stress.NoResource
				}
				log.Warningf("%s: mlock: %v", args.Name, err)
				return stress.Failure
			}
			args.Metrics.Inc()
		}
		if err := unix.Munlock(m); err != nil {
			log.Warningf("%s: munlock: %v", args.Name, err)
			return stress.Failure
		}
	}
	return stress.Success
}
