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
	"os"
	"path/filepath"

	"github.com/vmstress/vmstress/pkg/log"
	"github.com/vmstress/vmstress/stress"
	"golang.org/x/sys/unix"
)

func init() {
	stress.Register(flockStressor{})
}

// flockStressor cycles exclusive flock(2) locks on a scratch file.
type flockStressor struct{}

// Name implements stress.Stressor.Name.
func (flockStressor) Name() string { return "flock" }

// Run implements stress.Stressor.Run.
func (flockStressor) Run(args *stress.Args) stress.Status {
	path := filepath.Join(os.TempDir(), "vmstress-flock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		log.Warningf("%s: open %s: %v", args.Name, path, err)
		return stress.NoResource
	}
	defer func() {
		f.Close()
		// Last instance out removes the scratch file; a failed remove just
		// leaves it for the next run.
		os.Remove(path)
	}()
	fd := int(f.Fd())

	for args.KeepRunning() {
		if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Warningf("%s: flock LOCK_EX: %v", args.Name, err)
			return stress.Failure
		}
		if err := unix.Flock(fd, unix.LOCK_UN); err != nil {
			log.Warningf("%s: flock LOCK_UN: %v", args.Name, err)
			return stress.Failure
		}
		args.Metrics.Inc()
	}
	return stress.Success
}
