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
	"testing"
	"time"

	"github.com/vmstress/vmstress/pkg/abi/linux"
	"github.com/vmstress/vmstress/pkg/eventfd"
	"github.com/vmstress/vmstress/pkg/uffd"
	"github.com/vmstress/vmstress/stress"
	"golang.org/x/sys/unix"
)

func TestRegionBytes(t *testing.T) {
	const pageSize = 4096
	for _, tc := range []struct {
		name      string
		requested uint64
		instances int
		want      int
	}{
		{"default", 0, 1, defaultUserfaultBytes},
		{"default split", 0, 4, defaultUserfaultBytes / 4},
		{"explicit", 64 << 20, 1, 64 << 20},
		{"explicit split", 64 << 20, 2, 32 << 20},
		{"below minimum", 1 << 10, 1, minUserfaultBytes},
		{"split below minimum", minUserfaultBytes, 8, minUserfaultBytes},
		{"above maximum", 1 << 62, 1, maxUserfaultBytes},
		{"rounds down to pages", pageSize + 1234, 1, pageSize},
		{"floor one page", pageSize, 16, pageSize},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := regionBytes(tc.requested, tc.instances, pageSize)
			if got != tc.want {
				t.Errorf("regionBytes(%d, %d, %d) = %d, want %d",
					tc.requested, tc.instances, pageSize, got, tc.want)
			}
			if got%pageSize != 0 {
				t.Errorf("regionBytes(%d, %d, %d) = %d, not page aligned",
					tc.requested, tc.instances, pageSize, got)
			}
		})
	}
}

func TestCheckResolutionCaps(t *testing.T) {
	both := uint64(linux.UFFDIO_COPY_SUPPORTED | linux.UFFDIO_ZEROPAGE_SUPPORTED)
	for _, tc := range []struct {
		name    string
		ioctls  uint64
		wantErr bool
	}{
		{"both", both, false},
		{"both plus wake", both | linux.UFFDIO_WAKE_SUPPORTED, false},
		{"copy only", linux.UFFDIO_COPY_SUPPORTED, true},
		{"zeropage only", linux.UFFDIO_ZEROPAGE_SUPPORTED, true},
		{"neither", 0, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := checkResolutionCaps(tc.ioctls)
			if (err != nil) != tc.wantErr {
				t.Errorf("checkResolutionCaps(%#x) = %v, wantErr %v", tc.ioctls, err, tc.wantErr)
			}
		})
	}
}

func TestFaultAddr(t *testing.T) {
	const (
		pageSize = 4096
		base     = uintptr(0x7f0000400000)
		length   = 3 * pageSize
	)
	for _, tc := range []struct {
		name    string
		raw     uint64
		want    uintptr
		wantErr bool
	}{
		{"region base", uint64(base), base, false},
		{"unaligned in range", uint64(base) + pageSize + 1, base + pageSize, false},
		{"last byte", uint64(base) + length - 1, base + 2*pageSize, false},
		{"one below base", uint64(base) - 1, 0, true},
		{"region end", uint64(base) + length, 0, true},
		{"one past end", uint64(base) + length + 1, 0, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := faultAddr(tc.raw, base, length, pageSize)
			if (err != nil) != tc.wantErr {
				t.Fatalf("faultAddr(%#x) error = %v, wantErr %v", tc.raw, err, tc.wantErr)
			}
			if err == nil && got != tc.want {
				t.Errorf("faultAddr(%#x) = %#x, want %#x", tc.raw, got, tc.want)
			}
		})
	}
}

// A worker exit must interrupt the resolver's wait even with no fault
// pending on the notification channel.
func TestWaitObservesWorkerExit(t *testing.T) {
	fd, err := uffd.Open(0)
	if err != nil {
		switch uffd.Errno(err) {
		case unix.ENOSYS, unix.EPERM, unix.EACCES:
			t.Skipf("userfaultfd unavailable: %v", err)
		}
		t.Fatalf("Open: %v", err)
	}
	defer fd.Close()

	done, err := eventfd.Create()
	if err != nil {
		t.Fatalf("eventfd: %v", err)
	}
	defer done.Close()

	r := &resolver{
		args:   &stress.Args{Name: "userfaultfd"},
		fd:     fd,
		worker: &faultWorker{done: done},
	}
	if err := done.Notify(); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got := r.wait(); got != waitWorkerExit {
		t.Fatalf("wait() = %d, want %d (worker exit)", got, waitWorkerExit)
	}
}

// A madvise failure is the worker's only error path; it must land in err()
// and fire the exit eventfd.
func TestWorkerFailureSurfaces(t *testing.T) {
	done, err := eventfd.Create()
	if err != nil {
		t.Fatalf("eventfd: %v", err)
	}
	defer done.Close()

	args := &stress.Args{Name: "userfaultfd", Metrics: stress.NewMetrics()}
	watchdog := time.AfterFunc(30*time.Second, args.Stop)
	defer watchdog.Stop()

	// A deliberately misaligned region: madvise rejects it with EINVAL
	// before anything is touched.
	w := &faultWorker{
		args:     args,
		region:   make([]byte, os.Getpagesize()+1)[1:],
		pageSize: os.Getpagesize(),
		done:     done,
	}
	go w.run()

	pfds := []unix.PollFd{{Fd: int32(done.FD()), Events: unix.POLLIN}}
	if n, err := unix.Poll(pfds, 30*1000); err != nil || n == 0 {
		t.Fatalf("worker exit eventfd never fired: n=%d err=%v", n, err)
	}
	if _, err := done.Read(); err != nil {
		t.Fatalf("draining eventfd: %v", err)
	}
	if w.err() == nil {
		t.Fatalf("worker failure not recorded")
	}
}

// runStressor runs a registered stressor for a bounded number of ops with a
// watchdog, skipping when the environment cannot support it.
func runStressor(t *testing.T, name string, maxOps uint64, opts stress.Options) *stress.Args {
	t.Helper()
	s, ok := stress.Lookup(name)
	if !ok {
		t.Fatalf("stressor %q not registered", name)
	}
	args := &stress.Args{
		Name:      name,
		Instance:  0,
		Instances: 1,
		PageSize:  os.Getpagesize(),
		MaxOps:    maxOps,
		Opts:      opts,
		Metrics:   stress.NewMetrics(),
	}
	watchdog := time.AfterFunc(30*time.Second, args.Stop)
	defer watchdog.Stop()

	switch st := s.Run(args); st {
	case stress.Success:
	case stress.NoResource, stress.NotImplemented:
		t.Skipf("%s: environment cannot run stressor: %v", name, st)
	default:
		t.Fatalf("%s: Run = %v", name, st)
	}
	if args.Stopping() {
		t.Fatalf("%s: watchdog fired before %d ops completed", name, maxOps)
	}
	return args
}

func TestUserfaultfdRun(t *testing.T) {
	const maxOps = 64
	args := runStressor(t, "userfaultfd", maxOps, stress.Options{
		UserfaultBytes: 1 << 20,
	})

	if got := args.Metrics.Count(); got < maxOps {
		t.Errorf("resolved %d faults, want at least %d", got, maxOps)
	}
	if rate := args.Metrics.Values()["nanosecs per page fault"]; rate <= 0 {
		t.Errorf("nanosecs per page fault = %v, want > 0", rate)
	}
}
