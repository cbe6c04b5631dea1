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

// Package workers contains the stress workers. Each registers itself with
// the stress harness under its option name.
package workers

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/vmstress/vmstress/pkg/abi/linux"
	"github.com/vmstress/vmstress/pkg/cleanup"
	"github.com/vmstress/vmstress/pkg/eventfd"
	"github.com/vmstress/vmstress/pkg/log"
	"github.com/vmstress/vmstress/pkg/memutil"
	"github.com/vmstress/vmstress/pkg/rand"
	"github.com/vmstress/vmstress/pkg/uffd"
	"github.com/vmstress/vmstress/stress"
	"golang.org/x/sys/unix"
)

const (
	minUserfaultBytes     = 4 << 10
	maxUserfaultBytes     = 256 << 30
	defaultUserfaultBytes = 256 << 20

	// templateByte fills the template page the copy strategy resolves
	// faults from.
	templateByte = 0xaa

	// pollTimeoutMS bounds each wait on the notification channel so the
	// stop condition stays responsive.
	pollTimeoutMS = 1000

	// fdinfoEvery is the number of data-ready polls between fdinfo probes.
	fdinfoEvery = 256
)

func init() {
	stress.Register(userfaultfdStressor{})
}

type userfaultfdStressor struct{}

// Name implements stress.Stressor.Name.
func (userfaultfdStressor) Name() string { return "userfaultfd" }

// regionBytes computes the demand-paged region size for one instance:
// the configured total split evenly across instances, clamped to
// [minUserfaultBytes, maxUserfaultBytes], rounded down to whole pages, with
// a floor of one page.
func regionBytes(requested uint64, instances, pageSize int) int {
	if requested == 0 {
		requested = defaultUserfaultBytes
	}
	if requested > maxUserfaultBytes {
		requested = maxUserfaultBytes
	}
	if instances > 1 {
		requested /= uint64(instances)
	}
	if requested < minUserfaultBytes {
		requested = minUserfaultBytes
	}
	if requested < uint64(pageSize) {
		requested = uint64(pageSize)
	}
	return int(requested &^ (uint64(pageSize) - 1))
}

// faultAddr masks a notification's raw address down to its page and
// validates it against the region. An out-of-range address means the
// resolver and worker have desynchronized; nothing sane can be done with
// the notification.
func faultAddr(raw uint64, base uintptr, length, pageSize int) (uintptr, error) {
	addr := uintptr(raw) &^ (uintptr(pageSize) - 1)
	if addr < base || addr >= base+uintptr(length) {
		return 0, fmt.Errorf("fault address %#x outside region [%#x, %#x)", addr, base, base+uintptr(length))
	}
	return addr, nil
}

// checkResolutionCaps verifies the registration response advertises both
// resolution strategies. The engine picks one at random per fault, so
// partial capability cannot be worked around.
func checkResolutionCaps(ioctls uint64) error {
	if ioctls&linux.UFFDIO_COPY_SUPPORTED == 0 {
		return fmt.Errorf("region registration does not support UFFDIO_COPY (ioctls %#x)", ioctls)
	}
	if ioctls&linux.UFFDIO_ZEROPAGE_SUPPORTED == 0 {
		return fmt.Errorf("region registration does not support UFFDIO_ZEROPAGE (ioctls %#x)", ioctls)
	}
	return nil
}

// faultWorker is the fault-generating side. It shares the resolver's
// address space and repeatedly discards the region's pages and touches each
// one, suspending in the kernel until the resolver services the fault.
type faultWorker struct {
	args     *stress.Args
	region   []byte
	pageSize int

	// stop is the shutdown coordinator's hook; the worker checks it once
	// per pass over the region.
	stop atomic.Bool

	// done fires when the worker has exited, error or not. The resolver
	// polls it next to the userfaultfd so a worker exit interrupts any
	// wait.
	done eventfd.Eventfd

	mu      sync.Mutex
	failure error
}

func (w *faultWorker) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failure = err
}

func (w *faultWorker) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failure
}

func (w *faultWorker) run() {
	// Pin to an OS thread: the faulting side must schedule independently
	// of the resolver, and a thread suspended in a page fault cannot be
	// rescheduled anyway.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer w.done.Notify()

	for w.args.KeepRunning() && !w.stop.Load() {
		// Drop the region's contents so the next touch of every page
		// raises a missing-page fault.
		if err := memutil.MadviseDontNeed(w.region); err != nil {
			// The worker has no metrics channel; the eventfd is its only
			// way to report before exiting.
			w.fail(fmt.Errorf("madvise MADV_DONTNEED: %w", err))
			return
		}
		for off := 0; off < len(w.region); off += w.pageSize {
			w.region[off] = 0xff
		}
	}
}

// resolver is the fault resolution engine: it owns the notification
// channel, the region under test, and the template page.
type resolver struct {
	args     *stress.Args
	fd       *uffd.FD
	region   []byte
	template []byte
	pageSize int

	worker     *faultWorker
	workerDone bool

	rng     *rand.Fast
	resolve stress.Timer

	// anomaly rate-limits protocol anomaly reports so a misbehaving kernel
	// cannot flood the log.
	anomaly log.Logger

	pollCount int
}

func (r *resolver) base() uintptr { return memutil.Addr(r.region) }

// waitOutcome is what a poll of the notification channel produced.
type waitOutcome int

const (
	waitRetry waitOutcome = iota // re-check the stop condition
	waitData                    // a record is ready to read
	waitWorkerExit              // the worker's eventfd fired
)

// wait polls the notification channel and the worker's exit eventfd with a
// bounded timeout. Polling works on blocking descriptors too, so this is
// the one place a worker exit is guaranteed to be noticed; when the kernel
// runs out of poll resources it reports data and the caller falls back to
// a read.
func (r *resolver) wait() waitOutcome {
	pfds := []unix.PollFd{
		{Fd: int32(r.fd.FD()), Events: unix.POLLIN},
		{Fd: int32(r.worker.done.FD()), Events: unix.POLLIN},
	}
	n, err := unix.Poll(pfds, pollTimeoutMS)
	switch {
	case err == unix.EINTR:
		return waitRetry
	case err == unix.ENOMEM:
		// poll ran out of space for its internal tables; give up on
		// polling this time and block on the read instead.
		return waitData
	case err != nil:
		log.Warningf("%s: poll: %v", r.args.Name, err)
		return waitData
	case n == 0:
		// Timed out; re-check the stop condition and re-poll.
		return waitRetry
	}
	if pfds[1].Revents&unix.POLLIN != 0 {
		return waitWorkerExit
	}
	if pfds[0].Revents&unix.POLLIN == 0 {
		return waitRetry
	}

	// Periodically audit the channel's descriptor state. Diagnostic only.
	r.pollCount++
	if r.pollCount >= fdinfoEvery {
		r.pollCount = 0
		r.auditFDInfo()
	}
	return waitData
}

func (r *resolver) auditFDInfo() {
	data, err := os.ReadFile(fmt.Sprintf("/proc/self/fdinfo/%d", r.fd.FD()))
	if err == nil && log.IsLogging(log.Debug) {
		log.Debugf("%s: fdinfo:\n%s", r.args.Name, data)
	}
}

// serviceOne reads and resolves a single notification. It returns a fatal
// error only for protocol violations and failed resolutions; anomalies are
// logged and absorbed.
func (r *resolver) serviceOne() error {
	msg, err := r.fd.ReadMsg()
	if err != nil {
		if err == unix.EINTR || err == unix.EAGAIN {
			return nil
		}
		log.Warningf("%s: read: %v", r.args.Name, err)
		return nil
	}

	if msg.Event != linux.UFFD_EVENT_PAGEFAULT {
		// Only page faults are expected here; other events do not suspend
		// a thread, so skipping them is safe.
		r.anomaly.Warningf("%s: unexpected event %#x", r.args.Name, msg.Event)
		return nil
	}

	pf := msg.Pagefault()
	addr, err := faultAddr(pf.Address, r.base(), len(r.region), r.pageSize)
	if err != nil {
		return err
	}

	if pf.Flags&linux.UFFD_PAGEFAULT_FLAG_WRITE == 0 {
		// The worker only writes, so this is an anomaly. Resolve it
		// anyway: leaving the fault pending would suspend its thread
		// forever.
		r.anomaly.Warningf("%s: non-write page fault at %#x (flags %#x)", r.args.Name, addr, pf.Flags)
		if err := r.fd.ZeroPage(addr, uint64(r.pageSize)); err != nil {
			return err
		}
		return nil
	}

	// Choose a resolution strategy at random: copy in the template page or
	// zero-fill in place.
	start := time.Now()
	if r.rng.Bool() {
		err = r.fd.Copy(addr, memutil.Addr(r.template), uint64(r.pageSize))
	} else {
		err = r.fd.ZeroPage(addr, uint64(r.pageSize))
	}
	if err != nil {
		return err
	}
	r.resolve.Add(start)

	r.args.Metrics.Inc()
	r.args.Metrics.Set("nanosecs per page fault", r.resolve.RatePerOp(r.args.Metrics.Count()))

	// Make sure nothing stays blocked on the resolved page. Best-effort;
	// the resolution above already woke the faulting thread.
	_ = r.fd.Wake(addr, uint64(r.pageSize))
	return nil
}

// loop is the steady-state resolution loop. It runs until the stop
// condition, a worker exit, or a fatal protocol error.
func (r *resolver) loop() error {
	for r.args.KeepRunning() {
		switch r.wait() {
		case waitRetry:
			continue
		case waitWorkerExit:
			r.reapWorker()
			return r.worker.err()
		case waitData:
		}
		if err := r.serviceOne(); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) reapWorker() {
	if r.workerDone {
		return
	}
	r.worker.done.Read()
	r.workerDone = true
}

// join terminates the worker deterministically: set its stop flag, keep
// draining faults so it can finish its pass, and if it does not exit within
// the retry budget, unregister the region so the kernel resolves all
// outstanding faults natively. The worker is confirmed gone on return.
func (r *resolver) join(unregister func()) {
	r.worker.stop.Store(true)
	if r.workerDone {
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second
	bo.Reset()

	escalated := false
	for {
		pfds := []unix.PollFd{
			{Fd: int32(r.worker.done.FD()), Events: unix.POLLIN},
			{Fd: int32(r.fd.FD()), Events: unix.POLLIN},
		}
		timeout := -1 // after escalation nothing can stay blocked
		if !escalated {
			timeout = pollTimeoutMS
		}
		n, err := unix.Poll(pfds, timeout)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			log.Warningf("%s: poll while joining worker: %v", r.args.Name, err)
		}
		if n > 0 && pfds[0].Revents&unix.POLLIN != 0 {
			r.reapWorker()
			return
		}
		if n > 0 && pfds[1].Revents&unix.POLLIN != 0 {
			// The worker is suspended on a fault; service it so it can
			// reach its stop check.
			if err := r.serviceOne(); err != nil {
				log.Warningf("%s: resolving fault during shutdown: %v", r.args.Name, err)
			}
			continue
		}
		if escalated {
			continue
		}
		if bo.NextBackOff() == backoff.Stop {
			log.Warningf("%s: worker did not exit in time, unregistering region", r.args.Name)
			unregister()
			escalated = true
		}
	}
}

// Run implements stress.Stressor.Run. See the package documentation of
// pkg/uffd for the protocol.
func (userfaultfdStressor) Run(args *stress.Args) stress.Status {
	pageSize := args.PageSize
	sz := regionBytes(args.Opts.UserfaultBytes, args.Instances, pageSize)

	// A thread suspended in a page fault holds its P until the fault is
	// resolved; the resolver must always have another one to run on.
	if runtime.GOMAXPROCS(0) < 2 {
		runtime.GOMAXPROCS(2)
	}

	// Template page: the copy source for the copy-in strategy. Read-only
	// once initialized.
	template, err := memutil.MapAnon(pageSize)
	if err != nil {
		log.Warningf("%s: template page allocation: %v", args.Name, err)
		return stress.NoResource
	}
	cu := cleanup.Make(func() {
		if err := memutil.UnmapSlice(template); err != nil {
			log.Warningf("%s: unmapping template page: %v", args.Name, err)
		}
	})
	defer cu.Clean()
	for i := range template {
		template[i] = templateByte
	}
	_ = unix.Mprotect(template, unix.PROT_READ)

	// The region under demand-paging control.
	region, err := memutil.MapAnon(sz)
	if err != nil {
		log.Warningf("%s: region mmap (%d bytes): %v", args.Name, sz, err)
		return stress.NoResource
	}
	cu.Add(func() {
		if err := memutil.UnmapSlice(region); err != nil {
			log.Warningf("%s: unmapping region: %v", args.Name, err)
		}
	})

	// Robustness probe with an invalid flag value; the result is
	// discarded.
	if probe, err := uffd.Open(^0); err == nil {
		probe.Close()
	}

	fd, err := uffd.Open(0)
	if err != nil {
		return openStatus(args, err)
	}
	cu.Add(func() { fd.Close() })

	// A non-blocking descriptor keeps reads from ever blocking; waits
	// happen in poll, which works either way.
	if err := fd.SetNonblock(); err != nil {
		log.Warningf("%s: setting non-blocking mode: %v", args.Name, err)
	}

	if _, err := fd.API(0); err != nil {
		log.Warningf("%s: %v", args.Name, err)
		return stress.Failure
	}

	base := memutil.Addr(region)
	ioctls, err := fd.RegisterMissing(base, uint64(sz))
	if err != nil {
		log.Warningf("%s: %v", args.Name, err)
		return stress.Failure
	}
	var unregisterOnce sync.Once
	unregister := func() {
		unregisterOnce.Do(func() {
			if err := fd.Unregister(base, uint64(sz)); err != nil {
				log.Warningf("%s: %v", args.Name, err)
			}
		})
	}
	cu.Add(unregister)

	if err := checkResolutionCaps(ioctls); err != nil {
		log.Warningf("%s: %v", args.Name, err)
		return stress.Failure
	}

	rng, err := rand.NewFast()
	if err != nil {
		log.Warningf("%s: seeding strategy chooser: %v", args.Name, err)
		return stress.NoResource
	}

	done, err := eventfd.Create()
	if err != nil {
		log.Warningf("%s: worker eventfd: %v", args.Name, err)
		return stress.NoResource
	}
	cu.Add(func() { done.Close() })

	worker := &faultWorker{
		args:     args,
		region:   region,
		pageSize: pageSize,
		done:     done,
	}

	r := &resolver{
		args:     args,
		fd:       fd,
		region:   region,
		template: template,
		pageSize: pageSize,
		worker:   worker,
		rng:      rng,
		anomaly:  log.BasicRateLimitedLogger(time.Second),
	}

	go worker.run()
	cu.Add(func() { r.join(unregister) })

	if err := r.loop(); err != nil {
		log.Warningf("%s: %v", args.Name, err)
		return stress.Failure
	}

	// Join before deciding the status: a worker failure during the
	// shutdown drain still counts. The cleanup's join is then a no-op.
	r.join(unregister)
	if err := worker.err(); err != nil {
		log.Warningf("%s: worker: %v", args.Name, err)
		return stress.Failure
	}
	return stress.Success
}

// openStatus classifies a failure to open the notification channel.
// Missing support and missing privilege are clean skips; they are reported
// by the first instance only.
func openStatus(args *stress.Args, err error) stress.Status {
	errno := uffd.Errno(err)
	st := stress.StatusFromErrno(errno)
	if args.Instance == 0 {
		switch errno {
		case unix.EPERM:
			log.Infof("%s: stressor will be skipped, insufficient privilege", args.Name)
		case unix.ENOSYS:
			log.Infof("%s: stressor will be skipped, userfaultfd() not supported", args.Name)
		default:
			log.Warningf("%s: userfaultfd: %v", args.Name, err)
		}
	}
	return st
}
