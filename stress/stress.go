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

// Package stress defines the worker-lifecycle harness: the Stressor
// interface, per-instance run arguments, the stop condition, and the
// metrics sink stressors report through.
package stress

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stressor is a single stress worker. Run executes one instance to
// completion or to the harness's stop condition and reports how it ended.
// Implementations must release every resource they acquire on every exit
// path.
type Stressor interface {
	// Name returns the stressor's registration name.
	Name() string

	// Run runs the stressor with the given per-instance arguments.
	Run(args *Args) Status
}

// Args carries the per-instance state a stressor runs against. It is
// created by the harness and shared read-only with the stressor, except for
// the stop flag and the metrics sink.
type Args struct {
	// Name is the stressor name, for logging.
	Name string

	// Instance is this instance's index, in [0, Instances).
	Instance int

	// Instances is the number of concurrent instances of this stressor.
	Instances int

	// PageSize is the system page size.
	PageSize int

	// MaxOps bounds the op counter; zero means unbounded.
	MaxOps uint64

	// Opts holds the tunables consumed by individual stressors.
	Opts Options

	// Metrics receives the instance's counters and derived metrics.
	Metrics *Metrics

	stop atomic.Bool
}

// Stop requests cooperative termination. It is safe to call from any
// goroutine and more than once.
func (a *Args) Stop() {
	a.stop.Store(true)
}

// Stopping reports whether Stop has been called.
func (a *Args) Stopping() bool {
	return a.stop.Load()
}

// KeepRunning is the harness's keep-going predicate: no stop request and
// the op budget, if any, not yet spent.
func (a *Args) KeepRunning() bool {
	if a.stop.Load() {
		return false
	}
	return a.MaxOps == 0 || a.Metrics.Count() < a.MaxOps
}

// Options are the stressor tunables, populated by the runner's config
// layer. A zero value selects each stressor's default.
type Options struct {
	// UserfaultBytes is the total size of the demand-paged region, split
	// evenly across instances.
	UserfaultBytes uint64

	// PipeDataSize is the size of each pipe transfer.
	PipeDataSize int

	// MlockBytes is the size of the mapping the mlock stressor sweeps.
	MlockBytes uint64

	// MmapFixedBytes is the size of each fixed-address mapping.
	MmapFixedBytes uint64

	// UDPDataSize is the UDP datagram payload size.
	UDPDataSize int
}

// Metrics accumulates an op counter and named derived metrics for one
// stressor instance.
type Metrics struct {
	ops atomic.Uint64

	mu     sync.Mutex
	values map[string]float64
}

// NewMetrics returns an empty metrics sink.
func NewMetrics() *Metrics {
	return &Metrics{values: make(map[string]float64)}
}

// Inc bumps the op counter.
func (m *Metrics) Inc() {
	m.ops.Add(1)
}

// Count returns the op counter.
func (m *Metrics) Count() uint64 {
	return m.ops.Load()
}

// Set records a named derived metric, overwriting any previous value.
func (m *Metrics) Set(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
}

// Values returns a copy of the derived metrics.
func (m *Metrics) Values() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Timer measures cumulative duration across repeated sections, for derived
// per-op latencies.
type Timer struct {
	total time.Duration
}

// Add accumulates the time elapsed since start.
func (t *Timer) Add(start time.Time) {
	t.total += time.Since(start)
}

// RatePerOp returns the average duration per op in nanoseconds, or zero
// when no ops completed.
func (t *Timer) RatePerOp(ops uint64) float64 {
	if ops == 0 {
		return 0
	}
	return float64(t.total.Nanoseconds()) / float64(ops)
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]Stressor)
)

// Register adds a stressor to the global registry. It panics on duplicate
// names; registration happens from init functions only.
func Register(s Stressor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	name := s.Name()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("stressor %q registered twice", name))
	}
	registry[name] = s
}

// Lookup returns the named stressor.
func Lookup(name string) (Stressor, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	s, ok := registry[name]
	return s, ok
}

// Names returns all registered stressor names, sorted.
func Names() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
