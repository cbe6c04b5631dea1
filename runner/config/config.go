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

// Package config holds the runner's configuration, populated from command
// line flags and optionally a TOML file. Flags win over the file.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/vmstress/vmstress/stress"
)

// Bounds on the userfaultfd region, matching the stressor's clamping.
const (
	MinUserfaultBytes = 4 << 10
	MaxUserfaultBytes = 256 << 30
)

// Config is the runner configuration consumed by the run subcommand.
type Config struct {
	// Instances is the number of concurrent instances per stressor.
	Instances int `toml:"instances"`

	// Ops stops each instance after this many operations; zero means
	// unbounded.
	Ops uint64 `toml:"ops"`

	// Timeout stops the whole run; zero means no timeout.
	Timeout Duration `toml:"timeout"`

	// Debug enables debug logging.
	Debug bool `toml:"debug"`

	// LogFormat selects the log emitter: "text" or "json".
	LogFormat string `toml:"log-format"`

	// LogFile, if set, duplicates the log to this file in addition to
	// stderr.
	LogFile string `toml:"log-file"`

	// UserfaultfdBytes is the total demand-paged region size, divided
	// across instances.
	UserfaultfdBytes SizeBytes `toml:"userfaultfd-bytes"`

	// PipeDataSize is the size of each pipe transfer.
	PipeDataSize SizeBytes `toml:"pipe-data-size"`

	// MlockBytes is the mapping size the mlock stressor sweeps.
	MlockBytes SizeBytes `toml:"mlock-bytes"`

	// MmapFixedBytes is the size of each fixed-address mapping.
	MmapFixedBytes SizeBytes `toml:"mmapfixed-bytes"`

	// UDPDataSize is the UDP payload size.
	UDPDataSize SizeBytes `toml:"udp-data-size"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Instances: 1,
		LogFormat: "text",
	}
}

// RegisterFlags registers the configuration's flags on f.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.IntVar(&c.Instances, "instances", c.Instances, "number of concurrent instances per stressor")
	f.Uint64Var(&c.Ops, "ops", c.Ops, "stop each instance after this many operations (0 = unbounded)")
	f.Var(&c.Timeout, "timeout", "stop the run after this duration (0 = no timeout)")
	f.BoolVar(&c.Debug, "debug", c.Debug, "enable debug logging")
	f.StringVar(&c.LogFormat, "log-format", c.LogFormat, `log format: "text" or "json"`)
	f.StringVar(&c.LogFile, "log-file", c.LogFile, "also log to this file")
	f.Var(&c.UserfaultfdBytes, "userfaultfd-bytes", "total demand-paged region size, divided across instances")
	f.Var(&c.PipeDataSize, "pipe-data-size", "size of each pipe transfer")
	f.Var(&c.MlockBytes, "mlock-bytes", "mapping size swept by the mlock stressor")
	f.Var(&c.MmapFixedBytes, "mmapfixed-bytes", "size of each fixed-address mapping")
	f.Var(&c.UDPDataSize, "udp-data-size", "UDP payload size")
}

// Load merges the TOML file at path into c. Values already set by flags are
// overwritten; call before flag.Parse to keep flag precedence.
func Load(path string, c *Config) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys in %s: %v", path, undecoded)
	}
	return nil
}

// PeekFile scans raw command line arguments for the -config flag before
// flag parsing happens, so the file can be loaded first and explicit flags
// keep precedence over it.
func PeekFile(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := strings.TrimPrefix(args[i], "-")
		arg = strings.TrimPrefix(arg, "-")
		if arg == "config" {
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
		if v, ok := strings.CutPrefix(arg, "config="); ok {
			return v
		}
	}
	return ""
}

// Validate range-checks the configuration.
func (c *Config) Validate() error {
	if c.Instances < 1 {
		return fmt.Errorf("instances must be at least 1, got %d", c.Instances)
	}
	if b := uint64(c.UserfaultfdBytes); b != 0 && (b < MinUserfaultBytes || b > MaxUserfaultBytes) {
		return fmt.Errorf("userfaultfd-bytes must be in [%d, %d], got %d", uint64(MinUserfaultBytes), uint64(MaxUserfaultBytes), b)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format %q", c.LogFormat)
	}
	return nil
}

// Options converts the configuration into stressor tunables.
func (c *Config) Options() stress.Options {
	return stress.Options{
		UserfaultBytes: uint64(c.UserfaultfdBytes),
		PipeDataSize:   int(c.PipeDataSize),
		MlockBytes:     uint64(c.MlockBytes),
		MmapFixedBytes: uint64(c.MmapFixedBytes),
		UDPDataSize:    int(c.UDPDataSize),
	}
}

// Duration wraps time.Duration with text (un)marshalling for TOML and
// flags.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	return d.Set(string(text))
}

// Set implements flag.Value.
func (d *Duration) Set(v string) error {
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// String implements flag.Value.
func (d *Duration) String() string {
	return time.Duration(*d).String()
}
