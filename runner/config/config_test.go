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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSizeBytesSet(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    SizeBytes
		wantErr bool
	}{
		{"0", 0, false},
		{"4096", 4096, false},
		{"4k", 4 << 10, false},
		{"256M", 256 << 20, false},
		{"1g", 1 << 30, false},
		{"2t", 2 << 40, false},
		{" 64k ", 64 << 10, false},
		{"", 0, true},
		{"12x", 0, true},
		{"k", 0, true},
		{"-1", 0, true},
		{"99999999999999999t", 0, true},
	} {
		var s SizeBytes
		err := s.Set(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("Set(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && s != tc.want {
			t.Errorf("Set(%q) = %d, want %d", tc.in, s, tc.want)
		}
	}
}

func TestSizeBytesString(t *testing.T) {
	for _, tc := range []struct {
		in   SizeBytes
		want string
	}{
		{0, "0"},
		{512, "512"},
		{4 << 10, "4k"},
		{256 << 20, "256m"},
		{3 << 30, "3g"},
		{1 << 40, "1t"},
		{(1 << 20) + 1, "1048577"},
	} {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("SizeBytes(%d).String() = %q, want %q", uint64(tc.in), got, tc.want)
		}
	}
}

func TestDuration(t *testing.T) {
	var d Duration
	if err := d.Set("90s"); err != nil {
		t.Fatalf("Set(90s): %v", err)
	}
	if time.Duration(d) != 90*time.Second {
		t.Errorf("Set(90s) = %v", time.Duration(d))
	}
	if got := d.String(); got != "1m30s" {
		t.Errorf("String() = %q, want %q", got, "1m30s")
	}
	if err := d.Set("soon"); err == nil {
		t.Errorf("Set(soon) succeeded")
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero instances", func(c *Config) { c.Instances = 0 }, true},
		{"region too small", func(c *Config) { c.UserfaultfdBytes = 1 << 10 }, true},
		{"region minimum", func(c *Config) { c.UserfaultfdBytes = MinUserfaultBytes }, false},
		{"region maximum", func(c *Config) { c.UserfaultfdBytes = MaxUserfaultBytes }, false},
		{"region too large", func(c *Config) { c.UserfaultfdBytes = MaxUserfaultBytes + 1 }, true},
		{"region unset", func(c *Config) { c.UserfaultfdBytes = 0 }, false},
		{"json logs", func(c *Config) { c.LogFormat = "json" }, false},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			err := c.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vmstress.toml")
	data := `
instances = 4
ops = 1000
timeout = "30s"
log-format = "json"
log-file = "/var/log/vmstress.log"
userfaultfd-bytes = "64m"
pipe-data-size = "1k"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	c := Default()
	if err := Load(path, c); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := &Config{
		Instances:        4,
		Ops:              1000,
		Timeout:          Duration(30 * time.Second),
		LogFormat:        "json",
		LogFile:          "/var/log/vmstress.log",
		UserfaultfdBytes: 64 << 20,
		PipeDataSize:     1 << 10,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate after Load: %v", err)
	}
}

func TestLoadUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vmstress.toml")
	if err := os.WriteFile(path, []byte("instancez = 4\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if err := Load(path, Default()); err == nil {
		t.Errorf("Load accepted unknown key")
	}
}

// Flags parsed after Load overwrite file values; that ordering is the whole
// precedence scheme.
func TestFlagPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vmstress.toml")
	if err := os.WriteFile(path, []byte("instances = 4\nops = 7\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	c := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := Load(path, c); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := fs.Parse([]string{"-instances=2"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Instances != 2 {
		t.Errorf("Instances = %d, want flag value 2", c.Instances)
	}
	if c.Ops != 7 {
		t.Errorf("Ops = %d, want file value 7", c.Ops)
	}
}

func TestPeekFile(t *testing.T) {
	for _, tc := range []struct {
		args []string
		want string
	}{
		{[]string{"-config", "a.toml"}, "a.toml"},
		{[]string{"--config", "b.toml"}, "b.toml"},
		{[]string{"-config=c.toml", "-debug"}, "c.toml"},
		{[]string{"-instances", "2"}, ""},
		{[]string{"-config"}, ""},
		{nil, ""},
	} {
		if got := PeekFile(tc.args); got != tc.want {
			t.Errorf("PeekFile(%v) = %q, want %q", tc.args, got, tc.want)
		}
	}
}
