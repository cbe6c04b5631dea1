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
	"fmt"
	"strconv"
	"strings"
)

// SizeBytes is a byte count that accepts an optional k/m/g/t suffix
// (binary multiples), e.g. "256m".
type SizeBytes uint64

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SizeBytes) UnmarshalText(text []byte) error {
	return s.Set(string(text))
}

// Set implements flag.Value.
func (s *SizeBytes) Set(v string) error {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return fmt.Errorf("empty size")
	}
	mult := uint64(1)
	switch v[len(v)-1] {
	case 'k':
		mult = 1 << 10
		v = v[:len(v)-1]
	case 'm':
		mult = 1 << 20
		v = v[:len(v)-1]
	case 'g':
		mult = 1 << 30
		v = v[:len(v)-1]
	case 't':
		mult = 1 << 40
		v = v[:len(v)-1]
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", v, err)
	}
	if mult != 1 && n > ^uint64(0)/mult {
		return fmt.Errorf("size %q overflows", v)
	}
	*s = SizeBytes(n * mult)
	return nil
}

// String implements flag.Value.
func (s *SizeBytes) String() string {
	n := uint64(*s)
	switch {
	case n >= 1<<40 && n%(1<<40) == 0:
		return fmt.Sprintf("%dt", n>>40)
	case n >= 1<<30 && n%(1<<30) == 0:
		return fmt.Sprintf("%dg", n>>30)
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dm", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dk", n>>10)
	default:
		return strconv.FormatUint(n, 10)
	}
}
