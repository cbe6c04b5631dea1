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

package rand

import "testing"

func TestRead(t *testing.T) {
	var buf [64]byte
	n, err := Read(buf[:])
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Read returned %d bytes, want %d", n, len(buf))
	}
	allZero := true
	for _, b := range buf {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Fatalf("Read returned all zeroes")
	}
}

func TestFastBothOutcomes(t *testing.T) {
	f, err := NewFast()
	if err != nil {
		t.Fatalf("NewFast: %v", err)
	}
	var heads, tails int
	for i := 0; i < 1000; i++ {
		if f.Bool() {
			heads++
		} else {
			tails++
		}
	}
	// The generator only needs variety, not balance, but both strategies
	// must be reachable.
	if heads == 0 || tails == 0 {
		t.Fatalf("coin flips not covering both outcomes: heads=%d tails=%d", heads, tails)
	}
}

func TestFastNeverZero(t *testing.T) {
	f := &Fast{state: 1}
	for i := 0; i < 10000; i++ {
		if f.Uint64() == 0 {
			t.Fatalf("xorshift reached zero at draw %d", i)
		}
	}
}
