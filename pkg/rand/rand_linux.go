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

// Package rand implements a cryptographically secure pseudorandom number
// generator, plus a fast insecure generator for stress variety.
package rand

import (
	"encoding/binary"
	"io"

	"golang.org/x/sys/unix"
)

// reader implements an io.Reader that returns pseudorandom bytes.
type reader struct{}

// Read implements io.Reader.Read.
func (reader) Read(p []byte) (int, error) {
	return unix.Getrandom(p, 0)
}

// Reader is the default reader.
var Reader io.Reader = reader{}

// Read reads from the default reader.
func Read(b []byte) (int, error) {
	return io.ReadFull(Reader, b)
}

// Fast is a xorshift64 generator. It is not cryptographically secure; it
// exists so hot loops can flip coins without a syscall per draw. The zero
// value is not usable, construct with NewFast.
type Fast struct {
	state uint64
}

// NewFast returns a Fast generator seeded from the default reader.
func NewFast() (*Fast, error) {
	var seed [8]byte
	if _, err := Read(seed[:]); err != nil {
		return nil, err
	}
	s := binary.LittleEndian.Uint64(seed[:])
	if s == 0 {
		// xorshift sticks at zero.
		s = 0x9e3779b97f4a7c15
	}
	return &Fast{state: s}, nil
}

// Uint64 returns the next value in the sequence.
func (f *Fast) Uint64() uint64 {
	x := f.state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	f.state = x
	return x
}

// Bool returns the next coin flip.
func (f *Fast) Bool() bool {
	return f.Uint64()&1 != 0
}
