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

// Package memutil provides utilities for working with memory mappings.
package memutil

import (
	"golang.org/x/sys/unix"
)

// MapAnon maps a private anonymous read/write region of the given size,
// returned as a slice. The mapping is page-aligned by construction.
func MapAnon(size int) ([]byte, error) {
	return MapSlice(0, uintptr(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
		^uintptr(0) /* fd */, 0)
}

// MadviseDontNeed tells the kernel the mapping's current contents are
// unneeded; the next access to each page faults it back in.
func MadviseDontNeed(slice []byte) error {
	return madvise(slice, unix.MADV_DONTNEED)
}
