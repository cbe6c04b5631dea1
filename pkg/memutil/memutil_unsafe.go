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

package memutil

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// MapFile returns a memory mapping configured by the given options as per
// mmap(2).
func MapFile(addr, size, prot, flags, fd, offset uintptr) (uintptr, error) {
	m, _, e := unix.RawSyscall6(unix.SYS_MMAP, addr, size, prot, flags, fd, offset)
	if e != 0 {
		return 0, e
	}
	return m, nil
}

// MapSlice is like MapFile, but returns a slice instead of a uintptr.
func MapSlice(addr, size, prot, flags, fd, offset uintptr) ([]byte, error) {
	addr, err := MapFile(addr, size, prot, flags, fd, offset)
	if err != nil {
		return nil, err
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size)), nil
}

// UnmapSlice unmaps a mapping returned by MapSlice.
func UnmapSlice(slice []byte) error {
	ptr := unsafe.SliceData(slice)
	_, _, err := unix.RawSyscall6(unix.SYS_MUNMAP, uintptr(unsafe.Pointer(ptr)), uintptr(cap(slice)), 0, 0, 0, 0)
	if err != 0 {
		return err
	}
	return nil
}

// Addr returns the base address of a mapping returned by MapSlice.
func Addr(slice []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(slice)))
}

func madvise(slice []byte, advice int) error {
	ptr := unsafe.SliceData(slice)
	_, _, err := unix.RawSyscall(unix.SYS_MADVISE, uintptr(unsafe.Pointer(ptr)), uintptr(len(slice)), uintptr(advice))
	if err != 0 {
		return err
	}
	return nil
}
