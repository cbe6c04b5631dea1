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

package uffd

import (
	"io"
	"unsafe"

	"github.com/vmstress/vmstress/pkg/abi/linux"
	"golang.org/x/sys/unix"
)

func (f *FD) ioctl(req uint32, arg unsafe.Pointer) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(f.fd), uintptr(req), uintptr(arg)); errno != 0 {
		return errno
	}
	return nil
}

func apiPtr(api *linux.UffdioAPI) unsafe.Pointer           { return unsafe.Pointer(api) }
func registerPtr(reg *linux.UffdioRegister) unsafe.Pointer { return unsafe.Pointer(reg) }
func rangePtr(rng *linux.UffdioRange) unsafe.Pointer       { return unsafe.Pointer(rng) }
func copyPtr(cp *linux.UffdioCopy) unsafe.Pointer          { return unsafe.Pointer(cp) }
func zeropagePtr(zp *linux.UffdioZeropage) unsafe.Pointer  { return unsafe.Pointer(zp) }

func (f *FD) readMsg() (linux.UffdMsg, error) {
	var msg linux.UffdMsg
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&msg)), linux.SizeOfUffdMsg)
	n, err := unix.Read(f.fd, buf)
	if err != nil {
		return msg, err
	}
	// The kernel delivers whole records only.
	if n != linux.SizeOfUffdMsg {
		return msg, io.ErrUnexpectedEOF
	}
	return msg, nil
}
