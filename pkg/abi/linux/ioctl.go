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

// Package linux contains the constants and types needed to interface with a
// Linux kernel. It should be used instead of syscall or golang.org/x/sys/unix
// when the host OS may not be Linux.
package linux

// Constants from uapi/asm-generic/ioctl.h.
const (
	_IOC_NRBITS   = 8
	_IOC_TYPEBITS = 8
	_IOC_SIZEBITS = 14
	_IOC_DIRBITS  = 2

	_IOC_NONE  = 0
	_IOC_WRITE = 1
	_IOC_READ  = 2

	_IOC_NRSHIFT   = 0
	_IOC_TYPESHIFT = _IOC_NRSHIFT + _IOC_NRBITS
	_IOC_SIZESHIFT = _IOC_TYPESHIFT + _IOC_TYPEBITS
	_IOC_DIRSHIFT  = _IOC_SIZESHIFT + _IOC_SIZEBITS
)

// IOC outputs the result of the _IOC macro in asm-generic/ioctl.h.
func IOC(dir, typ, nr, size uint32) uint32 {
	return dir<<_IOC_DIRSHIFT | typ<<_IOC_TYPESHIFT | nr<<_IOC_NRSHIFT | size<<_IOC_SIZESHIFT
}

// IO outputs the result of the _IO macro in asm-generic/ioctl.h.
func IO(typ, nr uint32) uint32 {
	return IOC(_IOC_NONE, typ, nr, 0)
}

// IOR outputs the result of the _IOR macro in asm-generic/ioctl.h.
func IOR(typ, nr, size uint32) uint32 {
	return IOC(_IOC_READ, typ, nr, size)
}

// IOW outputs the result of the _IOW macro in asm-generic/ioctl.h.
func IOW(typ, nr, size uint32) uint32 {
	return IOC(_IOC_WRITE, typ, nr, size)
}

// IOWR outputs the result of the _IOWR macro in asm-generic/ioctl.h.
func IOWR(typ, nr, size uint32) uint32 {
	return IOC(_IOC_READ|_IOC_WRITE, typ, nr, size)
}
