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

// Package uffd wraps Linux's userfaultfd(2) fault-notification channel.
//
// A userfaultfd delivers page faults on registered memory ranges to the
// reading thread instead of resolving them in the kernel. The faulting
// thread stays suspended until the reader resolves the fault with
// UFFDIO_COPY or UFFDIO_ZEROPAGE, which is the mutual exclusion the whole
// protocol rests on: no locks are needed on the registered memory.
package uffd

import (
	"errors"
	"fmt"
	"os"

	"github.com/vmstress/vmstress/pkg/abi/linux"
	"golang.org/x/sys/unix"
)

// FD owns a userfaultfd descriptor.
type FD struct {
	fd int
}

// Open creates a new userfaultfd. It prefers the userfaultfd(2) syscall and
// falls back to /dev/userfaultfd where the syscall is unavailable or
// restricted to privileged callers.
func Open(flags int) (*FD, error) {
	fd, _, errno := unix.Syscall(unix.SYS_USERFAULTFD, uintptr(flags), 0, 0)
	if errno == 0 {
		return &FD{fd: int(fd)}, nil
	}
	if errno != unix.ENOSYS && errno != unix.EPERM {
		return nil, os.NewSyscallError("userfaultfd", errno)
	}

	dev, err := os.OpenFile("/dev/userfaultfd", os.O_RDWR, 0)
	if err != nil {
		// Surface the original errno; the device's absence adds nothing.
		return nil, os.NewSyscallError("userfaultfd", errno)
	}
	defer dev.Close()

	fd, _, errno = unix.Syscall(unix.SYS_IOCTL, dev.Fd(), uintptr(linux.USERFAULTFD_IOC_NEW), uintptr(flags))
	if errno != 0 {
		return nil, os.NewSyscallError("ioctl(USERFAULTFD_IOC_NEW)", errno)
	}
	return &FD{fd: int(fd)}, nil
}

// FD returns the underlying file descriptor, for polling.
func (f *FD) FD() int {
	return f.fd
}

// Close closes the userfaultfd, after which it should not be used.
func (f *FD) Close() error {
	return unix.Close(f.fd)
}

// SetNonblock puts the descriptor in non-blocking mode, enabling polled
// waits on it.
func (f *FD) SetNonblock() error {
	return unix.SetNonblock(f.fd, true)
}

// API performs the UFFDIO_API handshake: it declares the caller's protocol
// version and features, and verifies that the kernel echoes the same
// version back. A version mismatch is an error.
func (f *FD) API(features uint64) (linux.UffdioAPI, error) {
	api := linux.UffdioAPI{
		API:      linux.UFFD_API,
		Features: features,
	}
	if err := f.ioctl(linux.UFFDIO_API, apiPtr(&api)); err != nil {
		return api, fmt.Errorf("UFFDIO_API: %w", err)
	}
	if api.API != linux.UFFD_API {
		return api, fmt.Errorf("UFFDIO_API: kernel negotiated version %#x, want %#x", api.API, linux.UFFD_API)
	}
	return api, nil
}

// RegisterMissing registers [addr, addr+length) for missing-page
// notifications only and returns the mask of resolution ioctls the kernel
// supports for the range.
func (f *FD) RegisterMissing(addr uintptr, length uint64) (uint64, error) {
	reg := linux.UffdioRegister{
		Range: linux.UffdioRange{
			Start: uint64(addr),
			Len:   length,
		},
		Mode: linux.UFFDIO_REGISTER_MODE_MISSING,
	}
	if err := f.ioctl(linux.UFFDIO_REGISTER, registerPtr(&reg)); err != nil {
		return 0, fmt.Errorf("UFFDIO_REGISTER: %w", err)
	}
	return reg.Ioctls, nil
}

// Unregister removes a registration installed by RegisterMissing. Threads
// still suspended on the range are woken and their faults resolved by the
// kernel as ordinary anonymous faults.
func (f *FD) Unregister(addr uintptr, length uint64) error {
	rng := linux.UffdioRange{
		Start: uint64(addr),
		Len:   length,
	}
	if err := f.ioctl(linux.UFFDIO_UNREGISTER, rangePtr(&rng)); err != nil {
		return fmt.Errorf("UFFDIO_UNREGISTER: %w", err)
	}
	return nil
}

// Copy resolves a fault at dst by copying length bytes from src, waking the
// suspended thread.
func (f *FD) Copy(dst, src uintptr, length uint64) error {
	cp := linux.UffdioCopy{
		Dst: uint64(dst),
		Src: uint64(src),
		Len: length,
	}
	if err := f.ioctl(linux.UFFDIO_COPY, copyPtr(&cp)); err != nil {
		return fmt.Errorf("UFFDIO_COPY: %w", err)
	}
	return nil
}

// ZeroPage resolves a fault at addr with zero content, waking the suspended
// thread.
func (f *FD) ZeroPage(addr uintptr, length uint64) error {
	zp := linux.UffdioZeropage{
		Range: linux.UffdioRange{
			Start: uint64(addr),
			Len:   length,
		},
	}
	if err := f.ioctl(linux.UFFDIO_ZEROPAGE, zeropagePtr(&zp)); err != nil {
		return fmt.Errorf("UFFDIO_ZEROPAGE: %w", err)
	}
	return nil
}

// Wake wakes any thread suspended on [addr, addr+length). Best-effort
// callers may ignore the error.
func (f *FD) Wake(addr uintptr, length uint64) error {
	rng := linux.UffdioRange{
		Start: uint64(addr),
		Len:   length,
	}
	if err := f.ioctl(linux.UFFDIO_WAKE, rangePtr(&rng)); err != nil {
		return fmt.Errorf("UFFDIO_WAKE: %w", err)
	}
	return nil
}

// ReadMsg reads exactly one notification record. It does not retry EINTR;
// callers decide where to resume.
func (f *FD) ReadMsg() (linux.UffdMsg, error) {
	return f.readMsg()
}

// Errno unwraps err down to a unix.Errno, or 0 if there is none.
func Errno(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	var syserr *os.SyscallError
	if errors.As(err, &syserr) {
		if e, ok := syserr.Err.(unix.Errno); ok {
			return e
		}
	}
	return 0
}
