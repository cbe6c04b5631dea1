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

package linux

// Constants from uapi/linux/userfaultfd.h.
const (
	// UFFD_API is the userfaultfd API version negotiated via UFFDIO_API.
	UFFD_API = 0xaa

	// UFFDIO is the userfaultfd ioctl type ("magic") byte.
	UFFDIO = 0xaa
)

// Ioctl operation numbers from uapi/linux/userfaultfd.h. These double as bit
// positions in the ioctls mask returned by UFFDIO_API and UFFDIO_REGISTER.
const (
	_UFFDIO_REGISTER   = 0x00
	_UFFDIO_UNREGISTER = 0x01
	_UFFDIO_WAKE       = 0x02
	_UFFDIO_COPY       = 0x03
	_UFFDIO_ZEROPAGE   = 0x04
	_UFFDIO_API        = 0x3f
)

// Bits in the ioctls mask returned by UFFDIO_REGISTER.
const (
	UFFDIO_COPY_SUPPORTED     = uint64(1) << _UFFDIO_COPY
	UFFDIO_ZEROPAGE_SUPPORTED = uint64(1) << _UFFDIO_ZEROPAGE
	UFFDIO_WAKE_SUPPORTED     = uint64(1) << _UFFDIO_WAKE
)

// ioctl(2) requests from uapi/linux/userfaultfd.h. The sizes are those of
// the request structs below; all fields are fixed-width, so the values are
// identical on amd64 and arm64 (UFFDIO_API is 0xc018aa3f on both).
var (
	UFFDIO_API        = IOWR(UFFDIO, _UFFDIO_API, 24)
	UFFDIO_REGISTER   = IOWR(UFFDIO, _UFFDIO_REGISTER, 32)
	UFFDIO_UNREGISTER = IOR(UFFDIO, _UFFDIO_UNREGISTER, 16)
	UFFDIO_WAKE       = IOR(UFFDIO, _UFFDIO_WAKE, 16)
	UFFDIO_COPY       = IOWR(UFFDIO, _UFFDIO_COPY, 40)
	UFFDIO_ZEROPAGE   = IOWR(UFFDIO, _UFFDIO_ZEROPAGE, 32)

	// USERFAULTFD_IOC_NEW creates a userfaultfd out of /dev/userfaultfd,
	// for kernels that restrict the syscall to privileged callers.
	USERFAULTFD_IOC_NEW = IO(UFFDIO, 0x00)
)

// Register mode flags for UffdioRegister.Mode.
const (
	UFFDIO_REGISTER_MODE_MISSING = 1 << 0
	UFFDIO_REGISTER_MODE_WP      = 1 << 1
	UFFDIO_REGISTER_MODE_MINOR   = 1 << 2
)

// Events delivered in UffdMsg.Event.
const (
	UFFD_EVENT_PAGEFAULT = 0x12
	UFFD_EVENT_FORK      = 0x13
	UFFD_EVENT_REMAP     = 0x14
	UFFD_EVENT_REMOVE    = 0x15
	UFFD_EVENT_UNMAP     = 0x16
)

// Page fault flags in UffdPagefault.Flags.
const (
	UFFD_PAGEFAULT_FLAG_WRITE = 1 << 0
	UFFD_PAGEFAULT_FLAG_WP    = 1 << 1
	UFFD_PAGEFAULT_FLAG_MINOR = 1 << 2
)

// UffdioAPI is struct uffdio_api, used with UFFDIO_API.
type UffdioAPI struct {
	API      uint64
	Features uint64
	Ioctls   uint64
}

// UffdioRange is struct uffdio_range, used with UFFDIO_UNREGISTER and
// UFFDIO_WAKE and embedded in the register/zeropage requests.
type UffdioRange struct {
	Start uint64
	Len   uint64
}

// UffdioRegister is struct uffdio_register, used with UFFDIO_REGISTER.
// Ioctls is filled in by the kernel with the mask of operations supported
// for the registered range.
type UffdioRegister struct {
	Range  UffdioRange
	Mode   uint64
	Ioctls uint64
}

// UffdioCopy is struct uffdio_copy, used with UFFDIO_COPY. Copy is filled in
// by the kernel with the number of bytes copied, or a negative errno.
type UffdioCopy struct {
	Dst  uint64
	Src  uint64
	Len  uint64
	Mode uint64
	Copy int64
}

// UffdioZeropage is struct uffdio_zeropage, used with UFFDIO_ZEROPAGE.
type UffdioZeropage struct {
	Range    UffdioRange
	Mode     uint64
	Zeropage int64
}

// SizeOfUffdMsg is the size of struct uffd_msg (8 byte header plus a 24 byte
// argument union).
const SizeOfUffdMsg = 32

// UffdMsg is struct uffd_msg, one notification record read from a
// userfaultfd. Arg is the event-specific union; use Pagefault for
// UFFD_EVENT_PAGEFAULT.
type UffdMsg struct {
	Event     uint8
	Reserved1 uint8
	Reserved2 uint16
	Reserved3 uint32
	Arg       [24]byte
}

// UffdPagefault is the pagefault member of struct uffd_msg's argument union.
type UffdPagefault struct {
	Flags   uint64
	Address uint64
	PTID    uint32
	_       uint32
}
