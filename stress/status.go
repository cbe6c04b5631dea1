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

package stress

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Status is a stressor instance's exit classification.
type Status int

const (
	// Success means the instance ran to its stop condition.
	Success Status = iota

	// Failure means a protocol violation or unexpected kernel behavior; a
	// defect worth investigating.
	Failure

	// NoResource means the environment could not supply a resource
	// (memory, privilege, descriptors). Not a defect.
	NoResource

	// NotImplemented means the kernel lacks the exercised facility. Not a
	// defect.
	NotImplemented
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case NoResource:
		return "no-resource"
	case NotImplemented:
		return "not-implemented"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Severity ranks statuses for aggregation across instances; higher is
// worse.
func (s Status) Severity() int {
	switch s {
	case Success:
		return 0
	case NotImplemented:
		return 1
	case NoResource:
		return 2
	default:
		return 3
	}
}

// StatusFromErrno classifies an errno the way the harness reports exits:
// missing facility and insufficient privilege are environment problems, not
// defects.
func StatusFromErrno(errno unix.Errno) Status {
	switch errno {
	case 0:
		return Success
	case unix.ENOSYS:
		return NotImplemented
	case unix.EPERM, unix.EACCES, unix.ENOMEM, unix.ENOSPC, unix.EMFILE, unix.ENFILE, unix.EAGAIN:
		return NoResource
	default:
		return Failure
	}
}
