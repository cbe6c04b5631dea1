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

import "unsafe"

// Pagefault returns m's argument union interpreted as a pagefault record.
// Valid only when m.Event is UFFD_EVENT_PAGEFAULT.
func (m *UffdMsg) Pagefault() *UffdPagefault {
	return (*UffdPagefault)(unsafe.Pointer(&m.Arg[0]))
}
