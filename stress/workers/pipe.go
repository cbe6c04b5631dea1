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

package workers

import (
	"encoding/binary"

	"github.com/vmstress/vmstress/pkg/log"
	"github.com/vmstress/vmstress/pkg/uffd"
	"github.com/vmstress/vmstress/stress"
	"golang.org/x/sys/unix"
)

const (
	minPipeDataSize     = 8
	defaultPipeDataSize = 512
)

func init() {
	stress.Register(pipeStressor{})
}

// pipeStressor pumps sequence-stamped buffers through a pipe between a
// writer and a reader goroutine.
type pipeStressor struct{}

// Name implements stress.Stressor.Name.
func (pipeStressor) Name() string { return "pipe" }

// Run implements stress.Stressor.Run.
func (pipeStressor) Run(args *stress.Args) stress.Status {
	size := args.Opts.PipeDataSize
	if size == 0 {
		size = defaultPipeDataSize
	}
	if size < minPipeDataSize {
		size = minPipeDataSize
	}
	if size > args.PageSize {
		size = args.PageSize
	}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		log.Warningf("%s: pipe2: %v", args.Name, err)
		return stress.StatusFromErrno(uffd.Errno(err))
	}
	rd, wr := fds[0], fds[1]

	writeErr := make(chan error, 1)
	go func() {
		defer close(writeErr)
		defer unix.Close(wr)
		buf := make([]byte, size)
		var seq uint64
		for args.KeepRunning() {
			binary.LittleEndian.PutUint64(buf, seq)
			if _, err := unix.Write(wr, buf); err != nil {
				if err == unix.EINTR {
					continue
				}
				if err != unix.EPIPE {
					writeErr <- err
				}
				return
			}
			seq++
		}
	}()

	status := stress.Success
	buf := make([]byte, size)
	var want uint64
	for {
		n, err := unix.Read(rd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			log.Warningf("%s: read: %v", args.Name, err)
			status = stress.Failure
			break
		}
		if n == 0 {
			// Writer is done.
			break
		}
		if n >= 8 {
			if got := binary.LittleEndian.Uint64(buf); got != want {
				log.Warningf("%s: data sequence error, got %d, want %d", args.Name, got, want)
				status = stress.Failure
				break
			}
		}
		want++
		args.Metrics.Inc()
		if !args.KeepRunning() {
			break
		}
	}
	unix.Close(rd)
	args.Stop() // unblocks the writer if we exited first
	if err, ok := <-writeErr; ok && err != nil {
		log.Warningf("%s: write: %v", args.Name, err)
		status = stress.Failure
	}
	return status
}
