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
	"github.com/vmstress/vmstress/pkg/log"
	"github.com/vmstress/vmstress/pkg/uffd"
	"github.com/vmstress/vmstress/stress"
	"golang.org/x/sys/unix"
)

const defaultUDPDataSize = 256

func init() {
	stress.Register(udpStressor{})
}

// udpStressor pumps datagrams between a sender and a receiver socket over
// loopback.
type udpStressor struct{}

// Name implements stress.Stressor.Name.
func (udpStressor) Name() string { return "udp" }

func udpSocket() (int, *unix.SockaddrInet4, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, nil, err
	}
	sa := &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	return fd, bound.(*unix.SockaddrInet4), nil
}

// Run implements stress.Stressor.Run.
func (udpStressor) Run(args *stress.Args) stress.Status {
	size := args.Opts.UDPDataSize
	if size == 0 {
		size = defaultUDPDataSize
	}

	rfd, raddr, err := udpSocket()
	if err != nil {
		log.Warningf("%s: receiver socket: %v", args.Name, err)
		return stress.StatusFromErrno(uffd.Errno(err))
	}
	defer unix.Close(rfd)
	sfd, _, err := udpSocket()
	if err != nil {
		log.Warningf("%s: sender socket: %v", args.Name, err)
		return stress.StatusFromErrno(uffd.Errno(err))
	}
	defer unix.Close(sfd)

	// Keep the receiver responsive to the stop condition.
	tv := unix.Timeval{Usec: 100 * 1000}
	if err := unix.SetsockoptTimeval(rfd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		log.Warningf("%s: SO_RCVTIMEO: %v", args.Name, err)
		return stress.Failure
	}

	sendDone := make(chan error, 1)
	go func() {
		defer close(sendDone)
		buf := make([]byte, size)
		for i := range buf {
			buf[i] = byte(i)
		}
		for args.KeepRunning() {
			if err := unix.Sendto(sfd, buf, 0, raddr); err != nil {
				if err == unix.EINTR || err == unix.ENOBUFS || err == unix.EAGAIN {
					continue
				}
				sendDone <- err
				return
			}
		}
	}()

	status := stress.Success
	buf := make([]byte, size)
	for args.KeepRunning() {
		n, _, err := unix.Recvfrom(rfd, buf, 0)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			log.Warningf("%s: recvfrom: %v", args.Name, err)
			status = stress.Failure
			break
		}
		if n != size {
			log.Warningf("%s: short datagram, got %d bytes, want %d", args.Name, n, size)
			status = stress.Failure
			break
		}
		args.Metrics.Inc()
	}
	args.Stop()
	if err, ok := <-sendDone; ok && err != nil {
		log.Warningf("%s: sendto: %v", args.Name, err)
		status = stress.Failure
	}
	return status
}
