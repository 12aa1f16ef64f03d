// File: iomanager/iomanager_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
//go:build linux

package iomanager

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// epollPoller backs IOManager with the kernel's epoll facility, plus a
// self-pipe used to interrupt a blocking epoll_wait from Tickle.
type epollPoller struct {
	epfd        int
	wakeR, wakeW int
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("iomanager: epoll_create1: %w", err)
	}
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("iomanager: pipe2: %w", err)
	}
	p := &epollPoller{epfd: epfd, wakeR: fds[0], wakeW: fds[1]}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, p.wakeR, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET,
		Fd:     int32(p.wakeR),
	}); err != nil {
		p.close()
		return nil, fmt.Errorf("iomanager: registering wake pipe: %w", err)
	}
	return p, nil
}

func toEpollEvents(ev Event) uint32 {
	e := uint32(unix.EPOLLET)
	if ev&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if ev&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func fromEpollEvents(e uint32) Event {
	var ev Event
	if e&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		ev |= EventRead
	}
	if e&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		ev |= EventWrite
	}
	return ev
}

func (p *epollPoller) add(fd int, ev Event) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: toEpollEvents(ev),
		Fd:     int32(fd),
	})
}

func (p *epollPoller) modify(fd int, ev Event) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: toEpollEvents(ev),
		Fd:     int32(fd),
	})
}

func (p *epollPoller) remove(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

// maxEvents bounds how many ready fds a single epoll_wait call returns.
const maxEvents = 256

func (p *epollPoller) wait(timeoutMs int) ([]readyFd, error) {
	raw := make([]unix.EpollEvent, maxEvents)
	n, err := unix.EpollWait(p.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	ready := make([]readyFd, 0, n)
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		if fd == p.wakeR {
			p.drainWake()
			continue
		}
		ready = append(ready, readyFd{fd: fd, events: fromEpollEvents(raw[i].Events)})
	}
	return ready, nil
}

func (p *epollPoller) drainWake() {
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(p.wakeR, buf)
		if n <= 0 || err != nil {
			return
		}
	}
}

func (p *epollPoller) wake() error {
	_, err := unix.Write(p.wakeW, []byte{0})
	if err == unix.EAGAIN {
		return nil // a wake is already pending in the pipe's buffer
	}
	return err
}

func (p *epollPoller) close() error {
	unix.Close(p.wakeR)
	unix.Close(p.wakeW)
	return unix.Close(p.epfd)
}
