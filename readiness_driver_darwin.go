//go:build darwin

package coreio

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the Darwin poller implementation, adapted from the
// teacher's kqueue-based FastPoller (poller_darwin.go): a dynamically
// growable fd table instead of epoll's fixed array, since Darwin fd limits
// are configured per-process rather than compiled in.
type kqueuePoller struct {
	kq       int
	version  atomic.Uint64
	eventBuf [256]unix.Kevent_t
	fdMu     sync.RWMutex
	fds      map[int]fdInfo
}

func newPlatformPoller() poller { return &kqueuePoller{fds: make(map[int]fdInfo)} }

func (p *kqueuePoller) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	p.kq = kq
	return nil
}

func (p *kqueuePoller) close() error {
	return unix.Close(p.kq)
}

func (p *kqueuePoller) registerFD(fd int, events IOEvents, cb ioCallback) error {
	p.fdMu.Lock()
	if _, ok := p.fds[fd]; ok {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.version.Add(1)
	p.fdMu.Unlock()
	return p.apply(fd, events, unix.EV_ADD|unix.EV_ENABLE)
}

func (p *kqueuePoller) unregisterFD(fd int) error {
	p.fdMu.Lock()
	info, ok := p.fds[fd]
	if !ok {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	delete(p.fds, fd)
	p.version.Add(1)
	p.fdMu.Unlock()
	return p.apply(fd, info.events, unix.EV_DELETE)
}

func (p *kqueuePoller) modifyFD(fd int, events IOEvents) error {
	p.fdMu.Lock()
	info, ok := p.fds[fd]
	if !ok {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	info.events = events
	p.fds[fd] = info
	p.version.Add(1)
	p.fdMu.Unlock()
	if err := p.apply(fd, events, unix.EV_DELETE); err != nil {
		return err
	}
	return p.apply(fd, events, unix.EV_ADD|unix.EV_ENABLE)
}

func (p *kqueuePoller) apply(fd int, events IOEvents, flags uint16) error {
	var changes []unix.Kevent_t
	if events&EventRead != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) pollIO(timeoutMs int) (int, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * int64(1e6))
		ts = &t
	}
	v := p.version.Load()
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	if p.version.Load() != v {
		return 0, nil
	}
	p.dispatch(n)
	return n, nil
}

func (p *kqueuePoller) dispatch(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		p.fdMu.RLock()
		info, ok := p.fds[fd]
		p.fdMu.RUnlock()
		if !ok || !info.active || info.callback == nil {
			continue
		}
		var events IOEvents
		switch p.eventBuf[i].Filter {
		case unix.EVFILT_READ:
			events = EventRead
		case unix.EVFILT_WRITE:
			events = EventWrite
		}
		if p.eventBuf[i].Flags&unix.EV_EOF != 0 {
			events |= EventHangup
		}
		if p.eventBuf[i].Flags&unix.EV_ERROR != 0 {
			events |= EventError
		}
		info.callback(events)
	}
}

// selfPipeUnpark is the cross-thread wake mechanism on Darwin, which has no
// eventfd: a non-blocking self-pipe, grounded on the teacher's
// wakeup_darwin.go createWakeFd/drainWakeUpPipe.
type selfPipeUnpark struct {
	r, w int
}

func newSelfPipeUnpark() (*selfPipeUnpark, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	if err := unix.SetNonblock(fds[0], true); err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		return nil, err
	}
	return &selfPipeUnpark{r: fds[0], w: fds[1]}, nil
}

func (u *selfPipeUnpark) readFD() int { return u.r }

func (u *selfPipeUnpark) Unpark() error {
	_, err := unix.Write(u.w, []byte{1})
	if err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

func (u *selfPipeUnpark) drain() {
	var buf [64]byte
	for {
		_, err := unix.Read(u.r, buf[:])
		if err != nil {
			return
		}
	}
}

func (u *selfPipeUnpark) close() error {
	_ = unix.Close(u.w)
	return unix.Close(u.r)
}
