// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package eventloop

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/hashicorp/go-hclog"
	"github.com/momentics/fiberpc/clock"
	"github.com/momentics/fiberpc/fsync"
	"golang.org/x/sys/unix"
)

const (
	pollTimeoutMs  = 5
	maxPollEvents  = 128
	slowTaskBudget = 5 * time.Millisecond
)

type task struct {
	fn func()
}

// Loop is one edge-triggered epoll reactor with its own goroutine and
// deferred-task queue, per spec.md §4.5.
type Loop struct {
	epfd     int
	notifyFd int // eventfd used to wake Poll for AddTask

	mu          sync.Mutex
	descriptors map[int]*Descriptor
	tasks       *queue.Queue

	quit chan struct{}
	done chan struct{}

	log hclog.Logger
}

// NewLoop creates an epoll instance and its wakeup eventfd, but does not
// start the goroutine; call Run. A nil logger defaults to
// hclog.NewNullLogger(), matching NewWatchdog's convention.
func NewLoop(logger hclog.Logger) (*Loop, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	l := &Loop{
		epfd:        epfd,
		notifyFd:    efd,
		descriptors: make(map[int]*Descriptor),
		tasks:       queue.New(),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		log:         logger.Named("loop"),
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(efd)}); err != nil {
		unix.Close(epfd)
		unix.Close(efd)
		return nil, err
	}
	return l, nil
}

// AttachDescriptor records the loop pointer on d and, if enabled, arms it.
func (l *Loop) AttachDescriptor(d *Descriptor, enabled bool) error {
	d.loop.Store(l)
	d.refs.Add(1)
	l.mu.Lock()
	l.descriptors[d.Fd] = d
	l.mu.Unlock()
	if enabled {
		return l.EnableDescriptor(d)
	}
	return nil
}

// EnableDescriptor epoll_ctl ADDs d with Mask|EPOLLERR|EPOLLET.
func (l *Loop) EnableDescriptor(d *Descriptor) error {
	ev := unix.EpollEvent{Events: toEpollEvents(d.Mask) | unix.EPOLLERR | unix.EPOLLET, Fd: int32(d.Fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, d.Fd, &ev); err != nil {
		return err
	}
	d.enabled.Store(true)
	return nil
}

// RearmDescriptor epoll_ctl MODs d, e.g. after changing its interest mask.
func (l *Loop) RearmDescriptor(d *Descriptor) error {
	ev := unix.EpollEvent{Events: toEpollEvents(d.Mask) | unix.EPOLLERR | unix.EPOLLET, Fd: int32(d.Fd)}
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, d.Fd, &ev)
}

// DisableDescriptor epoll_ctl DELs d without forgetting it; must be called
// from the loop's own goroutine.
func (l *Loop) DisableDescriptor(d *Descriptor) error {
	d.enabled.Store(false)
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, d.Fd, nil)
}

// DetachDescriptor drops the loop's reference to d; must be called from the
// loop's own goroutine, normally after DisableDescriptor.
func (l *Loop) DetachDescriptor(d *Descriptor) {
	l.mu.Lock()
	delete(l.descriptors, d.Fd)
	l.mu.Unlock()
	d.refs.Add(-1)
	d.loop.Store(nil)
}

func toEpollEvents(m EventMask) uint32 {
	var ev uint32
	if m&EventRead != 0 {
		ev |= unix.EPOLLIN
	}
	if m&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// AddTask enqueues fn for execution on the loop's own goroutine and wakes
// it if it is blocked in Poll.
func (l *Loop) AddTask(fn func()) {
	l.mu.Lock()
	l.tasks.Add(task{fn: fn})
	l.mu.Unlock()
	l.wake()
}

// Barrier posts a task that signals a latch and blocks the caller until it
// runs, guaranteeing every task enqueued before Barrier has been drained.
// One waiter (the Barrier caller), one signaler (the posted task running on
// the loop's own goroutine) — exactly the race fsync.FastLatch is built
// for, avoiding a mutex/condvar round trip on the common case where the
// task already ran by the time Barrier checks.
func (l *Loop) Barrier() {
	fl := fsync.NewFastLatch()
	l.AddTask(func() { fl.CountDown() })
	fl.Wait()
}

func (l *Loop) wake() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	unix.Write(l.notifyFd, buf[:])
}

// Run executes the loop until Stop is called. Intended to be invoked as
// `go loop.Run()`.
func (l *Loop) Run() {
	defer close(l.done)
	var events [maxPollEvents]unix.EpollEvent

	for {
		select {
		case <-l.quit:
			return
		default:
		}

		n, err := unix.EpollWait(l.epfd, events[:], pollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		start := clock.CoarseSteadyNanos()

		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Fd)
			if fd == l.notifyFd {
				var drain [8]byte
				unix.Read(l.notifyFd, drain[:])
				continue
			}
			l.mu.Lock()
			d, ok := l.descriptors[fd]
			l.mu.Unlock()
			if !ok || d.FireEvents == nil {
				continue
			}
			mask := fromEpollEvents(ev.Events)
			timedCall(l.log, "firing event handler", slowTaskBudget, func() {
				d.FireEvents(mask, start)
			})
		}

		l.drainTasks()

		select {
		case <-l.quit:
			return
		default:
		}
	}
}

func (l *Loop) drainTasks() {
	for {
		l.mu.Lock()
		if l.tasks.Length() == 0 {
			l.mu.Unlock()
			return
		}
		t := l.tasks.Remove().(task)
		l.mu.Unlock()

		timedCall(l.log, "running task", slowTaskBudget, t.fn)
	}
}

func fromEpollEvents(events uint32) EventMask {
	var m EventMask
	if events&unix.EPOLLIN != 0 {
		m |= EventRead
	}
	if events&unix.EPOLLOUT != 0 {
		m |= EventWrite
	}
	if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		m |= EventError
	}
	return m
}

// Stop signals Run to exit; it does not block until Run has returned, use
// Join for that.
func (l *Loop) Stop() {
	select {
	case <-l.quit:
	default:
		close(l.quit)
		l.wake()
	}
}

// Join blocks until Run has returned.
func (l *Loop) Join() {
	<-l.done
}

// Close releases the epoll and eventfd descriptors. Call only after Join.
func (l *Loop) Close() error {
	unix.Close(l.notifyFd)
	return unix.Close(l.epfd)
}
