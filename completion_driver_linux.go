//go:build linux

package coreio

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Raw io_uring syscall numbers and the subset of the ring ABI this driver
// needs, none of which golang.org/x/sys/unix exposes directly. Grounded on
// _examples/ehrlich-b-go-ublk/internal/uring/minimal.go's own hand-rolled
// approach: go-ublk's go.mod lists github.com/pawelgaczynski/giouring, but
// minimal.go reaches past that binding for direct control over a
// submission entry's user_data and a completion entry's raw result — the
// same reason applies here, since the slot table's cookie must be written
// straight into user_data and the byte count read straight out of a CQE's
// res field; a higher-level ring wrapper would hide both behind its own
// completion type.
const (
	sysIOURingSetup = 425
	sysIOURingEnter = 426

	ioringOpReadv   = 1
	ioringOpWritev  = 2
	ioringOpTimeout = 11

	ioringEnterGetevents = 1 << 0

	ioringOffSQRing = 0x00000000
	ioringOffCQRing = 0x08000000
	ioringOffSQEs   = 0x10000000
)

type sqOffsets struct {
	Head, Tail, RingMask, RingEntries, Flags, Dropped, Array uint32
	Resv1                                                    uint32
	Resv2                                                    uint64
}

type cqOffsets struct {
	Head, Tail, RingMask, RingEntries, Overflow, CQEs, Flags uint32
	Resv1                                                    uint32
	Resv2                                                    uint64
}

// uringParams mirrors io_uring_params (minimal.go's own struct, reused
// here for the same generic read/write use case).
type uringParams struct {
	SQEntries, CQEntries, Flags, SQThreadCPU, SQThreadIdle, Features uint32
	WQFd                                                             uint32
	Resv                                                             [3]uint32
	SQ                                                                sqOffsets
	CQ                                                                cqOffsets
}

// sqe mirrors the kernel's 64-byte io_uring_sqe layout for the subset of
// fields a plain readv/writev/timeout submission needs.
type sqe struct {
	Opcode      uint8
	Flags       uint8
	Ioprio      uint16
	FD          int32
	Off         uint64
	Addr        uint64
	Len         uint32
	OpcodeFlags uint32
	UserData    uint64
	BufIndex    uint16
	Personality uint16
	SpliceFDIn  int32
	Pad         [2]uint64
}

// cqe mirrors the kernel's 16-byte io_uring_cqe layout.
type cqe struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

type kernelTimespec struct {
	Sec  int64
	NSec int64
}

func ioUringSetup(entries uint32, params *uringParams) (int, error) {
	r1, _, errno := unix.Syscall(sysIOURingSetup, uintptr(entries), uintptr(unsafe.Pointer(params)), 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}

func ioUringEnter(fd int, toSubmit, minComplete, flags uint32) (int, error) {
	r1, _, errno := unix.Syscall6(sysIOURingEnter, uintptr(fd), uintptr(toSubmit), uintptr(minComplete), uintptr(flags), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}

// unparkCookie is a reserved user_data value no real operation ever gets
// (the slot table's cookies start at 1 and only grow), used to recognize
// the persistent eventfd-read completion that exists solely to interrupt
// a blocked io_uring_enter from another thread.
const unparkCookie = ^uint64(0)

// pinnedOp bundles a submitted operation's owned buffer with the iovec
// array describing it, so the slot table's strong reference keeps both
// alive for the kernel until completion — the iovec array's own backing
// memory is otherwise reachable only through a raw pointer the GC does not
// scan.
type pinnedOp struct {
	buf  any
	iovs []unix.Iovec
}

// CompletionDriver is the Linux io_uring-backed Driver.
type CompletionDriver struct {
	fd int

	sqMmap  []byte
	cqMmap  []byte
	sqeMmap []byte

	sqHead, sqTail, sqMask *uint32
	sqArray                []uint32
	sqes                   []sqe

	cqHead, cqTail, cqMask *uint32
	cqes                   []cqe

	mu            sync.Mutex
	sqTailLocal   uint32
	pendingSubmit uint32
	pendingTS     *kernelTimespec // pinned until its completion is drained
	needRearm     bool            // armUnpark found the ring full; releaseSQCapacity retries once a slot is free
	backlog       []*Waker        // wakers from submissions rejected for lack of ring capacity

	table   *slotTable
	unpark  *selfPipeUnpark
	metrics *Metrics
}

func newCompletionDriver(entries uint32, m *Metrics) (ioDriver, error) {
	var params uringParams
	fd, err := ioUringSetup(entries, &params)
	if err != nil {
		return nil, ErrCompletionDriverUnsupported
	}
	d := &CompletionDriver{fd: fd, table: newSlotTable(), metrics: m}

	sqRingSize := int(params.SQ.Array) + int(params.SQEntries)*4
	d.sqMmap, err = unix.Mmap(fd, ioringOffSQRing, sqRingSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Close(fd)
		return nil, ErrCompletionDriverUnsupported
	}
	cqRingSize := int(params.CQ.CQEs) + int(params.CQEntries)*16
	d.cqMmap, err = unix.Mmap(fd, ioringOffCQRing, cqRingSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Munmap(d.sqMmap)
		_ = unix.Close(fd)
		return nil, ErrCompletionDriverUnsupported
	}
	sqeSize := int(params.SQEntries) * int(unsafe.Sizeof(sqe{}))
	d.sqeMmap, err = unix.Mmap(fd, ioringOffSQEs, sqeSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Munmap(d.sqMmap)
		_ = unix.Munmap(d.cqMmap)
		_ = unix.Close(fd)
		return nil, ErrCompletionDriverUnsupported
	}

	sqBase := unsafe.Pointer(&d.sqMmap[0])
	d.sqHead = (*uint32)(unsafe.Add(sqBase, params.SQ.Head))
	d.sqTail = (*uint32)(unsafe.Add(sqBase, params.SQ.Tail))
	d.sqMask = (*uint32)(unsafe.Add(sqBase, params.SQ.RingMask))
	d.sqArray = unsafe.Slice((*uint32)(unsafe.Add(sqBase, params.SQ.Array)), params.SQEntries)

	cqBase := unsafe.Pointer(&d.cqMmap[0])
	d.cqHead = (*uint32)(unsafe.Add(cqBase, params.CQ.Head))
	d.cqTail = (*uint32)(unsafe.Add(cqBase, params.CQ.Tail))
	d.cqMask = (*uint32)(unsafe.Add(cqBase, params.CQ.RingMask))
	d.cqes = unsafe.Slice((*cqe)(unsafe.Pointer(&d.cqMmap[params.CQ.CQEs])), params.CQEntries)

	d.sqes = unsafe.Slice((*sqe)(unsafe.Pointer(&d.sqeMmap[0])), params.SQEntries)

	up, err := newSelfPipeUnpark()
	if err != nil {
		_ = d.Close()
		return nil, ErrCompletionDriverUnsupported
	}
	d.unpark = up
	d.armUnpark()

	return d, nil
}

// sqCapacity reports the ring's total SQE slots. Caller must hold d.mu.
func (d *CompletionDriver) sqCapacity() uint32 {
	return *d.sqMask + 1
}

// sqFull reports whether every slot in the submission ring is occupied by
// an entry the kernel has not yet consumed (sqHead, which the kernel
// advances, has not caught up to sqTailLocal). Caller must hold d.mu.
func (d *CompletionDriver) sqFull() bool {
	inFlight := d.sqTailLocal - atomic.LoadUint32(d.sqHead)
	return inFlight >= d.sqCapacity()
}

// armUnpark (re-)submits a persistent eventfd readv so a foreign thread's
// Unpark call wakes a blocked io_uring_enter the same way any other
// completion would. If the ring is momentarily full, it sets needRearm and
// leaves the re-arm to releaseSQCapacity instead of overwriting an SQE the
// kernel hasn't consumed.
func (d *CompletionDriver) armUnpark() {
	buf := make([]byte, 8)
	iov := []unix.Iovec{{Base: &buf[0]}}
	iov[0].SetLen(len(buf))
	d.mu.Lock()
	if d.sqFull() {
		d.needRearm = true
		d.mu.Unlock()
		return
	}
	idx := d.sqTailLocal & *d.sqMask
	d.sqes[idx] = sqe{
		Opcode:   ioringOpReadv,
		FD:       int32(d.unpark.readFD()),
		Addr:     uint64(uintptr(unsafe.Pointer(&iov[0]))),
		Len:      1,
		UserData: unparkCookie,
	}
	d.sqArray[idx] = idx
	d.sqTailLocal++
	d.pendingSubmit++
	d.needRearm = false
	d.mu.Unlock()
}

// submitVectored writes iovs as a single opcode submission. If the ring has
// no free slot, it returns ErrSubmissionOverflow instead of overwriting an
// unconsumed SQE; w (if non-nil) is queued on the backlog and woken by
// releaseSQCapacity after the next submitting io_uring_enter, per spec's
// documented pending/retry backpressure contract.
func (d *CompletionDriver) submitVectored(fd int, iovs []unix.Iovec, opcode uint8, buf any, w *Waker) (ioOp, error) {
	d.mu.Lock()
	if d.sqFull() {
		if w != nil {
			d.backlog = append(d.backlog, w)
		}
		d.mu.Unlock()
		return nil, ErrSubmissionOverflow
	}
	cookie := d.table.alloc(pinnedOp{buf: buf, iovs: iovs}, w)
	idx := d.sqTailLocal & *d.sqMask
	d.sqes[idx] = sqe{
		Opcode:   opcode,
		FD:       int32(fd),
		Addr:     uint64(uintptr(unsafe.Pointer(&iovs[0]))),
		Len:      uint32(len(iovs)),
		UserData: cookie,
	}
	d.sqArray[idx] = idx
	d.sqTailLocal++
	d.pendingSubmit++
	d.mu.Unlock()
	return &completionOp{table: d.table, cookie: cookie}, nil
}

func (d *CompletionDriver) startRead(fd int, buf ReadTarget, w *Waker) (ioOp, error) {
	iov := unix.Iovec{Base: (*byte)(buf.WritePtr())}
	iov.SetLen(buf.BytesTotal())
	return d.submitVectored(fd, []unix.Iovec{iov}, ioringOpReadv, buf, w)
}

func (d *CompletionDriver) startWrite(fd int, buf WriteSource, w *Waker) (ioOp, error) {
	iov := unix.Iovec{Base: (*byte)(buf.ReadPtr())}
	iov.SetLen(buf.BytesInit())
	return d.submitVectored(fd, []unix.Iovec{iov}, ioringOpWritev, buf, w)
}

func toUnixIovecs(vecs []IOVec) []unix.Iovec {
	out := make([]unix.Iovec, len(vecs))
	for i, v := range vecs {
		out[i].Base = (*byte)(v.Base)
		out[i].SetLen(int(v.Len))
	}
	return out
}

func (d *CompletionDriver) startReadv(fd int, buf VectoredReadTarget, w *Waker) (ioOp, error) {
	return d.submitVectored(fd, toUnixIovecs(buf.Iovecs()), ioringOpReadv, buf, w)
}

func (d *CompletionDriver) startWritev(fd int, buf VectoredWriteSource, w *Waker) (ioOp, error) {
	return d.submitVectored(fd, toUnixIovecs(buf.Iovecs()), ioringOpWritev, buf, w)
}

// Submit flushes all queued submission entries without waiting for any
// completion.
func (d *CompletionDriver) Submit() error {
	d.mu.Lock()
	n := d.pendingSubmit
	if n == 0 {
		d.mu.Unlock()
		return nil
	}
	atomic.StoreUint32(d.sqTail, d.sqTailLocal)
	d.pendingSubmit = 0
	d.mu.Unlock()
	_, err := ioUringEnter(d.fd, n, 0, 0)
	d.releaseSQCapacity()
	return err
}

// submitTimeout arranges for the next Park to return after dur even with
// no other completion pending — grounded conceptually on monoio's own use
// of the ring's native timeout op for timer integration
// (original_source/monoio/src/time/mod.rs).
func (d *CompletionDriver) submitTimeout(dur time.Duration) {
	ts := &kernelTimespec{Sec: int64(dur / time.Second), NSec: int64(dur % time.Second)}
	d.mu.Lock()
	d.pendingTS = ts
	idx := d.sqTailLocal & *d.sqMask
	d.sqes[idx] = sqe{
		Opcode:   ioringOpTimeout,
		FD:       -1,
		Addr:     uint64(uintptr(unsafe.Pointer(ts))),
		Len:      1,
		UserData: 0,
	}
	d.sqArray[idx] = idx
	d.sqTailLocal++
	n := d.pendingSubmit + 1
	d.pendingSubmit = 0
	atomic.StoreUint32(d.sqTail, d.sqTailLocal)
	d.mu.Unlock()
	_, _ = ioUringEnter(d.fd, n, 0, 0)
	d.releaseSQCapacity()
}

// Park blocks until at least one completion is available, the timeout
// (if any) elapses, or Unpark is called from another thread.
func (d *CompletionDriver) Park(timeout *time.Duration) error {
	if timeout != nil {
		d.submitTimeout(*timeout)
	}
	_, err := ioUringEnter(d.fd, 0, 1, ioringEnterGetevents)
	if err != nil && err != unix.EINTR {
		return err
	}
	d.drainCQEs()
	return nil
}

func (d *CompletionDriver) drainCQEs() {
	head := atomic.LoadUint32(d.cqHead)
	tail := atomic.LoadUint32(d.cqTail)
	mask := atomic.LoadUint32(d.cqMask)
	for head != tail {
		c := d.cqes[head&mask]
		switch c.UserData {
		case 0:
			// timeout marker; nothing to deliver.
			d.pendingTS = nil
		case unparkCookie:
			d.unpark.drain()
			d.armUnpark()
		default:
			var err error
			n := c.Res
			if n < 0 {
				err = unix.Errno(-n)
				n = 0
			}
			d.table.complete(c.UserData, int(n), err)
			if d.metrics != nil {
				d.metrics.completions.Add(1)
			}
		}
		head++
	}
	atomic.StoreUint32(d.cqHead, head)
}

// releaseSQCapacity is called once an io_uring_enter submission call
// returns, at which point the kernel has consumed up to "to_submit" SQEs
// and advanced sqHead: capacity that submitVectored/armUnpark may have been
// waiting on could now be free. Re-arms the unpark op if it was deferred,
// then wakes every backlogged future so it can retry its submission.
func (d *CompletionDriver) releaseSQCapacity() {
	d.mu.Lock()
	rearm := d.needRearm && !d.sqFull()
	d.mu.Unlock()
	if rearm {
		d.armUnpark()
	}

	d.mu.Lock()
	backlog := d.backlog
	d.backlog = nil
	d.mu.Unlock()
	for _, w := range backlog {
		w.Wake()
	}
}

func (d *CompletionDriver) UnparkHandle() UnparkHandle { return d.unpark }

// CancelAll releases every slot still pinned against an in-flight
// operation. Called by Runtime.Close before the ring itself is torn down,
// since once the fd is closed no CQE for these cookies will ever arrive to
// drive the normal complete/take path.
func (d *CompletionDriver) CancelAll() {
	d.table.releaseAll()
}

func (d *CompletionDriver) Close() error {
	if d.unpark != nil {
		_ = d.unpark.close()
	}
	if d.sqeMmap != nil {
		_ = unix.Munmap(d.sqeMmap)
	}
	if d.cqMmap != nil {
		_ = unix.Munmap(d.cqMmap)
	}
	if d.sqMmap != nil {
		_ = unix.Munmap(d.sqMmap)
	}
	return unix.Close(d.fd)
}
