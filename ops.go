package coreio

import "errors"

// ReadResult is the value a Read future resolves to: the number of bytes
// the kernel initialized and the buffer handed back intact, so the caller
// never loses track of an owned allocation even on error. A Readv future
// resolves to a ReadResult whose Buf is always nil.
type ReadResult struct {
	N   int
	Buf ReadTarget
}

// WriteResult is the value a Write future resolves to. A Writev future
// resolves to a WriteResult whose Buf is always nil.
type WriteResult struct {
	N   int
	Buf WriteSource
}

// readFuture backs Read. It is a struct rather than a closure over a local
// op variable so Abort can reach the in-flight ioOp through Cancel
// without the Future/Poll surface itself needing to expose it.
type readFuture struct {
	fd  int
	buf ReadTarget
	op  ioOp
}

// Read asynchronously reads from fd into buf using the current Context's
// installed driver. Must be polled from inside a Runtime.BlockOn call (it
// calls CurrentContext internally). Grounded on gaio's tryRead EAGAIN-loop
// shape (_examples/socket515-gaio/watcher.go), generalized across both
// driver kinds via the ioDriver/ioOp seam.
func Read(fd int, buf ReadTarget) Future {
	return &readFuture{fd: fd, buf: buf}
}

func (f *readFuture) Poll(w *Waker) Poll {
	tc := CurrentContext()
	if f.op == nil {
		o, err := tc.driver.(ioDriver).startRead(f.fd, f.buf, w)
		if err != nil {
			if errors.Is(err, ErrSubmissionOverflow) {
				// The driver has already queued w to be woken once the
				// ring frees a slot; just wait for that, don't fail.
				return Pending()
			}
			return Done(ReadResult{0, f.buf}, err)
		}
		f.op = o
	}
	n, err, ready := f.op.poll()
	if !ready {
		return Pending()
	}
	if err == nil {
		f.buf.SetInit(n)
	}
	return Done(ReadResult{n, f.buf}, err)
}

// Cancel releases the in-flight read's pinned buffer without waiting for a
// completion that, once the owning task is dropped, nothing observes.
func (f *readFuture) Cancel() {
	if f.op != nil {
		f.op.cancel()
	}
}

// writeFuture backs Write; see readFuture for why this is a struct.
type writeFuture struct {
	fd  int
	buf WriteSource
	op  ioOp
}

// Write asynchronously writes buf to fd.
func Write(fd int, buf WriteSource) Future {
	return &writeFuture{fd: fd, buf: buf}
}

func (f *writeFuture) Poll(w *Waker) Poll {
	tc := CurrentContext()
	if f.op == nil {
		o, err := tc.driver.(ioDriver).startWrite(f.fd, f.buf, w)
		if err != nil {
			if errors.Is(err, ErrSubmissionOverflow) {
				return Pending()
			}
			return Done(WriteResult{0, f.buf}, err)
		}
		f.op = o
	}
	n, err, ready := f.op.poll()
	if !ready {
		return Pending()
	}
	return Done(WriteResult{n, f.buf}, err)
}

func (f *writeFuture) Cancel() {
	if f.op != nil {
		f.op.cancel()
	}
}

// readvFuture backs Readv; see readFuture for why this is a struct.
type readvFuture struct {
	fd  int
	buf VectoredReadTarget
	op  ioOp
}

// Readv is the scatter form of Read. Its ReadResult carries N only; Buf
// is nil on success and on error alike.
func Readv(fd int, buf VectoredReadTarget) Future {
	return &readvFuture{fd: fd, buf: buf}
}

func (f *readvFuture) Poll(w *Waker) Poll {
	tc := CurrentContext()
	if f.op == nil {
		o, err := tc.driver.(ioDriver).startReadv(f.fd, f.buf, w)
		if err != nil {
			if errors.Is(err, ErrSubmissionOverflow) {
				return Pending()
			}
			return Done(ReadResult{0, nil}, err)
		}
		f.op = o
	}
	n, err, ready := f.op.poll()
	if !ready {
		return Pending()
	}
	if err == nil {
		f.buf.SetInit(n)
	}
	return Done(ReadResult{N: n}, err)
}

func (f *readvFuture) Cancel() {
	if f.op != nil {
		f.op.cancel()
	}
}

// writevFuture backs Writev; see readFuture for why this is a struct.
type writevFuture struct {
	fd  int
	buf VectoredWriteSource
	op  ioOp
}

// Writev is the gather form of Write. Its WriteResult carries N only; Buf
// is nil on success and on error alike.
func Writev(fd int, buf VectoredWriteSource) Future {
	return &writevFuture{fd: fd, buf: buf}
}

func (f *writevFuture) Poll(w *Waker) Poll {
	tc := CurrentContext()
	if f.op == nil {
		o, err := tc.driver.(ioDriver).startWritev(f.fd, f.buf, w)
		if err != nil {
			if errors.Is(err, ErrSubmissionOverflow) {
				return Pending()
			}
			return Done(WriteResult{0, nil}, err)
		}
		f.op = o
	}
	n, err, ready := f.op.poll()
	if !ready {
		return Pending()
	}
	return Done(WriteResult{N: n}, err)
}

func (f *writevFuture) Cancel() {
	if f.op != nil {
		f.op.cancel()
	}
}
