package coreio

import "unsafe"

// ReadTarget is a mutable owned buffer: the kernel writes into it directly,
// so it must stay pinned (no copy, no move) for the lifetime of the
// operation. Grounded on the (buf []byte, size int) ownership-by-value
// pairing gaio's aiocb/OpResult use for their own proactor-style buffers
// (_examples/socket515-gaio/watcher.go).
type ReadTarget interface {
	WritePtr() unsafe.Pointer
	BytesTotal() int
	SetInit(n int)
}

// WriteSource is an immutable owned buffer: the kernel reads from it
// directly for the duration of a write.
type WriteSource interface {
	ReadPtr() unsafe.Pointer
	BytesInit() int
}

// VectoredReadTarget is the scatter form of ReadTarget, used by Readv.
type VectoredReadTarget interface {
	Iovecs() []IOVec
	SetInit(n int)
}

// VectoredWriteSource is the gather form of WriteSource, used by Writev.
type VectoredWriteSource interface {
	Iovecs() []IOVec
}

// IOVec is a single scatter/gather buffer segment, shaped to map directly
// onto unix.Iovec without this file importing golang.org/x/sys/unix itself
// (kept platform-agnostic; drivers convert at the syscall boundary).
type IOVec struct {
	Base unsafe.Pointer
	Len  uint64
}

// bufPtr forwards the owned-buffer traits through a pointer to any
// concrete buffer type, so a wrapper holding a *T (rather than embedding
// it) still satisfies ReadTarget/WriteSource. Required by the "mutable
// borrow of something implementing the trait" composition rule: a caller
// that owns a *FixedBuffer behind one more layer of indirection (a pooled
// handle, a request-scoped wrapper) can hand a *bufPtr[FixedBuffer] to
// Read/Write without copying or re-implementing the four accessor methods.
type bufPtr[T any] struct {
	target *T
}

// WrapBuffer returns a forwarding ReadTarget/WriteSource over p, letting
// wrapper types compose with the owned-buffer traits instead of embedding
// the concrete buffer directly.
func WrapBuffer[T any](p *T) *bufPtr[T] {
	return &bufPtr[T]{target: p}
}

func (b *bufPtr[T]) WritePtr() unsafe.Pointer {
	return any(b.target).(ReadTarget).WritePtr()
}

func (b *bufPtr[T]) ReadPtr() unsafe.Pointer {
	return any(b.target).(WriteSource).ReadPtr()
}

func (b *bufPtr[T]) BytesTotal() int {
	return any(b.target).(ReadTarget).BytesTotal()
}

func (b *bufPtr[T]) BytesInit() int {
	return any(b.target).(WriteSource).BytesInit()
}

func (b *bufPtr[T]) SetInit(n int) {
	any(b.target).(ReadTarget).SetInit(n)
}
