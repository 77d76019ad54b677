package coreio

import "unsafe"

// FixedBuffer is the concrete ReadTarget/WriteSource this module's own
// operations and tests use: a single contiguous allocation with a
// watermark tracking how much of it the kernel has actually initialized.
// Shaped after gaio's plain []byte buffer ownership
// (_examples/socket515-gaio/watcher.go).
type FixedBuffer struct {
	data []byte
	init int
}

// NewFixedBuffer allocates a FixedBuffer with the given capacity.
func NewFixedBuffer(size int) *FixedBuffer {
	return &FixedBuffer{data: make([]byte, size)}
}

// NewFixedBufferFromBytes wraps an existing slice as a WriteSource without
// copying; the caller must not mutate it until the write completes.
func NewFixedBufferFromBytes(b []byte) *FixedBuffer {
	return &FixedBuffer{data: b, init: len(b)}
}

func (b *FixedBuffer) WritePtr() unsafe.Pointer {
	if len(b.data) == 0 {
		return nil
	}
	return unsafe.Pointer(&b.data[0])
}

func (b *FixedBuffer) ReadPtr() unsafe.Pointer { return b.WritePtr() }

func (b *FixedBuffer) BytesTotal() int { return len(b.data) }

func (b *FixedBuffer) BytesInit() int { return b.init }

func (b *FixedBuffer) SetInit(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(b.data) {
		n = len(b.data)
	}
	b.init = n
}

// Bytes returns the portion of the buffer the kernel has initialized.
func (b *FixedBuffer) Bytes() []byte { return b.data[:b.init] }

// Cap returns the buffer's total capacity.
func (b *FixedBuffer) Cap() int { return len(b.data) }

// FixedVector is the vectored (scatter/gather) counterpart of FixedBuffer,
// wrapping a fixed set of segments for Readv/Writev.
type FixedVector struct {
	segments [][]byte
	init     int
}

// NewFixedVector wraps segments as a vectored buffer.
func NewFixedVector(segments [][]byte) *FixedVector {
	return &FixedVector{segments: segments}
}

func (v *FixedVector) Iovecs() []IOVec {
	vecs := make([]IOVec, 0, len(v.segments))
	for _, seg := range v.segments {
		if len(seg) == 0 {
			continue
		}
		vecs = append(vecs, IOVec{Base: unsafe.Pointer(&seg[0]), Len: uint64(len(seg))})
	}
	return vecs
}

func (v *FixedVector) SetInit(n int) { v.init = n }

// BytesInit returns the total number of initialized bytes across segments,
// valid once SetInit has been called by a completed Readv.
func (v *FixedVector) BytesInit() int { return v.init }
