package coreio

import (
	"testing"
	"unsafe"
)

func TestFixedBuffer_WriteAndReadRoundTrip(t *testing.T) {
	buf := NewFixedBuffer(16)
	if buf.Cap() != 16 || buf.BytesTotal() != 16 {
		t.Fatalf("Cap/BytesTotal = %d/%d, want 16/16", buf.Cap(), buf.BytesTotal())
	}
	if buf.BytesInit() != 0 {
		t.Fatalf("BytesInit() = %d, want 0 before any write", buf.BytesInit())
	}

	ptr := buf.WritePtr()
	s := unsafe.Slice((*byte)(ptr), buf.BytesTotal())
	copy(s, []byte("hello"))
	buf.SetInit(5)

	if buf.BytesInit() != 5 {
		t.Fatalf("BytesInit() = %d, want 5", buf.BytesInit())
	}
	if got := string(buf.Bytes()); got != "hello" {
		t.Fatalf("Bytes() = %q, want %q", got, "hello")
	}
}

func TestFixedBuffer_SetInitClamps(t *testing.T) {
	buf := NewFixedBuffer(4)
	buf.SetInit(-1)
	if buf.BytesInit() != 0 {
		t.Fatalf("SetInit(-1) -> BytesInit() = %d, want 0", buf.BytesInit())
	}
	buf.SetInit(100)
	if buf.BytesInit() != 4 {
		t.Fatalf("SetInit(100) -> BytesInit() = %d, want 4 (clamped to capacity)", buf.BytesInit())
	}
}

func TestFixedBufferFromBytes_IsImmediatelyInitialized(t *testing.T) {
	src := []byte("payload")
	buf := NewFixedBufferFromBytes(src)
	if buf.BytesInit() != len(src) {
		t.Fatalf("BytesInit() = %d, want %d", buf.BytesInit(), len(src))
	}
	if buf.ReadPtr() != buf.WritePtr() {
		t.Fatal("ReadPtr and WritePtr should alias the same backing array")
	}
}

func TestFixedVector_IovecsSkipsEmptySegments(t *testing.T) {
	segs := [][]byte{[]byte("a"), {}, []byte("bc")}
	v := NewFixedVector(segs)
	iovecs := v.Iovecs()
	if len(iovecs) != 2 {
		t.Fatalf("Iovecs() returned %d entries, want 2 (empty segment skipped)", len(iovecs))
	}
	if iovecs[0].Len != 1 || iovecs[1].Len != 2 {
		t.Fatalf("Iovecs() lens = %d,%d want 1,2", iovecs[0].Len, iovecs[1].Len)
	}
}

func TestFixedVector_SetInitAndBytesInit(t *testing.T) {
	v := NewFixedVector([][]byte{make([]byte, 4), make([]byte, 4)})
	v.SetInit(6)
	if v.BytesInit() != 6 {
		t.Fatalf("BytesInit() = %d, want 6", v.BytesInit())
	}
}

func TestFixedBuffer_EmptyBufferWritePtrIsNil(t *testing.T) {
	buf := NewFixedBuffer(0)
	if buf.WritePtr() != nil {
		t.Fatal("WritePtr() on a zero-length buffer should be nil")
	}
}

// TestWrapBuffer_ForwardsReadTargetAndWriteSource demonstrates that a
// wrapper type holding a *FixedBuffer behind one more layer of indirection
// still satisfies ReadTarget/WriteSource by composing through WrapBuffer,
// rather than by embedding the concrete buffer directly.
func TestWrapBuffer_ForwardsReadTargetAndWriteSource(t *testing.T) {
	buf := NewFixedBuffer(16)
	wrapped := WrapBuffer(buf)

	var _ ReadTarget = wrapped
	var _ WriteSource = wrapped

	if wrapped.BytesTotal() != buf.BytesTotal() {
		t.Fatalf("wrapped.BytesTotal() = %d, want %d", wrapped.BytesTotal(), buf.BytesTotal())
	}
	if wrapped.WritePtr() != buf.WritePtr() {
		t.Fatal("wrapped.WritePtr() should alias the underlying buffer's pointer")
	}

	wrapped.SetInit(5)
	if buf.BytesInit() != 5 {
		t.Fatalf("SetInit through wrapper did not propagate: buf.BytesInit() = %d, want 5", buf.BytesInit())
	}
	if wrapped.BytesInit() != buf.BytesInit() {
		t.Fatalf("wrapped.BytesInit() = %d, want %d", wrapped.BytesInit(), buf.BytesInit())
	}
	if wrapped.ReadPtr() != buf.ReadPtr() {
		t.Fatal("wrapped.ReadPtr() should alias the underlying buffer's pointer")
	}
}
