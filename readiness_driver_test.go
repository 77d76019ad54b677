package coreio

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestReadinessDriver_SubmitIsNoOp(t *testing.T) {
	d, err := newReadinessDriver(newMetrics())
	if err != nil {
		t.Fatalf("newReadinessDriver() error: %v", err)
	}
	defer d.Close()
	if err := d.Submit(); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
}

func TestReadinessDriver_UnparkInterruptsPark(t *testing.T) {
	d, err := newReadinessDriver(newMetrics())
	if err != nil {
		t.Fatalf("newReadinessDriver() error: %v", err)
	}
	defer d.Close()

	done := make(chan error, 1)
	go func() {
		timeout := 5 * time.Second
		done <- d.Park(&timeout)
	}()

	time.Sleep(5 * time.Millisecond)
	if err := d.UnparkHandle().Unpark(); err != nil {
		t.Fatalf("Unpark() error: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Park() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Park() did not return after Unpark()")
	}
}

func TestReadinessDriver_ReadRetriesUntilDataArrives(t *testing.T) {
	d, err := newReadinessDriver(newMetrics())
	if err != nil {
		t.Fatalf("newReadinessDriver() error: %v", err)
	}
	defer d.Close()

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("Pipe2: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	buf := NewFixedBuffer(4)
	op, err := d.startRead(fds[0], buf, nil)
	if err != nil {
		t.Fatalf("startRead() error: %v", err)
	}
	if _, _, ready := op.poll(); ready {
		t.Fatal("poll() reported ready before any data was written")
	}

	if _, err := unix.Write(fds[1], []byte("ab")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	timeout := 2 * time.Second
	if err := d.Park(&timeout); err != nil {
		t.Fatalf("Park() error: %v", err)
	}

	n, err, ready := op.poll()
	if !ready {
		t.Fatal("poll() not ready after Park() observed the write")
	}
	if err != nil || n != 2 {
		t.Fatalf("poll() = (%d, %v), want (2, nil)", n, err)
	}
}
