package coreio

import "testing"

func TestResolveOptions_Defaults(t *testing.T) {
	o := resolveOptions(nil)
	if o.entries != 256 {
		t.Fatalf("entries = %d, want 256", o.entries)
	}
	if !o.uringCapable {
		t.Fatal("uringCapable default = false, want true")
	}
	if o.timerEnabled {
		t.Fatal("timerEnabled default = true, want false")
	}
	if o.threadID == 0 {
		t.Fatal("threadID default = 0, want an auto-generated non-zero id")
	}
}

func TestResolveOptions_AppliesOverrides(t *testing.T) {
	o := resolveOptions([]Option{
		WithEntries(512),
		WithUringCapability(false),
		WithTimerEnabled(true),
		WithThreadID(42),
	})
	if o.entries != 512 {
		t.Fatalf("entries = %d, want 512", o.entries)
	}
	if o.uringCapable {
		t.Fatal("uringCapable = true, want false after WithUringCapability(false)")
	}
	if !o.timerEnabled {
		t.Fatal("timerEnabled = false, want true")
	}
	if o.threadID != 42 {
		t.Fatalf("threadID = %d, want 42", o.threadID)
	}
}

func TestWithEntries_IgnoresNonPositive(t *testing.T) {
	o := resolveOptions([]Option{WithEntries(0), WithEntries(-5)})
	if o.entries != 256 {
		t.Fatalf("entries = %d, want default 256 (non-positive values ignored)", o.entries)
	}
}

func TestResolveOptions_AutoThreadIDsAreUnique(t *testing.T) {
	a := resolveOptions(nil)
	b := resolveOptions(nil)
	if a.threadID == b.threadID {
		t.Fatalf("auto-generated thread ids collided: %d", a.threadID)
	}
}

func TestResolveOptions_NilOptionIgnored(t *testing.T) {
	o := resolveOptions([]Option{nil, WithEntries(64)})
	if o.entries != 64 {
		t.Fatalf("entries = %d, want 64", o.entries)
	}
}
