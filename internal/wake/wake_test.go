package wake

import (
	"context"
	"testing"
	"time"
)

func TestWait_TimerExpires(t *testing.T) {
	s := NewSignal()
	start := time.Now()
	if err := s.Wait(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Wait returned before the timer expired")
	}
}

func TestWait_PingWakesEarly(t *testing.T) {
	s := NewSignal()
	s.Ping()

	start := time.Now()
	if err := s.Wait(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("pending ping did not wake Wait")
	}
}

func TestWait_ContextCancel(t *testing.T) {
	s := NewSignal()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := s.Wait(ctx, 5*time.Second)
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestPing_Coalesces(t *testing.T) {
	s := NewSignal()
	// Many pings while nobody waits must neither block nor queue up.
	for range 10 {
		s.Ping()
	}

	// One wake is pending...
	if err := s.Wait(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	// ...and only one: the second Wait runs to its timer.
	start := time.Now()
	if err := s.Wait(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("coalesced pings produced more than one wake")
	}
}

func TestTryStart_OnlyOnce(t *testing.T) {
	s := NewSignal()
	if s.Running() {
		t.Error("new signal reports running")
	}
	if !s.TryStart() {
		t.Error("first TryStart lost")
	}
	if s.TryStart() {
		t.Error("second TryStart won")
	}
	if !s.Running() {
		t.Error("signal not running after TryStart")
	}
}
