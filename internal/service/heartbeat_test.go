package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestHeartbeat_BeatsUntilStopped(t *testing.T) {
	logs := &MockLogRepo{}
	hb := &Heartbeat{Logs: logs, Interval: 10 * time.Millisecond}

	var extended atomic.Int32
	h := hb.Start(context.Background(), "c-1", func(ctx context.Context) { extended.Add(1) })

	waitFor(t, 2*time.Second, func() bool { return logs.beats.Load() >= 2 })
	h.Stop()

	after := logs.beats.Load()
	time.Sleep(50 * time.Millisecond)
	if got := logs.beats.Load(); got != after {
		t.Errorf("heartbeat kept writing after Stop: %d -> %d", after, got)
	}
	if extended.Load() < 2 {
		t.Errorf("expected onBeat per beat, got %d", extended.Load())
	}
}

func TestHeartbeat_StopsWithContext(t *testing.T) {
	logs := &MockLogRepo{}
	hb := &Heartbeat{Logs: logs, Interval: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	h := hb.Start(ctx, "c-1", nil)
	cancel()

	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("heartbeat goroutine did not exit on context cancel")
	}
	h.Stop()
	if logs.beats.Load() != 0 {
		t.Errorf("no beat expected before the first interval")
	}
}
