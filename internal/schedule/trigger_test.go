package schedule

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestTriggersArmDisarm(t *testing.T) {
	tr := NewTriggers(slog.Default())
	due := time.Now().Add(time.Hour)

	tr.Arm("demo", due, func(context.Context) {})
	if !tr.Armed("demo") {
		t.Fatal("trigger not armed")
	}
	got, ok := tr.Due("demo")
	if !ok || !got.Equal(due) {
		t.Errorf("due = %v, %v; want %v, true", got, ok, due)
	}

	tr.Disarm("demo")
	if tr.Armed("demo") {
		t.Error("trigger still armed after disarm")
	}
	tr.Disarm("demo") // unknown name is a no-op
}

func TestTriggersArmReplaces(t *testing.T) {
	tr := NewTriggers(slog.Default())
	first := time.Now().Add(time.Hour)
	second := first.Add(time.Hour)

	tr.Arm("demo", first, func(context.Context) {})
	tr.Arm("demo", second, func(context.Context) {})

	got, _ := tr.Due("demo")
	if !got.Equal(second) {
		t.Errorf("due = %v, want replacement time %v", got, second)
	}
}

func TestFireDueRemovesBeforeRunning(t *testing.T) {
	tr := NewTriggers(slog.Default())
	now := time.Now()

	var fired []string
	tr.Arm("past", now.Add(-time.Minute), func(context.Context) {
		fired = append(fired, "past")
		if tr.Armed("past") {
			t.Error("trigger still registered while its func runs")
		}
	})
	tr.Arm("future", now.Add(time.Hour), func(context.Context) {
		fired = append(fired, "future")
	})

	tr.fireDue(context.Background(), now)

	if len(fired) != 1 || fired[0] != "past" {
		t.Errorf("fired = %v, want [past]", fired)
	}
	if tr.Armed("past") {
		t.Error("fired trigger was not removed")
	}
	if !tr.Armed("future") {
		t.Error("future trigger should remain armed")
	}
}

func TestFireDueRearmFromInside(t *testing.T) {
	tr := NewTriggers(slog.Default())
	now := time.Now()

	var fn TriggerFunc
	count := 0
	fn = func(context.Context) {
		count++
		tr.Arm("recurring", now.Add(time.Hour), fn)
	}
	tr.Arm("recurring", now.Add(-time.Second), fn)

	tr.fireDue(context.Background(), now)

	if count != 1 {
		t.Fatalf("fired %d times, want 1", count)
	}
	if !tr.Armed("recurring") {
		t.Error("re-armed trigger missing")
	}
	got, _ := tr.Due("recurring")
	if !got.After(now) {
		t.Errorf("re-armed due = %v, want after %v", got, now)
	}
}

func TestTriggersStartStop(t *testing.T) {
	tr := NewTriggers(slog.Default())
	tr.interval = 10 * time.Millisecond

	fired := make(chan struct{})
	tr.Arm("soon", time.Now().Add(-time.Second), func(context.Context) {
		close(fired)
	})

	tr.Start(context.Background())
	defer tr.Stop()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger loop never fired a due trigger")
	}
}
