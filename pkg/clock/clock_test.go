package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFakeSleepStopsAtDeadline(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	f := NewFake(start)
	ctx, cancel := f.WithDeadline(context.Background(), start.Add(10*time.Second))
	defer cancel()

	err := f.Sleep(ctx, 30*time.Second)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Sleep err = %v, want DeadlineExceeded", err)
	}
	if got := f.Now().Sub(start); got != 10*time.Second {
		t.Errorf("clock advanced %v, want it stopped at the deadline", got)
	}
	if !errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		t.Errorf("cause = %v", context.Cause(ctx))
	}
}

func TestFakeSleepEndingAtDeadlineCompletes(t *testing.T) {
	start := time.Unix(0, 0)
	f := NewFake(start)
	ctx, cancel := f.WithDeadline(context.Background(), start.Add(2*time.Second))
	defer cancel()

	if err := f.Sleep(ctx, 2*time.Second); err != nil {
		t.Fatalf("Sleep err = %v, want nil", err)
	}
	if ctx.Err() == nil {
		t.Error("deadline reached but context still live")
	}
	if err := f.Sleep(ctx, time.Second); err == nil {
		t.Error("Sleep on an expired context succeeded")
	}
}

func TestFakeDeadlineOnOtherContextDoesNotInterrupt(t *testing.T) {
	start := time.Unix(0, 0)
	f := NewFake(start)
	other, cancelOther := f.WithDeadline(context.Background(), start.Add(time.Second))
	defer cancelOther()

	if err := f.Sleep(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Sleep err = %v", err)
	}
	if other.Err() == nil {
		t.Error("passed deadline did not fire")
	}
	if got := f.Now().Sub(start); got != 5*time.Second {
		t.Errorf("clock advanced %v, want 5s", got)
	}
}

func TestFakeAdvanceAndPastDeadline(t *testing.T) {
	start := time.Unix(0, 0)
	f := NewFake(start)

	past, cancelPast := f.WithDeadline(context.Background(), start)
	defer cancelPast()
	if past.Err() == nil {
		t.Error("deadline at now should already be expired")
	}

	ctx, cancel := f.WithDeadline(context.Background(), start.Add(time.Minute))
	defer cancel()
	f.Advance(59 * time.Second)
	if ctx.Err() != nil {
		t.Fatal("fired early")
	}
	f.Advance(time.Second)
	if ctx.Err() == nil {
		t.Error("Advance to the deadline did not fire it")
	}
	if len(f.Sleeps()) != 0 {
		t.Errorf("Advance recorded sleeps %v", f.Sleeps())
	}
}

func TestFakeCancelRemovesDeadline(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ctx, cancel := f.WithDeadline(context.Background(), time.Unix(10, 0))
	cancel()
	if !errors.Is(context.Cause(ctx), context.Canceled) {
		t.Errorf("cause = %v, want Canceled", context.Cause(ctx))
	}
	f.Advance(time.Minute)
	if len(f.deadlines) != 0 {
		t.Errorf("%d deadlines still pending", len(f.deadlines))
	}
}
