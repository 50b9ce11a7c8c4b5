package common

import (
	"testing"
	"time"
)

func TestBackoff_NextIsBoundedAndNonDecreasing(t *testing.T) {
	b := NewBackoff(time.Second, 32*time.Second)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		32 * time.Second,
	}
	for attempt, w := range want {
		if got := b.Next(attempt); got != w {
			t.Errorf("Next(%d) = %v, want %v", attempt, got, w)
		}
	}

	prev := time.Duration(0)
	for attempt := 0; attempt < 200; attempt++ {
		d := b.Next(attempt)
		if d < b.BaseDelay || d > b.MaxDelay {
			t.Fatalf("Next(%d) = %v, outside [%v, %v]", attempt, d, b.BaseDelay, b.MaxDelay)
		}
		if d < prev {
			t.Fatalf("Next(%d) = %v, decreased from %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestBackoff_NegativeAttempt(t *testing.T) {
	b := NewBackoff(time.Second, 4*time.Second)
	if got := b.Next(-3); got != time.Second {
		t.Errorf("Next(-3) = %v, want %v", got, time.Second)
	}
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestReconnectPolicy_EscalatesDuringOutage(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	p := NewReconnectPolicy(NewBackoff(time.Second, 32*time.Second), 20*time.Second).WithClock(clock.now)

	p.Connected()
	clock.advance(time.Hour)

	var got []time.Duration
	for i := 0; i < 8; i++ {
		got = append(got, p.Next())
	}

	want := []time.Duration{1, 2, 4, 8, 16, 32, 32, 32}
	for i := range want {
		if got[i] != want[i]*time.Second {
			t.Errorf("delay[%d] = %v, want %v", i, got[i], want[i]*time.Second)
		}
	}
}

func TestReconnectPolicy_StableConnectionResets(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	p := NewReconnectPolicy(NewBackoff(time.Second, 32*time.Second), 20*time.Second).WithClock(clock.now)

	p.Next()
	p.Next()
	p.Next()

	p.Connected()
	clock.advance(20 * time.Second)

	if got := p.Next(); got != time.Second {
		t.Errorf("Next() after stable connection = %v, want %v", got, time.Second)
	}
}

func TestReconnectPolicy_FlappingConnectionKeepsEscalating(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	p := NewReconnectPolicy(NewBackoff(time.Second, 32*time.Second), 20*time.Second).WithClock(clock.now)

	first := p.Next()
	second := p.Next()

	p.Connected()
	clock.advance(5 * time.Second)

	third := p.Next()
	if !(first <= second && second <= third) {
		t.Errorf("delays %v, %v, %v are not non-decreasing", first, second, third)
	}
	if third != 4*time.Second {
		t.Errorf("Next() after short-lived connection = %v, want %v", third, 4*time.Second)
	}
}
