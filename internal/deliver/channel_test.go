package deliver

import (
	"testing"
	"time"
)

func TestStatsBumpAndWindow(t *testing.T) {
	s := NewStats(time.Hour)
	now := time.Date(2026, 3, 14, 10, 15, 0, 0, time.UTC)

	s.Bump(ChannelPrimary, true, "", now)
	s.Bump(ChannelPrimary, false, "timeout", now.Add(time.Minute))
	s.Bump(ChannelSecondary, true, "", now)

	win := s.Window(now.Add(2 * time.Minute))
	if win[ChannelPrimary].OK != 1 || win[ChannelPrimary].Fail != 1 {
		t.Fatalf("primary window = %+v", win[ChannelPrimary])
	}
	if win[ChannelPrimary].LastError != "timeout" {
		t.Errorf("LastError = %q", win[ChannelPrimary].LastError)
	}
	if win[ChannelSecondary].OK != 1 {
		t.Errorf("secondary window = %+v", win[ChannelSecondary])
	}
}

func TestStatsWindowRollsAtBoundary(t *testing.T) {
	s := NewStats(time.Hour)
	now := time.Date(2026, 3, 14, 10, 15, 0, 0, time.UTC)

	s.Bump(ChannelPrimary, true, "", now)

	// Same hour: window intact.
	if win := s.Window(now.Add(40 * time.Minute)); win[ChannelPrimary].OK != 1 {
		t.Fatal("window reset inside the hour")
	}
	// Next hour: window resets, lifetime survives.
	if win := s.Window(now.Add(50 * time.Minute)); win[ChannelPrimary].OK != 0 {
		t.Fatal("window did not reset at the hour boundary")
	}
	if life := s.Lifetime(); life[ChannelPrimary].OK != 1 {
		t.Fatal("lifetime counter lost on window roll")
	}
}

func TestStatsRestoreLifetime(t *testing.T) {
	s := NewStats(time.Hour)
	s.RestoreLifetime(map[Channel]Counter{ChannelPrimary: {OK: 42, Fail: 7}})

	s.Bump(ChannelPrimary, true, "", time.Now())
	life := s.Lifetime()
	if life[ChannelPrimary].OK != 43 || life[ChannelPrimary].Fail != 7 {
		t.Fatalf("lifetime = %+v", life[ChannelPrimary])
	}
}

func TestChannelString(t *testing.T) {
	tests := []struct {
		ch   Channel
		want string
	}{
		{ChannelPrimary, "primary"},
		{ChannelSecondary, "secondary"},
		{ChannelAlert, "alert"},
	}
	for _, tt := range tests {
		if got := tt.ch.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.ch), got, tt.want)
		}
	}
}
