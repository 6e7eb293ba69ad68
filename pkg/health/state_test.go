package health

import (
	"testing"
	"time"
)

func TestState_UpdateHealth(t *testing.T) {
	tests := []struct {
		failures int
		want     bool
	}{
		{0, true},
		{UnhealthyAfter - 1, true},
		{UnhealthyAfter, false},
		{UnhealthyAfter + 5, false},
	}

	for _, tt := range tests {
		s := &State{ConsecutiveFailures: tt.failures}
		s.UpdateHealth()
		if s.Healthy != tt.want {
			t.Errorf("failures=%d: Healthy = %v, want %v", tt.failures, s.Healthy, tt.want)
		}
	}
}

func TestState_SinceSuccess(t *testing.T) {
	s := &State{}
	if _, ok := s.SinceSuccess(); ok {
		t.Error("Expected no success recorded")
	}

	ts := time.Now().Add(-2 * time.Minute)
	s.LastSuccess = &ts
	d, ok := s.SinceSuccess()
	if !ok {
		t.Fatal("Expected success recorded")
	}
	if d < 2*time.Minute || d > 3*time.Minute {
		t.Errorf("SinceSuccess() = %v, want ~2m", d)
	}
}

func TestRedisKey(t *testing.T) {
	if got := redisKey("people", redisFieldLastSuccess); got != "swapi:status:people:last_success" {
		t.Errorf("redisKey() = %q", got)
	}
}

func TestParseMillis(t *testing.T) {
	ts, err := parseMillis(nil)
	if err != nil || ts != nil {
		t.Errorf("parseMillis(nil) = %v, %v", ts, err)
	}

	ts, err = parseMillis("1700000000123")
	if err != nil {
		t.Fatalf("parseMillis() error = %v", err)
	}
	if ts.UnixMilli() != 1700000000123 {
		t.Errorf("parseMillis() = %v", ts.UnixMilli())
	}

	if _, err := parseMillis("yesterday"); err == nil {
		t.Error("Expected error for non-numeric value")
	}
	if _, err := parseMillis(42); err == nil {
		t.Error("Expected error for non-string value")
	}
}
