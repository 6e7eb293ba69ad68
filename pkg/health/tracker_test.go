package health

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis connects to a local Redis and skips the test if none runs.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewTracker_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewTracker should panic with nil redis client")
		}
	}()
	NewTracker(nil, zerolog.Nop())
}

func TestTracker_GetState_Empty(t *testing.T) {
	tracker := NewTracker(setupTestRedis(t), zerolog.Nop())

	state, err := tracker.GetState(context.Background(), "people")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.Healthy {
		t.Error("Expected unknown collection to be healthy")
	}
	if state.LastSuccess != nil || state.LastFailure != nil {
		t.Errorf("Expected nil timestamps, got %+v", state)
	}
}

func TestTracker_FailuresThenSuccess(t *testing.T) {
	tracker := NewTracker(setupTestRedis(t), zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < UnhealthyAfter; i++ {
		if err := tracker.RecordFailure(ctx, "planets", errors.New("fetch page 3: 502")); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}

	state, err := tracker.GetState(ctx, "planets")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.ConsecutiveFailures != UnhealthyAfter {
		t.Errorf("ConsecutiveFailures = %d, want %d", state.ConsecutiveFailures, UnhealthyAfter)
	}
	if state.Healthy {
		t.Error("Expected unhealthy after repeated failures")
	}
	if state.LastError != "fetch page 3: 502" {
		t.Errorf("LastError = %q", state.LastError)
	}
	if state.LastFailure == nil {
		t.Error("Expected LastFailure to be set")
	}

	if err := tracker.RecordSuccess(ctx, "planets"); err != nil {
		t.Fatalf("RecordSuccess() error = %v", err)
	}

	state, err = tracker.GetState(ctx, "planets")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.ConsecutiveFailures != 0 || !state.Healthy {
		t.Errorf("Expected reset after success, got %+v", state)
	}
	if state.LastSuccess == nil {
		t.Error("Expected LastSuccess to be set")
	}
}

func TestTracker_States(t *testing.T) {
	tracker := NewTracker(setupTestRedis(t), zerolog.Nop())
	ctx := context.Background()

	if err := tracker.RecordSuccess(ctx, "people"); err != nil {
		t.Fatalf("RecordSuccess() error = %v", err)
	}

	states, err := tracker.States(ctx, "people", "planets")
	if err != nil {
		t.Fatalf("States() error = %v", err)
	}
	if len(states) != 2 || states[0].Collection != "people" || states[1].Collection != "planets" {
		t.Fatalf("Unexpected states: %+v", states)
	}
	if states[0].LastSuccess == nil {
		t.Error("Expected people success")
	}
	if states[1].LastSuccess != nil {
		t.Error("Expected no planets success")
	}
}

func TestTracker_Ping(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())

	if err := tracker.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
