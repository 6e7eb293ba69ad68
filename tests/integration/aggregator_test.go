package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/swapi-aggregator/internal/server"
	"github.com/Sternrassler/swapi-aggregator/internal/testutil"
	"github.com/Sternrassler/swapi-aggregator/pkg/client"
	"github.com/Sternrassler/swapi-aggregator/pkg/health"
	"github.com/Sternrassler/swapi-aggregator/pkg/logging"
	"github.com/Sternrassler/swapi-aggregator/pkg/pagination"
	"github.com/Sternrassler/swapi-aggregator/pkg/resolve"
	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Redis container not available: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// stack is the aggregator served on a real listener against a mock upstream.
type stack struct {
	mock    *testutil.MockSWAPI
	baseURL string
}

func startStack(t *testing.T, redisClient *redis.Client) *stack {
	t.Helper()

	mock := testutil.NewMockSWAPI()
	t.Cleanup(mock.Close)

	c, err := client.New(client.Config{UserAgent: "swapi-integration", RequestTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	peopleURL, _ := swapi.SeedURL(mock.BaseURL(), swapi.People)
	planetsURL, _ := swapi.SeedURL(mock.BaseURL(), swapi.Planets)

	var tracker server.StatusTracker
	if redisClient != nil {
		tracker = health.NewTracker(redisClient, logging.NewLogger("status-tracker"))
	}

	srv := server.New(server.Config{PeopleURL: peopleURL, PlanetsURL: planetsURL, ShutdownTimeout: time.Second},
		pagination.NewFetcher(c, pagination.DefaultConfig()),
		resolve.NewResolver(c, resolve.Residents),
		tracker)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &stack{mock: mock, baseURL: "http://" + ln.Addr().String()}
}

func (s *stack) get(t *testing.T, path string) (int, []byte) {
	t.Helper()

	resp, err := http.Get(s.baseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return resp.StatusCode, body
}

// TestPeople_ConcurrentPages serves the real collection shape (82 people,
// 10 per page) with later pages answering first.
func TestPeople_ConcurrentPages(t *testing.T) {
	s := startStack(t, nil)
	s.mock.SetCollection(swapi.People, testutil.People(82), 10)
	for page := 2; page <= 9; page++ {
		s.mock.DelayPath(testutil.PageKey(swapi.People, page), time.Duration(10-page)*20*time.Millisecond)
	}

	start := time.Now()
	status, body := s.get(t, "/people")
	elapsed := time.Since(start)

	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, body)
	}

	var people []swapi.Record
	if err := json.Unmarshal(body, &people); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(people) != 82 {
		t.Fatalf("Expected 82 people, got %d", len(people))
	}
	for i, p := range people {
		if want := fmt.Sprintf("Person %d", i+1); p.String("name") != want {
			t.Fatalf("people[%d] = %q, want %q", i, p.String("name"), want)
		}
	}

	// Sequential fetching would take the sum of all delays (720ms).
	if elapsed > 600*time.Millisecond {
		t.Errorf("Pages do not appear to be fetched concurrently: %v", elapsed)
	}
	if got := s.mock.GetRequestCount(); got != 9 {
		t.Errorf("Expected 9 upstream requests, got %d", got)
	}
}

func TestPlanets_EndToEnd(t *testing.T) {
	s := startStack(t, nil)

	var tatooine []any
	for i := 1; i <= 5; i++ {
		tatooine = append(tatooine, s.mock.SetResource(swapi.People, i, swapi.Record{"name": fmt.Sprintf("Resident %d", i)}))
	}
	// Reverse completion order within the planet.
	s.mock.DelayPath("/api/people/1/", 80*time.Millisecond)
	s.mock.DelayPath("/api/people/2/", 40*time.Millisecond)

	s.mock.SetCollection(swapi.Planets, []swapi.Record{
		{"name": "Tatooine", "residents": tatooine, "climate": "arid"},
		{"name": "Hoth", "residents": []any{}},
	}, 1)

	status, body := s.get(t, "/planets")
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, body)
	}

	var planets []struct {
		Name      string   `json:"name"`
		Climate   string   `json:"climate"`
		Residents []string `json:"residents"`
	}
	if err := json.Unmarshal(body, &planets); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(planets) != 2 || planets[0].Name != "Tatooine" || planets[1].Name != "Hoth" {
		t.Fatalf("unexpected planets %+v", planets)
	}
	if planets[0].Climate != "arid" {
		t.Errorf("Expected other fields to pass through, got climate %q", planets[0].Climate)
	}
	for i, name := range planets[0].Residents {
		if want := fmt.Sprintf("Resident %d", i+1); name != want {
			t.Errorf("residents[%d] = %q, want %q", i, name, want)
		}
	}
	if len(planets[1].Residents) != 0 {
		t.Errorf("Expected no residents for Hoth, got %v", planets[1].Residents)
	}
}

func TestPlanets_UpstreamTimeout(t *testing.T) {
	s := startStack(t, nil)

	slow := s.mock.SetResource(swapi.People, 1, swapi.Record{"name": "Slow"})
	s.mock.DelayPath("/api/people/1/", 5*time.Second)
	s.mock.SetCollection(swapi.Planets, []swapi.Record{{"name": "Dagobah", "residents": []any{slow}}}, 10)

	status, body := s.get(t, "/planets")
	if status != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", status)
	}
	if string(body) != server.UnavailableMessage {
		t.Errorf("unexpected body %q", body)
	}
}

func TestStatusTracking_Redis(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	s := startStack(t, redisClient)
	s.mock.SetCollection(swapi.People, testutil.People(15), 10)
	s.mock.FailPath(testutil.PageKey(swapi.People, 2), http.StatusBadGateway)

	if status, _ := s.get(t, "/ready"); status != http.StatusOK {
		t.Errorf("Expected /ready 200, got %d", status)
	}

	for range health.UnhealthyAfter {
		if status, _ := s.get(t, "/people"); status != http.StatusServiceUnavailable {
			t.Errorf("Expected /people 503, got %d", status)
		}
	}

	tracker := health.NewTracker(redisClient, logging.NewLogger("test"))
	state, err := tracker.GetState(context.Background(), swapi.People)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Healthy || state.ConsecutiveFailures != health.UnhealthyAfter || state.LastFailure == nil {
		t.Errorf("after failures: %+v", state)
	}

	// Upstream recovers.
	s.mock.ClearPath(testutil.PageKey(swapi.People, 2))
	if status, body := s.get(t, "/people"); status != http.StatusOK {
		t.Fatalf("Expected /people 200 after recovery, got %d: %s", status, body)
	}

	state, err = tracker.GetState(context.Background(), swapi.People)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.Healthy || state.ConsecutiveFailures != 0 || state.LastSuccess == nil {
		t.Errorf("after recovery: %+v", state)
	}

	status, body := s.get(t, "/status")
	if status != http.StatusOK {
		t.Fatalf("Expected /status 200, got %d", status)
	}
	var states []health.State
	if err := json.Unmarshal(body, &states); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(states) != 2 || states[0].Collection != swapi.People || states[1].Collection != swapi.Planets {
		t.Errorf("unexpected states %+v", states)
	}
}
