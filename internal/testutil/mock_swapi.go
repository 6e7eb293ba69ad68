// Package testutil provides test doubles for the SWAPI upstream.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
)

// MockSWAPI is an httptest server that serves paginated SWAPI collections
// and individual resources under /api/.
type MockSWAPI struct {
	server *httptest.Server

	mu          sync.RWMutex
	collections map[string]*mockCollection
	resources   map[string]swapi.Record
	failures    map[string]int
	delays      map[string]time.Duration

	requestCount int
}

type mockCollection struct {
	records  []swapi.Record
	pageSize int
}

// NewMockSWAPI creates and starts a new mock SWAPI server.
func NewMockSWAPI() *MockSWAPI {
	m := &MockSWAPI{
		collections: make(map[string]*mockCollection),
		resources:   make(map[string]swapi.Record),
		failures:    make(map[string]int),
		delays:      make(map[string]time.Duration),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server root URL.
func (m *MockSWAPI) URL() string {
	return m.server.URL
}

// BaseURL returns the API root, the equivalent of https://swapi.dev/api.
func (m *MockSWAPI) BaseURL() string {
	return m.server.URL + "/api"
}

// Close shuts down the mock server.
func (m *MockSWAPI) Close() {
	m.server.Close()
}

// SetCollection serves records under /api/<name>/?page=N, pageSize per page.
func (m *MockSWAPI) SetCollection(name string, records []swapi.Record, pageSize int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[name] = &mockCollection{records: records, pageSize: pageSize}
}

// SetResource serves record at /api/<name>/<id>/ and returns its URL.
func (m *MockSWAPI) SetResource(name string, id int, record swapi.Record) string {
	path := fmt.Sprintf("/api/%s/%d/", name, id)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[path] = record
	return m.server.URL + path
}

// FailPath makes requests to key fail with status. key is either a resource
// path (/api/people/1/) or a page key from PageKey.
func (m *MockSWAPI) FailPath(key string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key] = status
}

// ClearPath removes any failure or delay configured for key.
func (m *MockSWAPI) ClearPath(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, key)
	delete(m.delays, key)
}

// DelayPath delays responses to key by d. key follows FailPath.
func (m *MockSWAPI) DelayPath(key string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[key] = d
}

// PageKey identifies one page of a collection for FailPath and DelayPath.
func PageKey(name string, page int) string {
	return fmt.Sprintf("/api/%s/?page=%d", name, page)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSWAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

func (m *MockSWAPI) handle(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/"), "/")

	m.mu.Lock()
	m.requestCount++
	collection, isCollection := m.collections[name]
	page := 1
	if isCollection {
		if p := r.URL.Query().Get("page"); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil || n < 1 {
				m.mu.Unlock()
				writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found"})
				return
			}
			page = n
		}
		key = PageKey(name, page)
	}
	status, failing := m.failures[key]
	delay := m.delays[key]
	resource, isResource := m.resources[r.URL.Path]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if failing {
		writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
		return
	}

	switch {
	case isCollection:
		writeJSON(w, http.StatusOK, m.page(r, name, collection, page))
	case isResource:
		writeJSON(w, http.StatusOK, resource)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found"})
	}
}

func (m *MockSWAPI) page(r *http.Request, name string, c *mockCollection, page int) swapi.Page {
	start := (page - 1) * c.pageSize
	end := min(start+c.pageSize, len(c.records))

	results := []swapi.Record{}
	if start < len(c.records) {
		results = c.records[start:end]
	}

	var next *string
	if end < len(c.records) {
		u := fmt.Sprintf("%s/api/%s/?page=%d", m.server.URL, name, page+1)
		next = &u
	}

	return swapi.Page{Count: len(c.records), Next: next, Results: results}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// People returns n person records named "Person 1".."Person n".
func People(n int) []swapi.Record {
	records := make([]swapi.Record, n)
	for i := range records {
		records[i] = swapi.Record{
			"name":   fmt.Sprintf("Person %d", i+1),
			"height": strconv.Itoa(100 + i),
			"mass":   strconv.Itoa(50 + i),
		}
	}
	return records
}
