package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// FakeGetter is an in-process swapi.Getter. Responses are JSON round-tripped
// into the caller's value so it behaves like a real decoder.
type FakeGetter struct {
	mu        sync.Mutex
	responses map[string]any
	errs      map[string]error
	hooks     map[string]func(ctx context.Context) error
	calls     []string
}

// NewFakeGetter creates an empty FakeGetter.
func NewFakeGetter() *FakeGetter {
	return &FakeGetter{
		responses: make(map[string]any),
		errs:      make(map[string]error),
		hooks:     make(map[string]func(ctx context.Context) error),
	}
}

// Set registers the value returned for url.
func (f *FakeGetter) Set(url string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = v
}

// Fail makes requests for url return err.
func (f *FakeGetter) Fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

// Before runs hook before answering url. A non-nil hook error is returned
// as the request error. Hooks are used to delay or reorder completions.
func (f *FakeGetter) Before(url string, hook func(ctx context.Context) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[url] = hook
}

// Calls returns the URLs requested so far, in arrival order.
func (f *FakeGetter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// GetJSON implements swapi.Getter.
func (f *FakeGetter) GetJSON(ctx context.Context, url string, v any) error {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	hook := f.hooks[url]
	err := f.errs[url]
	resp, ok := f.responses[url]
	f.mu.Unlock()

	if hook != nil {
		if hookErr := hook(ctx); hookErr != nil {
			return hookErr
		}
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("fake getter: no response for %s", url)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
