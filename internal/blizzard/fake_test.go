package blizzard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
)

// fakeGetter answers requests from a path table. Unknown paths are 404s.
type fakeGetter struct {
	mu        sync.Mutex
	responses map[string]string
	errors    map[string]error
	calls     []string
	hook      func(path string)
}

func newFakeGetter() *fakeGetter {
	return &fakeGetter{responses: map[string]string{}, errors: map[string]error{}}
}

func (f *fakeGetter) Get(ctx context.Context, region ladder.Region, path string, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	body, ok := f.responses[path]
	err := f.errors[path]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(path)
	}
	if err != nil {
		return err
	}
	if !ok {
		return &APIError{StatusCode: http.StatusNotFound, URL: path}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeGetter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
