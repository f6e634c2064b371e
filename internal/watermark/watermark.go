// Package watermark tracks durable staleness timestamps and decides whether a
// recurring unit of work is due.
package watermark

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Names of the tracked watermarks.
const (
	HeavyStats            = "ladder.stats.heavy.timestamp"
	ForcedScan            = "ladder.updated.forced"
	MaintenanceFrequent   = "maintenance.frequent"
	MaintenanceInfrequent = "maintenance.infrequent"
	MatchUpdated          = "match.updated"

	updatedPrefix  = "ladder.updated"
	internalSuffix = ".internal"
)

// GlobalScope is the scope of the whole-cycle update context.
const GlobalScope = ""

// ExternalName returns the name of the external watermark of scope.
func ExternalName(scope string) string {
	if scope == GlobalScope {
		return updatedPrefix
	}
	return updatedPrefix + "." + scope
}

// InternalName returns the name of the internal watermark of scope.
func InternalName(scope string) string {
	return ExternalName(scope) + internalSuffix
}

// Store persists watermarks. A nil value means the watermark was never set.
type Store interface {
	Load(ctx context.Context, name string) (*time.Time, error)
	All(ctx context.Context) (map[string]*time.Time, error)
	// Save writes every value in one transaction.
	Save(ctx context.Context, values map[string]*time.Time) error
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker caches watermarks loaded lazily from a Store. Every read-modify-persist
// runs under one lock and the cache changes only after the store accepted the
// write.
type Tracker struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	cache map[string]*time.Time
}

// NewTracker creates a Tracker on top of store.
func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store: store,
		now:   time.Now,
		cache: make(map[string]*time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Now returns the tracker's clock reading.
func (t *Tracker) Now() time.Time { return t.now() }

// Get returns the current value of name, nil if it was never set.
func (t *Tracker) Get(ctx context.Context, name string) (*time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ctx, name)
}

func (t *Tracker) load(ctx context.Context, name string) (*time.Time, error) {
	if v, ok := t.cache[name]; ok {
		return copyTime(v), nil
	}
	v, err := t.store.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load watermark %s: %w", name, err)
	}
	t.cache[name] = copyTime(v)
	return copyTime(v), nil
}

// IsDue reports whether name is absent or at least interval old.
func (t *Tracker) IsDue(ctx context.Context, name string, interval time.Duration) (bool, error) {
	v, err := t.Get(ctx, name)
	if err != nil {
		return false, err
	}
	return due(v, t.now(), interval), nil
}

func due(v *time.Time, now time.Time, interval time.Duration) bool {
	return v == nil || now.Sub(*v) >= interval
}

// Advance persists ts as the new value of name. Calling it again after a
// failed attempt is safe: nothing is cached until the write succeeds.
func (t *Tracker) Advance(ctx context.Context, name string, ts time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.save(ctx, map[string]*time.Time{name: &ts})
}

func (t *Tracker) save(ctx context.Context, values map[string]*time.Time) error {
	if err := t.store.Save(ctx, values); err != nil {
		return fmt.Errorf("save watermarks: %w", err)
	}
	for name, v := range values {
		t.cache[name] = copyTime(v)
	}
	return nil
}

// Context returns the update context of scope.
func (t *Tracker) Context(ctx context.Context, scope string) (UpdateContext, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.context(ctx, scope)
}

func (t *Tracker) context(ctx context.Context, scope string) (UpdateContext, error) {
	ext, err := t.load(ctx, ExternalName(scope))
	if err != nil {
		return UpdateContext{}, err
	}
	in, err := t.load(ctx, InternalName(scope))
	if err != nil {
		return UpdateContext{}, err
	}
	return UpdateContext{External: ext, Internal: in}, nil
}

// Updated records that scope was refreshed from the upstream as of begin. The
// previous external watermark becomes the internal one, both in one write.
func (t *Tracker) Updated(ctx context.Context, scope string, begin time.Time) (UpdateContext, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, err := t.load(ctx, ExternalName(scope))
	if err != nil {
		return UpdateContext{}, err
	}
	next := UpdateContext{External: &begin, Internal: prev}
	err = t.save(ctx, map[string]*time.Time{
		ExternalName(scope): next.External,
		InternalName(scope): next.Internal,
	})
	if err != nil {
		return UpdateContext{}, err
	}
	return next, nil
}

// Evict drops the cache so the next read reloads from the store.
func (t *Tracker) Evict() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache = make(map[string]*time.Time)
}

// Snapshot returns the cached values without touching the store.
func (t *Tracker) Snapshot() map[string]*time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]*time.Time, len(t.cache))
	for k, v := range t.cache {
		out[k] = copyTime(v)
	}
	return out
}

// List loads every persisted watermark, refreshing the cache.
func (t *Tracker) List(ctx context.Context) (map[string]*time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	all, err := t.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list watermarks: %w", err)
	}
	out := make(map[string]*time.Time, len(all))
	for k, v := range all {
		t.cache[k] = copyTime(v)
		out[k] = copyTime(v)
	}
	return out, nil
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
