package codevault

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codevault/codevault/events"
	"github.com/codevault/codevault/search"
	"github.com/codevault/codevault/store"
	"github.com/codevault/codevault/store/memory"
)

const testSecret = "this-is-a-32-character-secret!!!"

// clock is a settable time source shared by the vault and its issuer.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]events.Type, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}

// fakeIndexer keeps documents in a map and answers searches with a fixed
// result list.
type fakeIndexer struct {
	mu      sync.Mutex
	docs    map[int64]*store.Snippet
	results []int64
	err     error
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{docs: make(map[int64]*store.Snippet)}
}

func (f *fakeIndexer) IndexSnippet(_ context.Context, sn *store.Snippet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sn
	f.docs[sn.ID] = &cp
	return nil
}

func (f *fakeIndexer) DeleteSnippet(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeIndexer) Search(context.Context, int64, string) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeIndexer) Has(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[id]
	return ok
}

var _ search.Indexer = (*fakeIndexer)(nil)

func newTestVault(t *testing.T, opts ...Option) *Vault {
	t.Helper()

	base := []Option{
		WithSecret(testSecret),
		WithStore(memory.New()),
		WithBcryptCost(4),
	}
	v, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v
}

func mustRegister(t *testing.T, v *Vault, username, email, pw string) *store.User {
	t.Helper()
	u, err := v.Register(context.Background(), username, email, pw)
	if err != nil {
		t.Fatalf("Register(%q) error = %v", username, err)
	}
	return u
}

func mustLogin(t *testing.T, v *Vault, identifier, pw string) *LoginResult {
	t.Helper()
	res, err := v.Login(context.Background(), identifier, pw)
	if err != nil {
		t.Fatalf("Login(%q) error = %v", identifier, err)
	}
	return res
}

func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}
