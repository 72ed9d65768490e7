package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/markdave123-py/doctext/internal/core"
	"github.com/markdave123-py/doctext/internal/models"
)

// FakeObjectClient serves files from memory. Missing keys return NotFound.
type FakeObjectClient struct {
	mu       sync.Mutex
	Files    map[string][]byte
	NotFound error
	Delay    time.Duration
	calls    int
}

var _ core.ObjectClient = (*FakeObjectClient)(nil)

func NewFakeObjectClient(notFound error) *FakeObjectClient {
	return &FakeObjectClient{Files: make(map[string][]byte), NotFound: notFound}
}

func (f *FakeObjectClient) Put(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Files[bucket+"/"+key] = data
}

func (f *FakeObjectClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeObjectClient) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	data, ok := f.Files[bucket+"/"+key]
	delay := f.Delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, f.NotFound
	}
	return data, nil
}

// FakeExtractor returns Result (or Err) for every call.
type FakeExtractor struct {
	Result     *core.ExtractionResult
	Err        error
	Delay      time.Duration
	Acceptable func(*core.ExtractionResult) bool
}

var _ core.TextExtractor = (*FakeExtractor)(nil)

func (f *FakeExtractor) Extract(_ context.Context, _ []byte, _, _ string) (*core.ExtractionResult, error) {
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	res := *f.Result
	return &res, nil
}

func (f *FakeExtractor) IsAcceptable(res *core.ExtractionResult) bool {
	if f.Acceptable != nil {
		return f.Acceptable(res)
	}
	return res != nil && res.WordCount > 0
}

// FakePublisher records published events.
type FakePublisher struct {
	mu     sync.Mutex
	Err    error
	events []models.ProcessedEvent
}

var _ core.EventPublisher = (*FakePublisher)(nil)

func (f *FakePublisher) PublishProcessed(_ context.Context, evt models.ProcessedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.Err
}

func (f *FakePublisher) Events() []models.ProcessedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ProcessedEvent, len(f.events))
	copy(out, f.events)
	return out
}

// FakeGuard is an in-memory InFlightGuard.
type FakeGuard struct {
	mu   sync.Mutex
	held map[string]bool
	Err  error
}

var _ core.InFlightGuard = (*FakeGuard)(nil)

func NewFakeGuard() *FakeGuard {
	return &FakeGuard{held: make(map[string]bool)}
}

func (g *FakeGuard) Acquire(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return false, g.Err
	}
	if g.held[id] {
		return false, nil
	}
	g.held[id] = true
	return true, nil
}

func (g *FakeGuard) Release(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, id)
	return nil
}

func (g *FakeGuard) Held(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held[id]
}
