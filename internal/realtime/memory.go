package realtime

import (
	"context"
	"sync"
)

// MemoryBroker is a process-local Broker.
type MemoryBroker struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
	subs      map[string]map[chan []byte]struct{}
	closed    bool
}

// NewMemoryBroker creates an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		snapshots: make(map[string][]byte),
		subs:      make(map[string]map[chan []byte]struct{}),
	}
}

func (b *MemoryBroker) Save(_ context.Context, id string, snapshot []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots[id] = append([]byte(nil), snapshot...)
	return nil
}

func (b *MemoryBroker) Load(_ context.Context, id string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.snapshots[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), s...), nil
}

func (b *MemoryBroker) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.snapshots, id)
	return nil
}

func (b *MemoryBroker) Publish(_ context.Context, id string, snapshot []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[id] {
		select {
		case ch <- snapshot:
		default:
			// subscriber is behind, drop
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, id string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	if b.subs[id] == nil {
		b.subs[id] = make(map[chan []byte]struct{})
	}
	b.subs[id][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(id, ch)
	}()
	return ch, nil
}

func (b *MemoryBroker) unsubscribe(id string, ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id][ch]; !ok {
		return
	}
	delete(b.subs[id], ch)
	if len(b.subs[id]) == 0 {
		delete(b.subs, id)
	}
	close(ch)
}

// Close ends every subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, id)
	}
	return nil
}
