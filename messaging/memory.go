package messaging

import (
	"context"
	"fmt"
	"sync"

	"transferkit/types"
)

// MemoryBus is an in-process bus for tests and local development. Handlers
// run on the publisher's goroutine.
type MemoryBus struct {
	mu        sync.Mutex
	connected bool
	nextID    int
	handlers  map[int]func(types.AuctionResponseEnvelope)

	// OnAuctionRequest, when set, simulates router behavior for every
	// published auction request.
	OnAuctionRequest func(types.AuctionRequestEnvelope)
	// OnMetaTxRequest, when set, simulates the relayer network.
	OnMetaTxRequest func(types.MetaTxRequest)

	requests []types.AuctionRequestEnvelope
	metaTxs  []types.MetaTxRequest
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[int]func(types.AuctionResponseEnvelope))}
}

func (b *MemoryBus) Connect(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

func (b *MemoryBus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *MemoryBus) PublishAuctionRequest(_ context.Context, env types.AuctionRequestEnvelope) error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return fmt.Errorf("bus is not connected")
	}
	b.requests = append(b.requests, env)
	hook := b.OnAuctionRequest
	b.mu.Unlock()

	if hook != nil {
		hook(env)
	}
	return nil
}

func (b *MemoryBus) SubscribeAuctionResponses(handler func(types.AuctionResponseEnvelope)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, fmt.Errorf("bus is not connected")
	}
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	return &memorySubscription{bus: b, id: id}, nil
}

// DeliverAuctionResponse fans a router reply out to every subscriber.
func (b *MemoryBus) DeliverAuctionResponse(env types.AuctionResponseEnvelope) {
	b.mu.Lock()
	handlers := make([]func(types.AuctionResponseEnvelope), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(env)
	}
}

func (b *MemoryBus) PublishMetaTxRequest(_ context.Context, req types.MetaTxRequest) error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return fmt.Errorf("bus is not connected")
	}
	b.metaTxs = append(b.metaTxs, req)
	hook := b.OnMetaTxRequest
	b.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	return nil
}

// AuctionRequests returns every auction request published so far.
func (b *MemoryBus) AuctionRequests() []types.AuctionRequestEnvelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.AuctionRequestEnvelope, len(b.requests))
	copy(out, b.requests)
	return out
}

// MetaTxRequests returns every meta-tx request published so far.
func (b *MemoryBus) MetaTxRequests() []types.MetaTxRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.MetaTxRequest, len(b.metaTxs))
	copy(out, b.metaTxs)
	return out
}

func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.handlers = make(map[int]func(types.AuctionResponseEnvelope))
}

type memorySubscription struct {
	bus *MemoryBus
	id  int
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.handlers, s.id)
	return nil
}
