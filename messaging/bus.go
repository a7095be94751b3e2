// Package messaging is the SDK's port onto the auction bus. Production uses
// NATS; MemoryBus backs tests and local development.
package messaging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"transferkit/types"
)

// Subscription is a handle on a live bus subscription.
type Subscription interface {
	Unsubscribe() error
}

// Bus carries auction and meta-tx traffic. Connect is idempotent: connecting
// an already-connected bus is a no-op returning the same session.
type Bus interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	PublishAuctionRequest(ctx context.Context, env types.AuctionRequestEnvelope) error
	SubscribeAuctionResponses(handler func(types.AuctionResponseEnvelope)) (Subscription, error)
	PublishMetaTxRequest(ctx context.Context, req types.MetaTxRequest) error
	Close()
}

// NewInbox returns a fresh random 32-byte hex reply address.
func NewInbox() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate inbox: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
