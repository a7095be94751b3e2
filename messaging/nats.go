package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"transferkit/types"
)

const connectTimeout = 10 * time.Second

// NatsBus is the production bus implementation.
type NatsBus struct {
	url     string
	authURL string
	opts    []nats.Option

	mu   sync.Mutex
	conn *nats.Conn
}

// NewNatsBus prepares a bus against the given NATS cluster. Nothing is
// dialed until Connect.
func NewNatsBus(url string, opts ...nats.Option) *NatsBus {
	base := []nats.Option{
		nats.Name("transferkit"),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
	}
	return &NatsBus{url: url, opts: append(base, opts...)}
}

// UseAuthService makes Connect fetch a bearer token from the auth service
// and present it to the cluster. Empty disables token auth (local clusters).
func (b *NatsBus) UseAuthService(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authURL = url
}

func (b *NatsBus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil && !b.conn.IsClosed() {
		return nil
	}

	opts := b.opts
	if b.authURL != "" {
		token, err := fetchBearerToken(ctx, b.authURL)
		if err != nil {
			return fmt.Errorf("fetch messaging token: %w", err)
		}
		opts = append(append([]nats.Option{}, opts...), nats.Token(token))
	}

	conn, err := nats.Connect(b.url, opts...)
	if err != nil {
		return fmt.Errorf("connect nats %s: %w", b.url, err)
	}
	b.conn = conn
	return nil
}

// fetchBearerToken asks the auth service for a cluster token. The body is
// the token, whitespace-trimmed.
func fetchBearerToken(ctx context.Context, authURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(authURL, "/")+"/auth/token", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth service %s: unexpected status %d", authURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", fmt.Errorf("auth service %s: empty token", authURL)
	}
	return token, nil
}

func (b *NatsBus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}

func (b *NatsBus) current() (*nats.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil || b.conn.IsClosed() {
		return nil, fmt.Errorf("bus is not connected")
	}
	return b.conn, nil
}

func (b *NatsBus) PublishAuctionRequest(_ context.Context, env types.AuctionRequestEnvelope) error {
	conn, err := b.current()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal auction request: %w", err)
	}
	return conn.Publish(types.SubjectAuctionRequest, payload)
}

func (b *NatsBus) SubscribeAuctionResponses(handler func(types.AuctionResponseEnvelope)) (Subscription, error) {
	conn, err := b.current()
	if err != nil {
		return nil, err
	}
	sub, err := conn.Subscribe(types.SubjectAuctionResponse, func(msg *nats.Msg) {
		var env types.AuctionResponseEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			// Malformed traffic on a shared subject is dropped, not fatal.
			return
		}
		handler(env)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", types.SubjectAuctionResponse, err)
	}
	return sub, nil
}

func (b *NatsBus) PublishMetaTxRequest(_ context.Context, req types.MetaTxRequest) error {
	conn, err := b.current()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal metatx request: %w", err)
	}
	return conn.Publish(types.SubjectMetaTxRequest, payload)
}

func (b *NatsBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}
