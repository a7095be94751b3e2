// Package events is the SDK's subscription surface over indexer events. The
// poller publishes into the mux; user code attaches handlers or waits.
//
// Events delivered before a registration exists are missed; there is no
// replay.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"transferkit/types"
)

// Handler consumes one event payload.
type Handler func(payload interface{})

// Filter decides whether a payload reaches a handler. A nil filter accepts
// everything.
type Filter func(payload interface{}) bool

type registration struct {
	token  string
	cb     Handler
	filter Filter
	once   bool
}

// Mux owns event handler registrations. Handlers are held by token;
// detaching invalidates tokens.
type Mux struct {
	mu   sync.Mutex
	regs map[types.EventName]map[string]*registration
}

func NewMux() *Mux {
	return &Mux{regs: make(map[types.EventName]map[string]*registration)}
}

// Attach registers cb for evt and returns a token usable with DetachToken.
func (m *Mux) Attach(evt types.EventName, cb Handler, filter Filter) string {
	return m.attach(evt, cb, filter, false)
}

// AttachOnce registers cb for a single matching delivery. A non-zero timeout
// drops the registration if nothing matched in time.
func (m *Mux) AttachOnce(evt types.EventName, cb Handler, filter Filter, timeout time.Duration) string {
	token := m.attach(evt, cb, filter, true)
	if timeout > 0 {
		go func() {
			time.Sleep(timeout)
			m.DetachToken(evt, token)
		}()
	}
	return token
}

func (m *Mux) attach(evt types.EventName, cb Handler, filter Filter, once bool) string {
	token := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.regs[evt] == nil {
		m.regs[evt] = make(map[string]*registration)
	}
	m.regs[evt][token] = &registration{token: token, cb: cb, filter: filter, once: once}
	return token
}

// WaitFor blocks until the first matching event after registration, the
// timeout, or context cancellation.
func (m *Mux) WaitFor(ctx context.Context, evt types.EventName, timeout time.Duration, filter Filter) (interface{}, error) {
	ch := make(chan interface{}, 1)
	token := m.attach(evt, func(payload interface{}) {
		select {
		case ch <- payload:
		default:
		}
	}, filter, true)
	defer m.DetachToken(evt, token)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-ch:
		return payload, nil
	case <-timer.C:
		return nil, context.DeadlineExceeded
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Detach removes every registration for the named events, or all
// registrations when called with no arguments. Detaching twice is a no-op.
func (m *Mux) Detach(evts ...types.EventName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(evts) == 0 {
		m.regs = make(map[types.EventName]map[string]*registration)
		return
	}
	for _, evt := range evts {
		delete(m.regs, evt)
	}
}

// DetachToken removes one registration.
func (m *Mux) DetachToken(evt types.EventName, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if regs := m.regs[evt]; regs != nil {
		delete(regs, token)
	}
}

// HandlerCount reports live registrations for evt.
func (m *Mux) HandlerCount(evt types.EventName) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.regs[evt])
}

// Publish delivers payload to every matching handler. Once-handlers are
// removed before their callback runs, so they fire at most once even when
// publishers race.
func (m *Mux) Publish(evt types.EventName, payload interface{}) {
	m.mu.Lock()
	var toRun []Handler
	for token, reg := range m.regs[evt] {
		if reg.filter != nil && !reg.filter(payload) {
			continue
		}
		toRun = append(toRun, reg.cb)
		if reg.once {
			delete(m.regs[evt], token)
		}
	}
	m.mu.Unlock()

	for _, cb := range toRun {
		cb(payload)
	}
}
