package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"transferkit/types"
)

func TestAttachAndPublish(t *testing.T) {
	m := NewMux()
	var calls int32

	m.Attach(types.ReceiverTransactionPrepared, func(interface{}) {
		atomic.AddInt32(&calls, 1)
	}, nil)

	m.Publish(types.ReceiverTransactionPrepared, "a")
	m.Publish(types.ReceiverTransactionPrepared, "b")
	m.Publish(types.SenderTransactionPrepared, "other event")

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
}

func TestFilter(t *testing.T) {
	m := NewMux()
	var got []string

	m.Attach(types.ReceiverTransactionFulfilled, func(p interface{}) {
		got = append(got, p.(string))
	}, func(p interface{}) bool { return p == "match" })

	m.Publish(types.ReceiverTransactionFulfilled, "skip")
	m.Publish(types.ReceiverTransactionFulfilled, "match")

	if len(got) != 1 || got[0] != "match" {
		t.Fatalf("filter leaked: %v", got)
	}
}

func TestAttachOnceFiresOnce(t *testing.T) {
	m := NewMux()
	var calls int32

	m.AttachOnce(types.SenderTransactionCancelled, func(interface{}) {
		atomic.AddInt32(&calls, 1)
	}, nil, 0)

	m.Publish(types.SenderTransactionCancelled, nil)
	m.Publish(types.SenderTransactionCancelled, nil)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("once handler fired %d times", got)
	}
}

func TestWaitForReceivesPayload(t *testing.T) {
	m := NewMux()

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Publish(types.ReceiverTransactionFulfilled, "done")
	}()

	payload, err := m.WaitFor(context.Background(), types.ReceiverTransactionFulfilled, time.Second, nil)
	if err != nil {
		t.Fatalf("waitFor: %v", err)
	}
	if payload != "done" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestWaitForTimesOut(t *testing.T) {
	m := NewMux()
	_, err := m.WaitFor(context.Background(), types.ReceiverTransactionFulfilled, 20*time.Millisecond, nil)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected deadline, got %v", err)
	}
	if m.HandlerCount(types.ReceiverTransactionFulfilled) != 0 {
		t.Fatalf("waitFor leaked its registration")
	}
}

func TestDetachIsIdempotent(t *testing.T) {
	m := NewMux()
	m.Attach(types.SenderTransactionPrepared, func(interface{}) {}, nil)
	m.Attach(types.ReceiverTransactionPrepared, func(interface{}) {}, nil)

	m.Detach()
	m.Detach() // second detach must be a no-op

	for _, evt := range types.EventNames() {
		if m.HandlerCount(evt) != 0 {
			t.Fatalf("handlers survived detach for %s", evt)
		}
	}
}

func TestDetachSingleEvent(t *testing.T) {
	m := NewMux()
	m.Attach(types.SenderTransactionPrepared, func(interface{}) {}, nil)
	m.Attach(types.ReceiverTransactionPrepared, func(interface{}) {}, nil)

	m.Detach(types.SenderTransactionPrepared)

	if m.HandlerCount(types.SenderTransactionPrepared) != 0 {
		t.Fatalf("detached event still has handlers")
	}
	if m.HandlerCount(types.ReceiverTransactionPrepared) != 1 {
		t.Fatalf("unrelated event lost its handler")
	}
}
