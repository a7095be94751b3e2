package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte("secret-token\n"))
	}))
	defer srv.Close()

	token, err := fetchBearerToken(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if token != "secret-token" {
		t.Fatalf("token %q not trimmed", token)
	}

	// Trailing slash must not double up.
	token, err = fetchBearerToken(context.Background(), srv.URL+"/")
	if err != nil || token != "secret-token" {
		t.Fatalf("trailing slash: token=%q err=%v", token, err)
	}
}

func TestFetchBearerTokenErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := fetchBearerToken(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error on 500")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("   "))
	}))
	defer empty.Close()
	if _, err := fetchBearerToken(context.Background(), empty.URL); err == nil {
		t.Fatalf("expected error on empty token")
	}
}

func TestConnectFailsWhenAuthServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	bus := NewNatsBus("nats://localhost:4222")
	bus.UseAuthService(srv.URL)

	err := bus.Connect(context.Background())
	if err == nil || !strings.Contains(err.Error(), "fetch messaging token") {
		t.Fatalf("expected token fetch failure before dialing, got %v", err)
	}
}
