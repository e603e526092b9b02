package cloudapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/shadowsync/internal/shadow"
)

// staticTokenSource always returns the same bearer token, avoiding any real
// OAuth2 round trip in tests.
type staticTokenSource struct{}

func (staticTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "test-token", TokenType: "Bearer"}, nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(srv.URL, srv.Client(), staticTokenSource{}, nil)
}

func TestClientGetThingShadowFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}

		if r.URL.Path != "/things/lamp/shadows/classic" {
			t.Errorf("path = %s, want /things/lamp/shadows/classic", r.URL.Path)
		}

		json.NewEncoder(w).Encode(wireEnvelope{Document: json.RawMessage(`{"on":true}`), Version: 4})
	})

	doc, err := client.GetThingShadow(context.Background(), shadow.Key{Thing: "lamp"})
	if err != nil {
		t.Fatalf("GetThingShadow: %v", err)
	}

	if doc.Version != 4 || string(doc.Body) != `{"on":true}` {
		t.Errorf("GetThingShadow = %+v, want version 4 body {\"on\":true}", doc)
	}
}

func TestClientGetThingShadowNotFoundReturnsNilNil(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	doc, err := client.GetThingShadow(context.Background(), shadow.Key{Thing: "lamp"})
	if err != nil {
		t.Fatalf("GetThingShadow: %v", err)
	}

	if doc != nil {
		t.Errorf("GetThingShadow = %+v, want nil", doc)
	}
}

func TestClientGetThingShadowServerErrorIsRetryable(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.GetThingShadow(context.Background(), shadow.Key{Thing: "lamp"})
	if !shadow.IsRetryable(err) {
		t.Errorf("GetThingShadow error = %v, want retryable", err)
	}
}

func TestClientGetThingShadowThrottledIsRetryable(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetThingShadow(context.Background(), shadow.Key{Thing: "lamp"})
	if !shadow.IsRetryable(err) {
		t.Errorf("GetThingShadow error = %v, want retryable", err)
	}
}

func TestClientGetThingShadowClientErrorIsSkip(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.GetThingShadow(context.Background(), shadow.Key{Thing: "lamp"})
	if !shadow.IsSkip(err) {
		t.Errorf("GetThingShadow error = %v, want skip", err)
	}
}

func TestClientUpdateThingShadowSendsIfMatchAndReturnsVersion(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}

		if r.Header.Get("If-Match") != "3" {
			t.Errorf("If-Match = %q, want 3", r.Header.Get("If-Match"))
		}

		var env wireEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Fatalf("decode request body: %v", err)
		}

		if string(env.Document) != `{"on":false}` {
			t.Errorf("request document = %s, want {\"on\":false}", env.Document)
		}

		json.NewEncoder(w).Encode(wireEnvelope{Version: 4})
	})

	version, err := client.UpdateThingShadow(context.Background(), shadow.Key{Thing: "lamp"}, []byte(`{"on":false}`), 3)
	if err != nil {
		t.Fatalf("UpdateThingShadow: %v", err)
	}

	if version != 4 {
		t.Errorf("UpdateThingShadow version = %d, want 4", version)
	}
}

func TestClientUpdateThingShadowConflict(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	})

	_, err := client.UpdateThingShadow(context.Background(), shadow.Key{Thing: "lamp"}, []byte(`{}`), 3)
	if !errors.Is(err, shadow.ErrConflict) {
		t.Errorf("UpdateThingShadow error = %v, want ErrConflict", err)
	}
}

func TestClientUpdateThingShadowServerErrorIsRetryable(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.UpdateThingShadow(context.Background(), shadow.Key{Thing: "lamp"}, []byte(`{}`), 3)
	if !shadow.IsRetryable(err) {
		t.Errorf("UpdateThingShadow error = %v, want retryable", err)
	}
}

func TestClientUpdateThingShadowThrottledIsRetryable(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.UpdateThingShadow(context.Background(), shadow.Key{Thing: "lamp"}, []byte(`{}`), 3)
	if !shadow.IsRetryable(err) {
		t.Errorf("UpdateThingShadow error = %v, want retryable", err)
	}
}

func TestClientDeleteThingShadowNotFoundIsSuccess(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}

		w.WriteHeader(http.StatusNotFound)
	})

	if err := client.DeleteThingShadow(context.Background(), shadow.Key{Thing: "lamp"}, 1); err != nil {
		t.Errorf("DeleteThingShadow: %v, want nil (404 treated as success)", err)
	}
}

func TestClientDeleteThingShadowConflict(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	err := client.DeleteThingShadow(context.Background(), shadow.Key{Thing: "lamp"}, 1)
	if !errors.Is(err, shadow.ErrConflict) {
		t.Errorf("DeleteThingShadow error = %v, want ErrConflict", err)
	}
}

func TestClientDeleteThingShadowThrottledIsRetryable(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := client.DeleteThingShadow(context.Background(), shadow.Key{Thing: "lamp"}, 1)
	if !shadow.IsRetryable(err) {
		t.Errorf("DeleteThingShadow error = %v, want retryable", err)
	}
}

func TestNewTokenSourceBuildsClientCredentialsSource(t *testing.T) {
	t.Parallel()

	ts := NewTokenSource(context.Background(), "client-id", "client-secret", "https://auth.example.com/token")
	if ts == nil {
		t.Fatal("NewTokenSource returned nil")
	}
}
