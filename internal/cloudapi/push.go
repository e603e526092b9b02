package cloudapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/shadowsync/internal/shadow"
)

const (
	maxPushMessageSize = 1 << 20
	reconnectInitial   = 1 * time.Second
	reconnectMax       = 30 * time.Second
)

// pushTarget is the subset of *shadow.Handler a PushListener drives.
type pushTarget interface {
	PushLocalUpdate(ctx context.Context, key shadow.Key, cloudDocument []byte) error
	PushLocalDelete(ctx context.Context, key shadow.Key, cloudVersion uint64) error
	OnConnectionInterrupted()
	OnConnectionResumed(ctx context.Context) error
}

// pushMessage is the wire shape of one cloud-originated shadow delta
// notification.
type pushMessage struct {
	Thing   string `json:"thing"`
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
	Version uint64 `json:"version"`
	// Document is present when Deleted is false.
	Document json.RawMessage `json:"document"`
}

// PushListener maintains a long-lived WebSocket connection to the cloud
// data plane's delta stream, translating each message into a
// PushLocalUpdate/PushLocalDelete call, and reconnecting with backoff on
// disconnect. This is the connectivity signal source behind
// Handler.OnConnectionInterrupted/OnConnectionResumed.
type PushListener struct {
	url    string
	ts     oauth2.TokenSource
	target pushTarget
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
}

// NewPushListener builds a PushListener against baseURL's push endpoint
// (an http(s) base URL, rewritten to ws(s) internally so config only
// carries one cloud base URL for both the REST and push surfaces),
// authenticating the handshake with ts.
func NewPushListener(baseURL string, ts oauth2.TokenSource, target pushTarget, logger *slog.Logger) *PushListener {
	if logger == nil {
		logger = slog.Default()
	}

	return &PushListener{url: wsURL(baseURL) + "/things/stream", ts: ts, target: target, logger: logger}
}

// Listen connects, consumes messages until the connection drops, then
// reconnects with jittered backoff, until ctx is canceled.
func (p *PushListener) Listen(ctx context.Context) error {
	delay := reconnectInitial

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := p.runOnce(ctx)

		p.setConnected(false)
		p.target.OnConnectionInterrupted()

		if ctx.Err() != nil {
			return nil
		}

		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Warn("push listener disconnected, reconnecting", "error", err, "delay", delay)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay = nextDelay(delay)
	}
}

func (p *PushListener) runOnce(ctx context.Context) error {
	header := http.Header{}

	if p.ts != nil {
		tok, err := p.ts.Token()
		if err != nil {
			return err
		}

		header.Set("Authorization", "Bearer "+tok.AccessToken)
	}

	conn, _, err := websocket.Dial(ctx, p.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	conn.SetReadLimit(maxPushMessageSize)

	p.setConnected(true)

	if err := p.target.OnConnectionResumed(ctx); err != nil {
		p.logger.Error("resuming sync engine after reconnect failed", "error", err)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		p.handleMessage(ctx, data)
	}
}

func (p *PushListener) handleMessage(ctx context.Context, data []byte) {
	var msg pushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		p.logger.Warn("push listener: malformed message", "error", err)
		return
	}

	key := shadow.Key{Thing: msg.Thing, Name: msg.Name}

	var err error
	if msg.Deleted {
		err = p.target.PushLocalDelete(ctx, key, msg.Version)
	} else {
		err = p.target.PushLocalUpdate(ctx, key, msg.Document)
	}

	if err != nil {
		p.logger.Error("push listener: applying cloud delta failed", "key", key, "error", err)
	}
}

func (p *PushListener) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// Connected reports whether the WebSocket link is currently up.
func (p *PushListener) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.connected
}

// nextDelay doubles delay, caps it at reconnectMax, then spreads the result
// uniformly over ±12.5% of that value (a 25%-wide jitter band), so a capped
// delay can land up to reconnectMax/8 above reconnectMax — matching the backoff shape the teacher's own websocket manager uses for
// its drive-activity notification stream.
func nextDelay(delay time.Duration) time.Duration {
	delay *= 2
	if delay > reconnectMax {
		delay = reconnectMax
	}

	jitter := time.Duration(rand.Float64() * float64(delay) * 0.25)

	return delay - delay/8 + jitter
}

// wsURL rewrites an http(s) base URL to its ws(s) equivalent.
func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
