package cloudapi

import (
	"context"
	"log/slog"
	"testing"

	"github.com/tonimelisma/shadowsync/internal/shadow"
)

type recordingPushTarget struct {
	updates     []shadow.Key
	deletes     []shadow.Key
	interrupted int
	resumed     int
}

func (r *recordingPushTarget) PushLocalUpdate(_ context.Context, key shadow.Key, _ []byte) error {
	r.updates = append(r.updates, key)
	return nil
}

func (r *recordingPushTarget) PushLocalDelete(_ context.Context, key shadow.Key, _ uint64) error {
	r.deletes = append(r.deletes, key)
	return nil
}

func (r *recordingPushTarget) OnConnectionInterrupted() { r.interrupted++ }

func (r *recordingPushTarget) OnConnectionResumed(context.Context) error {
	r.resumed++
	return nil
}

func TestWsURLRewritesScheme(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://api.example.com": "wss://api.example.com",
		"http://api.example.com":  "ws://api.example.com",
		"wss://already.example":   "wss://already.example",
	}

	for in, want := range cases {
		if got := wsURL(in); got != want {
			t.Errorf("wsURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNextDelayGrowsAndCaps(t *testing.T) {
	t.Parallel()

	delay := reconnectInitial

	for i := 0; i < 20; i++ {
		delay = nextDelay(delay)

		if delay > reconnectMax+reconnectMax/4 {
			t.Fatalf("nextDelay exceeded cap with jitter: %v", delay)
		}

		if delay <= 0 {
			t.Fatalf("nextDelay produced non-positive delay: %v", delay)
		}
	}
}

func TestHandleMessageUpdateDispatchesPushLocalUpdate(t *testing.T) {
	t.Parallel()

	rec := &recordingPushTarget{}
	p := &PushListener{target: rec, logger: slog.New(slog.DiscardHandler)}

	p.handleMessage(context.Background(), []byte(`{"thing":"lamp","document":{"on":true},"version":3}`))

	if len(rec.updates) != 1 || rec.updates[0] != (shadow.Key{Thing: "lamp"}) {
		t.Fatalf("updates = %+v, want one {Thing: lamp}", rec.updates)
	}
}

func TestHandleMessageDeleteDispatchesPushLocalDelete(t *testing.T) {
	t.Parallel()

	rec := &recordingPushTarget{}
	p := &PushListener{target: rec, logger: slog.New(slog.DiscardHandler)}

	p.handleMessage(context.Background(), []byte(`{"thing":"lamp","name":"config","deleted":true,"version":5}`))

	want := shadow.Key{Thing: "lamp", Name: "config"}
	if len(rec.deletes) != 1 || rec.deletes[0] != want {
		t.Fatalf("deletes = %+v, want one %+v", rec.deletes, want)
	}
}

func TestHandleMessageMalformedJSONIsIgnored(t *testing.T) {
	t.Parallel()

	rec := &recordingPushTarget{}
	p := &PushListener{target: rec, logger: slog.New(slog.DiscardHandler)}

	p.handleMessage(context.Background(), []byte(`not json`))

	if len(rec.updates) != 0 || len(rec.deletes) != 0 {
		t.Fatal("malformed message should not dispatch any push")
	}
}

func TestConnectedReflectsSetConnected(t *testing.T) {
	t.Parallel()

	p := &PushListener{logger: slog.New(slog.DiscardHandler)}

	if p.Connected() {
		t.Fatal("Connected() = true before any connection attempt")
	}

	p.setConnected(true)

	if !p.Connected() {
		t.Fatal("Connected() = false after setConnected(true)")
	}
}
