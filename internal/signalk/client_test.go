package signalk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"helmbridge/internal/store"

	"github.com/gorilla/websocket"
)

// ---- Put ----

func TestPut_AcceptedSendsValueBody(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotBody putBody

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Token: "tok123"}, store.New(), nil)
	if err := c.Put(context.Background(), "steering.autopilot.state", "auto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("expected PUT, got %s", gotMethod)
	}
	if want := "/signalk/v1/api/vessels/self/steering/autopilot/state"; gotPath != want {
		t.Fatalf("path %q, want %q", gotPath, want)
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("auth header %q", gotAuth)
	}
	if gotBody.Value != "auto" {
		t.Fatalf("body value %#v, want auto", gotBody.Value)
	}
}

func TestPut_StatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		kind   ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, ErrKindUnauthorized},
		{"forbidden", http.StatusForbidden, ErrKindUnauthorized},
		{"bad_request", http.StatusBadRequest, ErrKindRejected},
		{"method_not_allowed", http.StatusMethodNotAllowed, ErrKindRejected},
		{"server_error", http.StatusInternalServerError, ErrKindRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer srv.Close()

			c := New(Config{URL: srv.URL}, store.New(), nil)
			err := c.Put(context.Background(), "steering.autopilot.state", "auto")
			if err == nil {
				t.Fatalf("expected error for status %d", tc.status)
			}
			var ce *CommandError
			if !errors.As(err, &ce) {
				t.Fatalf("expected CommandError, got %T", err)
			}
			if ce.Kind != tc.kind {
				t.Fatalf("kind %s, want %s", ce.Kind, tc.kind)
			}
		})
	}
}

func TestPut_NetworkErrorKind(t *testing.T) {
	// Port from a closed listener: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead := srv.URL
	srv.Close()

	c := New(Config{URL: dead}, store.New(), nil)
	err := c.Put(context.Background(), "steering.autopilot.state", "auto")
	if KindOf(err) != ErrKindNetwork {
		t.Fatalf("expected network kind, got %v (%v)", KindOf(err), err)
	}
}

func TestPut_TimeoutKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, PutTimeout: 20 * time.Millisecond}, store.New(), nil)
	err := c.Put(context.Background(), "steering.autopilot.state", "auto")
	if KindOf(err) != ErrKindTimeout {
		t.Fatalf("expected timeout kind, got %v (%v)", KindOf(err), err)
	}
}

func TestPut_EmptyPathRejected(t *testing.T) {
	c := New(Config{URL: "http://127.0.0.1:1"}, store.New(), nil)
	err := c.Put(context.Background(), "", true)
	if KindOf(err) != ErrKindRejected {
		t.Fatalf("expected rejected kind, got %v", KindOf(err))
	}
}

// ---- delta stream ----

func TestStream_DeltasLandInStore(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	subscribed := make(chan subscribeMessage, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub

		delta := deltaMessage{Updates: []deltaUpdate{{
			SourceRef: "ap.n2k",
			Timestamp: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC),
			Values: []deltaItem{
				{Path: "steering.autopilot.state", Value: "auto"},
				{Path: "navigation.headingMagnetic", Value: 1.25},
			},
		}}}
		_ = conn.WriteJSON(delta)

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	st := store.New()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(Config{URL: wsURL, Paths: []string{"steering.autopilot.state", "navigation.headingMagnetic"}}, st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case sub := <-subscribed:
		if sub.Context != "vessels.self" || len(sub.Subscribe) != 2 {
			t.Fatalf("unexpected subscribe message %#v", sub)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("client never subscribed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if p, ok := st.Get("steering.autopilot.state"); ok {
			if p.Value != "auto" || p.Source != "ap.n2k" {
				t.Fatalf("unexpected point %#v", p)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("delta never reached the store")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if p, ok := st.Get("navigation.headingMagnetic"); !ok || p.Value != 1.25 {
		t.Fatalf("second value missing or wrong: %#v", p)
	}
}

func TestStreamURL_SchemeAndSubscribeQuery(t *testing.T) {
	c := New(Config{URL: "https://boat.local:3443", Paths: []string{"a.b"}}, store.New(), nil)
	u, err := c.streamURL()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "wss://boat.local:3443/signalk/v1/stream?subscribe=none"; u != want {
		t.Fatalf("got %q, want %q", u, want)
	}

	c = New(Config{URL: "http://boat.local:3000"}, store.New(), nil)
	u, err = c.streamURL()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "ws://boat.local:3000/signalk/v1/stream?subscribe=all"; u != want {
		t.Fatalf("got %q, want %q", u, want)
	}
}

func TestApplyDelta_SourceLabelFallbackAndEmptyPath(t *testing.T) {
	st := store.New()
	c := New(Config{URL: "http://x"}, st, nil)

	c.applyDelta(deltaMessage{Updates: []deltaUpdate{{
		Source:    &deltaSrc{Label: "gps0"},
		Timestamp: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC),
		Values: []deltaItem{
			{Path: "navigation.speedOverGround", Value: 3.1},
			{Path: "", Value: "dropped"},
		},
	}}})

	p, ok := st.Get("navigation.speedOverGround")
	if !ok || p.Source != "gps0" {
		t.Fatalf("expected source label fallback, got %#v ok=%v", p, ok)
	}
	if len(st.Snapshot()) != 1 {
		t.Fatalf("empty-path value must be dropped")
	}
}

func TestNextDelay_LadderAndResetAfterHealthyStream(t *testing.T) {
	c := New(Config{URL: "http://x"}, store.New(), nil)

	// Consecutive dial failures climb the ladder to the cap.
	want := []time.Duration{
		reconnectBase, 2 * reconnectBase, 4 * reconnectBase, 8 * reconnectBase, 16 * reconnectBase,
		reconnectMax, reconnectMax,
	}
	for i, w := range want {
		if got := c.nextDelay(false); got != w {
			t.Fatalf("attempt %d: delay=%v, want %v", i+1, got, w)
		}
	}

	// A drop after a healthy stream restarts the ladder instead of
	// inheriting the inflated delay.
	if got := c.nextDelay(true); got != reconnectBase {
		t.Fatalf("post-connection delay=%v, want %v", got, reconnectBase)
	}
	if got := c.nextDelay(false); got != 2*reconnectBase {
		t.Fatalf("second failure after reset: delay=%v, want %v", got, 2*reconnectBase)
	}
}
