package signalk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"helmbridge/internal/logger"
	"helmbridge/internal/store"

	"github.com/gorilla/websocket"
)

// Timing for the delta stream connection and the REST command leg.
const (
	defaultPutTimeout   = 10 * time.Second
	dialTimeout         = 10 * time.Second
	reconnectBase       = time.Second
	reconnectMax        = 30 * time.Second
	streamPongWait      = 60 * time.Second
	streamPingPeriod    = (streamPongWait * 9) / 10
	streamWriteDeadline = 10 * time.Second
)

// Config locates the remote SignalK server.
type Config struct {
	// URL is the server base, e.g. "http://192.168.1.10:3000".
	URL string
	// Token is an optional bearer token for authenticated writes.
	Token string
	// Paths to subscribe to on the delta stream. Empty subscribes to all.
	Paths []string
	// PutTimeout bounds a single command round trip. Zero means the default.
	PutTimeout time.Duration
}

// Client feeds the data store from the server's delta stream and submits
// write commands over REST. The read side reconnects on its own; commands are
// never retried.
type Client struct {
	cfg   Config
	store *store.Store
	log   *logger.Logger
	http  *http.Client

	// OnStatus, when set, is called on connection transitions: once when the
	// stream comes up and once when it drops. Set before Run.
	OnStatus func(connected bool, detail string)

	// up and backoff track the stream state; only Run's goroutine touches them.
	up      bool
	backoff time.Duration
}

func New(cfg Config, st *store.Store, log *logger.Logger) *Client {
	timeout := cfg.PutTimeout
	if timeout <= 0 {
		timeout = defaultPutTimeout
	}
	return &Client{
		cfg:   cfg,
		store: st,
		log:   log,
		http:  &http.Client{Timeout: timeout},
	}
}

// ---- delta stream (read side) ----

// deltaMessage is the server push format: one or more source-stamped updates,
// each carrying path/value pairs.
type deltaMessage struct {
	Context string        `json:"context,omitempty"`
	Updates []deltaUpdate `json:"updates"`
}

type deltaUpdate struct {
	SourceRef string      `json:"$source,omitempty"`
	Source    *deltaSrc   `json:"source,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Values    []deltaItem `json:"values"`
}

type deltaSrc struct {
	Label string `json:"label"`
}

type deltaItem struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

type subscribeMessage struct {
	Context   string          `json:"context"`
	Subscribe []subscribePath `json:"subscribe"`
}

type subscribePath struct {
	Path string `json:"path"`
}

// Run connects to the delta stream and pumps updates into the store until ctx
// is canceled, reconnecting with capped backoff after stream failures.
func (c *Client) Run(ctx context.Context) {
	for {
		err := c.streamOnce(ctx)
		wasUp := c.up
		if c.up {
			c.up = false
			if c.OnStatus != nil {
				detail := ""
				if err != nil {
					detail = err.Error()
				}
				c.OnStatus(false, detail)
			}
		}
		if ctx.Err() != nil {
			return
		}
		delay := c.nextDelay(wasUp)
		if err != nil && c.log != nil {
			c.log.Warnw("delta_stream_disconnected", "err", err, "retry_in", delay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// nextDelay returns the wait before the next dial attempt. Consecutive
// failures climb an exponential ladder up to the cap; a drop after a healthy
// stream restarts it, so a long-lived connection never inherits a stale 30s
// delay from its initial dial attempts.
func (c *Client) nextDelay(wasUp bool) time.Duration {
	if wasUp || c.backoff <= 0 {
		c.backoff = reconnectBase
		return c.backoff
	}
	c.backoff *= 2
	if c.backoff > reconnectMax {
		c.backoff = reconnectMax
	}
	return c.backoff
}

// streamOnce dials, subscribes, and reads deltas until the connection drops.
func (c *Client) streamOnce(ctx context.Context) error {
	wsURL, err := c.streamURL()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer func() { _ = conn.Close() }()

	if err := c.sendSubscribe(conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if c.log != nil {
		c.log.Infow("delta_stream_connected", "url", wsURL, "paths", len(c.cfg.Paths))
	}
	c.up = true
	if c.OnStatus != nil {
		c.OnStatus(true, wsURL)
	}

	// Close the socket when ctx ends so the blocked read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go c.pingLoop(conn, done)

	for {
		var msg deltaMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		c.applyDelta(msg)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(streamPingPeriod)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendSubscribe(conn *websocket.Conn) error {
	if len(c.cfg.Paths) == 0 {
		return nil // dialed with subscribe=all
	}
	sub := subscribeMessage{Context: "vessels.self"}
	for _, p := range c.cfg.Paths {
		sub.Subscribe = append(sub.Subscribe, subscribePath{Path: p})
	}
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteDeadline))
	return conn.WriteJSON(sub)
}

// applyDelta writes every path/value in the message into the store.
func (c *Client) applyDelta(msg deltaMessage) {
	for _, u := range msg.Updates {
		source := u.SourceRef
		if source == "" && u.Source != nil {
			source = u.Source.Label
		}
		for _, v := range u.Values {
			if v.Path == "" {
				continue
			}
			c.store.Set(v.Path, source, v.Value, u.Timestamp)
		}
	}
}

// streamURL derives the ws endpoint from the configured base URL. With
// explicit paths the stream starts empty and a subscribe message follows.
func (c *Client) streamURL() (string, error) {
	base, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse server url %q: %w", c.cfg.URL, err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", base.Scheme)
	}
	base.Path = "/signalk/v1/stream"
	if len(c.cfg.Paths) > 0 {
		base.RawQuery = "subscribe=none"
	} else {
		base.RawQuery = "subscribe=all"
	}
	return base.String(), nil
}

// ---- command submission (write side) ----

type putBody struct {
	Value any `json:"value"`
}

// Put submits value to a control path on the server. A nil return means the
// server accepted the request; the actual state change, if any, arrives later
// through the delta stream. Never retries.
func (c *Client) Put(ctx context.Context, path string, value any) error {
	if path == "" {
		return &CommandError{Kind: ErrKindRejected, Path: path, Err: errors.New("empty path")}
	}

	target, err := c.putURL(path)
	if err != nil {
		return &CommandError{Kind: ErrKindRejected, Path: path, Err: err}
	}

	body, err := json.Marshal(putBody{Value: value})
	if err != nil {
		return &CommandError{Kind: ErrKindRejected, Path: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return &CommandError{Kind: ErrKindRejected, Path: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &CommandError{Kind: transportKind(err), Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &CommandError{Kind: ErrKindUnauthorized, Path: path, Err: statusError(resp)}
	default:
		return &CommandError{Kind: ErrKindRejected, Path: path, Err: statusError(resp)}
	}
}

// putURL maps a dotted path to the REST resource under vessels/self.
func (c *Client) putURL(path string) (string, error) {
	base, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse server url %q: %w", c.cfg.URL, err)
	}
	switch base.Scheme {
	case "ws":
		base.Scheme = "http"
	case "wss":
		base.Scheme = "https"
	}
	base.Path = "/signalk/v1/api/vessels/self/" + strings.ReplaceAll(path, ".", "/")
	base.RawQuery = ""
	return base.String(), nil
}

// transportKind separates request deadline expiry from other network faults.
func transportKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrKindTimeout
	}
	return ErrKindNetwork
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return fmt.Errorf("server returned %s: %s", resp.Status, msg)
}
