package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"helmbridge"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 1 * time.Second
	maxInterval      = 10 * time.Second
	maxIntervalMilli = 10_000 // 10s in ms
	maxSubscribed    = 64     // per connection
	mergedBuffer     = 64
)

// Envelope used for WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Upgrader for HTTP -> WebSocket. Consider tightening CheckOrigin in production.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origins for production
}

// wsConnect streams live data to a dashboard. ?paths=a.b,c.d selects paths for
// immediate change pushes; a full snapshot of the selection (or of everything,
// when no paths are given) goes out every ?interval as well.
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)
	paths := h.parsePaths(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	// Configure read limits and pong handler to extend read deadline.
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine to handle control frames and detect disconnects.
	done := make(chan struct{})
	go h.startReader(conn, done)

	// Per-path store subscriptions fan in to one channel; all released on exit.
	merged := make(chan helmbridge.DataPoint, mergedBuffer)
	for _, p := range paths {
		updates, unsub := h.store.Subscribe(p)
		defer unsub()
		go func() {
			for pt := range updates {
				select {
				case merged <- pt:
				default: // connection is behind; the periodic snapshot catches it up
				}
			}
		}()
	}

	// Prepare periodic writers: snapshots and pings.
	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	// Send initial snapshot immediately.
	if err := h.sendSnapshot(c, conn, paths); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	// Writer/select loop.
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case pt := <-merged:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(wsEnvelope{Type: "data", Data: h.displayPoint(pt)}); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		case <-ticker.C:
			if err := h.sendSnapshot(c, conn, paths); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// Helper: parseInterval reads ?interval=2s or ?interval_ms=2000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	interval := defaultInterval

	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}

	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}

	return interval
}

// Helper: parsePaths reads ?paths=a.b,c.d with a per-connection cap.
func (h *Handler) parsePaths(c *gin.Context) []string {
	raw := c.Query("paths")
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
		if len(out) == maxSubscribed {
			break
		}
	}
	return out
}

// Helper: startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

// Helper: sendSnapshot writes the current values for the selected paths, or
// everything when no selection was given.
func (h *Handler) sendSnapshot(c *gin.Context, conn *websocket.Conn, paths []string) error {
	var points []helmbridge.DataPoint
	if len(paths) == 0 {
		points = h.services.Monitoring.List(c.Request.Context())
	} else {
		for _, p := range paths {
			if pt, ok := h.store.Get(p); ok {
				points = append(points, h.displayPoint(pt))
			}
		}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: "snapshot", Data: points})
}

// displayPoint substitutes a live optimistic override so the ws stream shows
// the same value as the REST surfaces during a command's grace window.
func (h *Handler) displayPoint(pt helmbridge.DataPoint) helmbridge.DataPoint {
	if h.services != nil && h.services.Controls != nil {
		if v, ok := h.services.Controls.OverrideValue(pt.Path); ok {
			pt.Value = v
		}
	}
	return pt
}
