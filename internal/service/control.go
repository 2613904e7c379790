package service

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"helmbridge"
	"helmbridge/internal/logger"
	"helmbridge/internal/repository"
	"helmbridge/internal/store"

	"github.com/google/uuid"
)

// Defaults for installations that don't tune the windows in config.
const (
	DefaultVerifyWindow = 5 * time.Second
	DefaultGraceWindow  = 3 * time.Second
)

// Outcome of a command cycle. A timed-out verification is not a failure: the
// command was accepted, its effect just never showed up on the data feed.
type Outcome string

const (
	OutcomeSent        Outcome = "sent"             // accepted, verification not requested
	OutcomeVerified    Outcome = "verified"         // expected value observed on the feed
	OutcomeUnconfirmed Outcome = "sent_unconfirmed" // accepted, no confirmation within the window
	OutcomeSuperseded  Outcome = "superseded"       // a newer command on the same path took over
)

// Event types written to the audit log.
const (
	EventCommand     = "COMMAND"
	EventVerified    = "VERIFIED"
	EventUnconfirmed = "UNCONFIRMED"
	EventSuperseded  = "SUPERSEDED"
	EventFailed      = "FAILED"
	EventConnection  = "CONNECTION"
)

var (
	errEmptyPath        = errors.New("command path must not be empty")
	errControllerClosed = errors.New("controls are shut down")
)

// ControlResult reports how a command cycle ended.
type ControlResult struct {
	Path    string  `json:"path"`
	Value   any     `json:"value"`
	Outcome Outcome `json:"outcome"`
}

// Controller runs the command cycle per control path:
//
//	Idle -> Sending -> (Verified | TimedOut) -> Idle
//
// On send it records a short-lived optimistic override so the display flips
// immediately instead of flickering back to stale pre-command state while the
// real update is in flight. At most one verification is pending per path; a
// newer command supersedes the older one. Commands are never retried
// automatically: silently re-sending an actuator command is unsafe.
type Controller struct {
	store        *store.Store
	events       repository.EventRepo
	sender       CommandSender
	verifyWindow time.Duration
	graceWindow  time.Duration
	log          *logger.Logger

	mu        sync.Mutex
	closed    bool
	gen       int
	inflight  map[string]*cycle
	overrides map[string]*override
}

// cycle is one in-flight command awaiting verification.
type cycle struct {
	gen    int
	cancel context.CancelFunc
}

// override is the optimistic display value for a path during the grace
// window. The timer clears it deterministically at expiry.
type override struct {
	gen    int
	value  any
	expiry time.Time
	timer  *time.Timer
}

func NewController(st *store.Store, events repository.EventRepo, sender CommandSender, cfg Config, log *logger.Logger) *Controller {
	verify := cfg.VerifyWindow
	if verify <= 0 {
		verify = DefaultVerifyWindow
	}
	grace := cfg.GraceWindow
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Controller{
		store:        st,
		events:       events,
		sender:       sender,
		verifyWindow: verify,
		graceWindow:  grace,
		log:          log,
		inflight:     make(map[string]*cycle),
		overrides:    make(map[string]*override),
	}
}

// Send submits one command. With p.Verify it blocks until the expected value
// is observed on the path, the window elapses, or a newer command on the same
// path supersedes this one. Submission errors (network, unauthorized,
// rejected, timeout) are returned as-is for user-visible reporting.
func (c *Controller) Send(ctx context.Context, p SendParams) (ControlResult, error) {
	if p.Path == "" {
		return ControlResult{}, errEmptyPath
	}
	window := p.Window
	if window <= 0 {
		window = c.verifyWindow
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ControlResult{}, errControllerClosed
	}
	c.gen++
	gen := c.gen
	// A new command for the path cancels the pending verification, so two
	// cycles never compete over one control.
	if prev, ok := c.inflight[p.Path]; ok {
		prev.cancel()
	}
	vctx, cancel := context.WithCancel(ctx)
	c.inflight[p.Path] = &cycle{gen: gen, cancel: cancel}
	c.mu.Unlock()

	// Subscribe before sending so a confirmation that races the HTTP response
	// is not missed.
	updates, unsub := c.store.Subscribe(p.Path)

	finish := func() {
		unsub()
		cancel()
		c.mu.Lock()
		if cur, ok := c.inflight[p.Path]; ok && cur.gen == gen {
			delete(c.inflight, p.Path)
		}
		c.mu.Unlock()
	}

	if err := c.sender.Put(ctx, p.Path, p.Value); err != nil {
		finish()
		c.append(EventFailed, "command submission failed on "+p.Path, map[string]any{
			"path": p.Path, "value": p.Value, "error": err.Error(),
		})
		return ControlResult{Path: p.Path, Value: p.Value}, err
	}

	c.append(EventCommand, "command sent on "+p.Path, map[string]any{
		"path": p.Path, "value": p.Value, "verify": p.Verify,
	})

	// Optimistic flip: the display shows the requested value right away;
	// contradicting pushes are suppressed until the grace window closes.
	c.setOverride(p.Path, p.Value, gen)

	if !p.Verify {
		finish()
		return ControlResult{Path: p.Path, Value: p.Value, Outcome: OutcomeSent}, nil
	}

	defer finish()
	deadline := time.NewTimer(window)
	defer deadline.Stop()

	for {
		select {
		case <-vctx.Done():
			if ctx.Err() != nil {
				// The caller gave up; nothing newer owns the override.
				c.clearOverride(p.Path, gen)
				return ControlResult{Path: p.Path, Value: p.Value}, ctx.Err()
			}
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				// Controller teardown, not a competing command.
				return ControlResult{Path: p.Path, Value: p.Value}, errControllerClosed
			}
			// Superseded: the newer cycle owns the override now. This cycle
			// reports neither verified nor timed out.
			c.append(EventSuperseded, "command superseded on "+p.Path, map[string]any{
				"path": p.Path, "value": p.Value,
			})
			return ControlResult{Path: p.Path, Value: p.Value, Outcome: OutcomeSuperseded}, nil

		case pt, ok := <-updates:
			if !ok {
				// Store torn down underneath us.
				c.clearOverride(p.Path, gen)
				return ControlResult{Path: p.Path, Value: p.Value, Outcome: OutcomeUnconfirmed}, nil
			}
			if valuesEqual(pt.Value, p.Value) {
				// First match wins; stop listening.
				c.clearOverride(p.Path, gen)
				c.append(EventVerified, "command verified on "+p.Path, map[string]any{
					"path": p.Path, "value": p.Value, "source": pt.Source,
				})
				return ControlResult{Path: p.Path, Value: p.Value, Outcome: OutcomeVerified}, nil
			}
			// Disagreeing push, likely retained pre-command state. The
			// override keeps it off the display; keep waiting.

		case <-deadline.C:
			c.clearOverride(p.Path, gen)
			c.append(EventUnconfirmed, "command sent but unconfirmed on "+p.Path, map[string]any{
				"path": p.Path, "value": p.Value, "window": window.String(),
			})
			return ControlResult{Path: p.Path, Value: p.Value, Outcome: OutcomeUnconfirmed}, nil
		}
	}
}

// OverrideValue reports the live optimistic value for path, if any.
func (c *Controller) OverrideValue(path string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ov, ok := c.overrides[path]
	if !ok || time.Now().After(ov.expiry) {
		return nil, false
	}
	return ov.value, true
}

// DisplayValue returns what a control should show for path: the optimistic
// override during its grace window, the cache value otherwise.
func (c *Controller) DisplayValue(path string) (any, bool) {
	if v, ok := c.OverrideValue(path); ok {
		return v, true
	}
	pt, ok := c.store.Get(path)
	if !ok {
		return nil, false
	}
	return pt.Value, true
}

// RecordConnection audits an upstream data-feed transition.
func (c *Controller) RecordConnection(connected bool, detail string) {
	state := "lost"
	if connected {
		state = "established"
	}
	c.append(EventConnection, "upstream connection "+state, map[string]any{
		"connected": connected, "detail": detail,
	})
}

// Close cancels all pending verifications and disposes the override timers.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, cy := range c.inflight {
		cy.cancel()
	}
	c.inflight = make(map[string]*cycle)
	for _, ov := range c.overrides {
		ov.timer.Stop()
	}
	c.overrides = make(map[string]*override)
	c.mu.Unlock()
}

func (c *Controller) setOverride(path string, value any, gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	// A superseded cycle's Put can return after the newer command already
	// flipped the display; its stale value must not come back.
	if cur, ok := c.inflight[path]; !ok || cur.gen != gen {
		return
	}
	if prev, ok := c.overrides[path]; ok {
		prev.timer.Stop()
	}
	ov := &override{gen: gen, value: value, expiry: time.Now().Add(c.graceWindow)}
	ov.timer = time.AfterFunc(c.graceWindow, func() {
		c.clearOverride(path, gen)
	})
	c.overrides[path] = ov
}

// clearOverride removes the override only if it still belongs to cycle gen; a
// superseding command's override survives its predecessor's cleanup.
func (c *Controller) clearOverride(path string, gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ov, ok := c.overrides[path]
	if !ok || ov.gen != gen {
		return
	}
	ov.timer.Stop()
	delete(c.overrides, path)
}

// append writes an audit event. Uses a background context so audits survive a
// cancelled command context; failures are logged and otherwise ignored.
func (c *Controller) append(typ, desc string, meta map[string]any) {
	if c.events == nil {
		return
	}
	err := c.events.Append(context.Background(), helmbridge.ControlEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	})
	if err != nil && c.log != nil {
		c.log.Warnw("audit_append_failed", "type", typ, "err", err)
	}
}

// valuesEqual compares a feed value against a commanded value with the
// type-appropriate equality: case-insensitive for strings (mode names come
// back in varying case), numeric across int/float (JSON decodes numbers as
// float64), exact for booleans.
func valuesEqual(a, b any) bool {
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && strings.EqualFold(as, bs)
	}
	if af, ok := toFloat(a); ok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
