package service

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"helmbridge/internal/store"
)

// ----------- Demo voyage constants -----------
const (
	demoSource       = "demo"
	demoApplyDelay   = 200 * time.Millisecond // command effect shows up on the feed after this
	baseSpeedMS      = 3.1                    // ~6 kn through water
	baseDepthM       = 12.0
	baseWindMS       = 7.0
	baseBatteryVolts = 12.8
	headingPeriodS   = 120.0 // full slow S-curve of the heading
	socDrainPerTick  = 0.0001
)

// Demo paths.
const (
	pathAutopilotState = "steering.autopilot.state"
	pathHeading        = "navigation.headingMagnetic"
	pathSpeed          = "navigation.speedThroughWater"
	pathDepth          = "environment.depth.belowTransducer"
	pathWindSpeed      = "environment.wind.speedApparent"
	pathBatteryVolts   = "electrical.batteries.house.voltage"
	pathBatterySoc     = "electrical.batteries.house.capacity.stateOfCharge"
)

// DemoSource synthesizes a plausible coastal sail into the store when no
// SignalK server is configured, and plays the server's role for commands:
// a Put lands back on the feed after a short delay, so command/verify cycles
// behave like the real thing. Used for dashboard development and tests.
type DemoSource struct {
	store *store.Store
	rnd   *rand.Rand

	mu  sync.Mutex
	soc float64
}

func NewDemoSource(st *store.Store) *DemoSource {
	return &DemoSource{
		store: st,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		soc:   0.92,
	}
}

// Run ticks at the given interval until ctx is canceled.
func (d *DemoSource) Run(ctx context.Context, tick time.Duration) {
	// Controls start in a known state so the dashboard has something to show.
	d.store.Set(pathAutopilotState, demoSource, "standby", time.Time{})

	start := time.Now()
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			d.emit(now, now.Sub(start).Seconds())
		}
	}
}

// emit writes one tick of synthetic instrument readings.
func (d *DemoSource) emit(now time.Time, elapsed float64) {
	d.mu.Lock()
	d.soc = math.Max(d.soc-socDrainPerTick, 0.2)
	soc := d.soc
	d.mu.Unlock()

	heading := math.Pi + math.Pi/6*math.Sin(2*math.Pi*elapsed/headingPeriodS)
	speed := baseSpeedMS + d.jitter(0.3)
	depth := baseDepthM + 2*math.Sin(2*math.Pi*elapsed/300) + d.jitter(0.2)
	wind := baseWindMS + d.jitter(1.0)
	volts := baseBatteryVolts + d.jitter(0.05)

	ts := now.UTC()
	d.store.Set(pathHeading, demoSource, heading, ts)
	d.store.Set(pathSpeed, demoSource, math.Max(speed, 0), ts)
	d.store.Set(pathDepth, demoSource, math.Max(depth, 0.5), ts)
	d.store.Set(pathWindSpeed, demoSource, math.Max(wind, 0), ts)
	d.store.Set(pathBatteryVolts, demoSource, volts, ts)
	d.store.Set(pathBatterySoc, demoSource, soc, ts)
}

func (d *DemoSource) jitter(scale float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return (d.rnd.Float64()*2 - 1) * scale
}

// Put accepts any command and reflects it onto the feed after a short delay,
// the way a real server's acknowledged state change arrives via the stream.
// It never mutates the store synchronously: the data cache only changes
// through the push path.
func (d *DemoSource) Put(ctx context.Context, path string, value any) error {
	if path == "" {
		return errEmptyPath
	}
	time.AfterFunc(demoApplyDelay, func() {
		d.store.Set(path, demoSource, value, time.Time{})
	})
	return nil
}
