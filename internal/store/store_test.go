package store

import (
	"testing"
	"time"

	"helmbridge"

	"github.com/google/go-cmp/cmp"
)

func TestStore_SetAndGet_LatestAcrossSources(t *testing.T) {
	s := New()
	t0 := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)

	s.Set("navigation.speedThroughWater", "sensor.gps", 2.5, t0)
	s.Set("navigation.speedThroughWater", "sensor.paddle", 2.7, t0.Add(time.Second))

	got, ok := s.Get("navigation.speedThroughWater")
	if !ok {
		t.Fatalf("expected value for path")
	}
	want := helmbridge.DataPoint{
		Path:      "navigation.speedThroughWater",
		Source:    "sensor.paddle",
		Value:     2.7,
		Timestamp: t0.Add(time.Second),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("latest mismatch (-want +got):\n%s", diff)
	}

	gps, ok := s.GetFrom("navigation.speedThroughWater", "sensor.gps")
	if !ok || gps.Value != 2.5 {
		t.Fatalf("expected per-source value 2.5, got %#v ok=%v", gps, ok)
	}
}

func TestStore_Get_UnknownPath(t *testing.T) {
	s := New()
	if _, ok := s.Get("environment.depth.belowTransducer"); ok {
		t.Fatalf("expected no value for unknown path")
	}
}

func TestStore_EmptyPathIgnored(t *testing.T) {
	s := New()
	s.Set("", "src", 1.0, time.Time{})
	if len(s.Snapshot()) != 0 {
		t.Fatalf("empty path must not be stored")
	}
}

func TestStore_Subscribe_ReceivesOnlyItsPath(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe("steering.autopilot.state")
	defer cancel()

	s.Set("navigation.headingMagnetic", "imu", 1.57, time.Time{})
	s.Set("steering.autopilot.state", "ap", "auto", time.Time{})

	select {
	case p := <-ch:
		if p.Path != "steering.autopilot.state" || p.Value != "auto" {
			t.Fatalf("unexpected point %#v", p)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for subscribed path")
	}

	select {
	case p := <-ch:
		t.Fatalf("received update for unsubscribed path: %#v", p)
	default:
	}
}

func TestStore_Subscribe_CancelStopsDelivery(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe("electrical.batteries.house.voltage")
	cancel()
	cancel() // idempotent

	s.Set("electrical.batteries.house.voltage", "bms", 12.6, time.Time{})

	if _, open := <-ch; open {
		t.Fatalf("expected channel closed after cancel")
	}
}

func TestStore_SlowSubscriberDoesNotBlockWriter(t *testing.T) {
	s := New()
	_, cancel := s.Subscribe("navigation.position")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subBuffer*4; i++ {
			s.Set("navigation.position", "gps", i, time.Time{})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("writer blocked on a slow subscriber")
	}
}

func TestStore_Fresh(t *testing.T) {
	s := New()
	s.Set("environment.wind.speedApparent", "wind", 7.1, time.Now().UTC().Add(-10*time.Second))

	if s.Fresh("environment.wind.speedApparent", 5*time.Second) {
		t.Fatalf("10s old value must be stale under 5s ttl")
	}
	if !s.Fresh("environment.wind.speedApparent", time.Minute) {
		t.Fatalf("10s old value must be fresh under 1m ttl")
	}
	if !s.Fresh("environment.wind.speedApparent", 0) {
		t.Fatalf("ttl<=0 means any value is fresh")
	}
	if s.Fresh("no.such.path", time.Minute) {
		t.Fatalf("unknown path is never fresh")
	}
}

func TestStore_Close_ClosesSubscribersAndIgnoresWrites(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe("steering.autopilot.state")

	s.Close()

	if _, open := <-ch; open {
		t.Fatalf("expected subscriber channel closed by Close")
	}
	cancel() // must not panic after Close

	s.Set("steering.autopilot.state", "ap", "auto", time.Time{})
	if len(s.Snapshot()) != 0 {
		t.Fatalf("writes after Close must be ignored")
	}
}
