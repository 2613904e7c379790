package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"helmbridge"
	"helmbridge/internal/store"
)

type fakeSnapshotRepo struct {
	mu     sync.Mutex
	saved  [][]helmbridge.DataPoint
	loaded []helmbridge.DataPoint
	err    error
}

func (f *fakeSnapshotRepo) SaveAll(ctx context.Context, points []helmbridge.DataPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := make([]helmbridge.DataPoint, len(points))
	copy(cp, points)
	f.saved = append(f.saved, cp)
	return nil
}

func (f *fakeSnapshotRepo) LoadAll(ctx context.Context) ([]helmbridge.DataPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.loaded, nil
}

func (f *fakeSnapshotRepo) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func TestSnapshot_Restore_WarmStartsStore(t *testing.T) {
	ts := time.Date(2025, 8, 1, 6, 0, 0, 0, time.UTC)
	repo := &fakeSnapshotRepo{loaded: []helmbridge.DataPoint{
		{Path: "steering.autopilot.state", Source: "ap", Value: "standby", Timestamp: ts},
		{Path: "navigation.speedThroughWater", Source: "gps", Value: 2.5, Timestamp: ts},
	}}
	st := store.New()
	svc := NewSnapshotService(st, repo, nil)

	if err := svc.Restore(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, ok := st.Get("steering.autopilot.state")
	if !ok || p.Value != "standby" || !p.Timestamp.Equal(ts) {
		t.Fatalf("restored point wrong: %#v ok=%v", p, ok)
	}
}

func TestSnapshot_Run_PersistsPeriodicallyAndOnShutdown(t *testing.T) {
	repo := &fakeSnapshotRepo{}
	st := store.New()
	st.Set("navigation.headingMagnetic", "imu", 1.2, time.Time{})
	svc := NewSnapshotService(st, repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, 20*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for repo.saveCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected periodic saves, got %d", repo.saveCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
	before := repo.saveCount()
	cancel()
	<-done
	if repo.saveCount() < before+1 {
		t.Fatalf("expected a final save on shutdown, got %d then %d", before, repo.saveCount())
	}
}

func TestSnapshot_Run_EmptyStoreWritesNothing(t *testing.T) {
	repo := &fakeSnapshotRepo{}
	svc := NewSnapshotService(store.New(), repo, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	svc.Run(ctx, 20*time.Millisecond)

	if repo.saveCount() != 0 {
		t.Fatalf("no points means no snapshot writes, got %d", repo.saveCount())
	}
}
