package service

import (
	"context"
	"time"

	"helmbridge/internal/logger"
	"helmbridge/internal/repository"
	"helmbridge/internal/store"
)

// SnapshotService persists the live data points at a fixed cadence so the
// dashboard has last-known values immediately after a restart.
type SnapshotService struct {
	store *store.Store
	repo  repository.SnapshotRepo
	log   *logger.Logger
}

func NewSnapshotService(st *store.Store, repo repository.SnapshotRepo, log *logger.Logger) *SnapshotService {
	return &SnapshotService{store: st, repo: repo, log: log}
}

// Run writes a snapshot every interval until ctx is canceled, plus one final
// snapshot on the way out.
func (s *SnapshotService) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.persist(context.Background())
			return
		case <-t.C:
			s.persist(ctx)
		}
	}
}

// Restore loads persisted points into the store. Called once at startup,
// before the live feed begins.
func (s *SnapshotService) Restore(ctx context.Context) error {
	points, err := s.repo.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, p := range points {
		s.store.Set(p.Path, p.Source, p.Value, p.Timestamp)
	}
	if s.log != nil && len(points) > 0 {
		s.log.Infow("snapshot_restored", "points", len(points))
	}
	return nil
}

func (s *SnapshotService) persist(ctx context.Context) {
	points := s.store.Snapshot()
	if len(points) == 0 {
		return
	}
	if err := s.repo.SaveAll(ctx, points); err != nil && s.log != nil {
		s.log.Warnw("snapshot_persist_failed", "err", err)
	}
}
