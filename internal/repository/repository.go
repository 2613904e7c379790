package repository

import (
	"context"
	"database/sql"
	"time"

	"helmbridge"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*helmbridge.User, error)
}

// SnapshotRepo persists last-known data points across restarts.
type SnapshotRepo interface {
	SaveAll(ctx context.Context, points []helmbridge.DataPoint) error
	LoadAll(ctx context.Context) ([]helmbridge.DataPoint, error)
}

// EventRepo is the append-only command/connection audit.
type EventRepo interface {
	Append(ctx context.Context, e helmbridge.ControlEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]helmbridge.ControlEvent, error)
}

type Repository struct {
	SnapshotRepo SnapshotRepo
	EventRepo    EventRepo
	Auth         Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		SnapshotRepo: NewSnapshotSQLite(db),
		EventRepo:    NewEventSQLite(db),
		Auth:         NewUserRepository(db),
	}
}
