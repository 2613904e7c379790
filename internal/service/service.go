package service

import (
	"context"
	"time"

	"helmbridge"
	"helmbridge/internal/logger"
	"helmbridge/internal/repository"
	"helmbridge/internal/store"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Controls issues write commands to the boat's control paths and keeps the
// displayed state honest while confirmations are in flight.
type Controls interface {
	Send(ctx context.Context, p SendParams) (ControlResult, error)
	DisplayValue(path string) (any, bool)
	OverrideValue(path string) (any, bool)
	RecordConnection(connected bool, detail string)
	Close()
}

// Monitoring exposes read-only live data, with optional unit conversion.
type Monitoring interface {
	List(ctx context.Context) []helmbridge.DataPoint
	Get(ctx context.Context, path, unitSystem string) (helmbridge.DisplayValue, error)
}

// EventLog exposes the append-only command/connection audit with filtering.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]helmbridge.ControlEvent, error)
}

// Snapshotter periodically persists the live data so a restart warm-starts
// with the last known values. Stop via context cancellation in main().
type Snapshotter interface {
	Run(ctx context.Context, interval time.Duration)
	Restore(ctx context.Context) error
}

// CommandSender submits a write command to the server. A nil return means the
// transport accepted the request, not that the device changed state.
type CommandSender interface {
	Put(ctx context.Context, path string, value any) error
}

// SendParams describes one control command.
type SendParams struct {
	Path   string
	Value  any
	Verify bool          // wait for the value to come back on the data feed
	Window time.Duration // verification window; zero uses the configured default
}

// LogFilter supports audit filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "COMMAND", "VERIFIED", "UNCONFIRMED", "SUPERSEDED", "FAILED", "CONNECTION"
}

// Config carries the tunables that differ per installation: verification and
// grace windows, data staleness, display units, and token signing.
type Config struct {
	VerifyWindow time.Duration
	GraceWindow  time.Duration
	StaleTTL     time.Duration
	Units        string // default unit system for display conversion
	SigningKey   string
	TokenTTL     time.Duration
}

//
// Root Service aggregates all sub-services.
//

type Service struct {
	Controls
	Monitoring
	EventLog
	Snapshotter
	Authorization
}

// NewService wires the repository layer, data store and command transport into
// concrete services. The data feed (SignalK client or demo source) is run by
// main, since it is chosen per deployment.
func NewService(repos *repository.Repository, st *store.Store, sender CommandSender, cfg Config, log *logger.Logger) *Service {
	ctrl := NewController(st, repos.EventRepo, sender, cfg, log)
	return &Service{
		Controls:      ctrl,
		Monitoring:    NewMonitoringService(st, ctrl, cfg),
		EventLog:      NewEventLogService(repos.EventRepo),
		Snapshotter:   NewSnapshotService(st, repos.SnapshotRepo, log),
		Authorization: NewAuthService(repos.Auth, cfg),
	}
}
