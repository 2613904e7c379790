package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"helmbridge"
	"helmbridge/internal/store"
	"helmbridge/internal/units"
)

var ErrPathNotFound = errors.New("no value recorded for path")

const defaultStaleTTL = 30 * time.Second

// overrideSource is the slice of Controls that Monitoring needs: control
// paths with a live optimistic override display the override, not the cache.
type overrideSource interface {
	OverrideValue(path string) (any, bool)
}

type MonitoringService struct {
	store     *store.Store
	overrides overrideSource
	staleTTL  time.Duration
	units     string
}

func NewMonitoringService(st *store.Store, overrides overrideSource, cfg Config) *MonitoringService {
	ttl := cfg.StaleTTL
	if ttl <= 0 {
		ttl = defaultStaleTTL
	}
	u := cfg.Units
	if u == "" {
		u = units.SystemNautical
	}
	return &MonitoringService{store: st, overrides: overrides, staleTTL: ttl, units: u}
}

// List returns every known (path, source) point, ordered for stable output.
// Paths under a live optimistic override show the override, same as Get.
func (s *MonitoringService) List(ctx context.Context) []helmbridge.DataPoint {
	points := s.store.Snapshot()
	if s.overrides != nil {
		for i := range points {
			if v, ok := s.overrides.OverrideValue(points[i].Path); ok {
				points[i].Value = v
			}
		}
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Path != points[j].Path {
			return points[i].Path < points[j].Path
		}
		return points[i].Source < points[j].Source
	})
	return points
}

// Get returns the display-ready value for one path. unitSystem overrides the
// configured default when non-empty; numeric values in known categories get a
// converted rendering alongside the raw value.
func (s *MonitoringService) Get(ctx context.Context, path, unitSystem string) (helmbridge.DisplayValue, error) {
	pt, ok := s.store.Get(path)
	if !ok {
		return helmbridge.DisplayValue{}, ErrPathNotFound
	}

	dv := helmbridge.DisplayValue{
		Path:      pt.Path,
		Source:    pt.Source,
		Value:     pt.Value,
		Timestamp: pt.Timestamp,
		Stale:     !s.store.Fresh(path, s.staleTTL),
	}

	if s.overrides != nil {
		if v, ok := s.overrides.OverrideValue(path); ok {
			dv.Value = v
		}
	}

	if raw, ok := toFloat(dv.Value); ok {
		system := unitSystem
		if system == "" {
			system = s.units
		}
		if converted, unit, ok := units.Convert(path, raw, system); ok {
			dv.Display = &converted
			dv.Unit = unit
		}
	}
	return dv, nil
}
