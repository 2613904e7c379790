package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"helmbridge"
)

type SnapshotSQLite struct {
	db *sql.DB
}

func NewSnapshotSQLite(db *sql.DB) *SnapshotSQLite {
	return &SnapshotSQLite{db: db}
}

var _ SnapshotRepo = (*SnapshotSQLite)(nil)

const (
	upsertPointSQL = `
		INSERT INTO data_points (path, source, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path, source) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at
	`

	selectPointsSQL = `
		SELECT path, source, value, updated_at FROM data_points
	`
)

// SaveAll upserts the given points in one transaction. Values are stored as
// JSON so any primitive or object value round-trips.
func (r *SnapshotSQLite) SaveAll(ctx context.Context, points []helmbridge.DataPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertPointSQL)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range points {
		valueJSON, err := json.Marshal(p.Value)
		if err != nil {
			return err
		}
		ts := p.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		} else {
			ts = ts.UTC()
		}
		if _, err := stmt.ExecContext(ctx, p.Path, p.Source, string(valueJSON), ts); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadAll returns every persisted point. Values come back as JSON-decoded
// primitives (string, float64, bool) or objects.
func (r *SnapshotSQLite) LoadAll(ctx context.Context) ([]helmbridge.DataPoint, error) {
	rows, err := r.db.QueryContext(ctx, selectPointsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]helmbridge.DataPoint, 0, 64)
	for rows.Next() {
		var p helmbridge.DataPoint
		var valueJSON sql.NullString
		if err := rows.Scan(&p.Path, &p.Source, &valueJSON, &p.Timestamp); err != nil {
			return nil, err
		}
		p.Timestamp = p.Timestamp.UTC()
		if valueJSON.Valid && valueJSON.String != "" {
			var v any
			if err := json.Unmarshal([]byte(valueJSON.String), &v); err == nil {
				p.Value = v
			} else {
				p.Value = valueJSON.String // keep raw if malformed
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
