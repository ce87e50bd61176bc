package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/snapshot"
)

var _ snapshot.Repository = (*GeofenceRepo)(nil)

const migration = `
CREATE TABLE IF NOT EXISTS geofences (
	name          TEXT PRIMARY KEY,
	latitude      REAL NOT NULL,
	longitude     REAL NOT NULL,
	radius_meters REAL NOT NULL,
	saved_at      DATETIME NOT NULL
);`

// GeofenceRepo stores the registry in a local SQLite file.
type GeofenceRepo struct {
	db *sql.DB
}

// Open opens the database at path in WAL mode and applies the migration.
func Open(ctx context.Context, path string) (*GeofenceRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, migration); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return &GeofenceRepo{db: db}, nil
}

func (r *GeofenceRepo) Load(ctx context.Context) (domain.RegistrySnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, latitude, longitude, radius_meters, saved_at FROM geofences ORDER BY name`,
	)
	if err != nil {
		return domain.RegistrySnapshot{}, eris.Wrap(err, "sqlite: load geofences")
	}
	defer func() { _ = rows.Close() }()

	var snap domain.RegistrySnapshot
	for rows.Next() {
		var (
			gf      domain.Geofence
			savedAt time.Time
		)
		if err := rows.Scan(&gf.Name, &gf.Center.Latitude, &gf.Center.Longitude, &gf.Radius, &savedAt); err != nil {
			return domain.RegistrySnapshot{}, eris.Wrap(err, "sqlite: scan geofence")
		}
		if savedAt.After(snap.TakenAt) {
			snap.TakenAt = savedAt
		}
		snap.Geofences = append(snap.Geofences, gf)
	}
	return snap, eris.Wrap(rows.Err(), "sqlite: iterate geofences")
}

func (r *GeofenceRepo) Save(ctx context.Context, snap domain.RegistrySnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM geofences`); err != nil {
		return eris.Wrap(err, "sqlite: clear geofences")
	}
	for _, gf := range snap.Geofences {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO geofences (name, latitude, longitude, radius_meters, saved_at) VALUES (?, ?, ?, ?, ?)`,
			gf.Name, gf.Center.Latitude, gf.Center.Longitude, gf.Radius, snap.TakenAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert geofence %q", gf.Name)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (r *GeofenceRepo) Close() error {
	return r.db.Close()
}
