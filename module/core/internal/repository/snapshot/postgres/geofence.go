package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/snapshot"
)

var _ snapshot.Repository = (*GeofenceRepo)(nil)

const srid = 4326

const migration = `
CREATE TABLE IF NOT EXISTS geofences (
	name          TEXT PRIMARY KEY,
	center        BYTEA NOT NULL,
	radius_meters DOUBLE PRECISION NOT NULL,
	saved_at      TIMESTAMPTZ NOT NULL
)`

// GeofenceRepo stores the registry in a postgres table, one row per fence,
// with centers encoded as EWKB points.
type GeofenceRepo struct {
	db *sql.DB
}

func NewGeofenceRepo(db *sql.DB) *GeofenceRepo {
	return &GeofenceRepo{db: db}
}

func (r *GeofenceRepo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "postgres: migrate")
}

func (r *GeofenceRepo) Load(ctx context.Context) (domain.RegistrySnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, center, radius_meters, saved_at FROM geofences ORDER BY name`,
	)
	if err != nil {
		return domain.RegistrySnapshot{}, eris.Wrap(err, "postgres: load geofences")
	}
	defer func() { _ = rows.Close() }()

	var snap domain.RegistrySnapshot
	for rows.Next() {
		var (
			gf      domain.Geofence
			center  []byte
			savedAt time.Time
		)
		if err := rows.Scan(&gf.Name, &center, &gf.Radius, &savedAt); err != nil {
			return domain.RegistrySnapshot{}, eris.Wrap(err, "postgres: scan geofence")
		}
		if gf.Center, err = DecodeCenter(center); err != nil {
			return domain.RegistrySnapshot{}, eris.Wrapf(err, "postgres: geofence %q", gf.Name)
		}
		if savedAt.After(snap.TakenAt) {
			snap.TakenAt = savedAt
		}
		snap.Geofences = append(snap.Geofences, gf)
	}
	return snap, eris.Wrap(rows.Err(), "postgres: iterate geofences")
}

// Save replaces the table contents with snap in one transaction.
func (r *GeofenceRepo) Save(ctx context.Context, snap domain.RegistrySnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM geofences`); err != nil {
		return eris.Wrap(err, "postgres: clear geofences")
	}
	for _, gf := range snap.Geofences {
		center, err := EncodeCenter(gf.Center)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO geofences (name, center, radius_meters, saved_at) VALUES ($1, $2, $3, $4)`,
			gf.Name, center, gf.Radius, snap.TakenAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert geofence %q", gf.Name)
		}
	}
	return eris.Wrap(tx.Commit(), "postgres: commit")
}

func (r *GeofenceRepo) Close() error {
	return r.db.Close()
}

// EncodeCenter encodes c as an EWKB point (x = longitude, y = latitude).
func EncodeCenter(c domain.Coordinate) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{c.Longitude, c.Latitude}).SetSRID(srid)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode center")
	}
	return data, nil
}

func DecodeCenter(data []byte) (domain.Coordinate, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return domain.Coordinate{}, eris.Wrap(err, "postgres: decode center")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return domain.Coordinate{}, eris.Errorf("postgres: center is %T, want point", g)
	}
	return domain.Coordinate{Latitude: p.Y(), Longitude: p.X()}, nil
}
