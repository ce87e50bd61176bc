package core

import (
	"context"
	"database/sql"
	"io"

	"github.com/rotisserie/eris"

	"github.com/nandanugg/geofence-monitor/config"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/snapshot"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/snapshot/yamlfile"
	"github.com/nandanugg/geofence-monitor/module/core/service"
)

var ErrNoStore = eris.New("core: store.driver memory keeps no snapshot")

// ExportSnapshot writes the stored registry snapshot to w as YAML.
func ExportSnapshot(ctx context.Context, cfg config.StoreConfig, db *sql.DB, w io.Writer) (int, error) {
	repo, err := openStore(ctx, cfg, db)
	if err != nil {
		return 0, err
	}
	defer func() { _ = repo.Close() }()

	snap, err := repo.Load(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "core: export snapshot")
	}
	return len(snap.Geofences), yamlfile.Encode(w, snap)
}

// ImportSnapshot validates the YAML snapshot in r and replaces the stored
// registry with it.
func ImportSnapshot(ctx context.Context, cfg config.StoreConfig, db *sql.DB, r io.Reader) (int, error) {
	snap, err := yamlfile.Decode(r)
	if err != nil {
		return 0, err
	}

	repo, err := openStore(ctx, cfg, db)
	if err != nil {
		return 0, err
	}
	defer func() { _ = repo.Close() }()

	svc := service.NewSnapshotService(repo, service.NewRegistry())
	if err := svc.Import(ctx, snap); err != nil {
		return 0, err
	}
	return len(snap.Geofences), nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, db *sql.DB) (snapshot.Repository, error) {
	repo, err := OpenSnapshotRepo(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, ErrNoStore
	}
	return repo, nil
}
