package service

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/snapshot"
)

const saveTimeout = 5 * time.Second

// SnapshotService moves registry contents to and from a snapshot store.
type SnapshotService struct {
	repo     snapshot.Repository
	registry *Registry
}

func NewSnapshotService(repo snapshot.Repository, reg *Registry) *SnapshotService {
	return &SnapshotService{repo: repo, registry: reg}
}

// Restore loads the stored snapshot into the registry.
func (s *SnapshotService) Restore(ctx context.Context) error {
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return eris.Wrap(err, "snapshot: load")
	}
	if err := s.registry.Restore(snap); err != nil {
		return eris.Wrap(err, "snapshot: restore")
	}
	zap.L().Info("snapshot: registry restored",
		zap.Int("geofences", len(snap.Geofences)),
		zap.Time("taken_at", snap.TakenAt),
	)
	return nil
}

// Save writes the current registry contents.
func (s *SnapshotService) Save(ctx context.Context) error {
	return eris.Wrap(s.repo.Save(ctx, s.registry.Snapshot()), "snapshot: save")
}

// Import validates snap, applies it to the registry and persists it.
func (s *SnapshotService) Import(ctx context.Context, snap domain.RegistrySnapshot) error {
	if err := s.registry.Restore(snap); err != nil {
		return eris.Wrap(err, "snapshot: import")
	}
	return s.Save(ctx)
}

func (s *SnapshotService) Export() domain.RegistrySnapshot {
	return s.registry.Snapshot()
}

// Watch saves the registry after every mutation. Failures are logged; the
// in-memory registry stays authoritative.
func (s *SnapshotService) Watch() {
	s.registry.OnChange(func(fences []domain.Geofence) {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()

		snap := domain.RegistrySnapshot{Geofences: fences, TakenAt: time.Now().UTC()}
		if err := s.repo.Save(ctx, snap); err != nil {
			zap.L().Error("snapshot: save after change failed", zap.Int("geofences", len(fences)), zap.Error(err))
		}
	})
}
