package snapshot

import (
	"context"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
)

// Repository persists registry snapshots. Load on an empty store returns an
// empty snapshot.
type Repository interface {
	Load(ctx context.Context) (domain.RegistrySnapshot, error)
	Save(ctx context.Context, snap domain.RegistrySnapshot) error
	Close() error
}
