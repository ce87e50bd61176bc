package notifier

import (
	"context"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
)

// NotificationSink schedules a user-visible notification.
type NotificationSink interface {
	Schedule(ctx context.Context, n *domain.Notification) error
}
