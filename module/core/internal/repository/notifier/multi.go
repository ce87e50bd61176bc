package notifier

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
)

var (
	_ NotificationSink = (Multi)(nil)
	_ NotificationSink = (*LogSink)(nil)
)

// Multi fans a notification out to every sink. Each sink is tried even if an
// earlier one fails; the first error is returned.
type Multi []NotificationSink

func (m Multi) Schedule(ctx context.Context, n *domain.Notification) error {
	var first error
	for _, s := range m {
		if err := s.Schedule(ctx, n); err != nil && first == nil {
			first = eris.Wrapf(err, "notifier: schedule %s", n.ID)
		}
	}
	return first
}

// LogSink writes notifications to the global logger.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (*LogSink) Schedule(_ context.Context, n *domain.Notification) error {
	zap.L().Info("notification",
		zap.String("id", n.ID),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.String("geofence", n.GeofenceName),
		zap.Float64("latitude", n.At.Latitude),
		zap.Float64("longitude", n.At.Longitude),
		zap.Time("timestamp", n.Timestamp),
	)
	return nil
}
