package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/notifier"
)

// AlertDispatcher turns exit events into notifications. Delivery is
// fire-and-forget: failures are logged and never retried.
type AlertDispatcher struct {
	sink     notifier.NotificationSink
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewAlertDispatcher creates a dispatcher. A positive cooldown suppresses
// repeat notifications for the same fence inside that window; zero sends
// one notification per event.
func NewAlertDispatcher(sink notifier.NotificationSink, cooldown time.Duration) *AlertDispatcher {
	return &AlertDispatcher{
		sink:     sink,
		cooldown: cooldown,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Dispatch reports whether a notification was handed to the sink.
func (d *AlertDispatcher) Dispatch(ctx context.Context, ev domain.ExitEvent) bool {
	if !d.allow(ev.GeofenceName) {
		zap.L().Debug("dispatcher: suppressed by cooldown",
			zap.String("geofence", ev.GeofenceName),
			zap.Duration("cooldown", d.cooldown),
		)
		return false
	}

	n := NewExitNotification(ev)
	if err := d.sink.Schedule(ctx, n); err != nil {
		zap.L().Error("dispatcher: notification delivery failed",
			zap.String("geofence", ev.GeofenceName),
			zap.String("notification_id", n.ID),
			zap.Error(fmt.Errorf("%w: %w", domain.ErrNotificationDelivery, err)),
		)
		return false
	}
	return true
}

// NewExitNotification renders the user-visible notification for ev.
func NewExitNotification(ev domain.ExitEvent) *domain.Notification {
	return &domain.Notification{
		ID:           uuid.New().String(),
		Title:        domain.NotificationTitle,
		Body:         fmt.Sprintf("You have exited the geofence for %s", ev.GeofenceName),
		GeofenceName: ev.GeofenceName,
		At:           ev.At,
		Timestamp:    ev.Timestamp,
	}
}

func (d *AlertDispatcher) allow(name string) bool {
	if d.cooldown <= 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	lim, ok := d.limiters[name]
	if !ok {
		lim = rate.NewLimiter(rate.Every(d.cooldown), 1)
		d.limiters[name] = lim
	}
	return lim.AllowN(d.now(), 1)
}

// Prune drops the cooldown state of every fence not in fences. It is meant
// to be registered with Registry.OnChange.
func (d *AlertDispatcher) Prune(fences []domain.Geofence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.limiters) == 0 {
		return
	}

	live := make(map[string]struct{}, len(fences))
	for _, gf := range fences {
		live[gf.Name] = struct{}{}
	}
	for name := range d.limiters {
		if _, ok := live[name]; !ok {
			delete(d.limiters, name)
		}
	}
}
