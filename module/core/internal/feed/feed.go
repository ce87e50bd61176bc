// Package feed normalizes location fixes from every transport into one
// stream. It applies the host-level delivery thresholds (minimum distance
// between delivered fixes and the deferral window) and nothing else. Both
// thresholds are kept per device.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
	"github.com/nandanugg/geofence-monitor/module/core/geodesic"
)

// Permissions is the host's answer to foreground and background location
// permission requests.
type Permissions struct {
	Foreground bool
	Background bool
}

type Feed struct {
	perms Permissions

	mu            sync.Mutex
	latest        *domain.Fix
	waiters       []chan domain.Fix
	onFix         func(domain.Fix)
	opts          domain.SubscribeOptions
	lastDelivered map[string]domain.Coordinate
	pending       map[string]domain.Fix
	pendingOrder  []string
	timer         *time.Timer
}

func New(perms Permissions) *Feed {
	return &Feed{
		perms:         perms,
		lastDelivered: make(map[string]domain.Coordinate),
		pending:       make(map[string]domain.Fix),
	}
}

func (f *Feed) RequestForegroundPermission(_ context.Context) (bool, error) {
	return f.perms.Foreground, nil
}

func (f *Feed) RequestBackgroundPermission(_ context.Context) (bool, error) {
	return f.perms.Background, nil
}

// CurrentFix returns the most recently pushed fix, waiting for the next
// push when none has arrived yet.
func (f *Feed) CurrentFix(ctx context.Context) (domain.Fix, error) {
	f.mu.Lock()
	if f.latest != nil {
		fix := *f.latest
		f.mu.Unlock()
		return fix, nil
	}
	ch := make(chan domain.Fix, 1)
	f.waiters = append(f.waiters, ch)
	f.mu.Unlock()

	select {
	case fix := <-ch:
		return fix, nil
	case <-ctx.Done():
		f.dropWaiter(ch)
		return domain.Fix{}, eris.Wrap(ctx.Err(), "feed: wait for current fix")
	}
}

// Subscribe starts continuous delivery of pushed fixes to onFix. An empty
// Accuracy or Notice falls back to the defaults; a zero MinDistanceMeters or
// Deferral disables that threshold.
func (f *Feed) Subscribe(onFix func(domain.Fix), opts domain.SubscribeOptions) error {
	defaults := domain.DefaultSubscribeOptions()
	if opts.Accuracy == "" {
		opts.Accuracy = defaults.Accuracy
	}
	if opts.MinDistanceMeters < 0 {
		opts.MinDistanceMeters = 0
	}
	if opts.Notice.Title == "" {
		opts.Notice = defaults.Notice
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onFix != nil {
		return eris.Wrap(domain.ErrInvalidState, "feed: already subscribed")
	}
	f.onFix = onFix
	f.opts = opts

	zap.L().Info("feed: background location active",
		zap.String("notice_title", opts.Notice.Title),
		zap.String("notice_body", opts.Notice.Body),
		zap.String("accuracy", string(opts.Accuracy)),
		zap.Float64("min_distance_m", opts.MinDistanceMeters),
		zap.Duration("deferral", opts.Deferral),
	)
	return nil
}

// Push is the single entry point for fixes from every transport.
func (f *Feed) Push(fix domain.Fix) {
	f.mu.Lock()
	f.latest = &fix
	for _, ch := range f.waiters {
		ch <- fix
	}
	f.waiters = nil

	if f.onFix == nil {
		f.mu.Unlock()
		return
	}

	if f.opts.Deferral > 0 {
		// the latest fix per device wins inside one window
		if _, held := f.pending[fix.DeviceID]; !held {
			f.pendingOrder = append(f.pendingOrder, fix.DeviceID)
		}
		f.pending[fix.DeviceID] = fix
		if f.timer == nil {
			f.timer = time.AfterFunc(f.opts.Deferral, f.flush)
		}
		f.mu.Unlock()
		return
	}

	deliver, ok := f.admitLocked(fix)
	f.mu.Unlock()
	if ok {
		deliver(fix)
	}
}

// Flush delivers any fix held by the deferral window immediately.
func (f *Feed) Flush() {
	f.mu.Lock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.mu.Unlock()
	f.flush()
}

func (f *Feed) flush() {
	f.mu.Lock()
	f.timer = nil
	var admitted []domain.Fix
	deliver := f.onFix
	for _, device := range f.pendingOrder {
		fix := f.pending[device]
		if _, ok := f.admitLocked(fix); ok {
			admitted = append(admitted, fix)
		}
	}
	clear(f.pending)
	f.pendingOrder = f.pendingOrder[:0]
	f.mu.Unlock()

	for _, fix := range admitted {
		deliver(fix)
	}
}

// admitLocked applies the minimum-distance threshold against the last fix
// delivered for the same device.
func (f *Feed) admitLocked(fix domain.Fix) (func(domain.Fix), bool) {
	last, seen := f.lastDelivered[fix.DeviceID]
	if seen && f.opts.MinDistanceMeters > 0 &&
		geodesic.Distance(last, fix.Coordinate) < f.opts.MinDistanceMeters {
		return nil, false
	}
	f.lastDelivered[fix.DeviceID] = fix.Coordinate
	return f.onFix, true
}

func (f *Feed) dropWaiter(ch chan domain.Fix) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, w := range f.waiters {
		if w == ch {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return
		}
	}
}
