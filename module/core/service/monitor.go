package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
)

type exitEvaluator interface {
	Evaluate(fix domain.Fix, reg fenceLister) []domain.ExitEvent
}

type alertDispatcher interface {
	Dispatch(ctx context.Context, ev domain.ExitEvent) bool
}

// Monitor consumes fixes from a queue in delivery order, evaluates each one
// against the registry and dispatches the resulting exit events.
type Monitor struct {
	registry   fenceLister
	evaluator  exitEvaluator
	dispatcher alertDispatcher
	fixes      chan domain.Fix

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
}

func NewMonitor(reg fenceLister, evaluator exitEvaluator, dispatcher alertDispatcher, queueSize int) *Monitor {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Monitor{
		registry:   reg,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		fixes:      make(chan domain.Fix, queueSize),
		done:       make(chan struct{}),
	}
}

// OnFix enqueues a fix for evaluation. It blocks while the queue is full
// and drops the fix once the monitor has stopped.
func (m *Monitor) OnFix(fix domain.Fix) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		zap.L().Warn("monitor: fix dropped after shutdown",
			zap.String("device_id", fix.DeviceID),
		)
		return
	}
	select {
	case m.fixes <- fix:
	case <-m.done:
	}
}

// Run processes fixes until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fix := <-m.fixes:
			m.process(ctx, fix)
		}
	}
}

func (m *Monitor) process(ctx context.Context, fix domain.Fix) {
	events := m.evaluator.Evaluate(fix, m.registry)
	for _, ev := range events {
		m.dispatcher.Dispatch(ctx, ev)
	}
	if len(events) > 0 {
		zap.L().Info("monitor: exit events",
			zap.String("device_id", fix.DeviceID),
			zap.String("source", string(fix.Source)),
			zap.Int("count", len(events)),
		)
	}
}

func (m *Monitor) stop() {
	close(m.done)
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}
