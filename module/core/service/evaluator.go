package service

import (
	"sync"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
	"github.com/nandanugg/geofence-monitor/module/core/geodesic"
)

// EvaluationMode selects how outside classifications become exit events.
type EvaluationMode string

const (
	// ModeLevel emits an exit event for every fix that lies outside a fence.
	ModeLevel EvaluationMode = "level"
	// ModeEdge emits only on Unknown|Inside -> Outside transitions.
	ModeEdge EvaluationMode = "edge"
)

type fenceLister interface {
	List() []domain.Geofence
}

type trackedFence struct {
	fence domain.Geofence
	state domain.FenceState
}

// edgeKey scopes edge tracking to one device and one fence.
type edgeKey struct {
	device string
	fence  string
}

// GeofenceEvaluator classifies fixes against the registered fences. In
// ModeLevel it keeps no state between fixes; in ModeEdge each device is
// tracked on its own.
type GeofenceEvaluator struct {
	mode   EvaluationMode
	mu     sync.Mutex
	states map[edgeKey]trackedFence
}

func NewGeofenceEvaluator(mode EvaluationMode) *GeofenceEvaluator {
	if mode != ModeEdge {
		mode = ModeLevel
	}
	return &GeofenceEvaluator{
		mode:   mode,
		states: make(map[edgeKey]trackedFence),
	}
}

func (e *GeofenceEvaluator) Mode() EvaluationMode {
	return e.mode
}

// Evaluate returns one ExitEvent per fence that the fix qualifies for.
func (e *GeofenceEvaluator) Evaluate(fix domain.Fix, reg fenceLister) []domain.ExitEvent {
	fences := reg.List()
	if e.mode == ModeEdge {
		return e.evaluateEdge(fix, fences)
	}

	var events []domain.ExitEvent
	for _, gf := range fences {
		if IsOutside(gf, fix.Coordinate) {
			events = append(events, exitEvent(gf, fix))
		}
	}
	return events
}

// State reports the tracked position of deviceID relative to the named
// fence. It is always FenceUnknown in ModeLevel.
func (e *GeofenceEvaluator) State(deviceID, name string) domain.FenceState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tf, ok := e.states[edgeKey{device: deviceID, fence: name}]; ok {
		return tf.state
	}
	return domain.FenceUnknown
}

func (e *GeofenceEvaluator) evaluateEdge(fix domain.Fix, fences []domain.Geofence) []domain.ExitEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	var events []domain.ExitEvent
	seen := make(map[string]struct{}, len(fences))
	for _, gf := range fences {
		seen[gf.Name] = struct{}{}

		key := edgeKey{device: fix.DeviceID, fence: gf.Name}
		prev, ok := e.states[key]
		if !ok || prev.fence != gf {
			// new or overwritten fence
			prev = trackedFence{fence: gf, state: domain.FenceUnknown}
		}

		next := domain.FenceInside
		if IsOutside(gf, fix.Coordinate) {
			next = domain.FenceOutside
			if prev.state != domain.FenceOutside {
				events = append(events, exitEvent(gf, fix))
			}
		}
		e.states[key] = trackedFence{fence: gf, state: next}
	}

	for key := range e.states {
		if _, ok := seen[key.fence]; !ok {
			delete(e.states, key)
		}
	}
	return events
}

// IsOutside reports whether c lies strictly beyond the fence radius.
func IsOutside(gf domain.Geofence, c domain.Coordinate) bool {
	return geodesic.Distance(gf.Center, c) > gf.Radius
}

func exitEvent(gf domain.Geofence, fix domain.Fix) domain.ExitEvent {
	return domain.ExitEvent{
		GeofenceName: gf.Name,
		At:           fix.Coordinate,
		Timestamp:    fix.Timestamp,
	}
}
