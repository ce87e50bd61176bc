package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
)

// SessionState is the top-level lifecycle of a session:
//
//	idle -> awaiting_permission -> seeding_initial_fence -> monitoring
//	awaiting_permission -> permission_denied (terminal)
type SessionState string

const (
	StateIdle                SessionState = "idle"
	StateAwaitingPermission  SessionState = "awaiting_permission"
	StatePermissionDenied    SessionState = "permission_denied"
	StateSeedingInitialFence SessionState = "seeding_initial_fence"
	StateMonitoring          SessionState = "monitoring"
)

// SubState is the interaction mode while monitoring:
//
//	normal <-> setting_location <-> awaiting_name_entry
type SubState string

const (
	SubNormal            SubState = "normal"
	SubSettingLocation   SubState = "setting_location"
	SubAwaitingNameEntry SubState = "awaiting_name_entry"
)

const maxRetainedAlerts = 20

// LocationProvider is the host location service.
type LocationProvider interface {
	RequestForegroundPermission(ctx context.Context) (bool, error)
	RequestBackgroundPermission(ctx context.Context) (bool, error)
	CurrentFix(ctx context.Context) (domain.Fix, error)
	Subscribe(onFix func(domain.Fix), opts domain.SubscribeOptions) error
}

// UserAlert is a modal message shown to the user.
type UserAlert struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type SessionConfig struct {
	Radius            float64
	Subscribe         domain.SubscribeOptions
	CurrentFixTimeout time.Duration
}

// SessionView is a read-only copy of the session for rendering.
type SessionView struct {
	ID        string                   `json:"id"`
	State     SessionState             `json:"state"`
	SubState  SubState                 `json:"sub_state,omitempty"`
	Prompt    *domain.Coordinate       `json:"prompt,omitempty"`
	Pending   *domain.PendingSelection `json:"pending,omitempty"`
	Editing   string                   `json:"editing,omitempty"`
	Current   *domain.Coordinate       `json:"current_location,omitempty"`
	Geofences []domain.Geofence        `json:"geofences"`
	Alerts    []UserAlert              `json:"alerts"`
}

// Session coordinates the pick, name, confirm and register workflow. All
// interaction state lives here; host calls that may block are made without
// holding the session lock.
type Session struct {
	id       string
	registry *Registry
	location LocationProvider
	onFix    func(domain.Fix)
	cfg      SessionConfig

	mu          sync.Mutex
	state       SessionState
	sub         SubState
	prompt      *domain.Coordinate
	pending     *domain.PendingSelection
	editing     string
	current     *domain.Coordinate
	alerts      []UserAlert
	subscribers []chan UserAlert
}

func NewSession(reg *Registry, location LocationProvider, onFix func(domain.Fix), cfg SessionConfig) *Session {
	if cfg.Radius <= 0 {
		cfg.Radius = domain.DefaultRadiusMeters
	}
	return &Session{
		id:       uuid.New().String(),
		registry: reg,
		location: location,
		onFix:    onFix,
		cfg:      cfg,
		state:    StateIdle,
	}
}

// Start runs the launch sequence: permission requests, background
// subscription and the initial current-location prompt.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return s.invalid("start")
	}
	s.state = StateAwaitingPermission
	s.mu.Unlock()

	if !s.requestPermission(ctx, s.location.RequestForegroundPermission, "Permission to access location was denied") {
		return eris.Wrap(domain.ErrPermissionDenied, "session: foreground permission")
	}
	if !s.requestPermission(ctx, s.location.RequestBackgroundPermission, "Permission to access background location was denied") {
		return eris.Wrap(domain.ErrPermissionDenied, "session: background permission")
	}

	s.mu.Lock()
	s.state = StateSeedingInitialFence
	s.mu.Unlock()

	if err := s.location.Subscribe(s.onFix, s.cfg.Subscribe); err != nil {
		zap.L().Error("session: background subscription failed", zap.Error(err))
	}

	fix, err := s.currentFix(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		// no seed position: fall back to a manual pick
		s.state = StateMonitoring
		s.sub = SubSettingLocation
		s.alertLocked("Location Unavailable", "Unable to get your current location. Tap the map to set a geofence.")
		return eris.Wrap(err, "session: seed current location")
	}
	s.raisePromptLocked(fix.Coordinate)
	return nil
}

// AnswerPrompt resolves the "use current location?" prompt.
func (s *Session) AnswerPrompt(accept bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prompt == nil {
		return s.invalid("answer prompt")
	}

	coord := *s.prompt
	s.prompt = nil
	s.state = StateMonitoring
	if accept {
		s.selectLocked(coord)
		return nil
	}
	s.sub = SubSettingLocation
	return nil
}

// TapPoint picks a map point while setting a location.
func (s *Session) TapPoint(coord domain.Coordinate) error {
	if err := coord.Validate(); err != nil {
		return eris.Wrap(err, "session: tap point")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateMonitoring || s.sub != SubSettingLocation {
		return s.invalid("tap point")
	}
	s.selectLocked(coord)
	return nil
}

// ConfirmName promotes the pending selection into a geofence. When the
// selection came from the edit flow the edited fence is replaced.
func (s *Session) ConfirmName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != SubAwaitingNameEntry || s.pending == nil {
		return s.invalid("confirm name")
	}

	center := s.pending.Coordinate
	var err error
	if s.editing != "" {
		err = s.registry.Replace(s.editing, name, center, s.cfg.Radius)
	} else {
		err = s.registry.Add(name, center, s.cfg.Radius)
	}

	switch {
	case err == nil:
	case eris.Is(err, domain.ErrInvalidName):
		s.alertLocked("Error", "Please enter a name for the location.")
		return err
	case eris.Is(err, domain.ErrCapacityExceeded):
		s.alertLocked("Limit Reached", limitMessage(s.registry.Capacity()))
		return err
	default:
		return err
	}

	s.pending = nil
	s.editing = ""
	s.sub = SubNormal
	s.alertLocked("Geofence Set", fmt.Sprintf("Location set with %gm radius", s.cfg.Radius))
	return nil
}

// Cancel discards the pending selection and any open prompt.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateMonitoring && s.state != StateSeedingInitialFence {
		return s.invalid("cancel")
	}
	s.state = StateMonitoring
	s.prompt = nil
	s.pending = nil
	s.editing = ""
	s.sub = SubNormal
	return nil
}

func (s *Session) RemoveFence(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Remove(name)
}

// EditFence re-enters location picking with the fence center pre-selected.
func (s *Session) EditFence(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateMonitoring {
		return s.invalid("edit fence")
	}
	gf, err := s.registry.Get(name)
	if err != nil {
		return err
	}
	s.prompt = nil
	s.pending = &domain.PendingSelection{Coordinate: gf.Center}
	s.editing = gf.Name
	s.sub = SubSettingLocation
	return nil
}

// RequestAddMore starts adding another fence from the current location.
// It is rejected with a limit alert when the registry is full.
func (s *Session) RequestAddMore(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateMonitoring {
		s.mu.Unlock()
		return s.invalid("add more")
	}
	if s.registry.Size() >= s.registry.Capacity() {
		s.alertLocked("Limit Reached", limitMessage(s.registry.Capacity()))
		s.mu.Unlock()
		return eris.Wrap(domain.ErrCapacityExceeded, "session: add more")
	}
	s.sub = SubNormal
	s.pending = nil
	s.editing = ""
	s.mu.Unlock()

	fix, err := s.currentFix(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.sub = SubSettingLocation
		s.alertLocked("Location Unavailable", "Unable to get your current location. Tap the map to set a geofence.")
		return eris.Wrap(err, "session: add more current location")
	}
	s.raisePromptLocked(fix.Coordinate)
	return nil
}

func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := SessionView{
		ID:        s.id,
		State:     s.state,
		Editing:   s.editing,
		Geofences: s.registry.List(),
		Alerts:    append([]UserAlert(nil), s.alerts...),
	}
	if s.state == StateMonitoring {
		v.SubState = s.sub
	}
	if s.prompt != nil {
		c := *s.prompt
		v.Prompt = &c
	}
	if s.pending != nil {
		p := *s.pending
		v.Pending = &p
	}
	if s.current != nil {
		c := *s.current
		v.Current = &c
	}
	return v
}

// Events returns a channel receiving every user alert raised after the
// call. Slow receivers miss alerts rather than blocking the session.
func (s *Session) Events(buffer int) <-chan UserAlert {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan UserAlert, buffer)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

// Close closes every Events channel.
func (s *Session) Close() {
	s.mu.Lock()
	subs := s.subscribers
	s.subscribers = nil
	s.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}

func (s *Session) requestPermission(ctx context.Context, request func(context.Context) (bool, error), deniedMsg string) bool {
	granted, err := request(ctx)
	if err != nil {
		zap.L().Error("session: permission request failed", zap.Error(err))
	}
	if granted && err == nil {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StatePermissionDenied
	s.alertLocked("Permission Denied", deniedMsg)
	return false
}

func (s *Session) currentFix(ctx context.Context) (domain.Fix, error) {
	if s.cfg.CurrentFixTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CurrentFixTimeout)
		defer cancel()
	}
	return s.location.CurrentFix(ctx)
}

func (s *Session) raisePromptLocked(c domain.Coordinate) {
	s.current = &c
	s.prompt = &c
}

func (s *Session) selectLocked(c domain.Coordinate) {
	s.pending = &domain.PendingSelection{Coordinate: c, AwaitingName: true}
	s.sub = SubAwaitingNameEntry
}

func (s *Session) alertLocked(title, message string) {
	a := UserAlert{Title: title, Message: message, At: time.Now().UTC()}
	s.alerts = append(s.alerts, a)
	if len(s.alerts) > maxRetainedAlerts {
		s.alerts = s.alerts[len(s.alerts)-maxRetainedAlerts:]
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- a:
		default:
		}
	}
}

func (s *Session) invalid(op string) error {
	return eris.Wrapf(domain.ErrInvalidState, "session: %s", op)
}

func limitMessage(capacity int) string {
	return fmt.Sprintf("You can only set up to %d geofences.", capacity)
}
