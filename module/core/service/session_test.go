package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
)

type mockLocationProvider struct {
	foregroundFn func(ctx context.Context) (bool, error)
	backgroundFn func(ctx context.Context) (bool, error)
	currentFixFn func(ctx context.Context) (domain.Fix, error)
	subscribeFn  func(onFix func(domain.Fix), opts domain.SubscribeOptions) error
	subscribed   int
}

func (m *mockLocationProvider) RequestForegroundPermission(ctx context.Context) (bool, error) {
	if m.foregroundFn == nil {
		return true, nil
	}
	return m.foregroundFn(ctx)
}

func (m *mockLocationProvider) RequestBackgroundPermission(ctx context.Context) (bool, error) {
	if m.backgroundFn == nil {
		return true, nil
	}
	return m.backgroundFn(ctx)
}

func (m *mockLocationProvider) CurrentFix(ctx context.Context) (domain.Fix, error) {
	if m.currentFixFn == nil {
		return domain.Fix{Coordinate: home, Source: domain.FixForeground}, nil
	}
	return m.currentFixFn(ctx)
}

func (m *mockLocationProvider) Subscribe(onFix func(domain.Fix), opts domain.SubscribeOptions) error {
	m.subscribed++
	if m.subscribeFn != nil {
		return m.subscribeFn(onFix, opts)
	}
	return nil
}

func newTestSession(t *testing.T, loc *mockLocationProvider) (*Session, *Registry) {
	t.Helper()
	reg := NewRegistry()
	s := NewSession(reg, loc, func(domain.Fix) {}, SessionConfig{
		Radius:    domain.DefaultRadiusMeters,
		Subscribe: domain.DefaultSubscribeOptions(),
	})
	return s, reg
}

func startedSession(t *testing.T) (*Session, *Registry, *mockLocationProvider) {
	t.Helper()
	loc := &mockLocationProvider{}
	s, reg := newTestSession(t, loc)
	require.NoError(t, s.Start(context.Background()))
	return s, reg, loc
}

func lastAlert(t *testing.T, s *Session) UserAlert {
	t.Helper()
	alerts := s.View().Alerts
	require.NotEmpty(t, alerts)
	return alerts[len(alerts)-1]
}

func TestSessionStart_PromptsForCurrentLocation(t *testing.T) {
	s, _, loc := startedSession(t)

	v := s.View()
	assert.Equal(t, StateSeedingInitialFence, v.State)
	require.NotNil(t, v.Prompt)
	assert.Equal(t, home, *v.Prompt)
	require.NotNil(t, v.Current)
	assert.Equal(t, 1, loc.subscribed)
}

func TestSessionStart_SubscribesWithOptions(t *testing.T) {
	var got domain.SubscribeOptions
	loc := &mockLocationProvider{
		subscribeFn: func(_ func(domain.Fix), opts domain.SubscribeOptions) error {
			got = opts
			return nil
		},
	}
	s, _ := newTestSession(t, loc)
	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, domain.AccuracyHigh, got.Accuracy)
	assert.Equal(t, 10.0, got.MinDistanceMeters)
	assert.Equal(t, time.Second, got.Deferral)
}

func TestSessionStart_PermissionDenied(t *testing.T) {
	tests := []struct {
		name    string
		loc     *mockLocationProvider
		message string
	}{
		{
			name:    "foreground",
			loc:     &mockLocationProvider{foregroundFn: func(context.Context) (bool, error) { return false, nil }},
			message: "Permission to access location was denied",
		},
		{
			name:    "background",
			loc:     &mockLocationProvider{backgroundFn: func(context.Context) (bool, error) { return false, nil }},
			message: "Permission to access background location was denied",
		},
		{
			name:    "request error",
			loc:     &mockLocationProvider{foregroundFn: func(context.Context) (bool, error) { return true, errors.New("host error") }},
			message: "Permission to access location was denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(t, tt.loc)
			err := s.Start(context.Background())
			assert.ErrorIs(t, err, domain.ErrPermissionDenied)
			assert.Equal(t, StatePermissionDenied, s.View().State)
			assert.Equal(t, tt.message, lastAlert(t, s).Message)
			assert.Zero(t, tt.loc.subscribed)

			// terminal: no retry
			assert.ErrorIs(t, s.Start(context.Background()), domain.ErrInvalidState)
		})
	}
}

func TestSessionStart_CurrentFixFailureFallsBackToManualPick(t *testing.T) {
	loc := &mockLocationProvider{
		currentFixFn: func(context.Context) (domain.Fix, error) {
			return domain.Fix{}, context.DeadlineExceeded
		},
	}
	s, _ := newTestSession(t, loc)

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	v := s.View()
	assert.Equal(t, StateMonitoring, v.State)
	assert.Equal(t, SubSettingLocation, v.SubState)
}

func TestSession_AcceptPromptAndConfirm(t *testing.T) {
	s, reg, _ := startedSession(t)

	require.NoError(t, s.AnswerPrompt(true))
	v := s.View()
	assert.Equal(t, StateMonitoring, v.State)
	assert.Equal(t, SubAwaitingNameEntry, v.SubState)
	require.NotNil(t, v.Pending)
	assert.True(t, v.Pending.AwaitingName)
	assert.Nil(t, v.Prompt)

	require.NoError(t, s.ConfirmName(" Home "))
	gf, err := reg.Get("Home")
	require.NoError(t, err)
	assert.Equal(t, home, gf.Center)
	assert.Equal(t, 500.0, gf.Radius)

	v = s.View()
	assert.Equal(t, SubNormal, v.SubState)
	assert.Nil(t, v.Pending)
	assert.Equal(t, "Location set with 500m radius", lastAlert(t, s).Message)
}

func TestSession_DeclinePromptThenTap(t *testing.T) {
	s, reg, _ := startedSession(t)

	require.NoError(t, s.AnswerPrompt(false))
	assert.Equal(t, SubSettingLocation, s.View().SubState)

	picked := domain.Coordinate{Latitude: 40.5, Longitude: -73.9}
	require.NoError(t, s.TapPoint(picked))
	v := s.View()
	assert.Equal(t, SubAwaitingNameEntry, v.SubState)
	assert.Equal(t, picked, v.Pending.Coordinate)

	require.NoError(t, s.ConfirmName("Park"))
	gf, err := reg.Get("Park")
	require.NoError(t, err)
	assert.Equal(t, picked, gf.Center)
}

func TestSession_TapPointOutsideSettingLocation(t *testing.T) {
	s, _, _ := startedSession(t)
	require.NoError(t, s.AnswerPrompt(true))

	err := s.TapPoint(domain.Coordinate{Latitude: 1, Longitude: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestSession_TapPointInvalidCoordinate(t *testing.T) {
	s, _, _ := startedSession(t)
	require.NoError(t, s.AnswerPrompt(false))

	err := s.TapPoint(domain.Coordinate{Latitude: 95})
	assert.ErrorIs(t, err, domain.ErrInvalidCoordinate)
	assert.Equal(t, SubSettingLocation, s.View().SubState)
}

func TestSession_ConfirmEmptyName(t *testing.T) {
	s, reg, _ := startedSession(t)
	require.NoError(t, s.AnswerPrompt(true))

	err := s.ConfirmName("   ")
	assert.ErrorIs(t, err, domain.ErrInvalidName)
	assert.Equal(t, "Please enter a name for the location.", lastAlert(t, s).Message)
	assert.Equal(t, SubAwaitingNameEntry, s.View().SubState)
	assert.Zero(t, reg.Size())
}

func TestSession_ConfirmWithoutPending(t *testing.T) {
	s, _, _ := startedSession(t)
	assert.ErrorIs(t, s.ConfirmName("Home"), domain.ErrInvalidState)
}

func TestSession_Cancel(t *testing.T) {
	s, reg, _ := startedSession(t)
	require.NoError(t, s.AnswerPrompt(true))

	require.NoError(t, s.Cancel())
	v := s.View()
	assert.Equal(t, SubNormal, v.SubState)
	assert.Nil(t, v.Pending)
	assert.Zero(t, reg.Size())
}

func TestSession_RequestAddMoreAtCapacity(t *testing.T) {
	s, reg, _ := startedSession(t)
	require.NoError(t, s.AnswerPrompt(false))
	fillRegistry(t, reg, domain.MaxGeofences)

	before := s.View()
	err := s.RequestAddMore(context.Background())
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	after := s.View()
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, SubSettingLocation, after.SubState)
	alert := lastAlert(t, s)
	assert.Equal(t, "Limit Reached", alert.Title)
	assert.Equal(t, "You can only set up to 5 geofences.", alert.Message)
}

func TestSession_RequestAddMorePromptsAgain(t *testing.T) {
	s, _, loc := startedSession(t)
	require.NoError(t, s.AnswerPrompt(true))
	require.NoError(t, s.ConfirmName("Home"))

	elsewhere := domain.Coordinate{Latitude: 41, Longitude: -73}
	loc.currentFixFn = func(context.Context) (domain.Fix, error) {
		return domain.Fix{Coordinate: elsewhere}, nil
	}
	require.NoError(t, s.RequestAddMore(context.Background()))

	v := s.View()
	require.NotNil(t, v.Prompt)
	assert.Equal(t, elsewhere, *v.Prompt)
	assert.Equal(t, SubNormal, v.SubState)
}

func TestSession_ConfirmAtCapacity(t *testing.T) {
	s, reg, _ := startedSession(t)
	require.NoError(t, s.AnswerPrompt(true))
	fillRegistry(t, reg, domain.MaxGeofences)

	err := s.ConfirmName("sixth")
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Equal(t, SubAwaitingNameEntry, s.View().SubState)
	assert.Equal(t, domain.MaxGeofences, reg.Size())
}

func TestSession_EditFenceReplacesOriginal(t *testing.T) {
	s, reg, _ := startedSession(t)
	require.NoError(t, s.AnswerPrompt(true))
	require.NoError(t, s.ConfirmName("Home"))

	require.NoError(t, s.EditFence("Home"))
	v := s.View()
	assert.Equal(t, SubSettingLocation, v.SubState)
	assert.Equal(t, "Home", v.Editing)
	require.NotNil(t, v.Pending)
	assert.Equal(t, home, v.Pending.Coordinate)
	assert.False(t, v.Pending.AwaitingName)

	moved := domain.Coordinate{Latitude: 40.2, Longitude: -74.1}
	require.NoError(t, s.TapPoint(moved))
	require.NoError(t, s.ConfirmName("House"))

	_, err := reg.Get("Home")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	gf, err := reg.Get("House")
	require.NoError(t, err)
	assert.Equal(t, moved, gf.Center)
	assert.Equal(t, 1, reg.Size())
	assert.Empty(t, s.View().Editing)
}

func TestSession_EditFenceNotFound(t *testing.T) {
	s, _, _ := startedSession(t)
	require.NoError(t, s.AnswerPrompt(false))
	assert.ErrorIs(t, s.EditFence("nope"), domain.ErrNotFound)
}

func TestSession_RemoveFence(t *testing.T) {
	s, reg, _ := startedSession(t)
	require.NoError(t, reg.Add("Home", home, 500))

	require.NoError(t, s.RemoveFence("Home"))
	require.NoError(t, s.RemoveFence("Home"))
	assert.Zero(t, reg.Size())
}

func TestSession_EventsAndAlertRetention(t *testing.T) {
	s, _, _ := startedSession(t)
	require.NoError(t, s.AnswerPrompt(true))
	events := s.Events(4)

	require.ErrorIs(t, s.ConfirmName(""), domain.ErrInvalidName)
	select {
	case a := <-events:
		assert.Equal(t, "Error", a.Title)
	case <-time.After(time.Second):
		t.Fatal("expected alert event")
	}

	for i := 0; i < maxRetainedAlerts+5; i++ {
		_ = s.ConfirmName(fmt.Sprintf("%*s", i, ""))
	}
	assert.Len(t, s.View().Alerts, maxRetainedAlerts)

	s.Close()
	for range events {
	}
}
