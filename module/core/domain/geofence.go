package domain

import "time"

const (
	// DefaultRadiusMeters is the radius given to fences created through the
	// confirm flow.
	DefaultRadiusMeters = 500
	// MaxGeofences is the hard cap on registry size.
	MaxGeofences = 5
)

type Geofence struct {
	Name   string     `json:"name" yaml:"name"`
	Center Coordinate `json:"center" yaml:"center"`
	Radius float64    `json:"radius" yaml:"radius"`
}

// RegistrySnapshot is the serializable form of the registry contents.
type RegistrySnapshot struct {
	Geofences []Geofence `json:"geofences" yaml:"geofences"`
	TakenAt   time.Time  `json:"taken_at" yaml:"taken_at"`
}

// PendingSelection is a geofence candidate chosen but not yet confirmed.
type PendingSelection struct {
	Coordinate   Coordinate `json:"coordinate"`
	AwaitingName bool       `json:"awaiting_name"`
}

type ExitEvent struct {
	GeofenceName string     `json:"geofence_name"`
	At           Coordinate `json:"at"`
	Timestamp    time.Time  `json:"timestamp"`
}

// FenceState is the last known position of a device relative to one fence.
type FenceState string

const (
	FenceUnknown FenceState = "unknown"
	FenceInside  FenceState = "inside"
	FenceOutside FenceState = "outside"
)

const NotificationTitle = "Geofence Alert"

type Notification struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	GeofenceName string     `json:"geofence_name"`
	At           Coordinate `json:"at"`
	Timestamp    time.Time  `json:"timestamp"`
}
