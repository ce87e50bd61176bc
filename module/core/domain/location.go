package domain

import (
	"fmt"
	"time"
)

type Coordinate struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Validate reports whether c lies within the WGS84 degree ranges.
func (c Coordinate) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidCoordinate)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidCoordinate)
	}
	return nil
}

type FixSource string

const (
	FixForeground FixSource = "foreground"
	FixBackground FixSource = "background"
)

// Fix is a single reported device position. It is consumed by the
// evaluator and never persisted.
type Fix struct {
	DeviceID   string     `json:"device_id,omitempty"`
	Coordinate Coordinate `json:"coordinate"`
	Timestamp  time.Time  `json:"timestamp"`
	Source     FixSource  `json:"source"`
}

type Accuracy string

const (
	AccuracyLow      Accuracy = "low"
	AccuracyBalanced Accuracy = "balanced"
	AccuracyHigh     Accuracy = "high"
)

// ForegroundNotice is the user-visible indication shown while background
// location delivery is active.
type ForegroundNotice struct {
	Title string
	Body  string
}

// SubscribeOptions configures a continuous location subscription.
type SubscribeOptions struct {
	Accuracy          Accuracy
	MinDistanceMeters float64
	Deferral          time.Duration
	Notice            ForegroundNotice
}

func DefaultSubscribeOptions() SubscribeOptions {
	return SubscribeOptions{
		Accuracy:          AccuracyHigh,
		MinDistanceMeters: 10,
		Deferral:          1000 * time.Millisecond,
		Notice: ForegroundNotice{
			Title: "Using your location",
			Body:  "To detect if you move outside of the geofenced area.",
		},
	}
}
