package domain

import (
	"fmt"
	"time"
)

// FixMessage is the wire form of a fix shared by every transport.
type FixMessage struct {
	DeviceID  string    `json:"device_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp int64     `json:"timestamp"`
	Source    FixSource `json:"source,omitempty"`
}

func (m FixMessage) Validate() error {
	if m.DeviceID == "" {
		return fmt.Errorf("%w: device_id required", ErrInvalidFix)
	}
	if err := (Coordinate{Latitude: m.Latitude, Longitude: m.Longitude}).Validate(); err != nil {
		return err
	}
	if m.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp must be positive", ErrInvalidFix)
	}
	switch m.Source {
	case "", FixForeground, FixBackground:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidFix, m.Source)
	}
	return nil
}

// Fix converts the message. Messages without a source are background fixes.
func (m FixMessage) Fix() Fix {
	src := m.Source
	if src == "" {
		src = FixBackground
	}
	return Fix{
		DeviceID:   m.DeviceID,
		Coordinate: Coordinate{Latitude: m.Latitude, Longitude: m.Longitude},
		Timestamp:  time.Unix(m.Timestamp, 0).UTC(),
		Source:     src,
	}
}

func NewFixMessage(fix Fix) FixMessage {
	return FixMessage{
		DeviceID:  fix.DeviceID,
		Latitude:  fix.Coordinate.Latitude,
		Longitude: fix.Coordinate.Longitude,
		Timestamp: fix.Timestamp.Unix(),
		Source:    fix.Source,
	}
}
