package domain

import "errors"

var (
	ErrPermissionDenied     = errors.New("location permission denied")
	ErrCapacityExceeded     = errors.New("geofence capacity exceeded")
	ErrInvalidName          = errors.New("invalid geofence name")
	ErrNotFound             = errors.New("geofence not found")
	ErrInvalidCoordinate    = errors.New("invalid coordinate")
	ErrInvalidState         = errors.New("operation not allowed in current state")
	ErrNotificationDelivery = errors.New("notification delivery failed")
	ErrInvalidFix           = errors.New("invalid fix message")
)
