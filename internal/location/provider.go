// Package location keeps the device tracking while the user shares a session
// and fans throttled fixes out to every session that needs them.
package location

import "eta/internal/session"

// Permission is the device's location authorization state.
type Permission int

const (
	PermissionNotDetermined Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	}
	return "not_determined"
}

// Accuracy is the desired horizontal accuracy in meters.
type Accuracy float64

// Provider is the device location service.
type Provider interface {
	Permission() Permission
	RequestPermission() Permission
	SetDesiredAccuracy(a Accuracy)
	SetBackgroundUpdates(enabled bool)
	StartUpdates()
	StopUpdates()
	// Fixes delivers one value per raw fix while updates are started.
	Fixes() <-chan session.Location
}
