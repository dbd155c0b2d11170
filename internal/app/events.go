// Package app provides the core application service for Wails bindings.
package app

// Event names for frontend communication.
const (
	EventStatus      = "recording-status"
	EventPermissions = "permissions-reset"
)

// PermissionsReset is emitted after the cached permission decisions and
// one-time hints are cleared.
type PermissionsReset struct {
	Microphone   bool `json:"microphone"`   // Granted after reset
	Notification bool `json:"notification"` // Granted after reset
}
