package model

import "time"

// DesiredState is what the orchestrator wants a managed service to be doing.
type DesiredState string

const (
	StateUp   DesiredState = "up"
	StateDown DesiredState = "down"
)

// ObservedState is what the supervisor last saw.
type ObservedState string

const (
	ObservedStopped  ObservedState = "stopped"
	ObservedStarting ObservedState = "starting"
	ObservedRunning  ObservedState = "running"
	ObservedCrashed  ObservedState = "crashed"
	ObservedFailed   ObservedState = "failed" // retry threshold exceeded or config rejected
)

// Well-known managed service names.
const (
	ServiceObfuscation = "wstunnel"
	ServiceEncryption  = "wireguard"
)

// ServiceState tracks a single managed service across restarts of the daemon.
type ServiceState struct {
	Name         string        `json:"name"`
	Desired      DesiredState  `json:"desired"`
	Observed     ObservedState `json:"observed"`
	RestartCount int           `json:"restartCount"`
	LastError    string        `json:"lastError,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}
