package model

import "time"

// NodeStatus is the management-interface view of a provisioned node.
type NodeStatus struct {
	Role           NodeRole       `json:"role"`
	LocalPublicKey string         `json:"localPublicKey"`
	PeerKnown      bool           `json:"peerKnown"`
	PeerEndpoint   string         `json:"peerEndpoint,omitempty"`
	Services       []ServiceState `json:"services"`
	Forwards       []Forward      `json:"forwards"`
	Timestamp      time.Time      `json:"timestamp"`
}
