package model

// Forward exposes a TCP service across the tunnel: connections accepted on
// LocalPort are relayed to TargetHost:TargetPort.
type Forward struct {
	LocalPort  int    `json:"localPort"`
	TargetHost string `json:"targetHost"`
	TargetPort int    `json:"targetPort"`
}
