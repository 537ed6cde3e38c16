package api

// PeerRequest is the POST /api/v1/peer payload: the far side's public key and
// optional overrides, exactly as handed over by the other operator.
type PeerRequest struct {
	PublicKey       string   `json:"publicKey"`
	PresharedKey    string   `json:"presharedKey,omitempty"`
	Endpoint        string   `json:"endpoint,omitempty"`
	AllowedNetworks []string `json:"allowedNetworks,omitempty"`
	Keepalive       int      `json:"keepaliveSeconds,omitempty"`
}

// PeerResponse is the GET /api/v1/peer payload. The preshared key never
// leaves the node; only its presence is reported.
type PeerResponse struct {
	Known           bool     `json:"known"`
	PublicKey       string   `json:"publicKey,omitempty"`
	HasPresharedKey bool     `json:"hasPresharedKey"`
	AllowedNetworks []string `json:"allowedNetworks,omitempty"`
}

// ForwardRequest is the POST /api/v1/forwards payload.
type ForwardRequest struct {
	LocalPort  int    `json:"localPort"`
	TargetHost string `json:"targetHost"`
	TargetPort int    `json:"targetPort"`
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}
