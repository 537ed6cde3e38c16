package model

// PeerDescriptor describes the remote end of the tunnel. Absent (empty
// PublicKey) until the operator completes the key exchange; mutated only
// through the exchange package.
type PeerDescriptor struct {
	PublicKey       string   `json:"publicKey"`
	PresharedKey    string   `json:"presharedKey,omitempty"` // optional; status output carries the descriptor's flags only, never this struct
	Endpoint        string   `json:"endpoint,omitempty"`
	AllowedNetworks []string `json:"allowedNetworks,omitempty"`
	Keepalive       int      `json:"keepaliveSeconds,omitempty"`
}

// Known reports whether the peer's public key has been supplied yet.
func (p PeerDescriptor) Known() bool { return p.PublicKey != "" }
