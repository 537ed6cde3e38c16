package model

// NodeRole identifies which end of the point-to-point tunnel this node is.
// Immutable once provisioned.
type NodeRole string

const (
	// RoleServer is the listening end (the "kharej" side).
	RoleServer NodeRole = "server"
	// RoleClient is the initiating end (the "iran" side).
	RoleClient NodeRole = "client"
)

// RoleProfile carries the fixed network parameters a role implies.
// Built once by profile.ResolveRole and never mutated afterwards.
type RoleProfile struct {
	Role          NodeRole `json:"role"`
	TunnelAddress string   `json:"tunnelAddress"` // interface address in CIDR form
	TunnelSubnet  string   `json:"tunnelSubnet"`  // whole tunnel subnet
	MTU           int      `json:"mtu"`
	ListenPort    int      `json:"listenPort"`    // encryption-layer UDP port
	ObfsPort      int      `json:"obfsPort"`      // obfuscation-layer TLS port
	ServerAddress string   `json:"serverAddress"` // client only: obfuscation endpoint host
	Keepalive     int      `json:"keepaliveSeconds"`
}

// IsServer reports whether the profile describes the listening role.
func (p RoleProfile) IsServer() bool { return p.Role == RoleServer }
