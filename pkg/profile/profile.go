package profile

import (
	"fmt"
	"strings"

	"vortexl2/pkg/model"
)

// Fixed network parameters for the point-to-point topology.
const (
	ServerTunnelAddress = "10.100.0.1/24"
	ClientTunnelAddress = "10.100.0.2/24"
	TunnelSubnet        = "10.100.0.0/24"

	// MTU 1280 survives the double encapsulation (tunnel header + websocket
	// framing + outer TLS) on ordinary 1500-MTU paths without fragmentation.
	TunnelMTU = 1280

	// ObfsPort 443 so the outer transport blends with ordinary HTTPS.
	ObfsPort = 443

	ListenPort       = 51820
	KeepaliveSeconds = 25
)

// ResolveRole validates a role token and produces the immutable RoleProfile.
// Tokens are case-insensitive; "kharej" and "iran" are accepted aliases for
// server and client. The client role requires a non-empty server address.
func ResolveRole(roleToken, serverAddr string) (model.RoleProfile, error) {
	base := model.RoleProfile{
		TunnelSubnet: TunnelSubnet,
		MTU:          TunnelMTU,
		ListenPort:   ListenPort,
		ObfsPort:     ObfsPort,
		Keepalive:    KeepaliveSeconds,
	}
	switch strings.ToLower(strings.TrimSpace(roleToken)) {
	case "server", "kharej":
		base.Role = model.RoleServer
		base.TunnelAddress = ServerTunnelAddress
		return base, nil
	case "client", "iran":
		if strings.TrimSpace(serverAddr) == "" {
			return model.RoleProfile{}, fmt.Errorf("%w: client role requires a server address", model.ErrInvalidArgument)
		}
		base.Role = model.RoleClient
		base.TunnelAddress = ClientTunnelAddress
		base.ServerAddress = strings.TrimSpace(serverAddr)
		return base, nil
	case "":
		return model.RoleProfile{}, fmt.Errorf("%w: role is required (server|client)", model.ErrInvalidArgument)
	default:
		return model.RoleProfile{}, fmt.Errorf("%w: unknown role %q (want server|client)", model.ErrInvalidArgument, roleToken)
	}
}
