package render

import (
	"fmt"
	"strings"

	"vortexl2/pkg/model"
)

// TunnelConfig is the rendered description of both layered services. It is a
// pure function of (profile, local key, peer) and is always regenerated whole,
// never patched in place.
type TunnelConfig struct {
	// WireGuard is the wg-quick INI for the encryption layer.
	WireGuard string
	// WstunnelArgs is the argv (excluding the binary) for the obfuscation process.
	WstunnelArgs []string
}

// Options carries the non-profile inputs to a render.
type Options struct {
	PrivateKey string
	Peer       model.PeerDescriptor
	// TLSCertFile/TLSKeyFile locate the obfuscation listener's certificate
	// material (server role only).
	TLSCertFile string
	TLSKeyFile  string
}

// Render produces the tunnel configuration for a role. Deterministic and free
// of side effects. A peer with any field set but no public key is a
// state-consistency bug and fails with ErrConfigRender.
func Render(p model.RoleProfile, opts Options) (TunnelConfig, error) {
	if opts.PrivateKey == "" {
		return TunnelConfig{}, fmt.Errorf("%w: private key is required", model.ErrConfigRender)
	}
	if partialPeer(opts.Peer) {
		return TunnelConfig{}, fmt.Errorf("%w: peer section requested without a public key", model.ErrConfigRender)
	}

	cfg := TunnelConfig{WireGuard: renderWireGuard(p, opts)}
	switch p.Role {
	case model.RoleServer:
		if opts.TLSCertFile == "" || opts.TLSKeyFile == "" {
			return TunnelConfig{}, fmt.Errorf("%w: server obfuscation layer needs tls cert and key paths", model.ErrConfigRender)
		}
		cfg.WstunnelArgs = []string{
			"server",
			fmt.Sprintf("wss://0.0.0.0:%d", p.ObfsPort),
			"--tls-certificate", opts.TLSCertFile,
			"--tls-private-key", opts.TLSKeyFile,
			// Forwarding is restricted to the local encryption layer so the
			// listener cannot be abused as an open relay.
			"--restrict-to", fmt.Sprintf("127.0.0.1:%d", p.ListenPort),
		}
	case model.RoleClient:
		cfg.WstunnelArgs = []string{
			"client",
			"--local-to-remote", fmt.Sprintf("udp://127.0.0.1:%d:127.0.0.1:%d", p.ListenPort, p.ListenPort),
			fmt.Sprintf("wss://%s:%d", p.ServerAddress, p.ObfsPort),
			// Trust comes from the encryption layer's key pair; TLS is shape only.
			"--tls-verify-certificate", "false",
		}
	default:
		return TunnelConfig{}, fmt.Errorf("%w: unknown role %q", model.ErrConfigRender, p.Role)
	}
	return cfg, nil
}

func renderWireGuard(p model.RoleProfile, opts Options) string {
	var b strings.Builder
	b.WriteString("[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", opts.PrivateKey)
	fmt.Fprintf(&b, "Address = %s\n", p.TunnelAddress)
	fmt.Fprintf(&b, "MTU = %d\n", p.MTU)
	if p.IsServer() {
		fmt.Fprintf(&b, "ListenPort = %d\n", p.ListenPort)
	}

	peer := opts.Peer
	if !peer.Known() {
		return b.String()
	}

	b.WriteString("\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", peer.PublicKey)
	if peer.PresharedKey != "" {
		fmt.Fprintf(&b, "PresharedKey = %s\n", peer.PresharedKey)
	}
	fmt.Fprintf(&b, "AllowedIPs = %s\n", strings.Join(allowedNetworks(p, peer), ", "))
	if !p.IsServer() {
		// The client reaches the server through the local end of the
		// obfuscation tunnel, never the server's real address.
		fmt.Fprintf(&b, "Endpoint = 127.0.0.1:%d\n", p.ListenPort)
		keepalive := peer.Keepalive
		if keepalive == 0 {
			keepalive = p.Keepalive
		}
		fmt.Fprintf(&b, "PersistentKeepalive = %d\n", keepalive)
	}
	return b.String()
}

// allowedNetworks picks the peer's routed networks: the operator override when
// present, otherwise the far side's /32 (server) or the tunnel subnet (client).
func allowedNetworks(p model.RoleProfile, peer model.PeerDescriptor) []string {
	if len(peer.AllowedNetworks) > 0 {
		return peer.AllowedNetworks
	}
	if p.IsServer() {
		return []string{hostRoute(p)}
	}
	return []string{p.TunnelSubnet}
}

// hostRoute returns the client's /32 inside the tunnel subnet.
func hostRoute(p model.RoleProfile) string {
	addr := p.TunnelAddress
	if i := strings.Index(addr, "/"); i > 0 {
		addr = addr[:i]
	}
	// Point-to-point: .1 talks to .2.
	if strings.HasSuffix(addr, ".1") {
		return strings.TrimSuffix(addr, ".1") + ".2/32"
	}
	return addr + "/32"
}

// partialPeer reports a descriptor that carries routing data but no key.
func partialPeer(peer model.PeerDescriptor) bool {
	if peer.Known() {
		return false
	}
	return peer.Endpoint != "" || len(peer.AllowedNetworks) > 0 || peer.PresharedKey != ""
}
