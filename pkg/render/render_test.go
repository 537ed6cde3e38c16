package render

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vortexl2/pkg/model"
	"vortexl2/pkg/profile"
)

const (
	serverPriv = "yAnz5TF+lXXJte14tji3zlMNq+hd2rYUIgJBgB3fBmk="
	serverPub  = "HIgo9xNzJMWLKASShiTqIybxZ0U3wGLiUeJ1PKf8ykw="
	clientPriv = "uCVl5Yi5GQpLZY6vrzLiX6MufdB5BU6GRmYkVVW1dV8="
	clientPub  = "xTIBA5rboUvnH4htodjb6e697QjLERt1NAB4mZqp8Dg="
)

func serverProfile(t *testing.T) model.RoleProfile {
	t.Helper()
	p, err := profile.ResolveRole("server", "")
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func clientProfile(t *testing.T) model.RoleProfile {
	t.Helper()
	p, err := profile.ResolveRole("client", "203.0.113.5")
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRenderWithoutPeerHasNoPeerSection(t *testing.T) {
	for _, p := range []model.RoleProfile{serverProfile(t), clientProfile(t)} {
		cfg, err := Render(p, Options{
			PrivateKey:  serverPriv,
			TLSCertFile: "/tmp/server.crt",
			TLSKeyFile:  "/tmp/server.key",
		})
		if err != nil {
			t.Fatalf("%s render: %v", p.Role, err)
		}
		if strings.Contains(cfg.WireGuard, "[Peer]") {
			t.Fatalf("%s peer-less render contains [Peer]:\n%s", p.Role, cfg.WireGuard)
		}
		if !strings.Contains(cfg.WireGuard, "MTU = 1280") {
			t.Errorf("%s render missing MTU:\n%s", p.Role, cfg.WireGuard)
		}
	}
}

func TestRenderServerPeerSection(t *testing.T) {
	cfg, err := Render(serverProfile(t), Options{
		PrivateKey:  serverPriv,
		Peer:        model.PeerDescriptor{PublicKey: clientPub},
		TLSCertFile: "/tmp/server.crt",
		TLSKeyFile:  "/tmp/server.key",
	})
	if err != nil {
		t.Fatal(err)
	}
	wg := cfg.WireGuard
	if got := strings.Count(wg, "[Peer]"); got != 1 {
		t.Fatalf("peer sections = %d, want 1:\n%s", got, wg)
	}
	if !strings.Contains(wg, "PublicKey = "+clientPub) {
		t.Errorf("missing peer key:\n%s", wg)
	}
	if !strings.Contains(wg, "AllowedIPs = 10.100.0.2/32") {
		t.Errorf("server allowed networks wrong:\n%s", wg)
	}
	if strings.Contains(wg, "Endpoint") {
		t.Errorf("server must not pin an endpoint (client dials in):\n%s", wg)
	}
	if !strings.Contains(wg, "ListenPort = 51820") {
		t.Errorf("server missing listen port:\n%s", wg)
	}
}

func TestRenderClientPeerSection(t *testing.T) {
	cfg, err := Render(clientProfile(t), Options{
		PrivateKey: clientPriv,
		Peer:       model.PeerDescriptor{PublicKey: serverPub},
	})
	if err != nil {
		t.Fatal(err)
	}
	wg := cfg.WireGuard
	if !strings.Contains(wg, "Endpoint = 127.0.0.1:51820") {
		t.Errorf("client endpoint must be the local relay:\n%s", wg)
	}
	if !strings.Contains(wg, "PersistentKeepalive = 25") {
		t.Errorf("client missing keepalive:\n%s", wg)
	}
	if !strings.Contains(wg, "AllowedIPs = 10.100.0.0/24") {
		t.Errorf("client allowed networks wrong:\n%s", wg)
	}
	if strings.Contains(wg, "ListenPort") {
		t.Errorf("client must not set ListenPort:\n%s", wg)
	}
}

func TestRenderRoundTripKeys(t *testing.T) {
	srv, err := Render(serverProfile(t), Options{
		PrivateKey:  serverPriv,
		Peer:        model.PeerDescriptor{PublicKey: clientPub},
		TLSCertFile: "c", TLSKeyFile: "k",
	})
	if err != nil {
		t.Fatal(err)
	}
	cli, err := Render(clientProfile(t), Options{
		PrivateKey: clientPriv,
		Peer:       model.PeerDescriptor{PublicKey: serverPub},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(srv.WireGuard, clientPub) {
		t.Error("server config lacks client public key")
	}
	if !strings.Contains(cli.WireGuard, serverPub) {
		t.Error("client config lacks server public key")
	}
}

func TestRotationChangesOnlyPeerSection(t *testing.T) {
	p := clientProfile(t)
	before, err := Render(p, Options{PrivateKey: clientPriv, Peer: model.PeerDescriptor{PublicKey: serverPub}})
	if err != nil {
		t.Fatal(err)
	}
	after, err := Render(p, Options{PrivateKey: clientPriv, Peer: model.PeerDescriptor{PublicKey: clientPub}})
	if err != nil {
		t.Fatal(err)
	}
	ifaceOf := func(s string) string { return strings.SplitN(s, "[Peer]", 2)[0] }
	if ifaceOf(before.WireGuard) != ifaceOf(after.WireGuard) {
		t.Fatal("interface section changed on peer rotation")
	}
	if before.WireGuard == after.WireGuard {
		t.Fatal("peer section did not change")
	}
}

func TestRenderWstunnelArgs(t *testing.T) {
	srv, err := Render(serverProfile(t), Options{
		PrivateKey: serverPriv, TLSCertFile: "/etc/v/server.crt", TLSKeyFile: "/etc/v/server.key",
	})
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(srv.WstunnelArgs, " ")
	if !strings.Contains(joined, "server wss://0.0.0.0:443") {
		t.Errorf("server args: %s", joined)
	}
	if !strings.Contains(joined, "--restrict-to 127.0.0.1:51820") {
		t.Errorf("server args missing restrict-to: %s", joined)
	}

	cli, err := Render(clientProfile(t), Options{PrivateKey: clientPriv})
	if err != nil {
		t.Fatal(err)
	}
	joined = strings.Join(cli.WstunnelArgs, " ")
	if !strings.Contains(joined, "wss://203.0.113.5:443") {
		t.Errorf("client args: %s", joined)
	}
	if !strings.Contains(joined, "--local-to-remote udp://127.0.0.1:51820:127.0.0.1:51820") {
		t.Errorf("client args missing udp forward: %s", joined)
	}
	if !strings.Contains(joined, "--tls-verify-certificate false") {
		t.Errorf("client args must skip cert verification: %s", joined)
	}
}

func TestPartialPeerIsRenderError(t *testing.T) {
	_, err := Render(clientProfile(t), Options{
		PrivateKey: clientPriv,
		Peer:       model.PeerDescriptor{Endpoint: "203.0.113.5:51820"},
	})
	if !errors.Is(err, model.ErrConfigRender) {
		t.Fatalf("error = %v, want ErrConfigRender", err)
	}
}

func TestWriteWireGuardAtomic(t *testing.T) {
	dir := t.TempDir()
	cfg := TunnelConfig{WireGuard: "[Interface]\nPrivateKey = x\n"}
	path, err := WriteWireGuard(dir, cfg)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != cfg.WireGuard {
		t.Fatal("content mismatch")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".wg-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
	info, err := os.Stat(filepath.Join(dir, WireGuardConfigName))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("config mode = %o, want 0600", perm)
	}
}
