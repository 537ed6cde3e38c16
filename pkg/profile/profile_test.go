package profile

import (
	"errors"
	"testing"

	"vortexl2/pkg/model"
)

func TestResolveRoleTokens(t *testing.T) {
	cases := []struct {
		token      string
		serverAddr string
		wantRole   model.NodeRole
		wantErr    bool
	}{
		{"server", "", model.RoleServer, false},
		{"SERVER", "", model.RoleServer, false},
		{"Kharej", "", model.RoleServer, false},
		{"client", "203.0.113.5", model.RoleClient, false},
		{"IRAN", "203.0.113.5", model.RoleClient, false},
		{"client", "", "", true}, // missing server address
		{"gateway", "", "", true},
		{"", "", "", true},
	}
	for _, tc := range cases {
		p, err := ResolveRole(tc.token, tc.serverAddr)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ResolveRole(%q) expected error", tc.token)
			}
			if !errors.Is(err, model.ErrInvalidArgument) {
				t.Fatalf("ResolveRole(%q) error = %v, want ErrInvalidArgument", tc.token, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ResolveRole(%q) failed: %v", tc.token, err)
		}
		if p.Role != tc.wantRole {
			t.Fatalf("ResolveRole(%q) role = %s, want %s", tc.token, p.Role, tc.wantRole)
		}
	}
}

func TestResolveRoleParameters(t *testing.T) {
	server, err := ResolveRole("server", "")
	if err != nil {
		t.Fatal(err)
	}
	client, err := ResolveRole("client", "203.0.113.5")
	if err != nil {
		t.Fatal(err)
	}

	if server.TunnelAddress != "10.100.0.1/24" {
		t.Errorf("server address = %s", server.TunnelAddress)
	}
	if client.TunnelAddress != "10.100.0.2/24" {
		t.Errorf("client address = %s", client.TunnelAddress)
	}
	for _, p := range []model.RoleProfile{server, client} {
		if p.MTU != 1280 {
			t.Errorf("%s MTU = %d, want 1280", p.Role, p.MTU)
		}
		if p.ObfsPort != 443 {
			t.Errorf("%s obfs port = %d, want 443", p.Role, p.ObfsPort)
		}
	}
	if client.ServerAddress != "203.0.113.5" {
		t.Errorf("client server address = %s", client.ServerAddress)
	}
	if !server.IsServer() || client.IsServer() {
		t.Error("IsServer mismatch")
	}
}
