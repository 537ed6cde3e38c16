package exchange

import (
	"context"
	"fmt"
	"log"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"vortexl2/pkg/model"
)

// Rendezvous exchanges public keys through a shared store so the two
// operators do not have to copy them between hosts by hand. Only public keys
// travel through it.
type Rendezvous interface {
	// Publish stores the local public key under the local role.
	Publish(role model.NodeRole, publicKey string) error
	// AwaitPeer blocks until the opposite role's key appears or ctx ends.
	AwaitPeer(ctx context.Context, localRole model.NodeRole) (string, error)
}

// RunRendezvous publishes the local key, waits for the far side's and feeds
// it through the normal submit path with a default descriptor. Preshared keys
// never travel through the rendezvous store; they stay an out-of-band step.
func (m *Manager) RunRendezvous(ctx context.Context, rdv Rendezvous) error {
	pub, err := localPublicKey(m.opts.PrivateKey)
	if err != nil {
		return err
	}
	if err := rdv.Publish(m.profile.Role, pub); err != nil {
		return fmt.Errorf("publish local key: %w", err)
	}
	log.Printf("rendezvous: published key for role=%s, waiting for peer", m.profile.Role)
	peerKey, err := rdv.AwaitPeer(ctx, m.profile.Role)
	if err != nil {
		return fmt.Errorf("await peer key: %w", err)
	}
	return m.SubmitPeer(model.PeerDescriptor{PublicKey: peerKey}, "rendezvous")
}

func localPublicKey(private string) (string, error) {
	priv, err := wgtypes.ParseKey(private)
	if err != nil {
		return "", fmt.Errorf("%w: local private key: %v", model.ErrCrypto, err)
	}
	return priv.PublicKey().String(), nil
}

// peerRole returns the opposite end of the pair.
func peerRole(role model.NodeRole) model.NodeRole {
	if role == model.RoleServer {
		return model.RoleClient
	}
	return model.RoleServer
}
