package exchange

import (
	"fmt"
	"log"
	"sync"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"vortexl2/pkg/model"
	"vortexl2/pkg/render"
	"vortexl2/pkg/state"
)

// Restarter bounces a single managed service. Implemented by the supervisor
// controller.
type Restarter interface {
	Restart(name string) error
}

// Manager owns the peer descriptor and the apply cycle that follows every
// change to it: validate, persist, re-render, restart the encryption layer.
// One mutex serializes the whole cycle so two concurrent submissions can
// never interleave a render with a restart.
type Manager struct {
	mu sync.Mutex

	profile   model.RoleProfile
	opts      render.Options
	configDir string
	store     *state.Store
	ctl       Restarter
}

// New returns a Manager. opts carries the local private key and, for the
// server role, the TLS material paths; its Peer field is overwritten on each
// apply.
func New(profile model.RoleProfile, opts render.Options, configDir string, store *state.Store, ctl Restarter) *Manager {
	return &Manager{
		profile:   profile,
		opts:      opts,
		configDir: configDir,
		store:     store,
		ctl:       ctl,
	}
}

// Peer returns the last accepted descriptor. known is false while the node is
// still awaiting its peer.
func (m *Manager) Peer() (model.PeerDescriptor, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok, err := m.store.LoadNode()
	if err != nil || !ok {
		return model.PeerDescriptor{}, false, err
	}
	return node.Peer, node.Peer.Known(), nil
}

// SubmitPeer accepts (or replaces, on key rotation) the remote descriptor and
// runs the full apply cycle. Returns only after the new config is on disk and
// the encryption layer has been asked to pick it up.
func (m *Manager) SubmitPeer(desc model.PeerDescriptor, actor string) error {
	if err := validate(desc, m.opts.PrivateKey); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	node, _, err := m.store.LoadNode()
	if err != nil {
		return err
	}
	rotation := node.Peer.Known()

	opts := m.opts
	opts.Peer = desc
	cfg, err := render.Render(m.profile, opts)
	if err != nil {
		return err
	}
	if _, err := render.WriteWireGuard(m.configDir, cfg); err != nil {
		return err
	}

	node.Peer = desc
	if err := m.store.SaveNode(node); err != nil {
		return err
	}
	if err := m.store.AppendAudit(model.AuditEntry{
		Actor:     actor,
		Action:    auditAction(rotation),
		Target:    string(m.profile.Role),
		Detail:    "peer " + desc.PublicKey,
		Timestamp: time.Now(),
	}); err != nil {
		log.Printf("audit append failed: %v", err)
	}

	if err := m.ctl.Restart(model.ServiceEncryption); err != nil {
		return err
	}
	log.Printf("peer applied role=%s rotation=%v", m.profile.Role, rotation)
	return nil
}

func auditAction(rotation bool) string {
	if rotation {
		return "peer_rotate"
	}
	return "peer_set"
}

// validate checks the descriptor before any state is touched. A descriptor
// that would render fine but carries our own public key is rejected too;
// peering a node with itself is always an operator mistake.
func validate(desc model.PeerDescriptor, localPrivate string) error {
	if !desc.Known() {
		return fmt.Errorf("%w: peer public key is required", model.ErrInvalidArgument)
	}
	pub, err := wgtypes.ParseKey(desc.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: peer public key: %v", model.ErrInvalidArgument, err)
	}
	if desc.PresharedKey != "" {
		if _, err := wgtypes.ParseKey(desc.PresharedKey); err != nil {
			return fmt.Errorf("%w: preshared key: %v", model.ErrInvalidArgument, err)
		}
	}
	if desc.Keepalive < 0 {
		return fmt.Errorf("%w: keepalive must not be negative", model.ErrInvalidArgument)
	}
	if localPrivate != "" {
		priv, err := wgtypes.ParseKey(localPrivate)
		if err == nil && priv.PublicKey() == pub {
			return fmt.Errorf("%w: peer public key is this node's own key", model.ErrInvalidArgument)
		}
	}
	return nil
}
