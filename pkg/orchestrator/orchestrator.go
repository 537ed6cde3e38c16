package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"time"

	"vortexl2/pkg/diag"
	"vortexl2/pkg/exchange"
	"vortexl2/pkg/forward"
	"vortexl2/pkg/keystore"
	"vortexl2/pkg/model"
	"vortexl2/pkg/profile"
	"vortexl2/pkg/render"
	"vortexl2/pkg/state"
	"vortexl2/pkg/supervisor"
	"vortexl2/pkg/tlscert"
)

// Config is the operator-facing provisioning input. Everything else about the
// tunnel is fixed by the role profile.
type Config struct {
	RoleToken     string
	ServerAddress string
	WstunnelBin   string
	WgQuickBin    string
	TLSSubject    tlscert.Subject
	// ForceRole permits re-provisioning a node into the opposite role. The
	// default refuses a role flip because it silently invalidates the peer's
	// config.
	ForceRole bool
}

// Orchestrator drives the provisioning sequence and owns the wiring between
// keystore, renderer, exchange and supervisor. One per process.
type Orchestrator struct {
	cfg     Config
	profile model.RoleProfile
	store   *state.Store
	ctl     *supervisor.Controller

	keys      keystore.KeyPair
	tlsFiles  tlscert.Material
	exch      *exchange.Manager
	preflight []diag.Result
}

// New returns an unprovisioned Orchestrator. Call Provision before anything
// else.
func New(cfg Config, store *state.Store, ctl *supervisor.Controller) *Orchestrator {
	if cfg.WstunnelBin == "" {
		cfg.WstunnelBin = "wstunnel"
	}
	if cfg.WgQuickBin == "" {
		cfg.WgQuickBin = "wg-quick"
	}
	return &Orchestrator{cfg: cfg, store: store, ctl: ctl}
}

// Provision runs the full bring-up sequence: role resolution, key material,
// TLS material (server), config render, service start, forward restore. It is
// idempotent; a re-run against an already provisioned node reuses every piece
// of persisted state and only re-renders and re-registers.
func (o *Orchestrator) Provision(ctx context.Context) error {
	p, err := profile.ResolveRole(o.cfg.RoleToken, o.cfg.ServerAddress)
	if err != nil {
		return err
	}
	o.profile = p

	node, provisioned, err := o.store.LoadNode()
	if err != nil {
		return err
	}
	if provisioned && node.Role != p.Role {
		if !o.cfg.ForceRole {
			return fmt.Errorf("%w: node is provisioned as %s, refusing role flip to %s (use force)",
				model.ErrInvalidArgument, node.Role, p.Role)
		}
		log.Printf("role flip forced: %s -> %s, discarding peer descriptor", node.Role, p.Role)
		node.Peer = model.PeerDescriptor{}
	}

	ks := keystore.New(filepath.Join(o.store.Root(), "keys"))
	o.keys, err = ks.EnsureKeyPair()
	if err != nil {
		return err
	}

	opts := render.Options{PrivateKey: o.keys.PrivateKey, Peer: node.Peer}
	if p.IsServer() {
		// The preshared key is minted on the server and handed to the client
		// operator out of band, alongside the public key. It only enters a
		// rendered config once both sides submit it through the peer exchange;
		// attaching it here would desync a peer that never received it.
		if _, err := ks.EnsurePresharedKey(); err != nil {
			return err
		}
		o.tlsFiles, err = tlscert.Ensure(filepath.Join(o.store.Root(), "tls"), o.cfg.TLSSubject)
		if err != nil {
			return err
		}
		opts.TLSCertFile = o.tlsFiles.CertFile
		opts.TLSKeyFile = o.tlsFiles.KeyFile
	}

	cfg, err := render.Render(p, opts)
	if err != nil {
		return err
	}
	configPath, err := render.WriteWireGuard(o.store.Root(), cfg)
	if err != nil {
		return err
	}

	if !p.IsServer() {
		o.preflight = diag.Preflight(ctx, p.ServerAddress, p.ObfsPort)
	}

	logDir := filepath.Join(o.store.Root(), "logs")
	o.ctl.Register(model.ServiceObfuscation, &supervisor.ProcessRunner{
		Bin:     o.cfg.WstunnelBin,
		Args:    cfg.WstunnelArgs,
		LogPath: filepath.Join(logDir, "wstunnel.log"),
	})
	o.ctl.Register(model.ServiceEncryption, o.encryptionRunner(configPath))

	// The obfuscation layer comes up first so the encryption layer's
	// handshake has a transport to ride on.
	if err := o.ctl.Start(model.ServiceObfuscation); err != nil {
		return err
	}
	if p.IsServer() || node.Peer.Known() {
		if err := o.ctl.Start(model.ServiceEncryption); err != nil {
			return err
		}
	}

	if !provisioned {
		node.ProvisionedAt = time.Now()
	}
	node.Role = p.Role
	node.ServerAddress = p.ServerAddress
	node.TLSCommonName = o.cfg.TLSSubject.CommonName
	node.TLSOrg = o.cfg.TLSSubject.Organization
	if err := o.store.SaveNode(node); err != nil {
		return err
	}
	if err := o.store.AppendAudit(model.AuditEntry{
		Actor:     "system",
		Action:    "provision",
		Target:    string(p.Role),
		Timestamp: time.Now(),
	}); err != nil {
		log.Printf("audit append failed: %v", err)
	}

	o.exch = exchange.New(p, opts, o.store.Root(), o.store, o.ctl)

	if err := o.restoreForwards(); err != nil {
		return err
	}
	log.Printf("provisioned role=%s publicKey=%s peerKnown=%v", p.Role, o.keys.PublicKey, node.Peer.Known())
	return nil
}

// Exchange returns the peer exchange manager. Nil before Provision.
func (o *Orchestrator) Exchange() *exchange.Manager { return o.exch }

// PublicKey returns the node's encryption-layer public key.
func (o *Orchestrator) PublicKey() string { return o.keys.PublicKey }

// Profile returns the resolved role profile.
func (o *Orchestrator) Profile() model.RoleProfile { return o.profile }

// Preflight returns the client-side connectivity probe results. Empty on the
// server role.
func (o *Orchestrator) Preflight() []diag.Result { return o.preflight }

// AddForward validates, persists and starts one port forward.
func (o *Orchestrator) AddForward(f model.Forward, actor string) error {
	if err := forward.Validate(f); err != nil {
		return err
	}
	if err := o.store.SaveForward(f); err != nil {
		return err
	}
	name := forward.ServiceName(f)
	o.ctl.Register(name, forward.NewRelay(f))
	if err := o.ctl.Start(name); err != nil {
		return err
	}
	if err := o.store.AppendAudit(model.AuditEntry{
		Actor:     actor,
		Action:    "forward_add",
		Target:    name,
		Detail:    fmt.Sprintf("%d -> %s:%d", f.LocalPort, f.TargetHost, f.TargetPort),
		Timestamp: time.Now(),
	}); err != nil {
		log.Printf("audit append failed: %v", err)
	}
	return nil
}

// RemoveForward stops and deletes one port forward. Removing an unknown port
// is a no-op, matching the store's delete semantics.
func (o *Orchestrator) RemoveForward(localPort int, actor string) error {
	name := forward.ServiceName(model.Forward{LocalPort: localPort})
	if err := o.ctl.Stop(name); err != nil {
		// Not registered means it was never started this run; still purge it
		// from the store.
		log.Printf("stop %s: %v", name, err)
	}
	if err := o.store.DeleteForward(localPort); err != nil {
		return err
	}
	if err := o.store.AppendAudit(model.AuditEntry{
		Actor:     actor,
		Action:    "forward_remove",
		Target:    name,
		Timestamp: time.Now(),
	}); err != nil {
		log.Printf("audit append failed: %v", err)
	}
	return nil
}

// Status assembles the node's full observable state.
func (o *Orchestrator) Status() (model.NodeStatus, error) {
	node, _, err := o.store.LoadNode()
	if err != nil {
		return model.NodeStatus{}, err
	}
	forwards, err := o.store.ListForwards()
	if err != nil {
		return model.NodeStatus{}, err
	}
	endpoint := ""
	if node.Peer.Known() && !o.profile.IsServer() {
		endpoint = fmt.Sprintf("%s:%d", o.profile.ServerAddress, o.profile.ObfsPort)
	}
	return model.NodeStatus{
		Role:           o.profile.Role,
		LocalPublicKey: o.keys.PublicKey,
		PeerKnown:      node.Peer.Known(),
		PeerEndpoint:   endpoint,
		Services:       o.ctl.States(),
		Forwards:       forwards,
		Timestamp:      time.Now(),
	}, nil
}

// Shutdown stops every managed service, encryption layer first.
func (o *Orchestrator) Shutdown() {
	o.ctl.StopAll()
}

// restoreForwards re-registers and restarts the persisted forward entries
// after a daemon restart.
func (o *Orchestrator) restoreForwards() error {
	forwards, err := o.store.ListForwards()
	if err != nil {
		return err
	}
	for _, f := range forwards {
		name := forward.ServiceName(f)
		o.ctl.Register(name, forward.NewRelay(f))
		if err := o.ctl.Start(name); err != nil {
			return err
		}
	}
	return nil
}

// encryptionRunner wraps wg-quick so the interface behaves like a long-lived
// service under the supervisor: up on start, torn down on stop.
func (o *Orchestrator) encryptionRunner(configPath string) supervisor.Runner {
	return &supervisor.OneShotRunner{
		Up: func(ctx context.Context) error {
			out, err := exec.CommandContext(ctx, o.cfg.WgQuickBin, "up", configPath).CombinedOutput()
			if err != nil {
				return fmt.Errorf("%s up: %v: %s", o.cfg.WgQuickBin, err, out)
			}
			return nil
		},
		Down: func() error {
			out, err := exec.Command(o.cfg.WgQuickBin, "down", configPath).CombinedOutput()
			if err != nil {
				return fmt.Errorf("%s down: %v: %s", o.cfg.WgQuickBin, err, out)
			}
			return nil
		},
	}
}
