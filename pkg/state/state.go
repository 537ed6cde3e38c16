package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vortexl2/pkg/model"
)

const nodeFileName = "node.json"

// NodeState is the on-disk document that makes re-provisioning idempotent:
// the role marker, the obfuscation endpoint (client only) and the peer
// descriptor as last accepted by the exchange.
type NodeState struct {
	Role          model.NodeRole       `json:"role"`
	ServerAddress string               `json:"serverAddress,omitempty"`
	Peer          model.PeerDescriptor `json:"peer"`
	TLSCommonName string               `json:"tlsCommonName,omitempty"`
	TLSOrg        string               `json:"tlsOrg,omitempty"`
	ProvisionedAt time.Time            `json:"provisionedAt"`
}

// LoadNode reads the node document. ok is false when the node has never been
// provisioned.
func (s *Store) LoadNode() (NodeState, bool, error) {
	path := filepath.Join(s.root, nodeFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NodeState{}, false, nil
	}
	if err != nil {
		return NodeState{}, false, fmt.Errorf("%w: read %s: %v", model.ErrStorage, path, err)
	}
	var n NodeState
	if err := json.Unmarshal(data, &n); err != nil {
		return NodeState{}, false, fmt.Errorf("%w: decode %s: %v", model.ErrStorage, path, err)
	}
	return n, true, nil
}

// SaveNode persists the node document atomically with owner-only access (the
// peer descriptor may carry a preshared key).
func (s *Store) SaveNode(n NodeState) error {
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode node state: %v", model.ErrStorage, err)
	}
	path := filepath.Join(s.root, nodeFileName)
	tmp, err := os.CreateTemp(s.root, ".node-*")
	if err != nil {
		return fmt.Errorf("%w: create temp state file: %v", model.ErrStorage, err)
	}
	name := tmp.Name()
	werr := tmp.Chmod(0o600)
	if werr == nil {
		_, werr = tmp.Write(append(data, '\n'))
	}
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(name, path)
	}
	if werr != nil {
		os.Remove(name)
		return fmt.Errorf("%w: write %s: %v", model.ErrStorage, path, werr)
	}
	return nil
}
