//go:build consul

package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	consulapi "github.com/hashicorp/consul/api"

	"vortexl2/pkg/model"
)

const rendezvousPrefix = "vortexl2/rendezvous/"

// consulRendezvous keeps each role's public key in the Consul KV store
// (requires build tag consul).
type consulRendezvous struct {
	cli  *consulapi.Client
	poll time.Duration
}

// NewConsulRendezvous connects to the Consul agent at addr, or the default
// agent when addr is empty.
func NewConsulRendezvous(addr string) (Rendezvous, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &consulRendezvous{cli: cli, poll: 2 * time.Second}, nil
}

func (r *consulRendezvous) Publish(role model.NodeRole, publicKey string) error {
	key := rendezvousPrefix + string(role) + "/pubkey"
	_, err := r.cli.KV().Put(&consulapi.KVPair{Key: key, Value: []byte(publicKey)}, nil)
	return err
}

func (r *consulRendezvous) AwaitPeer(ctx context.Context, localRole model.NodeRole) (string, error) {
	key := rendezvousPrefix + string(peerRole(localRole)) + "/pubkey"
	for {
		kv, _, err := r.cli.KV().Get(key, nil)
		if err == nil && kv != nil {
			if v := strings.TrimSpace(string(kv.Value)); v != "" {
				return v, nil
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.poll):
		}
	}
}
