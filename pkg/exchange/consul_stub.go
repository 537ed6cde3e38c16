//go:build !consul

package exchange

import (
	"fmt"
	"log"

	"vortexl2/pkg/model"
)

// NewConsulRendezvous fails when the consul build tag is not enabled; the
// operator falls back to submitting the peer key over the management API.
func NewConsulRendezvous(addr string) (Rendezvous, error) {
	log.Printf("consul rendezvous requested (addr=%s) but consul build tag not enabled", addr)
	return nil, fmt.Errorf("%w: consul rendezvous requires the consul build tag", model.ErrInvalidArgument)
}
