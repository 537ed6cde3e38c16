package render

import (
	"fmt"
	"os"
	"path/filepath"

	"vortexl2/pkg/model"
)

// WireGuardConfigName is the rendered interface config file name.
const WireGuardConfigName = "wg0.conf"

// WriteWireGuard persists the rendered interface config atomically: the
// content lands in a temp file first and is renamed into place, so a consumer
// never observes a partially written config.
func WriteWireGuard(dir string, cfg TunnelConfig) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("%w: mkdir %s: %v", model.ErrStorage, dir, err)
	}
	path := filepath.Join(dir, WireGuardConfigName)
	tmp, err := os.CreateTemp(dir, ".wg-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp config: %v", model.ErrStorage, err)
	}
	name := tmp.Name()
	err = tmp.Chmod(0o600)
	if err == nil {
		_, err = tmp.WriteString(cfg.WireGuard)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(name, path)
	}
	if err != nil {
		os.Remove(name)
		return "", fmt.Errorf("%w: write %s: %v", model.ErrStorage, path, err)
	}
	return path, nil
}
