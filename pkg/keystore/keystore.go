package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"vortexl2/pkg/model"
)

const (
	keyFileName = "wg.key"
	pskFileName = "wg.psk"
)

// KeyPair holds the node's encryption-layer identity. The private key never
// leaves the keystore directory except to be embedded in the rendered
// interface config (itself written 0600).
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// Store persists key material under dir with owner-only access.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. The directory is created on first use.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// EnsureKeyPair loads the existing private key or generates a fresh one.
// Calling it twice against the same directory returns identical material.
func (s *Store) EnsureKeyPair() (KeyPair, error) {
	path := filepath.Join(s.dir, keyFileName)
	if data, err := os.ReadFile(path); err == nil {
		priv, err := wgtypes.ParseKey(strings.TrimSpace(string(data)))
		if err != nil {
			return KeyPair{}, fmt.Errorf("%w: stored private key is corrupt: %v", model.ErrCrypto, err)
		}
		return KeyPair{PrivateKey: priv.String(), PublicKey: priv.PublicKey().String()}, nil
	} else if !os.IsNotExist(err) {
		return KeyPair{}, fmt.Errorf("%w: read %s: %v", model.ErrStorage, path, err)
	}

	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: generate private key: %v", model.ErrCrypto, err)
	}
	if err := s.writeSecret(path, priv.String()); err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PrivateKey: priv.String(), PublicKey: priv.PublicKey().String()}, nil
}

// EnsurePresharedKey loads or generates the optional symmetric key layered
// into the handshake. Same idempotence contract as EnsureKeyPair.
func (s *Store) EnsurePresharedKey() (string, error) {
	path := filepath.Join(s.dir, pskFileName)
	if data, err := os.ReadFile(path); err == nil {
		psk, err := wgtypes.ParseKey(strings.TrimSpace(string(data)))
		if err != nil {
			return "", fmt.Errorf("%w: stored preshared key is corrupt: %v", model.ErrCrypto, err)
		}
		return psk.String(), nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("%w: read %s: %v", model.ErrStorage, path, err)
	}

	psk, err := wgtypes.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("%w: generate preshared key: %v", model.ErrCrypto, err)
	}
	if err := s.writeSecret(path, psk.String()); err != nil {
		return "", err
	}
	return psk.String(), nil
}

// writeSecret persists a key via temp file + rename so a failed write never
// leaves a partial key on disk.
func (s *Store) writeSecret(path, value string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", model.ErrStorage, s.dir, err)
	}
	tmp, err := os.CreateTemp(s.dir, ".key-*")
	if err != nil {
		return fmt.Errorf("%w: create temp key file: %v", model.ErrStorage, err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod key file: %v", model.ErrStorage, err)
	}
	if _, err := tmp.WriteString(value + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write key file: %v", model.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close key file: %v", model.ErrStorage, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename key file: %v", model.ErrStorage, err)
	}
	return nil
}
