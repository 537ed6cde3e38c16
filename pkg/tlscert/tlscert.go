package tlscert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"vortexl2/pkg/model"
)

const (
	certFileName = "server.crt"
	keyFileName  = "server.key"

	validity = 365 * 24 * time.Hour
)

// Subject is the operator-supplied identity embedded in the obfuscation
// listener's certificate. TLS here provides traffic shape, not authenticity,
// so the subject is a presentation choice and never hard-coded.
type Subject struct {
	CommonName   string
	Organization string
}

// Material points at the PEM files the obfuscation server is started with.
type Material struct {
	CertFile string
	KeyFile  string
}

// Ensure loads the existing self-signed certificate under dir or mints a new
// ECDSA P-256 one with the given subject. Idempotent: an existing pair is
// returned untouched even if the requested subject differs (rotation is an
// explicit operator action: delete the files and re-run).
func Ensure(dir string, subj Subject) (Material, error) {
	m := Material{
		CertFile: filepath.Join(dir, certFileName),
		KeyFile:  filepath.Join(dir, keyFileName),
	}
	if fileExists(m.CertFile) && fileExists(m.KeyFile) {
		return m, nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Material{}, fmt.Errorf("%w: mkdir %s: %v", model.ErrStorage, dir, err)
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Material{}, fmt.Errorf("%w: generate tls key: %v", model.ErrCrypto, err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return Material{}, fmt.Errorf("%w: generate serial: %v", model.ErrCrypto, err)
	}

	cn := subj.CommonName
	if cn == "" {
		if host, herr := os.Hostname(); herr == nil {
			cn = host
		} else {
			cn = "localhost"
		}
	}
	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{cn},
	}
	if subj.Organization != "" {
		tmpl.Subject.Organization = []string{subj.Organization}
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return Material{}, fmt.Errorf("%w: create certificate: %v", model.ErrCrypto, err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return Material{}, fmt.Errorf("%w: marshal tls key: %v", model.ErrCrypto, err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	if err := writeAtomic(m.KeyFile, keyPEM, 0o600); err != nil {
		return Material{}, err
	}
	if err := writeAtomic(m.CertFile, certPEM, 0o644); err != nil {
		os.Remove(m.KeyFile)
		return Material{}, err
	}
	return m, nil
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".cert-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", model.ErrStorage, err)
	}
	name := tmp.Name()
	err = tmp.Chmod(perm)
	if err == nil {
		_, err = tmp.Write(data)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(name, path)
	}
	if err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: write %s: %v", model.ErrStorage, path, err)
	}
	return nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
