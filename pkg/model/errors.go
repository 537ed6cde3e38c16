package model

import "errors"

// Provisioning error taxonomy. Callers wrap these with fmt.Errorf("...: %w", err)
// and classify with errors.Is.
var (
	// ErrInvalidArgument covers bad role tokens, missing server addresses and
	// malformed peer keys. Fatal before any state is mutated.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorage covers unreadable/unwritable persistent state. Fatal for the
	// affected step; completed steps keep their results.
	ErrStorage = errors.New("storage error")

	// ErrCrypto covers key or certificate generation failures. No partial key
	// files may remain on disk when this is returned.
	ErrCrypto = errors.New("crypto error")

	// ErrConfigRender marks a state-consistency bug, e.g. rendering a connected
	// peer section without a known public key. Never downgraded to a warning.
	ErrConfigRender = errors.New("config render error")

	// ErrServiceProcess marks a managed process that crashed past the retry
	// threshold or exited with a configuration problem.
	ErrServiceProcess = errors.New("service process error")
)
