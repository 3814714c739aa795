package auth

import "errors"

// Missing and invalid keys map to UNAUTHENTICATED, which does not confirm
// the key exists. Revoked keys map to PERMISSION_DENIED. Store failures
// wrap ErrUnavailable and map to UNAVAILABLE.
var (
	ErrMissingKey       = errors.New("API key required in x-api-key metadata")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
	ErrUnavailable      = errors.New("key store unavailable")
)
