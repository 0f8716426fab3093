// Package credentials stores user-supplied API tokens keyed by a logical
// name. Secrets are reversibly transformed before they reach the storage
// medium so they are never visible as plain substrings in a storage dump.
//
// This is obfuscation, not cryptographic protection: the transform is a
// fixed-key XOR and anyone with this source can reverse it. A production
// deployment must replace it with authenticated encryption, an OS keychain,
// or server-side-only storage.
package credentials

import (
	"encoding/base64"
	"errors"
	"log"
	"strings"

	"design-proxy/internal/storage"
	"design-proxy/pkg/utils"
)

const (
	storagePrefix = "credential:"
	envelopeV1    = "v1:"
)

// obfuscationKey only hides secrets from casual inspection. See package doc.
var obfuscationKey = []byte("design-proxy-credential-pad")

var errMalformedEnvelope = errors.New("malformed credential envelope")

// Store persists obfuscated credentials in an injected storage backend.
// No other component writes raw secrets anywhere.
type Store struct {
	backend storage.Store
}

// NewStore returns a credential store over the given backend.
func NewStore(backend storage.Store) *Store {
	return &Store{backend: backend}
}

// Store obfuscates and persists a secret under the given logical name.
func (s *Store) Store(name, secret string) error {
	return s.backend.Set(storagePrefix+name, obfuscate(secret))
}

// Retrieve returns the secret stored under name. Missing or unreadable
// entries yield ok=false rather than an error; unreadable entries are
// logged without the stored value.
func (s *Store) Retrieve(name string) (string, bool) {
	blob, ok, err := s.backend.Get(storagePrefix + name)
	if err != nil {
		log.Printf("credential %q: storage read failed: %v", name, err)
		return "", false
	}
	if !ok {
		return "", false
	}

	secret, err := deobfuscate(blob)
	if err != nil {
		log.Printf("credential %q: stored value unreadable (%v), masked blob: %s",
			name, err, utils.MaskToken(blob))
		return "", false
	}
	return secret, true
}

// Remove deletes the secret stored under name.
func (s *Store) Remove(name string) error {
	return s.backend.Remove(storagePrefix + name)
}

func obfuscate(secret string) string {
	raw := []byte(secret)
	for i := range raw {
		raw[i] ^= obfuscationKey[i%len(obfuscationKey)]
	}
	return envelopeV1 + base64.StdEncoding.EncodeToString(raw)
}

func deobfuscate(blob string) (string, error) {
	if !strings.HasPrefix(blob, envelopeV1) {
		return "", errMalformedEnvelope
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(blob, envelopeV1))
	if err != nil {
		return "", errMalformedEnvelope
	}
	for i := range raw {
		raw[i] ^= obfuscationKey[i%len(obfuscationKey)]
	}
	return string(raw), nil
}
