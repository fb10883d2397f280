// Package security provides optional AEAD encryption at rest for asset
// bytes. When enabled, internal blob contents and inline asset bytes are
// wrapped with an aes-gcm envelope keyed by the configured master key.
package security

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"sync"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"github.com/hashicorp/go-kms-wrapping/v2/aead"
	"google.golang.org/protobuf/proto"
)

var (
	mu      sync.RWMutex
	wrapper *aead.Wrapper
)

// SetMasterKeyHex installs the AES-256 master key from a hex string. An
// empty string disables encryption.
func SetMasterKeyHex(hexKey string) error {
	if hexKey == "" {
		mu.Lock()
		wrapper = nil
		mu.Unlock()
		return nil
	}
	b, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return err
	}
	if len(b) != 32 {
		return errors.New("encryption key must be 32 bytes (AES-256)")
	}
	w := aead.NewWrapper()
	if _, err := w.SetConfig(context.Background(), wrapping.WithKeyId("root")); err != nil {
		return err
	}
	if err := w.SetAesGcmKeyBytes(b); err != nil {
		return err
	}
	mu.Lock()
	wrapper = w
	mu.Unlock()
	return nil
}

// SetMasterKeyFile installs the master key from a file containing the hex
// string.
func SetMasterKeyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return SetMasterKeyHex(strings.TrimSpace(string(b)))
}

// EncryptionEnabled reports whether a master key is installed.
func EncryptionEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return wrapper != nil
}

// EncryptBytes wraps plaintext into a serialized envelope. When encryption
// is disabled the plaintext is returned unchanged.
func EncryptBytes(pt []byte) ([]byte, error) {
	mu.RLock()
	w := wrapper
	mu.RUnlock()
	if w == nil {
		return pt, nil
	}
	blob, err := w.Encrypt(context.Background(), pt)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(blob)
}

// DecryptBytes unwraps a serialized envelope produced by EncryptBytes.
// When encryption is disabled the input is returned unchanged.
func DecryptBytes(ct []byte) ([]byte, error) {
	mu.RLock()
	w := wrapper
	mu.RUnlock()
	if w == nil {
		return ct, nil
	}
	var blob wrapping.BlobInfo
	if err := proto.Unmarshal(ct, &blob); err != nil {
		return nil, err
	}
	return w.Decrypt(context.Background(), &blob)
}
