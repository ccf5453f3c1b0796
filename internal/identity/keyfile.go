package identity

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

const pemBlockType = "PRIVATE KEY"

var ErrKeyFileFormat = errors.New("identity: key file is not a PKCS#8 PEM private key")

// WriteKeyFile stores the private key as PKCS#8 PEM with owner-only mode.
func WriteKeyFile(path string, k *KeyPair, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("identity: key file already exists: %s", path)
		}
	}
	der, err := x509.MarshalPKCS8PrivateKey(k.Private)
	if err != nil {
		return fmt.Errorf("identity: marshal private key: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: pemBlockType, Bytes: der})
	return os.WriteFile(path, data, 0o600)
}

func ReadKeyFile(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read key file (%s): %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemBlockType {
		return nil, ErrKeyFileFormat
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFileFormat, err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return KeyPairFromPrivate(priv)
}
