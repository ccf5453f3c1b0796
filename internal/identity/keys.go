package identity

import (
	"crypto/ed25519"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
)

const (
	// PublicKeyDERSize is the PKIX DER length of an Ed25519 public key.
	PublicKeyDERSize = 44
	SignatureSize    = ed25519.SignatureSize
)

var (
	ErrPublicKeySize = errors.New("identity: public key has wrong DER size")
	ErrNotEd25519    = errors.New("identity: key is not ed25519")
	ErrBadSignature  = errors.New("identity: signature verification failed")
)

// KeyPair is an agent's signing identity.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey

	der     []byte
	address string
}

// GenerateKeyPair creates a key pair from rand (crypto/rand when nil).
func GenerateKeyPair(rand io.Reader) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return newKeyPair(priv, pub)
}

// KeyPairFromPrivate rebuilds a key pair from its private half.
func KeyPairFromPrivate(priv ed25519.PrivateKey) (*KeyPair, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrNotEd25519
	}
	return newKeyPair(priv, priv.Public().(ed25519.PublicKey))
}

func newKeyPair(priv ed25519.PrivateKey, pub ed25519.PublicKey) (*KeyPair, error) {
	der, err := MarshalPublicKeyDER(pub)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		Public:  pub,
		Private: priv,
		der:     der,
		address: DeriveAddress(der),
	}, nil
}

// PublicKeyDER returns a copy of the DER-encoded public key.
func (k *KeyPair) PublicKeyDER() []byte {
	out := make([]byte, len(k.der))
	copy(out, k.der)
	return out
}

func (k *KeyPair) Address() string {
	return k.address
}

// Sign signs msg exactly as given.
func (k *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.Private, msg)
}

func MarshalPublicKeyDER(pub ed25519.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal public key: %w", err)
	}
	if len(der) != PublicKeyDERSize {
		return nil, fmt.Errorf("%w: %d", ErrPublicKeySize, len(der))
	}
	return der, nil
}

func ParsePublicKeyDER(der []byte) (ed25519.PublicKey, error) {
	if len(der) != PublicKeyDERSize {
		return nil, fmt.Errorf("%w: %d", ErrPublicKeySize, len(der))
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("identity: parse public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return pub, nil
}

// Verify checks sig against the exact msg bytes using a DER public key.
func Verify(der, msg, sig []byte) error {
	pub, err := ParsePublicKeyDER(der)
	if err != nil {
		return err
	}
	if len(sig) != SignatureSize || !ed25519.Verify(pub, msg, sig) {
		return ErrBadSignature
	}
	return nil
}
