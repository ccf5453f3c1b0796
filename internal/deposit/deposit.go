// Package deposit issues external payment addresses for pockets.
//
// The server treats addresses as opaque strings. Derived produces
// well-formed Base58Check pay-to-pubkey-hash addresses from a keyed
// hash so that an operator holding the seed can reproduce the mapping
// offline and watch the chain for payments.
package deposit

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/Syriven/netvend/internal/identity"
)

type Provider interface {
	NewDepositAddress(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (string, error)

func (f ProviderFunc) NewDepositAddress(ctx context.Context) (string, error) { return f(ctx) }

const (
	VersionMainnet byte = 0x00
	VersionTestnet byte = 0x6f
)

var ErrUnknownNetwork = errors.New("deposit: unknown network")

// NetworkVersion maps a network name onto its address version byte.
func NetworkVersion(network string) (byte, error) {
	switch strings.ToLower(strings.TrimSpace(network)) {
	case "", "mainnet":
		return VersionMainnet, nil
	case "testnet", "regtest":
		return VersionTestnet, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
	}
}

// Derived hashes (session nonce, counter) under a keyed BLAKE3 and
// encodes the RIPEMD160 of that digest as an address. The nonce is fresh
// per process, so restarts never repeat an address.
type Derived struct {
	version byte
	nonce   uuid.UUID

	mu      sync.Mutex
	hasher  *blake3.Hasher
	counter uint64
}

// NewDerived builds a provider. An empty seed draws a random key.
func NewDerived(seed string, network string) (*Derived, error) {
	version, err := NetworkVersion(network)
	if err != nil {
		return nil, err
	}
	var key [32]byte
	if seed == "" {
		if _, err := rand.Read(key[:]); err != nil {
			return nil, fmt.Errorf("deposit: seed: %w", err)
		}
	} else {
		key = blake3.Sum256([]byte(seed))
	}
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		return nil, fmt.Errorf("deposit: keyed hasher: %w", err)
	}
	return &Derived{version: version, nonce: uuid.New(), hasher: hasher}, nil
}

func (d *Derived) NewDepositAddress(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	d.counter++
	var msg [16 + 8]byte
	copy(msg[:16], d.nonce[:])
	binary.BigEndian.PutUint64(msg[16:], d.counter)
	d.hasher.Reset()
	_, _ = d.hasher.Write(msg[:])
	digest := d.hasher.Sum(nil)
	d.mu.Unlock()

	return identity.EncodeCheck(d.version, identity.Hash160(digest)), nil
}

// Issued reports how many addresses this provider has handed out.
func (d *Derived) Issued() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counter
}
