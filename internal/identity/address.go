package identity

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

const (
	AddressVersion byte = 61
	MaxAddressSize      = 34
	checksumLen         = 4
)

var (
	ErrBadChecksum    = errors.New("identity: base58check checksum mismatch")
	ErrBadAddress     = errors.New("identity: malformed address")
	ErrAddressVersion = errors.New("identity: unexpected address version")
)

// DeriveAddress hashes a DER public key into an agent address.
func DeriveAddress(der []byte) string {
	return EncodeCheck(AddressVersion, Hash160(der))
}

// Hash160 is RIPEMD160 over the input bytes.
func Hash160(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)
	return h.Sum(nil)
}

// EncodeCheck is Base58Check: version || payload || sha256d checksum.
func EncodeCheck(version byte, payload []byte) string {
	body := make([]byte, 0, 1+len(payload)+checksumLen)
	body = append(body, version)
	body = append(body, payload...)
	body = append(body, checksum(body)...)
	return base58.Encode(body)
}

func DecodeCheck(s string) (byte, []byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	if len(raw) < 1+checksumLen {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrBadAddress, len(raw))
	}
	body, sum := raw[:len(raw)-checksumLen], raw[len(raw)-checksumLen:]
	if !bytes.Equal(checksum(body), sum) {
		return 0, nil, ErrBadChecksum
	}
	return body[0], body[1:], nil
}

// ValidateAddress checks length, checksum and version of an agent address.
func ValidateAddress(addr string) error {
	if addr == "" || len(addr) > MaxAddressSize {
		return fmt.Errorf("%w: length %d", ErrBadAddress, len(addr))
	}
	version, payload, err := DecodeCheck(addr)
	if err != nil {
		return err
	}
	if version != AddressVersion {
		return fmt.Errorf("%w: %d", ErrAddressVersion, version)
	}
	if len(payload) != ripemd160.Size {
		return fmt.Errorf("%w: payload %d bytes", ErrBadAddress, len(payload))
	}
	return nil
}

func checksum(body []byte) []byte {
	first := sha256.Sum256(body)
	second := sha256.Sum256(first[:])
	return second[:checksumLen]
}
