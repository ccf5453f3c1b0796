// Package packet frames netvend requests and responses on a byte stream.
//
// Ownership boundary:
// - the one-byte packet tag and per-type fixed layouts
// - handshake and command-batch responses
// - signing a batch into a CommandBatch packet
package packet

import (
	"errors"
	"fmt"
	"io"

	"github.com/Syriven/netvend/internal/identity"
	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/protocol/wire"
)

// Tag identifies the packet type.
type Tag uint8

const (
	TagHandshake    Tag = 'H'
	TagCommandBatch Tag = 'C'

	MaxBatchPayload = wire.MaxLen16
)

var (
	ErrShortRead       = errors.New("packet: short read")
	ErrUnknownTag      = errors.New("packet: unknown packet tag")
	ErrPayloadTooLarge = errors.New("packet: batch payload exceeds 16-bit length")
	ErrSignatureSize   = errors.New("packet: signature has wrong size")
	ErrPublicKeySize   = errors.New("packet: public key has wrong size")
)

func (t Tag) String() string {
	switch t {
	case TagHandshake:
		return "handshake"
	case TagCommandBatch:
		return "command_batch"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Packet is a client request. The base contributes only the tag.
type Packet interface {
	Tag() Tag
	appendBody(w *wire.Writer) error
}

// Handshake registers a public key and learns the default pocket.
type Handshake struct {
	PublicKeyDER []byte
}

// CommandBatch carries a serialized batch signed by Address.
type CommandBatch struct {
	Address   string
	Payload   []byte
	Signature []byte
}

func (Handshake) Tag() Tag    { return TagHandshake }
func (CommandBatch) Tag() Tag { return TagCommandBatch }

func (p Handshake) appendBody(w *wire.Writer) error {
	if len(p.PublicKeyDER) != identity.PublicKeyDERSize {
		return fmt.Errorf("%w: %d", ErrPublicKeySize, len(p.PublicKeyDER))
	}
	w.Raw(p.PublicKeyDER)
	return nil
}

func (p CommandBatch) appendBody(w *wire.Writer) error {
	if len(p.Payload) > MaxBatchPayload {
		return fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(p.Payload))
	}
	if len(p.Signature) != identity.SignatureSize {
		return fmt.Errorf("%w: %d", ErrSignatureSize, len(p.Signature))
	}
	if _, err := w.Fixed([]byte(p.Address), identity.MaxAddressSize); err != nil {
		return fmt.Errorf("packet: address: %w", err)
	}
	w.Uint16(uint16(len(p.Payload)))
	w.Raw(p.Payload)
	w.Raw(p.Signature)
	return nil
}

// NewCommandBatch serializes b and signs the exact bytes with k.
func NewCommandBatch(k *identity.KeyPair, b *protocol.Batch) (CommandBatch, error) {
	payload, err := b.Encode()
	if err != nil {
		return CommandBatch{}, err
	}
	if len(payload) > MaxBatchPayload {
		return CommandBatch{}, fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(payload))
	}
	return CommandBatch{
		Address:   k.Address(),
		Payload:   payload,
		Signature: k.Sign(payload),
	}, nil
}

// Batch decodes the carried payload.
func (p CommandBatch) Batch() (*protocol.Batch, error) {
	return protocol.DecodeBatch(p.Payload)
}

// Encode returns the full wire form of p, tag included.
func Encode(p Packet) ([]byte, error) {
	w := wire.NewWriter(128)
	w.Uint8(uint8(p.Tag()))
	if err := p.appendBody(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// WritePacket writes p in a single Write call.
func WritePacket(w io.Writer, p Packet) error {
	buf, err := Encode(p)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadPacket reads the tag and then the body of the matching type.
func ReadPacket(r io.Reader) (Packet, error) {
	var tag [1]byte
	if err := readFull(r, tag[:]); err != nil {
		return nil, err
	}
	switch Tag(tag[0]) {
	case TagHandshake:
		der := make([]byte, identity.PublicKeyDERSize)
		if err := readFull(r, der); err != nil {
			return nil, err
		}
		return Handshake{PublicKeyDER: der}, nil
	case TagCommandBatch:
		head := make([]byte, identity.MaxAddressSize+2)
		if err := readFull(r, head); err != nil {
			return nil, err
		}
		c := wire.NewCursor(head)
		addr, _ := c.FixedString(identity.MaxAddressSize)
		size, _ := c.Uint16()
		payload := make([]byte, size)
		if err := readFull(r, payload); err != nil {
			return nil, err
		}
		sig := make([]byte, identity.SignatureSize)
		if err := readFull(r, sig); err != nil {
			return nil, err
		}
		return CommandBatch{Address: addr, Payload: payload, Signature: sig}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, tag[0])
	}
}

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %w", ErrShortRead, err)
		}
		return err
	}
	return nil
}
