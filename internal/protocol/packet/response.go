package packet

import (
	"fmt"
	"io"

	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/protocol/wire"
)

// HandshakeResponse answers a Handshake. DefaultPocketID is only
// meaningful when IsNewAgent is set.
type HandshakeResponse struct {
	IsNewAgent      bool
	DefaultPocketID uint32
}

const handshakeResponseSize = 1 + 4

func WriteHandshakeResponse(w io.Writer, resp HandshakeResponse) error {
	buf := wire.NewWriter(handshakeResponseSize)
	buf.Bool(resp.IsNewAgent)
	buf.Uint32(resp.DefaultPocketID)
	_, err := w.Write(buf.Bytes())
	return err
}

func ReadHandshakeResponse(r io.Reader) (HandshakeResponse, error) {
	raw := make([]byte, handshakeResponseSize)
	if err := readFull(r, raw); err != nil {
		return HandshakeResponse{}, err
	}
	c := wire.NewCursor(raw)
	isNew, _ := c.Bool()
	pocket, _ := c.Uint32()
	return HandshakeResponse{IsNewAgent: isNew, DefaultPocketID: pocket}, nil
}

// Completion reports how much of a batch the server attempted.
type Completion uint8

const (
	CompletionNone Completion = 0
	CompletionSome Completion = 1
	CompletionAll  Completion = 2
)

func (c Completion) String() string {
	switch c {
	case CompletionNone:
		return "none"
	case CompletionSome:
		return "some"
	case CompletionAll:
		return "all"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// CommandBatchResponse carries the encoded ResultBatch. It is kept as
// bytes because only the originating Batch can give them meaning.
type CommandBatchResponse struct {
	Completion Completion
	Results    []byte
}

var emptyResultBatch = []byte{0}

func NewCommandBatchResponse(completion Completion, rb *protocol.ResultBatch) (CommandBatchResponse, error) {
	if rb == nil {
		return CommandBatchResponse{Completion: completion, Results: emptyResultBatch}, nil
	}
	raw, err := rb.Encode()
	if err != nil {
		return CommandBatchResponse{}, err
	}
	return CommandBatchResponse{Completion: completion, Results: raw}, nil
}

// Decode reads the results against the batch that was sent.
func (r CommandBatchResponse) Decode(b *protocol.Batch) (*protocol.ResultBatch, error) {
	return protocol.DecodeResultBatch(r.Results, b)
}

func WriteCommandBatchResponse(w io.Writer, resp CommandBatchResponse) error {
	if len(resp.Results) > wire.MaxLen16 {
		return fmt.Errorf("%w: results %d", ErrPayloadTooLarge, len(resp.Results))
	}
	buf := wire.NewWriter(3 + len(resp.Results))
	buf.Uint8(uint8(resp.Completion))
	if _, err := buf.Bytes16(resp.Results); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func ReadCommandBatchResponse(r io.Reader) (CommandBatchResponse, error) {
	head := make([]byte, 3)
	if err := readFull(r, head); err != nil {
		return CommandBatchResponse{}, err
	}
	c := wire.NewCursor(head)
	completion, _ := c.Uint8()
	size, _ := c.Uint16()
	results := make([]byte, size)
	if err := readFull(r, results); err != nil {
		return CommandBatchResponse{}, err
	}
	return CommandBatchResponse{Completion: Completion(completion), Results: results}, nil
}
