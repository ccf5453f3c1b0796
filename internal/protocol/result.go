package protocol

import (
	"fmt"

	"github.com/Syriven/netvend/internal/protocol/wire"
)

// DepositAddressSize is the fixed width of a deposit address on the wire.
const DepositAddressSize = 34

// Outcome is the success payload of a Result. Each variant mirrors one
// command.
type Outcome interface {
	CommandTag() CommandTag
	encode(w *wire.Writer) error
}

type CreatePocketResult struct {
	PocketID uint32
}

type RequestPocketDepositAddressResult struct {
	DepositAddress string
}

type PocketTransferResult struct{}

type CreateFileResult struct {
	FileID uint32
}

type UpdateFileByIDResult struct{}

type ReadFileByIDResult struct {
	Data []byte
}

func (CreatePocketResult) CommandTag() CommandTag { return TagCreatePocket }
func (RequestPocketDepositAddressResult) CommandTag() CommandTag {
	return TagRequestPocketDepositAddress
}
func (PocketTransferResult) CommandTag() CommandTag { return TagPocketTransfer }
func (CreateFileResult) CommandTag() CommandTag     { return TagCreateFile }
func (UpdateFileByIDResult) CommandTag() CommandTag { return TagUpdateFileByID }
func (ReadFileByIDResult) CommandTag() CommandTag   { return TagReadFileByID }

func (r CreatePocketResult) encode(w *wire.Writer) error {
	w.Uint32(r.PocketID)
	return nil
}

func (r RequestPocketDepositAddressResult) encode(w *wire.Writer) error {
	_, err := w.Fixed([]byte(r.DepositAddress), DepositAddressSize)
	return err
}

func (PocketTransferResult) encode(*wire.Writer) error { return nil }

func (r CreateFileResult) encode(w *wire.Writer) error {
	w.Uint32(r.FileID)
	return nil
}

func (UpdateFileByIDResult) encode(*wire.Writer) error { return nil }

func (r ReadFileByIDResult) encode(w *wire.Writer) error {
	_, err := w.Bytes16(r.Data)
	return err
}

// Result is the outcome of one command: either Outcome or Err is set.
type Result struct {
	Cost    uint64
	Outcome Outcome
	Err     *CommandError
}

func Succeeded(cost uint64, outcome Outcome) Result {
	return Result{Cost: cost, Outcome: outcome}
}

func Failed(cost uint64, err *CommandError) Result {
	return Result{Cost: cost, Err: err}
}

func (r Result) IsError() bool {
	return r.Err != nil
}

// EncodeResult appends the error flag, the cost and the payload.
func EncodeResult(w *wire.Writer, r Result) error {
	if r.Err != nil {
		w.Bool(true)
		w.Uint64(r.Cost)
		return encodeCommandError(w, r.Err)
	}
	if r.Outcome == nil {
		return fmt.Errorf("%w: result has neither outcome nor error", ErrResultMismatch)
	}
	w.Bool(false)
	w.Uint64(r.Cost)
	return r.Outcome.encode(w)
}

// DecodeResult reads one result produced by a command tagged tag.
func DecodeResult(c *wire.Cursor, tag CommandTag) (Result, error) {
	isErr, err := decodeFlag(c)
	if err != nil {
		return Result{}, err
	}
	cost, err := c.Uint64()
	if err != nil {
		return Result{}, err
	}
	if isErr {
		cmdErr, err := decodeCommandError(c)
		if err != nil {
			return Result{}, err
		}
		return Failed(cost, cmdErr), nil
	}
	outcome, err := decodeOutcome(c, tag)
	if err != nil {
		return Result{}, err
	}
	return Succeeded(cost, outcome), nil
}

func decodeOutcome(c *wire.Cursor, tag CommandTag) (Outcome, error) {
	switch tag {
	case TagCreatePocket:
		id, err := c.Uint32()
		if err != nil {
			return nil, err
		}
		return CreatePocketResult{PocketID: id}, nil
	case TagRequestPocketDepositAddress:
		addr, err := c.FixedString(DepositAddressSize)
		if err != nil {
			return nil, err
		}
		return RequestPocketDepositAddressResult{DepositAddress: addr}, nil
	case TagPocketTransfer:
		return PocketTransferResult{}, nil
	case TagCreateFile:
		id, err := c.Uint32()
		if err != nil {
			return nil, err
		}
		return CreateFileResult{FileID: id}, nil
	case TagUpdateFileByID:
		return UpdateFileByIDResult{}, nil
	case TagReadFileByID:
		data, err := c.Bytes16()
		if err != nil {
			return nil, err
		}
		return ReadFileByIDResult{Data: data}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCommandTag, uint8(tag))
	}
}
