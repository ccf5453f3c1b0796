package protocol

import (
	"fmt"
	"strings"

	"github.com/Syriven/netvend/internal/protocol/wire"
)

// CommandTag is the one-byte type tag written before every command.
type CommandTag uint8

const (
	TagCreatePocket                CommandTag = 0
	TagRequestPocketDepositAddress CommandTag = 1
	TagCreateFile                  CommandTag = 2
	TagUpdateFileByID              CommandTag = 3
	TagReadFileByID                CommandTag = 4
	TagPocketTransfer              CommandTag = 5
)

const (
	MaxFileNameLen = wire.MaxLen8
	MaxFileDataLen = wire.MaxLen16
)

func (t CommandTag) String() string {
	switch t {
	case TagCreatePocket:
		return "create_pocket"
	case TagRequestPocketDepositAddress:
		return "request_pocket_deposit_address"
	case TagCreateFile:
		return "create_file"
	case TagUpdateFileByID:
		return "update_file_by_id"
	case TagReadFileByID:
		return "read_file_by_id"
	case TagPocketTransfer:
		return "pocket_transfer"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseCommandTag accepts the names returned by CommandTag.String.
func ParseCommandTag(raw string) (CommandTag, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for t := TagCreatePocket; t <= TagPocketTransfer; t++ {
		if t.String() == raw {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommandTag, raw)
}

// Command is one domain operation inside a Batch. The set of variants is
// closed; the unexported method keeps outside packages from adding any.
type Command interface {
	Tag() CommandTag
	encode(w *wire.Writer) error
}

type CreatePocket struct{}

type RequestPocketDepositAddress struct {
	PocketID uint32
}

type PocketTransfer struct {
	FromPocketID uint32
	ToPocketID   uint32
	Amount       uint64
}

type CreateFile struct {
	Name     string
	PocketID uint32
}

type UpdateFileByID struct {
	FileID uint32
	Data   []byte
}

type ReadFileByID struct {
	FileID uint32
}

func (CreatePocket) Tag() CommandTag                { return TagCreatePocket }
func (RequestPocketDepositAddress) Tag() CommandTag { return TagRequestPocketDepositAddress }
func (PocketTransfer) Tag() CommandTag              { return TagPocketTransfer }
func (CreateFile) Tag() CommandTag                  { return TagCreateFile }
func (UpdateFileByID) Tag() CommandTag              { return TagUpdateFileByID }
func (ReadFileByID) Tag() CommandTag                { return TagReadFileByID }

func (CreatePocket) encode(*wire.Writer) error { return nil }

func (c RequestPocketDepositAddress) encode(w *wire.Writer) error {
	w.Uint32(c.PocketID)
	return nil
}

func (c PocketTransfer) encode(w *wire.Writer) error {
	w.Uint32(c.FromPocketID)
	w.Uint32(c.ToPocketID)
	w.Uint64(c.Amount)
	return nil
}

func (c CreateFile) encode(w *wire.Writer) error {
	if _, err := w.Bytes8([]byte(c.Name)); err != nil {
		return fmt.Errorf("create_file name: %w", err)
	}
	w.Uint32(c.PocketID)
	return nil
}

func (c UpdateFileByID) encode(w *wire.Writer) error {
	w.Uint32(c.FileID)
	if _, err := w.Bytes16(c.Data); err != nil {
		return fmt.Errorf("update_file_by_id data: %w", err)
	}
	return nil
}

func (c ReadFileByID) encode(w *wire.Writer) error {
	w.Uint32(c.FileID)
	return nil
}

// ValidateCommand checks field limits without encoding.
func ValidateCommand(cmd Command) error {
	switch c := cmd.(type) {
	case nil:
		return ErrNilCommand
	case CreateFile:
		if len(c.Name) > MaxFileNameLen {
			return fmt.Errorf("%w: create_file name %d > %d", wire.ErrFieldTooLong, len(c.Name), MaxFileNameLen)
		}
	case UpdateFileByID:
		if len(c.Data) > MaxFileDataLen {
			return fmt.Errorf("%w: update_file_by_id data %d > %d", wire.ErrFieldTooLong, len(c.Data), MaxFileDataLen)
		}
	}
	return nil
}

// EncodeCommand appends the tag and fields of cmd.
func EncodeCommand(w *wire.Writer, cmd Command) error {
	if err := ValidateCommand(cmd); err != nil {
		return err
	}
	w.Uint8(uint8(cmd.Tag()))
	return cmd.encode(w)
}

// DecodeCommand reads one tag-prefixed command.
func DecodeCommand(c *wire.Cursor) (Command, error) {
	raw, err := c.Uint8()
	if err != nil {
		return nil, err
	}
	switch CommandTag(raw) {
	case TagCreatePocket:
		return CreatePocket{}, nil
	case TagRequestPocketDepositAddress:
		id, err := c.Uint32()
		if err != nil {
			return nil, err
		}
		return RequestPocketDepositAddress{PocketID: id}, nil
	case TagPocketTransfer:
		from, err := c.Uint32()
		if err != nil {
			return nil, err
		}
		to, err := c.Uint32()
		if err != nil {
			return nil, err
		}
		amount, err := c.Uint64()
		if err != nil {
			return nil, err
		}
		return PocketTransfer{FromPocketID: from, ToPocketID: to, Amount: amount}, nil
	case TagCreateFile:
		name, err := c.Bytes8()
		if err != nil {
			return nil, err
		}
		pocket, err := c.Uint32()
		if err != nil {
			return nil, err
		}
		return CreateFile{Name: string(name), PocketID: pocket}, nil
	case TagUpdateFileByID:
		id, err := c.Uint32()
		if err != nil {
			return nil, err
		}
		data, err := c.Bytes16()
		if err != nil {
			return nil, err
		}
		return UpdateFileByID{FileID: id, Data: data}, nil
	case TagReadFileByID:
		id, err := c.Uint32()
		if err != nil {
			return nil, err
		}
		return ReadFileByID{FileID: id}, nil
	default:
		return nil, fmt.Errorf("%w: %d at offset %d", ErrUnknownCommandTag, raw, c.Offset()-1)
	}
}
