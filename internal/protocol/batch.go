package protocol

import (
	"fmt"

	"github.com/Syriven/netvend/internal/protocol/wire"
)

// MaxBatchCommands is the most commands the one-byte count can describe.
const MaxBatchCommands = 255

// Batch is the ordered list of commands sent in one signed request.
type Batch struct {
	Commands []Command
}

func NewBatch(cmds ...Command) (*Batch, error) {
	b := &Batch{}
	for _, cmd := range cmds {
		if err := b.Add(cmd); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Add appends cmd, refusing to grow past MaxBatchCommands.
func (b *Batch) Add(cmd Command) error {
	if cmd == nil {
		return ErrNilCommand
	}
	if len(b.Commands) >= MaxBatchCommands {
		return fmt.Errorf("%w: %d", ErrBatchTooLarge, MaxBatchCommands)
	}
	b.Commands = append(b.Commands, cmd)
	return nil
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Commands)
}

// Encode serializes the batch: a one-byte count then each command with
// its tag.
func (b *Batch) Encode() ([]byte, error) {
	if len(b.Commands) > MaxBatchCommands {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(b.Commands), MaxBatchCommands)
	}
	w := wire.NewWriter(1 + 8*len(b.Commands))
	w.Uint8(uint8(len(b.Commands)))
	for i, cmd := range b.Commands {
		if err := EncodeCommand(w, cmd); err != nil {
			return nil, fmt.Errorf("command[%d]: %w", i, err)
		}
	}
	return w.Bytes(), nil
}

// DecodeBatch parses a whole batch payload. Trailing bytes are an error.
func DecodeBatch(data []byte) (*Batch, error) {
	c := wire.NewCursor(data)
	count, err := c.Uint8()
	if err != nil {
		return nil, err
	}
	b := &Batch{Commands: make([]Command, 0, count)}
	for i := 0; i < int(count); i++ {
		cmd, err := DecodeCommand(c)
		if err != nil {
			return nil, fmt.Errorf("command[%d]: %w", i, err)
		}
		b.Commands = append(b.Commands, cmd)
	}
	if err := c.Done(); err != nil {
		return nil, err
	}
	return b, nil
}
