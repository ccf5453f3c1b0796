package protocol

import (
	"fmt"
	"math"

	"github.com/Syriven/netvend/internal/protocol/wire"
)

// ResultBatch collects the results of one Batch in command order.
type ResultBatch struct {
	batch     *Batch
	results   []Result
	totalCost uint64
}

func NewResultBatch(b *Batch) *ResultBatch {
	return &ResultBatch{batch: b, results: make([]Result, 0, b.Len())}
}

func (rb *ResultBatch) Batch() *Batch { return rb.batch }

func (rb *ResultBatch) Len() int { return len(rb.results) }

func (rb *ResultBatch) TotalCost() uint64 { return rb.totalCost }

func (rb *ResultBatch) Results() []Result {
	out := make([]Result, len(rb.results))
	copy(out, rb.results)
	return out
}

func (rb *ResultBatch) At(i int) Result { return rb.results[i] }

// Complete reports whether every command of the batch has a result.
func (rb *ResultBatch) Complete() bool {
	return len(rb.results) == rb.batch.Len()
}

// Append adds the result for the next command in order. A success
// outcome must mirror that command.
func (rb *ResultBatch) Append(r Result) error {
	i := len(rb.results)
	if i >= rb.batch.Len() {
		return fmt.Errorf("%w: %d results for %d commands", ErrResultCount, i+1, rb.batch.Len())
	}
	if !r.IsError() {
		if r.Outcome == nil {
			return fmt.Errorf("%w: result[%d] empty", ErrResultMismatch, i)
		}
		if want := rb.batch.Commands[i].Tag(); r.Outcome.CommandTag() != want {
			return fmt.Errorf("%w: result[%d] is %s, command is %s", ErrResultMismatch, i, r.Outcome.CommandTag(), want)
		}
	}
	rb.results = append(rb.results, r)
	if rb.totalCost > math.MaxUint64-r.Cost {
		rb.totalCost = math.MaxUint64
	} else {
		rb.totalCost += r.Cost
	}
	return nil
}

func (rb *ResultBatch) Encode() ([]byte, error) {
	w := wire.NewWriter(1 + 16*len(rb.results))
	w.Uint8(uint8(len(rb.results)))
	for i, r := range rb.results {
		if err := EncodeResult(w, r); err != nil {
			return nil, fmt.Errorf("result[%d]: %w", i, err)
		}
	}
	return w.Bytes(), nil
}

// DecodeResultBatch parses results against the batch that produced them.
func DecodeResultBatch(data []byte, b *Batch) (*ResultBatch, error) {
	c := wire.NewCursor(data)
	count, err := c.Uint8()
	if err != nil {
		return nil, err
	}
	if int(count) > b.Len() {
		return nil, fmt.Errorf("%w: %d results for %d commands", ErrResultCount, count, b.Len())
	}
	rb := NewResultBatch(b)
	for i := 0; i < int(count); i++ {
		r, err := DecodeResult(c, b.Commands[i].Tag())
		if err != nil {
			return nil, fmt.Errorf("result[%d]: %w", i, err)
		}
		if err := rb.Append(r); err != nil {
			return nil, err
		}
	}
	if err := c.Done(); err != nil {
		return nil, err
	}
	return rb, nil
}
