package executor

import (
	"fmt"

	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/protocol/wire"
)

// maxLogicText bounds executor-generated ServerLogic messages so any
// non-read result has a known worst-case size.
const maxLogicText = 200

// worstCaseResult is the largest encoding of any result other than a
// ReadFileByID success: flag, cost, fatal, kind, u16 length, text.
const worstCaseResult = 1 + 8 + 1 + 1 + 2 + maxLogicText

const limitMessage = "result batch size limit reached"

func limitError() *protocol.CommandError {
	return protocol.NewServerLogic(limitMessage)
}

func serverLogic(format string, args ...any) *protocol.CommandError {
	return protocol.NewServerLogic("%s", protocol.ClipText(fmt.Sprintf(format, args...), maxLogicText))
}

func resultSize(r protocol.Result) (int, error) {
	w := wire.NewWriter(16)
	if err := protocol.EncodeResult(w, r); err != nil {
		return 0, err
	}
	return w.Len(), nil
}

// readResultOverhead is a ReadFileByID success without its data: flag,
// cost, u16 length.
const readResultOverhead = 1 + 8 + 2

// budget tracks the encoded size of a result batch so the response
// always fits its length prefix. While more commands follow it keeps
// room for one limit error; the last command may use that room.
type budget struct {
	used    int
	limit   int
	reserve int
}

func newBudget(limit int) *budget {
	reserve, _ := resultSize(protocol.Failed(0, limitError()))
	return &budget{used: 1, limit: limit, reserve: reserve}
}

func (b *budget) reserveFor(last bool) int {
	if last {
		return 0
	}
	return b.reserve
}

// fitsWorstCase reports whether any non-read result can still be added.
func (b *budget) fitsWorstCase(last bool) bool {
	return b.used+worstCaseResult+b.reserveFor(last) <= b.limit
}

// take adds r if it leaves room for the reserve.
func (b *budget) take(r protocol.Result, last bool) bool {
	n, err := resultSize(r)
	if err != nil || b.used+n+b.reserveFor(last) > b.limit {
		return false
	}
	b.used += n
	return true
}

func (b *budget) takeLimit() {
	b.used += b.reserve
}
