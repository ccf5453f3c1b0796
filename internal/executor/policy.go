package executor

import (
	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/protocol/wire"
)

// Policy holds the deployment choices the protocol leaves open.
type Policy struct {
	// Costs is the credit cost reported for each successful command.
	// Costs are reported only; nothing is debited. Failed commands cost 0.
	Costs map[protocol.CommandTag]uint64
	// NonFatal lists error kinds that let the rest of the batch run.
	// Every other kind stops the batch.
	NonFatal map[protocol.ErrorKind]bool
	// PrivateReads restricts ReadFileByID to the file owner.
	PrivateReads bool
	// ResultLimit caps the encoded result batch. Zero means the largest
	// size the response length prefix can carry.
	ResultLimit int
}

func DefaultPolicy() Policy {
	return Policy{ResultLimit: wire.MaxLen16}
}

func (p Policy) cost(tag protocol.CommandTag) uint64 {
	return p.Costs[tag]
}

func (p Policy) fatal(kind protocol.ErrorKind) bool {
	return !p.NonFatal[kind]
}

func (p Policy) resultLimit() int {
	if p.ResultLimit <= 0 || p.ResultLimit > wire.MaxLen16 {
		return wire.MaxLen16
	}
	return p.ResultLimit
}

// maxFileData is the largest file a ReadFileByID alone in a batch can
// return under the result limit.
func (p Policy) maxFileData() int {
	return p.resultLimit() - 1 - readResultOverhead
}
