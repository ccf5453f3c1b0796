// Package store is the persistence boundary of the vending server.
//
// Ownership boundary:
// - agents, pockets and files and their ownership links
// - atomic credit movement (transfer, deposit, upkeep fees)
// - typed errors the executor turns into command errors
//
// Every method is its own transaction. Callers never hold state across
// calls, so an ownership check always sees the latest write.
package store

import (
	"context"
	"math"
)

// Agent is a registered public key.
type Agent struct {
	Address         string
	PublicKeyDER    []byte
	DefaultPocketID uint32
}

// Pocket is a credit container. Owner is empty only while the server is
// still creating an agent's default pocket.
type Pocket struct {
	ID             uint32
	Owner          string
	Credit         uint64
	DepositAddress string
}

// FeeSchedule is the upkeep price list applied by ChargeUpkeepFees.
type FeeSchedule struct {
	PerFile uint64
	PerByte uint64
}

// FeeReport summarizes one upkeep sweep.
type FeeReport struct {
	PocketsCharged  int
	PocketsBankrupt int
	FilesDeleted    int
	Collected       uint64
}

// Stats is a point-in-time census for the admin API.
type Stats struct {
	Agents      int
	Pockets     int
	Files       int
	TotalCredit uint64
	StoredBytes uint64
}

type Store interface {
	AgentExists(ctx context.Context, address string) (bool, error)
	// InsertAgent fails with ErrAgentExists on a duplicate address.
	InsertAgent(ctx context.Context, agent Agent) error
	FetchAgentPubkey(ctx context.Context, address string) ([]byte, error)

	// InsertPocket creates a pocket. Empty owner or deposit address are
	// stored as absent.
	InsertPocket(ctx context.Context, owner, depositAddress string) (uint32, error)
	FetchPocket(ctx context.Context, id uint32) (Pocket, error)
	FetchPocketOwner(ctx context.Context, id uint32) (string, error)
	UpdatePocketOwner(ctx context.Context, id uint32, owner string) error
	UpdatePocketDepositAddress(ctx context.Context, id uint32, depositAddress string) error
	// CreditPocket adds external funds, failing with *CreditOverflowError.
	CreditPocket(ctx context.Context, id uint32, amount uint64) error
	// DebitThenCreditPockets moves amount atomically: either both sides
	// change or neither does.
	DebitThenCreditPockets(ctx context.Context, from, to uint32, amount uint64) error

	// InsertFile fails with ErrFileExists when owner already has name.
	InsertFile(ctx context.Context, owner, name string, pocketID uint32) (uint32, error)
	FetchFileOwner(ctx context.Context, id uint32) (string, error)
	UpdateFileData(ctx context.Context, id uint32, data []byte) error
	ReadFileData(ctx context.Context, id uint32) ([]byte, error)

	// ChargeUpkeepFees bills every pocket for the files it supports.
	// Pockets that cannot pay lose their files and keep their credit.
	ChargeUpkeepFees(ctx context.Context, schedule FeeSchedule) (FeeReport, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// UpkeepFee is files*PerFile + bytes*PerByte, saturating at MaxUint64.
func UpkeepFee(files, bytes uint64, schedule FeeSchedule) uint64 {
	perFile, ok := mulSat(files, schedule.PerFile)
	if !ok {
		return math.MaxUint64
	}
	perByte, ok := mulSat(bytes, schedule.PerByte)
	if !ok {
		return math.MaxUint64
	}
	sum, ok := AddCredit(perFile, perByte)
	if !ok {
		return math.MaxUint64
	}
	return sum
}

// AddCredit returns balance+amount and false if that overflows.
func AddCredit(balance, amount uint64) (uint64, bool) {
	if balance > math.MaxUint64-amount {
		return balance, false
	}
	return balance + amount, true
}

func mulSat(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxUint64/b {
		return math.MaxUint64, false
	}
	return a * b, true
}
