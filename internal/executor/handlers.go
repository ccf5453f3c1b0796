package executor

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/store"
)

const duplicateFileMessage = "file with that owner and name already exists"

// storageFailure hides internal errors from the agent and logs them.
func storageFailure(op string, err error) *protocol.CommandError {
	log.Error().Err(err).Str("op", op).Msg("executor storage failure")
	return serverLogic("storage failure during %s", op)
}

// ownPocket checks that pocketID exists and belongs to address.
func (e *Executor) ownPocket(ctx context.Context, address string, pocketID uint32) *protocol.CommandError {
	owner, err := e.store.FetchPocketOwner(ctx, pocketID)
	if errors.Is(err, store.ErrNotFound) {
		return protocol.NewInvalidTarget(protocol.PocketTarget(pocketID))
	}
	if err != nil {
		return storageFailure("pocket lookup", err)
	}
	if owner != address {
		return protocol.NewTargetNotOwned(protocol.PocketTarget(pocketID))
	}
	return nil
}

// ownFile checks that fileID exists and, when mustOwn, belongs to address.
func (e *Executor) ownFile(ctx context.Context, address string, fileID uint32, mustOwn bool) *protocol.CommandError {
	owner, err := e.store.FetchFileOwner(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return protocol.NewInvalidTarget(protocol.FileTarget(fileID))
	}
	if err != nil {
		return storageFailure("file lookup", err)
	}
	if mustOwn && owner != address {
		return protocol.NewTargetNotOwned(protocol.FileTarget(fileID))
	}
	return nil
}

func (e *Executor) createPocket(ctx context.Context, address string) (protocol.Outcome, *protocol.CommandError) {
	id, err := e.store.InsertPocket(ctx, address, "")
	if err != nil {
		return nil, storageFailure("create pocket", err)
	}
	return protocol.CreatePocketResult{PocketID: id}, nil
}

func (e *Executor) requestPocketDepositAddress(ctx context.Context, address string, c protocol.RequestPocketDepositAddress) (protocol.Outcome, *protocol.CommandError) {
	if cmdErr := e.ownPocket(ctx, address, c.PocketID); cmdErr != nil {
		return nil, cmdErr
	}
	if e.deposits == nil {
		return nil, serverLogic("deposit addresses are not available")
	}
	depositAddress, err := e.deposits.NewDepositAddress(ctx)
	if err != nil {
		log.Error().Err(err).Uint32("pocket", c.PocketID).Msg("executor deposit address failed")
		return nil, serverLogic("deposit address unavailable")
	}
	if len(depositAddress) > protocol.DepositAddressSize {
		return nil, serverLogic("deposit address too long")
	}
	if err := e.store.UpdatePocketDepositAddress(ctx, c.PocketID, depositAddress); err != nil {
		return nil, storageFailure("update deposit address", err)
	}
	return protocol.RequestPocketDepositAddressResult{DepositAddress: depositAddress}, nil
}

func (e *Executor) pocketTransfer(ctx context.Context, address string, c protocol.PocketTransfer) (protocol.Outcome, *protocol.CommandError) {
	if cmdErr := e.ownPocket(ctx, address, c.FromPocketID); cmdErr != nil {
		return nil, cmdErr
	}
	err := e.store.DebitThenCreditPockets(ctx, c.FromPocketID, c.ToPocketID, c.Amount)
	if err == nil {
		return protocol.PocketTransferResult{}, nil
	}

	var (
		insufficient *store.InsufficientCreditError
		overflow     *store.CreditOverflowError
		missing      *store.PocketNotFoundError
	)
	switch {
	case errors.As(err, &insufficient):
		return nil, protocol.NewCreditInsufficient(insufficient.Required, insufficient.Available)
	case errors.As(err, &overflow):
		return nil, protocol.NewCreditOverflow(overflow.Balance, overflow.Added)
	case errors.As(err, &missing):
		return nil, protocol.NewInvalidTarget(protocol.PocketTarget(missing.PocketID))
	default:
		return nil, storageFailure("pocket transfer", err)
	}
}

func (e *Executor) createFile(ctx context.Context, address string, c protocol.CreateFile) (protocol.Outcome, *protocol.CommandError) {
	if cmdErr := e.ownPocket(ctx, address, c.PocketID); cmdErr != nil {
		return nil, cmdErr
	}
	id, err := e.store.InsertFile(ctx, address, c.Name, c.PocketID)
	if errors.Is(err, store.ErrFileExists) {
		return nil, serverLogic(duplicateFileMessage)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, protocol.NewInvalidTarget(protocol.PocketTarget(c.PocketID))
	}
	if err != nil {
		return nil, storageFailure("create file", err)
	}
	return protocol.CreateFileResult{FileID: id}, nil
}

func (e *Executor) updateFileByID(ctx context.Context, address string, c protocol.UpdateFileByID) (protocol.Outcome, *protocol.CommandError) {
	if cmdErr := e.ownFile(ctx, address, c.FileID, true); cmdErr != nil {
		return nil, cmdErr
	}
	if limit := e.policy.maxFileData(); len(c.Data) > limit {
		return nil, serverLogic("file data of %d bytes exceeds the %d readable bytes", len(c.Data), limit)
	}
	err := e.store.UpdateFileData(ctx, c.FileID, c.Data)
	if errors.Is(err, store.ErrNotFound) {
		return nil, protocol.NewInvalidTarget(protocol.FileTarget(c.FileID))
	}
	if err != nil {
		return nil, storageFailure("update file", err)
	}
	return protocol.UpdateFileByIDResult{}, nil
}

func (e *Executor) readFileByID(ctx context.Context, address string, c protocol.ReadFileByID) (protocol.Outcome, *protocol.CommandError) {
	if e.policy.PrivateReads {
		if cmdErr := e.ownFile(ctx, address, c.FileID, true); cmdErr != nil {
			return nil, cmdErr
		}
	}
	data, err := e.store.ReadFileData(ctx, c.FileID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, protocol.NewInvalidTarget(protocol.FileTarget(c.FileID))
	}
	if err != nil {
		return nil, storageFailure("read file", err)
	}
	return protocol.ReadFileByIDResult{Data: data}, nil
}
