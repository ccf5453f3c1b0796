// Package executor authenticates agents and runs their command batches
// against the store.
//
// A batch runs in command order. Each command re-reads the state it
// checks, so later commands see what earlier ones changed. The first
// fatal error ends the batch; non-fatal errors are recorded and the
// batch continues.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Syriven/netvend/internal/deposit"
	"github.com/Syriven/netvend/internal/identity"
	"github.com/Syriven/netvend/internal/observability"
	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/protocol/packet"
	"github.com/Syriven/netvend/internal/store"
)

var (
	ErrAuthFailed   = errors.New("executor: authentication failed")
	ErrUnknownAgent = fmt.Errorf("%w: unknown agent", ErrAuthFailed)
	ErrBadSignature = fmt.Errorf("%w: bad signature", ErrAuthFailed)
)

type Executor struct {
	store    store.Store
	deposits deposit.Provider
	policy   Policy
}

func New(s store.Store, deposits deposit.Provider, policy Policy) *Executor {
	return &Executor{store: s, deposits: deposits, policy: policy}
}

// Handshake registers a new agent or recognizes a known one. A new agent
// gets a default pocket. The pocket is created ownerless and re-owned
// once the agent row exists.
func (e *Executor) Handshake(ctx context.Context, der []byte) (packet.HandshakeResponse, error) {
	if _, err := identity.ParsePublicKeyDER(der); err != nil {
		return packet.HandshakeResponse{}, err
	}
	address := identity.DeriveAddress(der)

	exists, err := e.store.AgentExists(ctx, address)
	if err != nil {
		return packet.HandshakeResponse{}, fmt.Errorf("executor: agent lookup: %w", err)
	}
	if exists {
		log.Debug().Str("agent", address).Msg("executor.Handshake known agent")
		return packet.HandshakeResponse{IsNewAgent: false}, nil
	}

	pocketID, err := e.store.InsertPocket(ctx, "", "")
	if err != nil {
		return packet.HandshakeResponse{}, fmt.Errorf("executor: default pocket: %w", err)
	}
	err = e.store.InsertAgent(ctx, store.Agent{Address: address, PublicKeyDER: der, DefaultPocketID: pocketID})
	if errors.Is(err, store.ErrAgentExists) {
		// Lost a race with a concurrent handshake for the same key.
		log.Debug().Str("agent", address).Uint32("orphan_pocket", pocketID).Msg("executor.Handshake concurrent registration")
		return packet.HandshakeResponse{IsNewAgent: false}, nil
	}
	if err != nil {
		return packet.HandshakeResponse{}, fmt.Errorf("executor: insert agent: %w", err)
	}
	if err := e.store.UpdatePocketOwner(ctx, pocketID, address); err != nil {
		return packet.HandshakeResponse{}, fmt.Errorf("executor: own default pocket: %w", err)
	}

	log.Info().Str("agent", address).Uint32("pocket", pocketID).Msg("executor.Handshake registered agent")
	return packet.HandshakeResponse{IsNewAgent: true, DefaultPocketID: pocketID}, nil
}

// Authenticate checks that sig is the registered agent's signature over
// payload. Failures wrap ErrAuthFailed.
func (e *Executor) Authenticate(ctx context.Context, address string, payload, sig []byte) error {
	der, err := e.store.FetchAgentPubkey(ctx, address)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, address)
	}
	if err != nil {
		return fmt.Errorf("executor: pubkey lookup: %w", err)
	}
	if err := identity.Verify(der, payload, sig); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

// HandleCommandBatch authenticates and runs one signed batch. A non-nil
// error means the payload could not be decoded and no response is owed.
// Authentication failures are answered with completion NONE.
func (e *Executor) HandleCommandBatch(ctx context.Context, p packet.CommandBatch) (packet.CommandBatchResponse, error) {
	if err := e.Authenticate(ctx, p.Address, p.Payload, p.Signature); err != nil {
		if !errors.Is(err, ErrAuthFailed) {
			log.Error().Err(err).Str("agent", p.Address).Msg("executor.HandleCommandBatch auth lookup failed")
		} else {
			log.Warn().Err(err).Str("agent", p.Address).Msg("executor.HandleCommandBatch rejected")
		}
		return packet.NewCommandBatchResponse(packet.CompletionNone, nil)
	}
	batch, err := p.Batch()
	if err != nil {
		return packet.CommandBatchResponse{}, err
	}
	results, completion := e.ExecuteBatch(ctx, p.Address, batch)
	return packet.NewCommandBatchResponse(completion, results)
}

// ExecuteBatch runs batch on behalf of address, who must already be
// authenticated.
func (e *Executor) ExecuteBatch(ctx context.Context, address string, batch *protocol.Batch) (*protocol.ResultBatch, packet.Completion) {
	start := time.Now()
	results := protocol.NewResultBatch(batch)
	budget := newBudget(e.policy.resultLimit())
	attempted := 0

	for i, cmd := range batch.Commands {
		last := i == batch.Len()-1
		if _, isRead := cmd.(protocol.ReadFileByID); !isRead && !budget.fitsWorstCase(last) {
			budget.takeLimit()
			e.record(results, i, protocol.Failed(0, limitError()))
			log.Warn().Str("agent", address).Int("index", i).Msg("executor.ExecuteBatch result limit reached")
			break
		}

		res := e.execute(ctx, address, cmd)
		attempted++
		if !budget.take(res, last) {
			budget.takeLimit()
			res = protocol.Failed(0, limitError())
			log.Warn().Str("agent", address).Int("index", i).Msg("executor.ExecuteBatch result limit reached")
		}
		if !e.record(results, i, res) {
			break
		}
		if res.IsError() && res.Err.Fatal {
			break
		}
	}

	completion := packet.CompletionAll
	if attempted < batch.Len() {
		completion = packet.CompletionSome
	}
	observability.RecordBatch(completion.String(), time.Since(start))
	log.Debug().
		Str("agent", address).
		Int("commands", batch.Len()).
		Int("results", results.Len()).
		Str("completion", completion.String()).
		Uint64("cost", results.TotalCost()).
		Msg("executor.ExecuteBatch done")
	return results, completion
}

// record appends res and reports whether the batch may continue.
func (e *Executor) record(results *protocol.ResultBatch, i int, res protocol.Result) bool {
	if err := results.Append(res); err != nil {
		log.Error().Err(err).Int("index", i).Msg("executor.ExecuteBatch result rejected")
		return false
	}
	return true
}

func (e *Executor) execute(ctx context.Context, address string, cmd protocol.Command) protocol.Result {
	outcome, cmdErr := e.dispatch(ctx, address, cmd)
	if cmdErr != nil {
		cmdErr.Fatal = e.policy.fatal(cmdErr.Kind())
		observability.RecordCommand(cmd.Tag().String(), false)
		log.Debug().
			Str("agent", address).
			Str("command", cmd.Tag().String()).
			Str("error", cmdErr.Detail.Describe()).
			Bool("fatal", cmdErr.Fatal).
			Msg("executor.execute command failed")
		return protocol.Failed(0, cmdErr)
	}
	observability.RecordCommand(cmd.Tag().String(), true)
	return protocol.Succeeded(e.policy.cost(cmd.Tag()), outcome)
}

func (e *Executor) dispatch(ctx context.Context, address string, cmd protocol.Command) (protocol.Outcome, *protocol.CommandError) {
	switch c := cmd.(type) {
	case protocol.CreatePocket:
		return e.createPocket(ctx, address)
	case protocol.RequestPocketDepositAddress:
		return e.requestPocketDepositAddress(ctx, address, c)
	case protocol.PocketTransfer:
		return e.pocketTransfer(ctx, address, c)
	case protocol.CreateFile:
		return e.createFile(ctx, address, c)
	case protocol.UpdateFileByID:
		return e.updateFileByID(ctx, address, c)
	case protocol.ReadFileByID:
		return e.readFileByID(ctx, address, c)
	default:
		return nil, serverLogic("unsupported command %s", cmd.Tag())
	}
}
