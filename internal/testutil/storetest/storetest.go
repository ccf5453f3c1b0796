// Package storetest runs one behavioral suite against every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Syriven/netvend/internal/store"
)

type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"Agents", testAgents},
		{"PocketIDsStartAtOne", testPocketIDs},
		{"PocketOwnerAndDeposit", testPocketOwnerAndDeposit},
		{"TransferMovesCredit", testTransferMovesCredit},
		{"TransferInsufficient", testTransferInsufficient},
		{"TransferOverflow", testTransferOverflow},
		{"TransferMissingPockets", testTransferMissingPockets},
		{"TransferToSelf", testTransferToSelf},
		{"CreditPocket", testCreditPocket},
		{"Files", testFiles},
		{"DuplicateFileName", testDuplicateFileName},
		{"UpkeepFees", testUpkeepFees},
		{"FileIDsNotReusedAfterSweep", testFileIDsNotReused},
		{"Stats", testStats},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func mustPocket(t *testing.T, s store.Store, owner string, credit uint64) uint32 {
	t.Helper()
	ctx := context.Background()
	id, err := s.InsertPocket(ctx, owner, "")
	if err != nil {
		t.Fatalf("insert pocket: %v", err)
	}
	if credit > 0 {
		if err := s.CreditPocket(ctx, id, credit); err != nil {
			t.Fatalf("credit pocket: %v", err)
		}
	}
	return id
}

func credit(t *testing.T, s store.Store, id uint32) uint64 {
	t.Helper()
	p, err := s.FetchPocket(context.Background(), id)
	if err != nil {
		t.Fatalf("fetch pocket %d: %v", id, err)
	}
	return p.Credit
}

func testAgents(t *testing.T, s store.Store) {
	ctx := context.Background()
	ok, err := s.AgentExists(ctx, "agent-a")
	if err != nil || ok {
		t.Fatalf("exists before insert = %v, %v", ok, err)
	}
	der := []byte{1, 2, 3}
	if err := s.InsertAgent(ctx, store.Agent{Address: "agent-a", PublicKeyDER: der}); err != nil {
		t.Fatalf("insert agent: %v", err)
	}
	if err := s.InsertAgent(ctx, store.Agent{Address: "agent-a", PublicKeyDER: der}); !errors.Is(err, store.ErrAgentExists) {
		t.Fatalf("duplicate insert err = %v, want ErrAgentExists", err)
	}
	ok, err = s.AgentExists(ctx, "agent-a")
	if err != nil || !ok {
		t.Fatalf("exists after insert = %v, %v", ok, err)
	}
	got, err := s.FetchAgentPubkey(ctx, "agent-a")
	if err != nil {
		t.Fatalf("fetch pubkey: %v", err)
	}
	if string(got) != string(der) {
		t.Fatalf("pubkey = %v, want %v", got, der)
	}
	_, err = s.FetchAgentPubkey(ctx, "agent-b")
	var nf *store.AgentNotFoundError
	if !errors.As(err, &nf) || !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing agent err = %v", err)
	}
}

func testPocketIDs(t *testing.T, s store.Store) {
	first := mustPocket(t, s, "a", 0)
	second := mustPocket(t, s, "a", 0)
	if first != 1 || second != 2 {
		t.Fatalf("pocket ids = %d, %d, want 1, 2", first, second)
	}
	_, err := s.FetchPocket(context.Background(), 99)
	var nf *store.PocketNotFoundError
	if !errors.As(err, &nf) || nf.PocketID != 99 {
		t.Fatalf("missing pocket err = %v", err)
	}
}

func testPocketOwnerAndDeposit(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := mustPocket(t, s, "", 0)
	owner, err := s.FetchPocketOwner(ctx, id)
	if err != nil || owner != "" {
		t.Fatalf("owner = %q, %v, want empty", owner, err)
	}
	if err := s.UpdatePocketOwner(ctx, id, "agent-a"); err != nil {
		t.Fatalf("update owner: %v", err)
	}
	if err := s.UpdatePocketDepositAddress(ctx, id, "1Deposit"); err != nil {
		t.Fatalf("update deposit: %v", err)
	}
	p, err := s.FetchPocket(ctx, id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if p.Owner != "agent-a" || p.DepositAddress != "1Deposit" || p.Credit != 0 {
		t.Fatalf("pocket = %+v", p)
	}
	if err := s.UpdatePocketOwner(ctx, 404, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update missing owner err = %v", err)
	}
}

func testTransferMovesCredit(t *testing.T, s store.Store) {
	from := mustPocket(t, s, "a", 100)
	to := mustPocket(t, s, "b", 0)
	if err := s.DebitThenCreditPockets(context.Background(), from, to, 100); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := credit(t, s, from); got != 0 {
		t.Fatalf("from credit = %d, want 0", got)
	}
	if got := credit(t, s, to); got != 100 {
		t.Fatalf("to credit = %d, want 100", got)
	}
}

func testTransferInsufficient(t *testing.T, s store.Store) {
	from := mustPocket(t, s, "a", 100)
	to := mustPocket(t, s, "b", 0)
	err := s.DebitThenCreditPockets(context.Background(), from, to, 101)
	var ie *store.InsufficientCreditError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want InsufficientCreditError", err)
	}
	if ie.Required != 101 || ie.Available != 100 {
		t.Fatalf("insufficient = %+v", ie)
	}
	if credit(t, s, from) != 100 || credit(t, s, to) != 0 {
		t.Fatalf("balances changed after failed transfer")
	}
}

func testTransferOverflow(t *testing.T, s store.Store) {
	from := mustPocket(t, s, "a", 10)
	to := mustPocket(t, s, "b", math.MaxUint64-5)
	err := s.DebitThenCreditPockets(context.Background(), from, to, 10)
	var oe *store.CreditOverflowError
	if !errors.As(err, &oe) {
		t.Fatalf("err = %v, want CreditOverflowError", err)
	}
	if oe.PocketID != to || oe.Balance != math.MaxUint64-5 || oe.Added != 10 {
		t.Fatalf("overflow = %+v", oe)
	}
	if credit(t, s, from) != 10 {
		t.Fatalf("from debited after overflow")
	}
}

func testTransferMissingPockets(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := mustPocket(t, s, "a", 5)
	var nf *store.PocketNotFoundError
	if err := s.DebitThenCreditPockets(ctx, 77, id, 1); !errors.As(err, &nf) || nf.PocketID != 77 {
		t.Fatalf("missing from err = %v", err)
	}
	if err := s.DebitThenCreditPockets(ctx, id, 78, 1); !errors.As(err, &nf) || nf.PocketID != 78 {
		t.Fatalf("missing to err = %v", err)
	}
	if credit(t, s, id) != 5 {
		t.Fatalf("credit changed after failed transfer")
	}
}

func testTransferToSelf(t *testing.T, s store.Store) {
	id := mustPocket(t, s, "a", 5)
	if err := s.DebitThenCreditPockets(context.Background(), id, id, 5); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if got := credit(t, s, id); got != 5 {
		t.Fatalf("credit = %d, want 5", got)
	}
}

func testCreditPocket(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := mustPocket(t, s, "a", math.MaxUint64-1)
	err := s.CreditPocket(ctx, id, 2)
	var oe *store.CreditOverflowError
	if !errors.As(err, &oe) {
		t.Fatalf("err = %v, want CreditOverflowError", err)
	}
	if err := s.CreditPocket(ctx, id, 1); err != nil {
		t.Fatalf("credit to max: %v", err)
	}
	if got := credit(t, s, id); got != math.MaxUint64 {
		t.Fatalf("credit = %d", got)
	}
}

func testFiles(t *testing.T, s store.Store) {
	ctx := context.Background()
	pocket := mustPocket(t, s, "a", 0)
	id, err := s.InsertFile(ctx, "a", "notes", pocket)
	if err != nil {
		t.Fatalf("insert file: %v", err)
	}
	if id != 1 {
		t.Fatalf("file id = %d, want 1", id)
	}
	owner, err := s.FetchFileOwner(ctx, id)
	if err != nil || owner != "a" {
		t.Fatalf("owner = %q, %v", owner, err)
	}
	data, err := s.ReadFileData(ctx, id)
	if err != nil || len(data) != 0 {
		t.Fatalf("new file data = %v, %v", data, err)
	}
	payload := []byte("hello, world hello, world hello, world")
	if err := s.UpdateFileData(ctx, id, payload); err != nil {
		t.Fatalf("update: %v", err)
	}
	data, err = s.ReadFileData(ctx, id)
	if err != nil || string(data) != string(payload) {
		t.Fatalf("read = %q, %v", data, err)
	}
	if err := s.UpdateFileData(ctx, id, nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	data, err = s.ReadFileData(ctx, id)
	if err != nil || len(data) != 0 {
		t.Fatalf("cleared data = %v, %v", data, err)
	}
	var fnf *store.FileNotFoundError
	if _, err := s.ReadFileData(ctx, 42); !errors.As(err, &fnf) {
		t.Fatalf("missing file err = %v", err)
	}
	var pnf *store.PocketNotFoundError
	if _, err := s.InsertFile(ctx, "a", "orphan", 99); !errors.As(err, &pnf) {
		t.Fatalf("missing pocket err = %v", err)
	}
}

func testDuplicateFileName(t *testing.T, s store.Store) {
	ctx := context.Background()
	pocket := mustPocket(t, s, "a", 0)
	if _, err := s.InsertFile(ctx, "a", "same", pocket); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.InsertFile(ctx, "a", "same", pocket); !errors.Is(err, store.ErrFileExists) {
		t.Fatalf("duplicate err = %v, want ErrFileExists", err)
	}
	if _, err := s.InsertFile(ctx, "b", "same", pocket); err != nil {
		t.Fatalf("same name other owner: %v", err)
	}
}

func testUpkeepFees(t *testing.T, s store.Store) {
	ctx := context.Background()
	rich := mustPocket(t, s, "a", 100)
	poor := mustPocket(t, s, "b", 3)
	idle := mustPocket(t, s, "c", 7)

	richFile, err := s.InsertFile(ctx, "a", "r", rich)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.UpdateFileData(ctx, richFile, []byte("abcd")); err != nil {
		t.Fatalf("update: %v", err)
	}
	poorFile, err := s.InsertFile(ctx, "b", "p", poor)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.UpdateFileData(ctx, poorFile, []byte("abcdef")); err != nil {
		t.Fatalf("update: %v", err)
	}

	report, err := s.ChargeUpkeepFees(ctx, store.FeeSchedule{PerFile: 2, PerByte: 1})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if report.PocketsCharged != 1 || report.PocketsBankrupt != 1 || report.FilesDeleted != 1 || report.Collected != 6 {
		t.Fatalf("report = %+v", report)
	}
	if got := credit(t, s, rich); got != 94 {
		t.Fatalf("rich credit = %d, want 94", got)
	}
	if got := credit(t, s, poor); got != 3 {
		t.Fatalf("bankrupt pocket credit = %d, want 3", got)
	}
	if got := credit(t, s, idle); got != 7 {
		t.Fatalf("idle pocket credit = %d, want 7", got)
	}
	if _, err := s.ReadFileData(ctx, poorFile); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("bankrupt file err = %v, want not found", err)
	}
	if _, err := s.InsertFile(ctx, "b", "p", poor); err != nil {
		t.Fatalf("name reusable after sweep: %v", err)
	}
}

func testFileIDsNotReused(t *testing.T, s store.Store) {
	ctx := context.Background()
	pocket := mustPocket(t, s, "a", 0)
	var last uint32
	for _, name := range []string{"one", "two"} {
		id, err := s.InsertFile(ctx, "a", name, pocket)
		if err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
		last = id
	}
	report, err := s.ChargeUpkeepFees(ctx, store.FeeSchedule{PerFile: 1})
	if err != nil || report.FilesDeleted != 2 {
		t.Fatalf("sweep = %+v, %v", report, err)
	}
	next, err := s.InsertFile(ctx, "a", "three", pocket)
	if err != nil {
		t.Fatalf("insert after sweep: %v", err)
	}
	if next <= last {
		t.Fatalf("file id %d reused after sweep, highest issued %d", next, last)
	}
}

func testStats(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.InsertAgent(ctx, store.Agent{Address: "a", PublicKeyDER: []byte{1}}); err != nil {
		t.Fatalf("insert agent: %v", err)
	}
	p1 := mustPocket(t, s, "a", 10)
	mustPocket(t, s, "a", 5)
	f, err := s.InsertFile(ctx, "a", "x", p1)
	if err != nil {
		t.Fatalf("insert file: %v", err)
	}
	if err := s.UpdateFileData(ctx, f, []byte("123")); err != nil {
		t.Fatalf("update: %v", err)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := store.Stats{Agents: 1, Pockets: 2, Files: 1, TotalCredit: 15, StoredBytes: 3}
	if st != want {
		t.Fatalf("stats = %+v, want %+v", st, want)
	}
}
