package executor

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Syriven/netvend/internal/deposit"
	"github.com/Syriven/netvend/internal/identity"
	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/protocol/packet"
	"github.com/Syriven/netvend/internal/protocol/wire"
	"github.com/Syriven/netvend/internal/store"
	"github.com/Syriven/netvend/internal/testutil/testlog"
)

type fixture struct {
	mem  *store.Memory
	exec *Executor
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	mem := store.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })
	deposits, err := deposit.NewDerived("executor test", "testnet")
	if err != nil {
		t.Fatalf("deposits: %v", err)
	}
	return &fixture{mem: mem, exec: New(mem, deposits, policy)}
}

// register handshakes a fresh key and returns it with its default pocket.
func (f *fixture) register(t *testing.T) (*identity.KeyPair, uint32) {
	t.Helper()
	k, err := identity.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	resp, err := f.exec.Handshake(context.Background(), k.PublicKeyDER())
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if !resp.IsNewAgent {
		t.Fatalf("fresh key not reported as new")
	}
	return k, resp.DefaultPocketID
}

func (f *fixture) fund(t *testing.T, pocket uint32, amount uint64) {
	t.Helper()
	if err := f.mem.CreditPocket(context.Background(), pocket, amount); err != nil {
		t.Fatalf("credit: %v", err)
	}
}

func (f *fixture) credit(t *testing.T, pocket uint32) uint64 {
	t.Helper()
	p, err := f.mem.FetchPocket(context.Background(), pocket)
	if err != nil {
		t.Fatalf("fetch pocket: %v", err)
	}
	return p.Credit
}

func (f *fixture) run(t *testing.T, address string, cmds ...protocol.Command) (*protocol.ResultBatch, packet.Completion) {
	t.Helper()
	b, err := protocol.NewBatch(cmds...)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	return f.exec.ExecuteBatch(context.Background(), address, b)
}

func singleError(t *testing.T, rb *protocol.ResultBatch) *protocol.CommandError {
	t.Helper()
	if rb.Len() != 1 {
		t.Fatalf("results = %d, want 1", rb.Len())
	}
	r := rb.At(0)
	if !r.IsError() {
		t.Fatalf("result succeeded: %+v", r.Outcome)
	}
	if r.Cost != 0 {
		t.Fatalf("error cost = %d, want 0", r.Cost)
	}
	return r.Err
}

func TestHandshakeIsIdempotent(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, DefaultPolicy())
	k, pocket := f.register(t)
	if pocket != 1 {
		t.Fatalf("default pocket = %d, want 1", pocket)
	}
	owner, err := f.mem.FetchPocketOwner(context.Background(), pocket)
	if err != nil || owner != k.Address() {
		t.Fatalf("default pocket owner = %q, %v", owner, err)
	}

	again, err := f.exec.Handshake(context.Background(), k.PublicKeyDER())
	if err != nil {
		t.Fatalf("second handshake: %v", err)
	}
	if again.IsNewAgent || again.DefaultPocketID != 0 {
		t.Fatalf("second handshake = %+v", again)
	}
	st, err := f.mem.Stats(context.Background())
	if err != nil || st.Pockets != 1 || st.Agents != 1 {
		t.Fatalf("stats = %+v, %v", st, err)
	}
}

func TestHandshakeRejectsMalformedKey(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, DefaultPolicy())
	if _, err := f.exec.Handshake(context.Background(), []byte("not a key")); err == nil {
		t.Fatalf("expected error for malformed key")
	}
}

func TestAuthenticate(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, DefaultPolicy())
	k, _ := f.register(t)
	ctx := context.Background()
	payload := []byte{1, 0}

	if err := f.exec.Authenticate(ctx, k.Address(), payload, k.Sign(payload)); err != nil {
		t.Fatalf("valid signature: %v", err)
	}
	if err := f.exec.Authenticate(ctx, k.Address(), []byte{1, 1}, k.Sign(payload)); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered payload err = %v, want ErrBadSignature", err)
	}
	stranger, err := identity.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	err = f.exec.Authenticate(ctx, stranger.Address(), payload, stranger.Sign(payload))
	if !errors.Is(err, ErrUnknownAgent) || !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("unknown agent err = %v", err)
	}
}

func TestHandleCommandBatch(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, DefaultPolicy())
	k, _ := f.register(t)
	b, err := protocol.NewBatch(protocol.CreatePocket{})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	p, err := packet.NewCommandBatch(k, b)
	if err != nil {
		t.Fatalf("packet: %v", err)
	}

	resp, err := f.exec.HandleCommandBatch(context.Background(), p)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.Completion != packet.CompletionAll {
		t.Fatalf("completion = %s", resp.Completion)
	}
	rb, err := resp.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := rb.At(0).Outcome.(protocol.CreatePocketResult).PocketID; got != 2 {
		t.Fatalf("pocket id = %d, want 2", got)
	}

	p.Signature[0] ^= 0xff
	resp, err = f.exec.HandleCommandBatch(context.Background(), p)
	if err != nil {
		t.Fatalf("handle tampered: %v", err)
	}
	if resp.Completion != packet.CompletionNone || !bytes.Equal(resp.Results, []byte{0}) {
		t.Fatalf("tampered response = %+v", resp)
	}
}

func TestHandleCommandBatchDecodeError(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, DefaultPolicy())
	k, _ := f.register(t)
	payload := []byte{1, 99}
	p := packet.CommandBatch{Address: k.Address(), Payload: payload, Signature: k.Sign(payload)}
	if _, err := f.exec.HandleCommandBatch(context.Background(), p); !errors.Is(err, protocol.ErrUnknownCommandTag) {
		t.Fatalf("err = %v, want ErrUnknownCommandTag", err)
	}
}

func TestPocketTransfer(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, DefaultPolicy())
	k, a := f.register(t)
	_, b := f.register(t)
	f.fund(t, a, 100)

	rb, completion := f.run(t, k.Address(), protocol.PocketTransfer{FromPocketID: a, ToPocketID: b, Amount: 101})
	cmdErr := singleError(t, rb)
	want := protocol.CreditInsufficientError{Required: 101, Available: 100}
	if cmdErr.Detail != want || !cmdErr.Fatal {
		t.Fatalf("error = %+v, want fatal %+v", cmdErr, want)
	}
	if completion != packet.CompletionAll {
		t.Fatalf("completion = %s, want all", completion)
	}
	if f.credit(t, a) != 100 || f.credit(t, b) != 0 {
		t.Fatalf("balances changed after failed transfer")
	}

	rb, _ = f.run(t, k.Address(), protocol.PocketTransfer{FromPocketID: a, ToPocketID: b, Amount: 100})
	if rb.Len() != 1 || rb.At(0).IsError() {
		t.Fatalf("transfer failed: %+v", rb.At(0).Err)
	}
	if f.credit(t, a) != 0 || f.credit(t, b) != 100 {
		t.Fatalf("balances = %d, %d", f.credit(t, a), f.credit(t, b))
	}
}

func TestPocketTransferOverflow(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, DefaultPolicy())
	k, a := f.register(t)
	_, b := f.register(t)
	f.fund(t, a, 10)
	f.fund(t, b, math.MaxUint64-1)

	rb, _ := f.run(t, k.Address(), protocol.PocketTransfer{FromPocketID: a, ToPocketID: b, Amount: 10})
	cmdErr := singleError(t, rb)
	want := protocol.CreditOverflowError{PocketCredit: math.MaxUint64 - 1, Added: 10}
	if cmdErr.Detail != want {
		t.Fatalf("error = %+v, want %+v", cmdErr.Detail, want)
	}
	if f.credit(t, a) != 10 || f.credit(t, b) != math.MaxUint64-1 {
		t.Fatalf("balances changed after overflow")
	}
}

func TestPocketTransferErrorOrder(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, DefaultPolicy())
	k, mine := f.register(t)
	_, theirs := f.register(t)
	f.fund(t, mine, 5)
	const missing = 999

	cases := []struct {
		name string
		cmd  protocol.PocketTransfer
		want protocol.ErrorDetail
	}{
		{"from missing", protocol.PocketTransfer{FromPocketID: missing, ToPocketID: missing, Amount: 1},
			protocol.InvalidTargetError{Target: protocol.PocketTarget(missing)}},
		{"from not owned", protocol.PocketTransfer{FromPocketID: theirs, ToPocketID: missing, Amount: 1},
			protocol.TargetNotOwnedError{Target: protocol.PocketTarget(theirs)}},
		{"insufficient before destination", protocol.PocketTransfer{FromPocketID: mine, ToPocketID: missing, Amount: 6},
			protocol.CreditInsufficientError{Required: 6, Available: 5}},
		{"destination missing", protocol.PocketTransfer{FromPocketID: mine, ToPocketID: missing, Amount: 1},
			protocol.InvalidTargetError{Target: protocol.PocketTarget(missing)}},
	}
	for _, tc := range cases {
		rb, _ := f.run(t, k.Address(), tc.cmd)
		if got := singleError(t, rb).Detail; got != tc.want {
			t.Fatalf("%s: error = %+v, want %+v", tc.name, got, tc.want)
		}
	}
	if f.credit(t, mine) != 5 {
		t.Fatalf("credit changed")
	}
}

func TestUpdateFileRequiresOwnership(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, DefaultPolicy())
	owner, pocket := f.register(t)
	intruder, _ := f.register(t)

	rb, _ := f.run(t, owner.Address(),
		protocol.CreateFile{Name: "notes", PocketID: pocket},
		protocol.UpdateFileByID{FileID: 1, Data: []byte("original")},
	)
	if rb.Len() != 2 || rb.At(0).IsError() || rb.At(1).IsError() {
		t.Fatalf("setup failed: %+v", rb.Results())
	}
	fileID := rb.At(0).Outcome.(protocol.CreateFileResult).FileID

	rb, _ = f.run(t, intruder.Address(), protocol.UpdateFileByID{FileID: fileID, Data: []byte("defaced")})
	want := protocol.TargetNotOwnedError{Target: protocol.FileTarget(fileID)}
	if got := singleError(t, rb).Detail; got != want {
		t.Fatalf("error = %+v, want %+v", got, want)
	}
	data, err := f.mem.ReadFileData(context.Background(), fileID)
	if err != nil || string(data) != "original" {
		t.Fatalf("file data = %q, %v", data, err)
	}

	rb, _ = f.run(t, intruder.Address(), protocol.ReadFileByID{FileID: fileID})
	if rb.At(0).IsError() || string(rb.At(0).Outcome.(protocol.ReadFileByIDResult).Data) != "original" {
		t.Fatalf("public read failed: %+v", rb.At(0))
	}
}

func TestPrivateReads(t *testing.T) {
	testlog.Start(t)
	policy := DefaultPolicy()
	policy.PrivateReads = true
	f := newFixture(t, policy)
	owner, pocket := f.register(t)
	other, _ := f.register(t)
	rb, _ := f.run(t, owner.Address(), protocol.CreateFile{Name: "secret", PocketID: pocket})
	fileID := rb.At(0).Outcome.(protocol.CreateFileResult).FileID

	rb, _ = f.run(t, other.Address(), protocol.ReadFileByID{FileID: fileID})
	want := protocol.TargetNotOwnedError{Target: protocol.FileTarget(fileID)}
	if got := singleError(t, rb).Detail; got != want {
		t.Fatalf("error = %+v, want %+v", got, want)
	}
}

func TestFatalErrorStopsBatch(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, DefaultPolicy())
	k, pocket := f.register(t)

	rb, completion := f.run(t, k.Address(),
		protocol.CreatePocket{},
		protocol.ReadFileByID{FileID: 404},
		protocol.CreatePocket{},
	)
	if rb.Len() != 2 || completion != packet.CompletionSome {
		t.Fatalf("results = %d completion = %s, want 2 some", rb.Len(), completion)
	}
	if !rb.At(1).Err.Fatal {
		t.Fatalf("second result not fatal")
	}
	st, _ := f.mem.Stats(context.Background())
	if st.Pockets != int(pocket)+1 {
		t.Fatalf("pockets = %d, third command ran", st.Pockets)
	}
}

func TestNonFatalErrorContinues(t *testing.T) {
	testlog.Start(t)
	policy := DefaultPolicy()
	policy.NonFatal = map[protocol.ErrorKind]bool{protocol.KindInvalidTarget: true}
	f := newFixture(t, policy)
	k, _ := f.register(t)

	rb, completion := f.run(t, k.Address(),
		protocol.CreatePocket{},
		protocol.ReadFileByID{FileID: 404},
		protocol.CreatePocket{},
	)
	if rb.Len() != 3 || completion != packet.CompletionAll {
		t.Fatalf("results = %d completion = %s, want 3 all", rb.Len(), completion)
	}
	if !rb.At(1).IsError() || rb.At(1).Err.Fatal {
		t.Fatalf("second result = %+v, want non-fatal error", rb.At(1))
	}
	if rb.At(2).IsError() {
		t.Fatalf("third command failed")
	}
}

func TestDuplicateFileName(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, DefaultPolicy())
	k, pocket := f.register(t)
	rb, completion := f.run(t, k.Address(),
		protocol.CreateFile{Name: "same", PocketID: pocket},
		protocol.CreateFile{Name: "same", PocketID: pocket},
	)
	if rb.Len() != 2 || completion != packet.CompletionAll {
		t.Fatalf("results = %d completion = %s", rb.Len(), completion)
	}
	want := protocol.ServerLogicError{Text: duplicateFileMessage}
	if got := rb.At(1).Err.Detail; got != want {
		t.Fatalf("error = %+v, want %+v", got, want)
	}
}

func TestCreateFileInForeignPocket(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, DefaultPolicy())
	k, _ := f.register(t)
	_, foreign := f.register(t)
	rb, _ := f.run(t, k.Address(), protocol.CreateFile{Name: "x", PocketID: foreign})
	want := protocol.TargetNotOwnedError{Target: protocol.PocketTarget(foreign)}
	if got := singleError(t, rb).Detail; got != want {
		t.Fatalf("error = %+v, want %+v", got, want)
	}
}

func TestRequestPocketDepositAddress(t *testing.T) {
	testlog.Start(t)
	mem := store.NewMemory()
	issued := "mkDepositAddressForTests"
	provider := deposit.ProviderFunc(func(context.Context) (string, error) { return issued, nil })
	exec := New(mem, provider, DefaultPolicy())
	k, err := identity.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	hs, err := exec.Handshake(context.Background(), k.PublicKeyDER())
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	b, _ := protocol.NewBatch(protocol.RequestPocketDepositAddress{PocketID: hs.DefaultPocketID})
	rb, _ := exec.ExecuteBatch(context.Background(), k.Address(), b)
	if rb.At(0).IsError() {
		t.Fatalf("deposit address failed: %v", rb.At(0).Err)
	}
	if got := rb.At(0).Outcome.(protocol.RequestPocketDepositAddressResult).DepositAddress; got != issued {
		t.Fatalf("deposit address = %q", got)
	}
	p, err := mem.FetchPocket(context.Background(), hs.DefaultPocketID)
	if err != nil || p.DepositAddress != issued {
		t.Fatalf("stored deposit address = %q, %v", p.DepositAddress, err)
	}
}

func TestCostsAreReported(t *testing.T) {
	testlog.Start(t)
	policy := DefaultPolicy()
	policy.Costs = map[protocol.CommandTag]uint64{protocol.TagCreatePocket: 7, protocol.TagReadFileByID: 3}
	policy.NonFatal = map[protocol.ErrorKind]bool{protocol.KindInvalidTarget: true}
	f := newFixture(t, policy)
	k, pocket := f.register(t)
	f.fund(t, pocket, 50)

	rb, _ := f.run(t, k.Address(), protocol.CreatePocket{}, protocol.ReadFileByID{FileID: 404})
	if rb.At(0).Cost != 7 || rb.At(1).Cost != 0 {
		t.Fatalf("costs = %d, %d, want 7, 0", rb.At(0).Cost, rb.At(1).Cost)
	}
	if rb.TotalCost() != 7 {
		t.Fatalf("total cost = %d", rb.TotalCost())
	}
	if f.credit(t, pocket) != 50 {
		t.Fatalf("cost was debited")
	}
}

func TestResultLimitStopsBatch(t *testing.T) {
	testlog.Start(t)
	policy := DefaultPolicy()
	policy.ResultLimit = 300
	f := newFixture(t, policy)
	k, _ := f.register(t)

	cmds := make([]protocol.Command, 10)
	for i := range cmds {
		cmds[i] = protocol.CreatePocket{}
	}
	rb, completion := f.run(t, k.Address(), cmds...)
	if rb.Len() != 5 || completion != packet.CompletionSome {
		t.Fatalf("results = %d completion = %s, want 5 some", rb.Len(), completion)
	}
	last := rb.At(4)
	if !last.IsError() || !last.Err.Fatal || last.Err.Detail != (protocol.ServerLogicError{Text: limitMessage}) {
		t.Fatalf("last result = %+v", last)
	}
	raw, err := rb.Encode()
	if err != nil || len(raw) > 300 {
		t.Fatalf("encoded %d bytes, %v", len(raw), err)
	}
}

func TestResultLimitReplacesOversizedRead(t *testing.T) {
	testlog.Start(t)
	policy := DefaultPolicy()
	policy.ResultLimit = 300
	f := newFixture(t, policy)
	k, pocket := f.register(t)
	ctx := context.Background()
	fileID, err := f.mem.InsertFile(ctx, k.Address(), "big", pocket)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := f.mem.UpdateFileData(ctx, fileID, bytes.Repeat([]byte{'x'}, 250)); err != nil {
		t.Fatalf("update: %v", err)
	}

	rb, completion := f.run(t, k.Address(), protocol.ReadFileByID{FileID: fileID}, protocol.CreatePocket{})
	if rb.Len() != 1 || completion != packet.CompletionSome {
		t.Fatalf("results = %d completion = %s, want 1 some", rb.Len(), completion)
	}
	if rb.At(0).Err.Detail != (protocol.ServerLogicError{Text: limitMessage}) {
		t.Fatalf("result = %+v", rb.At(0))
	}
}

func TestLargestReadableFileRoundTrips(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, DefaultPolicy())
	k, pocket := f.register(t)
	largest := wire.MaxLen16 - 1 - readResultOverhead
	data := bytes.Repeat([]byte{'y'}, largest)

	rb, completion := f.run(t, k.Address(),
		protocol.CreateFile{Name: "f", PocketID: pocket},
		protocol.UpdateFileByID{FileID: 1, Data: data},
	)
	if completion != packet.CompletionAll || rb.Len() != 2 || rb.At(1).IsError() {
		t.Fatalf("write of %d bytes: completion = %s results = %+v", largest, completion, rb.Results())
	}

	rb, completion = f.run(t, k.Address(), protocol.ReadFileByID{FileID: 1})
	if completion != packet.CompletionAll || rb.At(0).IsError() {
		t.Fatalf("read failed: %+v", rb.At(0))
	}
	if got := rb.At(0).Outcome.(protocol.ReadFileByIDResult).Data; !bytes.Equal(got, data) {
		t.Fatalf("read %d bytes, want %d", len(got), largest)
	}
	raw, err := rb.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(raw) != wire.MaxLen16 {
		t.Fatalf("result batch = %d bytes, want %d", len(raw), wire.MaxLen16)
	}
	if _, err := packet.NewCommandBatchResponse(completion, rb); err != nil {
		t.Fatalf("response does not fit: %v", err)
	}
}

func TestUpdateRejectsUnreadableFileSize(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, DefaultPolicy())
	k, pocket := f.register(t)
	ctx := context.Background()
	fileID, err := f.mem.InsertFile(ctx, k.Address(), "f", pocket)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := f.mem.UpdateFileData(ctx, fileID, []byte("kept")); err != nil {
		t.Fatalf("update: %v", err)
	}

	// 65527 is the most data a single UpdateFileByID batch can carry.
	for _, n := range []int{wire.MaxLen16 - readResultOverhead, wire.MaxLen16 - 8} {
		rb, _ := f.run(t, k.Address(), protocol.UpdateFileByID{FileID: fileID, Data: bytes.Repeat([]byte{'z'}, n)})
		if singleError(t, rb).Kind() != protocol.KindServerLogic {
			t.Fatalf("write of %d bytes: %+v", n, rb.At(0))
		}
	}
	data, err := f.mem.ReadFileData(ctx, fileID)
	if err != nil || string(data) != "kept" {
		t.Fatalf("data = %q, %v", data, err)
	}
}

func TestLastReadUsesLimitReserve(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, Policy{ResultLimit: 300})
	k, pocket := f.register(t)
	ctx := context.Background()
	fileID, err := f.mem.InsertFile(ctx, k.Address(), "f", pocket)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	// 1 count byte plus an 11 byte read header leaves 288 bytes of data.
	if err := f.mem.UpdateFileData(ctx, fileID, bytes.Repeat([]byte{'r'}, 288)); err != nil {
		t.Fatalf("update: %v", err)
	}

	rb, completion := f.run(t, k.Address(), protocol.ReadFileByID{FileID: fileID})
	if completion != packet.CompletionAll || rb.At(0).IsError() {
		t.Fatalf("lone read: completion = %s result = %+v", completion, rb.At(0))
	}

	rb, completion = f.run(t, k.Address(), protocol.CreatePocket{}, protocol.ReadFileByID{FileID: fileID})
	if completion != packet.CompletionAll || rb.Len() != 2 {
		t.Fatalf("results = %d completion = %s", rb.Len(), completion)
	}
	if rb.At(1).Err.Detail != (protocol.ServerLogicError{Text: limitMessage}) {
		t.Fatalf("oversized last read = %+v", rb.At(1))
	}
	raw, err := rb.Encode()
	if err != nil || len(raw) > 300 {
		t.Fatalf("result batch = %d bytes, %v", len(raw), err)
	}
}

func TestServerLogicTextStaysValidUTF8(t *testing.T) {
	testlog.Start(t)
	// 199 ASCII bytes then a three byte rune straddling the clip point.
	err := serverLogic("%s€", strings.Repeat("a", maxLogicText-1))
	text := err.Detail.(protocol.ServerLogicError).Text
	if !utf8.ValidString(text) || len(text) != maxLogicText-1 {
		t.Fatalf("text = %d bytes, valid=%v", len(text), utf8.ValidString(text))
	}
	n, sizeErr := resultSize(protocol.Failed(0, err))
	if sizeErr != nil || n > worstCaseResult {
		t.Fatalf("result size = %d, %v", n, sizeErr)
	}
}
