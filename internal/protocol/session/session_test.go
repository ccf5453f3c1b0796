package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/Syriven/netvend/internal/identity"
	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/protocol/packet"
	"github.com/Syriven/netvend/internal/testutil/testlog"
)

func testConfig() Config {
	return Config{
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    2 * time.Second,
		WriteTimeout:   2 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: time.Millisecond,
			Multiplier:   1.0,
			MaxDelay:     time.Millisecond,
		},
	}
}

// serveOnce accepts one connection, hands it to handle and closes it.
func serveOnce(t *testing.T, handle func(net.Conn)) (string, <-chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()
	return ln.Addr().String(), done
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2.0, MaxDelay: time.Second, Jitter: true}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		got := NextBackoffDelay(cfg, 3, rng)
		if got < 200*time.Millisecond || got > 600*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{ReadTimeout: time.Second}.WithDefaults()
	if cfg.ReadTimeout != time.Second {
		t.Fatalf("explicit read timeout overwritten: %v", cfg.ReadTimeout)
	}
	if cfg.ConnectTimeout != DefaultConfig().ConnectTimeout || cfg.Backoff.InitialDelay == 0 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestNewClientAddsDefaultPort(t *testing.T) {
	testlog.Start(t)
	c, err := NewClient("vend.example", Config{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.Addr() != "vend.example:8395" {
		t.Fatalf("unexpected addr %q", c.Addr())
	}
	if _, err := NewClient("  ", Config{}); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
}

func TestHandshakeRoundTripReturnsToDisconnected(t *testing.T) {
	testlog.Start(t)
	k, _ := identity.GenerateKeyPair(nil)
	addr, done := serveOnce(t, func(conn net.Conn) {
		p, err := packet.ReadPacket(conn)
		if err != nil {
			return
		}
		if _, ok := p.(packet.Handshake); !ok {
			return
		}
		_ = packet.WriteHandshakeResponse(conn, packet.HandshakeResponse{IsNewAgent: true, DefaultPocketID: 3})
	})

	c, err := NewClient(addr, testConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := c.Handshake(context.Background(), k)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if !resp.IsNewAgent || resp.DefaultPocketID != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("state after round trip = %s", c.State())
	}
	<-done
}

func TestSendBatchDecodesAgainstSentBatch(t *testing.T) {
	testlog.Start(t)
	k, _ := identity.GenerateKeyPair(nil)
	addr, done := serveOnce(t, func(conn net.Conn) {
		p, err := packet.ReadPacket(conn)
		if err != nil {
			return
		}
		cb := p.(packet.CommandBatch)
		if identity.Verify(k.PublicKeyDER(), cb.Payload, cb.Signature) != nil {
			return
		}
		b, err := cb.Batch()
		if err != nil {
			return
		}
		rb := protocol.NewResultBatch(b)
		_ = rb.Append(protocol.Succeeded(0, protocol.CreatePocketResult{PocketID: 11}))
		_ = rb.Append(protocol.Failed(0, protocol.NewTargetNotOwned(protocol.FileTarget(2))))
		resp, _ := packet.NewCommandBatchResponse(packet.CompletionSome, rb)
		_ = packet.WriteCommandBatchResponse(conn, resp)
	})

	c, _ := NewClient(addr, testConfig())
	b, _ := protocol.NewBatch(protocol.CreatePocket{}, protocol.ReadFileByID{FileID: 2}, protocol.CreatePocket{})
	out, err := c.SendBatch(context.Background(), k, b)
	if err != nil {
		t.Fatalf("send batch: %v", err)
	}
	if out.Completion != packet.CompletionSome || out.Results.Len() != 2 {
		t.Fatalf("unexpected outcome completion=%s len=%d", out.Completion, out.Results.Len())
	}
	if got := out.Results.At(0).Outcome.(protocol.CreatePocketResult).PocketID; got != 11 {
		t.Fatalf("pocket id = %d", got)
	}
	<-done
}

func TestTransportFailureLeavesClientDisconnected(t *testing.T) {
	testlog.Start(t)
	k, _ := identity.GenerateKeyPair(nil)
	addr, done := serveOnce(t, func(conn net.Conn) {
		_, _ = packet.ReadPacket(conn)
	})
	c, _ := NewClient(addr, testConfig())
	_, err := c.Handshake(context.Background(), k)
	if !errors.Is(err, ErrTransport) || errors.Is(err, ErrDial) {
		t.Fatalf("expected a non-dial transport error, got %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("state after failure = %s", c.State())
	}
	<-done
}

func TestDialFailureIsTransportError(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	k, _ := identity.GenerateKeyPair(nil)
	c, _ := NewClient(addr, testConfig())
	if _, err := c.Handshake(context.Background(), k); !errors.Is(err, ErrTransport) || !errors.Is(err, ErrDial) {
		t.Fatalf("expected ErrTransport and ErrDial, got %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("state after dial failure = %s", c.State())
	}
}

func TestConnectWhileConnectedFails(t *testing.T) {
	testlog.Start(t)
	addr, done := serveOnce(t, func(conn net.Conn) {
		buf := make([]byte, 1)
		_, _ = conn.Read(buf)
	})
	c, _ := NewClient(addr, testConfig())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	k, _ := identity.GenerateKeyPair(nil)
	if _, err := c.Handshake(context.Background(), k); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("round trip on open connection should fail, got %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := c.Disconnect(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	<-done
}

func TestOversizedBatchFailsBeforeConnecting(t *testing.T) {
	testlog.Start(t)
	k, _ := identity.GenerateKeyPair(nil)
	c, _ := NewClient("127.0.0.1:1", testConfig())
	b := &protocol.Batch{}
	for i := 0; i < 2; i++ {
		_ = b.Add(protocol.UpdateFileByID{FileID: 1, Data: make([]byte, protocol.MaxFileDataLen)})
	}
	_, err := c.SendBatch(context.Background(), k, b)
	if !errors.Is(err, packet.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if errors.Is(err, ErrTransport) {
		t.Fatalf("precondition failure must not be a transport error")
	}
}

func TestRetryOnlyRetriesDialErrors(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig().Backoff
	calls := 0
	dialErr := fmt.Errorf("%w: %w: refused", ErrTransport, ErrDial)
	err := Retry(context.Background(), cfg, 3, func() error {
		calls++
		return dialErr
	})
	if !errors.Is(err, ErrDial) || calls != 3 {
		t.Fatalf("expected 3 dial attempts, got calls=%d err=%v", calls, err)
	}

	for _, other := range []error{
		fmt.Errorf("%w: read response: %w", ErrTransport, io.EOF),
		errors.New("boom"),
	} {
		calls = 0
		err = Retry(context.Background(), cfg, 3, func() error {
			calls++
			return other
		})
		if !errors.Is(err, other) || calls != 1 {
			t.Fatalf("%v must not retry, calls=%d err=%v", other, calls, err)
		}
	}
}
