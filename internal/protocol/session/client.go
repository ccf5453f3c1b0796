package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Syriven/netvend/internal/identity"
	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/protocol/packet"
)

var (
	ErrAddressRequired  = errors.New("session: server address required")
	ErrAlreadyConnected = errors.New("session: already connected")
	ErrNotConnected     = errors.New("session: not connected")
	ErrRequestInFlight  = errors.New("session: request already in flight")
	ErrTransport        = errors.New("session: transport failure")

	// ErrDial marks a transport failure before any request bytes were sent.
	ErrDial = errors.New("session: dial failed")
)

// State is where a Client is in its round trip.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// BatchOutcome is the decoded answer to a command batch.
type BatchOutcome struct {
	Completion packet.Completion
	Results    *protocol.ResultBatch
}

// Client performs strictly synchronous round trips against one server.
type Client struct {
	addr string
	cfg  Config

	mu    sync.Mutex
	state State
	conn  net.Conn
}

func NewClient(addr string, cfg Config) (*Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, ErrAddressRequired
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, fmt.Sprint(DefaultPort))
	}
	return &Client{addr: addr, cfg: cfg.WithDefaults()}, nil
}

func (c *Client) Addr() string { return c.addr }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the server. It fails instead of silently reconnecting
// when a connection is already open.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnected
	c.mu.Unlock()

	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("%w: %w: %s: %w", ErrTransport, ErrDial, c.addr, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	log.Debug().Str("addr", c.addr).Msg("session.Client connected")
	return nil
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		return ErrNotConnected
	}
	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	c.conn = nil
	c.state = StateDisconnected
	return err
}

// Handshake registers pub with the server.
func (c *Client) Handshake(ctx context.Context, k *identity.KeyPair) (packet.HandshakeResponse, error) {
	var resp packet.HandshakeResponse
	err := c.roundTrip(ctx, packet.Handshake{PublicKeyDER: k.PublicKeyDER()}, func(r io.Reader) error {
		var err error
		resp, err = packet.ReadHandshakeResponse(r)
		return err
	})
	return resp, err
}

// SendBatch signs b with k, sends it and decodes the results against b.
func (c *Client) SendBatch(ctx context.Context, k *identity.KeyPair, b *protocol.Batch) (BatchOutcome, error) {
	p, err := packet.NewCommandBatch(k, b)
	if err != nil {
		return BatchOutcome{}, err
	}
	var resp packet.CommandBatchResponse
	err = c.roundTrip(ctx, p, func(r io.Reader) error {
		var err error
		resp, err = packet.ReadCommandBatchResponse(r)
		return err
	})
	if err != nil {
		return BatchOutcome{}, err
	}
	rb, err := resp.Decode(b)
	if err != nil {
		return BatchOutcome{}, fmt.Errorf("session: decode results: %w", err)
	}
	return BatchOutcome{Completion: resp.Completion, Results: rb}, nil
}

func (c *Client) roundTrip(ctx context.Context, p packet.Packet, read func(io.Reader) error) error {
	buf, err := packet.Encode(p)
	if err != nil {
		return err
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.state = StateAwaitingResponse
	c.mu.Unlock()
	defer func() {
		_ = c.Disconnect()
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if _, err := conn.Write(buf); err != nil {
		return c.transportErr(ctx, "write "+p.Tag().String(), err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	if err := read(conn); err != nil {
		return c.transportErr(ctx, "read response", err)
	}
	return nil
}

func (c *Client) transportErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	log.Debug().Str("addr", c.addr).Str("op", op).Err(err).Msg("session.Client transport failure")
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
