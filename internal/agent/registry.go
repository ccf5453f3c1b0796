// Package agent keeps the client-side agent records: a name, the key
// pair that signs for it and the session it talks through.
package agent

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Syriven/netvend/internal/identity"
	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/protocol/packet"
	"github.com/Syriven/netvend/internal/protocol/session"
)

var (
	ErrNameRequired  = errors.New("agent: name required")
	ErrDuplicateName = errors.New("agent: name already registered")
	ErrUnknownAgent  = errors.New("agent: unknown agent")
	ErrNotAttached   = errors.New("agent: no server attached")
)

// Record is one agent known to the registry.
type Record struct {
	Name    string
	KeyPair *identity.KeyPair

	// DefaultPocketID is set by the first handshake that registers the
	// agent. Zero means the server already knew it.
	DefaultPocketID uint32
	Registered      bool

	client *session.Client
}

func (r *Record) Address() string { return r.KeyPair.Address() }

// Client returns the attached session, or nil.
func (r *Record) Client() *session.Client { return r.client }

// Registry owns agent records for one caller. It replaces any notion of
// process-wide connection state.
type Registry struct {
	cfg       session.Config
	handshake int

	mu     sync.Mutex
	agents map[string]*Record
}

func NewRegistry(cfg session.Config) *Registry {
	return &Registry{
		cfg:       cfg.WithDefaults(),
		handshake: 3,
		agents:    map[string]*Record{},
	}
}

// SetHandshakeAttempts bounds how often a handshake is retried after a
// dial failure.
func (r *Registry) SetHandshakeAttempts(n int) {
	if n < 1 {
		n = 1
	}
	r.handshake = n
}

func (r *Registry) Add(name string, k *identity.KeyPair) (*Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if k == nil {
		return nil, fmt.Errorf("agent: %s: nil key pair", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	rec := &Record{Name: name, KeyPair: k}
	r.agents[name] = rec
	log.Debug().Str("agent", name).Str("address", rec.Address()).Msg("agent.Registry added")
	return rec, nil
}

// Generate creates a fresh key pair under name.
func (r *Registry) Generate(name string) (*Record, error) {
	k, err := identity.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, err
	}
	return r.Add(name, k)
}

// Load registers the key pair stored at path under name.
func (r *Registry) Load(name, path string) (*Record, error) {
	k, err := identity.ReadKeyFile(path)
	if err != nil {
		return nil, err
	}
	return r.Add(name, k)
}

func (r *Registry) Get(name string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	return rec, nil
}

// Names lists registered agents in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.agents))
	for name := range r.agents {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Remove drops name, closing its session first.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	rec, ok := r.agents[name]
	if ok {
		delete(r.agents, name)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	detach(rec)
	return nil
}

// Attach points name at the server at addr. Any previous session is
// disconnected explicitly before the new one replaces it.
func (r *Registry) Attach(name, addr string) error {
	client, err := session.NewClient(addr, r.cfg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	detach(rec)
	rec.client = client
	log.Debug().Str("agent", name).Str("server", client.Addr()).Msg("agent.Registry attached")
	return nil
}

func detach(rec *Record) {
	if rec.client == nil {
		return
	}
	if rec.client.State() != session.StateDisconnected {
		if err := rec.client.Disconnect(); err != nil {
			log.Debug().Err(err).Str("agent", rec.Name).Msg("agent.Registry disconnect")
		}
	}
	rec.client = nil
}

func (r *Registry) attached(name string) (*Record, *session.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	if rec.client == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotAttached, name)
	}
	return rec, rec.client, nil
}

// Handshake registers name with its server. Only dial failures are
// retried; once the packet is written the server may have registered the
// key, and a repeat would report it as already known.
func (r *Registry) Handshake(ctx context.Context, name string) (packet.HandshakeResponse, error) {
	rec, client, err := r.attached(name)
	if err != nil {
		return packet.HandshakeResponse{}, err
	}
	var resp packet.HandshakeResponse
	err = session.Retry(ctx, r.cfg.Backoff, r.handshake, func() error {
		var err error
		resp, err = client.Handshake(ctx, rec.KeyPair)
		return err
	})
	if err != nil {
		return packet.HandshakeResponse{}, err
	}

	r.mu.Lock()
	rec.Registered = true
	if resp.IsNewAgent {
		rec.DefaultPocketID = resp.DefaultPocketID
	}
	r.mu.Unlock()
	log.Info().
		Str("agent", name).
		Bool("new_agent", resp.IsNewAgent).
		Uint32("default_pocket", resp.DefaultPocketID).
		Msg("agent.Registry handshake")
	return resp, nil
}

// Execute signs b as name and sends it once. Batches are never retried.
func (r *Registry) Execute(ctx context.Context, name string, b *protocol.Batch) (session.BatchOutcome, error) {
	rec, client, err := r.attached(name)
	if err != nil {
		return session.BatchOutcome{}, err
	}
	out, err := client.SendBatch(ctx, rec.KeyPair, b)
	if err != nil {
		return session.BatchOutcome{}, err
	}
	log.Debug().
		Str("agent", name).
		Int("commands", b.Len()).
		Int("results", out.Results.Len()).
		Str("completion", out.Completion.String()).
		Msg("agent.Registry execute")
	return out, nil
}

// Close detaches every agent.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.agents {
		detach(rec)
	}
}
