package server

import (
	"context"
	"errors"
	"net"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Syriven/netvend/internal/executor"
	"github.com/Syriven/netvend/internal/observability"
	"github.com/Syriven/netvend/internal/protocol/packet"
	"github.com/Syriven/netvend/internal/protocol/session"
)

// ServiceConfig is the protocol listener configuration.
type ServiceConfig struct {
	ListenAddr string
	Session    session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr: ":8395",
		Session:    session.DefaultConfig(),
	}
}

// Service accepts agent connections and answers one packet on each.
type Service struct {
	cfg   ServiceConfig
	exec  *executor.Executor
	admin *Admin

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	activeConns atomic.Int64
}

func NewService(cfg ServiceConfig, exec *executor.Executor) *Service {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultServiceConfig().ListenAddr
	}
	cfg.Session = cfg.Session.WithDefaults()
	return &Service{
		cfg:   cfg,
		exec:  exec,
		conns: make(map[net.Conn]struct{}),
	}
}

// AttachAdmin runs admin alongside the protocol listener in Run.
func (s *Service) AttachAdmin(admin *Admin) {
	s.admin = admin
	admin.setConnCounter(s.ActiveConns)
}

func (s *Service) ActiveConns() int64 {
	return s.activeConns.Load()
}

// Run listens on the configured addresses and blocks until ctx ends or
// SIGINT/SIGTERM arrives.
func (s *Service) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("server.Service.Run listening")

	adminErr := make(chan error, 1)
	if s.admin != nil {
		adminLn, err := net.Listen("tcp", s.admin.Addr())
		if err != nil {
			_ = ln.Close()
			return err
		}
		log.Info().Str("addr", adminLn.Addr().String()).Msg("server.Service.Run admin listening")
		go func() {
			adminErr <- s.admin.Serve(ctx, adminLn)
		}()
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()
	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			stop()
			<-serveErr
			return err
		}
		return <-serveErr
	}
}

// Serve runs the accept loop on an existing listener until ctx ends.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		go s.handleConn(ctx, conn)
	}
}

func (s *Service) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)

	observability.RecordConnection()
	logger := log.With().
		Str("conn", uuid.NewString()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()
	active := s.activeConns.Add(1)
	logger.Debug().Int64("active", active).Msg("server.handleConn connected")
	defer func() {
		remaining := s.activeConns.Add(-1)
		logger.Debug().Int64("active", remaining).Msg("server.handleConn disconnected")
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.Session.ReadTimeout))
	pkt, err := packet.ReadPacket(conn)
	if err != nil {
		observability.RecordPacket("unknown", "decode_error")
		logger.Warn().Err(err).Msg("server.handleConn read packet")
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.Session.WriteTimeout))
	switch p := pkt.(type) {
	case packet.Handshake:
		resp, err := s.exec.Handshake(ctx, p.PublicKeyDER)
		if err != nil {
			observability.RecordPacket("handshake", "rejected")
			logger.Warn().Err(err).Msg("server.handleConn handshake")
			return
		}
		if err := packet.WriteHandshakeResponse(conn, resp); err != nil {
			observability.RecordPacket("handshake", "write_error")
			logger.Warn().Err(err).Msg("server.handleConn write handshake response")
			return
		}
		observability.RecordPacket("handshake", "ok")
		logger.Debug().Bool("new_agent", resp.IsNewAgent).Msg("server.handleConn handshake answered")

	case packet.CommandBatch:
		resp, err := s.exec.HandleCommandBatch(ctx, p)
		if err != nil {
			observability.RecordPacket("batch", "decode_error")
			logger.Warn().Err(err).Str("agent", p.Address).Msg("server.handleConn decode batch")
			return
		}
		if err := packet.WriteCommandBatchResponse(conn, resp); err != nil {
			observability.RecordPacket("batch", "write_error")
			logger.Warn().Err(err).Msg("server.handleConn write batch response")
			return
		}
		outcome := "ok"
		if resp.Completion == packet.CompletionNone {
			outcome = "auth_failed"
		}
		observability.RecordPacket("batch", outcome)
		logger.Debug().
			Str("agent", p.Address).
			Str("completion", resp.Completion.String()).
			Msg("server.handleConn batch answered")

	default:
		observability.RecordPacket("unknown", "unsupported")
		logger.Warn().Str("tag", pkt.Tag().String()).Msg("server.handleConn unsupported packet")
	}
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}
