package config

import (
	"strings"

	"github.com/Syriven/netvend/internal/executor"
	"github.com/Syriven/netvend/internal/fees"
	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/protocol/session"
	"github.com/Syriven/netvend/internal/server"
	"github.com/Syriven/netvend/internal/store"
	"github.com/Syriven/netvend/internal/store/sqlitestore"
)

// The conversions below assume cfg passed ValidateServerConfig.

func (cfg ServerConfig) ServiceConfig() server.ServiceConfig {
	out := server.DefaultServiceConfig()
	out.ListenAddr = strings.TrimSpace(cfg.Server.Listen)
	out.Session = cfg.SessionConfig()
	return out
}

func (cfg ServerConfig) SessionConfig() session.Config {
	read, _ := parseDuration(cfg.Session.ReadTimeout)
	write, _ := parseDuration(cfg.Session.WriteTimeout)
	return session.Config{ReadTimeout: read, WriteTimeout: write}.WithDefaults()
}

func (cfg ServerConfig) AdminConfig() server.AdminConfig {
	return server.AdminConfig{
		ListenAddr:        strings.TrimSpace(cfg.Admin.Listen),
		Token:             strings.TrimSpace(cfg.Admin.Token),
		CORSOrigins:       cfg.Admin.CorsOrigins,
		CreditsPerSatoshi: cfg.General.CreditsPerSatoshi,
	}
}

func (cfg ServerConfig) SQLiteConfig() sqlitestore.Config {
	codec, _ := sqlitestore.ParseCodec(cfg.Storage.Compression)
	return sqlitestore.Config{
		Path:        cfg.Storage.Path,
		PoolSize:    cfg.Storage.PoolSize,
		Compression: codec,
	}
}

func (cfg ServerConfig) FeesConfig() fees.Config {
	interval, _ := parseDuration(cfg.Fees.Interval)
	return fees.Config{
		Interval: interval,
		Schedule: store.FeeSchedule{PerFile: cfg.Fees.PerFile, PerByte: cfg.Fees.PerByte},
	}
}

func (cfg ServerConfig) Policy() executor.Policy {
	policy := executor.DefaultPolicy()
	policy.PrivateReads = cfg.Executor.PrivateReads
	if cfg.Executor.ResultLimit > 0 {
		policy.ResultLimit = cfg.Executor.ResultLimit
	}
	if len(cfg.Executor.Costs) > 0 {
		policy.Costs = make(map[protocol.CommandTag]uint64, len(cfg.Executor.Costs))
		for name, cost := range cfg.Executor.Costs {
			if tag, err := protocol.ParseCommandTag(name); err == nil {
				policy.Costs[tag] = cost
			}
		}
	}
	if len(cfg.Executor.NonFatalErrors) > 0 {
		policy.NonFatal = make(map[protocol.ErrorKind]bool, len(cfg.Executor.NonFatalErrors))
		for _, name := range cfg.Executor.NonFatalErrors {
			if kind, err := protocol.ParseErrorKind(name); err == nil {
				policy.NonFatal[kind] = true
			}
		}
	}
	return policy
}
