// netvendd serves the netvend protocol: agent handshakes and signed
// command batches on the protocol port, plus an operator admin API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/Syriven/netvend/internal/config"
	"github.com/Syriven/netvend/internal/deposit"
	"github.com/Syriven/netvend/internal/executor"
	"github.com/Syriven/netvend/internal/fees"
	"github.com/Syriven/netvend/internal/observability"
	"github.com/Syriven/netvend/internal/server"
	"github.com/Syriven/netvend/internal/store"
	"github.com/Syriven/netvend/internal/store/sqlitestore"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "netvendd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		listen     string
		adminAddr  string
		dbPath     string
		noAdmin    bool
		noFees     bool
	)
	flagSet := pflag.NewFlagSet("netvendd", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "server config TOML (defaults apply when empty)")
	flagSet.StringVar(&listen, "listen", "", "override server.listen")
	flagSet.StringVar(&adminAddr, "admin", "", "override admin.listen")
	flagSet.StringVar(&dbPath, "db", "", "use the sqlite backend at this path")
	flagSet.BoolVar(&noAdmin, "no-admin", false, "do not serve the admin API")
	flagSet.BoolVar(&noFees, "no-fees", false, "disable the upkeep fee sweep")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	observability.InitLogger("netvendd")
	gin.SetMode(gin.ReleaseMode)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if adminAddr != "" {
		cfg.Admin.Listen = adminAddr
	}
	if dbPath != "" {
		cfg.Storage.Backend = config.BackendSQLite
		cfg.Storage.Path = dbPath
	}
	if err := config.ValidateServerConfig(cfg); err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("netvendd close store")
		}
	}()

	deposits, err := deposit.NewDerived(cfg.Deposit.Seed, cfg.Deposit.Network)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Deposit.Seed) == "" {
		log.Warn().Msg("netvendd deposit.seed is empty; deposit addresses cannot be reproduced after restart")
	}
	observability.RegisterMetrics()

	exec := executor.New(st, deposits, cfg.Policy())
	svc := server.NewService(cfg.ServiceConfig(), exec)
	if !noAdmin && strings.TrimSpace(cfg.Admin.Listen) != "" {
		if cfg.Admin.Token == "" {
			log.Warn().Msg("netvendd admin.token is empty; deposits are disabled")
		}
		svc.AttachAdmin(server.NewAdmin(cfg.AdminConfig(), st))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !noFees {
		sweeper, err := fees.NewSweeper(st, cfg.FeesConfig())
		if err != nil {
			return err
		}
		go func() {
			if err := sweeper.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("netvendd fee sweeper stopped")
			}
		}()
	}

	log.Info().
		Str("listen", cfg.Server.Listen).
		Str("storage", cfg.Storage.Backend).
		Str("network", cfg.Deposit.Network).
		Msg("netvendd starting")
	return svc.Run(runCtx)
}

func loadConfig(path string) (config.ServerConfig, error) {
	if path == "" {
		return config.DefaultServerConfig(), nil
	}
	return config.LoadServerConfig(path)
}

func openStore(ctx context.Context, cfg config.ServerConfig) (store.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		return sqlitestore.Open(ctx, cfg.SQLiteConfig())
	default:
		log.Warn().Msg("netvendd using in-memory storage; state is lost on exit")
		return store.NewMemory(), nil
	}
}
