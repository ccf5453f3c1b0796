package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/Syriven/netvend/internal/deposit"
	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/store/sqlitestore"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type ServerConfig struct {
	Server   ServerSection   `toml:"server"`
	Admin    AdminSection    `toml:"admin"`
	Storage  StorageSection  `toml:"storage"`
	Fees     FeesSection     `toml:"fees"`
	General  GeneralSection  `toml:"general"`
	Executor ExecutorSection `toml:"executor"`
	Deposit  DepositSection  `toml:"deposit"`
	Session  SessionSection  `toml:"session"`
}

type ServerSection struct {
	Listen string `toml:"listen"`
}

type AdminSection struct {
	Listen      string   `toml:"listen"`
	Token       string   `toml:"token"`
	CorsOrigins []string `toml:"cors_origins"`
}

type StorageSection struct {
	Backend     string `toml:"backend"`
	Path        string `toml:"path"`
	PoolSize    int    `toml:"pool_size"`
	Compression string `toml:"compression"`
}

type FeesSection struct {
	Interval string `toml:"interval"`
	PerFile  uint64 `toml:"per_file"`
	PerByte  uint64 `toml:"per_byte"`
}

type GeneralSection struct {
	CreditsPerSatoshi uint64 `toml:"credits_per_satoshi"`
}

type ExecutorSection struct {
	Costs          map[string]uint64 `toml:"costs"`
	NonFatalErrors []string          `toml:"non_fatal_errors"`
	PrivateReads   bool              `toml:"private_reads"`
	ResultLimit    int               `toml:"result_limit"`
}

type DepositSection struct {
	Seed    string `toml:"seed"`
	Network string `toml:"network"`
}

type SessionSection struct {
	ReadTimeout  string `toml:"read_timeout"`
	WriteTimeout string `toml:"write_timeout"`
}

// DefaultServerConfig is what an empty config file loads as.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Server: ServerSection{Listen: ":8395"},
		Admin:  AdminSection{Listen: "127.0.0.1:8396"},
		Storage: StorageSection{
			Backend:     BackendMemory,
			PoolSize:    4,
			Compression: "zstd",
		},
		Fees:    FeesSection{Interval: "1h"},
		General: GeneralSection{CreditsPerSatoshi: 1},
		Deposit: DepositSection{Network: "mainnet"},
		Session: SessionSection{ReadTimeout: "15s", WriteTimeout: "15s"},
	}
}

func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := loadToml(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateServerConfig(cfg ServerConfig) error {
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		return fmt.Errorf("server config missing server.listen")
	}
	switch cfg.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
		if cfg.Storage.PoolSize < 0 {
			return fmt.Errorf("storage.pool_size must not be negative")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", cfg.Storage.Backend)
	}
	if _, err := sqlitestore.ParseCodec(cfg.Storage.Compression); err != nil {
		return fmt.Errorf("storage.compression: %w", err)
	}
	if d, err := parseDuration(cfg.Fees.Interval); err != nil || d <= 0 {
		return fmt.Errorf("fees.interval must be a positive duration, got %q", cfg.Fees.Interval)
	}
	if cfg.General.CreditsPerSatoshi == 0 {
		return fmt.Errorf("general.credits_per_satoshi must be positive")
	}
	for name := range cfg.Executor.Costs {
		if _, err := protocol.ParseCommandTag(name); err != nil {
			return fmt.Errorf("executor.costs: %w", err)
		}
	}
	for i, name := range cfg.Executor.NonFatalErrors {
		if _, err := protocol.ParseErrorKind(name); err != nil {
			return fmt.Errorf("executor.non_fatal_errors[%d]: %w", i, err)
		}
	}
	if cfg.Executor.ResultLimit < 0 {
		return fmt.Errorf("executor.result_limit must not be negative")
	}
	if _, err := deposit.NetworkVersion(cfg.Deposit.Network); err != nil {
		return fmt.Errorf("deposit.network: %w", err)
	}
	if _, err := parseDuration(cfg.Session.ReadTimeout); err != nil {
		return fmt.Errorf("session.read_timeout: %w", err)
	}
	if _, err := parseDuration(cfg.Session.WriteTimeout); err != nil {
		return fmt.Errorf("session.write_timeout: %w", err)
	}
	return nil
}

// parseDuration treats an empty value as unset.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}
