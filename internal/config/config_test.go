package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/store/sqlitestore"
	"github.com/Syriven/netvend/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netvendd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestServerTemplateLoads(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "server.toml")
	if err := WriteTemplate(path, "server", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, "server", false); err == nil {
		t.Fatalf("expected existing template to be kept")
	}
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != BackendSQLite || cfg.General.CreditsPerSatoshi != 1000 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if got := cfg.FeesConfig().Interval; got != time.Hour {
		t.Fatalf("fee interval = %s", got)
	}
	if got := cfg.SQLiteConfig().Compression; got != sqlitestore.CodecZstd {
		t.Fatalf("compression = %s", got)
	}
	if got := cfg.AdminConfig().Token; got != "change-me" {
		t.Fatalf("admin token = %q", got)
	}
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := LoadServerConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != ":8395" || cfg.Storage.Backend != BackendMemory {
		t.Fatalf("cfg = %+v", cfg)
	}
	sc := cfg.SessionConfig()
	if sc.ReadTimeout != 15*time.Second || sc.ConnectTimeout <= 0 {
		t.Fatalf("session = %+v", sc)
	}
	p := cfg.Policy()
	if p.ResultLimit != 65535 || p.PrivateReads || len(p.NonFatal) != 0 {
		t.Fatalf("policy = %+v", p)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	testlog.Start(t)
	cfg, err := LoadServerConfig(writeConfig(t, `
[executor]
non_fatal_errors = ["invalid-target", "server-logic"]
private_reads = true
result_limit = 4096

[executor.costs]
create_file = 5
read_file_by_id = 2
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p := cfg.Policy()
	if !p.PrivateReads || p.ResultLimit != 4096 {
		t.Fatalf("policy = %+v", p)
	}
	if !p.NonFatal[protocol.KindInvalidTarget] || !p.NonFatal[protocol.KindServerLogic] || p.NonFatal[protocol.KindCreditOverflow] {
		t.Fatalf("non fatal = %v", p.NonFatal)
	}
	if p.Costs[protocol.TagCreateFile] != 5 || p.Costs[protocol.TagReadFileByID] != 2 || p.Costs[protocol.TagCreatePocket] != 0 {
		t.Fatalf("costs = %v", p.Costs)
	}
}

func TestValidateServerConfigRejects(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"backend":     "[storage]\nbackend = \"postgres\"\n",
		"sqlite path": "[storage]\nbackend = \"sqlite\"\n",
		"codec":       "[storage]\ncompression = \"brotli\"\n",
		"interval":    "[fees]\ninterval = \"0s\"\n",
		"rate":        "[general]\ncredits_per_satoshi = 0\n",
		"cost name":   "[executor.costs]\nmint = 1\n",
		"error kind":  "[executor]\nnon_fatal_errors = [\"oops\"]\n",
		"network":     "[deposit]\nnetwork = \"dogecoin\"\n",
		"timeout":     "[session]\nread_timeout = \"soon\"\n",
		"listen":      "[server]\nlisten = \" \"\n",
	}
	for name, body := range cases {
		if _, err := LoadServerConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)
	_, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "config load failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestTemplateKinds(t *testing.T) {
	testlog.Start(t)
	if _, err := Template("client"); err != nil {
		t.Fatalf("client template: %v", err)
	}
	if _, err := Template("ghost"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
