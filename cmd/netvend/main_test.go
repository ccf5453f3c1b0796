package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/Syriven/netvend/internal/executor"
	"github.com/Syriven/netvend/internal/server"
	"github.com/Syriven/netvend/internal/store"
	"github.com/Syriven/netvend/internal/testutil/testlog"
)

func startServer(t *testing.T) (string, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := server.NewService(server.ServiceConfig{}, executor.New(mem, nil, executor.DefaultPolicy()))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = svc.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = mem.Close()
	})
	return ln.Addr().String(), mem
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLIRoundTrip(t *testing.T) {
	testlog.Start(t)
	addr, mem := startServer(t)
	key := filepath.Join(t.TempDir(), "agent.pem")
	common := []string{"--server", addr, "--key", key}

	if _, err := runCLI(t, append([]string{"keygen"}, common...)...); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if _, err := runCLI(t, append([]string{"keygen"}, common...)...); err == nil {
		t.Fatalf("keygen should refuse to overwrite without --force")
	}

	out, err := runCLI(t, append([]string{"handshake", "-o", "json"}, common...)...)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	var hs handshakeView
	if err := json.Unmarshal([]byte(out), &hs); err != nil {
		t.Fatalf("decode handshake %q: %v", out, err)
	}
	if !hs.IsNewAgent || hs.DefaultPocketID != 1 {
		t.Fatalf("handshake = %+v", hs)
	}

	if err := mem.CreditPocket(context.Background(), 1, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}
	out, err = runCLI(t, append([]string{"batch", "-o", "json",
		"create-pocket", "transfer:1:2:30", "create-file:1:hello", "update-file:1:hi", "read-file:1"}, common...)...)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	var bv batchView
	if err := json.Unmarshal([]byte(out), &bv); err != nil {
		t.Fatalf("decode batch %q: %v", out, err)
	}
	if bv.Completion != "all" || len(bv.Results) != 5 {
		t.Fatalf("batch = %+v", bv)
	}
	if bv.Results[0].PocketID != 2 || bv.Results[2].FileID != 1 || bv.Results[4].Data != "hi" {
		t.Fatalf("batch results = %+v", bv.Results)
	}

	out, err = runCLI(t, append([]string{"transfer", "1", "2", "1000", "-o", "yaml"}, common...)...)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	var yv batchView
	if err := yaml.Unmarshal([]byte(out), &yv); err != nil {
		t.Fatalf("decode yaml %q: %v", out, err)
	}
	if yv.Completion != "all" || len(yv.Results) != 1 || yv.Results[0].ErrorKind != "credit-insufficient" {
		t.Fatalf("transfer = %+v", yv)
	}

	out, err = runCLI(t, append([]string{"read-file", "1"}, common...)...)
	if err != nil {
		t.Fatalf("read-file: %v", err)
	}
	if !strings.Contains(out, `utf8 "hi"`) {
		t.Fatalf("text output = %q", out)
	}
}

func TestCLIUnregisteredAgentIsRejected(t *testing.T) {
	testlog.Start(t)
	addr, _ := startServer(t)
	key := filepath.Join(t.TempDir(), "agent.pem")
	if _, err := runCLI(t, "keygen", "--key", key); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	out, err := runCLI(t, "create-pocket", "--server", addr, "--key", key)
	if err != errBatchRejected {
		t.Fatalf("err = %v, want errBatchRejected", err)
	}
	if !strings.Contains(out, "completion none") {
		t.Fatalf("output = %q", out)
	}
}

func TestCLIMissingKey(t *testing.T) {
	testlog.Start(t)
	_, err := runCLI(t, "handshake", "--server", "127.0.0.1:1", "--key", filepath.Join(t.TempDir(), "none.pem"))
	if err == nil || !strings.Contains(err.Error(), "keygen") {
		t.Fatalf("err = %v", err)
	}
}
