package deposit

import (
	"context"
	"errors"
	"testing"

	"github.com/Syriven/netvend/internal/identity"
	"github.com/Syriven/netvend/internal/testutil/testlog"
)

func TestDerivedAddressesAreUniqueAndWellFormed(t *testing.T) {
	testlog.Start(t)
	d, err := NewDerived("operator seed", "mainnet")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		addr, err := d.NewDepositAddress(context.Background())
		if err != nil {
			t.Fatalf("address: %v", err)
		}
		if len(addr) == 0 || len(addr) > identity.MaxAddressSize {
			t.Fatalf("address length = %d", len(addr))
		}
		if addr[0] != '1' {
			t.Fatalf("mainnet address %q does not start with 1", addr)
		}
		version, payload, err := identity.DecodeCheck(addr)
		if err != nil {
			t.Fatalf("decode %q: %v", addr, err)
		}
		if version != VersionMainnet || len(payload) != 20 {
			t.Fatalf("version=%d payload=%d", version, len(payload))
		}
		if seen[addr] {
			t.Fatalf("duplicate address %q", addr)
		}
		seen[addr] = true
	}
	if d.Issued() != 64 {
		t.Fatalf("issued = %d", d.Issued())
	}
}

func TestTestnetVersion(t *testing.T) {
	testlog.Start(t)
	d, err := NewDerived("", "testnet")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	addr, err := d.NewDepositAddress(context.Background())
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	version, _, err := identity.DecodeCheck(addr)
	if err != nil || version != VersionTestnet {
		t.Fatalf("version = %d, %v", version, err)
	}
}

func TestUnknownNetwork(t *testing.T) {
	testlog.Start(t)
	if _, err := NewDerived("", "dogecoin"); !errors.Is(err, ErrUnknownNetwork) {
		t.Fatalf("err = %v, want ErrUnknownNetwork", err)
	}
}

func TestCanceledContext(t *testing.T) {
	testlog.Start(t)
	d, err := NewDerived("seed", "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.NewDepositAddress(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
