package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Syriven/netvend/internal/store"
	"github.com/Syriven/netvend/internal/testutil/storetest"
	"github.com/Syriven/netvend/internal/testutil/testlog"
)

func TestMemoryStore(t *testing.T) {
	testlog.Start(t)
	storetest.Run(t, func(t *testing.T) store.Store { return store.NewMemory() })
}

func TestMemoryClosed(t *testing.T) {
	testlog.Start(t)
	m := store.NewMemory()
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := m.InsertPocket(context.Background(), "a", ""); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("insert after close err = %v, want ErrClosed", err)
	}
}

func TestUpkeepFeeSaturates(t *testing.T) {
	testlog.Start(t)
	const max = ^uint64(0)
	if got := store.UpkeepFee(2, 10, store.FeeSchedule{PerFile: 3, PerByte: 1}); got != 16 {
		t.Fatalf("fee = %d, want 16", got)
	}
	if got := store.UpkeepFee(max, 1, store.FeeSchedule{PerFile: 2}); got != max {
		t.Fatalf("fee = %d, want saturation", got)
	}
	if got := store.UpkeepFee(1, 1, store.FeeSchedule{PerFile: max, PerByte: 1}); got != max {
		t.Fatalf("sum fee = %d, want saturation", got)
	}
	if _, ok := store.AddCredit(max, 1); ok {
		t.Fatalf("AddCredit overflow not reported")
	}
}
