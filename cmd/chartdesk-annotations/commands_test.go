package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/chartdesk/internal/overlay"
	"github.com/dgnsrekt/chartdesk/internal/storage"
)

type nopCloseKV struct{ storage.KV }

func (nopCloseKV) Close() error { return nil }

// testApp routes each backend to one shared in-memory store.
func testApp() (*app, map[storage.Backend]*storage.MemoryKV) {
	stores := map[storage.Backend]*storage.MemoryKV{
		storage.BackendFile:   storage.NewMemoryKV(),
		storage.BackendBadger: storage.NewMemoryKV(),
	}
	a := &app{
		open: func(_ context.Context, cfg storage.Config) (storage.KV, error) {
			return nopCloseKV{stores[cfg.Backend]}, nil
		},
		now:   func() time.Time { return time.UnixMilli(1_700_000_000_000) },
		store: storage.Config{Backend: storage.BackendFile},
	}
	return a, stores
}

func seed(t *testing.T, kv storage.KV, symbol string, snap overlay.Snapshot) {
	t.Helper()
	if !overlay.NewPersister(kv).Save(context.Background(), symbol, snap) {
		t.Fatalf("seed %s failed", symbol)
	}
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var sample = overlay.Snapshot{
	Lines:   []overlay.TrendLine{{ID: "trendLine_1_a", Kind: overlay.LineTrend, X1: 1, Y1: 10, X2: 5, Y2: 12}},
	Signals: []overlay.Signal{{ID: "signal_1_b", Kind: overlay.SignalBuy, X: 2, Y: 11, Label: "Buy"}},
}

func TestListAndExport(t *testing.T) {
	a, stores := testApp()
	seed(t, stores[storage.BackendFile], "AAPL", sample)

	out, err := run(t, a, "list")
	if err != nil || !strings.Contains(out, "AAPL\t2") {
		t.Fatalf("list = %q, %v; want AAPL with 2 annotations", out, err)
	}

	out, err = run(t, a, "export")
	if err != nil {
		t.Fatalf("export error = %v", err)
	}
	var records map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("export output not JSON: %v\n%s", err, out)
	}
	snap, err := overlay.DecodeRecord(records["AAPL"])
	if err != nil || snap.Count() != 2 {
		t.Fatalf("exported AAPL = %+v, %v; want 2 annotations", snap, err)
	}

	if _, err := run(t, a, "export", "MSFT"); err == nil {
		t.Fatalf("export of missing symbol = nil; want error")
	}
}

func TestImportReissuesIDs(t *testing.T) {
	a, stores := testApp()
	seed(t, stores[storage.BackendFile], "AAPL", sample)
	out, err := run(t, a, "export")
	if err != nil {
		t.Fatalf("export error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "records.json")
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}

	if out, err := run(t, a, "--storage", "badger", "import", "--reid", path); err != nil || !strings.Contains(out, "imported 1") {
		t.Fatalf("import = %q, %v; want 1 record", out, err)
	}
	got := overlay.NewPersister(stores[storage.BackendBadger]).Load(context.Background(), "AAPL")
	if got.Count() != 2 {
		t.Fatalf("imported snapshot = %+v; want 2 annotations", got)
	}
	if got.Lines[0].ID == sample.Lines[0].ID || !strings.HasPrefix(got.Lines[0].ID, "trendLine_1700000000000_") {
		t.Fatalf("imported line id = %q; want reissued id", got.Lines[0].ID)
	}
}

func TestCopyBetweenStores(t *testing.T) {
	a, stores := testApp()
	seed(t, stores[storage.BackendFile], "AAPL", sample)
	seed(t, stores[storage.BackendFile], "MSFT", overlay.Snapshot{})

	out, err := run(t, a, "copy", "--to-storage", "badger", "aapl")
	if err != nil || !strings.Contains(out, "copied 1 records to badger") {
		t.Fatalf("copy = %q, %v; want 1 record copied", out, err)
	}
	keys, _ := stores[storage.BackendBadger].Keys(context.Background(), overlay.KeyPrefix)
	if len(keys) != 1 || keys[0] != overlay.Key("AAPL") {
		t.Fatalf("destination keys = %v; want only AAPL", keys)
	}
	got := overlay.NewPersister(stores[storage.BackendBadger]).Load(context.Background(), "AAPL")
	if got.Lines[0].ID != sample.Lines[0].ID {
		t.Fatalf("copied line id = %q; want %q kept", got.Lines[0].ID, sample.Lines[0].ID)
	}

	if _, err := run(t, a, "copy", "--to-storage", "mongo"); err == nil {
		t.Fatalf("copy to unknown backend = nil; want error")
	}
}

func TestDelete(t *testing.T) {
	a, stores := testApp()
	seed(t, stores[storage.BackendFile], "AAPL", sample)
	if _, err := run(t, a, "delete", "aapl"); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	if _, err := stores[storage.BackendFile].Get(context.Background(), overlay.Key("AAPL")); err == nil {
		t.Fatalf("record still present after delete")
	}
}
