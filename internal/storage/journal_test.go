package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestJournalWritesDatedFile(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, "failed_saves", 8, 1)
	j.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	if err := j.Write(map[string]string{"symbol": "AAPL"}); err != nil {
		t.Fatalf("Write() = %v; want nil", err)
	}
	if err := j.Write(map[string]string{"symbol": "MSFT"}); err != nil {
		t.Fatalf("Write() = %v; want nil", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() = %v; want nil", err)
	}

	f, err := os.Open(filepath.Join(dir, "2024-03-01", "failed_saves.jsonl"))
	if err != nil {
		t.Fatalf("journal file missing: %v", err)
	}
	defer f.Close()

	var symbols []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]string
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("json.Unmarshal() = %v", err)
		}
		symbols = append(symbols, rec["symbol"])
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "MSFT" {
		t.Fatalf("journal records = %v; want [AAPL MSFT]", symbols)
	}
}

func TestJournalWriteAfterClose(t *testing.T) {
	j := NewJournal(t.TempDir(), "x", 1, 1)
	if err := j.Close(); err != nil {
		t.Fatalf("Close() = %v; want nil", err)
	}
	if err := j.Write("late"); err == nil {
		t.Fatalf("Write() after Close() = nil; want error")
	}
}
