package overlay

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/chartdesk/internal/storage"
)

func TestKeyUppercasesSymbol(t *testing.T) {
	if got := Key(" aapl "); got != "chart_annotations_AAPL" {
		t.Fatalf("Key() = %q; want %q", got, "chart_annotations_AAPL")
	}
}

func TestPersisterRoundTrip(t *testing.T) {
	kv := storage.NewMemoryKV()
	p := NewPersister(kv, WithPersisterClock(func() time.Time { return time.UnixMilli(1_717_000_000_000) }))
	ctx := context.Background()

	s := NewStore(nil)
	s.Add(&TrendLine{Kind: LineResistance, X1: 1, Y1: 10, X2: day(3), Y2: 12, Style: StyleDotted})
	s.Add(&Signal{Kind: SignalBuy, X: day(1), Y: 11})
	s.Add(&Note{Title: "t", Content: "c", X: day(2), Y: 12})
	s.Add(&TpSlSetup{Kind: TpSlBearish, Entry: Point{X: day(1), Y: 100}, StopLoss: Point{X: day(1), Y: 105}, TakeProfit: Point{X: day(1), Y: 85}})
	s.Add(&Shape{Kind: ShapeCircle, X: day(4), Y: 9, Opacity: 0.3, Label: "gap"})
	want := s.Snapshot()

	if !p.Save(ctx, "AAPL", want) {
		t.Fatalf("Save() = false; want true")
	}
	raw, _ := kv.Get(ctx, "chart_annotations_AAPL")
	if !bytes.Contains(raw, []byte(`"timestamp":"2024-05-29T16:26:40.000Z"`)) || !bytes.Contains(raw, []byte(`"version":"1.0"`)) {
		t.Fatalf("record = %s; want timestamp and version", raw)
	}

	got := p.Load(ctx, "aapl")
	if got.Count() != 5 {
		t.Fatalf("Load() count = %d; want 5", got.Count())
	}
	if got.TpSl[0].RiskReward != 3 || got.TpSl[0].Zone != want.TpSl[0].Zone {
		t.Fatalf("tpsl = %+v; want %+v", got.TpSl[0], want.TpSl[0])
	}
	if got.Lines[0] != want.Lines[0] || got.Shapes[0] != want.Shapes[0] || got.Signals[0] != want.Signals[0] {
		t.Fatalf("Load() = %+v; want %+v", got, want)
	}
}

func TestDecodeRecordWithoutShapes(t *testing.T) {
	data := []byte(`{"lines":[],"signals":[{"id":"signal_1","type":"sell","x":5,"y":7,"label":"x"}],"notes":[],"tpsl":[],"timestamp":"2024-06-03T15:00:00.000Z","version":"1.0"}`)
	snap, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord() = %v; want nil", err)
	}
	if len(snap.Signals) != 1 || snap.Signals[0].Price != 7 || snap.Signals[0].Date != 5 {
		t.Fatalf("signals = %+v; want price/date synced", snap.Signals)
	}
}

func TestLoadISOTimestampRecord(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()
	kv.Set(ctx, "chart_annotations_MSFT", []byte(`{"lines":[{"id":"trendLine_1","type":"support","x1":0,"y1":10,"x2":86400000,"y2":11}],
		"signals":[],"notes":[],"tpsl":[],"timestamp":"2024-06-03T15:00:00.000Z","version":"1.0"}`))
	kv.Set(ctx, "chart_annotations_IBM", []byte(`{"lines":[],"signals":[{"id":"signal_1","type":"buy","x":5,"y":7}],
		"notes":[],"tpsl":[],"timestamp":1717000000000,"version":"1.0"}`))
	p := NewPersister(kv)

	if got := p.Load(ctx, "msft"); len(got.Lines) != 1 || got.Lines[0].ID != "trendLine_1" {
		t.Fatalf("Load(msft) = %+v; want one line", got)
	}
	if got := p.Load(ctx, "ibm"); len(got.Signals) != 1 {
		t.Fatalf("Load(ibm) = %+v; want epoch timestamp accepted", got)
	}
}

func TestDecodeRecordRecomputesDerivedFields(t *testing.T) {
	data := []byte(`{"lines":[],"signals":[],"notes":[],"tpsl":[{"id":"tpsl_1","type":"bullish",
		"entry":{"x":0,"y":100},"stopLoss":{"x":0,"y":95},"takeProfit":{"x":0,"y":110},"riskReward":9}]}`)
	snap, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord() = %v; want nil", err)
	}
	got := snap.TpSl[0]
	if got.RiskReward != 2 {
		t.Fatalf("RiskReward = %v; want 2", got.RiskReward)
	}
	if got.Zone.Right-got.Zone.Left != 7*DayMillis {
		t.Fatalf("zone width = %v; want 7 days", got.Zone.Right-got.Zone.Left)
	}
}

func TestDecodeRecordRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"lines":`},
		{"missing notes", `{"lines":[],"signals":[],"tpsl":[]}`},
		{"lines not array", `{"lines":{},"signals":[],"notes":[],"tpsl":[]}`},
		{"shapes not array", `{"lines":[],"signals":[],"notes":[],"tpsl":[],"shapes":"x"}`},
		{"invalid entry", `{"lines":[{"id":"a","type":"zigzag"}],"signals":[],"notes":[],"tpsl":[]}`},
		{"duplicate ids", `{"lines":[],"signals":[],"notes":[{"id":"n"},{"id":"n"}],"tpsl":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeRecord([]byte(tt.data)); err == nil {
				t.Fatalf("DecodeRecord() = nil; want error")
			}
		})
	}
}

func TestLoadMalformedYieldsEmptyAndWarns(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()
	kv.Set(ctx, "chart_annotations_TSLA", []byte(`{"lines":"nope"}`))

	var buf bytes.Buffer
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() {
		slog.SetDefault(oldLogger)
	})

	snap := NewPersister(kv).Load(ctx, "TSLA")
	if snap.Count() != 0 {
		t.Fatalf("Load() count = %d; want 0", snap.Count())
	}
	if !strings.Contains(buf.String(), "Discarding malformed annotation record") {
		t.Fatalf("expected malformed record warning, got %q", buf.String())
	}
}

type failingKV struct{ storage.KV }

func (failingKV) Set(context.Context, string, []byte) error { return errors.New("disk full") }

type recordingJournal struct{ records []any }

func (j *recordingJournal) Write(r any) error {
	j.records = append(j.records, r)
	return nil
}

func TestSaveFailureIsReportedNotReturned(t *testing.T) {
	journal := &recordingJournal{}
	var failed []string
	p := NewPersister(failingKV{storage.NewMemoryKV()},
		WithJournal(journal),
		WithSaveFailureHook(func(symbol string, err error) { failed = append(failed, symbol) }),
	)

	if p.Save(context.Background(), "NVDA", Snapshot{Notes: []Note{{ID: "note_1", Title: "x"}}}) {
		t.Fatalf("Save() = true; want false")
	}
	if len(failed) != 1 || failed[0] != "NVDA" {
		t.Fatalf("failure hook calls = %v; want [NVDA]", failed)
	}
	if len(journal.records) != 1 {
		t.Fatalf("journal records = %d; want 1", len(journal.records))
	}
	rec, ok := journal.records[0].(SaveFailure)
	if !ok || rec.Key != "chart_annotations_NVDA" || len(rec.Record.Notes) != 1 {
		t.Fatalf("journal record = %+v", journal.records[0])
	}
}
