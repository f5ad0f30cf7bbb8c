package overlay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgnsrekt/chartdesk/internal/storage"
)

const (
	// KeyPrefix prefixes the storage key of every instrument record.
	KeyPrefix = "chart_annotations_"
	// RecordVersion is written into every saved record.
	RecordVersion = "1.0"
	// RecordTimeLayout is the ISO8601 form of a record's save time.
	RecordTimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Key returns the storage key of an instrument.
func Key(symbol string) string {
	return KeyPrefix + strings.ToUpper(strings.TrimSpace(symbol))
}

// Record is the persisted form of one instrument's annotations.
type Record struct {
	Lines     []TrendLine `json:"lines"`
	Signals   []Signal    `json:"signals"`
	Notes     []Note      `json:"notes"`
	TpSl      []TpSlSetup `json:"tpsl"`
	Shapes    []Shape     `json:"shapes"`
	Timestamp string      `json:"timestamp"`
	Version   string      `json:"version"`
}

// SaveFailure is appended to the journal when a save does not reach storage.
type SaveFailure struct {
	Time   time.Time `json:"time"`
	Symbol string    `json:"symbol"`
	Key    string    `json:"key"`
	Error  string    `json:"error"`
	Record Record    `json:"record"`
}

// EncodeRecord serialises snap with the given save time.
func EncodeRecord(snap Snapshot, now time.Time) ([]byte, error) {
	rec := Record{
		Lines:     nonNil(snap.Lines),
		Signals:   nonNil(snap.Signals),
		Notes:     nonNil(snap.Notes),
		TpSl:      nonNil(snap.TpSl),
		Shapes:    nonNil(snap.Shapes),
		Timestamp: now.UTC().Format(RecordTimeLayout),
		Version:   RecordVersion,
	}
	return json.Marshal(rec)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var requiredCollections = []string{"lines", "signals", "notes", "tpsl"}

// DecodeRecord parses a saved record. The four base collections must be
// present arrays; shapes are optional. Every entry is validated and derived
// fields are re-computed. The timestamp is informational and not read.
func DecodeRecord(data []byte) (Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Snapshot{}, fmt.Errorf("decode record: %w", err)
	}
	for _, name := range requiredCollections {
		v, ok := raw[name]
		if !ok || !bytes.HasPrefix(bytes.TrimSpace(v), []byte("[")) {
			return Snapshot{}, fmt.Errorf("decode record: %q is not an array", name)
		}
	}
	if v, ok := raw["shapes"]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) &&
		!bytes.HasPrefix(bytes.TrimSpace(v), []byte("[")) {
		return Snapshot{}, errors.New(`decode record: "shapes" is not an array`)
	}

	var rec Record
	fields := []struct {
		name string
		dst  any
	}{
		{"lines", &rec.Lines},
		{"signals", &rec.Signals},
		{"notes", &rec.Notes},
		{"tpsl", &rec.TpSl},
		{"shapes", &rec.Shapes},
	}
	for _, f := range fields {
		v, ok := raw[f.name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return Snapshot{}, fmt.Errorf("decode record: %s: %w", f.name, err)
		}
	}

	// Re-adding through a scratch store runs the same defaults and checks
	// as interactive creation.
	scratch := NewStore(nil)
	for i := range rec.Lines {
		if _, err := scratch.Add(&rec.Lines[i]); err != nil {
			return Snapshot{}, fmt.Errorf("decode record: line %d: %w", i, err)
		}
	}
	for i := range rec.Signals {
		if _, err := scratch.Add(&rec.Signals[i]); err != nil {
			return Snapshot{}, fmt.Errorf("decode record: signal %d: %w", i, err)
		}
	}
	for i := range rec.Notes {
		if _, err := scratch.Add(&rec.Notes[i]); err != nil {
			return Snapshot{}, fmt.Errorf("decode record: note %d: %w", i, err)
		}
	}
	for i := range rec.TpSl {
		if _, err := scratch.Add(&rec.TpSl[i]); err != nil {
			return Snapshot{}, fmt.Errorf("decode record: tpsl %d: %w", i, err)
		}
	}
	for i := range rec.Shapes {
		if _, err := scratch.Add(&rec.Shapes[i]); err != nil {
			return Snapshot{}, fmt.Errorf("decode record: shape %d: %w", i, err)
		}
	}
	return scratch.Snapshot(), nil
}

// Journal receives records that could not be saved.
type Journal interface {
	Write(record any) error
}

// Persister reads and writes instrument records through a key/value store.
type Persister struct {
	kv        storage.KV
	journal   Journal
	now       func() time.Time
	onFailure func(symbol string, err error)
}

type PersisterOption func(*Persister)

// WithJournal appends failed saves to j.
func WithJournal(j Journal) PersisterOption {
	return func(p *Persister) { p.journal = j }
}

// WithSaveFailureHook is called after every failed save.
func WithSaveFailureHook(fn func(symbol string, err error)) PersisterOption {
	return func(p *Persister) { p.onFailure = fn }
}

func WithPersisterClock(now func() time.Time) PersisterOption {
	return func(p *Persister) { p.now = now }
}

func NewPersister(kv storage.KV, opts ...PersisterOption) *Persister {
	p := &Persister{kv: kv, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Save writes the snapshot of symbol. Failures are logged and journaled,
// never returned; the in-memory store stays authoritative.
func (p *Persister) Save(ctx context.Context, symbol string, snap Snapshot) bool {
	key := Key(symbol)
	data, err := EncodeRecord(snap, p.now())
	if err == nil {
		err = p.kv.Set(ctx, key, data)
	}
	if err == nil {
		slog.Debug("annotations saved", "symbol", symbol, "count", snap.Count())
		return true
	}

	slog.Error("Failed to save annotations", "symbol", symbol, "key", key, "error", err)
	if p.onFailure != nil {
		p.onFailure(symbol, err)
	}
	if p.journal != nil {
		failure := SaveFailure{
			Time:   p.now().UTC(),
			Symbol: symbol,
			Key:    key,
			Error:  err.Error(),
			Record: Record{
				Lines:     snap.Lines,
				Signals:   snap.Signals,
				Notes:     snap.Notes,
				TpSl:      snap.TpSl,
				Shapes:    snap.Shapes,
				Timestamp: p.now().UTC().Format(RecordTimeLayout),
				Version:   RecordVersion,
			},
		}
		if jerr := p.journal.Write(failure); jerr != nil {
			slog.Warn("Failed to journal unsaved annotations", "symbol", symbol, "error", jerr)
		}
	}
	return false
}

// Load returns the saved annotations of symbol. A missing record yields an
// empty snapshot; a malformed one is logged and also yields an empty one.
func (p *Persister) Load(ctx context.Context, symbol string) Snapshot {
	key := Key(symbol)
	data, err := p.kv.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return Snapshot{}
	}
	if err != nil {
		slog.Warn("Failed to read annotations", "symbol", symbol, "key", key, "error", err)
		return Snapshot{}
	}
	snap, err := DecodeRecord(data)
	if err != nil {
		slog.Warn("Discarding malformed annotation record", "symbol", symbol, "key", key, "error", err)
		return Snapshot{}
	}
	return snap
}

// Raw returns the stored bytes of symbol without decoding them.
func (p *Persister) Raw(ctx context.Context, symbol string) ([]byte, error) {
	return p.kv.Get(ctx, Key(symbol))
}

// Symbols lists the instruments with a saved record.
func (p *Persister) Symbols(ctx context.Context) ([]string, error) {
	keys, err := p.kv.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, KeyPrefix))
	}
	return out, nil
}

// Delete removes the saved record of symbol.
func (p *Persister) Delete(ctx context.Context, symbol string) error {
	return p.kv.Delete(ctx, Key(symbol))
}
