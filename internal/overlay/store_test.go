package overlay

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestIDGeneratorUniqueWithinMillisecond(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	g := NewIDGenerator(func() time.Time { return fixed })

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.Next(KindLine)
		if !strings.HasPrefix(id, "trendLine_1700000000000_") {
			t.Fatalf("Next() = %q; want trendLine_1700000000000_ prefix", id)
		}
		if seen[id] {
			t.Fatalf("Next() returned duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestStoreAddGeneratesIDAndRejectsDuplicates(t *testing.T) {
	s := NewStore(nil)
	var changes []Change
	s.OnChange(func(c Change) { changes = append(changes, c) })

	id, err := s.Add(&TrendLine{Kind: LineTrend, X1: 1, Y1: 1, X2: 2, Y2: 2})
	if err != nil {
		t.Fatalf("Add() = %v; want nil", err)
	}
	if !strings.HasPrefix(id, "trendLine_") {
		t.Fatalf("Add() id = %q; want trendLine_ prefix", id)
	}
	l, ok := s.Line(id)
	if !ok || l.Style != StyleSolid {
		t.Fatalf("Line(%q) = %+v, %v; want solid line", id, l, ok)
	}

	_, err = s.Add(&TrendLine{ID: id, Kind: LineTrend})
	var ce *CodedError
	if !errors.As(err, &ce) || ce.Code != CodeValidation {
		t.Fatalf("Add(duplicate) = %v; want VALIDATION", err)
	}
	if len(changes) != 1 || changes[0].Op != OpAdd || changes[0].ID != id {
		t.Fatalf("changes = %+v; want one add of %q", changes, id)
	}
}

func TestStoreAddValidates(t *testing.T) {
	tests := []struct {
		name string
		a    Annotation
	}{
		{"bad line kind", &TrendLine{Kind: "zigzag"}},
		{"bad signal kind", &Signal{Kind: "hold"}},
		{"bad shape kind", &Shape{Kind: "hexagon"}},
		{"opacity out of range", &Shape{Kind: ShapeCircle, Opacity: 1.5}},
		{"bad tpsl kind", &TpSlSetup{Kind: "sideways"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(nil)
			if _, err := s.Add(tt.a); err == nil {
				t.Fatalf("Add() = nil; want validation error")
			}
			if n := s.Len(tt.a.AnnotationKind()); n != 0 {
				t.Fatalf("Len() = %d; want 0", n)
			}
		})
	}
}

func TestSignalDefaultsAndSync(t *testing.T) {
	s := NewStore(nil)
	sig := &Signal{Kind: SignalSell}
	sig.MoveTo(Point{X: 1000, Y: 42.5})
	id, err := s.Add(sig)
	if err != nil {
		t.Fatalf("Add() = %v; want nil", err)
	}
	if sig.Label != "Sell Signal" {
		t.Fatalf("Label = %q; want %q", sig.Label, "Sell Signal")
	}

	x, y := 2000.0, 50.0
	if err := s.UpdateGeometry(KindSignal, id, GeometryPatch{X: &x, Y: &y}); err != nil {
		t.Fatalf("UpdateGeometry() = %v; want nil", err)
	}
	got, _ := s.Signal(id)
	if got.Price != 50 || got.Date != 2000 {
		t.Fatalf("price/date = %v/%v; want 50/2000", got.Price, got.Date)
	}
}

func TestRiskReward(t *testing.T) {
	tests := []struct {
		entry, stop, target float64
		want                float64
	}{
		{100, 90, 120, 2},
		{100, 110, 70, 3},
		{100, 97, 104, 1.33},
		{100, 100, 120, 0},
	}
	for _, tt := range tests {
		if got := RiskReward(tt.entry, tt.stop, tt.target); got != tt.want {
			t.Fatalf("RiskReward(%v, %v, %v) = %v; want %v", tt.entry, tt.stop, tt.target, got, tt.want)
		}
	}
}

func TestTpSlZoneNormalizedOnAdd(t *testing.T) {
	s := NewStore(nil)
	setup := &TpSlSetup{
		Kind:       TpSlBullish,
		Entry:      Point{X: 10 * DayMillis, Y: 100},
		StopLoss:   Point{X: 11 * DayMillis, Y: 90},
		TakeProfit: Point{X: 12 * DayMillis, Y: 120},
	}
	if _, err := s.Add(setup); err != nil {
		t.Fatalf("Add() = %v; want nil", err)
	}
	if setup.Zone.Left != 10*DayMillis || setup.Zone.Right != 17*DayMillis {
		t.Fatalf("Zone = %+v; want [10d, 17d]", setup.Zone)
	}
	if setup.RiskReward != 2 {
		t.Fatalf("RiskReward = %v; want 2", setup.RiskReward)
	}

	narrow := Zone{Left: 10 * DayMillis, Right: 10*DayMillis + 1000}
	err := s.UpdateGeometry(KindTpSl, setup.ID, GeometryPatch{Zone: &narrow})
	var ce *CodedError
	if !errors.As(err, &ce) || ce.Code != CodeValidation {
		t.Fatalf("UpdateGeometry(narrow zone) = %v; want VALIDATION", err)
	}
}

func TestRejectedPatchLeavesAnnotationUnchanged(t *testing.T) {
	s := NewStore(nil)
	id, _ := s.Add(&TpSlSetup{Kind: TpSlBullish, Entry: Point{X: 0, Y: 100}, StopLoss: Point{X: 0, Y: 95}, TakeProfit: Point{X: 0, Y: 110}})
	before, _ := s.TpSl(id)
	want := *before

	var changes int
	s.OnChange(func(Change) { changes++ })

	entry := Point{X: 0, Y: 105}
	narrow := Zone{Left: 0, Right: 10}
	if err := s.UpdateGeometry(KindTpSl, id, GeometryPatch{Entry: &entry, Zone: &narrow}); err == nil {
		t.Fatalf("UpdateGeometry(narrow zone) = nil; want error")
	}
	if got, _ := s.TpSl(id); *got != want {
		t.Fatalf("setup = %+v; want unchanged %+v", *got, want)
	}

	lineID, _ := s.Add(&TrendLine{Kind: LineTrend, X2: 5, Y2: 5})
	changes = 0
	nan, y := math.NaN(), 42.0
	if err := s.UpdateGeometry(KindLine, lineID, GeometryPatch{Y1: &y, X2: &nan}); err == nil {
		t.Fatalf("UpdateGeometry(NaN) = nil; want error")
	}
	if got, _ := s.Line(lineID); got.Y1 != 0 || got.X2 != 5 {
		t.Fatalf("line = %+v; want unchanged", *got)
	}
	if changes != 0 {
		t.Fatalf("changes = %d; want 0", changes)
	}
}

func TestStoreRemoveAndAllOrder(t *testing.T) {
	s := NewStore(nil)
	lineID, _ := s.Add(&TrendLine{Kind: LineTrend, X2: 5, Y2: 5})
	noteID, _ := s.Add(&Note{Title: "n"})
	shapeID, _ := s.Add(&Shape{Kind: ShapeStar})

	all := s.All()
	if len(all) != 3 || all[0].AnnotationID() != shapeID || all[1].AnnotationID() != lineID || all[2].AnnotationID() != noteID {
		t.Fatalf("All() order wrong: %v", all)
	}
	if !s.Remove(KindNote, noteID) {
		t.Fatalf("Remove() = false; want true")
	}
	if s.Remove(KindNote, noteID) {
		t.Fatalf("second Remove() = true; want false")
	}
	if got := s.Snapshot().Count(); got != 2 {
		t.Fatalf("Count() = %d; want 2", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(nil)
	id, _ := s.Add(&Note{Title: "a", X: 1, Y: 1})
	snap := s.Snapshot()
	snap.Notes[0].Title = "changed"
	n, _ := s.Note(id)
	if n.Title != "a" {
		t.Fatalf("store note title = %q; want %q", n.Title, "a")
	}
}

func TestReissueAssignsFreshIDs(t *testing.T) {
	snap := Snapshot{
		Lines:   []TrendLine{{ID: "line_a", Kind: LineSupport, X1: 1, Y1: 5, X2: 2, Y2: 5}},
		Signals: []Signal{{ID: "sig_a", Kind: SignalSell, X: 3, Y: 7, Label: "Exit"}},
	}
	out, err := Reissue(snap, NewIDGenerator(func() time.Time { return time.UnixMilli(42) }))
	if err != nil {
		t.Fatalf("Reissue() = %v; want nil", err)
	}
	if len(out.Lines) != 1 || len(out.Signals) != 1 {
		t.Fatalf("Reissue() = %+v; want one line and one signal", out)
	}
	if out.Lines[0].ID == "line_a" || !strings.HasPrefix(out.Lines[0].ID, "trendLine_42_") {
		t.Fatalf("line id = %q; want fresh trendLine_42_ id", out.Lines[0].ID)
	}
	if out.Signals[0].ID == "sig_a" || out.Signals[0].Label != "Exit" {
		t.Fatalf("signal = %+v; want fresh id and label kept", out.Signals[0])
	}
	if snap.Lines[0].ID != "line_a" {
		t.Fatalf("input modified: %q", snap.Lines[0].ID)
	}

	bad := Snapshot{Signals: []Signal{{Kind: "hold", Label: "x"}}}
	if _, err := Reissue(bad, nil); err == nil {
		t.Fatalf("Reissue(invalid) = nil; want error")
	}
}
