package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/chartdesk/internal/marketdata"
	"github.com/dgnsrekt/chartdesk/internal/metrics"
	"github.com/dgnsrekt/chartdesk/internal/overlay"
	"github.com/dgnsrekt/chartdesk/internal/prediction"
	"github.com/dgnsrekt/chartdesk/internal/relay"
	"github.com/dgnsrekt/chartdesk/internal/storage"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

type fakeProvider struct {
	err     error
	calls   int
	onStock func()
}

func (p *fakeProvider) Stock(_ context.Context, symbol, period string) (marketdata.StockResponse, error) {
	p.calls++
	if p.onStock != nil {
		p.onStock()
	}
	if p.err != nil {
		return marketdata.StockResponse{}, p.err
	}
	resp := marketdata.StockResponse{Symbol: symbol, Interval: "1d", CurrentPrice: 139}
	for i := 0; i < 40; i++ {
		c := 100 + float64(i)
		resp.HistoricalData = append(resp.HistoricalData, marketdata.HistoricalPoint{
			Date: day0.AddDate(0, 0, i), Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 1000,
		})
	}
	return resp, nil
}

func (p *fakeProvider) Fundamental(_ context.Context, symbol string) (marketdata.FundamentalResponse, error) {
	if p.err != nil {
		return marketdata.FundamentalResponse{}, p.err
	}
	return marketdata.FundamentalResponse{CompanyInfo: marketdata.CompanyInfo{Symbol: symbol}}, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(50 * time.Millisecond)
	return c.now
}

type harness struct {
	svc      *Service
	kv       *storage.MemoryKV
	broker   *relay.Broker
	provider *fakeProvider
	events   <-chan relay.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{kv: storage.NewMemoryKV(), broker: relay.NewBroker(), provider: &fakeProvider{}}
	_, h.events = h.broker.Subscribe()
	clock := &testClock{now: time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)}
	h.svc = NewService(Deps{
		Persister: overlay.NewPersister(h.kv),
		Provider:  h.provider,
		Broker:    h.broker,
		Metrics:   metrics.New(),
		Style:     overlay.DefaultStyle(),
		Clock:     clock.Now,
	})
	t.Cleanup(func() { h.svc.Close(context.Background()) })
	return h
}

func (h *harness) drain() map[string]int {
	seen := map[string]int{}
	for {
		select {
		case evt := <-h.events:
			seen[evt.Type]++
		default:
			return seen
		}
	}
}

func codeOf(err error) string {
	var ce *overlay.CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func (h *harness) open(t *testing.T) SessionInfo {
	t.Helper()
	info, err := h.svc.Create(context.Background(), CreateRequest{Symbol: "aapl"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return info
}

func (h *harness) clickAt(t *testing.T, id string, p overlay.Point) {
	t.Helper()
	sc, err := h.svc.Scales(id)
	if err != nil {
		t.Fatalf("Scales() error = %v", err)
	}
	px := sc.ToPixel(p)
	if _, err := h.svc.Pointer(context.Background(), id, PointerInput{Type: "click", X: px.X, Y: px.Y}); err != nil {
		t.Fatalf("Pointer(click) error = %v", err)
	}
}

func dayMillis(i int) float64 { return float64(day0.AddDate(0, 0, i).UnixMilli()) }

func TestCreateLoadsSymbol(t *testing.T) {
	h := newHarness(t)
	info := h.open(t)
	if info.Symbol != "AAPL" || info.Candles != 40 || info.Backend != BackendMemory {
		t.Fatalf("Create() = %+v; want AAPL memory session with 40 candles", info)
	}
	if info.Period != marketdata.DefaultPeriod {
		t.Fatalf("Create() period = %q; want %q", info.Period, marketdata.DefaultPeriod)
	}
	sc, err := h.svc.Scales(info.ID)
	if err != nil || !sc.Valid() {
		t.Fatalf("Scales() = %+v, %v; want fitted scales", sc, err)
	}
	seen := h.drain()
	if seen[FeedInstrument] != 1 || seen[FeedFrame] == 0 {
		t.Fatalf("events = %v; want instrument and frame", seen)
	}
	q, err := h.svc.Quote(info.ID)
	if err != nil || q.CurrentPrice != 139 {
		t.Fatalf("Quote() = %+v, %v; want current price 139", q, err)
	}
}

func TestDrawLineThroughPointer(t *testing.T) {
	h := newHarness(t)
	info := h.open(t)
	ctx := context.Background()

	if _, err := h.svc.Execute(ctx, info.ID, Command{Action: ActionDrawLine}); err != nil {
		t.Fatalf("Execute(draw_line) error = %v", err)
	}
	got, _ := h.svc.Info(info.ID)
	if got.Mode.Kind != overlay.ModeDrawing {
		t.Fatalf("Mode = %q; want drawing", got.Mode.Kind)
	}
	h.clickAt(t, info.ID, overlay.Point{X: dayMillis(5), Y: 105})
	h.clickAt(t, info.ID, overlay.Point{X: dayMillis(20), Y: 120})

	snap, err := h.svc.Annotations(info.ID)
	if err != nil || len(snap.Lines) != 1 {
		t.Fatalf("Annotations() = %+v, %v; want one line", snap, err)
	}
	if _, err := h.kv.Get(ctx, overlay.Key("AAPL")); err != nil {
		t.Fatalf("record not saved: %v", err)
	}
	frame, err := h.svc.Frame(info.ID)
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if _, ok := frame[snap.Lines[0].ID]; !ok {
		t.Fatalf("Frame() missing line %q", snap.Lines[0].ID)
	}
	if seen := h.drain(); seen[FeedChange] == 0 {
		t.Fatalf("events = %v; want change", seen)
	}
}

func TestLoadSymbolUnloadsBeforeFetch(t *testing.T) {
	h := newHarness(t)
	info := h.open(t)
	ctx := context.Background()

	if _, err := h.svc.Execute(ctx, info.ID, Command{Action: ActionDrawLine}); err != nil {
		t.Fatalf("Execute(draw_line) error = %v", err)
	}
	h.clickAt(t, info.ID, overlay.Point{X: dayMillis(5), Y: 105})
	sc, _ := h.svc.Scales(info.ID)
	second := sc.ToPixel(overlay.Point{X: dayMillis(20), Y: 120})

	var during SessionInfo
	var clickErr error
	h.provider.onStock = func() {
		during, _ = h.svc.Info(info.ID)
		_, clickErr = h.svc.Pointer(ctx, info.ID, PointerInput{Type: "click", X: second.X, Y: second.Y})
	}
	if _, err := h.svc.LoadSymbol(ctx, info.ID, "msft", ""); err != nil {
		t.Fatalf("LoadSymbol() error = %v", err)
	}
	if during.Mode.Kind != overlay.ModeIdle || during.Symbol != "" || during.Annotations != 0 {
		t.Fatalf("Info() during fetch = %+v; want idle and unloaded", during)
	}
	if codeOf(clickErr) != overlay.CodeChartUnavailable {
		t.Fatalf("Pointer(click) during fetch error = %v; want CHART_UNAVAILABLE", clickErr)
	}
	h.provider.onStock = nil
	back, err := h.svc.LoadSymbol(ctx, info.ID, "aapl", "")
	if err != nil {
		t.Fatalf("LoadSymbol(aapl) error = %v", err)
	}
	if back.Annotations != 0 {
		t.Fatalf("AAPL annotations = %d; want 0, the pending line was not committed", back.Annotations)
	}
}

func TestLoadSymbolRestoresOnFetchFailure(t *testing.T) {
	h := newHarness(t)
	info := h.open(t)
	ctx := context.Background()
	raw := json.RawMessage(`{"type":"support","x1":` + fmt.Sprint(dayMillis(1)) + `,"y1":100,"x2":` + fmt.Sprint(dayMillis(9)) + `,"y2":110}`)
	if _, err := h.svc.AddAnnotation(ctx, info.ID, overlay.KindLine, raw); err != nil {
		t.Fatalf("AddAnnotation() error = %v", err)
	}

	h.provider.err = errors.New("connection refused")
	if _, err := h.svc.LoadSymbol(ctx, info.ID, "msft", ""); codeOf(err) != CodeUpstream {
		t.Fatalf("LoadSymbol(failing) error = %v; want %s", err, CodeUpstream)
	}
	got, _ := h.svc.Info(info.ID)
	if got.Symbol != "AAPL" || got.Annotations != 1 || got.Candles != 40 {
		t.Fatalf("Info() after failed switch = %+v; want AAPL restored with its line", got)
	}
	if _, err := h.svc.Execute(ctx, info.ID, Command{Action: ActionDrawLine}); err != nil {
		t.Fatalf("Execute(draw_line) after restore error = %v", err)
	}
}

func TestPointerRejectsUnknownType(t *testing.T) {
	h := newHarness(t)
	info := h.open(t)
	if _, err := h.svc.Pointer(context.Background(), info.ID, PointerInput{Type: "wheel"}); codeOf(err) != overlay.CodeValidation {
		t.Fatalf("Pointer(wheel) error = %v; want VALIDATION", err)
	}
	if _, err := h.svc.Pointer(context.Background(), info.ID, PointerInput{Type: "keydown"}); codeOf(err) != overlay.CodeValidation {
		t.Fatalf("Pointer(keydown without key) error = %v; want VALIDATION", err)
	}
}

func TestIndicatorsAndPrediction(t *testing.T) {
	h := newHarness(t)
	info := h.open(t)
	ctx := context.Background()

	names, err := h.svc.SetIndicators(ctx, info.ID, []string{"sma20"})
	if err != nil || len(names) != 1 || names[0] != "sma20" {
		t.Fatalf("SetIndicators() = %v, %v; want [sma20]", names, err)
	}
	if _, err := h.svc.SetIndicators(ctx, info.ID, []string{"macd"}); codeOf(err) != overlay.CodeValidation {
		t.Fatalf("SetIndicators(unknown) error = %v; want VALIDATION", err)
	}
	names, err = h.svc.SetIndicators(ctx, info.ID, nil)
	if err != nil || len(names) != 0 {
		t.Fatalf("SetIndicators(nil) = %v, %v; want none", names, err)
	}

	p, err := h.svc.Predict(ctx, info.ID, prediction.Config{Horizon: 10})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(p.Path) == 0 || p.Target == nil {
		t.Fatalf("Predict() = %+v; want path and target", p)
	}
	if _, err := h.svc.Predict(ctx, info.ID, prediction.Config{Degree: 3}); codeOf(err) != overlay.CodeValidation {
		t.Fatalf("Predict(degree 3) error = %v; want VALIDATION", err)
	}
	if err := h.svc.ClearPrediction(ctx, info.ID); err != nil {
		t.Fatalf("ClearPrediction() error = %v", err)
	}
}

func TestAddAnnotationAndRecords(t *testing.T) {
	h := newHarness(t)
	info := h.open(t)
	ctx := context.Background()

	raw := json.RawMessage(fmt.Sprintf(`{"x1":%f,"y1":101,"x2":%f,"y2":130}`, dayMillis(1), dayMillis(30)))
	id, err := h.svc.AddAnnotation(ctx, info.ID, overlay.KindLine, raw)
	if err != nil || id == "" {
		t.Fatalf("AddAnnotation() = %q, %v; want id", id, err)
	}
	if _, err := h.svc.AddAnnotation(ctx, info.ID, overlay.KindCrosshair, raw); codeOf(err) != overlay.CodeValidation {
		t.Fatalf("AddAnnotation(crosshair) error = %v; want VALIDATION", err)
	}

	syms, err := h.svc.Records(ctx)
	if err != nil || len(syms) != 1 || syms[0] != "AAPL" {
		t.Fatalf("Records() = %v, %v; want [AAPL]", syms, err)
	}
	rec, err := h.svc.Record(ctx, "aapl")
	if err != nil || len(rec.Lines) != 1 {
		t.Fatalf("Record() = %+v, %v; want one line", rec, err)
	}

	if err := h.svc.DeleteAnnotation(ctx, info.ID, overlay.KindLine, id); err != nil {
		t.Fatalf("DeleteAnnotation() error = %v", err)
	}
	if err := h.svc.DeleteAnnotation(ctx, info.ID, overlay.KindLine, id); codeOf(err) != overlay.CodeNotFound {
		t.Fatalf("DeleteAnnotation(again) error = %v; want NOT_FOUND", err)
	}
	if err := h.svc.CloseSession(ctx, info.ID); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	if err := h.svc.DeleteRecord(ctx, "AAPL"); err != nil {
		t.Fatalf("DeleteRecord() error = %v", err)
	}
	if syms, _ := h.svc.Records(ctx); len(syms) != 0 {
		t.Fatalf("Records() after delete = %v; want none", syms)
	}
}

func TestSessionLifecycleErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.svc.Info("missing"); codeOf(err) != overlay.CodeNotFound {
		t.Fatalf("Info(missing) error = %v; want NOT_FOUND", err)
	}
	if _, err := h.svc.Create(ctx, CreateRequest{Backend: "canvas"}); codeOf(err) != overlay.CodeValidation {
		t.Fatalf("Create(canvas) error = %v; want VALIDATION", err)
	}
	if _, err := h.svc.Create(ctx, CreateRequest{Backend: BackendCDP}); codeOf(err) != overlay.CodeChartUnavailable {
		t.Fatalf("Create(cdp) error = %v; want CHART_UNAVAILABLE", err)
	}
	info, err := h.svc.Create(ctx, CreateRequest{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := h.svc.Execute(ctx, info.ID, Command{Action: ActionAddNote}); codeOf(err) != overlay.CodeChartUnavailable {
		t.Fatalf("Execute(add_note) before load error = %v; want CHART_UNAVAILABLE", err)
	}
	if _, err := h.svc.Execute(ctx, info.ID, Command{}); codeOf(err) != overlay.CodeValidation {
		t.Fatalf("Execute(empty) error = %v; want VALIDATION", err)
	}
	if len(h.svc.List()) != 1 {
		t.Fatalf("List() = %d sessions; want 1", len(h.svc.List()))
	}
	if err := h.svc.CloseSession(ctx, info.ID); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	if err := h.svc.CloseSession(ctx, info.ID); codeOf(err) != overlay.CodeNotFound {
		t.Fatalf("CloseSession(again) error = %v; want NOT_FOUND", err)
	}
}

func TestStockErrorsClassified(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cases := []struct {
		err  error
		want string
	}{
		{marketdata.ErrNoData, overlay.CodeNotFound},
		{fmt.Errorf("wrap: %w", marketdata.ErrInvalidPeriod), overlay.CodeValidation},
		{&marketdata.APIError{Status: 404, Code: "not_found"}, overlay.CodeValidation},
		{errors.New("connection refused"), CodeUpstream},
	}
	for _, tc := range cases {
		h.provider.err = tc.err
		if _, err := h.svc.Stock(ctx, "AAPL", "1y"); codeOf(err) != tc.want {
			t.Fatalf("Stock() with %v = %v; want %s", tc.err, err, tc.want)
		}
	}
	if _, err := h.svc.Stock(ctx, " ", "1y"); codeOf(err) != overlay.CodeValidation {
		t.Fatalf("Stock(blank) error = %v; want VALIDATION", err)
	}
	h.provider.err = nil
	f, err := h.svc.Fundamental(ctx, "MSFT")
	if err != nil || f.CompanyInfo.Symbol != "MSFT" {
		t.Fatalf("Fundamental() = %+v, %v", f, err)
	}
}

func TestSetScalesRedraws(t *testing.T) {
	h := newHarness(t)
	info := h.open(t)
	ctx := context.Background()
	bad := overlay.Scales{}
	if err := h.svc.SetScales(ctx, info.ID, bad); codeOf(err) != overlay.CodeValidation {
		t.Fatalf("SetScales(zero) error = %v; want VALIDATION", err)
	}
	h.drain()
	sc := FitScales(nil, 1, 1)
	if sc.Valid() {
		t.Fatalf("FitScales(nil) = %+v; want invalid", sc)
	}
	want := overlay.Scales{
		X: overlay.LinearScale{Min: dayMillis(0), Max: dayMillis(60), PixelStart: 0, PixelEnd: 800},
		Y: overlay.LinearScale{Min: 90, Max: 150, PixelStart: 400, PixelEnd: 0},
	}
	if err := h.svc.SetScales(ctx, info.ID, want); err != nil {
		t.Fatalf("SetScales() error = %v", err)
	}
	got, _ := h.svc.Scales(info.ID)
	if got != want {
		t.Fatalf("Scales() = %+v; want %+v", got, want)
	}
	if seen := h.drain(); seen[FeedFrame] == 0 {
		t.Fatalf("events = %v; want a frame after redraw", seen)
	}
}

func TestFitScales(t *testing.T) {
	candles := []overlay.Candle{
		{Time: 0, Low: 10, High: 20, Close: 15},
		{Time: 1000, Low: 12, High: 30, Close: 25},
	}
	sc := FitScales(candles, 100, 50)
	if sc.X.Min != 0 || sc.X.Max != 1100 {
		t.Fatalf("FitScales() x = [%v,%v]; want [0,1100]", sc.X.Min, sc.X.Max)
	}
	if sc.Y.Min != 9 || sc.Y.Max != 31 {
		t.Fatalf("FitScales() y = [%v,%v]; want [9,31]", sc.Y.Min, sc.Y.Max)
	}
	if sc.Y.PixelStart != 50 || sc.Y.PixelEnd != 0 {
		t.Fatalf("FitScales() y pixels = %v..%v; want 50..0", sc.Y.PixelStart, sc.Y.PixelEnd)
	}
}
