package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/chartdesk/internal/controller"
	"github.com/dgnsrekt/chartdesk/internal/marketdata"
	"github.com/dgnsrekt/chartdesk/internal/metrics"
	"github.com/dgnsrekt/chartdesk/internal/overlay"
	"github.com/dgnsrekt/chartdesk/internal/relay"
	"github.com/dgnsrekt/chartdesk/internal/storage"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type stubProvider struct {
	err error
}

func (p *stubProvider) Stock(_ context.Context, symbol, period string) (marketdata.StockResponse, error) {
	if p.err != nil {
		return marketdata.StockResponse{}, p.err
	}
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	resp := marketdata.StockResponse{Symbol: symbol, Interval: "1d", CurrentPrice: 129}
	for i := 0; i < 30; i++ {
		c := 100 + float64(i)
		resp.HistoricalData = append(resp.HistoricalData, marketdata.HistoricalPoint{
			Date: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 500,
		})
	}
	return resp, nil
}

func (p *stubProvider) Fundamental(_ context.Context, symbol string) (marketdata.FundamentalResponse, error) {
	if p.err != nil {
		return marketdata.FundamentalResponse{}, p.err
	}
	return marketdata.FundamentalResponse{CompanyInfo: marketdata.CompanyInfo{Symbol: symbol}}, nil
}

type testServer struct {
	srv      *httptest.Server
	svc      *controller.Service
	broker   *relay.Broker
	provider *stubProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{broker: relay.NewBroker(), provider: &stubProvider{}}
	m := metrics.New()
	ts.svc = controller.NewService(controller.Deps{
		Persister: overlay.NewPersister(storage.NewMemoryKV()),
		Provider:  ts.provider,
		Broker:    ts.broker,
		Metrics:   m,
		Style:     overlay.DefaultStyle(),
	})
	ts.srv = httptest.NewServer(NewServer(ts.svc, Options{Broker: ts.broker, Metrics: m, Heartbeat: 20 * time.Millisecond}))
	t.Cleanup(func() {
		ts.srv.Close()
		ts.svc.Close(context.Background())
		ts.broker.Close()
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func (ts *testServer) createSession(t *testing.T) controller.SessionInfo {
	t.Helper()
	status, body := ts.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{"symbol": "msft"})
	if status != http.StatusCreated {
		t.Fatalf("create session status = %d body=%s; want 201", status, body)
	}
	var info controller.SessionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return info
}

func TestDocsPages(t *testing.T) {
	ts := newTestServer(t)
	for path, want := range map[string]string{"/docs": "Chartdesk API", "/docs/feeds": "Pointer channel"} {
		status, body := ts.do(t, http.MethodGet, path, nil)
		if status != http.StatusOK || !strings.Contains(string(body), want) {
			t.Fatalf("GET %s = %d; want 200 containing %q", path, status, want)
		}
	}
	if status, _ := ts.do(t, http.MethodGet, "/openapi.json", nil); status != http.StatusOK {
		t.Fatalf("GET /openapi.json = %d; want 200", status)
	}
}

func TestDataProxyErrorBodies(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/api/stock?symbol=AAPL&period=1mo", nil)
	if status != http.StatusOK {
		t.Fatalf("GET /api/stock = %d body=%s; want 200", status, body)
	}
	var stock marketdata.StockResponse
	if err := json.Unmarshal(body, &stock); err != nil || len(stock.HistoricalData) != 30 {
		t.Fatalf("stock body = %s, %v; want 30 points", body, err)
	}

	cases := []struct {
		name   string
		path   string
		err    error
		status int
		code   string
	}{
		{"missing symbol", "/api/stock", nil, http.StatusBadRequest, "invalid_request"},
		{"no data", "/api/stock?symbol=ZZZZ", marketdata.ErrNoData, http.StatusNotFound, "not_found"},
		{"upstream", "/api/fundamental?symbol=AAPL", fmt.Errorf("dial tcp: refused"), http.StatusBadGateway, "upstream_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts.provider.err = tc.err
			status, body := ts.do(t, http.MethodGet, tc.path, nil)
			if status != tc.status {
				t.Fatalf("GET %s = %d body=%s; want %d", tc.path, status, body, tc.status)
			}
			var e struct {
				Error   string `json:"error"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(body, &e); err != nil || e.Error != tc.code || e.Message == "" {
				t.Fatalf("error body = %s; want error=%q with message", body, tc.code)
			}
		})
	}
}

func TestSessionCommandAndInputFlow(t *testing.T) {
	ts := newTestServer(t)
	info := ts.createSession(t)
	base := "/api/v1/sessions/" + info.ID

	status, body := ts.do(t, http.MethodPost, base+"/commands", map[string]any{"action": "add_signal", "signal": "buy", "label": "Entry"})
	if status != http.StatusOK {
		t.Fatalf("add_signal status = %d body=%s; want 200", status, body)
	}

	status, body = ts.do(t, http.MethodGet, base+"/scales", nil)
	if status != http.StatusOK {
		t.Fatalf("GET scales = %d body=%s", status, body)
	}
	var sc overlay.Scales
	if err := json.Unmarshal(body, &sc); err != nil || !sc.Valid() {
		t.Fatalf("scales body = %s, %v; want valid scales", body, err)
	}
	px := sc.ToPixel(overlay.Point{X: float64(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC).UnixMilli()), Y: 108})

	status, body = ts.do(t, http.MethodPost, base+"/input", map[string]any{"type": "click", "x": px.X, "y": px.Y})
	if status != http.StatusOK {
		t.Fatalf("click status = %d body=%s; want 200", status, body)
	}

	status, body = ts.do(t, http.MethodGet, base+"/annotations", nil)
	var snap overlay.Snapshot
	if status != http.StatusOK || json.Unmarshal(body, &snap) != nil || len(snap.Signals) != 1 {
		t.Fatalf("GET annotations = %d body=%s; want one signal", status, body)
	}
	if snap.Signals[0].Label != "Entry" {
		t.Fatalf("signal label = %q; want Entry", snap.Signals[0].Label)
	}

	status, body = ts.do(t, http.MethodGet, base+"/primitives", nil)
	if status != http.StatusOK || !strings.Contains(string(body), snap.Signals[0].ID) {
		t.Fatalf("GET primitives = %d body=%s; want signal primitive", status, body)
	}

	status, body = ts.do(t, http.MethodGet, "/api/v1/records/MSFT", nil)
	if status != http.StatusOK || !strings.Contains(string(body), "Entry") {
		t.Fatalf("GET record = %d body=%s; want saved signal", status, body)
	}

	path := fmt.Sprintf("%s/annotations/signal/%s", base, snap.Signals[0].ID)
	if status, body := ts.do(t, http.MethodDelete, path, nil); status != http.StatusOK {
		t.Fatalf("DELETE signal = %d body=%s; want 200", status, body)
	}
	if status, _ := ts.do(t, http.MethodDelete, path, nil); status != http.StatusNotFound {
		t.Fatalf("second DELETE = %d; want 404", status)
	}
}

func TestAddAnnotationAndGeometry(t *testing.T) {
	ts := newTestServer(t)
	info := ts.createSession(t)
	base := "/api/v1/sessions/" + info.ID

	x1 := float64(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC).UnixMilli())
	x2 := float64(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC).UnixMilli())
	line := map[string]any{"type": "trend", "x1": x1, "y1": 101, "x2": x2, "y2": 118, "color": "#2196F3", "width": 2}
	status, body := ts.do(t, http.MethodPost, base+"/annotations/line", line)
	if status != http.StatusCreated {
		t.Fatalf("POST line = %d body=%s; want 201", status, body)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
		t.Fatalf("POST line body = %s; want id", body)
	}

	patch := map[string]any{"y1": 99.5}
	if status, body := ts.do(t, http.MethodPatch, base+"/annotations/line/"+created.ID, patch); status != http.StatusOK {
		t.Fatalf("PATCH line = %d body=%s; want 200", status, body)
	}
	_, body = ts.do(t, http.MethodGet, base+"/annotations", nil)
	var snap overlay.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil || len(snap.Lines) != 1 || snap.Lines[0].Y1 != 99.5 {
		t.Fatalf("annotations after patch = %s; want y1 99.5", body)
	}

	if status, _ := ts.do(t, http.MethodPost, base+"/annotations/line", map[string]any{"type": "zigzag"}); status != http.StatusBadRequest {
		t.Fatalf("POST invalid line = %d; want 400", status)
	}
}

func TestMapErrStatuses(t *testing.T) {
	ts := newTestServer(t)
	if status, _ := ts.do(t, http.MethodGet, "/api/v1/sessions/nope", nil); status != http.StatusNotFound {
		t.Fatalf("GET unknown session = %d; want 404", status)
	}
	info := ts.createSession(t)
	status, _ := ts.do(t, http.MethodPost, "/api/v1/sessions/"+info.ID+"/input", map[string]any{"type": "wheel"})
	if status != http.StatusBadRequest {
		t.Fatalf("POST wheel input = %d; want 400", status)
	}
	ts.provider.err = fmt.Errorf("connection reset")
	status, _ = ts.do(t, http.MethodPut, "/api/v1/sessions/"+info.ID+"/symbol", map[string]any{"symbol": "NVDA"})
	if status != http.StatusBadGateway {
		t.Fatalf("PUT symbol with failing provider = %d; want 502", status)
	}
}

func TestEventsStream(t *testing.T) {
	ts := newTestServer(t)
	info := ts.createSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.srv.URL+"/events?session="+info.ID+"&types=change", nil)
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /events error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q; want text/event-stream", ct)
	}

	if status, body := ts.do(t, http.MethodPost, "/api/v1/sessions/"+info.ID+"/commands", map[string]any{"action": "clear"}); status != http.StatusOK {
		t.Fatalf("clear = %d body=%s", status, body)
	}
	ts.broker.PublishJSON(info.ID, controller.FeedChange, map[string]string{"op": "marker"})

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event:") && strings.TrimSpace(strings.TrimPrefix(line, "event:")) != controller.FeedChange {
			t.Fatalf("unexpected event line %q; want only change events", line)
		}
		if strings.HasPrefix(line, "data:") && strings.Contains(line, "marker") {
			return
		}
	}
	t.Fatalf("stream ended before marker event: %v", sc.Err())
}

func TestPointerSocket(t *testing.T) {
	ts := newTestServer(t)
	info := ts.createSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/sessions/" + info.ID
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		t.Fatalf("ws.Dial() error = %v", err)
	}
	defer conn.Close()

	send := func(frame string) pointerReply {
		t.Helper()
		if err := wsutil.WriteClientText(conn, []byte(frame)); err != nil {
			t.Fatalf("WriteClientText() error = %v", err)
		}
		raw, err := wsutil.ReadServerText(conn)
		if err != nil {
			t.Fatalf("ReadServerText() error = %v", err)
		}
		var reply pointerReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			t.Fatalf("decode reply %s: %v", raw, err)
		}
		return reply
	}

	if r := send(`{"type":"keydown","key":"Escape"}`); r.Type != "keydown" || r.Error != "" {
		t.Fatalf("keydown reply = %+v; want no error", r)
	}
	if r := send(`{"type":"wheel"}`); r.Code != overlay.CodeValidation {
		t.Fatalf("wheel reply = %+v; want VALIDATION", r)
	}
	if r := send(`not json`); r.Code != overlay.CodeValidation {
		t.Fatalf("garbage reply = %+v; want VALIDATION", r)
	}
}

func TestPointerSocketUnknownSession(t *testing.T) {
	ts := newTestServer(t)
	status, _ := ts.do(t, http.MethodGet, "/ws/sessions/missing", nil)
	if status != http.StatusNotFound {
		t.Fatalf("GET /ws/sessions/missing = %d; want 404", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t)
	status, body := ts.do(t, http.MethodGet, "/metrics", nil)
	if status != http.StatusOK {
		t.Fatalf("GET /metrics = %d; want 200", status)
	}
	for _, want := range []string{"chartdesk_http_request_duration_seconds", "chartdesk_overlay_render_passes_total"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("/metrics missing %q", want)
		}
	}
}
