package controller

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/chartdesk/internal/cdpchart"
	"github.com/dgnsrekt/chartdesk/internal/marketdata"
	"github.com/dgnsrekt/chartdesk/internal/metrics"
	"github.com/dgnsrekt/chartdesk/internal/overlay"
	"github.com/dgnsrekt/chartdesk/internal/relay"
	"github.com/google/uuid"
)

// Chart backends a session can render to.
const (
	BackendMemory = "memory"
	BackendCDP    = "cdp"
)

// Feed event types published besides the session's own overlay events.
const (
	FeedFrame      = "frame"
	FeedChange     = "change"
	FeedIndicator  = "indicator"
	FeedInstrument = "instrument"
	FeedClosed     = "session_closed"
)

// Deps are the collaborators of a Service. Persister, Metrics, Broker and
// CDP may be nil.
type Deps struct {
	Persister    *overlay.Persister
	Provider     marketdata.Provider
	Broker       *relay.Broker
	Metrics      *metrics.Metrics
	CDP          *cdpchart.Client
	Style        overlay.Style
	MoveInterval time.Duration
	Clock        func() time.Time
}

// Service owns the chart sessions and routes commands, pointer input and
// market data into them.
type Service struct {
	deps Deps
	ids  *overlay.IDGenerator

	mu       sync.RWMutex
	sessions map[string]*chartSession
}

func NewService(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Service{
		deps:     deps,
		ids:      overlay.NewIDGenerator(deps.Clock),
		sessions: make(map[string]*chartSession),
	}
}

// chartSession is one chart with its overlay session and backend.
type chartSession struct {
	id      string
	backend string
	created time.Time
	session *overlay.Session
	canvas  overlay.Canvas
	memory  *overlay.MemoryCanvas
	tab     *cdpchart.Tab

	mu        sync.Mutex
	period    string
	quote     marketdata.StockResponse
	lastFrame overlay.PrimitiveSet
}

// SessionInfo describes a session to API clients.
type SessionInfo struct {
	ID          string             `json:"id"`
	Backend     string             `json:"backend"`
	Created     time.Time          `json:"created"`
	Symbol      string             `json:"symbol,omitempty"`
	Period      string             `json:"period,omitempty"`
	Candles     int                `json:"candles"`
	Mode        overlay.Mode       `json:"mode"`
	Selection   *overlay.Selection `json:"selection,omitempty"`
	Dragging    bool               `json:"dragging"`
	Indicators  []string           `json:"indicators"`
	Annotations int                `json:"annotations"`
}

// CreateRequest opens a session. Scales seed a memory backend.
type CreateRequest struct {
	Backend string          `json:"backend,omitempty"`
	Scales  *overlay.Scales `json:"scales,omitempty"`
	Symbol  string          `json:"symbol,omitempty"`
	Period  string          `json:"period,omitempty"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (SessionInfo, error) {
	backend := strings.ToLower(strings.TrimSpace(req.Backend))
	if backend == "" {
		backend = BackendMemory
	}
	cs := &chartSession{id: uuid.NewString(), backend: backend, created: s.deps.Clock()}

	switch backend {
	case BackendMemory:
		var scales overlay.Scales
		if req.Scales != nil {
			scales = *req.Scales
		}
		cs.memory = overlay.NewMemoryCanvas(scales, s.frameSink(cs))
		cs.canvas = cs.memory
	case BackendCDP:
		if s.deps.CDP == nil {
			return SessionInfo{}, coded(overlay.CodeChartUnavailable, "cdp backend not enabled", nil)
		}
		tab, err := s.deps.CDP.Attach(ctx)
		if err != nil {
			return SessionInfo{}, err
		}
		cs.tab = tab
		cs.canvas = tab.Canvas()
	default:
		return SessionInfo{}, coded(overlay.CodeValidation, "backend must be memory or cdp", nil)
	}

	cs.session = overlay.NewSession(s.sessionOptions(cs))

	s.mu.Lock()
	s.sessions[cs.id] = cs
	s.mu.Unlock()
	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionOpened()
	}
	if cs.tab != nil {
		go s.pumpInputs(cs)
	}
	slog.Info("session opened", "session", cs.id, "backend", backend)

	if strings.TrimSpace(req.Symbol) != "" {
		return s.LoadSymbol(ctx, cs.id, req.Symbol, req.Period)
	}
	return s.info(cs), nil
}

func (s *Service) sessionOptions(cs *chartSession) overlay.Options {
	hooks := &overlay.Hooks{}
	hooks.BeforeRender(func(p overlay.RenderPass) {
		if s.deps.Metrics != nil {
			s.deps.Metrics.RenderPass(p.Full)
		}
	})
	hooks.OnIndicatorToggle(func(name string, enabled bool) {
		s.publish(cs.id, FeedIndicator, map[string]any{"name": name, "enabled": enabled})
	})
	return overlay.Options{
		Persister: s.deps.Persister,
		Style:     s.deps.Style,
		Hooks:     hooks,
		IDs:       s.ids,
		Clock:     s.deps.Clock,
		Events: func(e overlay.Event) {
			s.publish(cs.id, string(e.Type), e)
		},
		OnChange: func(symbol string, c overlay.Change) {
			if s.deps.Metrics != nil {
				s.deps.Metrics.Mutation(string(c.Op), string(c.Kind))
			}
			s.publish(cs.id, FeedChange, map[string]any{"symbol": symbol, "op": c.Op, "kind": c.Kind, "id": c.ID})
		},
		MoveInterval: s.deps.MoveInterval,
	}
}

// frameSink records and publishes every frame a memory canvas flushes.
func (s *Service) frameSink(cs *chartSession) func(overlay.PrimitiveSet, overlay.UpdateMode) {
	return func(set overlay.PrimitiveSet, mode overlay.UpdateMode) {
		cs.mu.Lock()
		cs.lastFrame = set
		cs.mu.Unlock()
		s.publish(cs.id, FeedFrame, map[string]any{"mode": mode, "annotations": overlay.ChartJSSet(set)})
	}
}

func (s *Service) publish(session, typ string, v any) {
	if s.deps.Broker != nil {
		s.deps.Broker.PublishJSON(session, typ, v)
	}
}

func (s *Service) get(id string) (*chartSession, error) {
	s.mu.RLock()
	cs, ok := s.sessions[strings.TrimSpace(id)]
	s.mu.RUnlock()
	if !ok {
		return nil, coded(overlay.CodeNotFound, "session "+id+" not found", nil)
	}
	return cs, nil
}

func (s *Service) info(cs *chartSession) SessionInfo {
	sess := cs.session
	cs.mu.Lock()
	period := cs.period
	cs.mu.Unlock()
	return SessionInfo{
		ID:          cs.id,
		Backend:     cs.backend,
		Created:     cs.created,
		Symbol:      sess.Symbol(),
		Period:      period,
		Candles:     len(sess.Candles()),
		Mode:        sess.Mode(),
		Selection:   sess.Selection(),
		Dragging:    sess.Dragging(),
		Indicators:  sess.Indicators(),
		Annotations: sess.Snapshot().Count(),
	}
}

func (s *Service) Info(id string) (SessionInfo, error) {
	cs, err := s.get(id)
	if err != nil {
		return SessionInfo{}, err
	}
	return s.info(cs), nil
}

func (s *Service) List() []SessionInfo {
	s.mu.RLock()
	all := make([]*chartSession, 0, len(s.sessions))
	for _, cs := range s.sessions {
		all = append(all, cs)
	}
	s.mu.RUnlock()
	slices.SortFunc(all, func(a, b *chartSession) int { return a.created.Compare(b.created) })
	out := make([]SessionInfo, 0, len(all))
	for _, cs := range all {
		out = append(out, s.info(cs))
	}
	return out
}

// CloseSession saves the session's annotations and releases its backend.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	s.mu.Lock()
	cs, ok := s.sessions[strings.TrimSpace(id)]
	delete(s.sessions, strings.TrimSpace(id))
	s.mu.Unlock()
	if !ok {
		return coded(overlay.CodeNotFound, "session "+id+" not found", nil)
	}
	s.release(ctx, cs)
	return nil
}

func (s *Service) release(ctx context.Context, cs *chartSession) {
	cs.session.Close(ctx)
	if cs.memory != nil {
		cs.memory.Destroy()
	}
	if cs.tab != nil {
		cs.tab.Close()
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionClosed()
	}
	s.publish(cs.id, FeedClosed, map[string]string{"id": cs.id})
	slog.Info("session closed", "session", cs.id)
}

// Close saves and releases every session.
func (s *Service) Close(ctx context.Context) {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*chartSession)
	s.mu.Unlock()
	for _, cs := range all {
		s.release(ctx, cs)
	}
}

// FlushAll saves every session without closing it.
func (s *Service) FlushAll(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cs := range s.sessions {
		cs.session.Flush(ctx)
	}
}

// LoadSymbol fetches price history and switches the session's instrument.
// The previous instrument is saved and unloaded before the fetch starts; if
// the fetch fails it is shown again.
func (s *Service) LoadSymbol(ctx context.Context, id, symbol, period string) (SessionInfo, error) {
	if err := requireNonEmpty(symbol, "symbol"); err != nil {
		return SessionInfo{}, err
	}
	cs, err := s.get(id)
	if err != nil {
		return SessionInfo{}, err
	}
	if period == "" {
		period = marketdata.DefaultPeriod
	}
	cs.session.Unload(ctx)
	quote, err := s.Stock(ctx, symbol, period)
	if err != nil {
		s.restore(ctx, cs)
		return SessionInfo{}, err
	}
	candles := quote.Candles()
	if cs.memory != nil {
		if _, err := cs.memory.Mapper(); err != nil {
			cs.memory.SetScales(FitScales(candles, DefaultWidth, DefaultHeight))
		}
	}
	if err := cs.session.LoadInstrument(ctx, quote.Symbol, candles, cs.canvas); err != nil {
		return SessionInfo{}, err
	}
	cs.mu.Lock()
	cs.period = period
	cs.quote = quote
	cs.mu.Unlock()
	s.publish(cs.id, FeedInstrument, map[string]any{
		"symbol":        quote.Symbol,
		"period":        period,
		"currentPrice":  quote.CurrentPrice,
		"change":        quote.Change,
		"changePercent": quote.ChangePercent,
	})
	return s.info(cs), nil
}

// restore reloads the instrument that was shown before a failed switch.
func (s *Service) restore(ctx context.Context, cs *chartSession) {
	cs.mu.Lock()
	prev := cs.quote
	cs.mu.Unlock()
	if prev.Symbol == "" {
		return
	}
	if err := cs.session.LoadInstrument(ctx, prev.Symbol, prev.Candles(), cs.canvas); err != nil {
		slog.Warn("Failed to restore instrument after failed switch", "session", cs.id, "symbol", prev.Symbol, "error", err)
	}
}

// Quote returns the last price response loaded into the session.
func (s *Service) Quote(id string) (marketdata.StockResponse, error) {
	cs, err := s.get(id)
	if err != nil {
		return marketdata.StockResponse{}, err
	}
	cs.mu.Lock()
	quote := cs.quote
	cs.mu.Unlock()
	if quote.Symbol == "" {
		return marketdata.StockResponse{}, coded(overlay.CodeNotFound, "no instrument loaded", nil)
	}
	return quote, nil
}

// SetScales records the axis ranges reported by a client after pan or zoom
// and redraws. Only memory sessions accept scales.
func (s *Service) SetScales(ctx context.Context, id string, scales overlay.Scales) error {
	cs, err := s.get(id)
	if err != nil {
		return err
	}
	if cs.memory == nil {
		return coded(overlay.CodeValidation, "scales are read from the browser for cdp sessions", nil)
	}
	if !scales.Valid() {
		return coded(overlay.CodeValidation, "scales must have finite non-empty ranges", nil)
	}
	cs.memory.SetScales(scales)
	if cs.session.Symbol() == "" {
		return nil
	}
	return cs.session.Redraw(ctx)
}

func (s *Service) Scales(id string) (overlay.Scales, error) {
	cs, err := s.get(id)
	if err != nil {
		return overlay.Scales{}, err
	}
	m, err := cs.canvas.Mapper()
	if err != nil {
		return overlay.Scales{}, err
	}
	if sc, ok := m.(overlay.Scales); ok {
		return sc, nil
	}
	return overlay.Scales{}, coded(overlay.CodeChartUnavailable, "backend does not expose linear scales", nil)
}

// Frame returns the annotation map last flushed to the backend, or the
// current map when the backend does not report frames.
func (s *Service) Frame(id string) (map[string]map[string]any, error) {
	cs, err := s.get(id)
	if err != nil {
		return nil, err
	}
	cs.mu.Lock()
	frame := cs.lastFrame
	cs.mu.Unlock()
	if frame == nil {
		frame = cs.session.Primitives()
	}
	return overlay.ChartJSSet(frame), nil
}

func (s *Service) Redraw(ctx context.Context, id string) error {
	cs, err := s.get(id)
	if err != nil {
		return err
	}
	return cs.session.Redraw(ctx)
}

// Stock proxies price history through the configured provider.
func (s *Service) Stock(ctx context.Context, symbol, period string) (marketdata.StockResponse, error) {
	if err := requireNonEmpty(symbol, "symbol"); err != nil {
		return marketdata.StockResponse{}, err
	}
	if s.deps.Provider == nil {
		return marketdata.StockResponse{}, coded(CodeUpstream, "no market data provider configured", nil)
	}
	resp, err := s.deps.Provider.Stock(ctx, symbol, period)
	if s.deps.Metrics != nil {
		s.deps.Metrics.DataRequest("stock", err)
	}
	if err != nil {
		slog.Warn("stock request failed", "symbol", symbol, "period", period, "error", err)
		return marketdata.StockResponse{}, classify(err)
	}
	return resp, nil
}

func (s *Service) Fundamental(ctx context.Context, symbol string) (marketdata.FundamentalResponse, error) {
	if err := requireNonEmpty(symbol, "symbol"); err != nil {
		return marketdata.FundamentalResponse{}, err
	}
	if s.deps.Provider == nil {
		return marketdata.FundamentalResponse{}, coded(CodeUpstream, "no market data provider configured", nil)
	}
	resp, err := s.deps.Provider.Fundamental(ctx, symbol)
	if s.deps.Metrics != nil {
		s.deps.Metrics.DataRequest("fundamental", err)
	}
	if err != nil {
		slog.Warn("fundamental request failed", "symbol", symbol, "error", err)
		return marketdata.FundamentalResponse{}, classify(err)
	}
	return resp, nil
}

// pumpInputs forwards browser input of a cdp session until its tab closes.
func (s *Service) pumpInputs(cs *chartSession) {
	for in := range cs.tab.Inputs() {
		ctx := context.Background()
		if in.Type == "ready" {
			if cs.session.Symbol() != "" {
				if err := cs.session.Redraw(ctx); err != nil {
					slog.Warn("redraw after chart ready failed", "session", cs.id, "error", err)
				}
			}
			continue
		}
		if _, err := s.dispatch(ctx, cs, PointerInput{Type: in.Type, X: in.X, Y: in.Y, Key: in.Key}); err != nil {
			slog.Debug("browser input rejected", "session", cs.id, "type", in.Type, "error", err)
		}
	}
}
