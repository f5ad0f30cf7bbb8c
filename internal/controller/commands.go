package controller

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/dgnsrekt/chartdesk/internal/indicators"
	"github.com/dgnsrekt/chartdesk/internal/overlay"
	"github.com/dgnsrekt/chartdesk/internal/prediction"
)

// Default pixel extent of a memory chart before the client reports scales.
const (
	DefaultWidth  = 1000.0
	DefaultHeight = 500.0
)

// FitScales frames candles in a width x height plot with a little headroom
// on the price axis and room for projections to the right.
func FitScales(candles []overlay.Candle, width, height float64) overlay.Scales {
	if len(candles) == 0 {
		return overlay.Scales{}
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range candles {
		lo = min(lo, c.Low, c.Close)
		hi = max(hi, c.High, c.Close)
	}
	if hi == lo {
		lo, hi = lo-1, hi+1
	}
	pad := (hi - lo) * 0.05
	first, last := candles[0].Time, candles[len(candles)-1].Time
	span := last - first
	if span <= 0 {
		span = overlay.DayMillis
	}
	return overlay.Scales{
		X: overlay.LinearScale{Min: first, Max: last + span*0.1, PixelStart: 0, PixelEnd: width},
		Y: overlay.LinearScale{Min: lo - pad, Max: hi + pad, PixelStart: height, PixelEnd: 0},
	}
}

// PointerInput is one pointer or key event in chart pixel space. Type uses
// DOM event names: click, mousedown, mousemove, mouseup, mouseleave or
// keydown.
type PointerInput struct {
	Type string  `json:"type"`
	X    float64 `json:"x" required:"false"`
	Y    float64 `json:"y" required:"false"`
	Key  string  `json:"key,omitempty"`
}

// Pointer feeds input into the session. processed is false when the event
// was coalesced or ignored.
func (s *Service) Pointer(ctx context.Context, id string, in PointerInput) (bool, error) {
	cs, err := s.get(id)
	if err != nil {
		return false, err
	}
	return s.dispatch(ctx, cs, in)
}

func (s *Service) dispatch(ctx context.Context, cs *chartSession, in PointerInput) (processed bool, err error) {
	px := overlay.PixelPoint{X: in.X, Y: in.Y}
	sess := cs.session
	switch in.Type {
	case "click":
		err = sess.Click(ctx, px)
		processed = err == nil
	case "mousedown":
		processed, err = sess.PointerDown(ctx, px)
	case "mousemove":
		processed, err = sess.PointerMove(ctx, px)
	case "mouseup":
		err = sess.PointerUp(ctx, px)
		processed = err == nil
	case "mouseleave":
		err = sess.PointerLeave(ctx)
		processed = err == nil
	case "keydown":
		if err := requireNonEmpty(in.Key, "key"); err != nil {
			return false, err
		}
		err = sess.KeyDown(ctx, in.Key)
		processed = err == nil
	default:
		return false, coded(overlay.CodeValidation, "unknown input type "+in.Type, nil)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.PointerEvent(in.Type, processed)
	}
	return processed, err
}

// Command is a toolbar action. Only the fields its Action uses are read.
type Command struct {
	Action string                `json:"action"`
	Line   overlay.LineSettings  `json:"line,omitzero" required:"false"`
	Signal overlay.SignalKind    `json:"signal,omitempty"`
	Label  string                `json:"label,omitempty"`
	TpSl   overlay.TpSlKind      `json:"tpsl,omitempty"`
	Shape  overlay.ShapeSettings `json:"shape,omitzero" required:"false"`
	Chart  overlay.ChartType     `json:"chart_type,omitempty"`
	Kinds  []overlay.Kind        `json:"kinds,omitempty"`
}

// Command actions.
const (
	ActionDrawLine        = "draw_line"
	ActionAddSignal       = "add_signal"
	ActionAddNote         = "add_note"
	ActionAddTpSl         = "add_tpsl"
	ActionAddShape        = "add_shape"
	ActionCancel          = "cancel"
	ActionClear           = "clear"
	ActionChartType       = "chart_type"
	ActionRedraw          = "redraw"
	ActionDeselect        = "deselect"
	ActionDeleteSelection = "delete_selection"
)

// Execute runs a toolbar command against the session.
func (s *Service) Execute(ctx context.Context, id string, cmd Command) (SessionInfo, error) {
	cs, err := s.get(id)
	if err != nil {
		return SessionInfo{}, err
	}
	sess := cs.session
	switch strings.TrimSpace(cmd.Action) {
	case ActionDrawLine:
		err = sess.StartLine(ctx, cmd.Line)
	case ActionAddSignal:
		err = sess.AddSignal(ctx, cmd.Signal, cmd.Label)
	case ActionAddNote:
		err = sess.AddNote(ctx)
	case ActionAddTpSl:
		err = sess.AddTpSl(ctx, cmd.TpSl)
	case ActionAddShape:
		err = sess.AddShape(ctx, cmd.Shape)
	case ActionCancel:
		sess.CancelMode(ctx)
	case ActionClear:
		err = sess.Clear(ctx, cmd.Kinds...)
	case ActionChartType:
		err = sess.SetChartType(ctx, cmd.Chart)
	case ActionRedraw:
		err = sess.Redraw(ctx)
	case ActionDeselect:
		err = sess.KeyDown(ctx, "Escape")
	case ActionDeleteSelection:
		err = sess.KeyDown(ctx, "Delete")
	case "":
		err = coded(overlay.CodeValidation, "action is required", nil)
	default:
		err = coded(overlay.CodeValidation, "unknown action "+cmd.Action, nil)
	}
	if err != nil {
		return SessionInfo{}, err
	}
	return s.info(cs), nil
}

// SubmitNote completes a pending note placement.
func (s *Service) SubmitNote(ctx context.Context, id string, d overlay.NoteDetails) (string, error) {
	cs, err := s.get(id)
	if err != nil {
		return "", err
	}
	return cs.session.SubmitNote(ctx, d)
}

func (s *Service) CancelNote(ctx context.Context, id string) error {
	cs, err := s.get(id)
	if err != nil {
		return err
	}
	cs.session.CancelNote(ctx)
	return nil
}

// SetIndicators computes the named indicators over the loaded candles and
// shows them. An empty list turns all indicators off.
func (s *Service) SetIndicators(ctx context.Context, id string, names []string) ([]string, error) {
	cs, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		if err := cs.session.ClearIndicators(ctx); err != nil {
			return nil, err
		}
		return cs.session.Indicators(), nil
	}
	series, err := indicators.Compute(names, cs.session.Candles())
	if err != nil {
		return nil, classify(err)
	}
	if err := cs.session.SetIndicators(ctx, series); err != nil {
		return nil, err
	}
	return cs.session.Indicators(), nil
}

// Predict fits a trend to the loaded candles and overlays the projection.
func (s *Service) Predict(ctx context.Context, id string, cfg prediction.Config) (overlay.Prediction, error) {
	cs, err := s.get(id)
	if err != nil {
		return overlay.Prediction{}, err
	}
	p, err := prediction.Forecast(cs.session.Candles(), cfg)
	if err != nil {
		return overlay.Prediction{}, classify(err)
	}
	if err := cs.session.SetPrediction(ctx, p); err != nil {
		return overlay.Prediction{}, err
	}
	return p, nil
}

func (s *Service) ClearPrediction(ctx context.Context, id string) error {
	cs, err := s.get(id)
	if err != nil {
		return err
	}
	return cs.session.ClearPrediction(ctx)
}

func (s *Service) Annotations(id string) (overlay.Snapshot, error) {
	cs, err := s.get(id)
	if err != nil {
		return overlay.Snapshot{}, err
	}
	return cs.session.Snapshot(), nil
}

// DecodeAnnotation parses raw JSON as an annotation of the given kind.
func DecodeAnnotation(kind overlay.Kind, raw json.RawMessage) (overlay.Annotation, error) {
	var a overlay.Annotation
	switch kind {
	case overlay.KindLine:
		a = &overlay.TrendLine{}
	case overlay.KindSignal:
		a = &overlay.Signal{}
	case overlay.KindNote:
		a = &overlay.Note{}
	case overlay.KindTpSl:
		a = &overlay.TpSlSetup{}
	case overlay.KindShape:
		a = &overlay.Shape{}
	default:
		return nil, coded(overlay.CodeValidation, "unknown annotation kind "+string(kind), nil)
	}
	if err := json.Unmarshal(raw, a); err != nil {
		return nil, coded(overlay.CodeValidation, "invalid "+string(kind)+" annotation", err)
	}
	return a, nil
}

func (s *Service) AddAnnotation(ctx context.Context, id string, kind overlay.Kind, raw json.RawMessage) (string, error) {
	cs, err := s.get(id)
	if err != nil {
		return "", err
	}
	if cs.session.Symbol() == "" {
		return "", coded(overlay.CodeValidation, "no instrument loaded", nil)
	}
	a, err := DecodeAnnotation(kind, raw)
	if err != nil {
		return "", err
	}
	return cs.session.Add(ctx, a)
}

func (s *Service) UpdateGeometry(ctx context.Context, id string, kind overlay.Kind, annID string, patch overlay.GeometryPatch) error {
	cs, err := s.get(id)
	if err != nil {
		return err
	}
	return cs.session.UpdateGeometry(ctx, kind, annID, patch)
}

func (s *Service) DeleteAnnotation(ctx context.Context, id string, kind overlay.Kind, annID string) error {
	if err := requireNonEmpty(annID, "annotation id"); err != nil {
		return err
	}
	cs, err := s.get(id)
	if err != nil {
		return err
	}
	return cs.session.Delete(ctx, kind, annID)
}

// ReplaceAnnotations swaps the session's whole annotation set.
func (s *Service) ReplaceAnnotations(ctx context.Context, id string, snap overlay.Snapshot) error {
	cs, err := s.get(id)
	if err != nil {
		return err
	}
	if cs.session.Symbol() == "" {
		return coded(overlay.CodeValidation, "no instrument loaded", nil)
	}
	return cs.session.Replace(ctx, snap)
}

// Records lists the symbols with saved annotations.
func (s *Service) Records(ctx context.Context) ([]string, error) {
	if s.deps.Persister == nil {
		return []string{}, nil
	}
	syms, err := s.deps.Persister.Symbols(ctx)
	if err != nil {
		return nil, coded(overlay.CodeStorageFailure, "list records", err)
	}
	return syms, nil
}

// Record returns the saved annotations of symbol. Sessions showing the
// symbol are flushed first.
func (s *Service) Record(ctx context.Context, symbol string) (overlay.Snapshot, error) {
	if err := requireNonEmpty(symbol, "symbol"); err != nil {
		return overlay.Snapshot{}, err
	}
	if s.deps.Persister == nil {
		return overlay.Snapshot{}, coded(overlay.CodeNotFound, "no storage configured", nil)
	}
	s.flushSymbol(ctx, symbol)
	return s.deps.Persister.Load(ctx, symbol), nil
}

func (s *Service) DeleteRecord(ctx context.Context, symbol string) error {
	if err := requireNonEmpty(symbol, "symbol"); err != nil {
		return err
	}
	if s.deps.Persister == nil {
		return nil
	}
	if err := s.deps.Persister.Delete(ctx, symbol); err != nil {
		return coded(overlay.CodeStorageFailure, "delete record", err)
	}
	return nil
}

func (s *Service) flushSymbol(ctx context.Context, symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cs := range s.sessions {
		if cs.session.Symbol() == symbol {
			cs.session.Flush(ctx)
		}
	}
}
