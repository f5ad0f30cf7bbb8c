package overlay

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMoveInterval is the minimum spacing of processed pointer moves.
const DefaultMoveInterval = 16 * time.Millisecond

// Options configure a Session.
type Options struct {
	// Persister may be nil for sessions that are never saved.
	Persister *Persister
	Style     Style
	Hooks     *Hooks
	Events    EventSink
	IDs       *IDGenerator
	Clock     func() time.Time
	// OnChange observes every store mutation.
	OnChange     func(symbol string, c Change)
	MoveInterval time.Duration
}

// NoteDetails is the content of the note form.
type NoteDetails struct {
	Title   string `json:"title" required:"false"`
	Content string `json:"content" required:"false"`
	Color   string `json:"color,omitempty"`
	Kind    string `json:"type,omitempty"`
}

// Session owns the annotations of the instrument shown on one chart and
// drives them from pointer, keyboard and command input. All methods are
// safe for concurrent use; calls are serialised.
type Session struct {
	mu sync.Mutex

	symbol    string
	store     *Store
	canvas    Canvas
	renderer  *Renderer
	persister *Persister
	hooks     *Hooks
	events    EventSink
	ids       *IDGenerator
	now       func() time.Time
	onChange  func(string, Change)
	limiter   *rate.Limiter

	mode        Mode
	drag        *drag
	justDragged bool
	selection   *Selection
	popupNote   string

	candles    []Candle
	chartType  ChartType
	indicators []Series
	prediction *Prediction
}

func NewSession(opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.IDs == nil {
		opts.IDs = NewIDGenerator(opts.Clock)
	}
	if opts.Hooks == nil {
		opts.Hooks = &Hooks{}
	}
	if opts.MoveInterval <= 0 {
		opts.MoveInterval = DefaultMoveInterval
	}
	s := &Session{
		renderer:  NewRenderer(opts.Style, opts.Hooks),
		persister: opts.Persister,
		hooks:     opts.Hooks,
		events:    opts.Events,
		ids:       opts.IDs,
		now:       opts.Clock,
		onChange:  opts.OnChange,
		limiter:   rate.NewLimiter(rate.Every(opts.MoveInterval), 1),
		mode:      idleMode(),
		chartType: ChartLine,
	}
	s.store = s.newStore()
	return s
}

func (s *Session) newStore() *Store {
	st := NewStore(s.ids)
	st.OnChange(func(c Change) {
		if s.onChange != nil {
			s.onChange(s.symbol, c)
		}
	})
	return st
}

func (s *Session) emit(e Event) {
	if s.events != nil {
		s.events(e)
	}
}

func (s *Session) pass() RenderPass { return RenderPass{Symbol: s.symbol} }

// requireChart fails with CHART_UNAVAILABLE and tells the user when there
// is no live chart to draw on.
func (s *Session) requireChart() error {
	if err := chartUnavailable(s.canvas); err != nil {
		s.emit(notice(LevelError, "Chart not available"))
		return err
	}
	return nil
}

func (s *Session) mapper() (CoordinateMapper, error) {
	if err := s.requireChart(); err != nil {
		return nil, err
	}
	m, err := s.canvas.Mapper()
	if err != nil {
		s.emit(notice(LevelError, "Chart not available"))
		return nil, err
	}
	return m, nil
}

func (s *Session) persist(ctx context.Context) {
	if s.persister == nil || s.symbol == "" {
		return
	}
	s.persister.Save(ctx, s.symbol, s.store.Snapshot())
}

func (s *Session) logRender(what string, err error) {
	if err == nil {
		return
	}
	var ce *CodedError
	if errors.As(err, &ce) && ce.Code == CodeChartUnavailable {
		slog.Debug("render skipped, chart unavailable", "symbol", s.symbol, "pass", what)
		return
	}
	slog.Error("Render failed, keeping last frame", "symbol", s.symbol, "pass", what, "error", err)
}

// LoadInstrument saves the current instrument, resets all interaction state
// and shows symbol on c with its saved annotations.
func (s *Session) LoadInstrument(ctx context.Context, symbol string, candles []Candle, c Canvas) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return newError(CodeValidation, "symbol is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.persist(ctx)
	s.resetInteraction()
	s.canvas = nil
	s.prediction = nil
	s.indicators = nil

	s.symbol = symbol
	s.store = s.newStore()
	if s.persister != nil {
		s.store.ReplaceAll(s.persister.Load(ctx, symbol))
	}
	s.candles = slices.Clone(candles)
	s.canvas = c

	slog.Info("instrument loaded", "symbol", symbol, "candles", len(candles), "annotations", s.store.Snapshot().Count())
	if err := s.requireChart(); err != nil {
		return err
	}
	s.logRender("instrument load", s.redrawAll())
	return nil
}

func (s *Session) resetInteraction() {
	s.mode = idleMode()
	s.drag = nil
	s.justDragged = false
	s.selection = nil
	s.popupNote = ""
}

// Unload saves the current instrument, resets all interaction state and
// leaves the session without an instrument or chart until the next
// LoadInstrument. Input arriving in between fails with CHART_UNAVAILABLE.
func (s *Session) Unload(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist(ctx)
	s.resetInteraction()
	s.canvas = nil
	s.prediction = nil
	s.indicators = nil
	s.symbol = ""
	s.store = s.newStore()
	s.candles = nil
}

// Detach forgets the canvas after the chart was destroyed.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canvas = nil
	s.drag = nil
}

// redrawAll rebuilds the ephemeral overlays and re-applies the store.
func (s *Session) redrawAll() error {
	if err := chartUnavailable(s.canvas); err != nil {
		return err
	}
	set := s.canvas.Primitives()
	for _, k := range []Kind{KindCrosshair, KindPreview} {
		set.RemoveKind(k)
	}
	var candles []*Primitive
	if s.chartType == ChartCandlestick {
		candles = s.renderer.Candles(s.candles)
	}
	ReplaceKind(set, KindCandle, candles)
	ReplaceKind(set, KindBoundary, s.renderer.Boundary(s.candles, s.now()))
	ReplaceKind(set, KindFutureIndicator, s.renderer.FutureIndicators(s.indicators, s.futureEdge()))
	var pred []*Primitive
	if s.prediction != nil {
		pred = s.renderer.PredictionOverlay(*s.prediction)
	}
	ReplaceKind(set, KindPrediction, pred)
	return s.renderer.ApplyAll(s.canvas, s.pass(), s.store, s.selection)
}

// futureEdge is the right edge used to extend indicator values: the end of
// the prediction when there is one, else thirty days past the last candle.
func (s *Session) futureEdge() float64 {
	if s.prediction != nil && len(s.prediction.Path) > 0 {
		return s.prediction.Path[len(s.prediction.Path)-1].X
	}
	if len(s.candles) == 0 {
		return 0
	}
	return s.candles[len(s.candles)-1].Time + 30*DayMillis
}

// Redraw re-applies everything, e.g. after the chart was re-created.
func (s *Session) Redraw(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireChart(); err != nil {
		return err
	}
	s.logRender("redraw", s.redrawAll())
	return nil
}

func (s *Session) setMode(m Mode) {
	s.mode = m
	if s.canvas != nil && s.canvas.Live() {
		s.canvas.SetCursor(m.Cursor())
	}
	mode := m
	s.emit(Event{Type: EventMode, Mode: &mode})
	if p := m.Prompt(); p != "" {
		s.emit(notice(LevelInfo, p))
	}
}

// cancelPlacement leaves any placement mode and removes the preview line.
func (s *Session) cancelPlacement() {
	if s.mode.Kind == ModeIdle {
		return
	}
	if s.canvas != nil && s.canvas.Live() && s.canvas.Primitives().RemoveKind(KindPreview) > 0 {
		s.logRender("preview", s.canvas.Update(UpdateNone))
	}
	s.setMode(idleMode())
}

// beginMode starts a placement mode after checking the chart exists.
func (s *Session) beginMode(m Mode) error {
	if err := s.requireChart(); err != nil {
		return err
	}
	s.cancelPlacement()
	s.setMode(m)
	return nil
}

// StartLine arms the two-click trend line tool.
func (s *Session) StartLine(ctx context.Context, ls LineSettings) error {
	if ls.Kind == "" {
		ls.Kind = LineTrend
	}
	if ls.Style == "" {
		ls.Style = StyleSolid
	}
	if ls.Width <= 0 {
		ls.Width = s.renderer.Style().LineWidth
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginMode(Mode{Kind: ModeDrawing, Line: ls})
}

// AddSignal arms placement of a buy or sell marker.
func (s *Session) AddSignal(ctx context.Context, kind SignalKind, label string) error {
	if kind != SignalBuy && kind != SignalSell {
		return newError(CodeValidation, "signal type must be buy or sell", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginMode(Mode{Kind: ModePlacingSignal, Signal: kind, Label: strings.TrimSpace(label)})
}

// AddNote arms note placement; the click opens the note form.
func (s *Session) AddNote(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginMode(Mode{Kind: ModePlacingNote})
}

// AddTpSl starts the three-click entry, stop loss, take profit wizard.
func (s *Session) AddTpSl(ctx context.Context, kind TpSlKind) error {
	if kind != TpSlBullish && kind != TpSlBearish {
		return newError(CodeValidation, "tpsl type must be bullish or bearish", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginMode(Mode{Kind: ModeTpSlWizard, TpSl: kind, Step: StepEntry})
}

// AddShape arms placement of a shape with the given settings.
func (s *Session) AddShape(ctx context.Context, ss ShapeSettings) error {
	if _, ok := shapePointStyles[ss.Kind]; !ok {
		return newError(CodeValidation, "unknown shape type: "+string(ss.Kind), nil)
	}
	if ss.Opacity < 0 || ss.Opacity > 1 {
		return newError(CodeValidation, "opacity must be between 0 and 1", nil)
	}
	if ss.Opacity == 0 {
		ss.Opacity = 0.5
	}
	if ss.Size <= 0 {
		ss.Size = 2 * s.renderer.Style().PointRadius
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginMode(Mode{Kind: ModePlacingShape, Shape: ss})
}

// CancelMode leaves any placement mode.
func (s *Session) CancelMode(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPlacement()
}

// Click handles a pointer click at px: it advances the placement mode, or
// selects what is under the pointer when idle.
func (s *Session) Click(ctx context.Context, px PixelPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag != nil {
		return nil
	}
	if s.justDragged {
		s.justDragged = false
		return nil
	}
	m, err := s.mapper()
	if err != nil {
		return err
	}
	p := m.ToData(px)

	switch s.mode.Kind {
	case ModeDrawing:
		return s.clickDrawing(ctx, p)
	case ModePlacingSignal:
		sig := &Signal{Kind: s.mode.Signal, Label: s.mode.Label}
		sig.MoveTo(p)
		return s.commit(ctx, sig, "Signal added")
	case ModePlacingNote:
		pending := p
		s.mode = Mode{Kind: ModeAwaitingNoteForm, Pending: &pending}
		mode := s.mode
		s.emit(Event{Type: EventMode, Mode: &mode})
		s.emit(Event{Type: EventNoteForm, Point: &pending, Pixel: &px})
		return nil
	case ModeAwaitingNoteForm:
		return nil
	case ModeTpSlWizard:
		return s.clickWizard(ctx, p)
	case ModePlacingShape:
		ss := s.mode.Shape
		return s.commit(ctx, &Shape{
			Kind:    ss.Kind,
			X:       p.X,
			Y:       p.Y,
			Color:   ss.Color,
			Size:    ss.Size,
			Opacity: ss.Opacity,
			Label:   ss.Label,
		}, "Shape added")
	}

	hit, ok := HitTest(s.renderer.BuildInteractive(s.store), m, px, s.renderer.Style())
	if ok {
		s.selectOwner(hit.Owner)
	} else {
		s.deselect()
	}
	return nil
}

func (s *Session) clickDrawing(ctx context.Context, p Point) error {
	if s.mode.Start == nil {
		start := p
		m := s.mode
		m.Start = &start
		s.setMode(m)
		return nil
	}
	start := *s.mode.Start
	if degenerateLine(start, p) {
		s.emit(notice(LevelWarning, "Line is too short, pick a different end point"))
		return nil
	}
	ls := s.mode.Line
	s.canvas.Primitives().RemoveKind(KindPreview)
	return s.commit(ctx, &TrendLine{
		Kind:  ls.Kind,
		X1:    start.X,
		Y1:    start.Y,
		X2:    p.X,
		Y2:    p.Y,
		Color: ls.Color,
		Width: ls.Width,
		Style: ls.Style,
	}, "Trend line added")
}

func (s *Session) clickWizard(ctx context.Context, p Point) error {
	m := s.mode
	switch m.Step {
	case StepEntry:
		entry := p
		m.Entry, m.Step = &entry, StepStopLoss
		s.setMode(m)
		return nil
	case StepStopLoss:
		if msg, ok := validWizardLevel(m.TpSl, StepStopLoss, *m.Entry, p); !ok {
			s.emit(notice(LevelWarning, msg))
			return nil
		}
		stop := p
		m.StopLoss, m.Step = &stop, StepTakeProfit
		s.setMode(m)
		return nil
	}
	if msg, ok := validWizardLevel(m.TpSl, StepTakeProfit, *m.Entry, p); !ok {
		s.emit(notice(LevelWarning, msg))
		return nil
	}
	setup := &TpSlSetup{
		Kind:       m.TpSl,
		Entry:      *m.Entry,
		StopLoss:   *m.StopLoss,
		TakeProfit: p,
		Timestamp:  s.now().UTC(),
	}
	return s.commit(ctx, setup, "TP/SL setup added")
}

// commit adds a to the store, persists, draws it and returns to idle.
func (s *Session) commit(ctx context.Context, a Annotation, msg string) error {
	if _, err := s.store.Add(a); err != nil {
		s.emit(notice(LevelError, err.Error()))
		return err
	}
	s.persist(ctx)
	s.logRender("add", s.renderer.ApplyOne(s.canvas, s.pass(), a, false))
	s.setMode(idleMode())
	if t, ok := a.(*TpSlSetup); ok {
		msg += " (R:R " + FormatPrice(t.RiskReward) + ")"
	}
	s.emit(notice(LevelSuccess, msg))
	return nil
}

// SubmitNote completes note placement. A note needs a title or content;
// otherwise the form stays open.
func (s *Session) SubmitNote(ctx context.Context, d NoteDetails) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode.Kind != ModeAwaitingNoteForm || s.mode.Pending == nil {
		return "", newError(CodeValidation, "no note is being placed", nil)
	}
	d.Title, d.Content = strings.TrimSpace(d.Title), strings.TrimSpace(d.Content)
	if d.Title == "" && d.Content == "" {
		s.emit(notice(LevelWarning, "Enter a title or content for the note"))
		return "", newError(CodeValidation, "note needs a title or content", nil)
	}
	if err := s.requireChart(); err != nil {
		return "", err
	}
	n := &Note{
		Title:     d.Title,
		Content:   d.Content,
		Color:     d.Color,
		Kind:      d.Kind,
		Timestamp: s.now().UTC(),
		X:         s.mode.Pending.X,
		Y:         s.mode.Pending.Y,
	}
	if err := s.commit(ctx, n, "Note added"); err != nil {
		return "", err
	}
	return n.ID, nil
}

// CancelNote closes the note form without creating a note.
func (s *Session) CancelNote(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode.Kind == ModeAwaitingNoteForm {
		s.setMode(idleMode())
	}
}

// PointerDown starts a drag when an element is under px in idle mode. It
// reports whether a drag started.
func (s *Session) PointerDown(ctx context.Context, px PixelPoint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.justDragged = false
	if s.mode.Kind != ModeIdle {
		return false, nil
	}
	m, err := s.mapper()
	if err != nil {
		return false, err
	}
	hit, ok := HitTest(s.renderer.BuildInteractive(s.store), m, px, s.renderer.Style())
	if !ok {
		return false, nil
	}
	s.drag = &drag{hit: hit, last: m.ToData(px)}
	s.selectOwner(hit.Owner)
	s.canvas.SetCursor(CursorGrabbing)
	return true, nil
}

// PointerMove processes at most one move per interval. It updates the
// crosshair, then the drag, the preview line or the hover state, and
// redraws once. It reports whether the move was processed.
func (s *Session) PointerMove(ctx context.Context, px PixelPoint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.limiter.AllowN(s.now(), 1) {
		return false, nil
	}
	if chartUnavailable(s.canvas) != nil {
		return false, nil
	}
	m, err := s.canvas.Mapper()
	if err != nil {
		return false, nil
	}
	p := m.ToData(px)
	set := s.canvas.Primitives()
	ReplaceKind(set, KindCrosshair, s.renderer.Crosshair(p, m))

	switch {
	case s.drag != nil:
		a, err := applyDrag(s.store, s.drag, p)
		if err != nil {
			slog.Warn("drag update rejected", "symbol", s.symbol, "target", s.drag.hit.Owner.Key(), "error", err)
			break
		}
		s.logRender("drag", s.renderer.Put(set, a, true))
	case s.mode.Kind == ModeDrawing && s.mode.Start != nil:
		ReplaceKind(set, KindPreview, s.renderer.Preview(*s.mode.Start, p))
	case s.mode.Kind == ModeIdle:
		s.hover(m, px)
	}
	s.logRender("pointer move", s.canvas.Update(UpdateNone))
	return true, nil
}

// hover sets the cursor for what is under px and shows or hides the note
// popup.
func (s *Session) hover(m CoordinateMapper, px PixelPoint) {
	hit, ok := HitTest(s.renderer.BuildInteractive(s.store), m, px, s.renderer.Style())
	if !ok {
		s.canvas.SetCursor(CursorDefault)
		s.hidePopup()
		return
	}
	s.canvas.SetCursor(hit.Cursor())
	if hit.Owner.Kind != KindNote {
		s.hidePopup()
		return
	}
	if s.popupNote == hit.Owner.ID {
		return
	}
	n, ok := s.store.Note(hit.Owner.ID)
	if !ok {
		return
	}
	s.popupNote = n.ID
	note := *n
	anchor := m.ToPixel(Point{X: n.X, Y: n.Y})
	s.emit(Event{Type: EventNotePopup, Note: &note, Pixel: &anchor})
}

func (s *Session) hidePopup() {
	if s.popupNote == "" {
		return
	}
	s.popupNote = ""
	s.emit(Event{Type: EventNotePopupHidden})
}

// PointerUp ends a drag at px.
func (s *Session) PointerUp(ctx context.Context, px PixelPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return nil
	}
	s.endDrag(ctx, &px)
	return nil
}

// PointerLeave ends any drag at its last position and clears the crosshair
// and the note popup.
func (s *Session) PointerLeave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hidePopup()
	if s.drag != nil {
		s.endDrag(ctx, nil)
	}
	if chartUnavailable(s.canvas) == nil && s.canvas.Primitives().RemoveKind(KindCrosshair) > 0 {
		s.logRender("pointer leave", s.canvas.Update(UpdateNone))
	}
	return nil
}

// endDrag applies the final position, persists, re-renders fully and
// clears the drag. A nil px keeps the last applied position.
func (s *Session) endDrag(ctx context.Context, px *PixelPoint) {
	d := s.drag
	if px != nil && chartUnavailable(s.canvas) == nil {
		if m, err := s.canvas.Mapper(); err == nil {
			if _, err := applyDrag(s.store, d, m.ToData(*px)); err != nil {
				slog.Warn("final drag update rejected", "symbol", s.symbol, "target", d.hit.Owner.Key(), "error", err)
			}
		}
	}
	s.persist(ctx)
	if chartUnavailable(s.canvas) == nil {
		s.logRender("drag end", s.redrawAll())
		s.canvas.SetCursor(s.mode.Cursor())
	}
	s.justDragged = d.moved
	s.drag = nil
}

// KeyDown handles Escape (end drag, cancel placement, deselect) and
// Delete/Backspace (delete the selected aggregate).
func (s *Session) KeyDown(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case "Escape", "Esc":
		if s.drag != nil {
			s.endDrag(ctx, nil)
		}
		if s.mode.Kind == ModeAwaitingNoteForm {
			s.emit(notice(LevelInfo, "Note cancelled"))
		}
		s.cancelPlacement()
		s.deselect()
	case "Delete", "Backspace":
		if s.selection == nil || s.drag != nil {
			return nil
		}
		sel := *s.selection
		return s.remove(ctx, sel.Kind, sel.BaseID)
	}
	return nil
}

func (s *Session) selectOwner(o Owner) {
	prev := s.selection
	s.selection = selectionFor(o)
	s.rehighlight(prev)
	sel := *s.selection
	s.emit(Event{Type: EventSelection, Selection: &sel})
}

func (s *Session) deselect() {
	if s.selection == nil {
		return
	}
	prev := s.selection
	s.selection = nil
	s.rehighlight(prev)
	s.emit(Event{Type: EventSelection})
}

// rehighlight redraws the previously and currently selected aggregates.
func (s *Session) rehighlight(prev *Selection) {
	if chartUnavailable(s.canvas) != nil {
		return
	}
	set := s.canvas.Primitives()
	for _, sel := range []*Selection{prev, s.selection} {
		if sel == nil {
			continue
		}
		if a, ok := s.store.Get(sel.Kind, sel.BaseID); ok {
			s.logRender("selection", s.renderer.Put(set, a, s.selection.owns(sel.Kind, sel.BaseID)))
		}
	}
	s.logRender("selection", s.canvas.Update(UpdateNone))
}

// Delete removes one aggregate with all its parts.
func (s *Session) Delete(ctx context.Context, kind Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(ctx, kind, id)
}

func (s *Session) remove(ctx context.Context, kind Kind, id string) error {
	if !s.store.Remove(kind, id) {
		return newError(CodeNotFound, string(kind)+" not found: "+id, nil)
	}
	if s.selection.owns(kind, id) {
		s.selection = nil
		s.emit(Event{Type: EventSelection})
	}
	if s.drag != nil && s.drag.hit.Owner.Kind == kind && s.drag.hit.Owner.ID == id {
		s.drag = nil
	}
	s.persist(ctx)
	if chartUnavailable(s.canvas) == nil {
		s.logRender("delete", s.renderer.RemoveOne(s.canvas, kind, id))
	}
	s.emit(notice(LevelSuccess, "Annotation deleted"))
	return nil
}

// Clear removes every annotation of the given kinds, or of all kinds when
// none are given.
func (s *Session) Clear(ctx context.Context, kinds ...Kind) error {
	if len(kinds) == 0 {
		kinds = PersistentKinds
	}
	for _, k := range kinds {
		if !k.Persistent() {
			return newError(CodeValidation, "not an annotation kind: "+string(k), nil)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range kinds {
		s.store.Clear(k)
		if s.selection != nil && s.selection.Kind == k {
			s.selection = nil
		}
	}
	s.persist(ctx)
	if chartUnavailable(s.canvas) == nil {
		s.logRender("clear", s.renderer.ApplyAll(s.canvas, s.pass(), s.store, s.selection))
	}
	return nil
}

// Add inserts a fully specified annotation, e.g. one created through the
// API, and returns its id. A TP/SL setup must have its levels in direction
// order, as the wizard enforces.
func (s *Session) Add(ctx context.Context, a Annotation) (string, error) {
	if t, ok := a.(*TpSlSetup); ok && (t.Kind == TpSlBullish || t.Kind == TpSlBearish) && !t.LevelsOrdered() {
		return "", newError(CodeValidation, levelOrderMessage(t.Kind), nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.store.Add(a)
	if err != nil {
		return "", err
	}
	s.persist(ctx)
	if chartUnavailable(s.canvas) == nil {
		s.logRender("add", s.renderer.ApplyOne(s.canvas, s.pass(), a, false))
	}
	return id, nil
}

// UpdateGeometry patches the coordinates of one aggregate.
func (s *Session) UpdateGeometry(ctx context.Context, kind Kind, id string, patch GeometryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.UpdateGeometry(kind, id, patch); err != nil {
		return err
	}
	s.persist(ctx)
	if chartUnavailable(s.canvas) == nil {
		a, _ := s.store.Get(kind, id)
		s.logRender("update", s.renderer.ApplyOne(s.canvas, s.pass(), a, s.selection.owns(kind, id)))
	}
	return nil
}

// Replace swaps the whole annotation set, validating it like a saved record.
func (s *Session) Replace(ctx context.Context, snap Snapshot) error {
	data, err := EncodeRecord(snap, s.now())
	if err != nil {
		return newError(CodeValidation, "encode annotations", err)
	}
	clean, err := DecodeRecord(data)
	if err != nil {
		return newError(CodeValidation, "invalid annotations", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetInteraction()
	s.store.ReplaceAll(clean)
	s.persist(ctx)
	if chartUnavailable(s.canvas) == nil {
		s.logRender("replace", s.redrawAll())
	}
	return nil
}

// SetChartType switches between line and candlestick rendering.
func (s *Session) SetChartType(ctx context.Context, t ChartType) error {
	if t != ChartLine && t != ChartCandlestick {
		return newError(CodeValidation, "chart type must be line or candlestick", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireChart(); err != nil {
		return err
	}
	s.chartType = t
	s.logRender("chart type", s.redrawAll())
	return nil
}

// SetIndicators replaces the enabled indicator series. At least one series
// is required; use ClearIndicators to turn all off.
func (s *Session) SetIndicators(ctx context.Context, series []Series) error {
	if len(series) == 0 {
		return newError(CodeValidation, "select at least one indicator", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireChart(); err != nil {
		return err
	}
	s.toggleIndicators(series)
	s.logRender("indicators", s.redrawAll())
	return nil
}

// ClearIndicators turns every indicator off.
func (s *Session) ClearIndicators(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toggleIndicators(nil)
	if chartUnavailable(s.canvas) == nil {
		s.logRender("indicators", s.redrawAll())
	}
	return nil
}

func (s *Session) toggleIndicators(next []Series) {
	has := func(list []Series, name string) bool {
		return slices.ContainsFunc(list, func(x Series) bool { return x.Name == name })
	}
	for _, old := range s.indicators {
		if !has(next, old.Name) {
			s.hooks.runIndicatorToggle(old.Name, false)
		}
	}
	for _, n := range next {
		if !has(s.indicators, n.Name) {
			s.hooks.runIndicatorToggle(n.Name, true)
		}
	}
	s.indicators = slices.Clone(next)
}

// Indicators returns the names of the enabled indicators.
func (s *Session) Indicators() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.indicators))
	for _, ind := range s.indicators {
		out = append(out, ind.Name)
	}
	return out
}

// SetPrediction replaces the forecast overlay.
func (s *Session) SetPrediction(ctx context.Context, p Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireChart(); err != nil {
		return err
	}
	s.prediction = &p
	set := s.canvas.Primitives()
	ReplaceKind(set, KindPrediction, s.renderer.PredictionOverlay(p))
	ReplaceKind(set, KindFutureIndicator, s.renderer.FutureIndicators(s.indicators, s.futureEdge()))
	s.logRender("prediction", s.canvas.Update(UpdateNone))
	return nil
}

// ClearPrediction removes the forecast overlay.
func (s *Session) ClearPrediction(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prediction = nil
	if chartUnavailable(s.canvas) == nil && s.canvas.Primitives().RemoveKind(KindPrediction) > 0 {
		s.logRender("prediction", s.canvas.Update(UpdateNone))
	}
	return nil
}

// Symbol returns the loaded instrument.
func (s *Session) Symbol() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbol
}

// Candles returns a copy of the loaded price data.
func (s *Session) Candles() []Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.candles)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot()
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Selection returns the selected element or nil.
func (s *Session) Selection() *Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection == nil {
		return nil
	}
	sel := *s.selection
	return &sel
}

// Dragging reports whether a drag is in progress.
func (s *Session) Dragging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drag != nil
}

// Primitives returns a copy of what is currently on the canvas.
func (s *Session) Primitives() PrimitiveSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canvas == nil {
		return PrimitiveSet{}
	}
	return s.canvas.Primitives().Clone()
}

// Flush saves the current instrument.
func (s *Session) Flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist(ctx)
}

// Close saves and releases the canvas.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist(ctx)
	s.resetInteraction()
	s.canvas = nil
}
