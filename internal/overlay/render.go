package overlay

import (
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// historyWindow is how far back candle data is served.
	historyWindow = 1095 * DayMillis
	// candleBodyRatio is the share of the bar spacing taken by a body.
	candleBodyRatio = 0.6
)

var (
	dashPattern   = []float64{6, 4}
	dotPattern    = []float64{2, 3}
	previewDash   = []float64{5, 5}
	indicatorDash = []float64{4, 4}
)

// Renderer turns store content and ephemeral overlays into primitives and
// writes them to a Canvas.
type Renderer struct {
	style Style
	hooks *Hooks
}

func NewRenderer(style Style, hooks *Hooks) *Renderer {
	return &Renderer{style: style.Merge(DefaultStyle()), hooks: hooks}
}

func (r *Renderer) Style() Style { return r.style }

func chartUnavailable(c Canvas) error {
	if c == nil || !c.Live() {
		return newError(CodeChartUnavailable, "chart is not available", nil)
	}
	return nil
}

// ApplyAll removes every store-backed primitive and rebuilds them from the
// store. Primitives are built into a scratch set first so a failure leaves
// the canvas untouched.
func (r *Renderer) ApplyAll(c Canvas, pass RenderPass, store *Store, sel *Selection) error {
	if err := chartUnavailable(c); err != nil {
		return err
	}
	pass.Full = true
	r.hooks.runBeforeRender(pass)

	scratch := make(PrimitiveSet)
	for _, a := range store.All() {
		prims, err := r.Build(a, sel.owns(a.AnnotationKind(), a.AnnotationID()))
		if err != nil {
			return err
		}
		for _, p := range prims {
			scratch.Put(p)
		}
	}

	set := c.Primitives()
	set.RemoveWhere(func(p *Primitive) bool { return p.Owner.Kind.Persistent() })
	maps.Copy(set, scratch)
	r.hooks.runAfterApply(pass, set)
	return c.Update(UpdateDefault)
}

// ApplyOne replaces the primitives of a single aggregate and redraws without
// animation.
func (r *Renderer) ApplyOne(c Canvas, pass RenderPass, a Annotation, selected bool) error {
	if err := chartUnavailable(c); err != nil {
		return err
	}
	r.hooks.runBeforeRender(pass)
	set := c.Primitives()
	if err := r.Put(set, a, selected); err != nil {
		return err
	}
	r.hooks.runAfterApply(pass, set)
	return c.Update(UpdateNone)
}

// Put replaces the primitives of a in set without flushing.
func (r *Renderer) Put(set PrimitiveSet, a Annotation, selected bool) error {
	prims, err := r.Build(a, selected)
	if err != nil {
		return err
	}
	set.RemoveOwned(a.AnnotationKind(), a.AnnotationID())
	for _, p := range prims {
		set.Put(p)
	}
	return nil
}

// RemoveOne deletes the primitives of one aggregate and redraws.
func (r *Renderer) RemoveOne(c Canvas, kind Kind, id string) error {
	if err := chartUnavailable(c); err != nil {
		return err
	}
	c.Primitives().RemoveOwned(kind, id)
	return c.Update(UpdateNone)
}

// ReplaceKind swaps every primitive of an ephemeral kind for prims.
func ReplaceKind(set PrimitiveSet, kind Kind, prims []*Primitive) {
	set.RemoveKind(kind)
	for _, p := range prims {
		set.Put(p)
	}
}

// Build materialises one aggregate.
func (r *Renderer) Build(a Annotation, selected bool) ([]*Primitive, error) {
	var prims []*Primitive
	switch v := a.(type) {
	case *TrendLine:
		prims = r.buildLine(v)
	case *Signal:
		prims = r.buildSignal(v)
	case *Note:
		prims = r.buildNote(v)
	case *TpSlSetup:
		prims = r.buildTpSl(v)
	case *Shape:
		prims = r.buildShape(v)
	default:
		return nil, newError(CodeRenderFailure, "unknown annotation type", nil)
	}
	for _, p := range prims {
		if !p.finite() {
			return nil, newError(CodeRenderFailure, "non-finite geometry on "+p.Key(), nil)
		}
	}
	if selected {
		r.highlight(prims)
	}
	return prims, nil
}

func (r *Renderer) highlight(prims []*Primitive) {
	for _, p := range prims {
		p.Highlight = true
		p.Color = r.style.HighlightColor
		p.Width += r.style.HighlightWidth
	}
}

func (r *Renderer) buildLine(l *TrendLine) []*Primitive {
	color := l.Color
	if color == "" {
		switch l.Kind {
		case LineSupport:
			color = r.style.SupportColor
		case LineResistance:
			color = r.style.ResistanceColor
		default:
			color = r.style.TrendColor
		}
	}
	width := l.Width
	if width <= 0 {
		width = r.style.LineWidth
	}
	var dash []float64
	switch l.Style {
	case StyleDashed:
		dash = dashPattern
	case StyleDotted:
		dash = dotPattern
	}
	handle := func(part Part, p Point) *Primitive {
		return &Primitive{
			Type:   PrimitivePoint,
			Owner:  Owner{Kind: KindLine, ID: l.ID, Part: part},
			X:      p.X,
			Y:      p.Y,
			Radius: r.style.PointRadius - 1,
			Color:  color,
			Fill:   color,
			Width:  1,
		}
	}
	return []*Primitive{
		{
			Type:  PrimitiveLine,
			Owner: Owner{Kind: KindLine, ID: l.ID},
			XMin:  l.X1,
			YMin:  l.Y1,
			XMax:  l.X2,
			YMax:  l.Y2,
			Color: color,
			Width: width,
			Dash:  dash,
		},
		handle(PartStart, l.Start()),
		handle(PartEnd, l.End()),
	}
}

func (r *Renderer) buildSignal(s *Signal) []*Primitive {
	color, style := r.style.BuyColor, "triangle"
	if s.Kind == SignalSell {
		color, style = r.style.SellColor, "rectRot"
	}
	return []*Primitive{
		{
			Type:       PrimitivePoint,
			Owner:      Owner{Kind: KindSignal, ID: s.ID},
			X:          s.X,
			Y:          s.Y,
			Radius:     r.style.PointRadius,
			Color:      color,
			Fill:       color,
			Width:      1,
			PointStyle: style,
		},
		{
			Type:  PrimitiveLabel,
			Owner: Owner{Kind: KindSignal, ID: s.ID, Part: PartLabel},
			X:     s.X,
			Y:     s.Y,
			Color: color,
			Label: s.Label,
		},
	}
}

func (r *Renderer) buildNote(n *Note) []*Primitive {
	color := n.Color
	if color == "" {
		color = r.style.NoteColor
	}
	return []*Primitive{{
		Type:       PrimitivePoint,
		Owner:      Owner{Kind: KindNote, ID: n.ID},
		X:          n.X,
		Y:          n.Y,
		Radius:     r.style.PointRadius,
		Color:      color,
		Fill:       color,
		Width:      1,
		PointStyle: "rectRounded",
	}}
}

func (r *Renderer) buildTpSl(t *TpSlSetup) []*Primitive {
	own := func(part Part) Owner { return Owner{Kind: KindTpSl, ID: t.ID, Part: part} }
	tpLo, tpHi := minMax(t.Entry.Y, t.TakeProfit.Y)
	slLo, slHi := minMax(t.Entry.Y, t.StopLoss.Y)
	zone := func(part Part, lo, hi float64, fill, color string) *Primitive {
		return &Primitive{
			Type:  PrimitiveBox,
			Owner: own(part),
			XMin:  t.Zone.Left,
			XMax:  t.Zone.Right,
			YMin:  lo,
			YMax:  hi,
			Fill:  fill,
			Color: color,
			Width: 1,
		}
	}
	level := func(part Part, name string, y float64, color string) *Primitive {
		return &Primitive{
			Type:  PrimitiveLine,
			Owner: own(part),
			XMin:  t.Zone.Left,
			XMax:  t.Zone.Right,
			YMin:  y,
			YMax:  y,
			Color: color,
			Width: r.style.LineWidth,
			Label: name + ": " + FormatPrice(y),
		}
	}
	return []*Primitive{
		zone(PartTPZone, tpLo, tpHi, r.style.TPZoneFill, r.style.TPColor),
		zone(PartSLZone, slLo, slHi, r.style.SLZoneFill, r.style.SLColor),
		level(PartEntryLine, "Entry", t.Entry.Y, r.style.EntryColor),
		level(PartTPLine, "TP", t.TakeProfit.Y, r.style.TPColor),
		level(PartSLLine, "SL", t.StopLoss.Y, r.style.SLColor),
		{
			Type:  PrimitiveLabel,
			Owner: own(PartInfo),
			X:     t.Zone.Right + r.style.InfoOffsetX*DayMillis,
			Y:     t.Entry.Y,
			Color: r.style.InfoColor,
			Label: "R:R " + decimal.NewFromFloat(t.RiskReward).StringFixed(2),
		},
	}
}

var shapePointStyles = map[ShapeKind]string{
	ShapeRectangle: "rect",
	ShapeCircle:    "circle",
	ShapeEllipse:   "ellipse",
	ShapeArrow:     "line",
	ShapeTriangle:  "triangle",
	ShapeStar:      "star",
	ShapeCross:     "crossRot",
}

func (r *Renderer) buildShape(s *Shape) []*Primitive {
	color := s.Color
	if color == "" {
		color = r.style.TrendColor
	}
	size := s.Size
	if size <= 0 {
		size = r.style.PointRadius * 2
	}
	prims := []*Primitive{{
		Type:       PrimitivePoint,
		Owner:      Owner{Kind: KindShape, ID: s.ID},
		X:          s.X,
		Y:          s.Y,
		Radius:     size,
		Color:      color,
		Fill:       WithAlpha(color, s.Opacity),
		Width:      1,
		PointStyle: shapePointStyles[s.Kind],
	}}
	if s.Label != "" {
		prims = append(prims, &Primitive{
			Type:  PrimitiveLabel,
			Owner: Owner{Kind: KindShape, ID: s.ID, Part: PartLabel},
			X:     s.X,
			Y:     s.Y,
			Color: color,
			Label: s.Label,
		})
	}
	return prims
}

// Crosshair draws a vertical and a horizontal guide through p. It returns
// nothing when the mapper cannot report its axis ranges.
func (r *Renderer) Crosshair(p Point, m CoordinateMapper) []*Primitive {
	b, ok := m.(interface{ DataBounds() (Point, Point) })
	if !ok {
		return nil
	}
	lo, hi := b.DataBounds()
	return []*Primitive{
		{
			Type:  PrimitiveLine,
			Owner: Owner{Kind: KindCrosshair, ID: "crosshair_v"},
			XMin:  p.X,
			XMax:  p.X,
			YMin:  lo.Y,
			YMax:  hi.Y,
			Color: r.style.CrosshairColor,
			Width: 1,
			Dash:  dotPattern,
			Label: time.UnixMilli(int64(p.X)).UTC().Format(time.DateOnly),
		},
		{
			Type:  PrimitiveLine,
			Owner: Owner{Kind: KindCrosshair, ID: "crosshair_h"},
			XMin:  lo.X,
			XMax:  hi.X,
			YMin:  p.Y,
			YMax:  p.Y,
			Color: r.style.CrosshairColor,
			Width: 1,
			Dash:  dotPattern,
			Label: FormatPrice(p.Y),
		},
	}
}

// Preview is the rubber-band line shown while drawing.
func (r *Renderer) Preview(from, to Point) []*Primitive {
	return []*Primitive{{
		Type:  PrimitiveLine,
		Owner: Owner{Kind: KindPreview, ID: "preview_line"},
		XMin:  from.X,
		YMin:  from.Y,
		XMax:  to.X,
		YMax:  to.Y,
		Color: r.style.PreviewColor,
		Width: r.style.LineWidth,
		Dash:  previewDash,
	}}
}

// PredictionOverlay draws the forecast path, its band and target.
func (r *Renderer) PredictionOverlay(p Prediction) []*Primitive {
	var prims []*Primitive
	segments := func(id string, pts []Point, color string, width float64, dash []float64) {
		for i := 1; i < len(pts); i++ {
			prims = append(prims, &Primitive{
				Type:  PrimitiveLine,
				Owner: Owner{Kind: KindPrediction, ID: id, Part: Part(strconv.Itoa(i - 1))},
				XMin:  pts[i-1].X,
				YMin:  pts[i-1].Y,
				XMax:  pts[i].X,
				YMax:  pts[i].Y,
				Color: color,
				Width: width,
				Dash:  dash,
			})
		}
	}
	segments("prediction_path", p.Path, r.style.PredictionColor, r.style.LineWidth, nil)
	segments("prediction_upper", p.Upper, r.style.BandColor, 1, dashPattern)
	segments("prediction_lower", p.Lower, r.style.BandColor, 1, dashPattern)
	if p.Target != nil {
		label := p.Label
		if label == "" {
			label = "Target: " + FormatPrice(p.Target.Y)
		}
		prims = append(prims,
			&Primitive{
				Type:       PrimitivePoint,
				Owner:      Owner{Kind: KindPrediction, ID: "prediction_target"},
				X:          p.Target.X,
				Y:          p.Target.Y,
				Radius:     r.style.PointRadius,
				Color:      r.style.PredictionColor,
				Fill:       r.style.PredictionColor,
				Width:      1,
				PointStyle: "star",
			},
			&Primitive{
				Type:  PrimitiveLabel,
				Owner: Owner{Kind: KindPrediction, ID: "prediction_target", Part: PartLabel},
				X:     p.Target.X,
				Y:     p.Target.Y,
				Color: r.style.PredictionColor,
				Label: label,
			})
	}
	return keepFinite(prims)
}

// Boundary marks the start of the served history when the candles reach
// further back than the history window.
func (r *Renderer) Boundary(candles []Candle, now time.Time) []*Primitive {
	if len(candles) == 0 {
		return nil
	}
	limit := float64(now.UnixMilli()) - historyWindow
	if candles[0].Time >= limit {
		return nil
	}
	lo, hi := priceRange(candles)
	return []*Primitive{{
		Type:  PrimitiveLine,
		Owner: Owner{Kind: KindBoundary, ID: "historical_boundary"},
		XMin:  limit,
		XMax:  limit,
		YMin:  lo,
		YMax:  hi,
		Color: r.style.BoundaryColor,
		Width: 1,
		Dash:  dashPattern,
		Label: "3Y limit",
	}}
}

// FutureIndicators extends the last value of each series to the right edge.
func (r *Renderer) FutureIndicators(series []Series, until float64) []*Primitive {
	var prims []*Primitive
	for _, s := range series {
		last, ok := s.Last()
		if !ok || last.X >= until {
			continue
		}
		prims = append(prims, &Primitive{
			Type:  PrimitiveLine,
			Owner: Owner{Kind: KindFutureIndicator, ID: "future_indicator_" + s.Name},
			XMin:  last.X,
			XMax:  until,
			YMin:  last.Y,
			YMax:  last.Y,
			Color: r.style.IndicatorColor,
			Width: 1,
			Dash:  indicatorDash,
		})
	}
	return prims
}

// Candles draws one body box and one wick line per bar.
func (r *Renderer) Candles(candles []Candle) []*Primitive {
	half := candleSpacing(candles) * candleBodyRatio / 2
	prims := make([]*Primitive, 0, 2*len(candles))
	for i, c := range candles {
		color := r.style.CandleUpColor
		if c.Close < c.Open {
			color = r.style.CandleDownColor
		}
		id := "candle_" + strconv.Itoa(i)
		lo, hi := minMax(c.Open, c.Close)
		prims = append(prims,
			&Primitive{
				Type:  PrimitiveBox,
				Owner: Owner{Kind: KindCandle, ID: id},
				XMin:  c.Time - half,
				XMax:  c.Time + half,
				YMin:  lo,
				YMax:  hi,
				Color: color,
				Fill:  color,
				Width: 1,
			},
			&Primitive{
				Type:  PrimitiveLine,
				Owner: Owner{Kind: KindCandle, ID: id, Part: PartWick},
				XMin:  c.Time,
				XMax:  c.Time,
				YMin:  c.Low,
				YMax:  c.High,
				Color: color,
				Width: 1,
			})
	}
	return keepFinite(prims)
}

func candleSpacing(candles []Candle) float64 {
	if len(candles) < 2 {
		return DayMillis
	}
	gap := candles[1].Time - candles[0].Time
	if gap <= 0 {
		return DayMillis
	}
	return gap
}

func priceRange(candles []Candle) (float64, float64) {
	lo, hi := candles[0].Low, candles[0].High
	for _, c := range candles[1:] {
		lo = min(lo, c.Low)
		hi = max(hi, c.High)
	}
	return lo, hi
}

func keepFinite(prims []*Primitive) []*Primitive {
	out := prims[:0]
	for _, p := range prims {
		if p.finite() {
			out = append(out, p)
		}
	}
	return out
}

// FormatPrice renders a price with two decimals.
func FormatPrice(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// WithAlpha turns a #rrggbb color into rgba with the given opacity. Other
// color notations are returned unchanged.
func WithAlpha(color string, alpha float64) string {
	if len(color) != 7 || !strings.HasPrefix(color, "#") {
		return color
	}
	v, err := strconv.ParseUint(color[1:], 16, 32)
	if err != nil {
		return color
	}
	return "rgba(" + strconv.FormatUint(v>>16&0xff, 10) + "," +
		strconv.FormatUint(v>>8&0xff, 10) + "," +
		strconv.FormatUint(v&0xff, 10) + "," +
		strconv.FormatFloat(alpha, 'f', -1, 64) + ")"
}
