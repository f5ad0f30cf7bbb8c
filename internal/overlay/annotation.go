package overlay

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Kind discriminates annotation and overlay variants. It is set when a value
// is constructed and never derived from an id.
type Kind string

const (
	KindLine   Kind = "line"
	KindSignal Kind = "signal"
	KindNote   Kind = "note"
	KindTpSl   Kind = "tpsl"
	KindShape  Kind = "shape"

	// Ephemeral overlays, never persisted.
	KindCrosshair       Kind = "crosshair"
	KindPrediction      Kind = "prediction"
	KindBoundary        Kind = "historical_boundary"
	KindFutureIndicator Kind = "future_indicator"
	KindCandle          Kind = "candle"
	KindPreview         Kind = "preview"
)

// PersistentKinds lists the store-backed kinds in render order.
var PersistentKinds = []Kind{KindShape, KindTpSl, KindLine, KindSignal, KindNote}

// Persistent reports whether values of this kind live in the Store.
func (k Kind) Persistent() bool {
	switch k {
	case KindLine, KindSignal, KindNote, KindTpSl, KindShape:
		return true
	}
	return false
}

func (k Kind) idPrefix() string {
	switch k {
	case KindLine:
		return "trendLine"
	case KindSignal:
		return "signal"
	case KindNote:
		return "note"
	case KindTpSl:
		return "tpsl"
	case KindShape:
		return "shape"
	}
	return string(k)
}

type LineKind string

const (
	LineTrend      LineKind = "trend"
	LineSupport    LineKind = "support"
	LineResistance LineKind = "resistance"
)

type LineStyle string

const (
	StyleSolid  LineStyle = "solid"
	StyleDashed LineStyle = "dashed"
	StyleDotted LineStyle = "dotted"
)

type SignalKind string

const (
	SignalBuy  SignalKind = "buy"
	SignalSell SignalKind = "sell"
)

type TpSlKind string

const (
	TpSlBullish TpSlKind = "bullish"
	TpSlBearish TpSlKind = "bearish"
)

type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
	ShapeEllipse   ShapeKind = "ellipse"
	ShapeArrow     ShapeKind = "arrow"
	ShapeTriangle  ShapeKind = "triangle"
	ShapeStar      ShapeKind = "star"
	ShapeCross     ShapeKind = "cross"
)

// Annotation is implemented by every store-backed variant.
type Annotation interface {
	AnnotationID() string
	AnnotationKind() Kind
	setID(id string)
}

// TrendLine runs from (X1,Y1) to (X2,Y2). Its two endpoint handles are
// derived from these bounds when rendered.
type TrendLine struct {
	ID    string    `json:"id" validate:"required"`
	Kind  LineKind  `json:"type" validate:"oneof=trend support resistance"`
	X1    float64   `json:"x1"`
	Y1    float64   `json:"y1"`
	X2    float64   `json:"x2"`
	Y2    float64   `json:"y2"`
	Color string    `json:"color"`
	Width float64   `json:"width" validate:"gte=0"`
	Style LineStyle `json:"style" validate:"omitempty,oneof=solid dashed dotted"`
}

func (l *TrendLine) AnnotationID() string { return l.ID }
func (l *TrendLine) AnnotationKind() Kind { return KindLine }
func (l *TrendLine) setID(id string)      { l.ID = id }

func (l *TrendLine) Start() Point { return Point{X: l.X1, Y: l.Y1} }
func (l *TrendLine) End() Point   { return Point{X: l.X2, Y: l.Y2} }

// Signal is a buy or sell marker. Price and Date mirror Y and X.
type Signal struct {
	ID    string     `json:"id" validate:"required"`
	Kind  SignalKind `json:"type" validate:"oneof=buy sell"`
	X     float64    `json:"x"`
	Y     float64    `json:"y"`
	Price float64    `json:"price"`
	Date  float64    `json:"date"`
	Label string     `json:"label" validate:"required"`
}

func (s *Signal) AnnotationID() string { return s.ID }
func (s *Signal) AnnotationKind() Kind { return KindSignal }
func (s *Signal) setID(id string)      { s.ID = id }

// MoveTo places the signal and keeps the derived fields in step.
func (s *Signal) MoveTo(p Point) {
	s.X, s.Y = p.X, p.Y
	s.Price, s.Date = p.Y, p.X
}

// DefaultSignalLabel is used when no label was supplied.
func DefaultSignalLabel(kind SignalKind) string {
	if kind == SignalSell {
		return "Sell Signal"
	}
	return "Buy Signal"
}

// Note is rendered as a bare marker; its text only shows in a hover popup.
type Note struct {
	ID        string    `json:"id" validate:"required"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Color     string    `json:"color"`
	Kind      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
}

func (n *Note) AnnotationID() string { return n.ID }
func (n *Note) AnnotationKind() Kind { return KindNote }
func (n *Note) setID(id string)      { n.ID = id }

// Zone is the horizontal extent shared by the take-profit and stop-loss boxes.
type Zone struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// TpSlSetup is an entry with take-profit and stop-loss levels.
type TpSlSetup struct {
	ID         string    `json:"id" validate:"required"`
	Kind       TpSlKind  `json:"type" validate:"oneof=bullish bearish"`
	Entry      Point     `json:"entry"`
	StopLoss   Point     `json:"stopLoss"`
	TakeProfit Point     `json:"takeProfit"`
	RiskReward float64   `json:"riskReward"`
	Zone       Zone      `json:"zone"`
	Timestamp  time.Time `json:"timestamp"`
}

func (t *TpSlSetup) AnnotationID() string { return t.ID }
func (t *TpSlSetup) AnnotationKind() Kind { return KindTpSl }
func (t *TpSlSetup) setID(id string)      { t.ID = id }

// RecomputeRiskReward refreshes RiskReward from the current levels.
func (t *TpSlSetup) RecomputeRiskReward() {
	t.RiskReward = RiskReward(t.Entry.Y, t.StopLoss.Y, t.TakeProfit.Y)
}

// LevelsOrdered reports whether the levels satisfy the direction rule:
// stop < entry < target for bullish, the reverse for bearish.
func (t *TpSlSetup) LevelsOrdered() bool {
	if t.Kind == TpSlBearish {
		return t.TakeProfit.Y < t.Entry.Y && t.Entry.Y < t.StopLoss.Y
	}
	return t.StopLoss.Y < t.Entry.Y && t.Entry.Y < t.TakeProfit.Y
}

// defaultZoneWidth is used when the three levels were clicked close together.
const defaultZoneWidth = 7 * DayMillis

// normalizeZone gives a setup a usable box extent when none was stored.
func (t *TpSlSetup) normalizeZone() {
	if t.Zone.Right-t.Zone.Left >= DayMillis {
		return
	}
	left := math.Min(t.Entry.X, math.Min(t.StopLoss.X, t.TakeProfit.X))
	right := math.Max(t.Entry.X, math.Max(t.StopLoss.X, t.TakeProfit.X))
	if right-left < defaultZoneWidth {
		right = left + defaultZoneWidth
	}
	t.Zone = Zone{Left: left, Right: right}
}

// RiskReward is |target-entry| / |entry-stop| rounded to two decimals.
func RiskReward(entry, stop, target float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	rr, _ := decimal.NewFromFloat(math.Abs(target-entry) / risk).Round(2).Float64()
	return rr
}

// Shape is a free-standing marker or box.
type Shape struct {
	ID      string    `json:"id" validate:"required"`
	Kind    ShapeKind `json:"type" validate:"oneof=rectangle circle ellipse arrow triangle star cross"`
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	Color   string    `json:"color"`
	Size    float64   `json:"size" validate:"gte=0"`
	Opacity float64   `json:"opacity" validate:"gte=0,lte=1"`
	Label   string    `json:"label"`
}

func (s *Shape) AnnotationID() string { return s.ID }
func (s *Shape) AnnotationKind() Kind { return KindShape }
func (s *Shape) setID(id string)      { s.ID = id }

var annotationValidate = validator.New()

func validateAnnotation(a Annotation) error {
	if err := annotationValidate.Struct(a); err != nil {
		return newError(CodeValidation, "invalid "+string(a.AnnotationKind()), err)
	}
	if !annotationFinite(a) {
		return newError(CodeValidation, "non-finite coordinates on "+string(a.AnnotationKind()), nil)
	}
	return nil
}

func annotationFinite(a Annotation) bool {
	switch v := a.(type) {
	case *TrendLine:
		return finite(v.X1, v.Y1, v.X2, v.Y2, v.Width)
	case *Signal:
		return finite(v.X, v.Y)
	case *Note:
		return finite(v.X, v.Y)
	case *TpSlSetup:
		return finite(v.Entry.X, v.Entry.Y, v.StopLoss.X, v.StopLoss.Y, v.TakeProfit.X, v.TakeProfit.Y, v.Zone.Left, v.Zone.Right)
	case *Shape:
		return finite(v.X, v.Y, v.Size, v.Opacity)
	}
	return false
}

// Snapshot is a value copy of every store collection, in insertion order.
type Snapshot struct {
	Lines   []TrendLine `json:"lines"`
	Signals []Signal    `json:"signals"`
	Notes   []Note      `json:"notes"`
	TpSl    []TpSlSetup `json:"tpsl"`
	Shapes  []Shape     `json:"shapes"`
}

// Count returns the number of annotations across all collections.
func (s Snapshot) Count() int {
	return len(s.Lines) + len(s.Signals) + len(s.Notes) + len(s.TpSl) + len(s.Shapes)
}
