package overlay

import "math"

// Handle says what a drag started on a hit will modify.
type Handle string

const (
	HandleLevel    Handle = "level"
	HandleZoneEdge Handle = "zone_edge"
	HandleGroup    Handle = "group"
	HandlePoint    Handle = "point"
	HandleLabel    Handle = "label"
	HandleEndpoint Handle = "endpoint"
	HandleLine     Handle = "line"
)

type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Pixel tolerances of the hit tiers.
const (
	levelTolerance = 15.0
	edgeTolerance  = 10.0
	pointSlack     = 5.0
	lineTolerance  = 10.0
)

// Hit is the interactive element found under the pointer.
type Hit struct {
	Owner  Owner  `json:"owner"`
	Handle Handle `json:"handle"`
	// Side and Zone are set for zone-edge hits.
	Side Side `json:"side,omitempty"`
	Zone Part `json:"zone,omitempty"`
	// Level is the level line of a level hit.
	Level Part `json:"level,omitempty"`
}

// Cursor returns the pointer shape shown while hovering the hit.
func (h Hit) Cursor() Cursor {
	switch h.Handle {
	case HandleZoneEdge:
		return CursorResize
	case HandleLevel:
		return CursorRow
	case HandleGroup, HandleLine:
		return CursorMove
	}
	return CursorPointer
}

// Selection identifies the selected element: the backend key of the hit
// primitive plus the aggregate it belongs to.
type Selection struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	BaseID string `json:"base_id"`
	Part   Part   `json:"part,omitempty"`
}

func selectionFor(o Owner) *Selection {
	return &Selection{ID: o.Key(), Kind: o.Kind, BaseID: o.ID, Part: o.Part}
}

func (s *Selection) owns(kind Kind, id string) bool {
	return s != nil && s.Kind == kind && s.BaseID == id
}

// BuildInteractive materialises the store in render order for hit testing,
// without selection highlight. Aggregates that fail to build are skipped.
func (r *Renderer) BuildInteractive(store *Store) []*Primitive {
	var out []*Primitive
	for _, a := range store.All() {
		prims, err := r.Build(a, false)
		if err != nil {
			continue
		}
		out = append(out, prims...)
	}
	return out
}

// HitTest returns the element under px. Tiers are tried in priority order
// and within a tier the primitive added last wins.
func HitTest(prims []*Primitive, m CoordinateMapper, px PixelPoint, style Style) (Hit, bool) {
	tiers := []func(*Primitive) (Hit, bool){
		func(p *Primitive) (Hit, bool) { return hitLevel(p, m, px) },
		func(p *Primitive) (Hit, bool) { return hitZoneEdge(p, m, px) },
		func(p *Primitive) (Hit, bool) { return hitZoneInterior(p, m, px) },
		func(p *Primitive) (Hit, bool) { return hitPoint(p, m, px, style) },
		func(p *Primitive) (Hit, bool) { return hitLabel(p, m, px, style) },
		func(p *Primitive) (Hit, bool) { return hitTrendLine(p, m, px) },
	}
	for _, tier := range tiers {
		for i := len(prims) - 1; i >= 0; i-- {
			if h, ok := tier(prims[i]); ok {
				return h, true
			}
		}
	}
	return Hit{}, false
}

func isLevelPart(p Part) bool {
	return p == PartEntryLine || p == PartTPLine || p == PartSLLine
}

// pixelBox returns the pixel extent of a line or box primitive.
func pixelBox(p *Primitive, m CoordinateMapper) (x0, x1, y0, y1 float64) {
	a := m.ToPixel(Point{X: p.XMin, Y: p.YMin})
	b := m.ToPixel(Point{X: p.XMax, Y: p.YMax})
	x0, x1 = minMax(a.X, b.X)
	y0, y1 = minMax(a.Y, b.Y)
	return
}

func hitLevel(p *Primitive, m CoordinateMapper, px PixelPoint) (Hit, bool) {
	if p.Type != PrimitiveLine || p.Owner.Kind != KindTpSl || !isLevelPart(p.Owner.Part) {
		return Hit{}, false
	}
	x0, x1, y, _ := pixelBox(p, m)
	if px.X < x0 || px.X > x1 || math.Abs(px.Y-y) > levelTolerance {
		return Hit{}, false
	}
	return Hit{Owner: p.Owner, Handle: HandleLevel, Level: p.Owner.Part}, true
}

func isZone(p *Primitive) bool {
	return p.Type == PrimitiveBox && p.Owner.Kind == KindTpSl &&
		(p.Owner.Part == PartTPZone || p.Owner.Part == PartSLZone)
}

func hitZoneEdge(p *Primitive, m CoordinateMapper, px PixelPoint) (Hit, bool) {
	if !isZone(p) {
		return Hit{}, false
	}
	x0, x1, y0, y1 := pixelBox(p, m)
	if px.Y < y0 || px.Y > y1 {
		return Hit{}, false
	}
	dl, dr := math.Abs(px.X-x0), math.Abs(px.X-x1)
	if dl > edgeTolerance && dr > edgeTolerance {
		return Hit{}, false
	}
	side := SideLeft
	if dr < dl {
		side = SideRight
	}
	return Hit{Owner: p.Owner, Handle: HandleZoneEdge, Side: side, Zone: p.Owner.Part}, true
}

func hitZoneInterior(p *Primitive, m CoordinateMapper, px PixelPoint) (Hit, bool) {
	if !isZone(p) {
		return Hit{}, false
	}
	x0, x1, y0, y1 := pixelBox(p, m)
	if px.X < x0 || px.X > x1 || px.Y < y0 || px.Y > y1 {
		return Hit{}, false
	}
	return Hit{Owner: p.Owner, Handle: HandleGroup}, true
}

func hitPoint(p *Primitive, m CoordinateMapper, px PixelPoint, style Style) (Hit, bool) {
	info := p.Owner.Kind == KindTpSl && p.Owner.Part == PartInfo
	if p.Type != PrimitivePoint && !info {
		return Hit{}, false
	}
	radius := p.Radius
	if info {
		radius = style.PointRadius
	}
	if distance(px, m.ToPixel(Point{X: p.X, Y: p.Y})) > radius+pointSlack {
		return Hit{}, false
	}
	switch {
	case info:
		return Hit{Owner: p.Owner, Handle: HandleGroup}, true
	case p.Owner.Kind == KindLine && (p.Owner.Part == PartStart || p.Owner.Part == PartEnd):
		return Hit{Owner: p.Owner, Handle: HandleEndpoint}, true
	}
	return Hit{Owner: p.Owner, Handle: HandlePoint}, true
}

// hitLabel tests the text box drawn above the label anchor.
func hitLabel(p *Primitive, m CoordinateMapper, px PixelPoint, style Style) (Hit, bool) {
	if p.Type != PrimitiveLabel || p.Owner.Part != PartLabel {
		return Hit{}, false
	}
	a := m.ToPixel(Point{X: p.X, Y: p.Y})
	half := style.LabelWidth / 2
	if px.X < a.X-half || px.X > a.X+half || px.Y < a.Y-style.LabelHeight || px.Y > a.Y {
		return Hit{}, false
	}
	return Hit{Owner: p.Owner, Handle: HandleLabel}, true
}

func hitTrendLine(p *Primitive, m CoordinateMapper, px PixelPoint) (Hit, bool) {
	if p.Type != PrimitiveLine || p.Owner.Kind != KindLine || p.Owner.Part != PartBody {
		return Hit{}, false
	}
	a := m.ToPixel(Point{X: p.XMin, Y: p.YMin})
	b := m.ToPixel(Point{X: p.XMax, Y: p.YMax})
	if math.Abs(b.X-a.X) < 1 {
		y0, y1 := minMax(a.Y, b.Y)
		if px.Y < y0 || px.Y > y1 || math.Abs(px.X-a.X) > lineTolerance {
			return Hit{}, false
		}
		return Hit{Owner: p.Owner, Handle: HandleLine}, true
	}
	x0, x1 := minMax(a.X, b.X)
	if px.X < x0 || px.X > x1 {
		return Hit{}, false
	}
	y := a.Y + (px.X-a.X)/(b.X-a.X)*(b.Y-a.Y)
	if math.Abs(px.Y-y) > lineTolerance {
		return Hit{}, false
	}
	return Hit{Owner: p.Owner, Handle: HandleLine}, true
}
