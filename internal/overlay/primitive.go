package overlay

import "sort"

// PrimitiveType is the drawing primitive understood by the rendering backend.
type PrimitiveType string

const (
	PrimitiveLine  PrimitiveType = "line"
	PrimitiveBox   PrimitiveType = "box"
	PrimitivePoint PrimitiveType = "point"
	PrimitiveLabel PrimitiveType = "label"
)

// Part names a child primitive of a multi-part aggregate.
type Part string

const (
	PartBody      Part = ""
	PartStart     Part = "endpoint1"
	PartEnd       Part = "endpoint2"
	PartLabel     Part = "label"
	PartTPZone    Part = "tp_zone"
	PartSLZone    Part = "sl_zone"
	PartEntryLine Part = "entry_line"
	PartTPLine    Part = "tp_line"
	PartSLLine    Part = "sl_line"
	PartInfo      Part = "info"
	PartWick      Part = "wick"
)

// Owner links a primitive to the aggregate it belongs to. Cascading deletes
// and drags walk owners, never key strings.
type Owner struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
	Part Part   `json:"part,omitempty"`
}

// Key is the rendering-backend annotation key: the id, or {id}_{part}.
func (o Owner) Key() string {
	if o.Part == PartBody {
		return o.ID
	}
	return o.ID + "_" + string(o.Part)
}

// Primitive is one backend annotation. Lines run from (XMin,YMin) to
// (XMax,YMax); boxes span both ranges; points and labels anchor at (X,Y).
type Primitive struct {
	Type  PrimitiveType `json:"type"`
	Owner Owner         `json:"owner"`

	XMin float64 `json:"xMin,omitempty"`
	XMax float64 `json:"xMax,omitempty"`
	YMin float64 `json:"yMin,omitempty"`
	YMax float64 `json:"yMax,omitempty"`

	X float64 `json:"xValue,omitempty"`
	Y float64 `json:"yValue,omitempty"`

	Radius     float64   `json:"radius,omitempty"`
	Color      string    `json:"borderColor,omitempty"`
	Fill       string    `json:"backgroundColor,omitempty"`
	Width      float64   `json:"borderWidth,omitempty"`
	Dash       []float64 `json:"borderDash,omitempty"`
	PointStyle string    `json:"pointStyle,omitempty"`
	Label      string    `json:"label,omitempty"`
	Highlight  bool      `json:"highlight,omitempty"`
}

func (p *Primitive) Key() string { return p.Owner.Key() }

func (p *Primitive) finite() bool {
	return finite(p.XMin, p.XMax, p.YMin, p.YMax, p.X, p.Y, p.Radius, p.Width)
}

// PrimitiveSet is the backend's mutable annotation map, keyed by Key().
type PrimitiveSet map[string]*Primitive

func (s PrimitiveSet) Put(p *Primitive) { s[p.Key()] = p }

// RemoveOwned deletes every primitive belonging to the aggregate id.
func (s PrimitiveSet) RemoveOwned(kind Kind, id string) int {
	return s.RemoveWhere(func(p *Primitive) bool {
		return p.Owner.Kind == kind && p.Owner.ID == id
	})
}

// RemoveKind deletes every primitive of the given owner kind.
func (s PrimitiveSet) RemoveKind(kind Kind) int {
	return s.RemoveWhere(func(p *Primitive) bool { return p.Owner.Kind == kind })
}

func (s PrimitiveSet) RemoveWhere(match func(*Primitive) bool) int {
	n := 0
	for k, p := range s {
		if match(p) {
			delete(s, k)
			n++
		}
	}
	return n
}

// Owned returns the primitives of one aggregate sorted by key.
func (s PrimitiveSet) Owned(kind Kind, id string) []*Primitive {
	var out []*Primitive
	for _, p := range s {
		if p.Owner.Kind == kind && p.Owner.ID == id {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Clone copies the set so it can be handed to another goroutine.
func (s PrimitiveSet) Clone() PrimitiveSet {
	out := make(PrimitiveSet, len(s))
	for k, p := range s {
		cp := *p
		if p.Dash != nil {
			cp.Dash = append([]float64(nil), p.Dash...)
		}
		out[k] = &cp
	}
	return out
}

// ChartJS converts the primitive into a chartjs-plugin-annotation object.
func (p *Primitive) ChartJS() map[string]any {
	out := map[string]any{
		"type":        string(p.Type),
		"borderColor": p.Color,
		"borderWidth": p.Width,
	}
	if p.Fill != "" {
		out["backgroundColor"] = p.Fill
	}
	if len(p.Dash) > 0 {
		out["borderDash"] = p.Dash
	}
	switch p.Type {
	case PrimitiveLine, PrimitiveBox:
		out["xMin"], out["xMax"] = p.XMin, p.XMax
		out["yMin"], out["yMax"] = p.YMin, p.YMax
		if p.Label != "" {
			out["label"] = map[string]any{"display": true, "content": p.Label, "position": "end"}
		}
	case PrimitivePoint:
		out["xValue"], out["yValue"] = p.X, p.Y
		out["radius"] = p.Radius
		if p.PointStyle != "" {
			out["pointStyle"] = p.PointStyle
		}
	case PrimitiveLabel:
		out["xValue"], out["yValue"] = p.X, p.Y
		out["content"] = p.Label
		out["yAdjust"] = -12
	}
	return out
}

// ChartJSSet converts a whole set, keyed like the backend map.
func ChartJSSet(s PrimitiveSet) map[string]map[string]any {
	out := make(map[string]map[string]any, len(s))
	for k, p := range s {
		out[k] = p.ChartJS()
	}
	return out
}
