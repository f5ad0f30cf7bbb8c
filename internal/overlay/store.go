package overlay

import "slices"

// Op names a store mutation.
type Op string

const (
	OpAdd     Op = "add"
	OpUpdate  Op = "update"
	OpRemove  Op = "remove"
	OpClear   Op = "clear"
	OpReplace Op = "replace"
)

// Change describes one store mutation. ID is empty for Clear and Replace.
type Change struct {
	Op   Op
	Kind Kind
	ID   string
}

// GeometryPatch carries the coordinates to overwrite. Fields that do not
// apply to the target kind are ignored.
type GeometryPatch struct {
	X1 *float64 `json:"x1,omitempty"`
	Y1 *float64 `json:"y1,omitempty"`
	X2 *float64 `json:"x2,omitempty"`
	Y2 *float64 `json:"y2,omitempty"`

	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`

	Entry      *Point `json:"entry,omitempty"`
	StopLoss   *Point `json:"stopLoss,omitempty"`
	TakeProfit *Point `json:"takeProfit,omitempty"`
	Zone       *Zone  `json:"zone,omitempty"`
}

// Store is the canonical model of the annotations of one instrument. It is
// not safe for concurrent use; the owning Session serialises access.
type Store struct {
	lines   []*TrendLine
	signals []*Signal
	notes   []*Note
	tpsl    []*TpSlSetup
	shapes  []*Shape

	ids      *IDGenerator
	onChange func(Change)
}

func NewStore(ids *IDGenerator) *Store {
	if ids == nil {
		ids = NewIDGenerator(nil)
	}
	return &Store{ids: ids}
}

// OnChange registers the function called after every mutation.
func (s *Store) OnChange(fn func(Change)) { s.onChange = fn }

func (s *Store) changed(c Change) {
	if s.onChange != nil {
		s.onChange(c)
	}
}

// Add stores a and returns its id. An empty id is generated; a supplied id
// must not already be in use.
func (s *Store) Add(a Annotation) (string, error) {
	if a == nil {
		return "", newError(CodeValidation, "annotation is required", nil)
	}
	kind := a.AnnotationKind()
	if a.AnnotationID() == "" {
		a.setID(s.ids.Next(kind))
	} else if _, ok := s.Get(kind, a.AnnotationID()); ok {
		return "", newError(CodeValidation, "duplicate annotation id: "+a.AnnotationID(), nil)
	}
	prepare(a)
	if err := validateAnnotation(a); err != nil {
		return "", err
	}

	switch v := a.(type) {
	case *TrendLine:
		s.lines = append(s.lines, v)
	case *Signal:
		s.signals = append(s.signals, v)
	case *Note:
		s.notes = append(s.notes, v)
	case *TpSlSetup:
		s.tpsl = append(s.tpsl, v)
	case *Shape:
		s.shapes = append(s.shapes, v)
	}
	s.changed(Change{Op: OpAdd, Kind: kind, ID: a.AnnotationID()})
	return a.AnnotationID(), nil
}

// prepare fills derived fields before validation.
func prepare(a Annotation) {
	switch v := a.(type) {
	case *Signal:
		if v.Label == "" {
			v.Label = DefaultSignalLabel(v.Kind)
		}
		v.Price, v.Date = v.Y, v.X
	case *TpSlSetup:
		v.normalizeZone()
		v.RecomputeRiskReward()
	case *TrendLine:
		if v.Style == "" {
			v.Style = StyleSolid
		}
	}
}

// Get returns the live annotation; callers that mutate it must persist.
func (s *Store) Get(kind Kind, id string) (Annotation, bool) {
	switch kind {
	case KindLine:
		return findByID(s.lines, id)
	case KindSignal:
		return findByID(s.signals, id)
	case KindNote:
		return findByID(s.notes, id)
	case KindTpSl:
		return findByID(s.tpsl, id)
	case KindShape:
		return findByID(s.shapes, id)
	}
	return nil, false
}

func findByID[T Annotation](items []T, id string) (Annotation, bool) {
	for _, it := range items {
		if it.AnnotationID() == id {
			return it, true
		}
	}
	return nil, false
}

func (s *Store) Line(id string) (*TrendLine, bool) {
	a, ok := s.Get(KindLine, id)
	if !ok {
		return nil, false
	}
	return a.(*TrendLine), true
}

func (s *Store) Signal(id string) (*Signal, bool) {
	a, ok := s.Get(KindSignal, id)
	if !ok {
		return nil, false
	}
	return a.(*Signal), true
}

func (s *Store) Note(id string) (*Note, bool) {
	a, ok := s.Get(KindNote, id)
	if !ok {
		return nil, false
	}
	return a.(*Note), true
}

func (s *Store) TpSl(id string) (*TpSlSetup, bool) {
	a, ok := s.Get(KindTpSl, id)
	if !ok {
		return nil, false
	}
	return a.(*TpSlSetup), true
}

func (s *Store) Shape(id string) (*Shape, bool) {
	a, ok := s.Get(KindShape, id)
	if !ok {
		return nil, false
	}
	return a.(*Shape), true
}

// Remove deletes one annotation. It reports whether anything was removed.
func (s *Store) Remove(kind Kind, id string) bool {
	var removed bool
	switch kind {
	case KindLine:
		s.lines, removed = removeByID(s.lines, id)
	case KindSignal:
		s.signals, removed = removeByID(s.signals, id)
	case KindNote:
		s.notes, removed = removeByID(s.notes, id)
	case KindTpSl:
		s.tpsl, removed = removeByID(s.tpsl, id)
	case KindShape:
		s.shapes, removed = removeByID(s.shapes, id)
	}
	if removed {
		s.changed(Change{Op: OpRemove, Kind: kind, ID: id})
	}
	return removed
}

func removeByID[T Annotation](items []T, id string) ([]T, bool) {
	i := slices.IndexFunc(items, func(it T) bool { return it.AnnotationID() == id })
	if i < 0 {
		return items, false
	}
	return slices.Delete(items, i, i+1), true
}

// UpdateGeometry applies patch to the annotation and re-derives dependent
// fields (signal price/date, risk/reward). The patch is applied to a copy and
// committed only when the result is valid; a rejected patch changes nothing.
func (s *Store) UpdateGeometry(kind Kind, id string, patch GeometryPatch) error {
	a, ok := s.Get(kind, id)
	if !ok {
		return newError(CodeNotFound, string(kind)+" not found: "+id, nil)
	}
	var err error
	switch v := a.(type) {
	case *TrendLine:
		err = commitPatched(v, func(c *TrendLine) error {
			setIf(&c.X1, patch.X1)
			setIf(&c.Y1, patch.Y1)
			setIf(&c.X2, patch.X2)
			setIf(&c.Y2, patch.Y2)
			return nil
		})
	case *Signal:
		err = commitPatched(v, func(c *Signal) error {
			p := Point{X: c.X, Y: c.Y}
			setIf(&p.X, patch.X)
			setIf(&p.Y, patch.Y)
			c.MoveTo(p)
			return nil
		})
	case *Note:
		err = commitPatched(v, func(c *Note) error {
			setIf(&c.X, patch.X)
			setIf(&c.Y, patch.Y)
			return nil
		})
	case *Shape:
		err = commitPatched(v, func(c *Shape) error {
			setIf(&c.X, patch.X)
			setIf(&c.Y, patch.Y)
			return nil
		})
	case *TpSlSetup:
		err = commitPatched(v, func(c *TpSlSetup) error {
			if patch.Zone != nil {
				if patch.Zone.Right-patch.Zone.Left < DayMillis-1 {
					return newError(CodeValidation, "zone must be at least one day wide", nil)
				}
				c.Zone = *patch.Zone
			}
			if patch.Entry != nil {
				c.Entry = *patch.Entry
			}
			if patch.StopLoss != nil {
				c.StopLoss = *patch.StopLoss
			}
			if patch.TakeProfit != nil {
				c.TakeProfit = *patch.TakeProfit
			}
			c.RecomputeRiskReward()
			return nil
		})
	}
	if err != nil {
		return err
	}
	s.changed(Change{Op: OpUpdate, Kind: kind, ID: id})
	return nil
}

// commitPatched runs apply on a copy of *dst and stores the copy only when
// apply succeeds and every coordinate stays finite.
func commitPatched[T any, P interface {
	*T
	Annotation
}](dst P, apply func(P) error) error {
	staged := *dst
	c := P(&staged)
	if err := apply(c); err != nil {
		return err
	}
	if !annotationFinite(c) {
		return newError(CodeValidation, "non-finite coordinates on "+string(c.AnnotationKind()), nil)
	}
	*dst = staged
	return nil
}

func setIf(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// Clear removes every annotation of one kind.
func (s *Store) Clear(kind Kind) {
	switch kind {
	case KindLine:
		s.lines = nil
	case KindSignal:
		s.signals = nil
	case KindNote:
		s.notes = nil
	case KindTpSl:
		s.tpsl = nil
	case KindShape:
		s.shapes = nil
	default:
		return
	}
	s.changed(Change{Op: OpClear, Kind: kind})
}

// ReplaceAll swaps the whole content for snap, used when loading.
func (s *Store) ReplaceAll(snap Snapshot) {
	s.lines = copyPtrs(snap.Lines)
	s.signals = copyPtrs(snap.Signals)
	s.notes = copyPtrs(snap.Notes)
	s.tpsl = copyPtrs(snap.TpSl)
	s.shapes = copyPtrs(snap.Shapes)
	s.changed(Change{Op: OpReplace})
}

func copyPtrs[T any](in []T) []*T {
	out := make([]*T, 0, len(in))
	for i := range in {
		v := in[i]
		out = append(out, &v)
	}
	return out
}

func copyVals[T any](in []*T) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		out = append(out, *v)
	}
	return out
}

// Snapshot returns a deep copy of the store content.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Lines:   copyVals(s.lines),
		Signals: copyVals(s.signals),
		Notes:   copyVals(s.notes),
		TpSl:    copyVals(s.tpsl),
		Shapes:  copyVals(s.shapes),
	}
}

// Len returns the number of annotations of one kind.
func (s *Store) Len(kind Kind) int {
	switch kind {
	case KindLine:
		return len(s.lines)
	case KindSignal:
		return len(s.signals)
	case KindNote:
		return len(s.notes)
	case KindTpSl:
		return len(s.tpsl)
	case KindShape:
		return len(s.shapes)
	}
	return 0
}

// All returns every annotation in render order.
func (s *Store) All() []Annotation {
	out := make([]Annotation, 0, len(s.lines)+len(s.signals)+len(s.notes)+len(s.tpsl)+len(s.shapes))
	for _, kind := range PersistentKinds {
		switch kind {
		case KindShape:
			for _, v := range s.shapes {
				out = append(out, v)
			}
		case KindTpSl:
			for _, v := range s.tpsl {
				out = append(out, v)
			}
		case KindLine:
			for _, v := range s.lines {
				out = append(out, v)
			}
		case KindSignal:
			for _, v := range s.signals {
				out = append(out, v)
			}
		case KindNote:
			for _, v := range s.notes {
				out = append(out, v)
			}
		}
	}
	return out
}

// Reissue returns a copy of snap in which every annotation carries a fresh
// id from ids. The first entry failing validation aborts with its error.
func Reissue(snap Snapshot, ids *IDGenerator) (Snapshot, error) {
	st := NewStore(ids)
	var add []Annotation
	for i := range snap.Lines {
		v := snap.Lines[i]
		v.ID = ""
		add = append(add, &v)
	}
	for i := range snap.Signals {
		v := snap.Signals[i]
		v.ID = ""
		add = append(add, &v)
	}
	for i := range snap.Notes {
		v := snap.Notes[i]
		v.ID = ""
		add = append(add, &v)
	}
	for i := range snap.TpSl {
		v := snap.TpSl[i]
		v.ID = ""
		add = append(add, &v)
	}
	for i := range snap.Shapes {
		v := snap.Shapes[i]
		v.ID = ""
		add = append(add, &v)
	}
	for _, a := range add {
		if _, err := st.Add(a); err != nil {
			return Snapshot{}, err
		}
	}
	return st.Snapshot(), nil
}
