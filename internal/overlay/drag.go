package overlay

// drag is an in-progress pointer drag.
type drag struct {
	hit Hit
	// last is the pointer position of the previous tick in data space.
	last  Point
	moved bool
}

// dragPatch computes the geometry change for moving the dragged handle to p.
// Group and line drags translate by the delta since the previous tick.
func dragPatch(store *Store, d *drag, p Point) (GeometryPatch, bool) {
	o := d.hit.Owner
	a, ok := store.Get(o.Kind, o.ID)
	if !ok {
		return GeometryPatch{}, false
	}
	dx, dy := p.X-d.last.X, p.Y-d.last.Y

	switch v := a.(type) {
	case *TpSlSetup:
		switch d.hit.Handle {
		case HandleGroup:
			entry := Point{X: v.Entry.X + dx, Y: v.Entry.Y + dy}
			stop := Point{X: v.StopLoss.X + dx, Y: v.StopLoss.Y + dy}
			target := Point{X: v.TakeProfit.X + dx, Y: v.TakeProfit.Y + dy}
			zone := Zone{Left: v.Zone.Left + dx, Right: v.Zone.Right + dx}
			return GeometryPatch{Entry: &entry, StopLoss: &stop, TakeProfit: &target, Zone: &zone}, true
		case HandleZoneEdge:
			zone := v.Zone
			if d.hit.Side == SideLeft {
				zone.Left = min(p.X, zone.Right-DayMillis)
			} else {
				zone.Right = max(p.X, zone.Left+DayMillis)
			}
			return GeometryPatch{Zone: &zone}, true
		case HandleLevel:
			switch d.hit.Level {
			case PartEntryLine:
				entry := Point{X: v.Entry.X, Y: p.Y}
				return GeometryPatch{Entry: &entry}, true
			case PartTPLine:
				target := Point{X: v.TakeProfit.X, Y: p.Y}
				return GeometryPatch{TakeProfit: &target}, true
			case PartSLLine:
				stop := Point{X: v.StopLoss.X, Y: p.Y}
				return GeometryPatch{StopLoss: &stop}, true
			}
		}
	case *TrendLine:
		switch d.hit.Handle {
		case HandleEndpoint:
			if o.Part == PartStart {
				return GeometryPatch{X1: &p.X, Y1: &p.Y}, true
			}
			return GeometryPatch{X2: &p.X, Y2: &p.Y}, true
		case HandleLine:
			x1, y1, x2, y2 := v.X1+dx, v.Y1+dy, v.X2+dx, v.Y2+dy
			return GeometryPatch{X1: &x1, Y1: &y1, X2: &x2, Y2: &y2}, true
		}
	case *Signal, *Note, *Shape:
		return GeometryPatch{X: &p.X, Y: &p.Y}, true
	}
	return GeometryPatch{}, false
}

// applyDrag moves the dragged handle to p and returns the updated aggregate.
func applyDrag(store *Store, d *drag, p Point) (Annotation, error) {
	patch, ok := dragPatch(store, d, p)
	if !ok {
		return nil, newError(CodeNotFound, "drag target gone: "+d.hit.Owner.Key(), nil)
	}
	o := d.hit.Owner
	if err := store.UpdateGeometry(o.Kind, o.ID, patch); err != nil {
		return nil, err
	}
	d.last = p
	d.moved = true
	a, _ := store.Get(o.Kind, o.ID)
	return a, nil
}
