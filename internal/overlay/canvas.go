package overlay

import "sync"

// UpdateMode is passed to the backend's redraw call.
type UpdateMode string

const (
	// UpdateNone redraws without re-layout or animation.
	UpdateNone    UpdateMode = "none"
	UpdateDefault UpdateMode = "default"
)

type Cursor string

const (
	CursorDefault   Cursor = "default"
	CursorCrosshair Cursor = "crosshair"
	CursorPointer   Cursor = "pointer"
	CursorGrabbing  Cursor = "grabbing"
	CursorResize    Cursor = "ew-resize"
	CursorRow       Cursor = "ns-resize"
	CursorMove      Cursor = "move"
)

// Canvas is the rendering backend of one chart instance.
type Canvas interface {
	// Live reports whether the chart instance still exists.
	Live() bool
	// Mapper returns a coordinate mapper for the current axis ranges.
	Mapper() (CoordinateMapper, error)
	// Primitives returns the backend's mutable annotation map.
	Primitives() PrimitiveSet
	// Update flushes the annotation map to the screen.
	Update(mode UpdateMode) error
	SetCursor(c Cursor)
}

// MemoryCanvas is a Canvas whose axes are reported by the client. Every
// Update hands a copy of the primitives to the frame callback.
type MemoryCanvas struct {
	mu      sync.Mutex
	scales  Scales
	prims   PrimitiveSet
	live    bool
	cursor  Cursor
	updates int
	onFrame func(PrimitiveSet, UpdateMode)
}

func NewMemoryCanvas(scales Scales, onFrame func(PrimitiveSet, UpdateMode)) *MemoryCanvas {
	return &MemoryCanvas{
		scales:  scales,
		prims:   make(PrimitiveSet),
		live:    true,
		cursor:  CursorDefault,
		onFrame: onFrame,
	}
}

func (c *MemoryCanvas) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// SetScales records the axis ranges after a pan or zoom.
func (c *MemoryCanvas) SetScales(s Scales) {
	c.mu.Lock()
	c.scales = s
	c.mu.Unlock()
}

func (c *MemoryCanvas) Mapper() (CoordinateMapper, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live {
		return nil, newError(CodeChartUnavailable, "chart destroyed", nil)
	}
	if !c.scales.Valid() {
		return nil, newError(CodeChartUnavailable, "chart scales not reported", nil)
	}
	return c.scales, nil
}

func (c *MemoryCanvas) Primitives() PrimitiveSet { return c.prims }

func (c *MemoryCanvas) Update(mode UpdateMode) error {
	c.mu.Lock()
	if !c.live {
		c.mu.Unlock()
		return newError(CodeChartUnavailable, "chart destroyed", nil)
	}
	c.updates++
	onFrame := c.onFrame
	c.mu.Unlock()
	if onFrame != nil {
		onFrame(c.prims.Clone(), mode)
	}
	return nil
}

func (c *MemoryCanvas) SetCursor(cur Cursor) {
	c.mu.Lock()
	c.cursor = cur
	c.mu.Unlock()
}

func (c *MemoryCanvas) Cursor() Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Updates returns how many times Update succeeded.
func (c *MemoryCanvas) Updates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates
}

// Destroy marks the chart torn down; later calls fail.
func (c *MemoryCanvas) Destroy() {
	c.mu.Lock()
	c.live = false
	c.mu.Unlock()
}
