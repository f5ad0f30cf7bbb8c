package cdpchart

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/chartdesk/internal/overlay"
)

// evaluator runs a script in the chart tab and returns its string result.
type evaluator interface {
	eval(ctx context.Context, js string) (string, error)
}

// Canvas is an overlay.Canvas backed by a Chart.js instance in a browser
// tab. The annotation map lives on the Go side and is pushed on Update.
type Canvas struct {
	ev      evaluator
	timeout time.Duration

	mu    sync.Mutex
	prims overlay.PrimitiveSet

	live atomic.Bool
}

var _ overlay.Canvas = (*Canvas)(nil)

func newCanvas(ev evaluator, timeout time.Duration) *Canvas {
	c := &Canvas{ev: ev, timeout: timeout, prims: make(overlay.PrimitiveSet)}
	c.live.Store(true)
	return c
}

func (c *Canvas) run(js string, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	raw, err := c.ev.eval(ctx, js)
	if err != nil {
		return chartUnavailable("chart tab evaluation failed", err)
	}
	err = decodeEnvelope(raw, out)
	if oe, ok := err.(*overlay.CodedError); ok && oe.Code == overlay.CodeChartUnavailable {
		c.live.Store(false)
	}
	return err
}

// Live reports whether the tab still shows a chart. It turns false when the
// page navigates away or a script finds no chart, and true again on
// MarkReady.
func (c *Canvas) Live() bool { return c.live.Load() }

// MarkReady flags a freshly created chart; the caller should redraw.
func (c *Canvas) MarkReady() {
	c.mu.Lock()
	c.prims = make(overlay.PrimitiveSet)
	c.mu.Unlock()
	c.live.Store(true)
}

func (c *Canvas) markGone() { c.live.Store(false) }

func (c *Canvas) Mapper() (overlay.CoordinateMapper, error) {
	var s overlay.Scales
	if err := c.run(jsScales(), &s); err != nil {
		return nil, err
	}
	if !s.Valid() {
		return nil, chartUnavailable("chart scales not ready", nil)
	}
	return s, nil
}

func (c *Canvas) Primitives() overlay.PrimitiveSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prims
}

func (c *Canvas) Update(mode overlay.UpdateMode) error {
	c.mu.Lock()
	js := jsApply(overlay.ChartJSSet(c.prims), mode)
	c.mu.Unlock()
	var out struct {
		Count int `json:"count"`
	}
	if err := c.run(js, &out); err != nil {
		return err
	}
	slog.Debug("cdpchart update", "mode", mode, "annotations", out.Count)
	return nil
}

func (c *Canvas) SetCursor(cur overlay.Cursor) {
	if !c.Live() {
		return
	}
	if err := c.run(jsSetCursor(cur), nil); err != nil {
		slog.Debug("cdpchart set cursor failed", "cursor", cur, "error", err)
	}
}
