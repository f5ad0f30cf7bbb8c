package cdpchart

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// bindingName is the window function the page calls to forward input.
const bindingName = "chartdeskInput"

// Client attaches to chart tabs in an already running Chromium.
type Client struct {
	cdpURL    string
	tabFilter string
	timeout   time.Duration

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabs        map[target.ID]*Tab
}

func NewClient(cdpURL, tabFilter string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:    cdpURL,
		tabFilter: tabFilter,
		timeout:   evalTimeout,
		tabs:      make(map[target.ID]*Tab),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	_ = ctx
	slog.Info("Connecting to Chromium", "url", c.cdpURL)
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), c.cdpURL)

	checkCtx, checkCancel := chromedp.NewContext(allocCtx)
	defer checkCancel()
	if err := chromedp.Run(checkCtx); err != nil {
		allocCancel()
		return fmt.Errorf("cdpchart: connect to browser: %w", err)
	}

	c.mu.Lock()
	c.allocCtx, c.allocCancel = allocCtx, allocCancel
	c.mu.Unlock()
	return nil
}

// Attach opens the first page tab whose URL contains the filter and not
// already attached, and prepares it for rendering and input forwarding.
func (c *Client) Attach(ctx context.Context) (*Tab, error) {
	c.mu.Lock()
	allocCtx := c.allocCtx
	c.mu.Unlock()
	if allocCtx == nil {
		return nil, chartUnavailable("browser not connected", nil)
	}

	checkCtx, checkCancel := chromedp.NewContext(allocCtx)
	defer checkCancel()
	targets, err := chromedp.Targets(checkCtx)
	if err != nil {
		return nil, fmt.Errorf("cdpchart: enumerate targets: %w", err)
	}

	for _, t := range targets {
		if t.Type != "page" || !strings.Contains(t.URL, c.tabFilter) {
			continue
		}
		c.mu.Lock()
		_, taken := c.tabs[t.TargetID]
		c.mu.Unlock()
		if taken {
			continue
		}
		tab, err := c.attach(ctx, allocCtx, t.TargetID, t.URL)
		if err != nil {
			slog.Error("Failed to attach to chart tab", "target_id", t.TargetID, "url", t.URL, "error", err)
			continue
		}
		return tab, nil
	}
	return nil, chartUnavailable(fmt.Sprintf("no free tab matching %q", c.tabFilter), nil)
}

func (c *Client) attach(ctx context.Context, allocCtx context.Context, id target.ID, url string) (*Tab, error) {
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(id))
	tab := &Tab{
		ID:     id,
		URL:    url,
		ctx:    tabCtx,
		cancel: tabCancel,
		inputs: make(chan InputEvent, 256),
	}
	tab.canvas = newCanvas(tab, c.timeout)
	chromedp.ListenTarget(tabCtx, tab.onEvent)

	setupCtx, setupCancel := context.WithTimeout(tabCtx, c.timeout)
	defer setupCancel()
	go func() {
		select {
		case <-ctx.Done():
			setupCancel()
		case <-setupCtx.Done():
		}
	}()

	bridge := jsInstallBridge(bindingName)
	err := chromedp.Run(setupCtx,
		page.Enable(),
		runtime.Enable(),
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(bridge).Do(ctx)
			return err
		}),
		chromedp.Evaluate(bridge, nil),
	)
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("cdpchart: prepare tab: %w", err)
	}

	c.mu.Lock()
	c.tabs[id] = tab
	c.mu.Unlock()
	tab.release = func() {
		c.mu.Lock()
		delete(c.tabs, id)
		c.mu.Unlock()
	}
	slog.Info("Attached to chart tab", "target_id", id, "url", url)
	return tab, nil
}

func (c *Client) Close() {
	c.mu.Lock()
	tabs := make([]*Tab, 0, len(c.tabs))
	for _, t := range c.tabs {
		tabs = append(tabs, t)
	}
	cancel := c.allocCancel
	c.allocCtx, c.allocCancel = nil, nil
	c.mu.Unlock()
	for _, t := range tabs {
		t.Close()
	}
	if cancel != nil {
		cancel()
	}
}

// InputEvent is a pointer or key event forwarded from the chart page.
// Type is one of click, mousedown, mousemove, mouseup, mouseleave, keydown
// or ready.
type InputEvent struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Key  string  `json:"key,omitempty"`
}

// Tab is one attached chart page.
type Tab struct {
	ID  target.ID
	URL string

	ctx     context.Context
	cancel  context.CancelFunc
	canvas  *Canvas
	inputs  chan InputEvent
	release func()

	closeOnce sync.Once
}

// Canvas returns the tab's rendering backend.
func (t *Tab) Canvas() *Canvas { return t.canvas }

// Inputs delivers forwarded page input. The channel closes with the tab.
func (t *Tab) Inputs() <-chan InputEvent { return t.inputs }

func (t *Tab) eval(ctx context.Context, js string) (string, error) {
	var out string
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()
	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, &out)); err != nil {
		return "", err
	}
	return out, nil
}

// onEvent runs on the CDP read loop and must not block.
func (t *Tab) onEvent(ev any) {
	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		if e.Name != bindingName {
			return
		}
		var in InputEvent
		if err := json.Unmarshal([]byte(e.Payload), &in); err != nil {
			slog.Debug("cdpchart: malformed input payload", "error", err)
			return
		}
		if in.Type == "ready" {
			t.canvas.MarkReady()
		}
		t.deliver(in)
	case *runtime.EventExecutionContextsCleared:
		t.canvas.markGone()
	case *page.EventFrameNavigated:
		if e.Frame != nil && e.Frame.ParentID == "" {
			t.canvas.markGone()
		}
	}
}

func (t *Tab) deliver(in InputEvent) {
	defer func() { _ = recover() }() // inputs closed concurrently
	select {
	case t.inputs <- in:
	default:
		if in.Type != "mousemove" {
			slog.Warn("cdpchart: input queue full, dropping event", "type", in.Type)
		}
	}
}

func (t *Tab) Close() {
	t.closeOnce.Do(func() {
		t.canvas.markGone()
		t.cancel()
		if t.release != nil {
			t.release()
		}
		close(t.inputs)
	})
}
