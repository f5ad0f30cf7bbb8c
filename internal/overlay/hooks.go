package overlay

// RenderPass describes a redraw about to happen.
type RenderPass struct {
	Symbol string
	// Full is true for clear-and-rebuild passes, false for incremental ones.
	Full bool
}

// Hooks is an ordered set of extension points around rendering. Hooks run in
// registration order on the session goroutine and must not call back into
// the session.
type Hooks struct {
	beforeRender      []func(RenderPass)
	afterApply        []func(RenderPass, PrimitiveSet)
	onIndicatorToggle []func(name string, enabled bool)
}

func (h *Hooks) BeforeRender(fn func(RenderPass)) {
	h.beforeRender = append(h.beforeRender, fn)
}

// AfterAnnotationApply runs after store-backed primitives were written to
// the backend map and before the backend is flushed. Hooks may add
// primitives of their own.
func (h *Hooks) AfterAnnotationApply(fn func(RenderPass, PrimitiveSet)) {
	h.afterApply = append(h.afterApply, fn)
}

func (h *Hooks) OnIndicatorToggle(fn func(name string, enabled bool)) {
	h.onIndicatorToggle = append(h.onIndicatorToggle, fn)
}

func (h *Hooks) runBeforeRender(p RenderPass) {
	if h == nil {
		return
	}
	for _, fn := range h.beforeRender {
		fn(p)
	}
}

func (h *Hooks) runAfterApply(p RenderPass, set PrimitiveSet) {
	if h == nil {
		return
	}
	for _, fn := range h.afterApply {
		fn(p, set)
	}
}

func (h *Hooks) runIndicatorToggle(name string, enabled bool) {
	if h == nil {
		return
	}
	for _, fn := range h.onIndicatorToggle {
		fn(name, enabled)
	}
}
