package overlay

import "math"

// ModeKind is the state of the interaction machine.
type ModeKind string

const (
	ModeIdle             ModeKind = "idle"
	ModeDrawing          ModeKind = "drawing"
	ModePlacingSignal    ModeKind = "placing_signal"
	ModePlacingNote      ModeKind = "placing_note"
	ModeAwaitingNoteForm ModeKind = "awaiting_note_form"
	ModeTpSlWizard       ModeKind = "tpsl_wizard"
	ModePlacingShape     ModeKind = "placing_shape"
)

// Wizard steps of the TP/SL flow.
const (
	StepEntry      = 0
	StepStopLoss   = 1
	StepTakeProfit = 2
)

// Degenerate lines are rejected when both spans are below these limits.
const (
	minLineMillis = 1000.0
	minLinePrice  = 0.01
)

// LineSettings are applied to the next trend line drawn.
type LineSettings struct {
	Kind  LineKind  `json:"type,omitempty"`
	Color string    `json:"color,omitempty"`
	Width float64   `json:"width,omitempty"`
	Style LineStyle `json:"style,omitempty"`
}

// ShapeSettings are applied to the next shape placed.
type ShapeSettings struct {
	Kind    ShapeKind `json:"type"`
	Color   string    `json:"color,omitempty"`
	Size    float64   `json:"size,omitempty"`
	Opacity float64   `json:"opacity,omitempty"`
	Label   string    `json:"label,omitempty"`
}

// Mode is the current interaction state with the data of its variant.
type Mode struct {
	Kind ModeKind `json:"kind"`

	// drawing
	Line  LineSettings `json:"line,omitzero"`
	Start *Point       `json:"start,omitempty"`

	// placing_signal
	Signal SignalKind `json:"signal,omitempty"`
	Label  string     `json:"label,omitempty"`

	// awaiting_note_form
	Pending *Point `json:"pending,omitempty"`

	// tpsl_wizard
	TpSl     TpSlKind `json:"tpsl,omitempty"`
	Step     int      `json:"step,omitempty"`
	Entry    *Point   `json:"entry,omitempty"`
	StopLoss *Point   `json:"stop_loss,omitempty"`

	// placing_shape
	Shape ShapeSettings `json:"shape,omitzero"`
}

func idleMode() Mode { return Mode{Kind: ModeIdle} }

// Placing reports whether a click will create something.
func (m Mode) Placing() bool { return m.Kind != ModeIdle }

// Cursor is the pointer shape of the mode when nothing is hovered.
func (m Mode) Cursor() Cursor {
	if m.Kind == ModeIdle {
		return CursorDefault
	}
	return CursorCrosshair
}

// Prompt is the user-facing hint for the current step.
func (m Mode) Prompt() string {
	switch m.Kind {
	case ModeDrawing:
		if m.Start == nil {
			return "Click to set the line start"
		}
		return "Click to set the line end"
	case ModePlacingSignal:
		return "Click to place the " + string(m.Signal) + " signal"
	case ModePlacingNote:
		return "Click to place the note"
	case ModeAwaitingNoteForm:
		return "Enter the note details"
	case ModeTpSlWizard:
		switch m.Step {
		case StepEntry:
			return "Click to set the entry"
		case StepStopLoss:
			return "Click to set the stop loss"
		}
		return "Click to set the take profit"
	case ModePlacingShape:
		return "Click to place the " + string(m.Shape.Kind)
	}
	return ""
}

// degenerateLine reports whether a and b are too close to form a line.
func degenerateLine(a, b Point) bool {
	return math.Abs(a.X-b.X) < minLineMillis && math.Abs(a.Y-b.Y) < minLinePrice
}

// validWizardLevel checks a stop-loss (step 1) or take-profit (step 2)
// candidate against the entry. It returns the rejection message when the
// candidate lies on the wrong side.
func validWizardLevel(kind TpSlKind, step int, entry, candidate Point) (string, bool) {
	below := candidate.Y < entry.Y
	above := candidate.Y > entry.Y
	switch {
	case step == StepStopLoss && kind == TpSlBullish && !below:
		return "Stop loss must be below entry for a bullish setup", false
	case step == StepStopLoss && kind == TpSlBearish && !above:
		return "Stop loss must be above entry for a bearish setup", false
	case step == StepTakeProfit && kind == TpSlBullish && !above:
		return "Take profit must be above entry for a bullish setup", false
	case step == StepTakeProfit && kind == TpSlBearish && !below:
		return "Take profit must be below entry for a bearish setup", false
	}
	return "", true
}

func levelOrderMessage(kind TpSlKind) string {
	if kind == TpSlBearish {
		return "A bearish setup needs take profit < entry < stop loss"
	}
	return "A bullish setup needs stop loss < entry < take profit"
}
