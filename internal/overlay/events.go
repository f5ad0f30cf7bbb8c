package overlay

// EventType names a user-visible notification emitted by a Session.
type EventType string

const (
	EventNotice          EventType = "notice"
	EventNoteForm        EventType = "note_form"
	EventNotePopup       EventType = "note_popup"
	EventNotePopupHidden EventType = "note_popup_hidden"
	EventSelection       EventType = "selection"
	EventMode            EventType = "mode"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is delivered to the session's EventSink. Only the fields relevant to
// Type are set.
type Event struct {
	Type      EventType   `json:"type"`
	Level     Level       `json:"level,omitempty"`
	Message   string      `json:"message,omitempty"`
	Note      *Note       `json:"note,omitempty"`
	Pixel     *PixelPoint `json:"pixel,omitempty"`
	Point     *Point      `json:"point,omitempty"`
	Mode      *Mode       `json:"mode,omitempty"`
	Selection *Selection  `json:"selection,omitempty"`
}

// EventSink receives session events. It is called with the session lock
// held and must not call back into the session.
type EventSink func(Event)

func notice(level Level, msg string) Event {
	return Event{Type: EventNotice, Level: level, Message: msg}
}
