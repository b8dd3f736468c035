package progress

// Kind classifies an inbound stage event.
type Kind string

const (
	KindProgress Kind = "progress"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// Event is one decoded message from the negotiation stream. For progress
// events StageKey is the backend node and Payload its state_update; for
// terminal events Payload is the frame payload.
type Event struct {
	Kind     Kind
	StageKey string
	Message  string
	Payload  map[string]any
}

// IsTerminal reports whether the event ends the run.
func (e Event) IsTerminal() bool {
	return e.Kind == KindComplete || e.Kind == KindError
}
