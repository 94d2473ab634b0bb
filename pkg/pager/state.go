package pager

// State is the lifecycle state of a Controller.
type State int

const (
	// StateIdle means no fetch is running and more pages may exist.
	StateIdle State = iota

	// StateFetching means a page request is in flight.
	StateFetching

	// StateErrored means the last fetch failed and Retry has not been called.
	StateErrored

	// StateExhausted means a fetch returned an empty page.
	StateExhausted
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateErrored:
		return "errored"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Status is the controller state without the item list.
type Status struct {
	Len         int
	PagesLoaded int
	HasMore     bool
	Err         error
	InFlight    bool
}

// NoItemsFound reports whether the very first page came back empty.
func (s Status) NoItemsFound() bool {
	return s.Len == 0 && !s.HasMore
}

// State derives the lifecycle state.
func (s Status) State() State {
	switch {
	case s.InFlight:
		return StateFetching
	case s.Err != nil:
		return StateErrored
	case !s.HasMore:
		return StateExhausted
	default:
		return StateIdle
	}
}

// Snapshot is a consistent copy of the controller state including items.
type Snapshot[T any] struct {
	Status
	Items []T
}
