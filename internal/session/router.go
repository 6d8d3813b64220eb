package session

import (
	"errors"
	"fmt"
)

// View is one of the three screens the client can show.
type View int

const (
	ViewUnauthenticated View = iota
	ViewRoomSelection
	ViewInRoom
)

func (v View) String() string {
	switch v {
	case ViewUnauthenticated:
		return "unauthenticated"
	case ViewRoomSelection:
		return "room-selection"
	case ViewInRoom:
		return "in-room"
	default:
		return fmt.Sprintf("view(%d)", int(v))
	}
}

// ErrInvalidTransition is returned for an event the current view does not accept.
var ErrInvalidTransition = errors.New("invalid view transition")

// Router is the view state machine. It only moves in response to session
// events and never on its own.
type Router struct {
	view View
}

func NewRouter() *Router {
	return &Router{view: ViewUnauthenticated}
}

func (r *Router) View() View {
	return r.view
}

// Handle applies a session event and returns the resulting view.
func (r *Router) Handle(event Event) (View, error) {
	next, err := transition(r.view, event.Kind)
	if err != nil {
		return r.view, err
	}
	r.view = next
	return next, nil
}

func transition(from View, kind EventKind) (View, error) {
	switch kind {
	case EventLoggedOut:
		return ViewUnauthenticated, nil
	case EventLoggedIn:
		if from == ViewUnauthenticated {
			return ViewRoomSelection, nil
		}
	case EventRoomSelected:
		if from == ViewRoomSelection {
			return ViewInRoom, nil
		}
	case EventRoomCleared:
		if from == ViewInRoom {
			return ViewRoomSelection, nil
		}
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, kind, from)
}
