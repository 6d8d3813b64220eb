package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"gqlchat/internal/chat"
)

// Keys under which the credential and the user record are persisted.
const (
	TokenKey = "authToken"
	UserKey  = "user"
)

// Storage is the durable key/value store the session persists into.
type Storage interface {
	GetPair(ctx context.Context, firstKey, secondKey string) (map[string]string, error)
	SetPair(ctx context.Context, firstKey, firstValue, secondKey, secondValue string) error
	Delete(ctx context.Context, keys ...string) error
}

type EventKind int

const (
	EventLoggedIn EventKind = iota + 1
	EventLoggedOut
	EventRoomSelected
	EventRoomCleared
)

func (k EventKind) String() string {
	switch k {
	case EventLoggedIn:
		return "logged-in"
	case EventLoggedOut:
		return "logged-out"
	case EventRoomSelected:
		return "room-selected"
	case EventRoomCleared:
		return "room-cleared"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event describes a session change. User is set for EventLoggedIn, Room for
// EventRoomSelected.
type Event struct {
	Kind EventKind
	User chat.User
	Room chat.Room
}

var (
	ErrMissingToken = errors.New("credential is empty")
	ErrInvalidUser  = errors.New("user record is missing id or username")
)

// Session owns who is logged in and which room is active. It is constructed
// at startup, populated by Restore or Login, and emptied by Logout.
// Transitions must come from a single goroutine; the accessors may be
// called from any goroutine.
type Session struct {
	store     Storage
	router    *Router
	mu        sync.RWMutex
	token     string
	user      *chat.User
	room      *chat.Room
	observers []func(Event)
}

func New(store Storage) *Session {
	return &Session{store: store, router: NewRouter()}
}

// Observe registers fn to be called after every successful transition.
func (s *Session) Observe(fn func(Event)) {
	s.observers = append(s.observers, fn)
}

// Restore loads a persisted session without any network call. A corrupt
// user record discards both stored entries and leaves the session logged
// out. Only storage failures are returned.
func (s *Session) Restore(ctx context.Context) error {
	values, err := s.store.GetPair(ctx, TokenKey, UserKey)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	token, rawUser := values[TokenKey], values[UserKey]
	if token == "" || rawUser == "" {
		return nil
	}
	var user chat.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil || !user.Valid() {
		log.Printf("session: discarding unreadable stored user record")
		if err := s.store.Delete(ctx, TokenKey, UserKey); err != nil {
			return fmt.Errorf("clear corrupt session: %w", err)
		}
		return nil
	}
	return s.apply(Event{Kind: EventLoggedIn, User: user}, func() {
		s.token = token
		s.user = &user
	})
}

// Login persists the credential and user record as a pair and moves to room selection.
func (s *Session) Login(ctx context.Context, token string, user chat.User) error {
	if token == "" {
		return ErrMissingToken
	}
	if !user.Valid() {
		return ErrInvalidUser
	}
	if _, err := transition(s.router.View(), EventLoggedIn); err != nil {
		return err
	}
	encoded, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.store.SetPair(ctx, TokenKey, token, UserKey, string(encoded)); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return s.apply(Event{Kind: EventLoggedIn, User: user}, func() {
		s.token = token
		s.user = &user
	})
}

// Logout clears durable storage and memory. The in-memory session is
// cleared even when storage fails.
func (s *Session) Logout(ctx context.Context) error {
	storeErr := s.store.Delete(ctx, TokenKey, UserKey)
	_ = s.apply(Event{Kind: EventLoggedOut}, func() {
		s.token = ""
		s.user = nil
		s.room = nil
	})
	if storeErr != nil {
		return fmt.Errorf("clear session: %w", storeErr)
	}
	return nil
}

// SelectRoom enters room. The room is kept in memory only.
func (s *Session) SelectRoom(room chat.Room) error {
	return s.apply(Event{Kind: EventRoomSelected, Room: room}, func() {
		s.room = &room
	})
}

// ClearRoom returns to room selection.
func (s *Session) ClearRoom() error {
	return s.apply(Event{Kind: EventRoomCleared}, func() {
		s.room = nil
	})
}

func (s *Session) apply(event Event, mutate func()) error {
	if _, err := s.router.Handle(event); err != nil {
		return err
	}
	s.mu.Lock()
	mutate()
	s.mu.Unlock()
	for _, fn := range s.observers {
		fn(event)
	}
	return nil
}

func (s *Session) View() View { return s.router.View() }

// Token returns the bearer credential, or "" when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) User() (chat.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return chat.User{}, false
	}
	return *s.user, true
}

func (s *Session) Room() (chat.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.room == nil {
		return chat.Room{}, false
	}
	return *s.room, true
}
