package internal

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"gqlchat/internal/api"
	"gqlchat/internal/chat"
	"gqlchat/internal/session"
)

// Authenticator is the identity service as seen by the client.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*api.LoginResult, error)
	Register(ctx context.Context, username, password, displayName string) error
}

// Feed is a live message stream for one room.
type Feed interface {
	Events() <-chan chat.Message
	Err() error
	Close()
}

// Backend is the messaging API as seen by the client.
type Backend interface {
	Users(ctx context.Context) ([]chat.User, error)
	Rooms(ctx context.Context) ([]chat.Room, error)
	CreateRoom(ctx context.Context, name string) (chat.Room, error)
	MessagesByRoom(ctx context.Context, roomID string) ([]chat.Message, error)
	SendMessage(ctx context.Context, senderID, roomID, content string) (chat.Message, error)
	SubscribeMessages(ctx context.Context, roomID string) (Feed, error)
}

// ClientDeps carries everything the TUI needs. Session must already be restored.
type ClientDeps struct {
	Session  *session.Session
	Auth     Authenticator
	Backend  Backend
	Server   string
	Username string
}

type messagingBackend struct {
	*api.Messaging
}

// NewBackend adapts the GraphQL messaging client to Backend.
func NewBackend(m *api.Messaging) Backend {
	return messagingBackend{Messaging: m}
}

func (b messagingBackend) SubscribeMessages(ctx context.Context, roomID string) (Feed, error) {
	feed, err := b.Messaging.SubscribeMessages(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return feed, nil
}

// RunClient runs the TUI until the user quits or ctx is cancelled.
func RunClient(ctx context.Context, deps ClientDeps) error {
	if deps.Session == nil || deps.Auth == nil || deps.Backend == nil {
		return errors.New("client: session, auth and backend are required")
	}
	model := NewTUIModel(ctx, deps)
	defer model.shutdown()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
