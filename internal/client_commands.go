package internal

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gqlchat/internal/api"
	"gqlchat/internal/chat"
	"gqlchat/internal/graphql"
	"gqlchat/internal/session"
)

const (
	networkErrorText = "Network error. Please try again."
	initialRetry     = time.Second
	maxRetry         = 30 * time.Second
)

type (
	loginDoneMsg struct {
		token string
		user  chat.User
		err   error
	}
	registerDoneMsg struct{ err error }
	roomsLoadedMsg  struct {
		rooms []chat.Room
		err   error
	}
	roomCreatedMsg struct {
		room chat.Room
		err  error
	}
	messagesLoadedMsg struct {
		fetch    chat.Fetch
		messages []chat.Message
		err      error
	}
	sendDoneMsg struct {
		ticket  chat.Ticket
		message chat.Message
		err     error
	}
	feedOpenedMsg struct {
		ticket chat.Ticket
		feed   Feed
		err    error
	}
	feedMsg struct {
		ticket  chat.Ticket
		message chat.Message
	}
	feedClosedMsg struct {
		ticket chat.Ticket
		err    error
	}
	resubscribeMsg struct{ ticket chat.Ticket }
)

// loginCmd authenticates and, when the response lacks a usable user record,
// recovers the identity from the credential.
func (model *TUIModel) loginCmd(username, password string) tea.Cmd {
	ctx, auth, backend := model.ctx, model.auth, model.backend
	return func() tea.Msg {
		res, err := auth.Login(ctx, username, password)
		if err != nil {
			return loginDoneMsg{err: err}
		}
		user := res.User
		if !user.Valid() {
			user, err = session.RecoverIdentity(graphql.WithToken(ctx, res.Token), res.Token, backend)
			if err != nil {
				return loginDoneMsg{err: err}
			}
		}
		return loginDoneMsg{token: res.Token, user: user}
	}
}

func (model *TUIModel) registerCmd(username, password, displayName string) tea.Cmd {
	ctx, auth := model.ctx, model.auth
	return func() tea.Msg {
		return registerDoneMsg{err: auth.Register(ctx, username, password, displayName)}
	}
}

func (model *TUIModel) roomsCmd() tea.Cmd {
	ctx, backend := model.ctx, model.backend
	return func() tea.Msg {
		rooms, err := backend.Rooms(ctx)
		return roomsLoadedMsg{rooms: rooms, err: err}
	}
}

func (model *TUIModel) createRoomCmd(name string) tea.Cmd {
	ctx, backend := model.ctx, model.backend
	return func() tea.Msg {
		room, err := backend.CreateRoom(ctx, name)
		return roomCreatedMsg{room: room, err: err}
	}
}

func (model *TUIModel) loadMessagesCmd(fetch chat.Fetch) tea.Cmd {
	ctx, backend := model.ctx, model.backend
	return func() tea.Msg {
		msgs, err := backend.MessagesByRoom(ctx, fetch.Room)
		return messagesLoadedMsg{fetch: fetch, messages: msgs, err: err}
	}
}

func (model *TUIModel) sendCmd(send chat.Send, senderID string) tea.Cmd {
	ctx, backend := model.ctx, model.backend
	return func() tea.Msg {
		msg, err := backend.SendMessage(ctx, senderID, send.Ticket.Room, send.Content)
		return sendDoneMsg{ticket: send.Ticket, message: msg, err: err}
	}
}

// subscribeCmd opens the live feed for ticket. The subscription lives until
// closeFeed cancels it.
func (model *TUIModel) subscribeCmd(ticket chat.Ticket) tea.Cmd {
	if model.feedCancel != nil {
		model.feedCancel()
	}
	ctx, cancel := context.WithCancel(model.ctx)
	model.feedCancel = cancel
	backend := model.backend
	return func() tea.Msg {
		feed, err := backend.SubscribeMessages(ctx, ticket.Room)
		return feedOpenedMsg{ticket: ticket, feed: feed, err: err}
	}
}

// waitForFeedCmd reads one delivery; Update re-arms it after each message.
func waitForFeedCmd(ticket chat.Ticket, feed Feed) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-feed.Events()
		if !ok {
			return feedClosedMsg{ticket: ticket, err: feed.Err()}
		}
		return feedMsg{ticket: ticket, message: msg}
	}
}

// scheduleReconnect backs off exponentially between resubscribe attempts.
func (model *TUIModel) scheduleReconnect(ticket chat.Ticket) tea.Cmd {
	delay := model.retryDelay
	if delay < initialRetry {
		delay = initialRetry
	}
	model.retryDelay = nextRetry(delay)
	log.Printf("client: live feed for room %s down, retrying in %s", ticket.Room, delay)
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return resubscribeMsg{ticket: ticket}
	})
}

func nextRetry(delay time.Duration) time.Duration {
	delay *= 2
	if delay > maxRetry {
		return maxRetry
	}
	return delay
}

// describeError turns an error into the text shown to the user.
func describeError(err error) string {
	var (
		authErr *api.AuthError
		respErr *graphql.ResponseError
		urlErr  *url.Error
	)
	switch {
	case errors.As(err, &authErr):
		return authErr.Message
	case errors.Is(err, api.ErrNetwork), errors.As(err, &urlErr):
		return networkErrorText
	case errors.Is(err, graphql.ErrUnauthorized):
		return "Session expired. Please log in again."
	case errors.As(err, &respErr):
		return strings.TrimPrefix(respErr.Error(), "graphql: ")
	}
	return err.Error()
}
