package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"gqlchat/internal/chat"
	"gqlchat/internal/graphql"
)

// ErrInvalidPayload is returned when a response does not match its contract.
var ErrInvalidPayload = errors.New("invalid payload")

// Messaging is the typed client for the chat GraphQL API.
type Messaging struct {
	gql     *graphql.Client
	sfGroup singleflight.Group
}

func NewMessaging(gql *graphql.Client) *Messaging {
	return &Messaging{gql: gql}
}

// flightKey scopes a shared call to the credential it is made with.
func (m *Messaging) flightKey(ctx context.Context, name string) string {
	return name + ":" + m.gql.Bearer(ctx)
}

type wireUser struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

func (u wireUser) toUser() chat.User {
	return chat.User{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
}

type wireMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp wireTime  `json:"timestamp"`
	Sender    *wireUser `json:"sender"`
}

func (m wireMessage) toMessage() (chat.Message, error) {
	if m.ID == "" {
		return chat.Message{}, fmt.Errorf("%w: message without id", ErrInvalidPayload)
	}
	if m.Sender == nil || m.Sender.ID == "" {
		return chat.Message{}, fmt.Errorf("%w: message %s without sender", ErrInvalidPayload, m.ID)
	}
	return chat.Message{
		ID:        m.ID,
		Content:   m.Content,
		Timestamp: time.Time(m.Timestamp),
		Sender:    m.Sender.toUser(),
	}, nil
}

// wireTime accepts RFC 3339 strings and epoch milliseconds, as a number or a string.
type wireTime time.Time

func (t *wireTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*t = wireTime(time.Time{})
		return nil
	}
	var raw string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*t = wireTime(time.Time{})
		return nil
	}
	if millis, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*t = wireTime(time.UnixMilli(millis))
		return nil
	}
	if millis, err := strconv.ParseFloat(raw, 64); err == nil {
		*t = wireTime(time.UnixMilli(int64(millis)))
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", raw, err)
	}
	*t = wireTime(parsed)
	return nil
}

func convertMessages(in []wireMessage) ([]chat.Message, error) {
	out := make([]chat.Message, 0, len(in))
	for _, m := range in {
		msg, err := m.toMessage()
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// Users lists every user. Concurrent callers share one request.
func (m *Messaging) Users(ctx context.Context) ([]chat.User, error) {
	v, err, _ := m.sfGroup.Do(m.flightKey(ctx, "users"), func() (interface{}, error) {
		var resp struct {
			Users []wireUser `json:"users"`
		}
		if err := m.gql.Do(ctx, opUsers, &resp); err != nil {
			return nil, err
		}
		users := make([]chat.User, 0, len(resp.Users))
		for _, u := range resp.Users {
			users = append(users, u.toUser())
		}
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]chat.User), nil
}

// Rooms lists the available rooms. Concurrent callers share one request.
func (m *Messaging) Rooms(ctx context.Context) ([]chat.Room, error) {
	v, err, _ := m.sfGroup.Do(m.flightKey(ctx, "rooms"), func() (interface{}, error) {
		var resp struct {
			Rooms []chat.Room `json:"rooms"`
		}
		if err := m.gql.Do(ctx, opRooms, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Rooms {
			if r.ID == "" {
				return nil, fmt.Errorf("%w: room without id", ErrInvalidPayload)
			}
		}
		return resp.Rooms, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]chat.Room), nil
}

func (m *Messaging) CreateRoom(ctx context.Context, name string) (chat.Room, error) {
	var resp struct {
		CreateRoom *chat.Room `json:"createRoom"`
	}
	if err := m.gql.Do(ctx, opCreateRoom(name), &resp); err != nil {
		return chat.Room{}, err
	}
	if resp.CreateRoom == nil || resp.CreateRoom.ID == "" {
		return chat.Room{}, fmt.Errorf("%w: createRoom returned no room", ErrInvalidPayload)
	}
	return *resp.CreateRoom, nil
}

// MessagesByRoom returns the room's messages in server order.
func (m *Messaging) MessagesByRoom(ctx context.Context, roomID string) ([]chat.Message, error) {
	var resp struct {
		MessagesByRoom []wireMessage `json:"messagesByRoom"`
	}
	if err := m.gql.Do(ctx, opMessagesByRoom(roomID), &resp); err != nil {
		return nil, err
	}
	return convertMessages(resp.MessagesByRoom)
}

// SendMessage posts content to roomID and returns the server-confirmed message.
func (m *Messaging) SendMessage(ctx context.Context, senderID, roomID, content string) (chat.Message, error) {
	var resp struct {
		SendMessage *wireMessage `json:"sendMessage"`
	}
	if err := m.gql.Do(ctx, opSendMessage(senderID, roomID, content), &resp); err != nil {
		return chat.Message{}, err
	}
	if resp.SendMessage == nil {
		return chat.Message{}, fmt.Errorf("%w: sendMessage returned no message", ErrInvalidPayload)
	}
	return resp.SendMessage.toMessage()
}

// MessageFeed is the live stream of messages created in one room.
type MessageFeed struct {
	sub    *graphql.Subscription
	events chan chat.Message
	done   chan struct{}
	once   sync.Once
}

// SubscribeMessages opens the messageAdded stream for roomID. Cancelling ctx
// or calling Close ends it.
func (m *Messaging) SubscribeMessages(ctx context.Context, roomID string) (*MessageFeed, error) {
	sub, err := m.gql.Subscribe(ctx, opMessageAdded(roomID))
	if err != nil {
		return nil, err
	}
	feed := &MessageFeed{sub: sub, events: make(chan chat.Message, 16), done: make(chan struct{})}
	go feed.pump()
	return feed, nil
}

func (f *MessageFeed) pump() {
	defer close(f.events)
	for data := range f.sub.Events() {
		var payload struct {
			MessageAdded *wireMessage `json:"messageAdded"`
		}
		if err := json.Unmarshal(data, &payload); err != nil || payload.MessageAdded == nil {
			log.Printf("api: dropping undecodable messageAdded payload: %v", err)
			continue
		}
		msg, err := payload.MessageAdded.toMessage()
		if err != nil {
			log.Printf("api: dropping messageAdded: %v", err)
			continue
		}
		select {
		case f.events <- msg:
		case <-f.done:
			return
		}
	}
}

// Events delivers messages in arrival order and is closed when the stream ends.
func (f *MessageFeed) Events() <-chan chat.Message { return f.events }

// Err reports why the stream ended; nil after Close.
func (f *MessageFeed) Err() error { return f.sub.Err() }

func (f *MessageFeed) Close() {
	f.once.Do(func() { close(f.done) })
	f.sub.Close()
}
