package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqlchat/internal/graphql"
)

func TestLoginReturnsTokenAndUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var body loginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body.Username)
		assert.Equal(t, "pw", body.Password)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"token":"tok","user":{"id":"u1","username":"alice","displayName":"Alice"}}`)
	}))
	defer server.Close()

	res, err := NewIdentity(server.URL+"/").Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", res.Token)
	assert.Equal(t, "u1", res.User.ID)
	assert.Equal(t, "Alice", res.User.Name())
}

func TestLoginWithoutTokenIsInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"user":{"id":"u1","username":"alice"}}`)
	}))
	defer server.Close()

	_, err := NewIdentity(server.URL).Login(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestAuthErrorMessages(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"message field", "application/json", `{"message":"Invalid credentials"}`, "Invalid credentials"},
		{"error field", "application/json", `{"error":"User exists"}`, "User exists"},
		{"json without text", "application/json", `{"code":17}`, "Authentication failed"},
		{"plain text", "text/plain", "locked out\n", "locked out"},
		{"empty", "", "", "Authentication failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.contentType != "" {
					w.Header().Set("Content-Type", tc.contentType)
				}
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer server.Close()

			_, err := NewIdentity(server.URL).Login(context.Background(), "alice", "bad")
			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, http.StatusUnauthorized, authErr.Status)
			assert.Equal(t, tc.want, authErr.Error())
		})
	}
}

func TestRegisterAcceptsAny2xx(t *testing.T) {
	var got registerRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/register", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "created")
	}))
	defer server.Close()

	err := NewIdentity(server.URL).Register(context.Background(), "bob", "pw", "  Bob  ")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)
	assert.Equal(t, "Bob", got.DisplayName)
}

func TestIdentityNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewIdentity(url).Login(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, ErrNetwork)
}

// gqlHandler answers GraphQL POSTs by operation name.
func gqlHandler(t *testing.T, answers map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query         string         `json:"query"`
			Variables     map[string]any `json:"variables"`
			OperationName string         `json:"operationName"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		body, ok := answers[req.OperationName]
		if !assert.True(t, ok, "unexpected operation %q", req.OperationName) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func newMessaging(url string) *Messaging {
	return NewMessaging(graphql.NewClient(url, "", func() string { return "tok" }))
}

func TestMessagesByRoomDecodesTimestamps(t *testing.T) {
	server := httptest.NewServer(gqlHandler(t, map[string]string{
		"GetMessages": `{"data":{"messagesByRoom":[
			{"id":"m1","content":"hi","timestamp":"1700000000000","sender":{"id":"u1","username":"alice","displayName":"Alice"}},
			{"id":"m2","content":"yo","timestamp":1700000060000,"sender":{"id":"u2","username":"bob","displayName":""}},
			{"id":"m3","content":"hey","timestamp":"2024-05-01T10:00:00Z","sender":{"id":"u1","username":"alice"}},
			{"id":"m4","content":"?","timestamp":null,"sender":{"id":"u2","username":"bob"}}
		]}}`,
	}))
	defer server.Close()

	msgs, err := newMessaging(server.URL).MessagesByRoom(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, time.UnixMilli(1700000000000), msgs[0].Timestamp)
	assert.Equal(t, time.UnixMilli(1700000060000), msgs[1].Timestamp)
	assert.Equal(t, "bob", msgs[1].Sender.Name())
	assert.True(t, msgs[2].Timestamp.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	assert.True(t, msgs[3].Timestamp.IsZero())
}

func TestMessagesByRoomRejectsMessageWithoutSender(t *testing.T) {
	server := httptest.NewServer(gqlHandler(t, map[string]string{
		"GetMessages": `{"data":{"messagesByRoom":[{"id":"m1","content":"hi","timestamp":"1","sender":null}]}}`,
	}))
	defer server.Close()

	_, err := newMessaging(server.URL).MessagesByRoom(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestWireTimeRejectsGarbage(t *testing.T) {
	var ts wireTime
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	require.NoError(t, json.Unmarshal([]byte(`""`), &ts))
	assert.True(t, time.Time(ts).IsZero())
}

func TestSendMessageReturnsConfirmedMessage(t *testing.T) {
	var vars map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables map[string]any `json:"variables"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vars = req.Variables
		_, _ = io.WriteString(w, `{"data":{"sendMessage":{"id":"m9","content":"hi","timestamp":"1700000000000","sender":{"id":"u1","username":"alice"}}}}`)
	}))
	defer server.Close()

	msg, err := newMessaging(server.URL).SendMessage(context.Background(), "u1", "r1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "m9", msg.ID)
	assert.Equal(t, map[string]any{"senderId": "u1", "roomId": "r1", "content": "hi"}, vars)
}

func TestSendMessageWithoutResult(t *testing.T) {
	server := httptest.NewServer(gqlHandler(t, map[string]string{
		"SendMessage": `{"data":{"sendMessage":null}}`,
	}))
	defer server.Close()

	_, err := newMessaging(server.URL).SendMessage(context.Background(), "u1", "r1", "hi")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestRoomsAndCreateRoom(t *testing.T) {
	server := httptest.NewServer(gqlHandler(t, map[string]string{
		"GetRooms":   `{"data":{"rooms":[{"id":"r1","name":"general"},{"id":"r2","name":"random"}]}}`,
		"CreateRoom": `{"data":{"createRoom":{"id":"r3","name":"ops"}}}`,
		"GetUsers":   `{"data":{"users":[{"id":"u1","username":"alice","displayName":"Alice"}]}}`,
	}))
	defer server.Close()

	m := newMessaging(server.URL)
	rooms, err := m.Rooms(context.Background())
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
	assert.Equal(t, "general", rooms[0].Name)

	room, err := m.CreateRoom(context.Background(), "ops")
	require.NoError(t, err)
	assert.Equal(t, "r3", room.ID)

	users, err := m.Users(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
}

func TestGraphQLErrorsSurface(t *testing.T) {
	server := httptest.NewServer(gqlHandler(t, map[string]string{
		"CreateRoom": `{"data":null,"errors":[{"message":"name taken"}]}`,
	}))
	defer server.Close()

	_, err := newMessaging(server.URL).CreateRoom(context.Background(), "general")
	var respErr *graphql.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "name taken", respErr.Errors[0].Message)
}

func TestConcurrentRoomsShareOneRequest(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		_, _ = io.WriteString(w, `{"data":{"rooms":[{"id":"r1","name":"general"}]}}`)
	}))
	defer server.Close()

	m := newMessaging(server.URL)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rooms, err := m.Rooms(context.Background())
			assert.NoError(t, err)
			assert.Len(t, rooms, 1)
		}()
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUsersAreNotSharedAcrossCredentials(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		name := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		_, _ = io.WriteString(w, `{"data":{"users":[{"id":"`+name+`","username":"`+name+`"}]}}`)
	}))
	defer server.Close()

	m := newMessaging(server.URL)
	got := make([]string, 2)
	var wg sync.WaitGroup
	for i, token := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			users, err := m.Users(graphql.WithToken(context.Background(), token))
			if assert.NoError(t, err) && assert.Len(t, users, 1) {
				got[i] = users[0].Username
			}
		}(i, token)
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, []string{"alice", "bob"}, got)
}

func TestSubscribeMessagesDropsInvalidPayloads(t *testing.T) {
	upgrader := websocket.Upgrader{Subprotocols: []string{graphql.Subprotocol}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg map[string]any
		_ = conn.ReadJSON(&msg)
		_ = conn.WriteJSON(map[string]any{"type": "connection_ack"})
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		id, _ := msg["id"].(string)
		send := func(data string) {
			_ = conn.WriteJSON(map[string]any{"id": id, "type": "next", "payload": json.RawMessage(`{"data":` + data + `}`)})
		}
		send(`{"messageAdded":{"id":"","content":"no id","sender":{"id":"u1"}}}`)
		send(`{"messageAdded":{"id":"m1","content":"hi","timestamp":"1700000000000","sender":{"id":"u1","username":"alice"}}}`)
		send(`{"other":true}`)
		send(`{"messageAdded":{"id":"m2","content":"again","timestamp":"1700000001000","sender":{"id":"u2","username":"bob"}}}`)
		_ = conn.WriteJSON(map[string]any{"id": id, "type": "complete"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ws := "ws" + strings.TrimPrefix(server.URL, "http")
	m := NewMessaging(graphql.NewClient(server.URL, ws, nil))
	feed, err := m.SubscribeMessages(context.Background(), "r1")
	require.NoError(t, err)
	defer feed.Close()

	var ids []string
	for msg := range feed.Events() {
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, []string{"m1", "m2"}, ids)
	assert.True(t, errors.Is(feed.Err(), graphql.ErrCompleted))
}
