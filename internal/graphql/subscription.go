package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Subprotocol is the graphql-ws protocol identifier.
const Subprotocol = "graphql-transport-ws"

const (
	writeWait  = 10 * time.Second
	ackWait    = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxPayload = 1 << 20
)

// Message types of the graphql-ws protocol.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

var (
	// ErrConnectionRejected is returned when the server refuses connection_init.
	ErrConnectionRejected = errors.New("graphql: subscription connection rejected")
	// ErrCompleted is reported by Err when the server ended the stream normally.
	ErrCompleted = errors.New("graphql: subscription completed")
)

type envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Subscription is a live stream of results for one subscribe operation.
// Events is closed when the stream ends; Err then explains why. Close is
// the cancellation handle and is safe to call more than once.
type Subscription struct {
	id      string
	conn    *websocket.Conn
	events  chan json.RawMessage
	done    chan struct{}
	writeMu sync.Mutex
	once    sync.Once
	mu      sync.Mutex
	err     error
}

// Subscribe dials the subscription endpoint, completes the connection
// handshake and starts op. Cancelling ctx closes the subscription.
func (c *Client) Subscribe(ctx context.Context, op Operation) (*Subscription, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{Subprotocol},
		HandshakeTimeout: ackWait,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, _, err := dialer.DialContext(ctx, c.subscriptionURL, nil)
	if err != nil {
		return nil, fmt.Errorf("graphql: dial subscription: %w", err)
	}
	conn.SetReadLimit(maxPayload)

	if err := handshake(conn, c.Bearer(ctx)); err != nil {
		_ = conn.Close()
		return nil, err
	}

	payload, err := json.Marshal(request{Query: op.Query, Variables: op.Variables, OperationName: op.Name})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	sub := &Subscription{
		id:     uuid.NewString(),
		conn:   conn,
		events: make(chan json.RawMessage, 16),
		done:   make(chan struct{}),
	}
	if err := sub.write(envelope{ID: sub.id, Type: msgSubscribe, Payload: payload}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("graphql: subscribe: %w", err)
	}

	go sub.readPump()
	go sub.keepAlive()
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func handshake(conn *websocket.Conn, token string) error {
	initPayload := map[string]string{}
	if token != "" {
		initPayload["authorization"] = "Bearer " + token
	}
	raw, err := json.Marshal(initPayload)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(envelope{Type: msgConnectionInit, Payload: raw}); err != nil {
		return fmt.Errorf("graphql: connection init: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(ackWait))
	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("%w: %s", ErrConnectionRejected, closeErr.Text)
			}
			return fmt.Errorf("graphql: awaiting ack: %w", err)
		}
		switch msg.Type {
		case msgConnectionAck:
			_ = conn.SetReadDeadline(time.Time{})
			return nil
		case msgPing:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(envelope{Type: msgPong}); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unexpected %q before ack", ErrConnectionRejected, msg.Type)
		}
	}
}

// Events delivers the data object of every result in arrival order.
func (s *Subscription) Events() <-chan json.RawMessage {
	return s.events
}

// Err reports why the stream ended. It is nil while the stream is open and
// after Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the operation and closes the socket.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.write(envelope{ID: s.id, Type: msgComplete})
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}

func (s *Subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	if s.err == nil && !s.closed() {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Subscription) write(msg envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

func (s *Subscription) readPump() {
	defer func() {
		close(s.events)
		s.Close()
	}()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg envelope
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.fail(fmt.Errorf("graphql: subscription read: %w", err))
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case msgPing:
			if err := s.write(envelope{Type: msgPong}); err != nil {
				s.fail(err)
				return
			}
		case msgNext:
			if msg.ID != s.id {
				continue
			}
			var result response
			if err := json.Unmarshal(msg.Payload, &result); err != nil {
				s.fail(fmt.Errorf("graphql: decode result: %w", err))
				return
			}
			if len(result.Errors) > 0 {
				s.fail(&ResponseError{Errors: result.Errors})
				return
			}
			select {
			case s.events <- result.Data:
			case <-s.done:
				return
			}
		case msgError:
			if msg.ID != s.id {
				continue
			}
			var entries []ErrorEntry
			if err := json.Unmarshal(msg.Payload, &entries); err != nil {
				entries = []ErrorEntry{{Message: string(msg.Payload)}}
			}
			s.fail(&ResponseError{Errors: entries})
			return
		case msgComplete:
			if msg.ID == s.id {
				s.fail(ErrCompleted)
				return
			}
		}
	}
}

func (s *Subscription) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
