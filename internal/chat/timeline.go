package chat

import (
	"errors"
	"strings"
)

var (
	// ErrSendPending is returned by BeginSend while an earlier send is unresolved.
	ErrSendPending = errors.New("a message is already being sent")
	// ErrEmptyMessage is returned by BeginSend for blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoRoom is returned by BeginSend when no room is open.
	ErrNoRoom = errors.New("no room is open")
)

// Ticket identifies one activation of a room. Results of fetches, sends and
// subscription deliveries carry the ticket they were issued under; results
// whose ticket is no longer current are discarded.
type Ticket struct {
	Room string
	Gen  uint64
}

// Fetch identifies one full-list request issued under a ticket. Seq grows
// with every request of the same ticket.
type Fetch struct {
	Ticket
	Seq uint64
}

// Send describes an accepted send request.
type Send struct {
	Ticket  Ticket
	Content string
}

// Timeline merges the initial load, live feed, optimistic sends and resyncs
// of the active room into one list that is unique by message id.
//
// Timeline is not safe for concurrent use; it is owned by the UI event loop.
type Timeline struct {
	ticket   Ticket
	open     bool
	messages []Message
	index    map[string]struct{}
	loading  bool
	loadErr  error
	pending  *Send
	issued   uint64
	applied  uint64
}

func NewTimeline() *Timeline {
	return &Timeline{index: make(map[string]struct{})}
}

// Open activates roomID, discarding the previous room's list and
// invalidating every ticket issued before. It returns the initial fetch.
func (t *Timeline) Open(roomID string) Fetch {
	t.reset()
	t.open = true
	t.ticket = Ticket{Room: roomID, Gen: t.ticket.Gen + 1}
	return t.nextFetch()
}

// Close deactivates the current room (room switch or logout).
func (t *Timeline) Close() {
	t.reset()
	t.open = false
	t.ticket = Ticket{Gen: t.ticket.Gen + 1}
}

func (t *Timeline) reset() {
	t.messages = nil
	t.index = make(map[string]struct{})
	t.loading = false
	t.loadErr = nil
	t.pending = nil
	t.issued = 0
	t.applied = 0
}

func (t *Timeline) nextFetch() Fetch {
	t.issued++
	t.loading = true
	return Fetch{Ticket: t.ticket, Seq: t.issued}
}

// Current returns the active ticket and whether a room is open.
func (t *Timeline) Current() (Ticket, bool) {
	return t.ticket, t.open
}

// IsCurrent reports whether results issued under ticket may still be applied.
func (t *Timeline) IsCurrent(ticket Ticket) bool {
	return t.open && ticket == t.ticket
}

// Resync marks a fresh full fetch as in flight and returns it.
func (t *Timeline) Resync() (Fetch, bool) {
	if !t.open {
		return Fetch{}, false
	}
	return t.nextFetch(), true
}

// Replace installs a full server snapshot. Entries appended before the call
// are dropped unless the snapshot contains them. A snapshot older than one
// already installed is discarded.
func (t *Timeline) Replace(fetch Fetch, snapshot []Message) bool {
	if !t.IsCurrent(fetch.Ticket) || fetch.Seq <= t.applied {
		return false
	}
	t.applied = fetch.Seq
	t.messages = make([]Message, 0, len(snapshot))
	t.index = make(map[string]struct{}, len(snapshot))
	for _, msg := range snapshot {
		t.appendUnique(msg)
	}
	t.loading = t.applied < t.issued
	t.loadErr = nil
	return true
}

// FailLoad records a failed fetch and keeps the current list untouched.
// Only the newest fetch can report a failure; older ones are superseded.
func (t *Timeline) FailLoad(fetch Fetch, err error) bool {
	if !t.IsCurrent(fetch.Ticket) || fetch.Seq != t.issued || fetch.Seq <= t.applied {
		return false
	}
	t.loading = false
	t.loadErr = err
	return true
}

// Deliver applies one live-feed message. It reports whether the message was appended.
func (t *Timeline) Deliver(ticket Ticket, msg Message) bool {
	if !t.IsCurrent(ticket) {
		return false
	}
	return t.appendUnique(msg)
}

// BeginSend validates the composer text and reserves the pending-send slot.
func (t *Timeline) BeginSend(text string) (Send, error) {
	if !t.open {
		return Send{}, ErrNoRoom
	}
	if t.pending != nil {
		return Send{}, ErrSendPending
	}
	content := strings.TrimSpace(text)
	if content == "" {
		return Send{}, ErrEmptyMessage
	}
	send := Send{Ticket: t.ticket, Content: content}
	t.pending = &send
	return send, nil
}

// ConfirmSend appends the server-confirmed message using the live-feed
// duplicate check and frees the pending slot.
func (t *Timeline) ConfirmSend(ticket Ticket, msg Message) bool {
	if !t.IsCurrent(ticket) {
		return false
	}
	t.pending = nil
	return t.appendUnique(msg)
}

// FailSend frees the pending slot and returns the text to put back into the
// composer. The list is left unchanged.
func (t *Timeline) FailSend(ticket Ticket) (string, bool) {
	if !t.IsCurrent(ticket) || t.pending == nil {
		return "", false
	}
	content := t.pending.Content
	t.pending = nil
	return content, true
}

func (t *Timeline) appendUnique(msg Message) bool {
	if msg.ID == "" {
		return false
	}
	if _, exists := t.index[msg.ID]; exists {
		return false
	}
	t.index[msg.ID] = struct{}{}
	t.messages = append(t.messages, msg)
	return true
}

// Messages returns a copy of the display list in arrival order.
func (t *Timeline) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Timeline) Len() int { return len(t.messages) }

func (t *Timeline) Loading() bool { return t.loading }

func (t *Timeline) LoadErr() error { return t.loadErr }

func (t *Timeline) Sending() bool { return t.pending != nil }
