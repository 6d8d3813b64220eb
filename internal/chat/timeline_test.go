package chat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = User{ID: "u1", Username: "alice"}
	bob   = User{ID: "u2", Username: "bob", DisplayName: "Bobby"}
)

func msg(id, content string, sender User) Message {
	return Message{ID: id, Content: content, Sender: sender, Timestamp: time.Unix(1700000000, 0)}
}

func ids(messages []Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

func TestReplaceDiscardsPreviousEntries(t *testing.T) {
	tl := NewTimeline()
	load := tl.Open("general")
	assert.True(t, tl.Loading())

	require.True(t, tl.Replace(load, []Message{msg("1", "a", alice), msg("2", "b", bob)}))
	assert.False(t, tl.Loading())
	require.True(t, tl.Deliver(load.Ticket, msg("3", "c", bob)))

	resync, ok := tl.Resync()
	require.True(t, ok)
	require.True(t, tl.Replace(resync, []Message{msg("2", "b", bob), msg("4", "d", alice)}))
	assert.Equal(t, []string{"2", "4"}, ids(tl.Messages()))
}

func TestOlderSnapshotDoesNotReplaceNewer(t *testing.T) {
	tl := NewTimeline()
	initial := tl.Open("general")
	send, err := tl.BeginSend("hi")
	require.NoError(t, err)
	hi := msg("m1", "hi", alice)
	require.True(t, tl.ConfirmSend(send.Ticket, hi))

	resync, ok := tl.Resync()
	require.True(t, ok)
	require.True(t, tl.Replace(resync, []Message{hi}))
	assert.False(t, tl.Loading())

	assert.False(t, tl.Replace(initial, nil))
	assert.False(t, tl.FailLoad(initial, errors.New("late")))
	assert.Equal(t, []string{"m1"}, ids(tl.Messages()))
	assert.NoError(t, tl.LoadErr())
}

func TestOlderSnapshotFirstKeepsLoadingUntilNewest(t *testing.T) {
	tl := NewTimeline()
	initial := tl.Open("general")
	resync, _ := tl.Resync()

	require.True(t, tl.Replace(initial, []Message{msg("1", "a", bob)}))
	assert.True(t, tl.Loading())
	require.True(t, tl.Replace(resync, []Message{msg("1", "a", bob), msg("2", "b", bob)}))
	assert.False(t, tl.Loading())
	assert.Equal(t, []string{"1", "2"}, ids(tl.Messages()))
}

func TestFailureOfSupersededFetchIsIgnored(t *testing.T) {
	tl := NewTimeline()
	initial := tl.Open("general")
	resync, _ := tl.Resync()

	assert.False(t, tl.FailLoad(initial, errors.New("stale")))
	assert.NoError(t, tl.LoadErr())
	assert.True(t, tl.Loading())
	require.True(t, tl.FailLoad(resync, errors.New("boom")))
	assert.EqualError(t, tl.LoadErr(), "boom")
}

func TestReplaceCollapsesDuplicateIDsInSnapshot(t *testing.T) {
	tl := NewTimeline()
	load := tl.Open("general")
	tl.Replace(load, []Message{msg("1", "first", alice), msg("1", "again", alice)})
	require.Equal(t, 1, tl.Len())
	assert.Equal(t, "first", tl.Messages()[0].Content)
}

func TestIdempotentMerge(t *testing.T) {
	tl := NewTimeline()
	load := tl.Open("general")
	tl.Replace(load, nil)

	deliveries := []string{"1", "2", "1", "3", "2", "2"}
	for _, id := range deliveries {
		tl.Deliver(load.Ticket, msg(id, "x", bob))
	}
	send, err := tl.BeginSend("hello")
	require.NoError(t, err)
	assert.False(t, tl.ConfirmSend(send.Ticket, msg("3", "x", bob)))
	assert.Equal(t, []string{"1", "2", "3"}, ids(tl.Messages()))
	assert.False(t, tl.Sending())
}

func TestEchoBeforeConfirmIsNotDuplicated(t *testing.T) {
	tl := NewTimeline()
	load := tl.Open("general")
	tl.Replace(load, nil)

	send, err := tl.BeginSend("  hi  ")
	require.NoError(t, err)
	assert.Equal(t, "hi", send.Content)

	echo := msg("42", "hi", alice)
	assert.True(t, tl.Deliver(load.Ticket, echo))
	assert.False(t, tl.ConfirmSend(send.Ticket, echo))
	assert.Equal(t, []string{"42"}, ids(tl.Messages()))
}

func TestFailedSendRestoresComposerText(t *testing.T) {
	tl := NewTimeline()
	load := tl.Open("general")
	tl.Replace(load, []Message{msg("1", "a", bob)})

	send, err := tl.BeginSend("retry me")
	require.NoError(t, err)
	_, err = tl.BeginSend("second")
	assert.ErrorIs(t, err, ErrSendPending)

	text, ok := tl.FailSend(send.Ticket)
	require.True(t, ok)
	assert.Equal(t, "retry me", text)
	assert.Equal(t, []string{"1"}, ids(tl.Messages()))
	assert.False(t, tl.Sending())
}

func TestBeginSendValidation(t *testing.T) {
	tl := NewTimeline()
	_, err := tl.BeginSend("hi")
	assert.ErrorIs(t, err, ErrNoRoom)

	tl.Open("general")
	_, err = tl.BeginSend("   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestFailedLoadKeepsList(t *testing.T) {
	tl := NewTimeline()
	load := tl.Open("general")
	tl.Replace(load, []Message{msg("1", "a", bob)})

	resync, ok := tl.Resync()
	require.True(t, ok)
	assert.True(t, tl.Loading())
	require.True(t, tl.FailLoad(resync, errors.New("boom")))
	assert.EqualError(t, tl.LoadErr(), "boom")
	assert.False(t, tl.Loading())
	assert.Equal(t, []string{"1"}, ids(tl.Messages()))

	tl.Replace(resync, []Message{msg("1", "a", bob)})
	assert.NoError(t, tl.LoadErr())
}

func TestRoomIsolation(t *testing.T) {
	tl := NewTimeline()
	roomA := tl.Open("A")
	roomB := tl.Open("B")

	assert.False(t, tl.Replace(roomA, []Message{msg("a1", "from A", bob)}))
	assert.False(t, tl.Deliver(roomA.Ticket, msg("a2", "from A", bob)))
	assert.Zero(t, tl.Len())

	require.True(t, tl.Replace(roomB, []Message{msg("b1", "from B", bob)}))
	assert.Equal(t, []string{"b1"}, ids(tl.Messages()))
}

func TestReopeningSameRoomInvalidatesOldTicket(t *testing.T) {
	tl := NewTimeline()
	first := tl.Open("A")
	tl.Close()
	second := tl.Open("A")

	assert.NotEqual(t, first, second)
	assert.False(t, tl.Replace(first, []Message{msg("old", "x", bob)}))
	assert.True(t, tl.Replace(second, []Message{msg("new", "x", bob)}))
}

func TestCloseDropsPendingSend(t *testing.T) {
	tl := NewTimeline()
	load := tl.Open("A")
	send, err := tl.BeginSend("hi")
	require.NoError(t, err)
	tl.Close()

	_, ok := tl.Current()
	assert.False(t, ok)
	_, restored := tl.FailSend(send.Ticket)
	assert.False(t, restored)
	assert.False(t, tl.ConfirmSend(load.Ticket, msg("1", "hi", alice)))
	_, ok = tl.Resync()
	assert.False(t, ok)
}

func TestMessagesReturnsCopy(t *testing.T) {
	tl := NewTimeline()
	load := tl.Open("A")
	tl.Replace(load, []Message{msg("1", "a", bob)})
	list := tl.Messages()
	list[0].Content = "mutated"
	assert.Equal(t, "a", tl.Messages()[0].Content)
}

func TestUserName(t *testing.T) {
	assert.Equal(t, "alice", alice.Name())
	assert.Equal(t, "Bobby", bob.Name())
	assert.True(t, alice.Valid())
	assert.False(t, User{Username: "x"}.Valid())
}
