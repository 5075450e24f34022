package server

import (
	"strings"
	"testing"
	"time"

	"github.com/npezzotti/rtc-broker/internal/ratelimit"
	"github.com/npezzotti/rtc-broker/internal/roomstore"
	"github.com/npezzotti/rtc-broker/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestRoom(t *testing.T, repo *roomstore.MockRepository, creator int, waitingRoomEnabled bool) *Room {
	store := roomstore.NewStore(repo)
	async := roomstore.NewAsyncWriter(store, testutil.TestLogger(t), 8)
	t.Cleanup(async.Stop)

	cs := NewChatServer(testutil.TestLogger(t), store, async, ratelimit.NewChatLimiter(time.Second, 100))

	return newRoom("room1", creator, waitingRoomEnabled, cs, store, async, testutil.TestLogger(t))
}

func newTestConn(id string, userId *int, username string) *Connection {
	return &Connection{
		id:            id,
		userId:        userId,
		username:      username,
		authenticated: true,
		send:          make(chan *Frame, 16),
		stop:          make(chan struct{}),
	}
}

func intPtr(i int) *int { return &i }

func TestRoom_handleJoin_admitsCreatorDirectly(t *testing.T) {
	repo := &roomstore.MockRepository{}
	r := newTestRoom(t, repo, 1, true)

	creator := newTestConn("conn-1", intPtr(1), "owner")
	r.handleJoin(&joinRequest{conn: creator, roomId: r.id})

	assert.Contains(t, r.participants, "conn-1")
	assert.Empty(t, r.waitingRoom)

	select {
	case f := <-creator.send:
		assert.Equal(t, "room-participants", f.Event)
	default:
		t.Error("expected roster frame")
	}
}

func TestRoom_handleJoin_nonCreatorGoesToWaitingRoom(t *testing.T) {
	repo := &roomstore.MockRepository{}
	repo.On("SetWaitingRoom", mock.Anything, "room1", mock.Anything).Return(nil)
	r := newTestRoom(t, repo, 1, true)

	guest := newTestConn("conn-2", intPtr(2), "guest")
	r.handleJoin(&joinRequest{conn: guest, roomId: r.id})

	assert.NotContains(t, r.participants, "conn-2")
	assert.Contains(t, r.waitingRoom, 2)
}

func TestRoom_handleApproveUser_admitsWaitingGuest(t *testing.T) {
	repo := &roomstore.MockRepository{}
	repo.On("SetWaitingRoom", mock.Anything, "room1", mock.Anything).Return(nil)
	r := newTestRoom(t, repo, 1, true)

	creator := newTestConn("conn-1", intPtr(1), "owner")
	r.handleJoin(&joinRequest{conn: creator, roomId: r.id})

	guest := newTestConn("conn-2", intPtr(2), "guest")
	r.handleJoin(&joinRequest{conn: guest, roomId: r.id})
	assert.Contains(t, r.waitingRoom, 2)

	r.handleApproveUser(creator, 2)

	assert.NotContains(t, r.waitingRoom, 2)
	assert.Contains(t, r.participants, "conn-2")

	select {
	case f := <-guest.send:
		assert.Equal(t, "waiting-room-approved", f.Event)
	default:
		t.Error("expected waiting-room-approved frame")
	}
}

func TestRoom_handleApproveUser_rejectsNonCreator(t *testing.T) {
	repo := &roomstore.MockRepository{}
	repo.On("SetWaitingRoom", mock.Anything, "room1", mock.Anything).Return(nil)
	r := newTestRoom(t, repo, 1, true)

	guest := newTestConn("conn-2", intPtr(2), "guest")
	r.handleJoin(&joinRequest{conn: guest, roomId: r.id})

	notCreator := newTestConn("conn-3", intPtr(3), "impostor")
	r.handleApproveUser(notCreator, 2)

	assert.Contains(t, r.waitingRoom, 2, "a non-creator's approval must be ignored")

	select {
	case f := <-notCreator.send:
		assert.Equal(t, "error-message", f.Event)
	default:
		t.Error("expected error-message frame for non-creator")
	}
}

func TestRoom_handleApproveUser_notifiesAllConnectionsForSameUser(t *testing.T) {
	repo := &roomstore.MockRepository{}
	repo.On("SetWaitingRoom", mock.Anything, "room1", mock.Anything).Return(nil)
	r := newTestRoom(t, repo, 1, true)

	creator := newTestConn("conn-1", intPtr(1), "owner")
	r.handleJoin(&joinRequest{conn: creator, roomId: r.id})

	tab1 := newTestConn("conn-2a", intPtr(2), "guest")
	tab2 := newTestConn("conn-2b", intPtr(2), "guest")
	r.handleJoin(&joinRequest{conn: tab1, roomId: r.id})
	r.handleJoin(&joinRequest{conn: tab2, roomId: r.id})

	assert.Len(t, r.waitingRoom[2], 2, "both tabs for the same user should be queued")

	r.handleApproveUser(creator, 2)

	assert.NotContains(t, r.waitingRoom, 2)
	assert.Contains(t, r.participants, "conn-2a")
	assert.Contains(t, r.participants, "conn-2b")

	for _, conn := range []*Connection{tab1, tab2} {
		select {
		case f := <-conn.send:
			assert.Equal(t, "waiting-room-approved", f.Event)
		default:
			t.Errorf("expected waiting-room-approved frame for %s", conn.id)
		}
	}
}

func TestRoom_removeFromWaitingRoom_leavesSiblingTabQueued(t *testing.T) {
	repo := &roomstore.MockRepository{}
	repo.On("SetWaitingRoom", mock.Anything, "room1", mock.Anything).Return(nil)
	r := newTestRoom(t, repo, 1, true)

	tab1 := newTestConn("conn-2a", intPtr(2), "guest")
	tab2 := newTestConn("conn-2b", intPtr(2), "guest")
	r.handleJoin(&joinRequest{conn: tab1, roomId: r.id})
	r.handleJoin(&joinRequest{conn: tab2, roomId: r.id})

	r.handleLeave(tab1)

	assert.Contains(t, r.waitingRoom, 2)
	assert.Len(t, r.waitingRoom[2], 1)
	assert.Equal(t, "conn-2b", r.waitingRoom[2][0].id)
}

func TestRoom_handleLeave_isIdempotent(t *testing.T) {
	repo := &roomstore.MockRepository{}
	r := newTestRoom(t, repo, 1, false)

	conn := newTestConn("conn-1", intPtr(1), "owner")
	r.handleJoin(&joinRequest{conn: conn, roomId: r.id})
	<-conn.send // drain roster

	r.handleLeave(conn)
	assert.NotContains(t, r.participants, "conn-1")

	select {
	case f := <-conn.send:
		t.Fatalf("leaver should not receive its own user-left frame, got %v", f)
	default:
	}

	// a second leave for the same (now absent) connection must be a no-op
	r.handleLeave(conn)
	assert.NotContains(t, r.participants, "conn-1")
}

func TestRoom_handleLeave_notifiesRemainingParticipants(t *testing.T) {
	repo := &roomstore.MockRepository{}
	r := newTestRoom(t, repo, 1, false)

	c1 := newTestConn("conn-1", intPtr(1), "alice")
	c2 := newTestConn("conn-2", intPtr(2), "bob")
	r.handleJoin(&joinRequest{conn: c1, roomId: r.id})
	<-c1.send
	r.handleJoin(&joinRequest{conn: c2, roomId: r.id})
	<-c2.send // roster
	<-c1.send // user-joined notification for c2

	r.handleLeave(c2)

	select {
	case f := <-c1.send:
		assert.Equal(t, "user-left", f.Event)
	default:
		t.Error("expected remaining participant to receive user-left")
	}
}

func TestRoom_handleChatMessage_broadcastsAndRespectsRateLimit(t *testing.T) {
	repo := &roomstore.MockRepository{}
	repo.On("PushChatMessage", mock.Anything, "room1", mock.Anything, mock.Anything).Return(nil)
	r := newTestRoom(t, repo, 1, false)
	r.server.chatLimiter = ratelimit.NewChatLimiter(time.Minute, 1)

	conn := newTestConn("conn-1", intPtr(1), "alice")
	r.handleJoin(&joinRequest{conn: conn, roomId: r.id})
	<-conn.send // roster

	r.handleChatMessage(conn, &ChatMessagePayload{RoomId: r.id, Message: "hello"})

	select {
	case f := <-conn.send:
		assert.Equal(t, "chat-message", f.Event)
	default:
		t.Error("expected chat-message frame")
	}

	r.handleChatMessage(conn, &ChatMessagePayload{RoomId: r.id, Message: "again"})

	select {
	case f := <-conn.send:
		assert.Equal(t, "error-message", f.Event)
		assert.Equal(t, "Chat rate limit exceeded. Slow down.", f.Data.(map[string]string)["message"])
	default:
		t.Error("expected rate-limit error frame on second message")
	}
}

func TestRoom_handleChatMessage_rejectsEmptyAndOversizedText(t *testing.T) {
	repo := &roomstore.MockRepository{}
	r := newTestRoom(t, repo, 1, false)

	conn := newTestConn("conn-1", intPtr(1), "alice")
	r.handleJoin(&joinRequest{conn: conn, roomId: r.id})
	<-conn.send // roster

	r.handleChatMessage(conn, &ChatMessagePayload{RoomId: r.id, Message: "   "})
	select {
	case f := <-conn.send:
		assert.Equal(t, "error-message", f.Event)
	default:
		t.Error("expected error-message frame for blank message")
	}

	r.handleChatMessage(conn, &ChatMessagePayload{RoomId: r.id, Message: strings.Repeat("a", 1001)})
	select {
	case f := <-conn.send:
		assert.Equal(t, "error-message", f.Event)
	default:
		t.Error("expected error-message frame for oversized message")
	}
}

func TestRoom_handleChatReaction_requiresAuthentication(t *testing.T) {
	repo := &roomstore.MockRepository{}
	r := newTestRoom(t, repo, 1, false)

	conn := newTestConn("conn-1", intPtr(1), "alice")
	conn.authenticated = false
	r.handleJoin(&joinRequest{conn: conn, roomId: r.id})
	<-conn.send // roster

	r.handleChatReaction(conn, &ChatReactionPayload{RoomId: r.id, MessageId: "msg-1", Emoji: "👍"})

	select {
	case f := <-conn.send:
		assert.Equal(t, "error-message", f.Event)
		assert.Equal(t, "Must be authenticated to react", f.Data.(map[string]string)["message"])
	default:
		t.Error("expected error-message frame for unauthenticated reaction")
	}
}

func TestRoom_handleChatReaction_rejectsOversizedEmoji(t *testing.T) {
	repo := &roomstore.MockRepository{}
	r := newTestRoom(t, repo, 1, false)

	conn := newTestConn("conn-1", intPtr(1), "alice")
	r.handleJoin(&joinRequest{conn: conn, roomId: r.id})
	<-conn.send // roster

	r.handleChatReaction(conn, &ChatReactionPayload{RoomId: r.id, MessageId: "msg-1", Emoji: "toolongemoji"})

	select {
	case f := <-conn.send:
		assert.Equal(t, "error-message", f.Event)
	default:
		t.Error("expected error-message frame for oversized emoji")
	}
}

func TestRoom_handleChatReaction_toggleAddedAndRemoved(t *testing.T) {
	repo := &roomstore.MockRepository{}
	repo.On("ToggleReactionUser", mock.Anything, "room1", "msg-1", "👍", 1).Return(true, nil).Once()
	repo.On("ToggleReactionUser", mock.Anything, "room1", "msg-1", "👍", 1).Return(false, nil).Once()

	r := newTestRoom(t, repo, 1, false)
	conn := newTestConn("conn-1", intPtr(1), "alice")
	r.handleJoin(&joinRequest{conn: conn, roomId: r.id})
	<-conn.send

	r.handleChatReaction(conn, &ChatReactionPayload{RoomId: r.id, MessageId: "msg-1", Emoji: "👍"})
	select {
	case f := <-conn.send:
		assert.Equal(t, "chat-reaction", f.Event)
	default:
		t.Error("expected chat-reaction frame")
	}

	r.handleChatReaction(conn, &ChatReactionPayload{RoomId: r.id, MessageId: "msg-1", Emoji: "👍"})
	select {
	case f := <-conn.send:
		assert.Equal(t, "chat-reaction-removed", f.Event)
	default:
		t.Error("expected chat-reaction-removed frame")
	}
}

func TestRoom_handleOp_screenShareTracksSharer(t *testing.T) {
	repo := &roomstore.MockRepository{}
	r := newTestRoom(t, repo, 1, false)

	conn := newTestConn("conn-1", intPtr(1), "alice")
	r.handleJoin(&joinRequest{conn: conn, roomId: r.id})
	<-conn.send

	r.handleOp(&ClientMessage{ScreenShareStart: &ScreenShareStartPayload{RoomId: r.id}, conn: conn})
	assert.Equal(t, "conn-1", r.screenSharer)

	select {
	case f := <-conn.send:
		t.Fatalf("sender should not receive its own screen-share-start broadcast, got %v", f)
	default:
	}

	r.handleLeave(conn)
	assert.Equal(t, "", r.screenSharer, "leaving the active screen-sharer must clear the sharer")
}
