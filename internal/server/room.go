package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/npezzotti/rtc-broker/internal/roomstore"
)

const (
	idleRoomTimeout     = 5 * time.Minute
	maxChatMessageLen   = 1000
	maxReactionEmojiLen = 10
)

// Room is the single-writer actor owning one room's state. All
// mutation goes through one of its channels and is handled on its own
// goroutine; nothing outside this file touches participants,
// waitingRoom, or screenSharer without going through the run loop.
type Room struct {
	id      string
	creator int

	server *ChatServer
	store  *roomstore.Store
	async  *roomstore.AsyncWriter
	log    *log.Logger

	waitingRoomEnabled bool

	joinChan      chan *joinRequest
	leaveChan     chan *Connection
	opChan        chan *ClientMessage
	translateChan chan *translateJob
	exit          chan struct{}
	done          chan struct{}

	participants map[string]*Connection
	waitingRoom  map[int][]*Connection
	screenSharer string
}

type joinRequest struct {
	conn   *Connection
	roomId string
}

// translateJob carries a translated chat-message variant from the
// translation webhook into the room actor. It has no owning
// Connection, unlike every other op the room handles.
type translateJob struct {
	msg           roomstore.ChatMessage
	translationOf string
}

func newRoom(id string, creator int, waitingRoomEnabled bool, server *ChatServer, store *roomstore.Store, async *roomstore.AsyncWriter, logger *log.Logger) *Room {
	return &Room{
		id:                 id,
		creator:            creator,
		server:             server,
		store:              store,
		async:              async,
		log:                logger,
		waitingRoomEnabled: waitingRoomEnabled,
		joinChan:           make(chan *joinRequest, 16),
		leaveChan:          make(chan *Connection, 16),
		opChan:             make(chan *ClientMessage, 64),
		translateChan:      make(chan *translateJob, 8),
		exit:               make(chan struct{}),
		done:               make(chan struct{}),
		participants:       make(map[string]*Connection),
		waitingRoom:        make(map[int][]*Connection),
	}
}

// run is the room's actor loop. It owns all room state exclusively;
// every branch below executes without a lock because nothing else
// touches this room's maps.
func (r *Room) run() {
	defer close(r.done)

	idle := time.NewTimer(idleRoomTimeout)
	defer idle.Stop()

	for {
		select {
		case req := <-r.joinChan:
			idle.Stop()
			r.handleJoin(req)
			idle.Reset(idleRoomTimeout)
		case conn := <-r.leaveChan:
			idle.Stop()
			_, wasParticipant := r.participants[conn.id]
			r.handleLeave(conn)
			if wasParticipant && len(r.participants) == 0 {
				r.server.unloadRoomChan <- r.id
				return
			}
			idle.Reset(idleRoomTimeout)
		case msg := <-r.opChan:
			idle.Stop()
			r.handleOp(msg)
			idle.Reset(idleRoomTimeout)
		case job := <-r.translateChan:
			idle.Stop()
			r.handleTranslate(job)
			idle.Reset(idleRoomTimeout)
		case <-idle.C:
			if len(r.participants) == 0 {
				r.server.unloadRoomChan <- r.id
				return
			}
			idle.Reset(idleRoomTimeout)
		case <-r.exit:
			return
		}
	}
}

// handleJoin admits a connection to the room, enforcing the waiting
// room for non-creator joins when enabled. The creator always
// bypasses the waiting room.
func (r *Room) handleJoin(req *joinRequest) {
	conn := req.conn

	if _, ok := r.participants[conn.id]; ok {
		r.sendRoster(conn)
		return
	}

	if r.waitingRoomEnabled && !r.isCreator(conn) {
		r.addToWaitingRoom(conn)
		return
	}

	r.admit(conn)
}

func connUserId(conn *Connection) int {
	if conn.userId == nil {
		return 0
	}
	return *conn.userId
}

// addToWaitingRoom queues conn behind the waiting room, keyed by
// userId rather than connection id: a user with two tabs open ends up
// with two *Connection entries under the same key, both of which must
// hear about the eventual approve/reject decision.
func (r *Room) addToWaitingRoom(conn *Connection) {
	uid := connUserId(conn)
	for _, existing := range r.waitingRoom[uid] {
		if existing.id == conn.id {
			return
		}
	}
	r.waitingRoom[uid] = append(r.waitingRoom[uid], conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	r.persistWaitingRoom(ctx)
	cancel()

	r.broadcastToParticipants(WaitingRoomUpdatedFrame(r.waitingRoomIds()))
}

// waitingRoomIds returns the userIds currently queued, for frames that
// echo the waiting room's contents back to participants.
func (r *Room) waitingRoomIds() []int {
	ids := make([]int, 0, len(r.waitingRoom))
	for uid := range r.waitingRoom {
		ids = append(ids, uid)
	}
	return ids
}

func (r *Room) admit(conn *Connection) {
	r.participants[conn.id] = conn
	conn.setCurrentRoomId(r.id)

	r.sendRoster(conn)
	r.broadcastExcept(conn.id, UserJoinedFrame(conn.id, conn.userId, conn.username))
}

func (r *Room) sendRoster(conn *Connection) {
	roster := make([]ParticipantInfo, 0, len(r.participants))
	for _, p := range r.participants {
		roster = append(roster, ParticipantInfo{
			ConnectionId:  p.id,
			UserId:        p.userId,
			Username:      p.username,
			Muted:         p.getMuted(),
			VideoOff:      p.getVideoOff(),
			HandRaised:    p.getHandRaised(),
			ScreenSharing: p.id == r.screenSharer,
		})
	}
	conn.sendFrame(RoomParticipantsFrame(roster))
}

// handleLeave removes conn from the room if present, broadcasting
// user-left exactly once. Calling this for a connection already gone
// (e.g. both an explicit leave-room and the disconnect cleanup path
// racing) is a no-op, which keeps that exactly-once guarantee without
// extra bookkeeping at the call sites.
func (r *Room) handleLeave(conn *Connection) {
	r.removeFromWaitingRoom(conn)

	if _, ok := r.participants[conn.id]; !ok {
		return
	}

	delete(r.participants, conn.id)
	conn.clearCurrentRoomId(r.id)

	if r.screenSharer == conn.id {
		r.screenSharer = ""
		r.broadcastToParticipants(UserScreenShareStopFrame(conn.id))
	}

	r.broadcastToParticipants(UserLeftFrame(conn.id, conn.username))
}

func (r *Room) handleOp(msg *ClientMessage) {
	switch {
	case msg.ChatMessage != nil:
		r.handleChatMessage(msg.conn, msg.ChatMessage)
	case msg.ChatReaction != nil:
		r.handleChatReaction(msg.conn, msg.ChatReaction)
	case msg.ToggleMute != nil:
		msg.conn.setMuted(msg.ToggleMute.Muted)
		r.broadcastExcept(msg.conn.id, UserToggleMuteFrame(msg.conn.id, msg.ToggleMute.Muted))
	case msg.ToggleVideo != nil:
		msg.conn.setVideoOff(msg.ToggleVideo.VideoOff)
		r.broadcastExcept(msg.conn.id, UserToggleVideoFrame(msg.conn.id, msg.ToggleVideo.VideoOff))
	case msg.ScreenShareStart != nil:
		r.screenSharer = msg.conn.id
		r.broadcastExcept(msg.conn.id, UserScreenShareStartFrame(msg.conn.id, msg.conn.username))
	case msg.ScreenShareStop != nil:
		if r.screenSharer == msg.conn.id {
			r.screenSharer = ""
		}
		r.broadcastExcept(msg.conn.id, UserScreenShareStopFrame(msg.conn.id))
	case msg.HandRaise != nil:
		msg.conn.setHandRaised(msg.HandRaise.Raised)
		r.broadcastExcept(msg.conn.id, UserHandRaiseFrame(msg.conn.id, msg.conn.username, msg.HandRaise.Raised))
	case msg.ApproveUser != nil:
		r.handleApproveUser(msg.conn, msg.ApproveUser.UserId)
	case msg.RejectUser != nil:
		r.handleRejectUser(msg.conn, msg.RejectUser.UserId)
	}
}

func (r *Room) isCreator(conn *Connection) bool {
	return conn.userId != nil && *conn.userId == r.creator
}

// handleApproveUser admits every currently connected socket the
// target user has waiting, not just one — a second browser tab opened
// on the same account must not silently miss the decision.
func (r *Room) handleApproveUser(conn *Connection, userId int) {
	if !r.isCreator(conn) {
		conn.sendFrame(ErrorMessageFrame("Only room creator can manage waiting room"))
		return
	}

	waiting, ok := r.waitingRoom[userId]
	if !ok {
		return
	}
	delete(r.waitingRoom, userId)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	r.persistWaitingRoom(ctx)
	cancel()

	for _, w := range waiting {
		w.sendFrame(WaitingRoomApprovedFrame(r.id))
		r.admit(w)
	}

	conn.sendFrame(WaitingRoomUpdatedFrame(r.waitingRoomIds()))
}

func (r *Room) handleRejectUser(conn *Connection, userId int) {
	if !r.isCreator(conn) {
		conn.sendFrame(ErrorMessageFrame("Only room creator can manage waiting room"))
		return
	}

	waiting, ok := r.waitingRoom[userId]
	if !ok {
		return
	}
	delete(r.waitingRoom, userId)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	r.persistWaitingRoom(ctx)
	cancel()

	for _, w := range waiting {
		w.sendFrame(WaitingRoomRejectedFrame(r.id))
	}

	conn.sendFrame(WaitingRoomUpdatedFrame(r.waitingRoomIds()))
}

// removeFromWaitingRoom drops only conn from its userId's waiting
// entry, leaving any other connection for that same user (another tab)
// still queued.
func (r *Room) removeFromWaitingRoom(conn *Connection) {
	uid := connUserId(conn)
	waiting, ok := r.waitingRoom[uid]
	if !ok {
		return
	}

	for i, w := range waiting {
		if w.id == conn.id {
			waiting = append(waiting[:i], waiting[i+1:]...)
			break
		}
	}

	if len(waiting) == 0 {
		delete(r.waitingRoom, uid)
	} else {
		r.waitingRoom[uid] = waiting
	}
}

func (r *Room) persistWaitingRoom(ctx context.Context) {
	if err := r.store.UpdateWaitingRoom(ctx, r.id, r.waitingRoomIds()); err != nil {
		r.log.Printf("room %s: persist waiting room: %v", r.id, err)
	}
}

// handleChatMessage appends the message to the room's log on the
// fire-and-forget AsyncWriter path and fans the frame out immediately
// using a locally assigned message id. Because persistence can't fail
// the broadcast, a persistence error only shows up in the log, not to
// any participant — chat delivery is best-effort durable, not
// transactional with delivery.
func (r *Room) handleChatMessage(conn *Connection, p *ChatMessagePayload) {
	text := strings.TrimSpace(p.Message)
	if text == "" || len(text) > maxChatMessageLen {
		conn.sendFrame(ErrorMessageFrame(fmt.Sprintf("Message must be between 1 and %d characters", maxChatMessageLen)))
		return
	}

	if !r.server.chatLimiter.Allow(conn.id, timeNow()) {
		conn.sendFrame(ErrorMessageFrame("Chat rate limit exceeded. Slow down."))
		return
	}

	msg := roomstore.ChatMessage{
		MessageId: r.server.newMessageId(),
		UserId:    conn.userId,
		Username:  conn.username,
		Text:      text,
		Timestamp: timeNow(),
	}

	r.async.Enqueue(r.id, msg)
	r.server.metrics.Incr("ChatMessagesRelayed")
	r.broadcastToParticipants(ChatMessageFrame(msg, ""))
}

// handleChatReaction toggles a reaction synchronously against the
// store, in-line on this room's goroutine, rather than going through
// the AsyncWriter: the fan-out frame (added vs removed) depends on
// which branch the store call took, so the result has to be known
// before broadcasting. This blocks only this room for the duration of
// one Mongo round trip, not the server as a whole.
func (r *Room) handleChatReaction(conn *Connection, p *ChatReactionPayload) {
	if !conn.authenticated {
		conn.sendFrame(ErrorMessageFrame("Must be authenticated to react"))
		return
	}

	emoji := strings.TrimSpace(p.Emoji)
	if emoji == "" || len(emoji) > maxReactionEmojiLen {
		conn.sendFrame(ErrorMessageFrame(fmt.Sprintf("Emoji must be between 1 and %d characters", maxReactionEmojiLen)))
		return
	}
	p.Emoji = emoji

	uid := connUserId(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	added, err := r.store.ToggleReaction(ctx, r.id, p.MessageId, p.Emoji, uid)
	cancel()
	if err != nil {
		r.log.Printf("room %s: toggle reaction: %v", r.id, err)
		conn.sendFrame(ErrorMessageFrame("Unable to toggle reaction"))
		return
	}

	if added {
		r.broadcastToParticipants(ChatReactionFrame(p.MessageId, p.Emoji, uid, conn.username))
	} else {
		r.broadcastToParticipants(ChatReactionRemovedFrame(p.MessageId, p.Emoji, uid))
	}
}

// handleTranslate fans out a translated chat-message variant pushed
// in by the translation webhook. It has no rate limit of its own —
// the webhook endpoint's own window already bounds this path — and no
// sender to report an error back to, so a persistence failure is
// logged only.
func (r *Room) handleTranslate(job *translateJob) {
	r.async.Enqueue(r.id, job.msg)
	r.broadcastToParticipants(ChatMessageFrame(job.msg, job.translationOf))
}

func (r *Room) broadcastToParticipants(frame *Frame) {
	for _, p := range r.participants {
		p.sendFrame(frame)
	}
}

func (r *Room) broadcastExcept(exceptId string, frame *Frame) {
	for id, p := range r.participants {
		if id == exceptId {
			continue
		}
		p.sendFrame(frame)
	}
}

func timeNow() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
