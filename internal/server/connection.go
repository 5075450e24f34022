package server

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Connection is a live bidirectional channel to one browser. It owns
// its entries in the room roster and broadcast registry; both
// are torn down from cleanup on disconnect, never reached into from
// outside.
type Connection struct {
	id            string
	userId        *int
	username      string
	authenticated bool

	conn   *websocket.Conn
	server *ChatServer
	log    *log.Logger

	mu                 sync.RWMutex
	currentRoomId      string
	currentBroadcastId string
	muted              bool
	videoOff           bool
	handRaised         bool

	send chan *Frame
	stop chan struct{}
}

func NewConnection(id string, userId *int, username string, authenticated bool, conn *websocket.Conn, server *ChatServer, logger *log.Logger) *Connection {
	return &Connection{
		id:            id,
		userId:        userId,
		username:      username,
		authenticated: authenticated,
		conn:          conn,
		server:        server,
		log:           logger,
		send:          make(chan *Frame, 256),
		stop:          make(chan struct{}),
	}
}

func (c *Connection) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}

			raw, err := json.Marshal(frame)
			if err != nil {
				c.log.Println("failed to serialize frame:", err)
				continue
			}

			if !c.writeMessage(websocket.TextMessage, raw) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Connection) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			} else {
				c.log.Printf("ws: connection %q closed: %v", c.id, err)
			}
			return
		}

		msg, err := decodeClientMessage(raw)
		if err != nil {
			c.log.Println("discarding malformed frame:", err)
			continue
		}
		msg.conn = c

		c.dispatch(msg)
	}
}

func (c *Connection) dispatch(msg *ClientMessage) {
	switch {
	case msg.JoinRoom != nil:
		c.handleJoinRoom(msg)
	case msg.LeaveRoom != nil:
		c.handleLeaveRoom()
	case msg.Offer != nil:
		c.relaySignal(msg.Offer.To, msg.Offer.Offer, OfferFrame)
	case msg.Answer != nil:
		c.relaySignal(msg.Answer.To, msg.Answer.Answer, AnswerFrame)
	case msg.IceCandidate != nil:
		c.relaySignal(msg.IceCandidate.To, msg.IceCandidate.Candidate, CandidateFrame)
	case msg.ChatMessage != nil, msg.ChatReaction != nil,
		msg.ToggleMute != nil, msg.ToggleVideo != nil,
		msg.ScreenShareStart != nil, msg.ScreenShareStop != nil,
		msg.HandRaise != nil, msg.ApproveUser != nil, msg.RejectUser != nil:
		c.forwardToRoom(msg)
	case msg.CreateBroadcast != nil:
		c.handleCreateBroadcast(msg.CreateBroadcast)
	case msg.JoinBroadcast != nil:
		c.handleJoinBroadcast(msg.JoinBroadcast)
	}
}

func (c *Connection) handleJoinRoom(msg *ClientMessage) {
	select {
	case c.server.joinRoomChan <- msg:
	default:
		c.log.Println("joinRoomChan full")
		c.sendFrame(ErrorMessageFrame("Service unavailable"))
	}
}

func (c *Connection) handleLeaveRoom() {
	roomId := c.getCurrentRoomId()
	if roomId == "" {
		return
	}

	room, ok := c.server.getRoom(roomId)
	if !ok {
		return
	}

	select {
	case room.leaveChan <- c:
	default:
		c.log.Printf("leaveChan full for room %q", roomId)
	}
}

// forwardToRoom routes a room-scoped event (chat, reaction, presence
// toggle, waiting-room management) to the sender's current room's
// actor. Events for a room the connection isn't in are dropped
// silently, the same rejected-silently rule presence toggles follow,
// generalized to the rest of this category of event.
func (c *Connection) forwardToRoom(msg *ClientMessage) {
	roomId := roomIdFromOp(msg)
	if roomId == "" || roomId != c.getCurrentRoomId() {
		return
	}

	room, ok := c.server.getRoom(roomId)
	if !ok {
		return
	}

	select {
	case room.opChan <- msg:
	default:
		c.log.Printf("opChan full for room %q", roomId)
	}
}

func roomIdFromOp(msg *ClientMessage) string {
	switch {
	case msg.ChatMessage != nil:
		return msg.ChatMessage.RoomId
	case msg.ChatReaction != nil:
		return msg.ChatReaction.RoomId
	case msg.ToggleMute != nil:
		return msg.ToggleMute.RoomId
	case msg.ToggleVideo != nil:
		return msg.ToggleVideo.RoomId
	case msg.ScreenShareStart != nil:
		return msg.ScreenShareStart.RoomId
	case msg.ScreenShareStop != nil:
		return msg.ScreenShareStop.RoomId
	case msg.HandRaise != nil:
		return msg.HandRaise.RoomId
	case msg.ApproveUser != nil:
		return msg.ApproveUser.RoomId
	case msg.RejectUser != nil:
		return msg.RejectUser.RoomId
	default:
		return ""
	}
}

func (c *Connection) handleCreateBroadcast(p *CreateBroadcastPayload) {
	broadcastId := strings.TrimSpace(p.BroadcastId)
	if broadcastId == "" || len(broadcastId) > 64 {
		c.sendFrame(ErrorMessageFrame("Valid broadcastId is required"))
		return
	}

	if !c.server.broadcasts.CreateOrReplace(broadcastId, c) {
		c.sendFrame(ErrorMessageFrame("Valid broadcastId is required"))
		return
	}

	c.setCurrentBroadcastId(broadcastId)
	c.sendFrame(BroadcastCreatedFrame(broadcastId))
}

func (c *Connection) handleJoinBroadcast(p *JoinBroadcastPayload) {
	publisher, ok := c.server.broadcasts.Lookup(p.BroadcastId)
	if !ok {
		c.sendFrame(BroadcastNotFoundFrame(p.BroadcastId))
		return
	}

	publisher.sendFrame(ViewerJoinedFrame(c.id))
	c.sendFrame(BroadcastJoinedFrame(publisher.id))
}

func (c *Connection) sendFrame(frame *Frame) bool {
	select {
	case c.send <- frame:
	default:
		c.log.Println("send channel full, dropping frame for", c.id)
		return false
	}

	return true
}

func (c *Connection) writeMessage(msgType int, data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write: %s", err)
		}
		return false
	}

	return true
}

func (c *Connection) stopClient() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

// cleanup runs the disconnect path: leave the current room (firing
// user-left exactly once via the room's idempotent leave handling),
// release any owned broadcast, evict rate-limiter state, and
// deregister.
func (c *Connection) cleanup() {
	c.server.deregisterChan <- c

	if roomId := c.getCurrentRoomId(); roomId != "" {
		if room, ok := c.server.getRoom(roomId); ok {
			select {
			case room.leaveChan <- c:
			default:
				c.log.Printf("leaveChan full for room %q during cleanup", roomId)
			}
		}
	}

	if broadcastId := c.getCurrentBroadcastId(); broadcastId != "" {
		c.server.broadcasts.RemoveIfOwner(broadcastId, c)
	}

	c.server.chatLimiter.Clear(c.id)
	c.stopClient()
}

func (c *Connection) getCurrentRoomId() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentRoomId
}

func (c *Connection) setCurrentRoomId(roomId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentRoomId = roomId
}

func (c *Connection) clearCurrentRoomId(roomId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentRoomId == roomId {
		c.currentRoomId = ""
	}
}

func (c *Connection) getCurrentBroadcastId() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentBroadcastId
}

func (c *Connection) setCurrentBroadcastId(broadcastId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentBroadcastId = broadcastId
}

func (c *Connection) getMuted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.muted
}

func (c *Connection) setMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
}

func (c *Connection) getVideoOff() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.videoOff
}

func (c *Connection) setVideoOff(videoOff bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videoOff = videoOff
}

func (c *Connection) getHandRaised() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handRaised
}

func (c *Connection) setHandRaised(handRaised bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handRaised = handRaised
}
