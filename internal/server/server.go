package server

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/npezzotti/rtc-broker/internal/idgen"
	"github.com/npezzotti/rtc-broker/internal/ratelimit"
	"github.com/npezzotti/rtc-broker/internal/roomstore"
	"github.com/npezzotti/rtc-broker/internal/stats"
)

// ChatServer is the top-level actor: it owns the connection
// registry and the room directory, and is the only place a new Room
// actor gets created. Everything that needs cross-room or
// cross-connection state goes through one of its channels rather than
// reaching directly into a Room or Connection from outside.
type ChatServer struct {
	log   *log.Logger
	store *roomstore.Store
	async *roomstore.AsyncWriter

	broadcasts  *BroadcastRegistry
	chatLimiter *ratelimit.ChatLimiter
	metrics     stats.Provider

	connMu      sync.RWMutex
	connections map[string]*Connection

	roomsMu sync.RWMutex
	rooms   map[string]*Room

	joinRoomChan   chan *ClientMessage
	registerChan   chan *Connection
	deregisterChan chan *Connection
	unloadRoomChan chan string

	stop chan struct{}
	done chan struct{}
}

func NewChatServer(logger *log.Logger, store *roomstore.Store, async *roomstore.AsyncWriter, chatLimiter *ratelimit.ChatLimiter) *ChatServer {
	return &ChatServer{
		log:            logger,
		store:          store,
		async:          async,
		broadcasts:     NewBroadcastRegistry(),
		chatLimiter:    chatLimiter,
		metrics:        stats.NewMetrics(),
		connections:    make(map[string]*Connection),
		rooms:          make(map[string]*Room),
		joinRoomChan:   make(chan *ClientMessage),
		registerChan:   make(chan *Connection),
		deregisterChan: make(chan *Connection),
		unloadRoomChan: make(chan string),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Run is the top-level actor loop. Joins are serialized through this
// single goroutine so that two connections racing to join the same
// unloaded room can never spin up two Room actors for the same id.
func (cs *ChatServer) Run() {
	cs.metrics.Run()

	for {
		select {
		case msg := <-cs.joinRoomChan:
			cs.handleJoinRoom(msg)
		case conn := <-cs.registerChan:
			cs.connMu.Lock()
			cs.connections[conn.id] = conn
			cs.connMu.Unlock()
			cs.log.Printf("registered connection %q (user %q)", conn.id, conn.username)
			cs.metrics.Incr("ConnectionsRegistered")
			cs.metrics.Incr("ActiveConnections")
		case conn := <-cs.deregisterChan:
			cs.connMu.Lock()
			delete(cs.connections, conn.id)
			cs.connMu.Unlock()
			cs.metrics.Decr("ActiveConnections")
		case roomId := <-cs.unloadRoomChan:
			cs.roomsMu.Lock()
			r, ok := cs.rooms[roomId]
			if ok {
				delete(cs.rooms, roomId)
			}
			cs.roomsMu.Unlock()
			if ok {
				cs.log.Printf("unloaded idle room %q", roomId)
				close(r.exit)
			}
		case <-cs.stop:
			cs.log.Println("shutting down rooms")
			cs.roomsMu.Lock()
			rooms := cs.rooms
			cs.rooms = make(map[string]*Room)
			cs.roomsMu.Unlock()
			for _, r := range rooms {
				close(r.exit)
				<-r.done
			}
			close(cs.done)
			return
		}
	}
}

const maxRoomIdLen = 128

func (cs *ChatServer) handleJoinRoom(msg *ClientMessage) {
	roomId := msg.JoinRoom.RoomId
	if roomId == "" || len(roomId) > maxRoomIdLen {
		msg.conn.sendFrame(ErrorMessageFrame("Valid roomId is required"))
		return
	}

	if prevId := msg.conn.getCurrentRoomId(); prevId != "" && prevId != roomId {
		if prevRoom, ok := cs.getRoom(prevId); ok {
			select {
			case prevRoom.leaveChan <- msg.conn:
			default:
				cs.log.Printf("leaveChan full on room %q", prevId)
			}
		}
	}

	room, ok := cs.getRoom(roomId)
	if !ok {
		persisted, err := cs.store.GetRoom(context.Background(), roomId)
		if err != nil {
			msg.conn.sendFrame(ErrorMessageFrame("Room not found"))
			return
		}

		room = newRoom(persisted.RoomId, persisted.CreatorUserId, persisted.WaitingRoomEnabled, cs, cs.store, cs.async, cs.log)

		cs.roomsMu.Lock()
		cs.rooms[roomId] = room
		cs.roomsMu.Unlock()
		cs.metrics.Incr("RoomsCreated")

		go room.run()
	}

	select {
	case room.joinChan <- &joinRequest{conn: msg.conn, roomId: roomId}:
	default:
		cs.log.Printf("joinChan full on room %q", roomId)
		msg.conn.sendFrame(ErrorMessageFrame("Service unavailable"))
	}
}

// Register admits a newly upgraded connection into the server's
// connection registry. Exported so the HTTP layer, which owns the
// websocket upgrade, can hand a Connection off without reaching into
// unexported server state.
func (cs *ChatServer) Register(c *Connection) {
	cs.registerChan <- c
}

// PublishTranslation delivers a translated chat-message variant
// pushed in by the translation webhook into an already-loaded room.
// It reports false if the room isn't currently loaded — there is no
// one to deliver to in that case.
func (cs *ChatServer) PublishTranslation(roomId string, msg roomstore.ChatMessage, translationOf string) bool {
	room, ok := cs.getRoom(roomId)
	if !ok {
		return false
	}

	select {
	case room.translateChan <- &translateJob{msg: msg, translationOf: translationOf}:
		return true
	default:
		cs.log.Printf("translateChan full for room %q", roomId)
		return false
	}
}

func (cs *ChatServer) getConnection(id string) (*Connection, bool) {
	cs.connMu.RLock()
	defer cs.connMu.RUnlock()
	conn, ok := cs.connections[id]
	return conn, ok
}

func (cs *ChatServer) getRoom(roomId string) (*Room, bool) {
	cs.roomsMu.RLock()
	defer cs.roomsMu.RUnlock()
	r, ok := cs.rooms[roomId]
	return r, ok
}

func (cs *ChatServer) newMessageId() string {
	return idgen.MustShortID(6)
}

// ActiveRoomCount reports the number of currently loaded rooms, for
// the REST health check.
func (cs *ChatServer) ActiveRoomCount() int {
	cs.roomsMu.RLock()
	defer cs.roomsMu.RUnlock()
	return len(cs.rooms)
}

// MetricsHandler exposes the broker's counters for the HTTP layer to
// mount at /debug/vars, without the api package reaching into
// ChatServer's unexported metrics field directly.
func (cs *ChatServer) MetricsHandler() http.HandlerFunc {
	if m, ok := cs.metrics.(*stats.Metrics); ok {
		return m.Handler()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}
}

// Shutdown drains all connections and waits for every room actor to
// exit before returning.
func (cs *ChatServer) Shutdown() {
	cs.log.Println("received shutdown signal")

	cs.connMu.RLock()
	conns := make([]*Connection, 0, len(cs.connections))
	for _, c := range cs.connections {
		conns = append(conns, c)
	}
	cs.connMu.RUnlock()

	for _, c := range conns {
		c.stopClient()
	}

	close(cs.stop)
	<-cs.done

	cs.async.Stop()
	cs.metrics.Stop()
}
