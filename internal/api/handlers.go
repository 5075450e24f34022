package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/rtc-broker/internal/credentials"
	"github.com/npezzotti/rtc-broker/internal/idgen"
	"github.com/npezzotti/rtc-broker/internal/roomstore"
	"github.com/npezzotti/rtc-broker/internal/server"
)

func writeJson(logger *log.Logger, w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Printf("json encode: %v", err)
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string                  `json:"token"`
	User  credentials.PublicUser `json:"user"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	user, token, err := s.creds.Register(req.Email, req.Username, req.Password)
	if err != nil {
		errResp := translateError(err)
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	writeJson(s.log, w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	user, token, err := s.creds.Login(req.Email, req.Password)
	if err != nil {
		errResp := translateError(err)
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	writeJson(s.log, w, http.StatusOK, authResponse{Token: token, User: user})
}

type createRoomRequest struct {
	Name               string `json:"name"`
	IsPrivate          bool   `json:"isPrivate"`
	WaitingRoomEnabled bool   `json:"waitingRoomEnabled"`
}

// createRoom implements POST /api/rooms. The room model has no
// password-gated join path, only waitingRoomEnabled and isPrivate (an
// advisory flag a REST listing could filter on).
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.rooms.CreateRoom(r.Context(), req.Name, userId, roomstore.CreateRoomOptions{
		IsPrivate:          req.IsPrivate,
		WaitingRoomEnabled: req.WaitingRoomEnabled,
	})
	if err != nil {
		errResp := translateError(err)
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	writeJson(s.log, w, http.StatusCreated, map[string]any{"room": room})
}

// getRoom implements GET /api/rooms/:roomId. Auth is optional here —
// this only ever returns public room metadata, never the waiting
// room's membership or anything a non-participant shouldn't see.
func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")
	if roomId == "" || len(roomId) > 128 {
		errResp := NewBadRequestError()
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.rooms.GetRoom(r.Context(), roomId)
	if err != nil {
		errResp := translateError(err)
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	room.WaitingRoom = nil
	writeJson(s.log, w, http.StatusOK, map[string]any{"room": room})
}

// listMyRooms lets a REST client enumerate the rooms it created.
func (s *Server) listMyRooms(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	rooms, err := s.rooms.ListRoomsForUser(r.Context(), userId)
	if err != nil {
		errResp := translateError(err)
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	writeJson(s.log, w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJson(s.log, w, http.StatusOK, map[string]any{
		"status":      "ok",
		"activeRooms": s.cs.ActiveRoomCount(),
	})
}

const maxWebhookBodyBytes = 64 * 1024

type translateWebhookRequest struct {
	RoomId    string `json:"roomId"`
	MessageId string `json:"messageId"`
	Username  string `json:"username"`
	Text      string `json:"text"`
}

func verifyWebhookSignature(secret, body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// webhookTranslate is the one unauthenticated-but-signed REST
// surface: an external translation service pushes a translated
// variant of a chat message back into the room, fanned out as
// chat-message with translationOf set. The bearer-token auth contract
// does not apply here; the request is authenticated by HMAC signature
// instead.
func (s *Server) webhookTranslate(w http.ResponseWriter, r *http.Request) {
	result, err := s.webhookLimiter.Allow(r.Context(), "translate")
	if err != nil {
		s.log.Println("webhook rate limit check:", err)
	} else if !result.Allowed {
		errResp := NewTooManyRequestsError()
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes+1))
	if err != nil || len(body) > maxWebhookBodyBytes {
		errResp := NewBadRequestError()
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	if !verifyWebhookSignature(s.webhookSecret, body, r.Header.Get("X-Signature")) {
		errResp := NewUnauthorizedError()
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	var req translateWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil || req.RoomId == "" || req.Text == "" {
		errResp := NewBadRequestError()
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	msg := roomstore.ChatMessage{
		MessageId: idgen.MustShortID(6),
		Username:  req.Username,
		Text:      req.Text,
		Timestamp: time.Now().UTC().Round(time.Millisecond),
	}

	if !s.cs.PublishTranslation(req.RoomId, msg, req.MessageId) {
		errResp := NewNotFoundError()
		writeJson(s.log, w, errResp.StatusCode, errResp)
		return
	}

	writeJson(s.log, w, http.StatusOK, map[string]string{"status": "ok"})
}

// resolveSocketIdentity handles the socket-handshake half of auth: a
// bearer token in the Authorization header or, failing that, a token
// query parameter (browsers can't set custom headers on
// a WebSocket handshake) resolves to an authenticated identity;
// absence or an invalid token falls back to a first-class guest.
func (s *Server) resolveSocketIdentity(r *http.Request) (userId *int, username string, authenticated bool) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	if token != "" {
		if uid, err := s.creds.VerifyToken(token); err == nil {
			name := "User_" + strconv.Itoa(uid)
			if user, err := s.creds.GetUser(uid); err == nil {
				name = user.Username
			}
			return &uid, name, true
		}
	}

	return nil, "Guest_" + idgen.MustShortID(3), false
}

// serveWs handles the WebSocket upgrade. The upgraded connection is
// handed to ChatServer.Register and its read/write pumps are started;
// everything past this point follows the connection's normal
// lifecycle.
func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, username, authenticated := s.resolveSocketIdentity(r)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return slices.Contains(s.allowedOrigins, origin) || slices.Contains(s.allowedOrigins, "*")
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("ws upgrade:", err)
		return
	}

	c := server.NewConnection(uuid.NewString(), userId, username, authenticated, conn, s.cs, s.log)

	s.cs.Register(c)
	go c.Write()
	go c.Read()
}
