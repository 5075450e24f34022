package server

import (
	"encoding/json"
	"fmt"

	"github.com/npezzotti/rtc-broker/internal/roomstore"
)

// Frame is the wire shape for every broker->client message: a named
// event plus a single object argument. Outbound messages are built
// with the constructors below (one per outbound event) rather than
// hand-assembled.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// envelope is the wire shape of an inbound client frame before it is
// resolved into a ClientMessage. Decoding happens once at the edge so
// downstream dispatch is total over a closed set of event kinds,
// rather than a dynamic string-keyed handler lookup.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ClientMessage is the typed tagged union of every inbound event.
// Exactly one payload field is non-nil after decodeClientMessage.
type ClientMessage struct {
	JoinRoom         *JoinRoomPayload
	LeaveRoom        *LeaveRoomPayload
	Offer            *OfferPayload
	Answer           *AnswerPayload
	IceCandidate     *CandidatePayload
	ChatMessage      *ChatMessagePayload
	ChatReaction     *ChatReactionPayload
	ToggleMute       *ToggleMutePayload
	ToggleVideo      *ToggleVideoPayload
	ScreenShareStart *ScreenShareStartPayload
	ScreenShareStop  *ScreenShareStopPayload
	HandRaise        *HandRaisePayload
	ApproveUser      *ApproveUserPayload
	RejectUser       *RejectUserPayload
	CreateBroadcast  *CreateBroadcastPayload
	JoinBroadcast    *JoinBroadcastPayload

	conn *Connection
}

type JoinRoomPayload struct {
	RoomId string `json:"roomId"`
}

type LeaveRoomPayload struct{}

type OfferPayload struct {
	To    string          `json:"to"`
	Offer json.RawMessage `json:"offer"`
}

type AnswerPayload struct {
	To     string          `json:"to"`
	Answer json.RawMessage `json:"answer"`
}

type CandidatePayload struct {
	To        string          `json:"to"`
	Candidate json.RawMessage `json:"candidate"`
}

type ChatMessagePayload struct {
	RoomId  string `json:"roomId"`
	Message string `json:"message"`
}

type ChatReactionPayload struct {
	RoomId    string `json:"roomId"`
	MessageId string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type ToggleMutePayload struct {
	RoomId string `json:"roomId"`
	Muted  bool   `json:"muted"`
}

type ToggleVideoPayload struct {
	RoomId   string `json:"roomId"`
	VideoOff bool   `json:"videoOff"`
}

type ScreenShareStartPayload struct {
	RoomId string `json:"roomId"`
}

type ScreenShareStopPayload struct {
	RoomId string `json:"roomId"`
}

type HandRaisePayload struct {
	RoomId string `json:"roomId"`
	Raised bool   `json:"raised"`
}

type ApproveUserPayload struct {
	RoomId string `json:"roomId"`
	UserId int    `json:"userId"`
}

type RejectUserPayload struct {
	RoomId string `json:"roomId"`
	UserId int    `json:"userId"`
}

type CreateBroadcastPayload struct {
	BroadcastId string `json:"broadcastId"`
}

type JoinBroadcastPayload struct {
	BroadcastId string `json:"broadcastId"`
}

// decodeClientMessage resolves a raw inbound frame into exactly one
// ClientMessage payload. An unrecognized event name is rejected here,
// once, rather than leaking into every handler below.
func decodeClientMessage(raw []byte) (*ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	msg := &ClientMessage{}

	unmarshalInto := func(v any) error {
		if len(env.Data) == 0 {
			return nil
		}
		return json.Unmarshal(env.Data, v)
	}

	var err error
	switch env.Event {
	case "join-room":
		p := &JoinRoomPayload{}
		err = unmarshalInto(p)
		msg.JoinRoom = p
	case "leave-room":
		msg.LeaveRoom = &LeaveRoomPayload{}
	case "offer":
		p := &OfferPayload{}
		err = unmarshalInto(p)
		msg.Offer = p
	case "answer":
		p := &AnswerPayload{}
		err = unmarshalInto(p)
		msg.Answer = p
	case "ice-candidate":
		p := &CandidatePayload{}
		err = unmarshalInto(p)
		msg.IceCandidate = p
	case "chat-message":
		p := &ChatMessagePayload{}
		err = unmarshalInto(p)
		msg.ChatMessage = p
	case "chat-reaction":
		p := &ChatReactionPayload{}
		err = unmarshalInto(p)
		msg.ChatReaction = p
	case "toggle-mute":
		p := &ToggleMutePayload{}
		err = unmarshalInto(p)
		msg.ToggleMute = p
	case "toggle-video":
		p := &ToggleVideoPayload{}
		err = unmarshalInto(p)
		msg.ToggleVideo = p
	case "screen-share-start":
		p := &ScreenShareStartPayload{}
		err = unmarshalInto(p)
		msg.ScreenShareStart = p
	case "screen-share-stop":
		p := &ScreenShareStopPayload{}
		err = unmarshalInto(p)
		msg.ScreenShareStop = p
	case "hand-raise":
		p := &HandRaisePayload{}
		err = unmarshalInto(p)
		msg.HandRaise = p
	case "approve-user":
		p := &ApproveUserPayload{}
		err = unmarshalInto(p)
		msg.ApproveUser = p
	case "reject-user":
		p := &RejectUserPayload{}
		err = unmarshalInto(p)
		msg.RejectUser = p
	case "create-broadcast":
		p := &CreateBroadcastPayload{}
		err = unmarshalInto(p)
		msg.CreateBroadcast = p
	case "join-broadcast":
		p := &JoinBroadcastPayload{}
		err = unmarshalInto(p)
		msg.JoinBroadcast = p
	default:
		return nil, fmt.Errorf("unrecognized event %q", env.Event)
	}

	if err != nil {
		return nil, fmt.Errorf("malformed payload for event %q: %w", env.Event, err)
	}

	return msg, nil
}

// ParticipantInfo is the wire shape of one room participant, used in
// the room-participants event. user-joined carries only the
// connectionId, userId and username, built by UserJoinedFrame.
type ParticipantInfo struct {
	ConnectionId  string `json:"connectionId"`
	UserId        *int   `json:"userId,omitempty"`
	Username      string `json:"username"`
	Muted         bool   `json:"muted"`
	VideoOff      bool   `json:"videoOff"`
	HandRaised    bool   `json:"handRaised"`
	ScreenSharing bool   `json:"screenSharing"`
}

func ErrorMessageFrame(message string) *Frame {
	return &Frame{Event: "error-message", Data: map[string]string{"message": message}}
}

func RoomParticipantsFrame(participants []ParticipantInfo) *Frame {
	return &Frame{Event: "room-participants", Data: participants}
}

func UserJoinedFrame(connectionId string, userId *int, username string) *Frame {
	return &Frame{Event: "user-joined", Data: map[string]any{
		"connectionId": connectionId,
		"userId":       userId,
		"username":     username,
	}}
}

func UserLeftFrame(connectionId, username string) *Frame {
	return &Frame{Event: "user-left", Data: map[string]any{
		"connectionId": connectionId,
		"username":     username,
	}}
}

func OfferFrame(from string, offer json.RawMessage) *Frame {
	return &Frame{Event: "offer", Data: map[string]any{"from": from, "offer": offer}}
}

func AnswerFrame(from string, answer json.RawMessage) *Frame {
	return &Frame{Event: "answer", Data: map[string]any{"from": from, "answer": answer}}
}

func CandidateFrame(from string, candidate json.RawMessage) *Frame {
	return &Frame{Event: "ice-candidate", Data: map[string]any{"from": from, "candidate": candidate}}
}

func ChatMessageFrame(msg roomstore.ChatMessage, translationOf string) *Frame {
	data := map[string]any{
		"messageId": msg.MessageId,
		"userId":    msg.UserId,
		"username":  msg.Username,
		"message":   msg.Text,
		"timestamp": msg.Timestamp,
		"reactions": msg.Reactions,
	}
	if translationOf != "" {
		data["translationOf"] = translationOf
	}
	return &Frame{Event: "chat-message", Data: data}
}

func ChatReactionFrame(messageId, emoji string, userId int, username string) *Frame {
	return &Frame{Event: "chat-reaction", Data: map[string]any{
		"messageId": messageId,
		"emoji":     emoji,
		"userId":    userId,
		"username":  username,
	}}
}

func ChatReactionRemovedFrame(messageId, emoji string, userId int) *Frame {
	return &Frame{Event: "chat-reaction-removed", Data: map[string]any{
		"messageId": messageId,
		"emoji":     emoji,
		"userId":    userId,
	}}
}

func UserToggleMuteFrame(connectionId string, muted bool) *Frame {
	return &Frame{Event: "user-toggle-mute", Data: map[string]any{"connectionId": connectionId, "muted": muted}}
}

func UserToggleVideoFrame(connectionId string, videoOff bool) *Frame {
	return &Frame{Event: "user-toggle-video", Data: map[string]any{"connectionId": connectionId, "videoOff": videoOff}}
}

func UserScreenShareStartFrame(connectionId, username string) *Frame {
	return &Frame{Event: "user-screen-share-start", Data: map[string]any{"connectionId": connectionId, "username": username}}
}

func UserScreenShareStopFrame(connectionId string) *Frame {
	return &Frame{Event: "user-screen-share-stop", Data: map[string]any{"connectionId": connectionId}}
}

func UserHandRaiseFrame(connectionId, username string, raised bool) *Frame {
	return &Frame{Event: "user-hand-raise", Data: map[string]any{
		"connectionId": connectionId,
		"username":     username,
		"raised":       raised,
	}}
}

func WaitingRoomApprovedFrame(roomId string) *Frame {
	return &Frame{Event: "waiting-room-approved", Data: map[string]string{"roomId": roomId}}
}

func WaitingRoomRejectedFrame(roomId string) *Frame {
	return &Frame{Event: "waiting-room-rejected", Data: map[string]string{"roomId": roomId}}
}

func WaitingRoomUpdatedFrame(waitingRoom []int) *Frame {
	return &Frame{Event: "waiting-room-updated", Data: map[string]any{"waitingRoom": waitingRoom}}
}

func BroadcastCreatedFrame(broadcastId string) *Frame {
	return &Frame{Event: "broadcast-created", Data: map[string]string{"broadcastId": broadcastId}}
}

func BroadcastJoinedFrame(publisherConnectionId string) *Frame {
	return &Frame{Event: "broadcast-joined", Data: map[string]string{"publisherConnectionId": publisherConnectionId}}
}

func ViewerJoinedFrame(viewerConnectionId string) *Frame {
	return &Frame{Event: "viewer-joined", Data: map[string]string{"viewerConnectionId": viewerConnectionId}}
}

func BroadcastNotFoundFrame(broadcastId string) *Frame {
	return &Frame{Event: "broadcast-not-found", Data: map[string]string{"broadcastId": broadcastId}}
}
