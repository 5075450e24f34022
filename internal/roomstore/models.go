package roomstore

import "time"

// ChatMessage is embedded in Room's append-only chatMessages log.
// Reactions maps an emoji to the set of userIds that reacted with it;
// Mongo's $addToSet/$pull give us that set semantic without a join
// table.
type ChatMessage struct {
	MessageId string         `bson:"message_id" json:"message_id"`
	UserId    *int           `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Username  string         `bson:"username" json:"username"`
	Text      string         `bson:"text" json:"text"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	Reactions map[string][]int `bson:"reactions" json:"reactions"`
}

// Room is the durable document persisted by the Room Store.
type Room struct {
	RoomId             string        `bson:"room_id" json:"room_id"`
	Name               string        `bson:"name" json:"name"`
	CreatorUserId      int           `bson:"creator_user_id" json:"creator_user_id"`
	IsPrivate          bool          `bson:"is_private" json:"is_private"`
	WaitingRoomEnabled bool          `bson:"waiting_room_enabled" json:"waiting_room_enabled"`
	WaitingRoom        []int         `bson:"waiting_room" json:"waiting_room"`
	ChatMessages       []ChatMessage `bson:"chat_messages" json:"chat_messages"`
	CreatedAt          time.Time     `bson:"created_at" json:"created_at"`
}

// CreateRoomOptions carries the optional fields from the REST create
// body (isPrivate/waitingRoomEnabled).
type CreateRoomOptions struct {
	IsPrivate          bool
	WaitingRoomEnabled bool
}
