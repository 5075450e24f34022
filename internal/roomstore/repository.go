package roomstore

import (
	"context"
	"errors"
)

// ErrDuplicateRoomId signals a unique-constraint collision on
// room_id; Store retries with a freshly generated ID.
var ErrDuplicateRoomId = errors.New("roomstore: duplicate room id")

// ErrRoomNotFound signals no document matches the given room_id.
var ErrRoomNotFound = errors.New("roomstore: room not found")

// Repository is the low-level document-store contract. MongoRepository
// is the production implementation; MockRepository backs tests.
type Repository interface {
	InsertRoom(ctx context.Context, room Room) error
	FindRoom(ctx context.Context, roomId string) (Room, error)
	PushChatMessage(ctx context.Context, roomId string, msg ChatMessage, capAt int) error
	ToggleReactionUser(ctx context.Context, roomId, messageId, emoji string, userId int) (added bool, err error)
	SetWaitingRoom(ctx context.Context, roomId string, userIds []int) error
	FindRoomsByCreator(ctx context.Context, userId int) ([]Room, error)
	DeleteRoom(ctx context.Context, roomId string) error
}
