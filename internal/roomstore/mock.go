package roomstore

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRepository backs Store's unit tests.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) InsertRoom(ctx context.Context, room Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockRepository) FindRoom(ctx context.Context, roomId string) (Room, error) {
	args := m.Called(ctx, roomId)
	room, _ := args.Get(0).(Room)
	return room, args.Error(1)
}

func (m *MockRepository) PushChatMessage(ctx context.Context, roomId string, msg ChatMessage, capAt int) error {
	args := m.Called(ctx, roomId, msg, capAt)
	return args.Error(0)
}

func (m *MockRepository) ToggleReactionUser(ctx context.Context, roomId, messageId, emoji string, userId int) (bool, error) {
	args := m.Called(ctx, roomId, messageId, emoji, userId)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) SetWaitingRoom(ctx context.Context, roomId string, userIds []int) error {
	args := m.Called(ctx, roomId, userIds)
	return args.Error(0)
}

func (m *MockRepository) FindRoomsByCreator(ctx context.Context, userId int) ([]Room, error) {
	args := m.Called(ctx, userId)
	rooms, _ := args.Get(0).([]Room)
	return rooms, args.Error(1)
}

func (m *MockRepository) DeleteRoom(ctx context.Context, roomId string) error {
	args := m.Called(ctx, roomId)
	return args.Error(0)
}
