package roomstore

import (
	"context"
	"strings"
	"time"

	"github.com/npezzotti/rtc-broker/internal/brokererr"
	"github.com/npezzotti/rtc-broker/internal/idgen"
)

const (
	roomIdLength     = 8
	maxCreateRetries = 5
	maxChatLogSize   = 500
	maxRoomNameLen   = 50
	maxChatTextLen   = 1000
	maxEmojiLen      = 10
)

// Store is the business-logic layer over Repository: it owns room id
// generation, input validation and chat-log capping, leaving storage
// mechanics to the underlying Repository implementation.
type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// CreateRoom mints a fresh room id and retries on collision.
func (s *Store) CreateRoom(ctx context.Context, name string, creatorUserId int, opts CreateRoomOptions) (Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxRoomNameLen {
		return Room{}, brokererr.NewValidationError("room name must be 1-%d characters", maxRoomNameLen)
	}

	var lastErr error
	for attempt := 0; attempt < maxCreateRetries; attempt++ {
		roomId, err := idgen.RoomID(roomIdLength)
		if err != nil {
			return Room{}, err
		}

		room := Room{
			RoomId:             roomId,
			Name:               name,
			CreatorUserId:      creatorUserId,
			IsPrivate:          opts.IsPrivate,
			WaitingRoomEnabled: opts.WaitingRoomEnabled,
			WaitingRoom:        []int{},
			ChatMessages:       []ChatMessage{},
			CreatedAt:          time.Now(),
		}

		if err := s.repo.InsertRoom(ctx, room); err != nil {
			if err == ErrDuplicateRoomId {
				lastErr = err
				continue
			}
			return Room{}, err
		}

		return room, nil
	}

	return Room{}, brokererr.NewConflict("failed to allocate a unique room id: " + lastErr.Error())
}

func (s *Store) GetRoom(ctx context.Context, roomId string) (Room, error) {
	room, err := s.repo.FindRoom(ctx, roomId)
	if err == ErrRoomNotFound {
		return Room{}, brokererr.NewNotFound("room not found")
	}
	return room, err
}

// AppendChat validates and persists a chat message, capping the
// document's log to maxChatLogSize entries to stay well under
// MongoDB's per-document size limit.
func (s *Store) AppendChat(ctx context.Context, roomId string, msg ChatMessage) error {
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Text == "" || len(msg.Text) > maxChatTextLen {
		return brokererr.NewValidationError("chat text must be 1-%d characters", maxChatTextLen)
	}
	if msg.Reactions == nil {
		msg.Reactions = map[string][]int{}
	}

	err := s.repo.PushChatMessage(ctx, roomId, msg, maxChatLogSize)
	if err == ErrRoomNotFound {
		return brokererr.NewNotFound("room not found")
	}
	return err
}

// ToggleReaction flips the caller's membership in the given emoji's
// reactor set, returning whether the reaction is now present.
func (s *Store) ToggleReaction(ctx context.Context, roomId, messageId, emoji string, userId int) (bool, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiLen {
		return false, brokererr.NewValidationError("emoji must be 1-%d characters", maxEmojiLen)
	}

	added, err := s.repo.ToggleReactionUser(ctx, roomId, messageId, emoji, userId)
	if err == ErrRoomNotFound {
		return false, brokererr.NewNotFound("room not found")
	}
	return added, err
}

func (s *Store) UpdateWaitingRoom(ctx context.Context, roomId string, userIds []int) error {
	err := s.repo.SetWaitingRoom(ctx, roomId, userIds)
	if err == ErrRoomNotFound {
		return brokererr.NewNotFound("room not found")
	}
	return err
}

func (s *Store) ListRoomsForUser(ctx context.Context, userId int) ([]Room, error) {
	return s.repo.FindRoomsByCreator(ctx, userId)
}

func (s *Store) DeleteRoom(ctx context.Context, roomId string) error {
	return s.repo.DeleteRoom(ctx, roomId)
}
