package roomstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository is the production Repository, a dedicated
// connection type against Mongo's document model rather than
// relational tables: a room's waiting list and chat log are naturally
// nested documents, not rows needing a join.
type MongoRepository struct {
	client *mongo.Client
	rooms  *mongo.Collection
}

func NewMongoRepository(ctx context.Context, uri, dbName string) (*MongoRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	rooms := client.Database(dbName).Collection("rooms")

	repo := &MongoRepository{client: client, rooms: rooms}
	if err := repo.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	return repo, nil
}

func (r *MongoRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.rooms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "room_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoRepository) Close(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Disconnect(ctx)
}

func (r *MongoRepository) InsertRoom(ctx context.Context, room Room) error {
	if room.WaitingRoom == nil {
		room.WaitingRoom = []int{}
	}
	if room.ChatMessages == nil {
		room.ChatMessages = []ChatMessage{}
	}

	_, err := r.rooms.InsertOne(ctx, room)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateRoomId
		}
		return fmt.Errorf("insert room: %w", err)
	}

	return nil
}

func (r *MongoRepository) FindRoom(ctx context.Context, roomId string) (Room, error) {
	var room Room
	err := r.rooms.FindOne(ctx, bson.M{"room_id": roomId}).Decode(&room)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return Room{}, ErrRoomNotFound
		}
		return Room{}, fmt.Errorf("find room: %w", err)
	}

	return room, nil
}

// PushChatMessage appends a message and trims the log to the most
// recent capAt entries in the same update.
func (r *MongoRepository) PushChatMessage(ctx context.Context, roomId string, msg ChatMessage, capAt int) error {
	if msg.Reactions == nil {
		msg.Reactions = map[string][]int{}
	}

	update := bson.M{
		"$push": bson.M{
			"chat_messages": bson.M{
				"$each":  bson.A{msg},
				"$slice": -capAt,
			},
		},
	}

	res, err := r.rooms.UpdateOne(ctx, bson.M{"room_id": roomId}, update)
	if err != nil {
		return fmt.Errorf("push chat message: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrRoomNotFound
	}

	return nil
}

// ToggleReactionUser adds userId to the reaction's set if absent, or
// removes it if present.
func (r *MongoRepository) ToggleReactionUser(ctx context.Context, roomId, messageId, emoji string, userId int) (bool, error) {
	room, err := r.FindRoom(ctx, roomId)
	if err != nil {
		return false, err
	}

	present := false
	for _, m := range room.ChatMessages {
		if m.MessageId != messageId {
			continue
		}
		for _, uid := range m.Reactions[emoji] {
			if uid == userId {
				present = true
			}
		}
	}

	filter := bson.M{"room_id": roomId, "chat_messages.message_id": messageId}
	arrayFilter := options.ArrayFilters{Filters: bson.A{bson.M{"m.message_id": messageId}}}

	var update bson.M
	if present {
		update = bson.M{"$pull": bson.M{fmt.Sprintf("chat_messages.$[m].reactions.%s", emoji): userId}}
	} else {
		update = bson.M{"$addToSet": bson.M{fmt.Sprintf("chat_messages.$[m].reactions.%s", emoji): userId}}
	}

	_, err = r.rooms.UpdateOne(ctx, filter, update, options.Update().SetArrayFilters(arrayFilter))
	if err != nil {
		return false, fmt.Errorf("toggle reaction: %w", err)
	}

	return !present, nil
}

func (r *MongoRepository) SetWaitingRoom(ctx context.Context, roomId string, userIds []int) error {
	if userIds == nil {
		userIds = []int{}
	}

	res, err := r.rooms.UpdateOne(ctx,
		bson.M{"room_id": roomId},
		bson.M{"$set": bson.M{"waiting_room": userIds}},
	)
	if err != nil {
		return fmt.Errorf("set waiting room: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrRoomNotFound
	}

	return nil
}

func (r *MongoRepository) FindRoomsByCreator(ctx context.Context, userId int) ([]Room, error) {
	cur, err := r.rooms.Find(ctx, bson.M{"creator_user_id": userId})
	if err != nil {
		return nil, fmt.Errorf("find rooms by creator: %w", err)
	}
	defer cur.Close(ctx)

	var rooms []Room
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}

	return rooms, nil
}

func (r *MongoRepository) DeleteRoom(ctx context.Context, roomId string) error {
	_, err := r.rooms.DeleteOne(ctx, bson.M{"room_id": roomId})
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}
