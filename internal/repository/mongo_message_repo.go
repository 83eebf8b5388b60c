package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tradechat-backend/internal/models"
)

const MessagesCollection = "chats"

type messageDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ConversationID string             `bson:"conversationId"`
	User           string             `bson:"user,omitempty"`
	Sender         string             `bson:"sender"`
	Text           string             `bson:"text"`
	Timestamp      time.Time          `bson:"timestamp"`
	Edited         bool               `bson:"edited,omitempty"`
}

func (d *messageDoc) toModel() *models.Message {
	return &models.Message{
		ID:             d.ID.Hex(),
		ConversationID: d.ConversationID,
		UserID:         d.User,
		Sender:         d.Sender,
		Text:           d.Text,
		Timestamp:      d.Timestamp,
		Edited:         d.Edited,
	}
}

type MongoMessageRepo struct {
	coll *mongo.Collection
}

func NewMongoMessageRepo(db *mongo.Database) *MongoMessageRepo {
	return &MongoMessageRepo{coll: db.Collection(MessagesCollection)}
}

// ownerFilter matches a user's messages, or ownerless ones when owner is empty.
// A nil value matches both a missing field and an explicit null.
func ownerFilter(owner string) bson.E {
	if owner == "" {
		return bson.E{Key: "user", Value: nil}
	}
	return bson.E{Key: "user", Value: owner}
}

var conversationOrder = bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}

func (r *MongoMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	// BSON dates carry millisecond precision
	msg.Timestamp = msg.Timestamp.Truncate(time.Millisecond)

	doc := messageDoc{
		ID:             primitive.NewObjectID(),
		ConversationID: msg.ConversationID,
		User:           msg.UserID,
		Sender:         msg.Sender,
		Text:           msg.Text,
		Timestamp:      msg.Timestamp,
		Edited:         msg.Edited,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return err
	}
	msg.ID = doc.ID.Hex()
	return nil
}

func (r *MongoMessageRepo) GetByID(ctx context.Context, messageID, owner string) (*models.Message, error) {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, ErrNotFound
	}

	var doc messageDoc
	err = r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}, ownerFilter(owner)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

func (r *MongoMessageRepo) ListByConversation(ctx context.Context, conversationID, owner string) ([]*models.Message, error) {
	filter := bson.D{{Key: "conversationId", Value: conversationID}, ownerFilter(owner)}
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(conversationOrder))
	if err != nil {
		return nil, err
	}

	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	msgs := make([]*models.Message, 0, len(docs))
	for i := range docs {
		msgs = append(msgs, docs[i].toModel())
	}
	return msgs, nil
}

// ListConversations groups on the server. Groups with equal updatedAt come
// back in whatever order $group emits them.
func (r *MongoMessageRepo) ListConversations(ctx context.Context, owner string) ([]*models.Conversation, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{ownerFilter(owner)}}},
		{{Key: "$sort", Value: conversationOrder}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$conversationId"},
			{Key: "lastMessage", Value: bson.D{{Key: "$last", Value: "$text"}}},
			{Key: "updatedAt", Value: bson.D{{Key: "$last", Value: "$timestamp"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "updatedAt", Value: -1}}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ConversationID string    `bson:"_id"`
		LastMessage    string    `bson:"lastMessage"`
		UpdatedAt      time.Time `bson:"updatedAt"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	convs := make([]*models.Conversation, 0, len(rows))
	for _, row := range rows {
		convs = append(convs, &models.Conversation{
			ConversationID: row.ConversationID,
			LastMessage:    row.LastMessage,
			UpdatedAt:      row.UpdatedAt,
		})
	}
	return convs, nil
}

func (r *MongoMessageRepo) UpdateText(ctx context.Context, conversationID, messageID, owner, text string) (*models.Message, error) {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, ErrNotFound
	}

	filter := bson.D{
		{Key: "_id", Value: oid},
		{Key: "conversationId", Value: conversationID},
		ownerFilter(owner),
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "text", Value: text},
		{Key: "edited", Value: true},
	}}}

	var doc messageDoc
	err = r.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

func (r *MongoMessageRepo) Delete(ctx context.Context, messageID, owner string) error {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return ErrNotFound
	}

	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}, ownerFilter(owner)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoMessageRepo) DeleteConversation(ctx context.Context, conversationID, owner string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.D{{Key: "conversationId", Value: conversationID}, ownerFilter(owner)})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
