package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ce-phus/atlas-path-relocation/internal/models"
	"github.com/ce-phus/atlas-path-relocation/pkg/apperrors"
)

// Mongo implements the store interfaces on top of MongoDB collections.
type Mongo struct {
	convs    *mongo.Collection
	msgs     *mongo.Collection
	profiles *mongo.Collection
	users    *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		convs:    db.Collection("conversations"),
		msgs:     db.Collection("messages"),
		profiles: db.Collection("chat_profiles"),
		users:    db.Collection("users"),
	}
}

// EnsureIndexes creates the uniqueness and pagination indexes. Called once at
// startup; safe to repeat.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := s.convs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user1_id", Value: 1}, {Key: "user2_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = s.msgs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *Mongo) GetOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, bool, error) {
	u1, u2 := models.CanonicalPair(userA, userB)
	now := time.Now().UTC()
	filter := bson.M{"user1_id": u1, "user2_id": u2}
	res, err := s.convs.UpdateOne(ctx, filter, bson.M{"$setOnInsert": bson.M{
		"_id":        uuid.NewString(),
		"user1_id":   u1,
		"user2_id":   u2,
		"is_active":  true,
		"created_at": now,
		"updated_at": now,
	}}, options.Update().SetUpsert(true))
	if err != nil {
		return nil, false, err
	}
	created := res.UpsertedCount > 0

	var conv models.Conversation
	if err := s.convs.FindOne(ctx, filter).Decode(&conv); err != nil {
		return nil, false, err
	}
	// first contact with an archived conversation reactivates it
	if !conv.IsActive {
		if err := s.SetActive(ctx, conv.ID, true); err != nil {
			return nil, false, err
		}
		conv.IsActive = true
	}
	return &conv, created, nil
}

func (s *Mongo) Touch(ctx context.Context, conversationID string) error {
	res, err := s.convs.UpdateByID(ctx, conversationID,
		bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("conversation not found")
	}
	return nil
}

func (s *Mongo) SetActive(ctx context.Context, conversationID string, active bool) error {
	res, err := s.convs.UpdateByID(ctx, conversationID,
		bson.M{"$set": bson.M{"is_active": active, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("conversation not found")
	}
	return nil
}

func (s *Mongo) Create(ctx context.Context, p CreateMessage) (*models.Message, error) {
	text := strings.TrimSpace(p.Text)
	if text == "" && p.ImageURL == "" {
		return nil, apperrors.Validation("message content is required")
	}
	now := time.Now().UTC()
	m := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		Text:           text,
		ImageURL:       p.ImageURL,
		ThumbnailURL:   p.ThumbnailURL,
		Status:         models.StatusSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.msgs.InsertOne(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Mongo) Get(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	err := s.msgs.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("message not found")
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Mongo) ListRecent(ctx context.Context, conversationID, viewerID string, limit int) ([]*models.Message, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"deleted_for":     bson.M{"$ne": viewerID},
	}
	out, err := s.findMessages(ctx, filter, limit)
	if err != nil {
		return nil, err
	}
	// newest-first fetch, reversed for chronological display
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Mongo) ListBefore(ctx context.Context, conversationID, viewerID, beforeID string, limit int) ([]*models.Message, error) {
	before, err := s.Get(ctx, beforeID)
	if err != nil {
		return nil, err
	}
	filter := bson.M{
		"conversation_id": conversationID,
		"deleted_for":     bson.M{"$ne": viewerID},
		"created_at":      bson.M{"$lt": before.CreatedAt},
	}
	return s.findMessages(ctx, filter, limit)
}

func (s *Mongo) findMessages(ctx context.Context, filter bson.M, limit int) ([]*models.Message, error) {
	cur, err := s.msgs.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

func (s *Mongo) MarkRead(ctx context.Context, conversationID, viewerID string, messageIDs []string) (int64, error) {
	res, err := s.msgs.UpdateMany(ctx, bson.M{
		"_id":             bson.M{"$in": messageIDs},
		"conversation_id": conversationID,
		"sender_id":       bson.M{"$ne": viewerID},
		"status":          bson.M{"$in": []models.MessageStatus{models.StatusSent, models.StatusDelivered}},
	}, bson.M{"$set": bson.M{"status": models.StatusRead, "updated_at": time.Now().UTC()}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *Mongo) MarkDelivered(ctx context.Context, id string) error {
	_, err := s.msgs.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusSent},
		bson.M{"$set": bson.M{"status": models.StatusDelivered, "updated_at": time.Now().UTC()}})
	return err
}

func (s *Mongo) Delete(ctx context.Context, id, requesterID string, forEveryone bool) (bool, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		var ae *apperrors.AppError
		if errors.As(err, &ae) && ae.Code == apperrors.CodeNotFound {
			return false, nil
		}
		return false, err
	}
	if forEveryone {
		if m.SenderID != requesterID {
			return false, apperrors.Forbidden("only the sender can delete for everyone")
		}
		if _, err := s.msgs.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
			return false, err
		}
		return true, nil
	}
	_, err = s.msgs.UpdateByID(ctx, id, bson.M{"$addToSet": bson.M{"deleted_for": requesterID}})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Mongo) UpdateText(ctx context.Context, id, requesterID, newText string) (bool, error) {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return false, apperrors.Validation("new text is required")
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		var ae *apperrors.AppError
		if errors.As(err, &ae) && ae.Code == apperrors.CodeNotFound {
			return false, nil
		}
		return false, err
	}
	if m.SenderID != requesterID {
		return false, apperrors.Forbidden("only the sender can edit a message")
	}
	_, err = s.msgs.UpdateByID(ctx, id,
		bson.M{"$set": bson.M{"text": newText, "updated_at": time.Now().UTC()}})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Mongo) Profile(ctx context.Context, userID string) (*models.ChatProfile, error) {
	now := time.Now().UTC()
	var p models.ChatProfile
	err := s.profiles.FindOneAndUpdate(ctx,
		bson.M{"_id": userID},
		bson.M{"$setOnInsert": bson.M{
			"is_online":              false,
			"show_read_receipts":     true,
			"show_typing_indicators": true,
			"notify_new_messages":    true,
			"created_at":             now,
			"updated_at":             now,
		}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Mongo) SetOnline(ctx context.Context, userID string, online bool) error {
	if _, err := s.Profile(ctx, userID); err != nil {
		return err
	}
	now := time.Now().UTC()
	set := bson.M{"is_online": online, "updated_at": now}
	if !online {
		set["last_seen"] = now
	}
	_, err := s.profiles.UpdateByID(ctx, userID, bson.M{"$set": set})
	return err
}

func (s *Mongo) IsOnline(ctx context.Context, userID string) (bool, error) {
	var p models.ChatProfile
	err := s.profiles.FindOne(ctx, bson.M{"_id": userID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.IsOnline, nil
}

func (s *Mongo) SetCustomStatus(ctx context.Context, userID, status string) error {
	if _, err := s.Profile(ctx, userID); err != nil {
		return err
	}
	_, err := s.profiles.UpdateByID(ctx, userID,
		bson.M{"$set": bson.M{"custom_status": status, "updated_at": time.Now().UTC()}})
	return err
}

func (s *Mongo) ByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Mongo) ByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.users.FindOne(ctx, bson.M{"username": username}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
