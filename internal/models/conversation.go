package models

import "time"

// Conversation is the persistent pairing of two users that anchors all
// messages between them. The participant pair is canonicalized so that
// (A,B) and (B,A) always resolve to the same record.
type Conversation struct {
	ID        string    `bson:"_id" json:"id"`
	User1ID   string    `bson:"user1_id" json:"user1_id"`
	User2ID   string    `bson:"user2_id" json:"user2_id"`
	IsActive  bool      `bson:"is_active" json:"is_active"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// CanonicalPair orders two user ids so the lower one is always first.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// OtherUser returns the participant who is not userID.
func (c *Conversation) OtherUser(userID string) string {
	if userID == c.User1ID {
		return c.User2ID
	}
	return c.User1ID
}

func (c *Conversation) HasParticipant(userID string) bool {
	return userID == c.User1ID || userID == c.User2ID
}
