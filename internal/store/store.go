package store

import (
	"context"

	"github.com/ce-phus/atlas-path-relocation/internal/models"
)

// PageSize is the fixed page size for the live message feed.
const PageSize = 50

// ConversationStore owns the pairwise conversation records. GetOrCreate
// canonicalizes the pair before lookup so call order never matters.
type ConversationStore interface {
	GetOrCreate(ctx context.Context, userA, userB string) (conv *models.Conversation, created bool, err error)
	// Touch advances updated_at to now. A duplicate touch is harmless.
	Touch(ctx context.Context, conversationID string) error
	SetActive(ctx context.Context, conversationID string, active bool) error
}

type CreateMessage struct {
	ConversationID string
	SenderID       string
	Text           string
	ImageURL       string
	ThumbnailURL   string
}

// MessageStore owns message records and their status lifecycle. Status only
// moves forward: sent -> delivered -> read.
type MessageStore interface {
	Create(ctx context.Context, p CreateMessage) (*models.Message, error)
	Get(ctx context.Context, id string) (*models.Message, error)
	// ListRecent returns the newest messages in chronological order,
	// excluding messages soft-deleted for viewerID.
	ListRecent(ctx context.Context, conversationID, viewerID string, limit int) ([]*models.Message, error)
	// ListBefore returns messages strictly older than beforeID, newest first,
	// with the same exclusion rule.
	ListBefore(ctx context.Context, conversationID, viewerID, beforeID string, limit int) ([]*models.Message, error)
	// MarkRead transitions messages received by viewerID from sent/delivered
	// to read and reports how many actually changed. Idempotent.
	MarkRead(ctx context.Context, conversationID, viewerID string, messageIDs []string) (int64, error)
	MarkDelivered(ctx context.Context, id string) error
	// Delete removes the record for everyone (sender only) or adds
	// requesterID to the soft-delete set. Returns false when id is unknown.
	Delete(ctx context.Context, id, requesterID string, forEveryone bool) (bool, error)
	UpdateText(ctx context.Context, id, requesterID, newText string) (bool, error)
}

// PresenceStore tracks per-user online state and chat preferences.
// All operations are idempotent; records are created on first reference.
type PresenceStore interface {
	Profile(ctx context.Context, userID string) (*models.ChatProfile, error)
	SetOnline(ctx context.Context, userID string, online bool) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	SetCustomStatus(ctx context.Context, userID, status string) error
}

// UserDirectory is the narrow identity lookup the chat core consumes from
// the CRM. It never writes.
type UserDirectory interface {
	ByID(ctx context.Context, id string) (*models.User, error)
	ByUsername(ctx context.Context, username string) (*models.User, error)
}
