package models

import "time"

// ChatProfile is the per-user chat state: presence plus visibility and
// notification preferences. Created lazily on first reference, never deleted.
type ChatProfile struct {
	UserID       string    `bson:"_id" json:"user_id"`
	IsOnline     bool      `bson:"is_online" json:"is_online"`
	LastSeen     time.Time `bson:"last_seen,omitempty" json:"last_seen,omitempty"`
	CustomStatus string    `bson:"custom_status,omitempty" json:"custom_status,omitempty"`

	ShowReadReceipts     bool `bson:"show_read_receipts" json:"show_read_receipts"`
	ShowTypingIndicators bool `bson:"show_typing_indicators" json:"show_typing_indicators"`
	NotifyNewMessages    bool `bson:"notify_new_messages" json:"notify_new_messages"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// User is the narrow identity view the chat core reads from the CRM's user
// directory. Account management lives elsewhere.
type User struct {
	ID       string `bson:"_id" json:"id"`
	Username string `bson:"username" json:"username"`
}
