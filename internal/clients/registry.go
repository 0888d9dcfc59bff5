// Package clients tracks the per-chat client records the bot has seen:
// which chat, which user last wrote, the chat's default language, and the
// chat-AI session currently bound to it.
package clients

import (
	"context"
	"time"

	"github.com/Pranav24205/lydia/internal/session"
	"github.com/Pranav24205/lydia/internal/telegram"
)

// Record is the persisted state for one chat.
type Record struct {
	ChatID      int64        `json:"chat_id"`
	ChatType    string       `json:"chat_type,omitempty"`
	UserID      int64        `json:"user_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	SessionData session.Data `json:"session_data"`
}

// UserRecord is the persisted state for one user, kept for senders and for
// the original authors of forwarded messages.
type UserRecord struct {
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username,omitempty"`
	FirstName    string    `json:"first_name,omitempty"`
	LanguageCode string    `json:"language_code,omitempty"`
	IsBot        bool      `json:"is_bot,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Registry is the store the update processor works against.
type Registry interface {
	// RegisterClient creates or refreshes the record for the chat and
	// returns the current state.
	RegisterClient(ctx context.Context, chat *telegram.Chat, user *telegram.User) (*Record, error)

	// RegisterUser creates or refreshes a standalone user record.
	RegisterUser(ctx context.Context, user *telegram.User) error

	// UpdateClient persists a modified chat record.
	UpdateClient(ctx context.Context, rec *Record) error
}
