package clients

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Pranav24205/lydia/internal/fsstore"
	"github.com/Pranav24205/lydia/internal/telegram"
)

// FileStore keeps one JSON file per chat under <dir>/chats and one per user
// under <dir>/users. Writes go through an advisory lock so concurrent workers
// handling jobs for the same chat do not lose updates.
type FileStore struct {
	dir string
	now func() time.Time
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

func (s *FileStore) chatPath(chatID int64) string {
	return filepath.Join(s.dir, "chats", strconv.FormatInt(chatID, 10)+".json")
}

func (s *FileStore) chatLockPath(chatID int64) string {
	return filepath.Join(s.dir, "locks", "chat-"+strconv.FormatInt(chatID, 10)+".lck")
}

func (s *FileStore) userPath(userID int64) string {
	return filepath.Join(s.dir, "users", strconv.FormatInt(userID, 10)+".json")
}

func (s *FileStore) userLockPath(userID int64) string {
	return filepath.Join(s.dir, "locks", "user-"+strconv.FormatInt(userID, 10)+".lck")
}

func (s *FileStore) RegisterClient(ctx context.Context, chat *telegram.Chat, user *telegram.User) (*Record, error) {
	if chat == nil {
		return nil, fmt.Errorf("clients: register client: nil chat")
	}
	var rec Record
	err := fsstore.WithLock(ctx, s.chatLockPath(chat.ID), func() error {
		found, err := fsstore.ReadJSON(s.chatPath(chat.ID), &rec)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if !found {
			rec = Record{ChatID: chat.ID, CreatedAt: now}
		}
		rec.ChatType = chat.Type
		if user != nil {
			rec.UserID = user.ID
		}
		rec.UpdatedAt = now
		return fsstore.WriteJSONAtomic(s.chatPath(chat.ID), &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("clients: register chat %d: %w", chat.ID, err)
	}
	if user != nil {
		if err := s.RegisterUser(ctx, user); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func (s *FileStore) RegisterUser(ctx context.Context, user *telegram.User) error {
	if user == nil {
		return fmt.Errorf("clients: register user: nil user")
	}
	err := fsstore.WithLock(ctx, s.userLockPath(user.ID), func() error {
		var rec UserRecord
		found, err := fsstore.ReadJSON(s.userPath(user.ID), &rec)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if !found {
			rec = UserRecord{UserID: user.ID, CreatedAt: now}
		}
		rec.Username = user.Username
		rec.FirstName = user.FirstName
		rec.LanguageCode = user.LanguageCode
		rec.IsBot = user.IsBot
		rec.UpdatedAt = now
		return fsstore.WriteJSONAtomic(s.userPath(user.ID), &rec)
	})
	if err != nil {
		return fmt.Errorf("clients: register user %d: %w", user.ID, err)
	}
	return nil
}

func (s *FileStore) UpdateClient(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ChatID == 0 {
		return fmt.Errorf("clients: update client: missing chat id")
	}
	err := fsstore.WithLock(ctx, s.chatLockPath(rec.ChatID), func() error {
		rec.UpdatedAt = s.now().UTC()
		return fsstore.WriteJSONAtomic(s.chatPath(rec.ChatID), rec)
	})
	if err != nil {
		return fmt.Errorf("clients: update chat %d: %w", rec.ChatID, err)
	}
	return nil
}
