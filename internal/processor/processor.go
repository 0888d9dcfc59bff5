// Package processor holds the worker-side logic: it takes update batches off
// the job queue, keeps each chat's AI session alive, and produces replies.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Pranav24205/lydia/internal/analytics"
	"github.com/Pranav24205/lydia/internal/clients"
	"github.com/Pranav24205/lydia/internal/coffeehouse"
	"github.com/Pranav24205/lydia/internal/session"
	"github.com/Pranav24205/lydia/internal/telegram"
)

// User-visible replies.
const (
	replyFallback           = "Yeah, i don't understand this, sorry."
	replySessionCreated     = "A new session has been successfully created"
	replySessionTooNew      = "The session must be older than 60 seconds"
	replyRegistrationFailed = "Oops! Something went wrong, please try again later."
)

const cmdNewSession = "/newsession"

// ChatService is the slice of the chat-AI gateway the processor needs;
// satisfied by *coffeehouse.Client.
type ChatService interface {
	NewSession(ctx context.Context, language string) (*session.Session, error)
	LoadSession(ctx context.Context, id string) (*session.Session, error)
	Think(ctx context.Context, s *session.Session, input string) (string, error)
	UpdateSession(ctx context.Context, s *session.Session) error
}

// ReplySink sends messages back to the chat; satisfied by *telegram.Client.
type ReplySink interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyToMessageID int64) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

type Processor struct {
	Registry clients.Registry
	Chat     ChatService
	Replies  ReplySink
	Metrics  analytics.Tallier
	Logger   *slog.Logger

	// BotUsername and BotName identify the bot for group addressing,
	// filled from getMe at startup.
	BotUsername string
	BotName     string

	// Now is replaceable in tests.
	Now func() time.Time
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Processor) metrics() analytics.Tallier {
	if p.Metrics != nil {
		return p.Metrics
	}
	return analytics.Noop{}
}

// tally counts an event twice: once in the global bucket, once under the
// chat id.
func (p *Processor) tally(counter string, chatID int64) {
	m := p.metrics()
	m.Tally(analytics.Namespace, counter, 0)
	m.Tally(analytics.Namespace, counter, chatID)
}

// HandleBatch processes the updates of one dequeued batch in order. A failing
// update is logged and dropped; the rest of the batch still runs. Batches may
// be redelivered, so nothing here assumes exactly-once.
func (p *Processor) HandleBatch(ctx context.Context, updates []telegram.Update) {
	if len(updates) == 1 {
		p.logger().Info("processing one update")
	} else {
		p.logger().Info("processing batch of updates", "updates", len(updates))
	}

	for _, u := range updates {
		msg := u.Msg()
		if msg == nil || msg.Chat == nil {
			p.logger().Debug("update_skipped", "update_id", u.UpdateID, "reason", "no_message")
			continue
		}
		if err := p.processMessage(ctx, msg); err != nil {
			p.logger().Error("update_failed", "update_id", u.UpdateID, "chat_id", msg.Chat.ID, "error", err)
		}
	}
}

func (p *Processor) processMessage(ctx context.Context, msg *telegram.Message) error {
	rec, regErr := p.register(ctx, msg)

	if command(msg.Text) == cmdNewSession {
		if regErr != nil {
			p.logger().Warn("register_client_error", "chat_id", msg.Chat.ID, "error", regErr)
			return p.Replies.SendMessage(ctx, msg.Chat.ID, replyRegistrationFailed, msg.MessageID)
		}
		return p.processRenewal(ctx, rec, msg)
	}
	if regErr != nil {
		return regErr
	}

	switch d := Filter(msg, p.BotUsername, p.BotName); d {
	case FilterSkipNoText, FilterSkipGroupNotAddressed:
		p.logger().Debug("update_skipped", "chat_id", msg.Chat.ID, "reason", d.String())
		return nil
	}

	if err := p.Replies.SendChatAction(ctx, rec.ChatID, telegram.ChatActionTyping); err != nil {
		p.logger().Debug("chat_action_error", "chat_id", rec.ChatID, "error", err)
	}

	if err := p.ensureLanguage(ctx, rec, msg); err != nil {
		return err
	}

	text := stripMention(msg.Text, p.BotUsername)
	if text == "" {
		return p.Replies.SendMessage(ctx, rec.ChatID, replyFallback, msg.MessageID)
	}

	s, err := p.ensureSession(ctx, rec)
	if err != nil {
		return err
	}

	out, err := p.think(ctx, rec, s, text)
	if err != nil {
		return err
	}

	p.tally(analytics.CounterAIResponses, rec.ChatID)
	if err := p.Replies.SendMessage(ctx, rec.ChatID, out, msg.MessageID); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// think runs the AI call. A session rejection marks the old session
// unavailable, creates a replacement and retries exactly once.
func (p *Processor) think(ctx context.Context, rec *clients.Record, s *session.Session, text string) (string, error) {
	out, err := p.Chat.Think(ctx, s, text)
	if err == nil {
		return out, nil
	}
	var se *coffeehouse.SessionError
	if !errors.As(err, &se) {
		return "", err
	}

	p.logger().Info("session_rejected", "chat_id", rec.ChatID, "session_id", s.ID, "error", se)
	s.Available = false
	if uerr := p.Chat.UpdateSession(ctx, s); uerr != nil {
		p.logger().Warn("session_update_error", "chat_id", rec.ChatID, "session_id", s.ID, "error", uerr)
	}

	replacement, err := p.createSession(ctx, rec)
	if err != nil {
		return "", err
	}
	out, err = p.Chat.Think(ctx, replacement, text)
	if err != nil {
		return "", fmt.Errorf("think after session replacement: %w", err)
	}
	return out, nil
}

// register refreshes the chat's client record. Forwarded messages also
// register the original author.
func (p *Processor) register(ctx context.Context, msg *telegram.Message) (*clients.Record, error) {
	rec, err := p.Registry.RegisterClient(ctx, msg.Chat, msg.From)
	if err != nil {
		return nil, fmt.Errorf("register client: %w", err)
	}
	if msg.ForwardFrom != nil {
		if err := p.Registry.RegisterUser(ctx, msg.ForwardFrom); err != nil {
			return nil, fmt.Errorf("register forwarder: %w", err)
		}
	}
	return rec, nil
}

// ensureLanguage pins the chat's default language on first contact, taken
// from the sender's language code.
func (p *Processor) ensureLanguage(ctx context.Context, rec *clients.Record, msg *telegram.Message) error {
	if rec.SessionData.DefaultLanguage != "" {
		return nil
	}
	lang := session.DefaultLanguage
	if msg.From != nil {
		lang = session.NormalizeLanguage(msg.From.LanguageCode)
	}
	rec.SessionData.DefaultLanguage = lang
	if err := p.Registry.UpdateClient(ctx, rec); err != nil {
		return fmt.Errorf("persist default language: %w", err)
	}
	return nil
}

// ensureSession returns a usable session for the chat, creating or replacing
// one as needed.
func (p *Processor) ensureSession(ctx context.Context, rec *clients.Record) (*session.Session, error) {
	if rec.SessionData.SessionID == "" {
		return p.createSession(ctx, rec)
	}
	s, err := p.Chat.LoadSession(ctx, rec.SessionData.SessionID)
	if err != nil {
		if coffeehouse.IsSessionError(err) {
			return p.createSession(ctx, rec)
		}
		return nil, err
	}
	if s.Expired(p.now()) || !s.Available {
		return p.createSession(ctx, rec)
	}
	return s, nil
}

// createSession asks for a fresh session, binds it to the chat record and
// counts the creation.
func (p *Processor) createSession(ctx context.Context, rec *clients.Record) (*session.Session, error) {
	s, err := p.Chat.NewSession(ctx, rec.SessionData.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	rec.SessionData.SessionID = s.ID
	if err := p.Registry.UpdateClient(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist session id: %w", err)
	}
	p.tally(analytics.CounterCreatedSessions, rec.ChatID)
	p.logger().Info("session_created", "chat_id", rec.ChatID, "session_id", s.ID, "language", s.Language)
	return s, nil
}
