package processor

import (
	"context"

	"github.com/Pranav24205/lydia/internal/analytics"
	"github.com/Pranav24205/lydia/internal/clients"
	"github.com/Pranav24205/lydia/internal/coffeehouse"
	"github.com/Pranav24205/lydia/internal/telegram"
)

// processRenewal handles /newsession: replace the chat's session on demand,
// unless the current one was issued less than a minute ago.
func (p *Processor) processRenewal(ctx context.Context, rec *clients.Record, msg *telegram.Message) error {
	p.tally(analytics.CounterMessages, rec.ChatID)

	if err := p.ensureLanguage(ctx, rec, msg); err != nil {
		return err
	}

	if rec.SessionData.SessionID == "" {
		return p.renew(ctx, rec, msg)
	}

	s, err := p.Chat.LoadSession(ctx, rec.SessionData.SessionID)
	if err != nil {
		if coffeehouse.IsSessionError(err) {
			// The stored session is gone on the remote side; renewing
			// is the right answer.
			return p.renew(ctx, rec, msg)
		}
		return err
	}
	if !s.Renewable(p.now()) {
		return p.Replies.SendMessage(ctx, rec.ChatID, replySessionTooNew, msg.MessageID)
	}
	return p.renew(ctx, rec, msg)
}

func (p *Processor) renew(ctx context.Context, rec *clients.Record, msg *telegram.Message) error {
	if _, err := p.createSession(ctx, rec); err != nil {
		return err
	}
	return p.Replies.SendMessage(ctx, rec.ChatID, replySessionCreated, msg.MessageID)
}
