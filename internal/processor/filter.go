package processor

import (
	"strings"

	"github.com/Pranav24205/lydia/internal/telegram"
)

// FilterDecision says what to do with an incoming message before any work is
// spent on it.
type FilterDecision int

const (
	FilterProcess FilterDecision = iota
	FilterSkipNoText
	FilterSkipGroupNotAddressed
)

func (d FilterDecision) String() string {
	switch d {
	case FilterProcess:
		return "process"
	case FilterSkipNoText:
		return "skip_no_text"
	case FilterSkipGroupNotAddressed:
		return "skip_group_not_addressed"
	}
	return "unknown"
}

// Filter decides whether a message deserves a reply. Messages without text
// are skipped. In group chats the bot only answers when addressed: either the
// message replies to one of the bot's own messages, or the text mentions the
// bot by username or name.
func Filter(msg *telegram.Message, botUsername, botName string) FilterDecision {
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return FilterSkipNoText
	}
	if !msg.Chat.IsGroup() {
		return FilterProcess
	}

	if msg.ReplyTo != nil {
		if from := msg.ReplyTo.From; from != nil && strings.EqualFold(from.Username, botUsername) {
			return FilterProcess
		}
		// A reply aimed at someone else is their conversation.
		return FilterSkipGroupNotAddressed
	}

	text := strings.ToLower(msg.Text)
	if botUsername != "" && strings.Contains(text, "@"+strings.ToLower(botUsername)) {
		return FilterProcess
	}
	if botName != "" && strings.Contains(text, strings.ToLower(botName)) {
		return FilterProcess
	}
	return FilterSkipGroupNotAddressed
}

// stripMention removes a leading @username mention so the chat AI does not
// see its own handle as part of the input.
func stripMention(text, botUsername string) string {
	text = strings.TrimSpace(text)
	if botUsername == "" {
		return text
	}
	mention := "@" + strings.ToLower(botUsername)
	if strings.HasPrefix(strings.ToLower(text), mention) {
		return strings.TrimSpace(text[len(mention):])
	}
	return text
}

// command extracts a normalized leading slash command, with any @botname
// suffix removed. Empty when the text is not a command.
func command(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}
