package telegram

// Update is a single entry from the Bot API getUpdates result, trimmed to the
// fields the bot consumes.
type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message,omitempty"`
	EditedMessage *Message `json:"edited_message,omitempty"`
}

// Msg returns the message carried by the update, treating edits like fresh
// messages. Nil when the update carries neither.
func (u *Update) Msg() *Message {
	if u == nil {
		return nil
	}
	if u.Message != nil {
		return u.Message
	}
	return u.EditedMessage
}

type Message struct {
	MessageID   int64    `json:"message_id"`
	Date        int64    `json:"date"`
	Chat        *Chat    `json:"chat,omitempty"`
	From        *User    `json:"from,omitempty"`
	ReplyTo     *Message `json:"reply_to_message,omitempty"`
	ForwardFrom *User    `json:"forward_from,omitempty"`
	Text        string   `json:"text,omitempty"`
}

type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// IsGroup reports whether the chat is a multi-user chat, where the bot only
// answers when addressed.
func (c *Chat) IsGroup() bool {
	if c == nil {
		return false
	}
	return c.Type == "group" || c.Type == "supergroup"
}

type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// ChatActionTyping is the chat action shown while a reply is being produced.
const ChatActionTyping = "typing"
