package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Pranav24205/lydia/internal/clients"
	"github.com/Pranav24205/lydia/internal/coffeehouse"
	"github.com/Pranav24205/lydia/internal/session"
	"github.com/Pranav24205/lydia/internal/telegram"
)

var testNow = time.Date(2021, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeRegistry struct {
	records     map[int64]*clients.Record
	users       []int64
	registerErr error
	userErr     error
	updateErr   error
	updateCalls int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{records: make(map[int64]*clients.Record)}
}

func (f *fakeRegistry) RegisterClient(ctx context.Context, chat *telegram.Chat, user *telegram.User) (*clients.Record, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	rec, ok := f.records[chat.ID]
	if !ok {
		rec = &clients.Record{ChatID: chat.ID, ChatType: chat.Type}
		f.records[chat.ID] = rec
	}
	if user != nil {
		rec.UserID = user.ID
	}
	return rec, nil
}

func (f *fakeRegistry) RegisterUser(ctx context.Context, user *telegram.User) error {
	if f.userErr != nil {
		return f.userErr
	}
	f.users = append(f.users, user.ID)
	return nil
}

func (f *fakeRegistry) UpdateClient(ctx context.Context, rec *clients.Record) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updateCalls++
	f.records[rec.ChatID] = rec
	return nil
}

type thinkCall struct {
	sessionID string
	input     string
}

type fakeChat struct {
	nextID      int
	sessions    map[string]*session.Session
	newErr      error
	loadErr     error
	thinkErrs   []error // consumed per Think call
	thinkCalls  []thinkCall
	updated     []*session.Session
	updateErr   error
	thinkOutput string
}

func newFakeChat() *fakeChat {
	return &fakeChat{sessions: make(map[string]*session.Session), thinkOutput: "ai says hi"}
}

func (f *fakeChat) NewSession(ctx context.Context, language string) (*session.Session, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	f.nextID++
	s := &session.Session{
		ID:        fmt.Sprintf("sess-%d", f.nextID),
		Language:  language,
		Available: true,
		Expires:   testNow.Add(session.NominalLifetime),
	}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeChat) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, &coffeehouse.SessionError{Code: "SESSION_NOT_FOUND"}
	}
	cp := *s
	return &cp, nil
}

func (f *fakeChat) Think(ctx context.Context, s *session.Session, input string) (string, error) {
	f.thinkCalls = append(f.thinkCalls, thinkCall{sessionID: s.ID, input: input})
	if len(f.thinkErrs) > 0 {
		err := f.thinkErrs[0]
		f.thinkErrs = f.thinkErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return f.thinkOutput, nil
}

func (f *fakeChat) UpdateSession(ctx context.Context, s *session.Session) error {
	f.updated = append(f.updated, s)
	if f.updateErr != nil {
		return f.updateErr
	}
	return nil
}

type sentMessage struct {
	chatID  int64
	text    string
	replyTo int64
}

type fakeReplies struct {
	messages []sentMessage
	actions  []string
	sendErr  error
}

func (f *fakeReplies) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages = append(f.messages, sentMessage{chatID: chatID, text: text, replyTo: replyTo})
	return nil
}

func (f *fakeReplies) SendChatAction(ctx context.Context, chatID int64, action string) error {
	f.actions = append(f.actions, action)
	return nil
}

type tallyEvent struct {
	counter   string
	dimension int64
}

type fakeTallier struct {
	events []tallyEvent
}

func (f *fakeTallier) Tally(namespace, counter string, dimension int64) {
	if namespace != "tg_lydia" {
		panic("unexpected namespace " + namespace)
	}
	f.events = append(f.events, tallyEvent{counter: counter, dimension: dimension})
}

func (f *fakeTallier) count(counter string) int {
	n := 0
	for _, e := range f.events {
		if e.counter == counter {
			n++
		}
	}
	return n
}

type fixture struct {
	proc     *Processor
	registry *fakeRegistry
	chat     *fakeChat
	replies  *fakeReplies
	tallies  *fakeTallier
}

func newFixture() *fixture {
	f := &fixture{
		registry: newFakeRegistry(),
		chat:     newFakeChat(),
		replies:  &fakeReplies{},
		tallies:  &fakeTallier{},
	}
	f.proc = &Processor{
		Registry:    f.registry,
		Chat:        f.chat,
		Replies:     f.replies,
		Metrics:     f.tallies,
		BotUsername: "lydia_bot",
		BotName:     "Lydia",
		Now:         func() time.Time { return testNow },
	}
	return f
}

func privateMsg(text string) *telegram.Message {
	return &telegram.Message{
		MessageID: 7,
		Chat:      &telegram.Chat{ID: 42, Type: "private"},
		From:      &telegram.User{ID: 9, Username: "alice", LanguageCode: "de"},
		Text:      text,
	}
}

func batchOf(msgs ...*telegram.Message) []telegram.Update {
	var out []telegram.Update
	for i, m := range msgs {
		out = append(out, telegram.Update{UpdateID: int64(100 + i), Message: m})
	}
	return out
}

func TestPrivateMessageGetsReply(t *testing.T) {
	f := newFixture()
	f.proc.HandleBatch(context.Background(), batchOf(privateMsg("hello")))

	if len(f.replies.messages) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(f.replies.messages))
	}
	got := f.replies.messages[0]
	if got.chatID != 42 || got.text != "ai says hi" || got.replyTo != 7 {
		t.Fatalf("unexpected reply: %+v", got)
	}
	if len(f.replies.actions) != 1 || f.replies.actions[0] != "typing" {
		t.Fatalf("expected typing action, got %v", f.replies.actions)
	}
	if n := f.tallies.count("ai_responses"); n != 2 {
		t.Fatalf("ai_responses tallied %d times, want 2", n)
	}
}

func TestFirstContactCreatesSessionAndLanguage(t *testing.T) {
	f := newFixture()
	f.proc.HandleBatch(context.Background(), batchOf(privateMsg("hello")))

	rec := f.registry.records[42]
	if rec.SessionData.DefaultLanguage != "de" {
		t.Fatalf("expected persisted language de, got %q", rec.SessionData.DefaultLanguage)
	}
	if rec.SessionData.SessionID != "sess-1" {
		t.Fatalf("expected persisted session id, got %q", rec.SessionData.SessionID)
	}
	if n := f.tallies.count("created_sessions"); n != 2 {
		t.Fatalf("created_sessions tallied %d times, want 2", n)
	}
	if f.chat.sessions["sess-1"].Language != "de" {
		t.Fatalf("session created with wrong language")
	}
}

func TestLanguageFallsBackToEnglish(t *testing.T) {
	f := newFixture()
	msg := privateMsg("hello")
	msg.From.LanguageCode = ""
	f.proc.HandleBatch(context.Background(), batchOf(msg))

	if got := f.registry.records[42].SessionData.DefaultLanguage; got != "en" {
		t.Fatalf("expected en fallback, got %q", got)
	}
}

func TestExistingSessionReused(t *testing.T) {
	f := newFixture()
	f.proc.HandleBatch(context.Background(), batchOf(privateMsg("one")))
	f.proc.HandleBatch(context.Background(), batchOf(privateMsg("two")))

	if n := f.tallies.count("created_sessions"); n != 2 {
		t.Fatalf("second message must reuse the session, created_sessions=%d", n)
	}
	if len(f.chat.thinkCalls) != 2 || f.chat.thinkCalls[1].sessionID != "sess-1" {
		t.Fatalf("unexpected think calls: %+v", f.chat.thinkCalls)
	}
}

func TestExpiredSessionReplaced(t *testing.T) {
	f := newFixture()
	f.proc.HandleBatch(context.Background(), batchOf(privateMsg("one")))
	f.chat.sessions["sess-1"].Expires = testNow.Add(-time.Minute)

	f.proc.HandleBatch(context.Background(), batchOf(privateMsg("two")))

	if got := f.registry.records[42].SessionData.SessionID; got != "sess-2" {
		t.Fatalf("expected replacement session, record holds %q", got)
	}
	if f.chat.thinkCalls[1].sessionID != "sess-2" {
		t.Fatalf("think used stale session: %+v", f.chat.thinkCalls)
	}
}

func TestSessionRejectionRetriesOnce(t *testing.T) {
	f := newFixture()
	f.proc.HandleBatch(context.Background(), batchOf(privateMsg("one")))

	f.chat.thinkErrs = []error{&coffeehouse.SessionError{Code: "INVALID_SESSION"}}
	f.proc.HandleBatch(context.Background(), batchOf(privateMsg("two")))

	if len(f.chat.thinkCalls) != 3 {
		t.Fatalf("expected think retry, got calls %+v", f.chat.thinkCalls)
	}
	if f.chat.thinkCalls[2].sessionID != "sess-2" {
		t.Fatalf("retry must use the replacement session: %+v", f.chat.thinkCalls)
	}
	// The dead session was marked unavailable on the remote side.
	if len(f.chat.updated) != 1 || f.chat.updated[0].ID != "sess-1" || f.chat.updated[0].Available {
		t.Fatalf("expected sess-1 marked unavailable, got %+v", f.chat.updated)
	}
	if len(f.replies.messages) != 2 {
		t.Fatalf("expected reply after retry, got %d messages", len(f.replies.messages))
	}
}

func TestSecondRejectionDropsUpdate(t *testing.T) {
	f := newFixture()
	f.proc.HandleBatch(context.Background(), batchOf(privateMsg("one")))

	f.chat.thinkErrs = []error{
		&coffeehouse.SessionError{Code: "INVALID_SESSION"},
		&coffeehouse.SessionError{Code: "INVALID_SESSION"},
	}
	f.proc.HandleBatch(context.Background(), batchOf(privateMsg("two")))

	if len(f.replies.messages) != 1 {
		t.Fatalf("second rejection must not produce a reply, got %d", len(f.replies.messages))
	}
	if len(f.chat.thinkCalls) != 3 {
		t.Fatalf("exactly one retry allowed, got %d think calls", len(f.chat.thinkCalls))
	}
}

func TestBatchContinuesAfterFailingUpdate(t *testing.T) {
	f := newFixture()
	f.chat.thinkErrs = []error{errors.New("gateway down"), nil}
	f.proc.HandleBatch(context.Background(), batchOf(privateMsg("one"), privateMsg("two")))

	if len(f.replies.messages) != 1 {
		t.Fatalf("expected the second update to still be processed, got %d replies", len(f.replies.messages))
	}
}

func TestRegistrationFailureDropsUpdate(t *testing.T) {
	f := newFixture()
	f.registry.registerErr = errors.New("disk full")
	f.proc.HandleBatch(context.Background(), batchOf(privateMsg("hello")))

	if len(f.replies.messages) != 0 || len(f.chat.thinkCalls) != 0 {
		t.Fatalf("registration failure must drop the update")
	}
}

func TestForwardedMessageRegistersAuthor(t *testing.T) {
	f := newFixture()
	msg := privateMsg("look at this")
	msg.ForwardFrom = &telegram.User{ID: 77, Username: "carol"}
	f.proc.HandleBatch(context.Background(), batchOf(msg))

	if len(f.registry.users) != 1 || f.registry.users[0] != 77 {
		t.Fatalf("forward author not registered: %v", f.registry.users)
	}
}

func TestForwarderRegistrationFailureDropsUpdate(t *testing.T) {
	f := newFixture()
	f.registry.userErr = errors.New("disk full")
	msg := privateMsg("look at this")
	msg.ForwardFrom = &telegram.User{ID: 77}
	f.proc.HandleBatch(context.Background(), batchOf(msg))

	if len(f.chat.thinkCalls) != 0 || len(f.replies.messages) != 0 {
		t.Fatalf("forwarder registration failure must drop the update")
	}
}

func TestMentionOnlyTextGetsFallback(t *testing.T) {
	f := newFixture()
	msg := privateMsg("@lydia_bot")
	f.proc.HandleBatch(context.Background(), batchOf(msg))

	if len(f.replies.messages) != 1 || f.replies.messages[0].text != replyFallback {
		t.Fatalf("expected fallback reply, got %+v", f.replies.messages)
	}
	if len(f.chat.thinkCalls) != 0 {
		t.Fatalf("fallback path must not call the AI")
	}
}

func TestGroupMessageNotAddressedSkipped(t *testing.T) {
	f := newFixture()
	msg := privateMsg("just chatting")
	msg.Chat.Type = "supergroup"
	f.proc.HandleBatch(context.Background(), batchOf(msg))

	if len(f.replies.messages) != 0 || len(f.chat.thinkCalls) != 0 {
		t.Fatalf("unaddressed group message must be skipped")
	}
}

func TestGroupReplyToBotProcessed(t *testing.T) {
	f := newFixture()
	msg := privateMsg("and you?")
	msg.Chat.Type = "group"
	msg.ReplyTo = &telegram.Message{From: &telegram.User{Username: "lydia_bot", IsBot: true}}
	f.proc.HandleBatch(context.Background(), batchOf(msg))

	if len(f.replies.messages) != 1 {
		t.Fatalf("reply to the bot must be processed, got %d replies", len(f.replies.messages))
	}
}

func TestGroupMentionProcessed(t *testing.T) {
	f := newFixture()
	msg := privateMsg("hey @lydia_bot how are you")
	msg.Chat.Type = "group"
	f.proc.HandleBatch(context.Background(), batchOf(msg))

	if len(f.replies.messages) != 1 {
		t.Fatalf("mention must be processed, got %d replies", len(f.replies.messages))
	}
	if f.chat.thinkCalls[0].input != "hey @lydia_bot how are you" {
		t.Fatalf("unexpected think input %q", f.chat.thinkCalls[0].input)
	}
}

func TestUpdateWithoutMessageSkipped(t *testing.T) {
	f := newFixture()
	f.proc.HandleBatch(context.Background(), []telegram.Update{{UpdateID: 5}})
	if len(f.replies.messages) != 0 {
		t.Fatalf("message-less update must be skipped")
	}
}
