package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/glebarez/sqlite"
	"github.com/iyunix/go-chatkeep/internal/domain"
	chatrepo "github.com/iyunix/go-chatkeep/internal/repository/chat"
	messagerepo "github.com/iyunix/go-chatkeep/internal/repository/message"
	"github.com/iyunix/go-chatkeep/internal/services/responder"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}

type fakeBlobs struct {
	mu          sync.Mutex
	stored      map[string][]byte
	deleteCalls []string
	failKeys    map[string]bool
	afterDelete func()
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{stored: map[string][]byte{}, failKeys: map[string]bool{}}
}

func (f *fakeBlobs) Upload(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[key] = data
	return nil
}

func (f *fakeBlobs) PublicURL(key string) string {
	return "/blobs/" + key
}

func (f *fakeBlobs) Delete(_ context.Context, keys []string) error {
	f.mu.Lock()
	hook := f.afterDelete
	defer func() {
		f.mu.Unlock()
		if hook != nil {
			hook()
		}
	}()
	for _, key := range keys {
		f.deleteCalls = append(f.deleteCalls, key)
		if f.failKeys[key] {
			return fmt.Errorf("storage refused %s", key)
		}
		delete(f.stored, key)
	}
	return nil
}

func (f *fakeBlobs) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.stored[key]
	return ok
}

type fakeResponder struct {
	mu       sync.Mutex
	payloads []responder.Payload
	respond  func(ctx context.Context, p responder.Payload) (string, error)
}

func (f *fakeResponder) Respond(ctx context.Context, p responder.Payload) (string, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	fn := f.respond
	f.mu.Unlock()
	if fn == nil {
		return "reply to " + p.UserMessage, nil
	}
	return fn(ctx, p)
}

func (f *fakeResponder) last() responder.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[len(f.payloads)-1]
}

// tick is a clock that moves one second per reading.
type tick struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tick) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type harness struct {
	manager   *Manager
	chats     chatrepo.ChatRepository
	messages  messagerepo.MessageRepository
	blobs     *fakeBlobs
	responder *fakeResponder
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "chatkeep.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&domain.Chat{}, &domain.Message{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	h := &harness{
		chats:     chatrepo.NewChatRepository(db),
		messages:  messagerepo.NewMessageRepository(db),
		blobs:     newFakeBlobs(),
		responder: &fakeResponder{},
	}
	m, err := NewManager(cfg, h.chats, h.messages, h.blobs, h.responder, nopLogger{})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	clock := &tick{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	m.now = clock.Now
	h.manager = m
	return h
}

func (h *harness) countMessages(t *testing.T, chatID uint) int64 {
	t.Helper()
	n, err := h.messages.CountByChatID(context.Background(), chatID)
	if err != nil {
		t.Fatalf("CountByChatID: %v", err)
	}
	return n
}

func TestGetOrCreateActiveChat(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.manager.GetOrCreateActiveChat(ctx, 1)
	if err != nil {
		t.Fatalf("GetOrCreateActiveChat: %v", err)
	}
	if !strings.HasPrefix(first.Title, "Chat ") {
		t.Fatalf("title = %q", first.Title)
	}

	again, err := h.manager.GetOrCreateActiveChat(ctx, 1)
	if err != nil {
		t.Fatalf("GetOrCreateActiveChat: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("created a second chat: %d != %d", again.ID, first.ID)
	}

	second, _ := h.manager.NewChat(ctx, 1)
	if _, err := h.manager.AppendMessage(ctx, 1, first.ID, domain.RoleUser, "bump", ""); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	active, _ := h.manager.GetOrCreateActiveChat(ctx, 1)
	if active.ID != first.ID || active.ID == second.ID {
		t.Fatalf("active = %d, want the chat appended to last (%d)", active.ID, first.ID)
	}
}

func TestAppendMessage_OwnershipIsNotFound(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	c, _ := h.manager.NewChat(ctx, 1)

	_, err := h.manager.AppendMessage(ctx, 2, c.ID, domain.RoleUser, "hi", "")
	if !IsNotFound(err) {
		t.Fatalf("foreign chat: err = %v, want not found", err)
	}
	_, err = h.manager.AppendMessage(ctx, 1, c.ID+99, domain.RoleUser, "hi", "")
	if !IsNotFound(err) {
		t.Fatalf("missing chat: err = %v, want not found", err)
	}
	if !errors.Is(err, &ChatError{Type: ErrTypeNotFound}) {
		t.Fatal("errors.Is should match by type")
	}
	_, err = h.manager.AppendMessage(ctx, 1, c.ID, "system", "hi", "")
	if !IsValidation(err) {
		t.Fatalf("bad role: err = %v, want validation", err)
	}
}

func TestSendMessage_StoresBothTurnsWithContext(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	c, _ := h.manager.NewChat(ctx, 1)

	res, err := h.manager.SendMessage(ctx, 1, c.ID, "  hello  ", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if res.UserMessage.Content != "hello" || res.BotReply.Content != "reply to hello" {
		t.Fatalf("unexpected turns: %q / %q", res.UserMessage.Content, res.BotReply.Content)
	}
	if res.BotReply.Role != domain.RoleAssistant || res.Image != nil {
		t.Fatalf("unexpected reply: %+v", res)
	}
	first := h.responder.last()
	if first.ConversationContext != ConversationStart {
		t.Fatalf("first context = %q", first.ConversationContext)
	}
	if first.ChatID != c.ID || first.UserID != 1 || first.Timestamp == "" {
		t.Fatalf("unexpected payload: %+v", first)
	}

	if _, err := h.manager.SendMessage(ctx, 1, c.ID, "again", nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	second := h.responder.last()
	if second.ConversationContext != "User: hello\nAssistant: reply to hello" {
		t.Fatalf("second context = %q", second.ConversationContext)
	}
	if second.UserMessage != "again" {
		t.Fatalf("user message = %q", second.UserMessage)
	}

	loaded, err := h.manager.LoadChat(ctx, 1, c.ID)
	if err != nil {
		t.Fatalf("LoadChat: %v", err)
	}
	var roles []string
	for _, m := range loaded.Messages {
		roles = append(roles, m.Role)
	}
	if strings.Join(roles, ",") != "user,assistant,user,assistant" {
		t.Fatalf("transcript roles = %v", roles)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxUploadBytes = 8 })
	ctx := context.Background()
	c, _ := h.manager.NewChat(ctx, 1)

	if _, err := h.manager.SendMessage(ctx, 1, c.ID, "   ", nil); !IsValidation(err) {
		t.Fatalf("empty text: err = %v", err)
	}
	if _, err := h.manager.SendMessage(ctx, 1, c.ID, "x", &ImageUpload{Filename: "a.exe", Data: []byte("1")}); !IsValidation(err) {
		t.Fatalf("bad extension: err = %v", err)
	}
	if _, err := h.manager.SendMessage(ctx, 1, c.ID, "x", &ImageUpload{Filename: "a.png", Data: []byte("too many bytes")}); !IsValidation(err) {
		t.Fatalf("oversized: err = %v", err)
	}
	if _, err := h.manager.SendMessage(ctx, 2, c.ID, "x", &ImageUpload{Filename: "a.png", Data: []byte("1")}); !IsNotFound(err) {
		t.Fatalf("foreign chat: err = %v", err)
	}
	if len(h.blobs.stored) != 0 {
		t.Fatalf("rejected sends uploaded %d blobs", len(h.blobs.stored))
	}
	if n := h.countMessages(t, c.ID); n != 0 {
		t.Fatalf("rejected sends stored %d messages", n)
	}
}

func TestExchange_ResponderTimeoutStoresFallback(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.ResponderTimeout = 20 * time.Millisecond })
	h.responder.respond = func(ctx context.Context, _ responder.Payload) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	ctx := context.Background()
	c, _ := h.manager.NewChat(ctx, 1)
	before := c.UpdatedAt

	res, err := h.manager.SendMessage(ctx, 1, c.ID, "are you there?", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	want := "The AI service did not respond in time. Please try again."
	if res.BotReply.Content != want {
		t.Fatalf("reply = %q, want %q", res.BotReply.Content, want)
	}

	after, err := h.chats.FindByIDAndUserID(ctx, c.ID, 1)
	if err != nil {
		t.Fatalf("FindByIDAndUserID: %v", err)
	}
	if !after.UpdatedAt.After(before) {
		t.Fatalf("updated_at did not advance: %v -> %v", before, after.UpdatedAt)
	}
	if !after.UpdatedAt.Equal(res.BotReply.CreatedAt) {
		t.Fatalf("updated_at = %v, want reply time %v", after.UpdatedAt, res.BotReply.CreatedAt)
	}
}

func TestExchange_ResponderErrorStoresFallback(t *testing.T) {
	h := newHarness(t, nil)
	h.responder.respond = func(context.Context, responder.Payload) (string, error) {
		return "", responder.NewStatusError("webhook", 500)
	}
	ctx := context.Background()
	c, _ := h.manager.NewChat(ctx, 1)

	res, err := h.manager.SendMessage(ctx, 1, c.ID, "hi", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if res.BotReply.Content != "AI service returned status 500." {
		t.Fatalf("reply = %q", res.BotReply.Content)
	}
}

func TestSendMessage_ImageStoredAndRemovedWithChat(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	c, _ := h.manager.NewChat(ctx, 1)

	res, err := h.manager.SendMessage(ctx, 1, c.ID, "what is this?",
		&ImageUpload{Filename: "cat.png", ContentType: "image/png", Data: []byte("png")})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if res.Image == nil || !res.UserMessage.HasImage || res.UserMessage.ImageURL != res.Image.URL {
		t.Fatalf("image not recorded: %+v / %+v", res.UserMessage, res.Image)
	}
	key := res.Image.Filename
	if !h.blobs.has(key) {
		t.Fatalf("blob %s not uploaded", key)
	}
	if !strings.HasPrefix(h.responder.last().UserMessage, "Image Analysis Request:\nUser Message: what is this?") {
		t.Fatalf("image preamble missing: %q", h.responder.last().UserMessage)
	}

	if err := h.manager.DeleteChat(ctx, 1, c.ID); err != nil {
		t.Fatalf("DeleteChat: %v", err)
	}
	if h.blobs.has(key) {
		t.Fatalf("blob %s survived its chat", key)
	}
	if n := h.countMessages(t, c.ID); n != 0 {
		t.Fatalf("%d messages survived their chat", n)
	}
	if _, err := h.manager.LoadChat(ctx, 1, c.ID); !IsNotFound(err) {
		t.Fatalf("LoadChat after delete: err = %v", err)
	}
}

func TestDeleteChat_ContinuesPastBlobFailures(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	c, _ := h.manager.NewChat(ctx, 1)

	var keys []string
	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("chat_image_%d.png", i)
		h.blobs.Upload(ctx, key, []byte("x"), "image/png")
		if _, err := h.manager.AppendMessage(ctx, 1, c.ID, domain.RoleUser, "img", h.blobs.PublicURL(key)); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		keys = append(keys, key)
	}
	h.manager.AppendMessage(ctx, 1, c.ID, domain.RoleAssistant, "plain", "")
	h.blobs.failKeys[keys[0]] = true
	h.blobs.failKeys[keys[2]] = true

	if err := h.manager.DeleteChat(ctx, 1, c.ID); err != nil {
		t.Fatalf("DeleteChat: %v", err)
	}

	calls := append([]string(nil), h.blobs.deleteCalls...)
	sort.Strings(calls)
	if strings.Join(calls, ",") != strings.Join(keys, ",") {
		t.Fatalf("delete calls = %v, want one per image %v", calls, keys)
	}
	if n := h.countMessages(t, c.ID); n != 0 {
		t.Fatalf("%d messages left", n)
	}
	if _, err := h.chats.FindByIDAndUserID(ctx, c.ID, 1); !errors.Is(err, chatrepo.ErrChatNotFound) {
		t.Fatalf("chat row left behind: %v", err)
	}
}

func TestDeleteChat_ForeignChatIsNotFound(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	c, _ := h.manager.NewChat(ctx, 1)

	if err := h.manager.DeleteChat(ctx, 2, c.ID); !IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
	if _, err := h.chats.FindByIDAndUserID(ctx, c.ID, 1); err != nil {
		t.Fatalf("chat was deleted by another user: %v", err)
	}
}

func TestRunRetentionSweep_TwelveChatsCapTen(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxTotalChatsPerUser = 10 })
	ctx := context.Background()

	var created []*domain.Chat
	for i := 0; i < 12; i++ {
		c, err := h.manager.NewChat(ctx, 1)
		if err != nil {
			t.Fatalf("NewChat: %v", err)
		}
		created = append(created, c)
	}
	// An image in the oldest chat must go with it.
	h.blobs.Upload(ctx, "chat_image_old.png", []byte("x"), "image/png")
	if _, err := h.messages.Create(ctx, &domain.Message{
		ChatID: created[0].ID, Role: domain.RoleUser, Content: "old", HasImage: true,
		ImageURL: "/blobs/chat_image_old.png", CreatedAt: created[0].CreatedAt,
	}); err != nil {
		t.Fatalf("seed image message: %v", err)
	}
	other, _ := h.manager.NewChat(ctx, 2)

	report, err := h.manager.RunRetentionSweep(ctx, 1)
	if err != nil {
		t.Fatalf("RunRetentionSweep: %v", err)
	}
	if report.ChatsPurged != 2 {
		t.Fatalf("purged %d chats, want 2", report.ChatsPurged)
	}

	remaining, _ := h.chats.FindByUserID(ctx, 1)
	if len(remaining) != 10 {
		t.Fatalf("%d chats remain, want 10", len(remaining))
	}
	for _, c := range remaining {
		if c.ID == created[0].ID || c.ID == created[1].ID {
			t.Fatalf("oldest chat %d survived", c.ID)
		}
	}
	if h.blobs.has("chat_image_old.png") {
		t.Fatal("image of purged chat survived")
	}
	if n := h.countMessages(t, created[0].ID); n != 0 {
		t.Fatalf("%d messages of purged chat left", n)
	}
	if _, err := h.chats.FindByIDAndUserID(ctx, other.ID, 2); err != nil {
		t.Fatalf("another user's chat was touched: %v", err)
	}

	again, err := h.manager.RunRetentionSweep(ctx, 1)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again.ChatsPurged != 0 || again.MessagesPurged != 0 {
		t.Fatalf("second sweep deleted more: %+v", again)
	}
}

func TestRunRetentionSweep_TrimsMessages(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxMessagesPerChat = 5 })
	ctx := context.Background()
	c, _ := h.manager.NewChat(ctx, 1)

	h.blobs.Upload(ctx, "chat_image_first.png", []byte("x"), "image/png")
	first, err := h.manager.AppendMessage(ctx, 1, c.ID, domain.RoleUser, "first", "/blobs/chat_image_first.png")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	for i := 0; i < 7; i++ {
		h.manager.AppendMessage(ctx, 1, c.ID, domain.RoleAssistant, fmt.Sprintf("m%d", i), "")
	}

	report, err := h.manager.RunRetentionSweep(ctx, 1)
	if err != nil {
		t.Fatalf("RunRetentionSweep: %v", err)
	}
	if report.MessagesPurged != 3 {
		t.Fatalf("purged %d messages, want 3", report.MessagesPurged)
	}
	if n := h.countMessages(t, c.ID); n != 5 {
		t.Fatalf("%d messages remain, want 5", n)
	}
	if h.blobs.has("chat_image_first.png") {
		t.Fatal("image of trimmed message survived")
	}

	kept, _ := h.messages.FindByChatID(ctx, c.ID)
	for _, m := range kept {
		if m.ID == first.ID {
			t.Fatal("oldest message survived the trim")
		}
	}

	again, _ := h.manager.RunRetentionSweep(ctx, 1)
	if again.MessagesPurged != 0 {
		t.Fatalf("second sweep purged %d messages", again.MessagesPurged)
	}
}

type fixedGate struct{ allow bool }

func (g fixedGate) Allow(context.Context, string) (bool, error) { return g.allow, nil }

func TestRunRetentionSweep_GateSkips(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxTotalChatsPerUser = 1 })
	ctx := context.Background()
	h.manager.NewChat(ctx, 1)
	h.manager.NewChat(ctx, 1)

	h.manager.WithSweepGate(fixedGate{allow: false})
	report, err := h.manager.RunRetentionSweep(ctx, 1)
	if err != nil || !report.Skipped {
		t.Fatalf("report = %+v, err = %v, want skipped", report, err)
	}
	if chats, _ := h.chats.FindByUserID(ctx, 1); len(chats) != 2 {
		t.Fatalf("skipped sweep deleted chats: %d left", len(chats))
	}

	h.manager.WithSweepGate(fixedGate{allow: true})
	report, err = h.manager.RunRetentionSweep(ctx, 1)
	if err != nil || report.ChatsPurged != 1 {
		t.Fatalf("report = %+v, err = %v", report, err)
	}
}

func TestListHistories_DisplayCapIsIndependent(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.MaxChatHistories = 3
		c.MaxTotalChatsPerUser = 100
	})
	ctx := context.Background()

	var ids []uint
	for i := 0; i < 5; i++ {
		c, _ := h.manager.NewChat(ctx, 1)
		ids = append(ids, c.ID)
	}
	// Touching the oldest chat moves it to the top.
	h.manager.AppendMessage(ctx, 1, ids[0], domain.RoleUser, "bump", "")

	summaries, err := h.manager.ListHistories(ctx, 1)
	if err != nil {
		t.Fatalf("ListHistories: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("got %d summaries, want 3", len(summaries))
	}
	if summaries[0].ID != ids[0] || summaries[1].ID != ids[4] || summaries[2].ID != ids[3] {
		t.Fatalf("unexpected order: %+v", summaries)
	}

	report, _ := h.manager.RunRetentionSweep(ctx, 1)
	if report.ChatsPurged != 0 {
		t.Fatalf("display cap purged %d chats", report.ChatsPurged)
	}
}

func TestLoadChat_ReturnsOldestFirstUpToLimit(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.LoadChatMessageLimit = 3 })
	ctx := context.Background()
	c, _ := h.manager.NewChat(ctx, 1)
	for i := 0; i < 5; i++ {
		h.manager.AppendMessage(ctx, 1, c.ID, domain.RoleUser, fmt.Sprintf("m%d", i), "")
	}

	loaded, err := h.manager.LoadChat(ctx, 1, c.ID)
	if err != nil {
		t.Fatalf("LoadChat: %v", err)
	}
	if loaded.Chat.ID != c.ID || len(loaded.Messages) != 3 {
		t.Fatalf("unexpected load: %+v", loaded)
	}
	for i, m := range loaded.Messages {
		if m.Content != fmt.Sprintf("m%d", i) {
			t.Fatalf("message %d = %q", i, m.Content)
		}
	}
	if _, err := h.manager.LoadChat(ctx, 2, c.ID); !IsNotFound(err) {
		t.Fatalf("foreign load: err = %v", err)
	}
}

func TestNewManager_RejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMessagesPerChat = 0
	if _, err := NewManager(cfg, nil, nil, nil, nil, nopLogger{}); err == nil {
		t.Fatal("expected config error")
	}
}

func TestExchange_OversizedReplyIsTruncatedAndStored(t *testing.T) {
	h := newHarness(t, nil)
	// The leading byte puts every rune start on an odd offset, so a plain cut would split one.
	long := "a" + strings.Repeat("é", 75000)
	h.responder.respond = func(context.Context, responder.Payload) (string, error) {
		return long, nil
	}
	ctx := context.Background()
	c, _ := h.manager.NewChat(ctx, 1)

	res, err := h.manager.SendMessage(ctx, 1, c.ID, "write a lot", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	got := res.BotReply.Content
	if len(got) > domain.MaxContentLength || len(got) < domain.MaxContentLength-1 {
		t.Fatalf("reply is %d bytes, want just under %d", len(got), domain.MaxContentLength)
	}
	if !utf8.ValidString(got) || !strings.HasPrefix(long, got) {
		t.Fatal("truncated reply is not a clean prefix of the original")
	}
	if n := h.countMessages(t, c.ID); n != 2 {
		t.Fatalf("%d messages stored, want both turns", n)
	}
}

func TestDeleteChat_FinishesAfterCallerCancels(t *testing.T) {
	h := newHarness(t, nil)
	c, _ := h.manager.NewChat(context.Background(), 1)
	h.blobs.Upload(context.Background(), "chat_image_gone.png", []byte("x"), "image/png")
	if _, err := h.manager.AppendMessage(context.Background(), 1, c.ID, domain.RoleUser, "img", "/blobs/chat_image_gone.png"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	// The caller goes away as soon as the blob is removed.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.blobs.afterDelete = cancel

	if err := h.manager.DeleteChat(ctx, 1, c.ID); err != nil {
		t.Fatalf("DeleteChat: %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("blob delete did not run")
	}
	if h.blobs.has("chat_image_gone.png") {
		t.Fatal("blob survived")
	}
	if n := h.countMessages(t, c.ID); n != 0 {
		t.Fatalf("%d message rows outlived their blob", n)
	}
	if _, err := h.chats.FindByIDAndUserID(context.Background(), c.ID, 1); !errors.Is(err, chatrepo.ErrChatNotFound) {
		t.Fatalf("chat row left behind: %v", err)
	}
}

func TestRunRetentionSweep_TrimFinishesAfterCallerCancels(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxMessagesPerChat = 2 })
	c, _ := h.manager.NewChat(context.Background(), 1)
	h.blobs.Upload(context.Background(), "chat_image_trim.png", []byte("x"), "image/png")
	h.manager.AppendMessage(context.Background(), 1, c.ID, domain.RoleUser, "old", "/blobs/chat_image_trim.png")
	for i := 0; i < 2; i++ {
		h.manager.AppendMessage(context.Background(), 1, c.ID, domain.RoleAssistant, fmt.Sprintf("m%d", i), "")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.blobs.afterDelete = cancel

	report, err := h.manager.RunRetentionSweep(ctx, 1)
	if err != nil {
		t.Fatalf("RunRetentionSweep: %v", err)
	}
	if report.MessagesPurged != 1 || h.blobs.has("chat_image_trim.png") {
		t.Fatalf("report = %+v, blob present = %v", report, h.blobs.has("chat_image_trim.png"))
	}
	if n := h.countMessages(t, c.ID); n != 2 {
		t.Fatalf("%d messages remain, want 2", n)
	}
}

// vanishingChats deletes the chat just before its timestamp is touched, as a concurrent delete would.
type vanishingChats struct {
	chatrepo.ChatRepository
}

func (v vanishingChats) TouchUpdatedAt(ctx context.Context, chatID uint, at time.Time) error {
	if err := v.ChatRepository.Delete(ctx, chatID); err != nil {
		return err
	}
	return v.ChatRepository.TouchUpdatedAt(ctx, chatID, at)
}

func TestAppendMessage_ChatDeletedMidwayLeavesNoMessage(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	c, _ := h.manager.NewChat(ctx, 1)
	h.manager.chatRepo = vanishingChats{ChatRepository: h.chats}

	_, err := h.manager.AppendMessage(ctx, 1, c.ID, domain.RoleUser, "hello?", "")
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
	if n := h.countMessages(t, c.ID); n != 0 {
		t.Fatalf("%d messages left without a chat", n)
	}
}
