package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-bot-backend/internal/features/relay/models"
	msgrepo "support-bot-backend/internal/features/relay/repository"
	usermodels "support-bot-backend/internal/features/user/models"
	userrepo "support-bot-backend/internal/features/user/repository"
	"support-bot-backend/internal/platform/telegram"
)

const testAdminGroup int64 = -1001234

type forwardCall struct {
	chatID, fromChatID, messageID, threadID int64
}

// fakeGateway records every Bot API call and fails on demand per thread id.
type fakeGateway struct {
	mu     sync.Mutex
	nextID int64

	sent     []telegram.SendMessageRequest
	photos   []telegram.SendPhotoRequest
	forwards []forwardCall
	copies   []telegram.CopyMessageRequest
	topics   []string
	renames  []string
	deleted  []int64
	pinned   []int64

	nextTopicID      int64
	createTopicErr   error
	sendPhotoErr     error
	forwardErrByTID  map[int64]error
	sendErrByTID     map[int64]error
	profilePhotos    *telegram.UserProfilePhotos
	profilePhotosErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		nextID:           1000,
		nextTopicID:      100,
		forwardErrByTID:  map[int64]error{},
		sendErrByTID:     map[int64]error{},
		profilePhotosErr: fmt.Errorf("no photos"),
	}
}

func (g *fakeGateway) id() int64 {
	g.nextID++
	return g.nextID
}

func (g *fakeGateway) SendMessage(_ context.Context, req telegram.SendMessageRequest) (*telegram.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.sendErrByTID[req.MessageThreadID]; err != nil && req.MessageThreadID != 0 {
		return nil, err
	}
	g.sent = append(g.sent, req)
	return &telegram.Message{MessageID: g.id()}, nil
}

func (g *fakeGateway) SendPhoto(_ context.Context, req telegram.SendPhotoRequest) (*telegram.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendPhotoErr != nil {
		return nil, g.sendPhotoErr
	}
	g.photos = append(g.photos, req)
	return &telegram.Message{MessageID: g.id()}, nil
}

func (g *fakeGateway) ForwardMessage(_ context.Context, chatID, fromChatID, messageID, threadID int64) (*telegram.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.forwardErrByTID[threadID]; err != nil {
		return nil, err
	}
	g.forwards = append(g.forwards, forwardCall{chatID, fromChatID, messageID, threadID})
	return &telegram.Message{MessageID: g.id()}, nil
}

func (g *fakeGateway) CopyMessage(_ context.Context, req telegram.CopyMessageRequest) (*telegram.MessageID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.forwardErrByTID[req.MessageThreadID]; err != nil {
		return nil, err
	}
	g.copies = append(g.copies, req)
	return &telegram.MessageID{MessageID: g.id()}, nil
}

func (g *fakeGateway) CreateForumTopic(_ context.Context, _ int64, name string) (*telegram.ForumTopic, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createTopicErr != nil {
		return nil, g.createTopicErr
	}
	g.topics = append(g.topics, name)
	return &telegram.ForumTopic{MessageThreadID: g.nextTopicID, Name: name}, nil
}

func (g *fakeGateway) EditForumTopic(_ context.Context, _, _ int64, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.renames = append(g.renames, name)
	return nil
}

func (g *fakeGateway) DeleteMessage(_ context.Context, _, messageID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, messageID)
	return nil
}

func (g *fakeGateway) PinChatMessage(_ context.Context, _, messageID, _ int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pinned = append(g.pinned, messageID)
	return nil
}

func (g *fakeGateway) GetUserProfilePhotos(_ context.Context, _ int64, _ int) (*telegram.UserProfilePhotos, error) {
	if g.profilePhotosErr != nil {
		return nil, g.profilePhotosErr
	}
	return g.profilePhotos, nil
}

// sentTo returns the texts of messages sent to one chat outside any thread.
func (g *fakeGateway) sentTo(chatID int64) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, req := range g.sent {
		if req.ChatID == chatID {
			out = append(out, req.Text)
		}
	}
	return out
}

func (g *fakeGateway) sentInThread(threadID int64) []telegram.SendMessageRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []telegram.SendMessageRequest
	for _, req := range g.sent {
		if req.MessageThreadID == threadID {
			out = append(out, req)
		}
	}
	return out
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[int64]usermodels.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[int64]usermodels.User{}}
}

func (r *memUserRepo) GetOrCreate(_ context.Context, id int64) (*usermodels.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		copied := u
		return &copied, nil
	}
	u := *usermodels.NewUser(id)
	r.users[id] = u
	copied := u
	return &copied, nil
}

func (r *memUserRepo) Save(_ context.Context, u *usermodels.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = *u
	return nil
}

func (r *memUserRepo) FindByTopicID(_ context.Context, topicID int64) (*usermodels.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.TopicID == topicID && topicID != 0 {
			copied := u
			return &copied, nil
		}
	}
	return nil, userrepo.ErrNotFound
}

func (r *memUserRepo) stored(id int64) usermodels.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id]
}

type memMsgRepo struct {
	mu   sync.Mutex
	recs []models.MessageRecord
}

func (r *memMsgRepo) Save(_ context.Context, rec *models.MessageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, *rec)
	return nil
}

func (r *memMsgRepo) GetByUserMessage(_ context.Context, userID, messageID int64) (*models.MessageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.recs {
		if r.recs[i].UserID == userID && r.recs[i].MessageID == messageID {
			copied := r.recs[i]
			return &copied, nil
		}
	}
	return nil, msgrepo.ErrNotFound
}

func (r *memMsgRepo) GetByTopicMessage(_ context.Context, topicMessageID int64) (*models.MessageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.recs {
		if r.recs[i].TopicMessageID == topicMessageID {
			copied := r.recs[i]
			return &copied, nil
		}
	}
	return nil, msgrepo.ErrNotFound
}

func (r *memMsgRepo) UpdateText(_ context.Context, userID, messageID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.recs {
		if r.recs[i].UserID == userID && r.recs[i].MessageID == messageID {
			r.recs[i].Text = text
			return nil
		}
	}
	return msgrepo.ErrNotFound
}

type mapSettings map[string]string

func (m mapSettings) Get(_ context.Context, key string) string { return m[key] }

func newTestService(gw *fakeGateway) (*Service, *memUserRepo, *memMsgRepo, mapSettings) {
	users := newMemUserRepo()
	messages := &memMsgRepo{}
	settings := mapSettings{}
	return NewService(gw, users, messages, settings, testAdminGroup), users, messages, settings
}

func textMessage(userID int64, messageID int64, text string) *telegram.Message {
	return &telegram.Message{
		MessageID: messageID,
		From:      &telegram.User{ID: userID, FirstName: "Alice", Username: "alice"},
		Chat:      telegram.Chat{ID: userID, Type: "private"},
		Date:      1700000000,
		Text:      text,
	}
}

func threadNotFoundErr(method string) error {
	return &telegram.APIError{Method: method, Code: 400, Description: "Bad Request: message thread not found", Kind: telegram.KindThreadNotFound}
}

func TestRelayFirstMessageCreatesTopic(t *testing.T) {
	gw := newFakeGateway()
	svc, users, messages, _ := newTestService(gw)

	u, _ := users.GetOrCreate(context.Background(), 42)
	msg := textMessage(42, 7, "hello there")
	svc.Relay(context.Background(), msg, u)

	require.Equal(t, []string{"Alice"}, gw.topics)

	stored := users.stored(42)
	assert.Equal(t, int64(100), stored.TopicID)
	assert.NotZero(t, stored.Info.CardMessageID)
	assert.Zero(t, stored.Info.DummyMessageID, "placeholder reference must be cleared")
	assert.Equal(t, msg.Date, stored.Info.JoinDate)

	require.Len(t, gw.forwards, 1)
	assert.Equal(t, forwardCall{testAdminGroup, 42, 7, 100}, gw.forwards[0])

	// Placeholder plus text card land in the topic; the placeholder is
	// deleted afterwards.
	inTopic := gw.sentInThread(100)
	require.Len(t, inTopic, 2)
	assert.Equal(t, placeholderText, inTopic[0].Text)
	assert.Contains(t, inTopic[1].Text, "User Profile")
	assert.Len(t, gw.deleted, 1)
	assert.Equal(t, []int64{stored.Info.CardMessageID}, gw.pinned)

	// Delivery receipt back to the user.
	assert.Contains(t, gw.sentTo(42), msgDelivered)

	rec, err := messages.GetByUserMessage(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, "hello there", rec.Text)
	assert.NotZero(t, rec.TopicMessageID)
}

func TestRelayReusesExistingTopic(t *testing.T) {
	gw := newFakeGateway()
	svc, users, _, _ := newTestService(gw)

	u, _ := users.GetOrCreate(context.Background(), 42)
	u.TopicID = 55
	u.Info.CardMessageID = 9
	u.Info.Name = "Alice"
	u.Info.Username = "alice"
	require.NoError(t, users.Save(context.Background(), u))

	svc.Relay(context.Background(), textMessage(42, 8, "again"), u)

	assert.Empty(t, gw.topics, "existing topic must be reused")
	require.Len(t, gw.forwards, 1)
	assert.Equal(t, int64(55), gw.forwards[0].threadID)
	assert.Empty(t, gw.sentInThread(55), "no card or placeholder for an established topic")
}

func TestRelayRetriesOnceOnStaleTopic(t *testing.T) {
	gw := newFakeGateway()
	svc, users, _, _ := newTestService(gw)

	u, _ := users.GetOrCreate(context.Background(), 42)
	u.TopicID = 55
	u.Info.CardMessageID = 9
	u.Info.Name = "Alice"
	u.Info.Username = "alice"
	require.NoError(t, users.Save(context.Background(), u))

	gw.forwardErrByTID[55] = threadNotFoundErr("forwardMessage")

	svc.Relay(context.Background(), textMessage(42, 9, "retry me"), u)

	require.Equal(t, []string{"Alice"}, gw.topics, "a fresh topic replaces the stale one")
	require.Len(t, gw.forwards, 1)
	assert.Equal(t, int64(100), gw.forwards[0].threadID)

	stored := users.stored(42)
	assert.Equal(t, int64(100), stored.TopicID)
	assert.NotEqual(t, int64(9), stored.Info.CardMessageID, "card is redelivered into the new topic")

	assert.NotContains(t, gw.sentTo(42), msgDeliveryFailed)
	assert.Contains(t, gw.sentTo(42), msgDelivered)
}

func TestRelayGivesUpAfterSingleRetry(t *testing.T) {
	gw := newFakeGateway()
	svc, users, _, _ := newTestService(gw)

	u, _ := users.GetOrCreate(context.Background(), 42)
	u.TopicID = 55
	u.Info.CardMessageID = 9
	require.NoError(t, users.Save(context.Background(), u))

	gw.forwardErrByTID[55] = threadNotFoundErr("forwardMessage")
	gw.forwardErrByTID[100] = threadNotFoundErr("forwardMessage")

	svc.Relay(context.Background(), textMessage(42, 10, "doomed"), u)

	assert.Len(t, gw.topics, 1, "exactly one recovery attempt")
	assert.Contains(t, gw.sentTo(42), msgDeliveryFailed)
}

func TestRelayTopicCreateFailureNotifiesBusy(t *testing.T) {
	gw := newFakeGateway()
	gw.createTopicErr = &telegram.APIError{Method: "createForumTopic", Code: 429, Description: "Too Many Requests", Kind: telegram.KindRateLimited}
	svc, users, _, _ := newTestService(gw)

	u, _ := users.GetOrCreate(context.Background(), 42)
	svc.Relay(context.Background(), textMessage(42, 11, "hi"), u)

	assert.Contains(t, gw.sentTo(42), msgSystemBusy)
	assert.Empty(t, gw.forwards)
}

func TestRelayAbandonsSilentlyWhenLockContended(t *testing.T) {
	gw := newFakeGateway()
	svc, users, _, _ := newTestService(gw)

	u, _ := users.GetOrCreate(context.Background(), 42)
	require.True(t, svc.locks.TryAcquire(42))
	defer svc.locks.Release(42)

	svc.Relay(context.Background(), textMessage(42, 12, "racing"), u)

	assert.Empty(t, gw.sent, "contended relay must not produce any message")
	assert.Empty(t, gw.topics)
}

func TestRelayQuoteBecomesBlockquote(t *testing.T) {
	gw := newFakeGateway()
	svc, users, _, _ := newTestService(gw)

	u, _ := users.GetOrCreate(context.Background(), 42)
	u.TopicID = 55
	u.Info.CardMessageID = 9
	u.Info.Name = "Alice"
	u.Info.Username = "alice"
	require.NoError(t, users.Save(context.Background(), u))

	svc.Relay(context.Background(), textMessage(42, 13, "> some <secret> text"), u)

	assert.Empty(t, gw.forwards, "quoted text is rendered, not forwarded")
	inTopic := gw.sentInThread(55)
	require.Len(t, inTopic, 1)
	assert.Equal(t, "<blockquote>some &lt;secret&gt; text</blockquote>", inTopic[0].Text)
	assert.Equal(t, "HTML", inTopic[0].ParseMode)
}

func TestRelayRenamesTopicOnIdentityChange(t *testing.T) {
	gw := newFakeGateway()
	svc, users, _, _ := newTestService(gw)

	u, _ := users.GetOrCreate(context.Background(), 42)
	u.TopicID = 55
	u.Info.CardMessageID = 9
	u.Info.Name = "Old Name"
	u.Info.Username = "old"
	require.NoError(t, users.Save(context.Background(), u))

	svc.Relay(context.Background(), textMessage(42, 14, "renamed"), u)

	assert.Equal(t, []string{"Alice"}, gw.renames)
	stored := users.stored(42)
	assert.Equal(t, "Alice", stored.Info.Name)
	assert.Equal(t, "alice", stored.Info.Username)
}

func TestRelayBackupCopy(t *testing.T) {
	gw := newFakeGateway()
	svc, users, _, settings := newTestService(gw)
	settings["backup_group_id"] = "777"

	u, _ := users.GetOrCreate(context.Background(), 42)
	u.TopicID = 55
	u.Info.CardMessageID = 9
	u.Info.Name = "Alice"
	u.Info.Username = "alice"
	require.NoError(t, users.Save(context.Background(), u))

	svc.Relay(context.Background(), textMessage(42, 15, "back me up"), u)

	backups := gw.sentTo(777)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0], "📨 Backup")
	assert.Contains(t, backups[0], "back me up")
}

func TestEnsureCardDegradesToTextOnRejectedPhoto(t *testing.T) {
	gw := newFakeGateway()
	gw.profilePhotosErr = nil
	gw.profilePhotos = &telegram.UserProfilePhotos{
		TotalCount: 1,
		Photos:     [][]telegram.PhotoSize{{{FileID: "small"}, {FileID: "big"}}},
	}
	gw.sendPhotoErr = &telegram.APIError{Method: "sendPhoto", Code: 400, Description: "Bad Request: can't parse entities", Kind: telegram.KindContentRejected}

	svc, users, _, _ := newTestService(gw)
	u, _ := users.GetOrCreate(context.Background(), 42)

	from := &telegram.User{ID: 42, FirstName: "Alice"}
	cardID, err := svc.ensureCard(context.Background(), u, from, 55, 1700000000)
	require.NoError(t, err)
	assert.NotZero(t, cardID)

	inTopic := gw.sentInThread(55)
	require.Len(t, inTopic, 1)
	assert.Contains(t, inTopic[0].Text, "User Profile")
	assert.Equal(t, []int64{cardID}, gw.pinned)
}

func TestEnsureCardSkipsPhotoWhenCaptionTooLong(t *testing.T) {
	gw := newFakeGateway()
	gw.profilePhotosErr = nil
	gw.profilePhotos = &telegram.UserProfilePhotos{
		TotalCount: 1,
		Photos:     [][]telegram.PhotoSize{{{FileID: "avatar"}}},
	}
	svc, users, _, _ := newTestService(gw)

	u, _ := users.GetOrCreate(context.Background(), 42)
	u.Info.Note = strings.Repeat("n", 1200)

	from := &telegram.User{ID: 42, FirstName: "Alice"}
	cardID, err := svc.ensureCard(context.Background(), u, from, 55, 1700000000)
	require.NoError(t, err)
	assert.NotZero(t, cardID)

	assert.Empty(t, gw.photos, "an oversized card cannot ride a photo caption")
	inTopic := gw.sentInThread(55)
	require.Len(t, inTopic, 1)
	assert.Contains(t, inTopic[0].Text, "User Profile")
	assert.Equal(t, []int64{cardID}, gw.pinned)
}

func TestEnsureCardPropagatesThreadNotFound(t *testing.T) {
	gw := newFakeGateway()
	gw.sendErrByTID[55] = threadNotFoundErr("sendMessage")
	svc, users, _, _ := newTestService(gw)
	u, _ := users.GetOrCreate(context.Background(), 42)

	from := &telegram.User{ID: 42, FirstName: "Alice"}
	_, err := svc.ensureCard(context.Background(), u, from, 55, 0)
	require.Error(t, err)
	assert.True(t, telegram.IsThreadNotFound(err))
}

func TestResendCardClearsStaleTopic(t *testing.T) {
	gw := newFakeGateway()
	gw.sendErrByTID[55] = threadNotFoundErr("sendMessage")
	svc, users, _, _ := newTestService(gw)

	u, _ := users.GetOrCreate(context.Background(), 42)
	u.TopicID = 55
	require.NoError(t, users.Save(context.Background(), u))

	svc.ResendCard(context.Background(), u, &telegram.User{ID: 42, FirstName: "Alice"})

	assert.Zero(t, users.stored(42).TopicID, "undeliverable card invalidates the stored topic")
}

func TestRelayMediaStoresPlaceholderText(t *testing.T) {
	gw := newFakeGateway()
	svc, users, messages, _ := newTestService(gw)

	u, _ := users.GetOrCreate(context.Background(), 42)
	u.TopicID = 55
	u.Info.CardMessageID = 9
	u.Info.Name = "Alice"
	u.Info.Username = "alice"
	require.NoError(t, users.Save(context.Background(), u))

	msg := textMessage(42, 16, "")
	msg.Photo = []telegram.PhotoSize{{FileID: "p1"}}
	svc.Relay(context.Background(), msg, u)

	rec, err := messages.GetByUserMessage(context.Background(), 42, 16)
	require.NoError(t, err)
	assert.Equal(t, "[Media]", rec.Text)

	var quoted bool
	for _, req := range gw.sentInThread(55) {
		if strings.Contains(req.Text, "blockquote") {
			quoted = true
		}
	}
	assert.False(t, quoted, "media must be forwarded, not quoted")
	require.Len(t, gw.forwards, 1)
}
