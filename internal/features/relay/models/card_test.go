package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	usermodels "support-bot-backend/internal/features/user/models"
	"support-bot-backend/internal/platform/telegram"
)

func TestBuildUserMeta(t *testing.T) {
	from := &telegram.User{ID: 42, FirstName: "Alice", LastName: "Liddell", Username: "alice"}
	u := usermodels.NewUser(42)

	meta := BuildUserMeta(from, u, 1700000000)

	assert.Equal(t, int64(42), meta.UserID)
	assert.Equal(t, "Alice Liddell", meta.Name)
	assert.Equal(t, "alice", meta.Username)
	assert.Equal(t, "Alice Liddell", meta.TopicName)
	assert.Contains(t, meta.Card, "🪪 User Profile")
	assert.Contains(t, meta.Card, "<code>Alice Liddell</code>")
	assert.Contains(t, meta.Card, "@alice")
	assert.Contains(t, meta.Card, "<code>42</code>")
	assert.Contains(t, meta.Card, "2023-11-14")
	assert.NotContains(t, meta.Card, "Note:", "no note line without a note")
}

func TestBuildUserMetaEscapesAndNote(t *testing.T) {
	from := &telegram.User{ID: 42, FirstName: "<b>Eve</b>"}
	u := usermodels.NewUser(42)
	u.Info.Note = "vip & <important>"

	meta := BuildUserMeta(from, u, 1700000000)

	assert.Contains(t, meta.Card, "&lt;b&gt;Eve&lt;/b&gt;")
	assert.Contains(t, meta.Card, "📝 <b>Note:</b> vip &amp; &lt;important&gt;")
	assert.Contains(t, meta.Card, "no username")
}

func TestBuildUserMetaFallbacks(t *testing.T) {
	from := &telegram.User{ID: 42}
	meta := BuildUserMeta(from, usermodels.NewUser(42), 0)

	assert.Equal(t, "Unnamed user", meta.Name)
	assert.NotContains(t, meta.Card, "🕒: <code></code>", "zero date falls back to now")
}

func TestBuildUserMetaTruncatesTopicName(t *testing.T) {
	from := &telegram.User{ID: 42, FirstName: strings.Repeat("名", 200)}
	meta := BuildUserMeta(from, usermodels.NewUser(42), 1700000000)

	assert.Equal(t, maxTopicNameLen, len([]rune(meta.TopicName)))
}

func TestCardKeyboard(t *testing.T) {
	kb := CardKeyboard(42, false)
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "tg://user?id=42", kb.InlineKeyboard[0][0].URL)
	assert.Equal(t, "block:42", kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "note:set:42", kb.InlineKeyboard[2][0].CallbackData)
	assert.Equal(t, "pin_card:42", kb.InlineKeyboard[2][1].CallbackData)

	blocked := CardKeyboard(42, true)
	assert.Equal(t, "unblock:42", blocked.InlineKeyboard[1][0].CallbackData)
}

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "a &amp;&amp; b &lt;c&gt;", EscapeHTML("a && b <c>"))
}
