package models

import (
	"support-bot-backend/internal/platform/telegram"
)

// ContentKind is the closed classification of inbound message content.
type ContentKind int

const (
	ContentForward ContentKind = iota
	ContentChannelForward
	ContentAudio
	ContentSticker
	ContentMedia
	ContentLink
	ContentText
)

// Content describes the classification result: the per-type enable flag in
// the config table and a human label for the rejection notice.
type Content struct {
	Kind       ContentKind
	SettingKey string
	Label      string
}

// Classify matches the message against content kinds in a fixed priority
// order: forward/channel > audio/voice > sticker/animation > media > link >
// text. The order is behaviorally significant: a forwarded photo counts as
// a forward, not as media.
func Classify(m *telegram.Message) (Content, bool) {
	switch {
	case m.ForwardFrom != nil || m.ForwardFromChat != nil:
		if m.IsChannelForward() {
			return Content{ContentChannelForward, "enable_channel_forwarding", "forwarded channel posts"}, true
		}
		return Content{ContentForward, "enable_forward_forwarding", "forwarded messages"}, true
	case m.Audio != nil || m.Voice != nil:
		return Content{ContentAudio, "enable_audio_forwarding", "voice/audio"}, true
	case m.Sticker != nil || m.Animation != nil:
		return Content{ContentSticker, "enable_sticker_forwarding", "stickers/GIFs"}, true
	case len(m.Photo) > 0 || m.Video != nil || m.Document != nil:
		return Content{ContentMedia, "enable_image_forwarding", "media files"}, true
	case m.HasLink():
		return Content{ContentLink, "enable_link_forwarding", "links"}, true
	case m.Text != "":
		return Content{ContentText, "enable_text_forwarding", "plain text"}, true
	default:
		return Content{}, false
	}
}
