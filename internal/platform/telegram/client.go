package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"support-bot-backend/internal/common/logger"
)

const defaultBaseURL = "https://api.telegram.org"

// Client is a thin Bot API client covering the methods this service consumes.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient(token string) *Client {
	return NewClientWithBaseURL(token, defaultBaseURL)
}

// NewClientWithBaseURL targets a non-default endpoint, such as a
// self-hosted Bot API server.
func NewClientWithBaseURL(token, baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		token:      token,
	}
}

// response is the Bot API envelope shared by every method.
type response struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, payload interface{}, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var envelope response
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", method, err)
	}

	if !envelope.Ok {
		logger.Warn().Str("method", method).Int("code", envelope.ErrorCode).
			Str("description", envelope.Description).Msg("Telegram API error")
		return newAPIError(method, envelope.ErrorCode, envelope.Description)
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to parse %s result: %w", method, err)
		}
	}
	return nil
}

type SendMessageRequest struct {
	ChatID              int64                 `json:"chat_id"`
	MessageThreadID     int64                 `json:"message_thread_id,omitempty"`
	Text                string                `json:"text"`
	ParseMode           string                `json:"parse_mode,omitempty"`
	ReplyToMessageID    int64                 `json:"reply_to_message_id,omitempty"`
	DisableNotification bool                  `json:"disable_notification,omitempty"`
	ReplyMarkup         *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	var msg Message
	if err := c.call(ctx, "sendMessage", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

type SendPhotoRequest struct {
	ChatID          int64                 `json:"chat_id"`
	MessageThreadID int64                 `json:"message_thread_id,omitempty"`
	Photo           string                `json:"photo"`
	Caption         string                `json:"caption,omitempty"`
	ParseMode       string                `json:"parse_mode,omitempty"`
	ReplyMarkup     *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (c *Client) SendPhoto(ctx context.Context, req SendPhotoRequest) (*Message, error) {
	var msg Message
	if err := c.call(ctx, "sendPhoto", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendMedia sends a photo, video or animation by file id with an HTML caption.
// Used for the configurable media welcome message.
func (c *Client) SendMedia(ctx context.Context, chatID int64, mediaType, fileID, caption string) (*Message, error) {
	method := map[string]string{
		"photo":     "sendPhoto",
		"video":     "sendVideo",
		"animation": "sendAnimation",
	}[mediaType]
	if method == "" {
		return nil, fmt.Errorf("unsupported media type %q", mediaType)
	}
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"caption":    caption,
		"parse_mode": "HTML",
		mediaType:    fileID,
	}

	var msg Message
	if err := c.call(ctx, method, payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

type forwardMessageRequest struct {
	ChatID          int64 `json:"chat_id"`
	FromChatID      int64 `json:"from_chat_id"`
	MessageID       int64 `json:"message_id"`
	MessageThreadID int64 `json:"message_thread_id,omitempty"`
}

func (c *Client) ForwardMessage(ctx context.Context, chatID, fromChatID, messageID, threadID int64) (*Message, error) {
	var msg Message
	req := forwardMessageRequest{ChatID: chatID, FromChatID: fromChatID, MessageID: messageID, MessageThreadID: threadID}
	if err := c.call(ctx, "forwardMessage", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

type CopyMessageRequest struct {
	ChatID           int64 `json:"chat_id"`
	FromChatID       int64 `json:"from_chat_id"`
	MessageID        int64 `json:"message_id"`
	MessageThreadID  int64 `json:"message_thread_id,omitempty"`
	ReplyToMessageID int64 `json:"reply_to_message_id,omitempty"`
}

func (c *Client) CopyMessage(ctx context.Context, req CopyMessageRequest) (*MessageID, error) {
	var id MessageID
	if err := c.call(ctx, "copyMessage", req, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

func (c *Client) CreateForumTopic(ctx context.Context, chatID int64, name string) (*ForumTopic, error) {
	var topic ForumTopic
	payload := map[string]interface{}{"chat_id": chatID, "name": name}
	if err := c.call(ctx, "createForumTopic", payload, &topic); err != nil {
		return nil, err
	}
	return &topic, nil
}

func (c *Client) EditForumTopic(ctx context.Context, chatID, threadID int64, name string) error {
	payload := map[string]interface{}{"chat_id": chatID, "message_thread_id": threadID, "name": name}
	return c.call(ctx, "editForumTopic", payload, nil)
}

type EditMessageTextRequest struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (c *Client) EditMessageText(ctx context.Context, req EditMessageTextRequest) error {
	return c.call(ctx, "editMessageText", req, nil)
}

type EditMessageCaptionRequest struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Caption     string                `json:"caption"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (c *Client) EditMessageCaption(ctx context.Context, req EditMessageCaptionRequest) error {
	return c.call(ctx, "editMessageCaption", req, nil)
}

func (c *Client) EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *InlineKeyboardMarkup) error {
	payload := map[string]interface{}{"chat_id": chatID, "message_id": messageID, "reply_markup": markup}
	return c.call(ctx, "editMessageReplyMarkup", payload, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	payload := map[string]interface{}{"chat_id": chatID, "message_id": messageID}
	return c.call(ctx, "deleteMessage", payload, nil)
}

func (c *Client) PinChatMessage(ctx context.Context, chatID, messageID, threadID int64) error {
	payload := map[string]interface{}{"chat_id": chatID, "message_id": messageID}
	if threadID != 0 {
		payload["message_thread_id"] = threadID
	}
	return c.call(ctx, "pinChatMessage", payload, nil)
}

func (c *Client) GetUserProfilePhotos(ctx context.Context, userID int64, limit int) (*UserProfilePhotos, error) {
	var photos UserProfilePhotos
	payload := map[string]interface{}{"user_id": userID, "limit": limit}
	if err := c.call(ctx, "getUserProfilePhotos", payload, &photos); err != nil {
		return nil, err
	}
	return &photos, nil
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string, showAlert bool) error {
	payload := map[string]interface{}{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	if showAlert {
		payload["show_alert"] = true
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand, scope BotCommandScope) error {
	payload := map[string]interface{}{"commands": commands, "scope": scope}
	return c.call(ctx, "setMyCommands", payload, nil)
}

func (c *Client) DeleteMyCommands(ctx context.Context, scope BotCommandScope) error {
	payload := map[string]interface{}{"scope": scope}
	return c.call(ctx, "deleteMyCommands", payload, nil)
}
