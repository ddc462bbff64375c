package models

// MessageRecord correlates an inbound private message with the message it
// produced inside the admin-group topic, so admin replies can be resolved
// back to replies in the user's chat.
type MessageRecord struct {
	UserID         int64  `json:"user_id"`
	MessageID      int64  `json:"message_id"`
	Text           string `json:"text"`
	Date           int64  `json:"date"`
	TopicMessageID int64  `json:"topic_message_id"`
}
