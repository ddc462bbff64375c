package models

// UserState tracks the verification lifecycle of an end user.
type UserState string

const (
	StateNew                 UserState = "new"
	StatePendingVerification UserState = "pending_verification"
	StateVerified            UserState = "verified"
)

// User is the per-user record. TopicID is the discussion thread inside the
// admin supergroup; zero means no thread yet, or the thread was invalidated.
type User struct {
	ID         int64     `json:"id"`
	State      UserState `json:"state"`
	IsBlocked  bool      `json:"is_blocked"`
	BlockCount int       `json:"block_count"`
	TopicID    int64     `json:"topic_id,omitempty"`
	Info       UserInfo  `json:"info"`
}

// UserInfo holds the optional per-user metadata. Zero values mean "absent".
type UserInfo struct {
	// Cached display name and handle, used to detect renames.
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	// Admin-set note shown on the profile card.
	Note string `json:"note,omitempty"`
	// Unix seconds of the first relayed message.
	JoinDate int64 `json:"join_date,omitempty"`
	// Pinned profile card inside the topic; zero = not yet sent.
	CardMessageID int64 `json:"card_message_id,omitempty"`
	// Transient placeholder sent on topic creation; zero = already cleaned up.
	DummyMessageID int64 `json:"dummy_message_id,omitempty"`
	// Unix milliseconds of the last busy-mode auto reply.
	LastBusyReply int64 `json:"last_busy_reply,omitempty"`
	// Blacklist notice inside the blocked topic; zero = none.
	BlacklistMessageID int64 `json:"blacklist_message_id,omitempty"`
}

// NewUser returns the default record created on first contact.
func NewUser(id int64) *User {
	return &User{ID: id, State: StateNew}
}
