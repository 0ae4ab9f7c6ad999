package dto

import "time"

type Draft struct {
	Id             string     `json:"id"`
	Text           string     `json:"text"`
	Kind           string     `json:"kind"`
	Status         string     `json:"status"`
	ReplyToId      *string    `json:"reply_to_id,omitempty"`
	ConversationId string     `json:"conversation_id,omitempty"`
	AuthorId       string     `json:"author_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	ExpiredAt      *time.Time `json:"expired_at,omitempty"`
	RejectReason   string     `json:"reject_reason,omitempty"`
	PostId         string     `json:"post_id,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type Setting struct {
	Key       string     `json:"key"`
	Value     string     `json:"value"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type SettingUpdate struct {
	Value string `json:"value"`
}

// Settings is the effective runtime switches plus every persisted key.
type Settings struct {
	SafeMode         bool      `json:"safe_mode"`
	ApprovalRequired bool      `json:"approval_required"`
	Stored           []Setting `json:"stored"`
}

type Health struct {
	Status       string   `json:"status"`
	Platform     bool     `json:"platform"`
	Coordination bool     `json:"coordination"`
	Workers      []string `json:"workers"`
}
