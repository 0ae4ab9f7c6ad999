package dal

import (
	"errors"
	"github.com/spaolacci/murmur3"
	"herald_bot/platform"
	"strings"
	"time"
)

var (
	ErrThreadStopped     = errors.New("thread is stopped")
	ErrThreadCapReached  = errors.New("per-thread reply cap reached")
	ErrUserCapReached    = errors.New("per-user daily reply cap reached")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate key")
)

type PostKind string

const (
	KindReply    PostKind = "reply"
	KindTimeline PostKind = "timeline"
	KindQuote    PostKind = "quote"
)

type PostStatus string

const (
	PostDraft   PostStatus = "draft"
	PostPosted  PostStatus = "posted"
	PostBlocked PostStatus = "blocked"
)

type DraftStatus string

const (
	DraftPending  DraftStatus = "pending"
	DraftApproved DraftStatus = "approved"
	DraftRejected DraftStatus = "rejected"
	DraftPosted   DraftStatus = "posted"
	DraftExpired  DraftStatus = "expired"
)

// Runtime setting keys
const (
	SettingLastMentionId      = "last_mention_id"
	SettingLastReplyId        = "last_reply_id"
	SettingLastTimelinePostAt = "last_timeline_post_at"
	SettingNextTimelinePostAt = "next_timeline_post_at"
	SettingSafeMode           = "safe_mode"
	SettingApprovalRequired   = "approval_required"
)

type InboxEntry struct {
	Id           string // Same as the external post's ID
	Post         *platform.ExternalPost
	AuthorId     string
	QualityScore int
	ReceivedAt   time.Time
	Processed    bool
	ProcessedAt  *time.Time
	Skipped      bool
	SkipReason   string
}

type PostEntry struct {
	Id          string
	ExternalId  *string // Set once actually posted
	Text        string
	Kind        PostKind
	ReplyToId   *string
	Status      PostStatus
	ContentHash uint32
	CreatedAt   time.Time
	PostedAt    *time.Time
}

type DraftEntry struct {
	Id             string
	Text           string
	Kind           PostKind
	ReplyToId      *string
	ConversationId string
	AuthorId       string
	Status         DraftStatus
	ContentHash    uint32
	CreatedAt      time.Time
	DecidedAt      *time.Time // Approved or rejected
	PostedAt       *time.Time
	ExpiredAt      *time.Time
	RejectReason   string
	PostId         string
}

// DraftUpdate carries the values that accompany a draft transition.
type DraftUpdate struct {
	When         time.Time
	RejectReason string
	PostId       string
}

type ReplyLogEntry struct {
	TargetId    string
	ReplyPostId string
	RepliedAt   time.Time
}

type ThreadState struct {
	ConversationId string
	AuthorId       string
	ReplyCount     int
	LastReplyAt    *time.Time
	Stopped        bool
	StopReason     string
}

type UserLimitState struct {
	UserId string
	Day    string // YYYY-MM-DD, UTC
	Count  int
}

type RuntimeSetting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

var draftTransitions = map[DraftStatus][]DraftStatus{
	DraftPending:  {DraftApproved, DraftRejected, DraftExpired},
	DraftApproved: {DraftPosted, DraftExpired},
}

// CanTransitionDraft tells whether the draft state machine allows from => to.
func CanTransitionDraft(from, to DraftStatus) bool {
	for _, s := range draftTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func canTransitionPost(from, to PostStatus) bool {
	return from == PostDraft && (to == PostPosted || to == PostBlocked)
}

func applyDraftUpdate(d *DraftEntry, to DraftStatus, upd DraftUpdate) {
	when := upd.When.UTC()
	d.Status = to
	switch to {
	case DraftApproved:
		d.DecidedAt = &when
	case DraftRejected:
		d.DecidedAt = &when
		d.RejectReason = upd.RejectReason
	case DraftPosted:
		d.PostedAt = &when
		d.PostId = upd.PostId
	case DraftExpired:
		d.ExpiredAt = &when
	}
}

// ContentHash fingerprints post text for duplicate detection; case and spacing are ignored.
func ContentHash(text string) uint32 {
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	hasher := murmur3.New32()
	_, _ = hasher.Write([]byte(norm))
	return hasher.Sum32()
}
