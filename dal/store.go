package dal

import (
	"herald_bot/shared"
	"time"
)

type IInboxRepo interface {
	AddInboxEntryIfNew(entry *InboxEntry) (isNew bool, err error)
	HasInboxEntry(id string) (bool, error)
	GetInboxEntry(id string) (*InboxEntry, error)
	MarkInboxProcessed(id string, when time.Time) error
	MarkInboxSkipped(id, reason string, when time.Time) error
	ListUnprocessedInbox(limit int) ([]*InboxEntry, error)
}

type IPostRepo interface {
	AddPost(post *PostEntry) error
	GetPost(id string) (*PostEntry, error)
	// UpdatePostStatus moves a draft post forward; anything else is ErrInvalidTransition.
	UpdatePostStatus(id string, status PostStatus, externalId *string, when time.Time) error
	CountPostedSince(kind PostKind, since time.Time) (int, error)
	HasContentHash(hash uint32, since time.Time) (bool, error)
	ListRecentPosts(limit int) ([]*PostEntry, error)
}

type IDraftRepo interface {
	AddDraft(draft *DraftEntry) error
	GetDraft(id string) (*DraftEntry, error)
	// ListDrafts returns drafts oldest first; an empty status means any.
	ListDrafts(status DraftStatus, limit int) ([]*DraftEntry, error)
	// TransitionDraft is a compare-and-set on the draft's status.
	TransitionDraft(id string, from, to DraftStatus, upd DraftUpdate) error
	CountDrafts(status DraftStatus) (int, error)
}

type IReplyLogRepo interface {
	AddReplyLogIfNew(entry *ReplyLogEntry) (isNew bool, err error)
	HasReplied(targetId string) (bool, error)
	GetReplyLog(targetId string) (*ReplyLogEntry, error)
}

type IThreadRepo interface {
	GetThread(conversationId string) (*ThreadState, error)
	StopThread(conversationId, authorId, reason string, when time.Time) error
	IncrementThreadReplies(conversationId, authorId string, when time.Time) (int, error)
}

type IUserLimitRepo interface {
	GetUserCount(userId, day string) (int, error)
	IncrementUserCount(userId, day string) (int, error)
}

type ISettingsRepo interface {
	GetSetting(key string) (val string, found bool, err error)
	SetSetting(key, val string, when time.Time) error
	ListSettings() ([]*RuntimeSetting, error)
}

type IReplyCounters interface {
	// RecordReply reserves our reply to targetId on the thread and the user-day counters together,
	// or returns ErrThreadStopped, ErrThreadCapReached or ErrUserCapReached and changes neither.
	// A target that already holds a reservation keeps it and nothing is counted again.
	RecordReply(targetId, conversationId, authorId, day string, maxThread, maxUser int, when time.Time) error
	HasReservation(targetId string) (bool, error)
	// ReleaseReply hands back the counts of a reservation whose reply never went out.
	// Targets in the reply log keep theirs.
	ReleaseReply(targetId string) (released bool, err error)
}

type IStore interface {
	IInboxRepo
	IPostRepo
	IDraftRepo
	IReplyLogRepo
	IThreadRepo
	IUserLimitRepo
	ISettingsRepo
	IReplyCounters
	InitUpdateDb()
	Close() error
}

// NewStore picks the backing configured in store_backend.
func NewStore(cfg *shared.Config, logger shared.ILogger) IStore {
	if cfg.StoreBackend == shared.StoreMemory {
		logger.Warnf("Using in-memory store; state will not survive a restart")
		return NewMemStore()
	}
	return NewSqliteStore(cfg, logger)
}
