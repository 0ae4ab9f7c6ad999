package dal

import (
	"sort"
	"sync"
	"time"
)

type userDayKey struct {
	userId string
	day    string
}

type reservation struct {
	conversationId string
	authorId       string
	day            string
}

type memStore struct {
	mu         sync.RWMutex
	inbox      map[string]*InboxEntry
	posts      map[string]*PostEntry
	postOrder  []string
	drafts     map[string]*DraftEntry
	draftOrder []string
	replyLog   map[string]*ReplyLogEntry
	threads    map[string]*ThreadState
	userLimits map[userDayKey]int
	reserved   map[string]reservation
	settings   map[string]*RuntimeSetting
}

// NewMemStore returns a non-durable IStore with the same contract as the SQLite store.
func NewMemStore() IStore {
	return &memStore{
		inbox:      make(map[string]*InboxEntry),
		posts:      make(map[string]*PostEntry),
		drafts:     make(map[string]*DraftEntry),
		replyLog:   make(map[string]*ReplyLogEntry),
		threads:    make(map[string]*ThreadState),
		userLimits: make(map[userDayKey]int),
		reserved:   make(map[string]reservation),
		settings:   make(map[string]*RuntimeSetting),
	}
}

func (ms *memStore) InitUpdateDb() {}

func (ms *memStore) Close() error { return nil }

func (ms *memStore) AddInboxEntryIfNew(entry *InboxEntry) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, exists := ms.inbox[entry.Id]; exists {
		return false, nil
	}
	cpy := *entry
	ms.inbox[entry.Id] = &cpy
	return true, nil
}

func (ms *memStore) HasInboxEntry(id string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, exists := ms.inbox[id]
	return exists, nil
}

func (ms *memStore) GetInboxEntry(id string) (*InboxEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if e, ok := ms.inbox[id]; ok {
		cpy := *e
		return &cpy, nil
	}
	return nil, nil
}

func (ms *memStore) MarkInboxProcessed(id string, when time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	e, ok := ms.inbox[id]
	if !ok {
		return ErrNotFound
	}
	when = when.UTC()
	e.Processed = true
	e.ProcessedAt = &when
	return nil
}

func (ms *memStore) MarkInboxSkipped(id, reason string, when time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	e, ok := ms.inbox[id]
	if !ok {
		return ErrNotFound
	}
	when = when.UTC()
	e.Processed = true
	e.ProcessedAt = &when
	e.Skipped = true
	e.SkipReason = reason
	return nil
}

func (ms *memStore) ListUnprocessedInbox(limit int) ([]*InboxEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var res []*InboxEntry
	for _, e := range ms.inbox {
		if !e.Processed {
			cpy := *e
			res = append(res, &cpy)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ReceivedAt.Before(res[j].ReceivedAt)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (ms *memStore) AddPost(post *PostEntry) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, exists := ms.posts[post.Id]; exists {
		return ErrDuplicate
	}
	cpy := *post
	ms.posts[post.Id] = &cpy
	ms.postOrder = append(ms.postOrder, post.Id)
	return nil
}

func (ms *memStore) GetPost(id string) (*PostEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if p, ok := ms.posts[id]; ok {
		cpy := *p
		return &cpy, nil
	}
	return nil, nil
}

func (ms *memStore) UpdatePostStatus(id string, status PostStatus, externalId *string, when time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	p, ok := ms.posts[id]
	if !ok {
		return ErrNotFound
	}
	if !canTransitionPost(p.Status, status) {
		return ErrInvalidTransition
	}
	p.Status = status
	if status == PostPosted {
		when = when.UTC()
		p.PostedAt = &when
		p.ExternalId = externalId
	}
	return nil
}

func (ms *memStore) CountPostedSince(kind PostKind, since time.Time) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	count := 0
	for _, p := range ms.posts {
		if p.Kind == kind && p.Status == PostPosted && p.PostedAt != nil && !p.PostedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (ms *memStore) HasContentHash(hash uint32, since time.Time) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	for _, p := range ms.posts {
		if p.ContentHash == hash && !p.CreatedAt.Before(since) {
			return true, nil
		}
	}
	for _, d := range ms.drafts {
		if d.Status == DraftPending || d.Status == DraftApproved {
			if d.ContentHash == hash && !d.CreatedAt.Before(since) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (ms *memStore) ListRecentPosts(limit int) ([]*PostEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var res []*PostEntry
	for i := len(ms.postOrder) - 1; i >= 0; i-- {
		if limit > 0 && len(res) == limit {
			break
		}
		cpy := *ms.posts[ms.postOrder[i]]
		res = append(res, &cpy)
	}
	return res, nil
}

func (ms *memStore) AddDraft(draft *DraftEntry) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, exists := ms.drafts[draft.Id]; exists {
		return ErrDuplicate
	}
	cpy := *draft
	ms.drafts[draft.Id] = &cpy
	ms.draftOrder = append(ms.draftOrder, draft.Id)
	return nil
}

func (ms *memStore) GetDraft(id string) (*DraftEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if d, ok := ms.drafts[id]; ok {
		cpy := *d
		return &cpy, nil
	}
	return nil, nil
}

func (ms *memStore) ListDrafts(status DraftStatus, limit int) ([]*DraftEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var res []*DraftEntry
	for _, id := range ms.draftOrder {
		if limit > 0 && len(res) == limit {
			break
		}
		d := ms.drafts[id]
		if status == "" || d.Status == status {
			cpy := *d
			res = append(res, &cpy)
		}
	}
	return res, nil
}

func (ms *memStore) TransitionDraft(id string, from, to DraftStatus, upd DraftUpdate) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	d, ok := ms.drafts[id]
	if !ok {
		return ErrNotFound
	}
	if d.Status != from || !CanTransitionDraft(from, to) {
		return ErrInvalidTransition
	}
	applyDraftUpdate(d, to, upd)
	return nil
}

func (ms *memStore) CountDrafts(status DraftStatus) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	count := 0
	for _, d := range ms.drafts {
		if d.Status == status {
			count++
		}
	}
	return count, nil
}

func (ms *memStore) AddReplyLogIfNew(entry *ReplyLogEntry) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, exists := ms.replyLog[entry.TargetId]; exists {
		return false, nil
	}
	cpy := *entry
	ms.replyLog[entry.TargetId] = &cpy
	return true, nil
}

func (ms *memStore) HasReplied(targetId string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, exists := ms.replyLog[targetId]
	return exists, nil
}

func (ms *memStore) GetReplyLog(targetId string) (*ReplyLogEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if e, ok := ms.replyLog[targetId]; ok {
		cpy := *e
		return &cpy, nil
	}
	return nil, nil
}

func (ms *memStore) GetThread(conversationId string) (*ThreadState, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ts, ok := ms.threads[conversationId]; ok {
		cpy := *ts
		return &cpy, nil
	}
	return nil, nil
}

func (ms *memStore) thread(conversationId, authorId string) *ThreadState {
	ts, ok := ms.threads[conversationId]
	if !ok {
		ts = &ThreadState{ConversationId: conversationId, AuthorId: authorId}
		ms.threads[conversationId] = ts
	}
	return ts
}

func (ms *memStore) StopThread(conversationId, authorId, reason string, when time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ts := ms.thread(conversationId, authorId)
	if !ts.Stopped {
		ts.Stopped = true
		ts.StopReason = reason
	}
	return nil
}

func (ms *memStore) IncrementThreadReplies(conversationId, authorId string, when time.Time) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.incrementThread(conversationId, authorId, when), nil
}

func (ms *memStore) incrementThread(conversationId, authorId string, when time.Time) int {
	ts := ms.thread(conversationId, authorId)
	when = when.UTC()
	ts.ReplyCount++
	ts.LastReplyAt = &when
	return ts.ReplyCount
}

func (ms *memStore) GetUserCount(userId, day string) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.userLimits[userDayKey{userId, day}], nil
}

func (ms *memStore) IncrementUserCount(userId, day string) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	key := userDayKey{userId, day}
	ms.userLimits[key]++
	return ms.userLimits[key], nil
}

func (ms *memStore) RecordReply(targetId, conversationId, authorId, day string, maxThread, maxUser int, when time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, held := ms.reserved[targetId]; held {
		return nil
	}
	if ts, ok := ms.threads[conversationId]; ok {
		if ts.Stopped {
			return ErrThreadStopped
		}
		if ts.ReplyCount >= maxThread {
			return ErrThreadCapReached
		}
	} else if maxThread <= 0 {
		return ErrThreadCapReached
	}
	key := userDayKey{authorId, day}
	if ms.userLimits[key] >= maxUser {
		return ErrUserCapReached
	}
	ms.incrementThread(conversationId, authorId, when)
	ms.userLimits[key]++
	ms.reserved[targetId] = reservation{conversationId, authorId, day}
	return nil
}

func (ms *memStore) HasReservation(targetId string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, held := ms.reserved[targetId]
	return held, nil
}

func (ms *memStore) ReleaseReply(targetId string) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	res, held := ms.reserved[targetId]
	if !held {
		return false, nil
	}
	if _, logged := ms.replyLog[targetId]; logged {
		return false, nil
	}
	delete(ms.reserved, targetId)
	if ts, ok := ms.threads[res.conversationId]; ok && ts.ReplyCount > 0 {
		ts.ReplyCount--
	}
	key := userDayKey{res.authorId, res.day}
	if ms.userLimits[key] > 0 {
		ms.userLimits[key]--
	}
	return true, nil
}

func (ms *memStore) GetSetting(key string) (string, bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if s, ok := ms.settings[key]; ok {
		return s.Value, true, nil
	}
	return "", false, nil
}

func (ms *memStore) SetSetting(key, val string, when time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.settings[key] = &RuntimeSetting{Key: key, Value: val, UpdatedAt: when.UTC()}
	return nil
}

func (ms *memStore) ListSettings() ([]*RuntimeSetting, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var res []*RuntimeSetting
	for _, s := range ms.settings {
		cpy := *s
		res = append(res, &cpy)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Key < res[j].Key })
	return res, nil
}
