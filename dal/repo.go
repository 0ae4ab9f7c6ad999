package dal

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/mattn/go-sqlite3"
	"herald_bot/platform"
	"herald_bot/shared"
	"sync"
	"time"
)

const schemaVer = 2

//go:embed scripts/*
var scripts embed.FS

type Repo struct {
	cfg    *shared.Config
	logger shared.ILogger
	db     *sql.DB
	muDb   sync.RWMutex
}

func NewSqliteStore(cfg *shared.Config, logger shared.ILogger) IStore {

	var err error
	var db *sql.DB

	// https://phiresky.github.io/blog/2020/sqlite-performance-tuning/
	// _synchronous=1 is "normal"
	// _txlock=immediate takes the write lock at BEGIN, so read-check-write transactions
	// can't interleave with another process
	cstr := "file:%s?cache=shared&mode=rwc&_journal_mode=WAL&_synchronous=1&_busy_timeout=5000&_txlock=immediate"
	db, err = sql.Open("sqlite3", fmt.Sprintf(cstr, cfg.DbFile))
	if err != nil {
		logger.Errorf("Failed to open/create DB file: %s: %v", cfg.DbFile, err)
		panic(err)
	}

	repo := Repo{
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	return &repo
}

func (repo *Repo) Close() error {
	return repo.db.Close()
}

func (repo *Repo) InitUpdateDb() {

	dbVer := 0
	sysParamsExists := false
	var err error
	var rows *sql.Rows

	rows, err = repo.db.Query("SELECT name FROM sqlite_master WHERE type='table' AND name='sys_params'")
	if err != nil {
		repo.logger.Errorf("Failed to check if 'sys_params' table exists: %v", err)
		panic(err)
	}
	for rows.Next() {
		sysParamsExists = true
	}
	_ = rows.Close()
	if !sysParamsExists {
		repo.logger.Printf("Database appears to be empty; current schema version is %d", schemaVer)
	} else {
		row := repo.db.QueryRow("SELECT val FROM sys_params WHERE name='schema_ver'")
		if err = row.Scan(&dbVer); err != nil {
			repo.logger.Errorf("Failed to query schema version: %v", err)
			panic(err)
		}
		repo.logger.Printf("Database is at version %d; current schema version is %d", dbVer, schemaVer)
	}
	for i := dbVer; i < schemaVer; i += 1 {
		nextVer := i + 1
		fn := fmt.Sprintf("scripts/create-%02d.sql", nextVer)
		repo.logger.Printf("Running %s", fn)
		var sqlBytes []byte
		if sqlBytes, err = scripts.ReadFile(fn); err != nil {
			repo.logger.Errorf("Failed to read init script %s: %v", fn, err)
			panic(err)
		}
		sqlStr := string(sqlBytes)
		if _, err = repo.db.Exec(sqlStr); err != nil {
			repo.logger.Errorf("Failed to execute init script %s: %v", fn, err)
			panic(err)
		}
		_, err = repo.db.Exec("UPDATE sys_params SET val=? WHERE name='schema_ver'", nextVer)
		if err != nil {
			repo.logger.Errorf("Failed to update schema_ver to %d: %v", nextVer, err)
			panic(err)
		}
	}
}

func isDuplicateKey(err error) bool {
	// MySQL: mysql.MySQLError; mysqlErr.Number == 1062
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == 19 && (sqliteErr.ExtendedCode == 1555 || sqliteErr.ExtendedCode == 2067)
	}
	return false
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func fromNullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Inbox

const inboxCols = `id, post_json, author_id, quality_score, received_at, processed, processed_at, skipped, skip_reason`

func scanInboxEntry(row rowScanner) (*InboxEntry, error) {
	var res InboxEntry
	var postJson string
	var processedAt sql.NullTime
	err := row.Scan(&res.Id, &postJson, &res.AuthorId, &res.QualityScore, &res.ReceivedAt, &res.Processed,
		&processedAt, &res.Skipped, &res.SkipReason)
	if err != nil {
		return nil, err
	}
	res.ProcessedAt = fromNullTime(processedAt)
	res.Post = &platform.ExternalPost{}
	if err = json.Unmarshal([]byte(postJson), res.Post); err != nil {
		return nil, err
	}
	return &res, nil
}

func (repo *Repo) AddInboxEntryIfNew(entry *InboxEntry) (isNew bool, err error) {

	repo.muDb.Lock()
	defer repo.muDb.Unlock()

	var postJson []byte
	if postJson, err = json.Marshal(entry.Post); err != nil {
		return false, err
	}
	_, err = repo.db.Exec(`INSERT INTO inbox (`+inboxCols+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Id, string(postJson), entry.AuthorId, entry.QualityScore, entry.ReceivedAt.UTC(),
		entry.Processed, nullTime(entry.ProcessedAt), entry.Skipped, entry.SkipReason)
	if err == nil {
		return true, nil
	}
	if isDuplicateKey(err) {
		return false, nil
	}
	return false, err
}

func (repo *Repo) HasInboxEntry(id string) (bool, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	var count int
	if err := repo.db.QueryRow(`SELECT COUNT(*) FROM inbox WHERE id=?`, id).Scan(&count); err != nil {
		return false, err
	}
	return count != 0, nil
}

func (repo *Repo) GetInboxEntry(id string) (*InboxEntry, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	res, err := scanInboxEntry(repo.db.QueryRow(`SELECT `+inboxCols+` FROM inbox WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (repo *Repo) updateInbox(query string, args ...any) error {

	repo.muDb.Lock()
	defer repo.muDb.Unlock()

	res, err := repo.db.Exec(query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (repo *Repo) MarkInboxProcessed(id string, when time.Time) error {
	return repo.updateInbox(`UPDATE inbox SET processed=1, processed_at=? WHERE id=?`, when.UTC(), id)
}

func (repo *Repo) MarkInboxSkipped(id, reason string, when time.Time) error {
	return repo.updateInbox(`UPDATE inbox SET processed=1, processed_at=?, skipped=1, skip_reason=? WHERE id=?`,
		when.UTC(), reason, id)
}

func (repo *Repo) ListUnprocessedInbox(limit int) ([]*InboxEntry, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := repo.db.Query(`SELECT `+inboxCols+` FROM inbox WHERE processed=0
		ORDER BY received_at, rowid LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*InboxEntry
	for rows.Next() {
		var e *InboxEntry
		if e, err = scanInboxEntry(rows); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// Posts

const postCols = `id, external_id, text, kind, reply_to_id, status, content_hash, created_at, posted_at`

func scanPost(row rowScanner) (*PostEntry, error) {
	var res PostEntry
	var externalId, replyToId sql.NullString
	var hash int64
	var postedAt sql.NullTime
	err := row.Scan(&res.Id, &externalId, &res.Text, &res.Kind, &replyToId, &res.Status, &hash,
		&res.CreatedAt, &postedAt)
	if err != nil {
		return nil, err
	}
	res.ExternalId = fromNullStr(externalId)
	res.ReplyToId = fromNullStr(replyToId)
	res.ContentHash = uint32(hash)
	res.PostedAt = fromNullTime(postedAt)
	return &res, nil
}

func (repo *Repo) AddPost(post *PostEntry) error {

	repo.muDb.Lock()
	defer repo.muDb.Unlock()

	_, err := repo.db.Exec(`INSERT INTO posts (`+postCols+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.Id, nullStr(post.ExternalId), post.Text, post.Kind, nullStr(post.ReplyToId), post.Status,
		int64(post.ContentHash), post.CreatedAt.UTC(), nullTime(post.PostedAt))
	if isDuplicateKey(err) {
		return ErrDuplicate
	}
	return err
}

func (repo *Repo) GetPost(id string) (*PostEntry, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	res, err := scanPost(repo.db.QueryRow(`SELECT `+postCols+` FROM posts WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (repo *Repo) UpdatePostStatus(id string, status PostStatus, externalId *string, when time.Time) error {

	repo.muDb.Lock()
	defer repo.muDb.Unlock()

	if !canTransitionPost(PostDraft, status) {
		return ErrInvalidTransition
	}
	var res sql.Result
	var err error
	if status == PostPosted {
		res, err = repo.db.Exec(`UPDATE posts SET status=?, external_id=?, posted_at=? WHERE id=? AND status=?`,
			status, nullStr(externalId), when.UTC(), id, PostDraft)
	} else {
		res, err = repo.db.Exec(`UPDATE posts SET status=? WHERE id=? AND status=?`, status, id, PostDraft)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 0 {
		return nil
	}
	var count int
	if err = repo.db.QueryRow(`SELECT COUNT(*) FROM posts WHERE id=?`, id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

func (repo *Repo) CountPostedSince(kind PostKind, since time.Time) (int, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	var count int
	err := repo.db.QueryRow(`SELECT COUNT(*) FROM posts WHERE kind=? AND status=? AND posted_at>=?`,
		kind, PostPosted, since.UTC()).Scan(&count)
	return count, err
}

func (repo *Repo) HasContentHash(hash uint32, since time.Time) (bool, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	var count int
	err := repo.db.QueryRow(`SELECT
		(SELECT COUNT(*) FROM posts WHERE content_hash=? AND created_at>=?) +
		(SELECT COUNT(*) FROM drafts WHERE content_hash=? AND created_at>=? AND status IN (?, ?))`,
		int64(hash), since.UTC(), int64(hash), since.UTC(), DraftPending, DraftApproved).Scan(&count)
	if err != nil {
		return false, err
	}
	return count != 0, nil
}

func (repo *Repo) ListRecentPosts(limit int) ([]*PostEntry, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := repo.db.Query(`SELECT `+postCols+` FROM posts ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*PostEntry
	for rows.Next() {
		var p *PostEntry
		if p, err = scanPost(rows); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// Drafts

const draftCols = `id, text, kind, reply_to_id, conversation_id, author_id, status, content_hash, created_at,
	decided_at, posted_at, expired_at, reject_reason, post_id`

func scanDraft(row rowScanner) (*DraftEntry, error) {
	var res DraftEntry
	var replyToId sql.NullString
	var hash int64
	var decidedAt, postedAt, expiredAt sql.NullTime
	err := row.Scan(&res.Id, &res.Text, &res.Kind, &replyToId, &res.ConversationId, &res.AuthorId, &res.Status,
		&hash, &res.CreatedAt, &decidedAt, &postedAt, &expiredAt, &res.RejectReason, &res.PostId)
	if err != nil {
		return nil, err
	}
	res.ReplyToId = fromNullStr(replyToId)
	res.ContentHash = uint32(hash)
	res.DecidedAt = fromNullTime(decidedAt)
	res.PostedAt = fromNullTime(postedAt)
	res.ExpiredAt = fromNullTime(expiredAt)
	return &res, nil
}

func (repo *Repo) AddDraft(d *DraftEntry) error {

	repo.muDb.Lock()
	defer repo.muDb.Unlock()

	_, err := repo.db.Exec(`INSERT INTO drafts (`+draftCols+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Id, d.Text, d.Kind, nullStr(d.ReplyToId), d.ConversationId, d.AuthorId, d.Status, int64(d.ContentHash),
		d.CreatedAt.UTC(), nullTime(d.DecidedAt), nullTime(d.PostedAt), nullTime(d.ExpiredAt), d.RejectReason, d.PostId)
	if isDuplicateKey(err) {
		return ErrDuplicate
	}
	return err
}

func (repo *Repo) GetDraft(id string) (*DraftEntry, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	return repo.getDraft(repo.db.QueryRow(`SELECT `+draftCols+` FROM drafts WHERE id=?`, id))
}

func (repo *Repo) getDraft(row *sql.Row) (*DraftEntry, error) {
	res, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (repo *Repo) ListDrafts(status DraftStatus, limit int) ([]*DraftEntry, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = repo.db.Query(`SELECT `+draftCols+` FROM drafts ORDER BY rowid LIMIT ?`, limit)
	} else {
		rows, err = repo.db.Query(`SELECT `+draftCols+` FROM drafts WHERE status=? ORDER BY rowid LIMIT ?`,
			status, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*DraftEntry
	for rows.Next() {
		var d *DraftEntry
		if d, err = scanDraft(rows); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (repo *Repo) TransitionDraft(id string, from, to DraftStatus, upd DraftUpdate) error {

	repo.muDb.Lock()
	defer repo.muDb.Unlock()

	tx, err := repo.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	d, err := scanDraft(tx.QueryRow(`SELECT `+draftCols+` FROM drafts WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if d.Status != from || !CanTransitionDraft(from, to) {
		return ErrInvalidTransition
	}
	applyDraftUpdate(d, to, upd)
	_, err = tx.Exec(`UPDATE drafts SET status=?, decided_at=?, posted_at=?, expired_at=?, reject_reason=?, post_id=?
		WHERE id=? AND status=?`,
		d.Status, nullTime(d.DecidedAt), nullTime(d.PostedAt), nullTime(d.ExpiredAt), d.RejectReason, d.PostId,
		id, from)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (repo *Repo) CountDrafts(status DraftStatus) (int, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	var count int
	err := repo.db.QueryRow(`SELECT COUNT(*) FROM drafts WHERE status=?`, status).Scan(&count)
	return count, err
}

// Reply log

func (repo *Repo) AddReplyLogIfNew(entry *ReplyLogEntry) (isNew bool, err error) {

	repo.muDb.Lock()
	defer repo.muDb.Unlock()

	_, err = repo.db.Exec(`INSERT INTO reply_log (target_id, reply_post_id, replied_at) VALUES(?, ?, ?)`,
		entry.TargetId, entry.ReplyPostId, entry.RepliedAt.UTC())
	if err == nil {
		return true, nil
	}
	if isDuplicateKey(err) {
		return false, nil
	}
	return false, err
}

func (repo *Repo) HasReplied(targetId string) (bool, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	var count int
	if err := repo.db.QueryRow(`SELECT COUNT(*) FROM reply_log WHERE target_id=?`, targetId).Scan(&count); err != nil {
		return false, err
	}
	return count != 0, nil
}

func (repo *Repo) GetReplyLog(targetId string) (*ReplyLogEntry, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	var res ReplyLogEntry
	err := repo.db.QueryRow(`SELECT target_id, reply_post_id, replied_at FROM reply_log WHERE target_id=?`, targetId).
		Scan(&res.TargetId, &res.ReplyPostId, &res.RepliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Threads and per-user counters

func (repo *Repo) GetThread(conversationId string) (*ThreadState, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	var res ThreadState
	var lastReplyAt sql.NullTime
	err := repo.db.QueryRow(`SELECT conversation_id, author_id, reply_count, last_reply_at, stopped, stop_reason
		FROM threads WHERE conversation_id=?`, conversationId).
		Scan(&res.ConversationId, &res.AuthorId, &res.ReplyCount, &lastReplyAt, &res.Stopped, &res.StopReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	res.LastReplyAt = fromNullTime(lastReplyAt)
	return &res, nil
}

func (repo *Repo) StopThread(conversationId, authorId, reason string, when time.Time) error {

	repo.muDb.Lock()
	defer repo.muDb.Unlock()

	// Stopping is one-way; the first reason sticks
	_, err := repo.db.Exec(`INSERT INTO threads (conversation_id, author_id, stopped, stop_reason) VALUES(?, ?, 1, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			stop_reason=CASE WHEN stopped=1 THEN stop_reason ELSE excluded.stop_reason END,
			stopped=1`,
		conversationId, authorId, reason)
	return err
}

type execQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func incrementThread(db execQuerier, conversationId, authorId string, when time.Time) (int, error) {
	var count int
	err := db.QueryRow(`INSERT INTO threads (conversation_id, author_id, reply_count, last_reply_at) VALUES(?, ?, 1, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET reply_count=reply_count+1, last_reply_at=excluded.last_reply_at
		RETURNING reply_count`,
		conversationId, authorId, when.UTC()).Scan(&count)
	return count, err
}

func incrementUser(db execQuerier, userId, day string) (int, error) {
	var count int
	err := db.QueryRow(`INSERT INTO user_limits (user_id, day, count) VALUES(?, ?, 1)
		ON CONFLICT(user_id, day) DO UPDATE SET count=count+1
		RETURNING count`,
		userId, day).Scan(&count)
	return count, err
}

func (repo *Repo) IncrementThreadReplies(conversationId, authorId string, when time.Time) (int, error) {

	repo.muDb.Lock()
	defer repo.muDb.Unlock()

	return incrementThread(repo.db, conversationId, authorId, when)
}

func (repo *Repo) GetUserCount(userId, day string) (int, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	var count int
	err := repo.db.QueryRow(`SELECT count FROM user_limits WHERE user_id=? AND day=?`, userId, day).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

func (repo *Repo) IncrementUserCount(userId, day string) (int, error) {

	repo.muDb.Lock()
	defer repo.muDb.Unlock()

	return incrementUser(repo.db, userId, day)
}

func (repo *Repo) RecordReply(targetId, conversationId, authorId, day string, maxThread, maxUser int, when time.Time) error {

	repo.muDb.Lock()
	defer repo.muDb.Unlock()

	tx, err := repo.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var held int
	if err = tx.QueryRow(`SELECT COUNT(*) FROM reply_reservations WHERE target_id=?`, targetId).Scan(&held); err != nil {
		return err
	}
	if held != 0 {
		return nil
	}

	var threadCount int
	var stopped bool
	err = tx.QueryRow(`SELECT reply_count, stopped FROM threads WHERE conversation_id=?`, conversationId).
		Scan(&threadCount, &stopped)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if stopped {
		return ErrThreadStopped
	}
	if threadCount >= maxThread {
		return ErrThreadCapReached
	}
	var userCount int
	err = tx.QueryRow(`SELECT count FROM user_limits WHERE user_id=? AND day=?`, authorId, day).Scan(&userCount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if userCount >= maxUser {
		return ErrUserCapReached
	}
	if _, err = incrementThread(tx, conversationId, authorId, when); err != nil {
		return err
	}
	if _, err = incrementUser(tx, authorId, day); err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO reply_reservations (target_id, conversation_id, author_id, day, reserved_at)
		VALUES(?, ?, ?, ?, ?)`, targetId, conversationId, authorId, day, when.UTC())
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (repo *Repo) HasReservation(targetId string) (bool, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	var count int
	if err := repo.db.QueryRow(`SELECT COUNT(*) FROM reply_reservations WHERE target_id=?`, targetId).Scan(&count); err != nil {
		return false, err
	}
	return count != 0, nil
}

func (repo *Repo) ReleaseReply(targetId string) (bool, error) {

	repo.muDb.Lock()
	defer repo.muDb.Unlock()

	tx, err := repo.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var conversationId, authorId, day string
	err = tx.QueryRow(`SELECT conversation_id, author_id, day FROM reply_reservations
		WHERE target_id=? AND target_id NOT IN (SELECT target_id FROM reply_log)`, targetId).
		Scan(&conversationId, &authorId, &day)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err = tx.Exec(`DELETE FROM reply_reservations WHERE target_id=?`, targetId); err != nil {
		return false, err
	}
	_, err = tx.Exec(`UPDATE threads SET reply_count=reply_count-1 WHERE conversation_id=? AND reply_count>0`,
		conversationId)
	if err != nil {
		return false, err
	}
	_, err = tx.Exec(`UPDATE user_limits SET count=count-1 WHERE user_id=? AND day=? AND count>0`, authorId, day)
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Settings

func (repo *Repo) GetSetting(key string) (string, bool, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	var val string
	err := repo.db.QueryRow(`SELECT val FROM settings WHERE key=?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (repo *Repo) SetSetting(key, val string, when time.Time) error {

	repo.muDb.Lock()
	defer repo.muDb.Unlock()

	_, err := repo.db.Exec(`INSERT INTO settings (key, val, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET val=excluded.val, updated_at=excluded.updated_at`,
		key, val, when.UTC())
	return err
}

func (repo *Repo) ListSettings() ([]*RuntimeSetting, error) {

	repo.muDb.RLock()
	defer repo.muDb.RUnlock()

	rows, err := repo.db.Query(`SELECT key, val, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*RuntimeSetting
	for rows.Next() {
		var s RuntimeSetting
		if err = rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &s)
	}
	return res, rows.Err()
}
