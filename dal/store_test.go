package dal_test

import (
	"errors"
	"fmt"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"herald_bot/dal"
	"herald_bot/platform"
	"herald_bot/shared"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func newSqliteStore(t *testing.T) dal.IStore {
	cfg := shared.DefaultConfig()
	cfg.DbFile = filepath.Join(t.TempDir(), "test.db")
	store := dal.NewSqliteStore(cfg, log.New(io.Discard))
	store.InitUpdateDb()
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Both backings must honor the same contract.
func forEachStore(t *testing.T, test func(t *testing.T, store dal.IStore)) {
	t.Run("memory", func(t *testing.T) { test(t, dal.NewMemStore()) })
	t.Run("sqlite", func(t *testing.T) { test(t, newSqliteStore(t)) })
}

func TestInboxIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store dal.IStore) {
		entry := &dal.InboxEntry{
			Id:           "9",
			Post:         &platform.ExternalPost{Id: "9", Text: "hi", AuthorId: "7", CreatedAt: baseTime},
			AuthorId:     "7",
			QualityScore: 55,
			ReceivedAt:   baseTime,
		}
		isNew, err := store.AddInboxEntryIfNew(entry)
		require.NoError(t, err)
		assert.True(t, isNew)
		isNew, err = store.AddInboxEntryIfNew(entry)
		require.NoError(t, err)
		assert.False(t, isNew)

		exists, err := store.HasInboxEntry("9")
		require.NoError(t, err)
		assert.True(t, exists)

		unprocessed, err := store.ListUnprocessedInbox(10)
		require.NoError(t, err)
		require.Len(t, unprocessed, 1)
		assert.Equal(t, "hi", unprocessed[0].Post.Text)

		require.NoError(t, store.MarkInboxSkipped("9", "per_thread_cap", baseTime.Add(time.Minute)))
		got, err := store.GetInboxEntry("9")
		require.NoError(t, err)
		assert.True(t, got.Processed)
		assert.True(t, got.Skipped)
		assert.Equal(t, "per_thread_cap", got.SkipReason)
		require.NotNil(t, got.ProcessedAt)

		unprocessed, err = store.ListUnprocessedInbox(10)
		require.NoError(t, err)
		assert.Len(t, unprocessed, 0)

		assert.ErrorIs(t, store.MarkInboxProcessed("nope", baseTime), dal.ErrNotFound)
		missing, err := store.GetInboxEntry("nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestReplyLogWriteOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, store dal.IStore) {
		replied, err := store.HasReplied("9")
		require.NoError(t, err)
		assert.False(t, replied)

		isNew, err := store.AddReplyLogIfNew(&dal.ReplyLogEntry{TargetId: "9", ReplyPostId: "11", RepliedAt: baseTime})
		require.NoError(t, err)
		assert.True(t, isNew)
		isNew, err = store.AddReplyLogIfNew(&dal.ReplyLogEntry{TargetId: "9", ReplyPostId: "12", RepliedAt: baseTime})
		require.NoError(t, err)
		assert.False(t, isNew)

		entry, err := store.GetReplyLog("9")
		require.NoError(t, err)
		assert.Equal(t, "11", entry.ReplyPostId)
		replied, _ = store.HasReplied("9")
		assert.True(t, replied)
	})
}

func TestPostStatusForwardOnly(t *testing.T) {
	forEachStore(t, func(t *testing.T, store dal.IStore) {
		post := &dal.PostEntry{
			Id:          "p1",
			Text:        "hello",
			Kind:        dal.KindReply,
			ReplyToId:   strPtr("9"),
			Status:      dal.PostDraft,
			ContentHash: dal.ContentHash("hello"),
			CreatedAt:   baseTime,
		}
		require.NoError(t, store.AddPost(post))
		assert.ErrorIs(t, store.AddPost(post), dal.ErrDuplicate)

		require.NoError(t, store.UpdatePostStatus("p1", dal.PostPosted, strPtr("ext1"), baseTime.Add(time.Minute)))
		err := store.UpdatePostStatus("p1", dal.PostBlocked, nil, baseTime)
		assert.ErrorIs(t, err, dal.ErrInvalidTransition)
		assert.ErrorIs(t, store.UpdatePostStatus("zzz", dal.PostPosted, nil, baseTime), dal.ErrNotFound)

		got, err := store.GetPost("p1")
		require.NoError(t, err)
		assert.Equal(t, dal.PostPosted, got.Status)
		assert.Equal(t, "ext1", *got.ExternalId)
		assert.Equal(t, "9", *got.ReplyToId)
		assert.True(t, got.PostedAt.Equal(baseTime.Add(time.Minute)))
	})
}

func TestCountPostedSince(t *testing.T) {
	forEachStore(t, func(t *testing.T, store dal.IStore) {
		for i := 0; i < 4; i++ {
			posted := baseTime.Add(time.Duration(-i*40) * time.Minute)
			require.NoError(t, store.AddPost(&dal.PostEntry{
				Id:          fmt.Sprintf("t%d", i),
				Text:        fmt.Sprintf("post %d", i),
				Kind:        dal.KindTimeline,
				Status:      dal.PostPosted,
				ContentHash: dal.ContentHash(fmt.Sprintf("post %d", i)),
				CreatedAt:   posted,
				PostedAt:    &posted,
			}))
		}
		require.NoError(t, store.AddPost(&dal.PostEntry{
			Id: "blocked", Text: "x", Kind: dal.KindTimeline, Status: dal.PostBlocked, CreatedAt: baseTime,
		}))
		count, err := store.CountPostedSince(dal.KindTimeline, baseTime.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		count, err = store.CountPostedSince(dal.KindReply, baseTime.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		recent, err := store.ListRecentPosts(2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "blocked", recent[0].Id)
		assert.Equal(t, "t3", recent[1].Id)

		found, err := store.HasContentHash(dal.ContentHash("POST  1"), baseTime.Add(-time.Hour))
		require.NoError(t, err)
		assert.True(t, found)
		found, err = store.HasContentHash(dal.ContentHash("post 3"), baseTime.Add(-time.Hour))
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestDraftStateMachine(t *testing.T) {
	forEachStore(t, func(t *testing.T, store dal.IStore) {
		draft := &dal.DraftEntry{
			Id:          "d1",
			Text:        "draft text",
			Kind:        dal.KindTimeline,
			Status:      dal.DraftPending,
			ContentHash: dal.ContentHash("draft text"),
			CreatedAt:   baseTime,
		}
		require.NoError(t, store.AddDraft(draft))
		require.NoError(t, store.AddDraft(&dal.DraftEntry{
			Id: "d2", Text: "other", Kind: dal.KindReply, ReplyToId: strPtr("9"), Status: dal.DraftPending,
			CreatedAt: baseTime,
		}))

		found, err := store.HasContentHash(dal.ContentHash("draft text"), baseTime.Add(-time.Hour))
		require.NoError(t, err)
		assert.True(t, found)

		// Pending can't go straight to posted
		err = store.TransitionDraft("d1", dal.DraftPending, dal.DraftPosted, dal.DraftUpdate{When: baseTime})
		assert.ErrorIs(t, err, dal.ErrInvalidTransition)

		require.NoError(t, store.TransitionDraft("d1", dal.DraftPending, dal.DraftApproved, dal.DraftUpdate{When: baseTime}))
		// Second approval loses the compare-and-set
		err = store.TransitionDraft("d1", dal.DraftPending, dal.DraftApproved, dal.DraftUpdate{When: baseTime})
		assert.ErrorIs(t, err, dal.ErrInvalidTransition)

		require.NoError(t, store.TransitionDraft("d1", dal.DraftApproved, dal.DraftPosted,
			dal.DraftUpdate{When: baseTime.Add(time.Minute), PostId: "p9"}))
		got, err := store.GetDraft("d1")
		require.NoError(t, err)
		assert.Equal(t, dal.DraftPosted, got.Status)
		assert.Equal(t, "p9", got.PostId)
		require.NotNil(t, got.DecidedAt)
		require.NotNil(t, got.PostedAt)

		require.NoError(t, store.TransitionDraft("d2", dal.DraftPending, dal.DraftRejected,
			dal.DraftUpdate{When: baseTime, RejectReason: "off topic"}))
		got, _ = store.GetDraft("d2")
		assert.Equal(t, "off topic", got.RejectReason)
		assert.Equal(t, "9", *got.ReplyToId)
		err = store.TransitionDraft("d2", dal.DraftRejected, dal.DraftApproved, dal.DraftUpdate{When: baseTime})
		assert.ErrorIs(t, err, dal.ErrInvalidTransition)

		assert.ErrorIs(t, store.TransitionDraft("nope", dal.DraftPending, dal.DraftApproved, dal.DraftUpdate{}),
			dal.ErrNotFound)

		all, err := store.ListDrafts("", 0)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "d1", all[0].Id)
		pending, err := store.CountDrafts(dal.DraftPending)
		require.NoError(t, err)
		assert.Equal(t, 0, pending)
		rejected, err := store.ListDrafts(dal.DraftRejected, 10)
		require.NoError(t, err)
		require.Len(t, rejected, 1)
	})
}

func TestThreadStopIsOneWay(t *testing.T) {
	forEachStore(t, func(t *testing.T, store dal.IStore) {
		ts, err := store.GetThread("c1")
		require.NoError(t, err)
		assert.Nil(t, ts)

		count, err := store.IncrementThreadReplies("c1", "7", baseTime)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		require.NoError(t, store.StopThread("c1", "7", "user_requested_stop", baseTime))
		require.NoError(t, store.StopThread("c1", "7", "something_else", baseTime))
		ts, err = store.GetThread("c1")
		require.NoError(t, err)
		assert.True(t, ts.Stopped)
		assert.Equal(t, "user_requested_stop", ts.StopReason)
		assert.Equal(t, 1, ts.ReplyCount)

		err = store.RecordReply("t1", "c1", "7", "2024-05-01", 10, 10, baseTime)
		assert.ErrorIs(t, err, dal.ErrThreadStopped)
	})
}

func TestRecordReplyCaps(t *testing.T) {
	forEachStore(t, func(t *testing.T, store dal.IStore) {
		day := "2024-05-01"
		require.NoError(t, store.RecordReply("t1", "c1", "7", day, 2, 3, baseTime))
		require.NoError(t, store.RecordReply("t2", "c1", "7", day, 2, 3, baseTime))
		err := store.RecordReply("t3", "c1", "7", day, 2, 3, baseTime)
		assert.ErrorIs(t, err, dal.ErrThreadCapReached)

		// Thread cap refusal must not have touched the user counter
		userCount, err := store.GetUserCount("7", day)
		require.NoError(t, err)
		assert.Equal(t, 2, userCount)

		require.NoError(t, store.RecordReply("t4", "c2", "7", day, 2, 3, baseTime))
		err = store.RecordReply("t5", "c3", "7", day, 2, 3, baseTime)
		assert.ErrorIs(t, err, dal.ErrUserCapReached)
		ts, err := store.GetThread("c3")
		require.NoError(t, err)
		assert.Nil(t, ts)

		// New day, new budget
		require.NoError(t, store.RecordReply("t5", "c3", "7", "2024-05-02", 2, 3, baseTime.Add(24*time.Hour)))
		count, err := store.IncrementUserCount("7", "2024-05-02")
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestRecordReplyConcurrent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store dal.IStore) {
		const attempts = 20
		const capN = 5
		var wg sync.WaitGroup
		var mu sync.Mutex
		ok, capped := 0, 0
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			target := fmt.Sprintf("t%d", i)
			go func() {
				defer wg.Done()
				err := store.RecordReply(target, "c1", "7", "2024-05-01", capN, 100, baseTime)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					ok++
				} else if errors.Is(err, dal.ErrThreadCapReached) {
					capped++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, capN, ok)
		assert.Equal(t, attempts-capN, capped)
		ts, err := store.GetThread("c1")
		require.NoError(t, err)
		assert.Equal(t, capN, ts.ReplyCount)
	})
}

func TestRecordReplyOncePerTarget(t *testing.T) {
	forEachStore(t, func(t *testing.T, store dal.IStore) {
		day := "2024-05-01"
		for i := 0; i < 3; i++ {
			require.NoError(t, store.RecordReply("t1", "c1", "7", day, 3, 5, baseTime))
		}
		ts, err := store.GetThread("c1")
		require.NoError(t, err)
		assert.Equal(t, 1, ts.ReplyCount)
		userCount, err := store.GetUserCount("7", day)
		require.NoError(t, err)
		assert.Equal(t, 1, userCount)
		held, err := store.HasReservation("t1")
		require.NoError(t, err)
		assert.True(t, held)

		// A held reservation survives the cap it counts towards
		require.NoError(t, store.RecordReply("t2", "c1", "7", day, 2, 5, baseTime))
		require.NoError(t, store.RecordReply("t1", "c1", "7", day, 2, 5, baseTime))
		err = store.RecordReply("t3", "c1", "7", day, 2, 5, baseTime)
		assert.ErrorIs(t, err, dal.ErrThreadCapReached)
	})
}

func TestReleaseReply(t *testing.T) {
	forEachStore(t, func(t *testing.T, store dal.IStore) {
		day := "2024-05-01"
		require.NoError(t, store.RecordReply("t1", "c1", "7", day, 3, 5, baseTime))
		require.NoError(t, store.RecordReply("t2", "c1", "7", day, 3, 5, baseTime))

		released, err := store.ReleaseReply("t1")
		require.NoError(t, err)
		assert.True(t, released)
		released, err = store.ReleaseReply("t1")
		require.NoError(t, err)
		assert.False(t, released)
		held, err := store.HasReservation("t1")
		require.NoError(t, err)
		assert.False(t, held)

		// Posted replies keep their count
		_, err = store.AddReplyLogIfNew(&dal.ReplyLogEntry{TargetId: "t2", ReplyPostId: "r2", RepliedAt: baseTime})
		require.NoError(t, err)
		released, err = store.ReleaseReply("t2")
		require.NoError(t, err)
		assert.False(t, released)

		ts, err := store.GetThread("c1")
		require.NoError(t, err)
		assert.Equal(t, 1, ts.ReplyCount)
		userCount, err := store.GetUserCount("7", day)
		require.NoError(t, err)
		assert.Equal(t, 1, userCount)

		released, err = store.ReleaseReply("never-reserved")
		require.NoError(t, err)
		assert.False(t, released)
	})
}

func TestConcurrentIncrementsNeverLost(t *testing.T) {
	forEachStore(t, func(t *testing.T, store dal.IStore) {
		var wg sync.WaitGroup
		for i := 0; i < 25; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _ = store.IncrementThreadReplies("c1", "7", baseTime)
			}()
			go func() {
				defer wg.Done()
				_, _ = store.IncrementUserCount("7", "2024-05-01")
			}()
		}
		wg.Wait()
		ts, err := store.GetThread("c1")
		require.NoError(t, err)
		assert.Equal(t, 25, ts.ReplyCount)
		count, err := store.GetUserCount("7", "2024-05-01")
		require.NoError(t, err)
		assert.Equal(t, 25, count)
	})
}

func TestSettings(t *testing.T) {
	forEachStore(t, func(t *testing.T, store dal.IStore) {
		_, found, err := store.GetSetting(dal.SettingSafeMode)
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, store.SetSetting(dal.SettingSafeMode, "true", baseTime))
		require.NoError(t, store.SetSetting(dal.SettingLastMentionId, "9", baseTime))
		require.NoError(t, store.SetSetting(dal.SettingSafeMode, "false", baseTime.Add(time.Minute)))

		val, found, err := store.GetSetting(dal.SettingSafeMode)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "false", val)

		all, err := store.ListSettings()
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, dal.SettingLastMentionId, all[0].Key)
		assert.True(t, all[1].UpdatedAt.Equal(baseTime.Add(time.Minute)))
	})
}

func TestSqliteSurvivesReopen(t *testing.T) {
	cfg := shared.DefaultConfig()
	cfg.DbFile = filepath.Join(t.TempDir(), "reopen.db")
	store := dal.NewSqliteStore(cfg, log.New(io.Discard))
	store.InitUpdateDb()
	require.NoError(t, store.SetSetting(dal.SettingLastReplyId, "42", baseTime))
	require.NoError(t, store.Close())

	store = dal.NewSqliteStore(cfg, log.New(io.Discard))
	store.InitUpdateDb()
	defer store.Close()
	val, found, err := store.GetSetting(dal.SettingLastReplyId)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "42", val)
}
