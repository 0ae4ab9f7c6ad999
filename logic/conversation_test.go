package logic_test

import (
	"context"
	"errors"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"herald_bot/dal"
	"herald_bot/logic"
	"herald_bot/platform"
	"herald_bot/shared"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStopPhrases(t *testing.T) {
	stops := []string{
		"please stop replying to me",
		"@herald@bots.example STOP",
		"Stop.",
		"stop it",
		"please stop",
		"@herald unsubscribe",
		"Quiet!",
		"enough, thanks",
		"Can you leave me alone?",
		"I said GO AWAY",
		"don’t reply to this",
		"Seriously, no more replies",
		"ok stop",
		"thanks, but please stop",
		"hey, stop it now",
	}
	for _, text := range stops {
		assert.True(t, logic.HasStopPhrase(text), text)
	}
	keeps := []string{
		"I'm going to stop by later",
		"Where is the bus stop?",
		"@herald what do you think about this?",
		"that was quite enough cake",
		"unstoppable",
		"stopwatch broke again",
		"@stop how are you",
		"Please stop by the booth tomorrow",
		"we can't stop now",
	}
	for _, text := range keeps {
		assert.False(t, logic.HasStopPhrase(text), text)
	}
}

func TestBuildThread(t *testing.T) {
	ctrl, h := setupHarness(t)
	defer ctrl.Finish()
	ctx := context.Background()
	author := goodActor("u1")

	top := mkPost("10", author, "hi")
	assert.Equal(t, []*platform.ExternalPost{top}, h.conv.BuildThread(ctx, top))

	reply := mkPost("12", author, "and another thing")
	reply.InReplyToId = strPtr("11")
	root := posted("10")
	mid := posted("11")
	h.mockPlat.EXPECT().FetchThreadContext(gomock.Any(), "12", h.cfg.Ingestion.ThreadMaxDepth).
		Return([]*platform.ExternalPost{root, mid}, nil)
	thread := h.conv.BuildThread(ctx, reply)
	assert.Equal(t, []*platform.ExternalPost{root, mid, reply}, thread)
	assert.Equal(t, "10", h.conv.ConversationKey(reply, thread))

	// Failure degrades to the post alone
	h.mockPlat.EXPECT().FetchThreadContext(gomock.Any(), "12", gomock.Any()).
		Return(nil, &platform.ProviderError{Status: 502, Err: errors.New("bad gateway")})
	thread = h.conv.BuildThread(ctx, reply)
	assert.Equal(t, []*platform.ExternalPost{reply}, thread)
	assert.Equal(t, "11", h.conv.ConversationKey(reply, thread))
}

func TestConversationKeyPrefersPlatformId(t *testing.T) {
	ctrl, h := setupHarness(t)
	defer ctrl.Finish()
	post := mkPost("12", goodActor("u1"), "hi")
	post.ConversationId = strPtr("conv-7")
	post.InReplyToId = strPtr("11")
	assert.Equal(t, "conv-7", h.conv.ConversationKey(post, []*platform.ExternalPost{posted("10"), post}))
	assert.Equal(t, "5", h.conv.ConversationKey(mkPost("5", goodActor("u1"), "x"), nil))
}

func TestEvaluateOrder(t *testing.T) {
	ctrl, h := setupHarness(t)
	defer ctrl.Finish()
	now := time.Now()
	day := shared.DayKey(now)
	author := goodActor("u1")
	post := mkPost("1", author, "stop replying")

	// Safe mode wins over everything, even a stop phrase; nothing is persisted
	require.NoError(t, h.gate.SetOverride(dal.SettingSafeMode, "true"))
	d, err := h.conv.Evaluate(post, "c1", now)
	require.NoError(t, err)
	assert.Equal(t, logic.Decision{Reason: logic.ReasonSafeMode}, d)
	thread, _ := h.store.GetThread("c1")
	assert.Nil(t, thread)
	require.NoError(t, h.gate.SetOverride(dal.SettingSafeMode, "false"))

	// Per-user cap comes before the stop phrase
	for i := 0; i < h.cfg.Limits.PerUserDailyCap; i++ {
		_, err = h.store.IncrementUserCount("u1", day)
		require.NoError(t, err)
	}
	d, _ = h.conv.Evaluate(post, "c1", now)
	assert.Equal(t, logic.ReasonUserCap, d.Reason)

	// Per-thread cap comes before the per-user cap
	for i := 0; i < h.cfg.Limits.PerThreadCap; i++ {
		_, err = h.store.IncrementThreadReplies("c1", "u1", now)
		require.NoError(t, err)
	}
	d, _ = h.conv.Evaluate(post, "c1", now)
	assert.Equal(t, logic.ReasonThreadCap, d.Reason)

	// A stopped thread comes before the caps and keeps its stored reason
	require.NoError(t, h.store.StopThread("c1", "u1", "operator_stop", now))
	d, _ = h.conv.Evaluate(post, "c1", now)
	assert.Equal(t, "operator_stop", d.Reason)
	assert.False(t, d.Engage)
}

func TestEvaluateStopPhrasePersists(t *testing.T) {
	ctrl, h := setupHarness(t)
	defer ctrl.Finish()
	now := time.Now()
	author := goodActor("u1")

	d, err := h.conv.Evaluate(mkPost("1", author, "I'm going to stop by later"), "c1", now)
	require.NoError(t, err)
	assert.True(t, d.Engage)

	d, err = h.conv.Evaluate(mkPost("2", author, "please stop replying to me"), "c1", now)
	require.NoError(t, err)
	assert.Equal(t, logic.Decision{Reason: logic.ReasonUserStop}, d)
	thread, err := h.store.GetThread("c1")
	require.NoError(t, err)
	require.NotNil(t, thread)
	assert.True(t, thread.Stopped)

	// Later friendly messages in the same thread stay stopped
	d, _ = h.conv.Evaluate(mkPost("3", author, "sorry, come back"), "c1", now)
	assert.Equal(t, logic.ReasonUserStop, d.Reason)
	// Other threads are unaffected
	d, _ = h.conv.Evaluate(mkPost("4", author, "hello"), "c2", now)
	assert.True(t, d.Engage)
}

func TestRecordReplyThreadCapUnderConcurrency(t *testing.T) {
	ctrl, h := setupHarness(t)
	defer ctrl.Finish()
	now := time.Now()
	h.cfg.Limits.PerThreadCap = 3
	h.cfg.Limits.PerUserDailyCap = 100

	var ok, capped atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		target := fmt.Sprintf("t%d", i)
		go func() {
			defer wg.Done()
			err := h.conv.RecordReply(target, "c1", "u1", now)
			if err == nil {
				ok.Add(1)
				return
			}
			if reason, isCap := logic.StopReasonOf(err); isCap && reason == logic.ReasonThreadCap {
				capped.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(3), ok.Load())
	assert.Equal(t, int32(17), capped.Load())

	d, err := h.conv.Evaluate(mkPost("9", goodActor("u1"), "one more?"), "c1", now)
	require.NoError(t, err)
	assert.Equal(t, logic.ReasonThreadCap, d.Reason)
}

func TestRecordReplyUserCapResetsNextDay(t *testing.T) {
	ctrl, h := setupHarness(t)
	defer ctrl.Finish()
	h.cfg.Limits.PerUserDailyCap = 2
	day1 := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Hour)
	author := goodActor("u1")

	require.NoError(t, h.conv.RecordReply("t1", "c1", "u1", day1))
	require.NoError(t, h.conv.RecordReply("t2", "c2", "u1", day1))
	err := h.conv.RecordReply("t3", "c3", "u1", day1)
	reason, isCap := logic.StopReasonOf(err)
	assert.True(t, isCap)
	assert.Equal(t, logic.ReasonUserCap, reason)

	d, _ := h.conv.Evaluate(mkPost("5", author, "hi"), "c4", day1)
	assert.Equal(t, logic.ReasonUserCap, d.Reason)
	d, _ = h.conv.Evaluate(mkPost("6", author, "hi"), "c4", day2)
	assert.True(t, d.Engage)
	assert.NoError(t, h.conv.RecordReply("t6", "c4", "u1", day2))

	// The failed attempt changed neither counter
	thread, _ := h.store.GetThread("c3")
	assert.Nil(t, thread)
	count, _ := h.store.GetUserCount("u1", "2025-03-01")
	assert.Equal(t, 2, count)
}
