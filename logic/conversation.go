package logic

import (
	"context"
	"errors"
	"fmt"
	"herald_bot/dal"
	"herald_bot/platform"
	"herald_bot/shared"
	"regexp"
	"strings"
	"time"
)

// Reasons recorded when an item or a cycle is skipped.
const (
	ReasonSafeMode         = "safe_mode"
	ReasonUserStop         = "user_requested_stop"
	ReasonThreadCap        = "per_thread_cap"
	ReasonUserCap          = "per_user_cap"
	ReasonAlreadyReplied   = "already_replied"
	ReasonValidation       = "validation_error"
	ReasonHourlyLimit      = "hourly_limit"
	ReasonDailyLimit       = "daily_limit"
	ReasonDuplicateContent = "duplicate_content"
)

// Phrases that stop a thread wherever they appear.
var stopPhrases = []string{
	"stop replying",
	"stop responding",
	"stop messaging",
	"stop mentioning",
	"stop tagging",
	"stop talking to me",
	"leave me alone",
	"go away",
	"unsubscribe me",
	"don't reply",
	"do not reply",
	"no more replies",
	"shut up",
}

// Short keywords count as whole words that open a clause: at the start, after punctuation,
// or after a lead-in like "ok" or "please". Group 2 is the word that follows, if any.
var reStopKeyword = regexp.MustCompile(
	`(?:^|[^\pL\pN'\s]\s*|\b(?:ok|okay|please|pls|seriously|said)\s+)` +
		`(stop|unsubscribe|quiet|enough)\b(?:[^\pL\pN]+(\pL+))?`)

// "stop by later" is a visit, not a request.
var stopIdiomNext = map[string]bool{"by": true, "in": true, "over": true, "at": true}

var reMention = regexp.MustCompile(`@[\pL\pN_.\-]+(?:@[\pL\pN_.\-]+)?`)

type Decision struct {
	Engage bool
	Reason string
}

type IConversation interface {
	BuildThread(ctx context.Context, post *platform.ExternalPost) []*platform.ExternalPost
	ConversationKey(post *platform.ExternalPost, thread []*platform.ExternalPost) string
	Evaluate(post *platform.ExternalPost, convKey string, now time.Time) (Decision, error)
	RecordReply(targetId, convKey, authorId string, now time.Time) error
	// ReleaseReply gives back a reservation for a reply that will not be posted.
	ReleaseReply(targetId string) error
}

type conversation struct {
	cfg    *shared.Config
	logger shared.ILogger
	store  dal.IStore
	plat   platform.IPlatform
	gate   IGate
}

func NewConversation(
	cfg *shared.Config,
	logger shared.ILogger,
	store dal.IStore,
	plat platform.IPlatform,
	gate IGate,
) IConversation {
	return &conversation{cfg, logger, store, plat, gate}
}

func (c *conversation) BuildThread(ctx context.Context, post *platform.ExternalPost) []*platform.ExternalPost {
	if post.InReplyToId == nil {
		return []*platform.ExternalPost{post}
	}
	ancestors, err := c.plat.FetchThreadContext(ctx, post.Id, c.cfg.Ingestion.ThreadMaxDepth)
	if err != nil {
		c.logger.Warnf("Failed to fetch thread context for %s; replying without it: %v", post.Id, err)
		return []*platform.ExternalPost{post}
	}
	return append(ancestors, post)
}

func (c *conversation) ConversationKey(post *platform.ExternalPost, thread []*platform.ExternalPost) string {
	if post.ConversationId != nil && *post.ConversationId != "" {
		return *post.ConversationId
	}
	// With a depth-limited fetch the oldest ancestor may not be the true root
	if len(thread) > 1 {
		return thread[0].Id
	}
	if post.InReplyToId != nil && *post.InReplyToId != "" {
		return *post.InReplyToId
	}
	return post.Id
}

func (c *conversation) Evaluate(post *platform.ExternalPost, convKey string, now time.Time) (Decision, error) {

	if c.gate.SafeMode() {
		return Decision{Reason: ReasonSafeMode}, nil
	}

	thread, err := c.store.GetThread(convKey)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to get thread %s: %w", convKey, err)
	}
	if thread != nil && thread.Stopped {
		reason := thread.StopReason
		if reason == "" {
			reason = ReasonUserStop
		}
		return Decision{Reason: reason}, nil
	}

	// A reply whose post failed earlier already holds its slot in both counters
	reserved, err := c.store.HasReservation(post.Id)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check reservation for %s: %w", post.Id, err)
	}
	if !reserved {
		if thread != nil && thread.ReplyCount >= c.cfg.Limits.PerThreadCap {
			return Decision{Reason: ReasonThreadCap}, nil
		}
		userCount, err := c.store.GetUserCount(post.AuthorId, shared.DayKey(now))
		if err != nil {
			return Decision{}, fmt.Errorf("failed to get reply count for user %s: %w", post.AuthorId, err)
		}
		if userCount >= c.cfg.Limits.PerUserDailyCap {
			return Decision{Reason: ReasonUserCap}, nil
		}
	}

	if HasStopPhrase(post.Text) {
		if err = c.store.StopThread(convKey, post.AuthorId, ReasonUserStop, now); err != nil {
			return Decision{}, fmt.Errorf("failed to stop thread %s: %w", convKey, err)
		}
		c.logger.Infof("Thread %s stopped at the request of %s", convKey, post.AuthorId)
		return Decision{Reason: ReasonUserStop}, nil
	}

	return Decision{Engage: true}, nil
}

// RecordReply reserves our reply to targetId against the thread and the user's day.
// Runs before the platform post; retries for the same target reuse the reservation.
func (c *conversation) RecordReply(targetId, convKey, authorId string, now time.Time) error {
	return c.store.RecordReply(targetId, convKey, authorId, shared.DayKey(now),
		c.cfg.Limits.PerThreadCap, c.cfg.Limits.PerUserDailyCap, now)
}

func (c *conversation) ReleaseReply(targetId string) error {
	released, err := c.store.ReleaseReply(targetId)
	if err != nil {
		return fmt.Errorf("failed to release reservation for %s: %w", targetId, err)
	}
	if released {
		c.logger.Debugf("Released reply reservation for %s", targetId)
	}
	return nil
}

// StopReasonOf maps the counter errors of RecordReply to skip reasons.
func StopReasonOf(err error) (string, bool) {
	switch {
	case errors.Is(err, dal.ErrThreadStopped):
		return ReasonUserStop, true
	case errors.Is(err, dal.ErrThreadCapReached):
		return ReasonThreadCap, true
	case errors.Is(err, dal.ErrUserCapReached):
		return ReasonUserCap, true
	}
	return "", false
}

// HasStopPhrase tells whether a message asks us to stop talking.
func HasStopPhrase(text string) bool {
	norm := strings.ToLower(text)
	norm = strings.ReplaceAll(norm, "’", "'")
	norm = reMention.ReplaceAllString(norm, " ")
	norm = strings.Join(strings.Fields(norm), " ")
	for _, phrase := range stopPhrases {
		if strings.Contains(norm, phrase) {
			return true
		}
	}
	for _, m := range reStopKeyword.FindAllStringSubmatch(norm, -1) {
		if m[1] == "stop" && stopIdiomNext[m[2]] {
			continue
		}
		return true
	}
	return false
}
