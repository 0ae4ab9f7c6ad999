package logic

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"herald_bot/content"
	"herald_bot/coord"
	"herald_bot/dal"
	"herald_bot/platform"
	"herald_bot/shared"
	"math/rand"
	"sync"
	"time"
)

const (
	OutcomeNotDue = "not_due"
	dedupeWindow  = 14 * 24 * time.Hour
)

type ITimelinePoster interface {
	// RunCycle posts, drafts or skips if the next post is due.
	RunCycle(ctx context.Context) (string, error)
	NextPostTime(base time.Time) time.Time
}

type timelinePoster struct {
	cfg     *shared.Config
	logger  shared.ILogger
	store   dal.IStore
	plat    platform.IPlatform
	gen     content.IGenerator
	topics  content.ITopicSource
	gate    IGate
	metrics IMetrics
	muRng   sync.Mutex
	rng     *rand.Rand
}

func NewTimelinePoster(
	cfg *shared.Config,
	logger shared.ILogger,
	store dal.IStore,
	plat platform.IPlatform,
	gen content.IGenerator,
	topics content.ITopicSource,
	gate IGate,
	metrics IMetrics,
) ITimelinePoster {
	seed := cfg.Timeline.JitterSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &timelinePoster{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		plat:    plat,
		gen:     gen,
		topics:  topics,
		gate:    gate,
		metrics: metrics,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// NewTimelineWorker wakes every idle_wake_sec; the poster itself decides whether a post is due.
func NewTimelineWorker(
	cfg *shared.Config,
	logger shared.ILogger,
	lock coord.ILock,
	metrics IMetrics,
	tp ITimelinePoster,
) IWorker {
	return &periodic{
		name:     "timeline_poster",
		lockKey:  coord.KeyTimelinePoster,
		interval: time.Duration(cfg.Timeline.IdleWakeSec) * time.Second,
		cfg:      cfg,
		logger:   logger,
		lock:     lock,
		metrics:  metrics,
		cycle: func(ctx context.Context) error {
			_, err := tp.RunCycle(ctx)
			return err
		},
	}
}

// NextPostTime is base + interval, shifted by a uniform offset in [-jitter, +jitter].
func (tp *timelinePoster) NextPostTime(base time.Time) time.Time {
	tp.muRng.Lock()
	f := tp.rng.Float64()
	tp.muRng.Unlock()
	return jittered(base, tp.cfg.TimelineInterval(), tp.cfg.TimelineJitter(), f)
}

func jittered(base time.Time, interval, jitter time.Duration, f float64) time.Time {
	offset := time.Duration((f*2 - 1) * float64(jitter))
	return base.Add(interval + offset)
}

func (tp *timelinePoster) nextDue() (time.Time, bool, error) {
	val, found, err := tp.store.GetSetting(dal.SettingNextTimelinePostAt)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	due, err := time.Parse(time.RFC3339, val)
	if err != nil {
		tp.logger.Warnf("Ignoring unparseable %s: %q", dal.SettingNextTimelinePostAt, val)
		return time.Time{}, false, nil
	}
	return due, true, nil
}

func (tp *timelinePoster) reschedule(now time.Time) error {
	next := tp.NextPostTime(now)
	if err := tp.store.SetSetting(dal.SettingNextTimelinePostAt, next.UTC().Format(time.RFC3339), now); err != nil {
		return fmt.Errorf("failed to save next timeline post time: %w", err)
	}
	tp.logger.Infof("Next timeline post due at %s", next.UTC().Format(time.RFC3339))
	return nil
}

// finish records an attempt outcome and schedules the next one.
func (tp *timelinePoster) finish(now time.Time, outcome string) (string, error) {
	tp.metrics.TimelineOutcome(outcome)
	return outcome, tp.reschedule(now)
}

func (tp *timelinePoster) RunCycle(ctx context.Context) (string, error) {

	now := time.Now()
	due, found, err := tp.nextDue()
	if err != nil {
		return "", fmt.Errorf("failed to read next timeline post time: %w", err)
	}
	if !found {
		// First start: schedule rather than post right away
		if err = tp.reschedule(now); err != nil {
			return "", err
		}
		return OutcomeNotDue, nil
	}
	if now.Before(due) {
		return OutcomeNotDue, nil
	}

	if tp.gate.SafeMode() {
		tp.logger.Infof("Timeline post skipped: %s", ReasonSafeMode)
		return tp.finish(now, OutcomeSkipped+":"+ReasonSafeMode)
	}
	reason, err := tp.limitReached(now)
	if err != nil {
		return "", err
	}
	if reason != "" {
		tp.logger.Infof("Timeline post skipped: %s", reason)
		return tp.finish(now, OutcomeSkipped+":"+reason)
	}

	topic, err := tp.topics.NextTopic(ctx)
	if err != nil {
		tp.logger.Warnf("No topic available; generating without one: %v", err)
		topic = ""
	}
	text, err := tp.gen.GenerateTimelinePost(ctx, topic)
	if err != nil {
		tp.logger.Errorf("Failed to generate timeline post: %v", err)
		return tp.finish(now, OutcomeFailed)
	}

	hash := dal.ContentHash(text)
	dupe, err := tp.store.HasContentHash(hash, now.Add(-dedupeWindow))
	if err != nil {
		return "", fmt.Errorf("failed to check for duplicate content: %w", err)
	}
	if dupe {
		tp.logger.Infof("Timeline post skipped: %s", ReasonDuplicateContent)
		return tp.finish(now, OutcomeSkipped+":"+ReasonDuplicateContent)
	}

	if tp.gate.ApprovalRequired() {
		draft := &dal.DraftEntry{
			Id:          uuid.NewString(),
			Text:        text,
			Kind:        dal.KindTimeline,
			Status:      dal.DraftPending,
			ContentHash: hash,
			CreatedAt:   now,
		}
		if err = tp.store.AddDraft(draft); err != nil {
			return "", fmt.Errorf("failed to save timeline draft: %w", err)
		}
		tp.logger.Infof("Saved timeline draft %s for approval", draft.Id)
		return tp.finish(now, OutcomeDrafted)
	}

	pe, err := publish(ctx, tp.store, tp.plat, uuid.NewString(), text, dal.KindTimeline, nil)
	if platform.IsValidation(err) {
		tp.logger.Warnf("Platform rejected timeline post: %v", err)
		return tp.finish(now, OutcomeBlocked)
	}
	if pe == nil {
		// Rate limit or provider trouble: same post time, retried after backoff
		return "", fmt.Errorf("failed to publish timeline post: %w", err)
	}
	if err != nil {
		tp.logger.Errorf("%v", err)
	}
	if err = tp.store.SetSetting(dal.SettingLastTimelinePostAt, pe.PostedAt.Format(time.RFC3339), now); err != nil {
		tp.logger.Errorf("Failed to save %s: %v", dal.SettingLastTimelinePostAt, err)
	}
	tp.logger.Infof("Posted timeline post %s", *pe.ExternalId)
	return tp.finish(now, OutcomePosted)
}

func (tp *timelinePoster) limitReached(now time.Time) (string, error) {
	hourly, err := tp.store.CountPostedSince(dal.KindTimeline, now.Add(-time.Hour))
	if err != nil {
		return "", fmt.Errorf("failed to count hourly posts: %w", err)
	}
	if hourly >= tp.cfg.Timeline.HourlyLimit {
		return ReasonHourlyLimit, nil
	}
	daily, err := tp.store.CountPostedSince(dal.KindTimeline, now.Add(-24*time.Hour))
	if err != nil {
		return "", fmt.Errorf("failed to count daily posts: %w", err)
	}
	if daily >= tp.cfg.Timeline.DailyLimit {
		return ReasonDailyLimit, nil
	}
	return "", nil
}
