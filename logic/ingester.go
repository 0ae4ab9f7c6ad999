package logic

import (
	"context"
	"fmt"
	"herald_bot/coord"
	"herald_bot/dal"
	"herald_bot/platform"
	"herald_bot/shared"
	"time"
)

const (
	SourceMentions = "mentions"
	SourceReplies  = "replies"
)

type IIngester interface {
	// RunCycle fetches both sources once and handles everything new.
	// A platform error aborts the cycle before the failing source's cursor moves.
	RunCycle(ctx context.Context) error
}

type ingester struct {
	cfg     *shared.Config
	logger  shared.ILogger
	store   dal.IStore
	plat    platform.IPlatform
	scorer  IQualityScorer
	replier IReplier
	metrics IMetrics
}

type fetchFun func(ctx context.Context, sinceId string, maxResults int) ([]*platform.ExternalPost, error)

func NewIngester(
	cfg *shared.Config,
	logger shared.ILogger,
	store dal.IStore,
	plat platform.IPlatform,
	scorer IQualityScorer,
	replier IReplier,
	metrics IMetrics,
) IIngester {
	return &ingester{cfg, logger, store, plat, scorer, replier, metrics}
}

func NewIngestionWorker(
	cfg *shared.Config,
	logger shared.ILogger,
	lock coord.ILock,
	metrics IMetrics,
	ing IIngester,
) IWorker {
	return &periodic{
		name:     "mention_ingestion",
		lockKey:  coord.KeyMentionIngestion,
		interval: cfg.PollInterval(),
		cfg:      cfg,
		logger:   logger,
		lock:     lock,
		metrics:  metrics,
		cycle:    ing.RunCycle,
	}
}

func (ing *ingester) RunCycle(ctx context.Context) error {

	// Entries whose reply failed last time, e.g. because the generator was down
	if err := ing.retryBacklog(ctx); err != nil {
		return err
	}
	if err := ing.ingestSource(ctx, SourceMentions, dal.SettingLastMentionId, ing.plat.FetchMentions); err != nil {
		return err
	}
	return ing.ingestSource(ctx, SourceReplies, dal.SettingLastReplyId, ing.plat.FetchReplies)
}

func (ing *ingester) retryBacklog(ctx context.Context) error {
	backlog, err := ing.store.ListUnprocessedInbox(ing.cfg.Platform.FetchBatch)
	if err != nil {
		return fmt.Errorf("failed to list unprocessed inbox: %w", err)
	}
	for _, entry := range backlog {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = ing.handle(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (ing *ingester) ingestSource(ctx context.Context, source, cursorKey string, fetch fetchFun) error {

	cursor, _, err := ing.store.GetSetting(cursorKey)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", cursorKey, err)
	}

	posts, err := fetch(ctx, cursor, ing.cfg.Platform.FetchBatch)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", source, err)
	}
	if len(posts) == 0 {
		return nil
	}
	ing.logger.Debugf("Fetched %d %s since %q", len(posts), source, cursor)

	maxSeen := cursor
	for _, post := range posts {
		if err = ing.ingestPost(ctx, source, post); err != nil {
			return err
		}
		maxSeen = shared.MaxId(maxSeen, post.Id)
	}

	if maxSeen != cursor {
		if err = ing.store.SetSetting(cursorKey, maxSeen, time.Now()); err != nil {
			return fmt.Errorf("failed to advance %s: %w", cursorKey, err)
		}
		ing.logger.Debugf("Cursor %s advanced to %s", cursorKey, maxSeen)
	}
	return nil
}

// ingestPost returns an error only for failures that must stop the cycle.
func (ing *ingester) ingestPost(ctx context.Context, source string, post *platform.ExternalPost) error {

	known, err := ing.store.HasInboxEntry(post.Id)
	if err != nil {
		return err
	}
	if known {
		return nil
	}
	replied, err := ing.store.HasReplied(post.Id)
	if err != nil {
		return err
	}
	if replied {
		return nil
	}

	actor := post.Author
	if actor == nil {
		if actor, err = ing.plat.GetActor(ctx, post.AuthorId); err != nil {
			// A deleted account is the only reason to let a post go
			if platform.IsNotFound(err) {
				ing.logger.Warnf("Author %s of %s is gone; dropping it: %v", post.AuthorId, post.Id, err)
				return nil
			}
			return fmt.Errorf("failed to get author %s of %s: %w", post.AuthorId, post.Id, err)
		}
	}

	score := ing.scorer.Score(actor)
	if !score.Pass {
		ing.logger.Debugf("Filtered %s from %s: quality score %d", post.Id, actor.Handle, score.Value)
		ing.metrics.ItemFiltered(source)
		return nil
	}

	clean := *post
	clean.Text = shared.StripHtml(post.Text)
	clean.Author = actor
	entry := &dal.InboxEntry{
		Id:           post.Id,
		Post:         &clean,
		AuthorId:     post.AuthorId,
		QualityScore: score.Value,
		ReceivedAt:   time.Now(),
	}
	isNew, err := ing.store.AddInboxEntryIfNew(entry)
	if err != nil {
		return fmt.Errorf("failed to store inbox entry %s: %w", post.Id, err)
	}
	if !isNew {
		return nil
	}
	ing.metrics.ItemIngested(source)
	return ing.handle(ctx, entry)
}

// handle leaves a failed entry in the backlog. Platform trouble also ends the
// cycle, so the loop can wait out the rate limit or backoff before going on.
func (ing *ingester) handle(ctx context.Context, entry *dal.InboxEntry) error {
	outcome, err := ing.replier.HandleEntry(ctx, entry)
	if err == nil {
		ing.logger.Debugf("Handled %s: %s", entry.Id, outcome)
		return nil
	}
	if platform.IsPlatformTrouble(err) {
		return fmt.Errorf("failed to handle %s: %w", entry.Id, err)
	}
	ing.logger.Errorf("Failed to handle %s; will retry next cycle: %v", entry.Id, err)
	return nil
}
