package logic

import (
	"context"
	"errors"
	"fmt"
	"herald_bot/coord"
	"herald_bot/dal"
	"herald_bot/platform"
	"herald_bot/shared"
	"time"
)

type IDraftService interface {
	List(status dal.DraftStatus, limit int) ([]*dal.DraftEntry, error)
	Get(id string) (*dal.DraftEntry, error)
	Approve(id string) error
	Reject(id, reason string) error
	// PublishApproved posts every approved draft. Safe mode leaves them waiting.
	PublishApproved(ctx context.Context) error
	// ExpireStale retires pending and approved drafts older than the TTL.
	ExpireStale(ctx context.Context) error
}

type draftService struct {
	cfg     *shared.Config
	logger  shared.ILogger
	store   dal.IStore
	plat    platform.IPlatform
	conv    IConversation
	gate    IGate
	metrics IMetrics
}

func NewDraftService(
	cfg *shared.Config,
	logger shared.ILogger,
	store dal.IStore,
	plat platform.IPlatform,
	conv IConversation,
	gate IGate,
	metrics IMetrics,
) IDraftService {
	return &draftService{cfg, logger, store, plat, conv, gate, metrics}
}

func NewDraftPublisherWorker(
	cfg *shared.Config,
	logger shared.ILogger,
	lock coord.ILock,
	metrics IMetrics,
	ds IDraftService,
) IWorker {
	return &periodic{
		name:     "draft_publisher",
		lockKey:  coord.KeyDrafts,
		interval: time.Duration(cfg.Drafts.PublishIntervalSec) * time.Second,
		cfg:      cfg,
		logger:   logger,
		lock:     lock,
		metrics:  metrics,
		cycle:    ds.PublishApproved,
	}
}

func NewDraftExpirerWorker(
	cfg *shared.Config,
	logger shared.ILogger,
	lock coord.ILock,
	metrics IMetrics,
	ds IDraftService,
) IWorker {
	return &periodic{
		name:     "draft_expirer",
		lockKey:  coord.KeyDrafts,
		interval: time.Duration(cfg.Drafts.PublishIntervalSec) * time.Second,
		cfg:      cfg,
		logger:   logger,
		lock:     lock,
		metrics:  metrics,
		cycle:    ds.ExpireStale,
	}
}

func (ds *draftService) List(status dal.DraftStatus, limit int) ([]*dal.DraftEntry, error) {
	return ds.store.ListDrafts(status, limit)
}

func (ds *draftService) Get(id string) (*dal.DraftEntry, error) {
	draft, err := ds.store.GetDraft(id)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, dal.ErrNotFound
	}
	return draft, nil
}

func (ds *draftService) Approve(id string) error {
	if err := ds.store.TransitionDraft(id, dal.DraftPending, dal.DraftApproved, dal.DraftUpdate{When: time.Now()}); err != nil {
		return err
	}
	ds.logger.Infof("Draft %s approved", id)
	ds.metrics.DraftOutcome(string(dal.DraftApproved))
	ds.updatePendingGauge()
	return nil
}

func (ds *draftService) Reject(id, reason string) error {
	upd := dal.DraftUpdate{When: time.Now(), RejectReason: reason}
	if err := ds.store.TransitionDraft(id, dal.DraftPending, dal.DraftRejected, upd); err != nil {
		return err
	}
	if draft, err := ds.store.GetDraft(id); err != nil {
		return err
	} else if draft != nil {
		if err = ds.release(draft); err != nil {
			return err
		}
	}
	ds.logger.Infof("Draft %s rejected: %s", id, reason)
	ds.metrics.DraftOutcome(string(dal.DraftRejected))
	ds.updatePendingGauge()
	return nil
}

func (ds *draftService) updatePendingGauge() {
	count, err := ds.store.CountDrafts(dal.DraftPending)
	if err != nil {
		ds.logger.Warnf("Failed to count pending drafts: %v", err)
		return
	}
	ds.metrics.PendingDrafts(count)
}

func (ds *draftService) PublishApproved(ctx context.Context) error {

	if ds.gate.SafeMode() {
		ds.logger.Debugf("Safe mode is on; approved drafts stay queued")
		return nil
	}

	drafts, err := ds.store.ListDrafts(dal.DraftApproved, ds.cfg.Platform.FetchBatch)
	if err != nil {
		return fmt.Errorf("failed to list approved drafts: %w", err)
	}
	for _, draft := range drafts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = ds.publishDraft(ctx, draft); err != nil {
			return err
		}
	}
	return nil
}

// release hands back counts reserved for a reply draft that will not go out.
func (ds *draftService) release(draft *dal.DraftEntry) error {
	if draft.Kind != dal.KindReply || draft.ReplyToId == nil {
		return nil
	}
	if _, err := ds.store.ReleaseReply(*draft.ReplyToId); err != nil {
		return fmt.Errorf("failed to release reservation of draft %s: %w", draft.Id, err)
	}
	return nil
}

// alreadySent tells whether an earlier attempt posted the draft without finishing the bookkeeping.
func (ds *draftService) alreadySent(draft *dal.DraftEntry) (bool, error) {
	pe, err := ds.store.GetPost(draftPostIdOf(draft))
	if err != nil {
		return false, fmt.Errorf("failed to look up post of draft %s: %w", draft.Id, err)
	}
	return pe != nil && pe.Status == dal.PostPosted, nil
}

func draftPostIdOf(draft *dal.DraftEntry) string {
	if draft.Kind == dal.KindReply && draft.ReplyToId != nil {
		return replyPostId(*draft.ReplyToId)
	}
	return draftPostId(draft.Id)
}

// retire moves an approved draft that can no longer go out to expired.
func (ds *draftService) retire(draft *dal.DraftEntry, why string) error {
	ds.logger.Warnf("Draft %s will not be posted: %s", draft.Id, why)
	err := ds.store.TransitionDraft(draft.Id, dal.DraftApproved, dal.DraftExpired, dal.DraftUpdate{When: time.Now()})
	if errors.Is(err, dal.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to retire draft %s: %w", draft.Id, err)
	}
	if err = ds.release(draft); err != nil {
		return err
	}
	ds.metrics.DraftOutcome(string(dal.DraftExpired))
	return nil
}

func (ds *draftService) publishDraft(ctx context.Context, draft *dal.DraftEntry) error {

	now := time.Now()
	postId := draftPostIdOf(draft)
	sent, err := ds.alreadySent(draft)
	if err != nil {
		return err
	}
	if !sent && draft.CreatedAt.Before(now.Add(-ds.cfg.DraftTtl())) {
		return ds.retire(draft, "past its TTL")
	}
	if draft.Kind == dal.KindReply && draft.ReplyToId != nil {
		replied, err := ds.store.HasReplied(*draft.ReplyToId)
		if err != nil {
			return err
		}
		// Answered by some other post than this draft's
		if replied && !sent {
			return ds.retire(draft, ReasonAlreadyReplied)
		}
		if err = ds.conv.RecordReply(*draft.ReplyToId, draft.ConversationId, draft.AuthorId, now); err != nil {
			if reason, isCap := StopReasonOf(err); isCap {
				return ds.retire(draft, reason)
			}
			return fmt.Errorf("failed to record reply for draft %s: %w", draft.Id, err)
		}
	}

	pe, err := publish(ctx, ds.store, ds.plat, postId, draft.Text, draft.Kind, draft.ReplyToId)
	if platform.IsValidation(err) {
		return ds.retire(draft, err.Error())
	}
	if pe == nil {
		return fmt.Errorf("failed to publish draft %s: %w", draft.Id, err)
	}
	if err != nil {
		ds.logger.Errorf("%v", err)
	}

	if draft.Kind == dal.KindReply && draft.ReplyToId != nil {
		if _, err = ds.store.AddReplyLogIfNew(&dal.ReplyLogEntry{
			TargetId:    *draft.ReplyToId,
			ReplyPostId: *pe.ExternalId,
			RepliedAt:   *pe.PostedAt,
		}); err != nil {
			return fmt.Errorf("posted draft %s but failed to log the reply: %w", draft.Id, err)
		}
	}
	if draft.Kind == dal.KindTimeline {
		if err = ds.store.SetSetting(dal.SettingLastTimelinePostAt, pe.PostedAt.Format(time.RFC3339), now); err != nil {
			ds.logger.Errorf("Failed to save %s: %v", dal.SettingLastTimelinePostAt, err)
		}
	}

	upd := dal.DraftUpdate{When: *pe.PostedAt, PostId: pe.Id}
	if err = ds.store.TransitionDraft(draft.Id, dal.DraftApproved, dal.DraftPosted, upd); err != nil {
		return fmt.Errorf("posted draft %s but failed to mark it: %w", draft.Id, err)
	}
	ds.logger.Infof("Published draft %s as %s", draft.Id, *pe.ExternalId)
	ds.metrics.DraftOutcome(string(dal.DraftPosted))
	return nil
}

func (ds *draftService) ExpireStale(ctx context.Context) error {

	cutoff := time.Now().Add(-ds.cfg.DraftTtl())
	for _, status := range []dal.DraftStatus{dal.DraftPending, dal.DraftApproved} {
		drafts, err := ds.store.ListDrafts(status, 0)
		if err != nil {
			return fmt.Errorf("failed to list %s drafts: %w", status, err)
		}
		for _, draft := range drafts {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !draft.CreatedAt.Before(cutoff) {
				continue
			}
			if status == dal.DraftApproved {
				// The publisher finishes drafts that are already out
				sent, err := ds.alreadySent(draft)
				if err != nil {
					return err
				}
				if sent {
					continue
				}
			}
			err = ds.store.TransitionDraft(draft.Id, status, dal.DraftExpired, dal.DraftUpdate{When: time.Now()})
			if errors.Is(err, dal.ErrInvalidTransition) {
				// Decided on or published since we listed it
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to expire draft %s: %w", draft.Id, err)
			}
			if err = ds.release(draft); err != nil {
				return err
			}
			ds.logger.Infof("Draft %s (%s) expired", draft.Id, status)
			ds.metrics.DraftOutcome(string(dal.DraftExpired))
		}
	}
	ds.updatePendingGauge()
	return nil
}
