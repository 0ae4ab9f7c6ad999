package logic

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"herald_bot/content"
	"herald_bot/dal"
	"herald_bot/platform"
	"herald_bot/shared"
	"time"
)

const (
	OutcomePosted  = "posted"
	OutcomeDrafted = "drafted"
	OutcomeSkipped = "skipped"
	OutcomeBlocked = "blocked"
	OutcomeFailed  = "failed"
)

type IReplier interface {
	// HandleEntry decides on, and produces, our answer to one inbox entry.
	// An error leaves the entry unprocessed so a later cycle can pick it up.
	HandleEntry(ctx context.Context, entry *dal.InboxEntry) (string, error)
}

type replier struct {
	logger  shared.ILogger
	store   dal.IStore
	plat    platform.IPlatform
	gen     content.IGenerator
	conv    IConversation
	gate    IGate
	metrics IMetrics
}

func NewReplier(
	logger shared.ILogger,
	store dal.IStore,
	plat platform.IPlatform,
	gen content.IGenerator,
	conv IConversation,
	gate IGate,
	metrics IMetrics,
) IReplier {
	return &replier{logger, store, plat, gen, conv, gate, metrics}
}

func (r *replier) skip(entry *dal.InboxEntry, reason string) (string, error) {
	r.logger.Debugf("Skipping %s: %s", entry.Id, reason)
	if err := r.conv.ReleaseReply(entry.Id); err != nil {
		return "", err
	}
	if err := r.store.MarkInboxSkipped(entry.Id, reason, time.Now()); err != nil {
		return "", fmt.Errorf("failed to mark %s skipped: %w", entry.Id, err)
	}
	r.metrics.ReplyOutcome(OutcomeSkipped + ":" + reason)
	return OutcomeSkipped, nil
}

func (r *replier) HandleEntry(ctx context.Context, entry *dal.InboxEntry) (string, error) {

	post := entry.Post
	now := time.Now()

	replied, err := r.store.HasReplied(entry.Id)
	if err != nil {
		return "", err
	}
	if replied {
		return r.skip(entry, ReasonAlreadyReplied)
	}

	thread := r.conv.BuildThread(ctx, post)
	convKey := r.conv.ConversationKey(post, thread)
	decision, err := r.conv.Evaluate(post, convKey, now)
	if err != nil {
		return "", err
	}
	if !decision.Engage {
		return r.skip(entry, decision.Reason)
	}

	text, err := r.replyText(ctx, entry, thread)
	if err != nil {
		r.metrics.ReplyOutcome(OutcomeFailed)
		return "", err
	}

	if r.gate.ApprovalRequired() {
		return r.saveDraft(entry, convKey, text)
	}
	return r.postReply(ctx, entry, convKey, text)
}

// replyText reuses the text of an earlier attempt at this reply, or generates a new one.
func (r *replier) replyText(ctx context.Context, entry *dal.InboxEntry, thread []*platform.ExternalPost) (string, error) {
	earlier, err := r.store.GetPost(replyPostId(entry.Id))
	if err != nil {
		return "", fmt.Errorf("failed to look up earlier reply to %s: %w", entry.Id, err)
	}
	if earlier != nil && earlier.Status != dal.PostBlocked {
		r.logger.Debugf("Retrying earlier reply to %s", entry.Id)
		return earlier.Text, nil
	}

	post := entry.Post
	handle := post.AuthorId
	if post.Author != nil && post.Author.Handle != "" {
		handle = post.Author.Handle
	}
	// The thread ends with the post itself; the generator gets that separately
	text, err := r.gen.GenerateReply(ctx, post.Text, handle, thread[:len(thread)-1])
	if err != nil {
		return "", fmt.Errorf("failed to generate reply to %s: %w", entry.Id, err)
	}
	return text, nil
}

func (r *replier) saveDraft(entry *dal.InboxEntry, convKey, text string) (string, error) {
	replyTo := entry.Id
	draft := &dal.DraftEntry{
		Id:             uuid.NewString(),
		Text:           text,
		Kind:           dal.KindReply,
		ReplyToId:      &replyTo,
		ConversationId: convKey,
		AuthorId:       entry.AuthorId,
		Status:         dal.DraftPending,
		ContentHash:    dal.ContentHash(text),
		CreatedAt:      time.Now(),
	}
	if err := r.store.AddDraft(draft); err != nil {
		return "", fmt.Errorf("failed to save draft reply to %s: %w", entry.Id, err)
	}
	if err := r.store.MarkInboxProcessed(entry.Id, time.Now()); err != nil {
		return "", err
	}
	r.logger.Infof("Saved draft %s replying to %s for approval", draft.Id, entry.Id)
	r.metrics.ReplyOutcome(OutcomeDrafted)
	return OutcomeDrafted, nil
}

func (r *replier) postReply(ctx context.Context, entry *dal.InboxEntry, convKey, text string) (string, error) {

	if err := r.conv.RecordReply(entry.Id, convKey, entry.AuthorId, time.Now()); err != nil {
		if reason, isCap := StopReasonOf(err); isCap {
			return r.skip(entry, reason)
		}
		return "", fmt.Errorf("failed to record reply to %s: %w", entry.Id, err)
	}

	replyTo := entry.Id
	pe, err := publish(ctx, r.store, r.plat, replyPostId(entry.Id), text, dal.KindReply, &replyTo)
	if platform.IsValidation(err) {
		r.logger.Warnf("Platform rejected reply to %s: %v", entry.Id, err)
		return r.skipBlocked(entry)
	}
	if pe == nil {
		r.metrics.ReplyOutcome(OutcomeFailed)
		return "", fmt.Errorf("failed to post reply to %s: %w", entry.Id, err)
	}
	if err != nil {
		// It is out there: the reply log must still be written
		r.logger.Errorf("%v", err)
	}

	if _, err = r.store.AddReplyLogIfNew(&dal.ReplyLogEntry{
		TargetId:    entry.Id,
		ReplyPostId: *pe.ExternalId,
		RepliedAt:   *pe.PostedAt,
	}); err != nil {
		return "", fmt.Errorf("posted reply to %s but failed to log it: %w", entry.Id, err)
	}
	if err = r.store.MarkInboxProcessed(entry.Id, time.Now()); err != nil {
		return "", err
	}
	r.logger.Infof("Replied to %s with %s", entry.Id, *pe.ExternalId)
	r.metrics.ReplyOutcome(OutcomePosted)
	return OutcomePosted, nil
}

func (r *replier) skipBlocked(entry *dal.InboxEntry) (string, error) {
	if _, err := r.skip(entry, ReasonValidation); err != nil {
		return "", err
	}
	return OutcomeBlocked, nil
}

// Every attempt at the same reply or draft maps to one PostEntry.
var postIdSpace = uuid.MustParse("6f1c2a53-8d0e-4b8a-9a41-3c7e5d2b9f10")

func replyPostId(targetId string) string {
	return uuid.NewSHA1(postIdSpace, []byte("reply/"+targetId)).String()
}

func draftPostId(draftId string) string {
	return uuid.NewSHA1(postIdSpace, []byte("draft/"+draftId)).String()
}

// publish posts text and keeps the PostEntry id in step with it: draft before the
// call, then posted, or blocked if the platform refused the content.
// An entry left as draft by a failed attempt is retried with its own text; one
// already posted is returned as is.
// A non-nil entry means the post went out, even if err is also set.
func publish(
	ctx context.Context,
	store dal.IPostRepo,
	plat platform.IPlatform,
	id string,
	text string,
	kind dal.PostKind,
	replyTo *string,
) (*dal.PostEntry, error) {

	pe, err := store.GetPost(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get post %s: %w", id, err)
	}
	switch {
	case pe == nil:
		pe = &dal.PostEntry{
			Id:          id,
			Text:        text,
			Kind:        kind,
			ReplyToId:   replyTo,
			Status:      dal.PostDraft,
			ContentHash: dal.ContentHash(text),
			CreatedAt:   time.Now(),
		}
		if err = store.AddPost(pe); err != nil {
			return nil, fmt.Errorf("failed to save post: %w", err)
		}
	case pe.Status == dal.PostPosted:
		return pe, nil
	case pe.Status == dal.PostBlocked:
		return nil, &platform.ValidationError{Msg: "post " + id + " was refused earlier"}
	}

	ext, err := plat.Post(ctx, pe.Text, replyTo)
	if err != nil {
		if platform.IsValidation(err) {
			if updErr := store.UpdatePostStatus(pe.Id, dal.PostBlocked, nil, time.Now()); updErr != nil {
				return nil, fmt.Errorf("failed to mark post %s blocked: %w", pe.Id, updErr)
			}
		}
		return nil, err
	}

	when := time.Now().UTC()
	pe.ExternalId = &ext.Id
	pe.PostedAt = &when
	pe.Status = dal.PostPosted
	if err = store.UpdatePostStatus(pe.Id, dal.PostPosted, &ext.Id, when); err != nil {
		return pe, fmt.Errorf("posted %s but failed to update post %s: %w", ext.Id, pe.Id, err)
	}
	return pe, nil
}
