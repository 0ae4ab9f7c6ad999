package logic_test

import (
	"github.com/charmbracelet/log"
	"go.uber.org/mock/gomock"
	"herald_bot/dal"
	"herald_bot/logic"
	"herald_bot/mocks"
	"herald_bot/platform"
	"herald_bot/shared"
	"io"
	"testing"
	"time"
)

var discard = log.New(io.Discard)

type harness struct {
	cfg        *shared.Config
	store      dal.IStore
	mockPlat   *mocks.MockIPlatform
	mockGen    *mocks.MockIGenerator
	mockTopics *mocks.MockITopicSource
	metrics    logic.IMetrics
	gate       logic.IGate
	conv       logic.IConversation
}

func setupHarness(t *testing.T) (*gomock.Controller, *harness) {

	ctrl := gomock.NewController(t)

	cfg := shared.DefaultConfig()
	cfg.StoreBackend = shared.StoreMemory
	cfg.ApprovalRequired = false
	cfg.Timeline.JitterSeed = 42

	h := &harness{
		cfg:        cfg,
		store:      dal.NewMemStore(),
		mockPlat:   mocks.NewMockIPlatform(ctrl),
		mockGen:    mocks.NewMockIGenerator(ctrl),
		mockTopics: mocks.NewMockITopicSource(ctrl),
		metrics:    logic.NewMetrics(),
	}
	h.gate = logic.NewGate(h.cfg, discard, h.store)
	h.conv = logic.NewConversation(h.cfg, discard, h.store, h.mockPlat, h.gate)
	return ctrl, h
}

func (h *harness) replier() logic.IReplier {
	return logic.NewReplier(discard, h.store, h.mockPlat, h.mockGen, h.conv, h.gate, h.metrics)
}

func (h *harness) ingester() logic.IIngester {
	scorer := logic.NewQualityScorer(h.cfg)
	return logic.NewIngester(h.cfg, discard, h.store, h.mockPlat, scorer, h.replier(), h.metrics)
}

func (h *harness) timeline() logic.ITimelinePoster {
	return logic.NewTimelinePoster(h.cfg, discard, h.store, h.mockPlat, h.mockGen, h.mockTopics, h.gate, h.metrics)
}

func (h *harness) drafts() logic.IDraftService {
	return logic.NewDraftService(h.cfg, discard, h.store, h.mockPlat, h.conv, h.gate, h.metrics)
}

// goodActor scores well above the default threshold.
func goodActor(id string) *platform.ExternalActor {
	return &platform.ExternalActor{
		Id:             id,
		Handle:         id + "@example.social",
		DisplayName:    "Actor " + id,
		CreatedAt:      time.Now().AddDate(-2, 0, 0),
		FollowersCount: 800,
		FollowingCount: 200,
		PostsCount:     2000,
		Bio:            "Writes about birds and the occasional kite.",
		Location:       "Lisbon",
	}
}

// botActor has a fresh, empty account.
func botActor(id string) *platform.ExternalActor {
	return &platform.ExternalActor{
		Id:             id,
		Handle:         id + "@spam.example",
		CreatedAt:      time.Now().Add(-time.Hour),
		FollowingCount: 5000,
		DefaultAvatar:  true,
	}
}

func mkPost(id string, author *platform.ExternalActor, text string) *platform.ExternalPost {
	return &platform.ExternalPost{
		Id:        id,
		Text:      text,
		AuthorId:  author.Id,
		CreatedAt: time.Now(),
		Author:    author,
	}
}

func strPtr(s string) *string {
	return &s
}

func mkEntry(t *testing.T, h *harness, post *platform.ExternalPost) *dal.InboxEntry {
	entry := &dal.InboxEntry{
		Id:           post.Id,
		Post:         post,
		AuthorId:     post.AuthorId,
		QualityScore: 80,
		ReceivedAt:   time.Now(),
	}
	isNew, err := h.store.AddInboxEntryIfNew(entry)
	if err != nil || !isNew {
		t.Fatalf("failed to seed inbox entry %s: %v", post.Id, err)
	}
	return entry
}

func posted(id string) *platform.ExternalPost {
	return &platform.ExternalPost{Id: id, AuthorId: "me", CreatedAt: time.Now()}
}
