package content

import (
	"context"
	"fmt"
	"github.com/mmcdole/gofeed"
	"herald_bot/shared"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../mocks/mock_topic_source.go -package mocks herald_bot/content ITopicSource

const (
	feedTimeoutSec   = 10
	feedCacheMinutes = 30
)

// ITopicSource hands the timeline poster something to write about.
// An empty topic is valid and leaves the choice to the generator.
type ITopicSource interface {
	NextTopic(ctx context.Context) (string, error)
}

// NewTopicSource picks the feed source when a feed is configured, else the static list.
func NewTopicSource(cfg *shared.Config, logger shared.ILogger, userAgent shared.IUserAgent) ITopicSource {
	static := NewStaticTopics(cfg.Topics.Static, time.Now().UnixNano())
	if cfg.Topics.FeedUrl == "" {
		return static
	}
	return NewFeedTopics(cfg.Topics.FeedUrl, logger, userAgent, static)
}

type staticTopics struct {
	mu     sync.Mutex
	topics []string
	rng    *rand.Rand
}

func NewStaticTopics(topics []string, seed int64) ITopicSource {
	return &staticTopics{topics: topics, rng: rand.New(rand.NewSource(seed))}
}

func (st *staticTopics) NextTopic(context.Context) (string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.topics) == 0 {
		return "", nil
	}
	return st.topics[st.rng.Intn(len(st.topics))], nil
}

type feedTopics struct {
	feedUrl   string
	logger    shared.ILogger
	userAgent shared.IUserAgent
	fallback  ITopicSource
	client    *http.Client
	mu        sync.Mutex
	titles    []string
	fetchedAt time.Time
	next      int
}

func NewFeedTopics(feedUrl string, logger shared.ILogger, userAgent shared.IUserAgent, fallback ITopicSource) ITopicSource {
	return &feedTopics{
		feedUrl:   feedUrl,
		logger:    logger,
		userAgent: userAgent,
		fallback:  fallback,
		client:    &http.Client{Timeout: feedTimeoutSec * time.Second},
	}
}

// NextTopic rotates through the newest item titles of the feed.
func (ft *feedTopics) NextTopic(ctx context.Context) (string, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if len(ft.titles) == 0 || time.Since(ft.fetchedAt) > feedCacheMinutes*time.Minute {
		titles, err := ft.fetchTitles(ctx)
		if err != nil {
			ft.logger.Warnf("Failed to refresh topic feed %s: %v", ft.feedUrl, err)
		} else {
			ft.titles = titles
			ft.fetchedAt = time.Now()
			ft.next = 0
		}
	}
	if len(ft.titles) == 0 {
		return ft.fallback.NextTopic(ctx)
	}
	res := ft.titles[ft.next%len(ft.titles)]
	ft.next++
	return res, nil
}

func (ft *feedTopics) fetchTitles(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", ft.feedUrl, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", ft.userAgent.Value())
	resp, err := ft.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %v", resp.StatusCode)
	}
	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	var titles []string
	for _, itm := range feed.Items {
		if title := shared.StripHtml(itm.Title); title != "" {
			titles = append(titles, title)
		}
	}
	return titles, nil
}
