package content

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"herald_bot/platform"
	"herald_bot/shared"
	"herald_bot/texts"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const rssDoc = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>News</title>
<item><title>Rain &amp; &lt;b&gt;wind&lt;/b&gt;</title><guid>1</guid></item>
<item><title>Harvest moon</title><guid>2</guid></item>
</channel></rss>`

func TestGenerateReplySendsThread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, "- first")
		assert.Contains(t, req.Messages[1].Content, "@pixie")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  \"Sure thing!\" "}}]}`)
	}))
	defer srv.Close()

	cfg := shared.DefaultConfig()
	cfg.Generator.BaseUrl = srv.URL
	cfg.Secrets.GeneratorKey = "key"
	gen := NewChatGenerator(cfg, log.New(io.Discard), shared.NewUserAgent(cfg), texts.NewTexts())

	thread := []*platform.ExternalPost{{Id: "1", Text: "first"}, {Id: "2", Text: "second"}}
	res, err := gen.GenerateReply(context.Background(), "second", "@pixie", thread)
	require.NoError(t, err)
	assert.Equal(t, "Sure thing!", res)
}

func TestGenerateEmptyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	cfg := shared.DefaultConfig()
	cfg.Generator.BaseUrl = srv.URL
	gen := NewChatGenerator(cfg, log.New(io.Discard), shared.NewUserAgent(cfg), texts.NewTexts())
	_, err := gen.GenerateTimelinePost(context.Background(), "")
	assert.True(t, errors.Is(err, ErrEmptyGeneration))
}

func TestStaticTopicsDeterministic(t *testing.T) {
	topics := []string{"a", "b", "c", "d"}
	s1 := NewStaticTopics(topics, 7)
	s2 := NewStaticTopics(topics, 7)
	for i := 0; i < 5; i++ {
		t1, _ := s1.NextTopic(context.Background())
		t2, _ := s2.NextTopic(context.Background())
		assert.Equal(t, t1, t2)
	}
	empty, err := NewStaticTopics(nil, 1).NextTopic(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "", empty)
}

func TestFeedTopicsRotateTitles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "Herald-Bot/"))
		_, _ = io.WriteString(w, rssDoc)
	}))
	defer srv.Close()

	cfg := shared.DefaultConfig()
	src := NewFeedTopics(srv.URL, log.New(io.Discard), shared.NewUserAgent(cfg), NewStaticTopics(nil, 1))
	first, err := src.NextTopic(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Rain & wind", first)
	second, _ := src.NextTopic(context.Background())
	assert.Equal(t, "Harvest moon", second)
	third, _ := src.NextTopic(context.Background())
	assert.Equal(t, "Rain & wind", third)
}

func TestFeedTopicsFallBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := shared.DefaultConfig()
	src := NewFeedTopics(srv.URL, log.New(io.Discard), shared.NewUserAgent(cfg), NewStaticTopics([]string{"tea"}, 1))
	topic, err := src.NextTopic(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tea", topic)
}
