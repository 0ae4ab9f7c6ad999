package content

import (
	"context"
	"errors"
	"fmt"
	"github.com/carlmjohnson/requests"
	"herald_bot/platform"
	"herald_bot/shared"
	"herald_bot/texts"
	"net/http"
	"strconv"
	"strings"
	"time"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../mocks/mock_generator.go -package mocks herald_bot/content IGenerator

// IGenerator produces post text. Calls may be slow and may fail.
type IGenerator interface {
	GenerateReply(ctx context.Context, text, authorHandle string, thread []*platform.ExternalPost) (string, error)
	GenerateTimelinePost(ctx context.Context, topic string) (string, error)
}

var ErrEmptyGeneration = errors.New("generator returned no text")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatGenerator struct {
	cfg       *shared.Config
	logger    shared.ILogger
	userAgent shared.IUserAgent
	txt       texts.ITexts
	client    *http.Client
}

// NewChatGenerator talks to an OpenAI-compatible chat completions endpoint.
func NewChatGenerator(
	cfg *shared.Config,
	logger shared.ILogger,
	userAgent shared.IUserAgent,
	txt texts.ITexts,
) IGenerator {
	return &chatGenerator{
		cfg:       cfg,
		logger:    logger,
		userAgent: userAgent,
		txt:       txt,
		client:    &http.Client{Timeout: time.Duration(cfg.Generator.TimeoutSec) * time.Second},
	}
}

func (g *chatGenerator) systemPrompt() string {
	return g.txt.WithVals("system.txt", map[string]string{
		"persona": g.cfg.Generator.Persona,
		"max_len": strconv.Itoa(g.cfg.Platform.MaxPostLen),
	})
}

func (g *chatGenerator) GenerateReply(
	ctx context.Context,
	text, authorHandle string,
	thread []*platform.ExternalPost,
) (string, error) {
	var sb strings.Builder
	for _, p := range thread {
		sb.WriteString("- ")
		sb.WriteString(strings.ReplaceAll(p.Text, "\n", " "))
		sb.WriteString("\n")
	}
	prompt := g.txt.WithVals("reply.txt", map[string]string{
		"thread": strings.TrimSpace(sb.String()),
		"author": strings.TrimPrefix(authorHandle, "@"),
		"text":   text,
	})
	return g.complete(ctx, prompt)
}

func (g *chatGenerator) GenerateTimelinePost(ctx context.Context, topic string) (string, error) {
	if topic == "" {
		topic = "anything you find interesting today"
	}
	prompt := g.txt.WithVals("timeline.txt", map[string]string{"topic": topic})
	return g.complete(ctx, prompt)
}

func (g *chatGenerator) complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model: g.cfg.Generator.Model,
		Messages: []chatMessage{
			{Role: "system", Content: g.systemPrompt()},
			{Role: "user", Content: prompt},
		},
	}
	var resp chatResponse
	err := requests.
		URL(g.cfg.Generator.BaseUrl).
		Path("/v1/chat/completions").
		Client(g.client).
		Bearer(g.cfg.Secrets.GeneratorKey).
		Header("User-Agent", g.userAgent.Value()).
		BodyJSON(&req).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyGeneration
	}
	res := cleanGenerated(resp.Choices[0].Message.Content)
	if res == "" {
		return "", ErrEmptyGeneration
	}
	return res, nil
}

// Models like to wrap answers in quotes.
func cleanGenerated(text string) string {
	text = strings.TrimSpace(text)
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}
	return text
}
