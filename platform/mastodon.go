package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/PuerkitoBio/goquery"
	"github.com/carlmjohnson/requests"
	"herald_bot/shared"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	missingAvatarMarker = "/avatars/original/missing.png"
	maxErrorBodyLen     = 512
	maxNotifPages       = 20 // How far back one fetch pages to reach the cursor
)

type mastoAccount struct {
	Id             string       `json:"id"`
	Acct           string       `json:"acct"`
	DisplayName    string       `json:"display_name"`
	CreatedAt      time.Time    `json:"created_at"`
	FollowersCount int          `json:"followers_count"`
	FollowingCount int          `json:"following_count"`
	StatusesCount  int          `json:"statuses_count"`
	Note           string       `json:"note"`
	Avatar         string       `json:"avatar"`
	Fields         []mastoField `json:"fields"`
}

type mastoField struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	VerifiedAt *string `json:"verified_at"`
}

type mastoStatus struct {
	Id                 string        `json:"id"`
	CreatedAt          time.Time     `json:"created_at"`
	InReplyToId        *string       `json:"in_reply_to_id"`
	InReplyToAccountId *string       `json:"in_reply_to_account_id"`
	Content            string        `json:"content"`
	Account            *mastoAccount `json:"account"`
	Pleroma            *struct {
		ConversationId json.Number `json:"conversation_id"`
	} `json:"pleroma,omitempty"`
}

type mastoNotification struct {
	Id     string       `json:"id"`
	Type   string       `json:"type"`
	Status *mastoStatus `json:"status"`
}

type mastoContext struct {
	Ancestors []*mastoStatus `json:"ancestors"`
}

type mastodon struct {
	cfg       *shared.Config
	logger    shared.ILogger
	userAgent shared.IUserAgent
	client    *http.Client
	muSelf    sync.Mutex
	selfId    string
}

// NewMastodon returns an IPlatform backed by a Mastodon-compatible REST API.
func NewMastodon(cfg *shared.Config, logger shared.ILogger, userAgent shared.IUserAgent) IPlatform {
	return &mastodon{
		cfg:       cfg,
		logger:    logger,
		userAgent: userAgent,
		client:    &http.Client{Timeout: time.Duration(cfg.Platform.TimeoutSec) * time.Second},
	}
}

func (m *mastodon) req(path string) *requests.Builder {
	return requests.
		URL(m.cfg.Platform.BaseUrl).
		Path(path).
		Client(m.client).
		Bearer(m.cfg.Secrets.PlatformToken).
		Header("User-Agent", m.userAgent.Value()).
		AddValidator(checkResponse)
}

// Maps the platform's status codes to our error kinds.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	msg := strings.TrimSpace(string(body))
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp.Header, time.Now())}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Msg: msg}
	case http.StatusNotFound:
		return &NotFoundError{What: resp.Request.URL.Path}
	case http.StatusUnprocessableEntity:
		return &ValidationError{Msg: msg}
	}
	return &ProviderError{Status: resp.StatusCode, Err: errors.New(msg)}
}

func retryAfter(hdr http.Header, now time.Time) time.Duration {
	if val := hdr.Get("Retry-After"); val != "" {
		if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if when, err := http.ParseTime(val); err == nil && when.After(now) {
			return when.Sub(now)
		}
	}
	if val := hdr.Get("X-RateLimit-Reset"); val != "" {
		if when, err := time.Parse(time.RFC3339, val); err == nil && when.After(now) {
			return when.Sub(now)
		}
	}
	return 0
}

// Keeps our typed errors; anything else (transport, decoding) becomes a provider error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rle *RateLimitError
	var ae *AuthError
	var nfe *NotFoundError
	var ve *ValidationError
	var pe *ProviderError
	switch {
	case errors.As(err, &rle):
		return rle
	case errors.As(err, &ae):
		return ae
	case errors.As(err, &nfe):
		return nfe
	case errors.As(err, &ve):
		return ve
	case errors.As(err, &pe):
		return pe
	}
	return &ProviderError{Err: err}
}

func (m *mastodon) getSelfId(ctx context.Context) (string, error) {
	m.muSelf.Lock()
	defer m.muSelf.Unlock()
	if m.selfId != "" {
		return m.selfId, nil
	}
	var acct mastoAccount
	if err := m.req("/api/v1/accounts/verify_credentials").ToJSON(&acct).Fetch(ctx); err != nil {
		return "", classify(err)
	}
	m.selfId = acct.Id
	return m.selfId, nil
}

func (m *mastodon) HealthCheck(ctx context.Context) bool {
	var acct mastoAccount
	err := m.req("/api/v1/accounts/verify_credentials").ToJSON(&acct).Fetch(ctx)
	if err != nil {
		m.logger.Warnf("Platform health check failed: %v", err)
		return false
	}
	return true
}

// Mention notifications carry both plain mentions and replies to our posts.
// Replies are the ones addressed to our account.
// The API pages by notification id, newest first, so we walk back with max_id until
// we pass sinceId. What we return is the oldest maxResults, in id order: the caller's
// cursor then never skips over statuses it has not seen.
func (m *mastodon) fetchMentionStatuses(ctx context.Context, sinceId string, maxResults int, replies bool) ([]*ExternalPost, error) {
	selfId, err := m.getSelfId(ctx)
	if err != nil {
		return nil, err
	}
	var res []*ExternalPost
	maxId := ""
	reachedCursor := false
	for page := 0; page < maxNotifPages && !reachedCursor; page++ {
		notifs, err := m.fetchNotifPage(ctx, maxId, maxResults)
		if err != nil {
			return nil, err
		}
		if len(notifs) == 0 {
			break
		}
		for _, n := range notifs {
			maxId = n.Id
			if n.Status == nil || n.Status.Account == nil {
				continue
			}
			if sinceId != "" && shared.CompareIds(n.Status.Id, sinceId) <= 0 {
				reachedCursor = true
				continue
			}
			isReply := n.Status.InReplyToAccountId != nil && *n.Status.InReplyToAccountId == selfId
			if isReply != replies {
				continue
			}
			res = append(res, toExternalPost(n.Status))
		}
		// On first start only the newest page matters
		if sinceId == "" {
			break
		}
	}
	if sinceId != "" && !reachedCursor && maxId != "" {
		m.logger.Warnf("Mentions go back more than %d pages past %s; older ones are not fetched", maxNotifPages, sinceId)
	}

	sort.Slice(res, func(i, j int) bool { return shared.CompareIds(res[i].Id, res[j].Id) < 0 })
	if maxResults > 0 && len(res) > maxResults {
		res = res[:maxResults]
	}
	return res, nil
}

func (m *mastodon) fetchNotifPage(ctx context.Context, maxId string, limit int) ([]mastoNotification, error) {
	var notifs []mastoNotification
	rb := m.req("/api/v1/notifications").
		Param("types[]", "mention").
		Param("limit", strconv.Itoa(limit))
	if maxId != "" {
		rb = rb.Param("max_id", maxId)
	}
	if err := rb.ToJSON(&notifs).Fetch(ctx); err != nil {
		return nil, classify(err)
	}
	return notifs, nil
}

func (m *mastodon) FetchMentions(ctx context.Context, sinceId string, maxResults int) ([]*ExternalPost, error) {
	return m.fetchMentionStatuses(ctx, sinceId, maxResults, false)
}

func (m *mastodon) FetchReplies(ctx context.Context, sinceId string, maxResults int) ([]*ExternalPost, error) {
	return m.fetchMentionStatuses(ctx, sinceId, maxResults, true)
}

func (m *mastodon) FetchThreadContext(ctx context.Context, postId string, maxDepth int) ([]*ExternalPost, error) {
	var mc mastoContext
	err := m.req(fmt.Sprintf("/api/v1/statuses/%s/context", url.PathEscape(postId))).
		ToJSON(&mc).
		Fetch(ctx)
	if err != nil {
		return nil, classify(err)
	}
	ancestors := mc.Ancestors
	if maxDepth > 0 && len(ancestors) > maxDepth {
		ancestors = ancestors[len(ancestors)-maxDepth:]
	}
	res := make([]*ExternalPost, 0, len(ancestors))
	for _, st := range ancestors {
		res = append(res, toExternalPost(st))
	}
	return res, nil
}

func (m *mastodon) Post(ctx context.Context, text string, replyTo *string) (*ExternalPost, error) {
	if n := utf8.RuneCountInString(text); n > m.cfg.Platform.MaxPostLen {
		return nil, &ValidationError{Msg: fmt.Sprintf("post is %d characters; limit is %d", n, m.cfg.Platform.MaxPostLen)}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Msg: "post is empty"}
	}
	body := map[string]any{"status": text}
	if replyTo != nil {
		body["in_reply_to_id"] = *replyTo
	}
	var st mastoStatus
	err := m.req("/api/v1/statuses").
		BodyJSON(body).
		ToJSON(&st).
		Fetch(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return toExternalPost(&st), nil
}

func (m *mastodon) GetActor(ctx context.Context, id string) (*ExternalActor, error) {
	var acct mastoAccount
	err := m.req("/api/v1/accounts/" + url.PathEscape(id)).ToJSON(&acct).Fetch(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return toExternalActor(&acct), nil
}

func (m *mastodon) GetActorByHandle(ctx context.Context, handle string) (*ExternalActor, error) {
	var acct mastoAccount
	err := m.req("/api/v1/accounts/lookup").
		Param("acct", strings.TrimPrefix(handle, "@")).
		ToJSON(&acct).
		Fetch(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return toExternalActor(&acct), nil
}

func toExternalPost(st *mastoStatus) *ExternalPost {
	res := &ExternalPost{
		Id:          st.Id,
		Text:        htmlToText(st.Content),
		CreatedAt:   st.CreatedAt,
		InReplyToId: st.InReplyToId,
	}
	if st.Account != nil {
		res.AuthorId = st.Account.Id
		res.Author = toExternalActor(st.Account)
	}
	if st.Pleroma != nil && st.Pleroma.ConversationId != "" {
		conv := st.Pleroma.ConversationId.String()
		res.ConversationId = &conv
	}
	return res
}

func toExternalActor(acct *mastoAccount) *ExternalActor {
	res := &ExternalActor{
		Id:             acct.Id,
		Handle:         acct.Acct,
		DisplayName:    acct.DisplayName,
		CreatedAt:      acct.CreatedAt,
		FollowersCount: acct.FollowersCount,
		FollowingCount: acct.FollowingCount,
		PostsCount:     acct.StatusesCount,
		Bio:            htmlToText(acct.Note),
		DefaultAvatar:  acct.Avatar == "" || strings.Contains(acct.Avatar, missingAvatarMarker),
	}
	for _, f := range acct.Fields {
		if f.VerifiedAt != nil {
			res.Verified = true
		}
		if strings.EqualFold(strings.TrimSpace(f.Name), "location") {
			res.Location = htmlToText(f.Value)
		}
	}
	return res
}

// Converts status HTML to plain text, dropping @mention h-cards.
func htmlToText(htm string) string {
	if htm == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htm))
	if err != nil {
		return htm
	}
	doc.Find("span.h-card").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	var parts []string
	paras := doc.Find("p")
	if paras.Length() == 0 {
		parts = append(parts, doc.Text())
	} else {
		paras.Each(func(_ int, s *goquery.Selection) {
			parts = append(parts, s.Text())
		})
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}
