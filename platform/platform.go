package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../mocks/mock_platform.go -package mocks herald_bot/platform IPlatform

// ExternalPost is a post as observed on the platform. Never mutated after fetch.
type ExternalPost struct {
	Id             string         `json:"id"`
	Text           string         `json:"text"`
	AuthorId       string         `json:"author_id"`
	ConversationId *string        `json:"conversation_id,omitempty"`
	InReplyToId    *string        `json:"in_reply_to_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Author         *ExternalActor `json:"author,omitempty"`
}

// ExternalActor is a snapshot of an account at fetch time.
type ExternalActor struct {
	Id             string    `json:"id"`
	Handle         string    `json:"handle"`
	DisplayName    string    `json:"display_name"`
	CreatedAt      time.Time `json:"created_at"`
	FollowersCount int       `json:"followers_count"`
	FollowingCount int       `json:"following_count"`
	PostsCount     int       `json:"posts_count"`
	Verified       bool      `json:"verified"`
	Bio            string    `json:"bio"`
	Location       string    `json:"location"`
	DefaultAvatar  bool      `json:"default_avatar"`
}

type IPlatform interface {
	FetchMentions(ctx context.Context, sinceId string, maxResults int) ([]*ExternalPost, error)
	FetchReplies(ctx context.Context, sinceId string, maxResults int) ([]*ExternalPost, error)
	// FetchThreadContext returns the posts that postId replies to, oldest first, at most maxDepth.
	FetchThreadContext(ctx context.Context, postId string, maxDepth int) ([]*ExternalPost, error)
	Post(ctx context.Context, text string, replyTo *string) (*ExternalPost, error)
	GetActor(ctx context.Context, id string) (*ExternalActor, error)
	GetActorByHandle(ctx context.Context, handle string) (*ExternalActor, error)
	HealthCheck(ctx context.Context) bool
}

type RateLimitError struct {
	RetryAfter time.Duration // zero if the platform did not say
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited; retry after %v", e.RetryAfter)
	}
	return "rate limited"
}

type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Msg
}

type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return "not found: " + e.What
}

type ProviderError struct {
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Msg
}

// AsRateLimit reports whether err is a rate limit, and the wait it asks for.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsPlatformTrouble tells whether err means the platform itself can't be used
// right now, as opposed to a problem with one item.
func IsPlatformTrouble(err error) bool {
	_, isRateLimit := AsRateLimit(err)
	return isRateLimit || IsAuth(err) || IsProvider(err)
}
