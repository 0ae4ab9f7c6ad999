package logic

import (
	"herald_bot/platform"
	"herald_bot/shared"
	"time"
	"unicode/utf8"
)

type QualityBreakdown struct {
	Age       int `json:"age"`
	Followers int `json:"followers"`
	Ratio     int `json:"ratio"`
	Posts     int `json:"posts"`
	Verified  int `json:"verified"`
	Profile   int `json:"profile"`
}

type QualityScore struct {
	Value     int              `json:"value"`
	Pass      bool             `json:"pass"`
	Breakdown QualityBreakdown `json:"breakdown"`
}

type IQualityScorer interface {
	Score(actor *platform.ExternalActor) QualityScore
}

type qualityScorer struct {
	threshold int
	now       func() time.Time
}

func NewQualityScorer(cfg *shared.Config) IQualityScorer {
	return &qualityScorer{cfg.Limits.QualityThreshold, time.Now}
}

func (qs *qualityScorer) Score(actor *platform.ExternalActor) QualityScore {
	return ScoreActor(actor, qs.now(), qs.threshold)
}

type tier struct {
	below  float64
	points int
}

var (
	ageTiers       = []tier{{30, 0}, {90, 5}, {180, 10}, {365, 15}}
	followerTiers  = []tier{{10, 0}, {50, 5}, {100, 10}, {500, 15}, {1000, 20}}
	ratioTiers     = []tier{{0.5, 0}, {1.0, 5}, {2.0, 10}}
	postCountTiers = []tier{{100, 0}, {500, 5}, {1000, 10}}
)

const (
	maxAgePoints      = 20
	maxFollowerPoints = 25
	maxRatioPoints    = 15
	maxPostPoints     = 15
	verifiedPoints    = 10
	profileItemPoints = 5
	minBioLen         = 20
	maxQualityScore   = 100
)

func tiered(val float64, tiers []tier, top int) int {
	for _, t := range tiers {
		if val < t.below {
			return t.points
		}
	}
	return top
}

// ScoreActor rates an account's metadata. Same actor and time, same score.
func ScoreActor(actor *platform.ExternalActor, now time.Time, threshold int) QualityScore {

	var bd QualityBreakdown

	ageDays := now.Sub(actor.CreatedAt).Hours() / 24
	bd.Age = tiered(ageDays, ageTiers, maxAgePoints)
	bd.Followers = tiered(float64(actor.FollowersCount), followerTiers, maxFollowerPoints)

	ratio := float64(actor.FollowersCount)
	if actor.FollowingCount > 0 {
		ratio = float64(actor.FollowersCount) / float64(actor.FollowingCount)
	}
	bd.Ratio = tiered(ratio, ratioTiers, maxRatioPoints)
	bd.Posts = tiered(float64(actor.PostsCount), postCountTiers, maxPostPoints)

	if actor.Verified {
		bd.Verified = verifiedPoints
	}
	if !actor.DefaultAvatar {
		bd.Profile += profileItemPoints
	}
	if utf8.RuneCountInString(actor.Bio) >= minBioLen {
		bd.Profile += profileItemPoints
	}
	if actor.Location != "" {
		bd.Profile += profileItemPoints
	}

	total := bd.Age + bd.Followers + bd.Ratio + bd.Posts + bd.Verified + bd.Profile
	if total > maxQualityScore {
		total = maxQualityScore
	}
	return QualityScore{
		Value:     total,
		Pass:      total >= threshold,
		Breakdown: bd,
	}
}
