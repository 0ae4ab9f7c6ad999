package main

import (
	"context"
	"fmt"
	"herald_bot/logic"
	"herald_bot/platform"
	"herald_bot/shared"
	"time"
)

const scoreLookupTimeout = 30 * time.Second

type ScoreCmd struct {
	Handle string `arg:"" help:"Account handle, e.g. someone@example.social."`
}

func (c *ScoreCmd) Run(ctx *Context) error {
	plat := platform.NewMastodon(ctx.cfg, ctx.logger, shared.NewUserAgent(ctx.cfg))

	lookupCtx, cancel := context.WithTimeout(context.Background(), scoreLookupTimeout)
	defer cancel()
	actor, err := plat.GetActorByHandle(lookupCtx, c.Handle)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", c.Handle, err)
	}

	score := logic.NewQualityScorer(ctx.cfg).Score(actor)
	b := score.Breakdown
	fmt.Printf("%s (%s)\n", actor.Handle, actor.Id)
	fmt.Printf("  account age: %3d\n", b.Age)
	fmt.Printf("  followers:   %3d\n", b.Followers)
	fmt.Printf("  ratio:       %3d\n", b.Ratio)
	fmt.Printf("  posts:       %3d\n", b.Posts)
	fmt.Printf("  verified:    %3d\n", b.Verified)
	fmt.Printf("  profile:     %3d\n", b.Profile)
	verdict := "filtered"
	if score.Pass {
		verdict = "accepted"
	}
	fmt.Printf("  total:       %3d / threshold %d: %s\n", score.Value, ctx.cfg.Limits.QualityThreshold, verdict)
	return nil
}
