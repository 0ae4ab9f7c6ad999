package logic

import (
	"errors"
	"fmt"
	"herald_bot/dal"
	"herald_bot/shared"
	"strconv"
	"time"
)

var (
	ErrUnknownSetting = errors.New("setting cannot be changed at runtime")
	ErrInvalidValue   = errors.New("invalid setting value")
)

// IGate answers the two global switches. Runtime settings in the store win over static config.
type IGate interface {
	SafeMode() bool
	ApprovalRequired() bool
	SetOverride(key, val string) error
}

type gate struct {
	cfg    *shared.Config
	logger shared.ILogger
	repo   dal.ISettingsRepo
}

func NewGate(cfg *shared.Config, logger shared.ILogger, repo dal.ISettingsRepo) IGate {
	return &gate{cfg, logger, repo}
}

func (g *gate) SafeMode() bool {
	return g.flag(dal.SettingSafeMode, g.cfg.SafeMode)
}

func (g *gate) ApprovalRequired() bool {
	return g.flag(dal.SettingApprovalRequired, g.cfg.ApprovalRequired)
}

// flag reads an override. If the store can't answer we assume the restrictive value.
func (g *gate) flag(key string, static bool) bool {
	val, found, err := g.repo.GetSetting(key)
	if err != nil {
		g.logger.Errorf("Failed to read setting %s; assuming it is on: %v", key, err)
		return true
	}
	if !found {
		return static
	}
	res, err := shared.ParseBool(val)
	if err != nil {
		g.logger.Warnf("Ignoring unparseable value for %s: %q", key, val)
		return static
	}
	return res
}

func (g *gate) SetOverride(key, val string) error {
	if key != dal.SettingSafeMode && key != dal.SettingApprovalRequired {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	b, err := shared.ParseBool(val)
	if err != nil {
		return fmt.Errorf("%w for %s: %q", ErrInvalidValue, key, val)
	}
	if err = g.repo.SetSetting(key, strconv.FormatBool(b), time.Now()); err != nil {
		return err
	}
	g.logger.Infof("Runtime setting %s is now %v", key, b)
	return nil
}
