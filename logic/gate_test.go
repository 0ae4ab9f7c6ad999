package logic_test

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"herald_bot/dal"
	"herald_bot/logic"
	"herald_bot/shared"
	"testing"
	"time"
)

type brokenSettings struct{}

var errStoreDown = errors.New("store down")

func (brokenSettings) GetSetting(string) (string, bool, error) { return "", false, errStoreDown }
func (brokenSettings) SetSetting(string, string, time.Time) error { return errStoreDown }
func (brokenSettings) ListSettings() ([]*dal.RuntimeSetting, error) {
	return nil, errStoreDown
}

func TestGateOverridesStaticConfig(t *testing.T) {
	cfg := shared.DefaultConfig()
	cfg.SafeMode = false
	cfg.ApprovalRequired = true
	store := dal.NewMemStore()
	gate := logic.NewGate(cfg, discard, store)

	assert.False(t, gate.SafeMode())
	assert.True(t, gate.ApprovalRequired())

	require.NoError(t, gate.SetOverride(dal.SettingSafeMode, "on"))
	require.NoError(t, gate.SetOverride(dal.SettingApprovalRequired, "false"))
	assert.True(t, gate.SafeMode())
	assert.False(t, gate.ApprovalRequired())

	val, found, err := store.GetSetting(dal.SettingSafeMode)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "true", val)
}

func TestGateRejectsOtherKeys(t *testing.T) {
	gate := logic.NewGate(shared.DefaultConfig(), discard, dal.NewMemStore())
	err := gate.SetOverride(dal.SettingLastMentionId, "99")
	assert.ErrorIs(t, err, logic.ErrUnknownSetting)
	assert.ErrorIs(t, gate.SetOverride(dal.SettingSafeMode, "maybe"), logic.ErrInvalidValue)
}

func TestGateIgnoresGarbageValue(t *testing.T) {
	cfg := shared.DefaultConfig()
	store := dal.NewMemStore()
	require.NoError(t, store.SetSetting(dal.SettingSafeMode, "perhaps", time.Now()))
	gate := logic.NewGate(cfg, discard, store)
	assert.Equal(t, cfg.SafeMode, gate.SafeMode())
}

func TestGateFailsClosed(t *testing.T) {
	cfg := shared.DefaultConfig()
	cfg.SafeMode = false
	cfg.ApprovalRequired = false
	gate := logic.NewGate(cfg, discard, brokenSettings{})
	assert.True(t, gate.SafeMode())
	assert.True(t, gate.ApprovalRequired())
}
