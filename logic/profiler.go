package logic

import (
	"context"
	"fmt"
	"herald_bot/shared"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"
)

const profilerStartDelaySec = 10
const profilerLoopSec = 60

type profiler struct {
	logger          shared.ILogger
	profileDir      string
	profileKeepDays int
}

// NewProfiler returns a worker that dumps goroutine stacks into profile_dir every minute.
// Without a profile_dir it exits right away.
func NewProfiler(cfg *shared.Config, logger shared.ILogger) IWorker {
	return &profiler{logger, cfg.ProfileDir, cfg.ProfileKeepDays}
}

func (prof *profiler) Name() string    { return "profiler" }
func (prof *profiler) NeedsLock() bool { return false }

func (prof *profiler) Run(ctx context.Context, stop <-chan struct{}) {
	if prof.profileDir == "" {
		return
	}
	if err := os.MkdirAll(prof.profileDir, 0o755); err != nil {
		prof.logger.Errorf("Cannot create profile directory %s: %v", prof.profileDir, err)
		return
	}
	if !sleepOrStop(ctx, stop, profilerStartDelaySec*time.Second) {
		return
	}
	for {
		if err := prof.saveProfileAndPurgeOld(time.Now()); err != nil {
			prof.logger.Warnf("Failed to save goroutine profile: %v", err)
		}
		if !sleepOrStop(ctx, stop, profilerLoopSec*time.Second) {
			return
		}
	}
}

func saveProfile(profileDir string, now time.Time) error {
	ts := now.Format("2006-01-02!15-04-05")
	fname := fmt.Sprintf("%v.txt", ts)
	profPath := filepath.Join(profileDir, fname)
	f, err := os.Create(profPath)
	if err != nil {
		return err
	}
	defer f.Close()

	numGoroutine := runtime.NumGoroutine()
	if _, err = fmt.Fprintf(f, "Goroutine count: %d\n\n", numGoroutine); err != nil {
		return err
	}

	if err = pprof.Lookup("goroutine").WriteTo(f, 2); err != nil {
		return err
	}
	return nil
}

func purgeOld(profileDir string, retentionDays int, now time.Time) error {
	cutoff := now.AddDate(0, 0, -retentionDays)
	return filepath.Walk(profileDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && info.ModTime().Before(cutoff) {
			return os.Remove(path)
		}
		return nil
	})
}

func (prof *profiler) saveProfileAndPurgeOld(now time.Time) error {
	if err := saveProfile(prof.profileDir, now); err != nil {
		return err
	}
	return purgeOld(prof.profileDir, prof.profileKeepDays, now)
}
