package main

import (
	"fmt"
	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"herald_bot/shared"
	"io"
	"os"
)

type Context struct {
	cfg    *shared.Config
	logger *log.Logger
}

var cli struct {
	Debug bool `help:"Log at debug level, whatever the config says."`

	Serve    ServeCmd    `cmd:"" help:"Run the ingestion, reply and timeline loops plus the operator API."`
	Drafts   DraftsCmd   `cmd:"" help:"Review drafts waiting for approval."`
	Settings SettingsCmd `cmd:"" help:"Show or change runtime settings."`
	Score    ScoreCmd    `cmd:"" help:"Score an account the way ingestion does."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("herald"),
		kong.Description("Autonomous posting agent for Mastodon-compatible servers."),
		kong.UsageOnError(),
	)

	cfg := shared.LoadConfig()
	if cli.Debug {
		cfg.LogLevel = "Debug"
	}
	logger := initLogger(cfg)

	err := kctx.Run(&Context{cfg: cfg, logger: logger})
	kctx.FatalIfErrorf(err)
}

func initLogger(cfg *shared.Config) *log.Logger {

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
		if err != nil {
			msg := fmt.Sprintf("Failed to open log file '%v': %v", cfg.LogFile, err)
			log.Fatal(msg)
		}
		out = io.MultiWriter(os.Stdout, logFile)
	}

	logger := log.New(out)
	logger.SetReportTimestamp(true)
	logger.SetTimeFormat("2006-01-02 15:04:05.000")
	switch cfg.LogLevel {
	case "Debug":
		logger.SetLevel(log.DebugLevel)
	case "Info":
		logger.SetLevel(log.InfoLevel)
	case "Warn":
		logger.SetLevel(log.WarnLevel)
	case "Error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.ErrorLevel)
	}
	logger.SetReportCaller(true)

	return logger
}
