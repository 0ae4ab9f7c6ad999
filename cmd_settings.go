package main

import (
	"fmt"
	"herald_bot/logic"
	"os"
	"text/tabwriter"
	"time"
)

type SettingsCmd struct {
	Get SettingsGetCmd `cmd:"" help:"Show effective switches and persisted settings."`
	Set SettingsSetCmd `cmd:"" help:"Override safe_mode or approval_required."`
}

type SettingsGetCmd struct{}

type SettingsSetCmd struct {
	Key   string `arg:"" enum:"safe_mode,approval_required" help:"Setting to change."`
	Value string `arg:"" help:"true or false."`
}

func (c *SettingsGetCmd) Run(ctx *Context) error {
	store, err := openOffline(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	gate := logic.NewGate(ctx.cfg, ctx.logger, store)
	fmt.Printf("safe_mode:         %v\n", gate.SafeMode())
	fmt.Printf("approval_required: %v\n\n", gate.ApprovalRequired())

	settings, err := store.ListSettings()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE\tUPDATED")
	for _, s := range settings {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Key, s.Value, s.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func (c *SettingsSetCmd) Run(ctx *Context) error {
	store, err := openOffline(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err = logic.NewGate(ctx.cfg, ctx.logger, store).SetOverride(c.Key, c.Value); err != nil {
		return err
	}
	fmt.Printf("%s set to %s.\n", c.Key, c.Value)
	return nil
}
