package main

import (
	"fmt"
	"herald_bot/dal"
	"herald_bot/logic"
	"herald_bot/shared"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

type DraftsCmd struct {
	List    DraftsListCmd    `cmd:"" help:"List drafts."`
	Approve DraftsApproveCmd `cmd:"" help:"Approve a pending draft for publishing."`
	Reject  DraftsRejectCmd  `cmd:"" help:"Reject a pending draft."`
}

type DraftsListCmd struct {
	Status string `help:"Only drafts in this status (pending, approved, rejected, posted, expired)." default:"pending"`
	Limit  int    `help:"Maximum number of drafts to show; 0 means all." default:"50"`
}

type DraftsApproveCmd struct {
	Id string `arg:"" help:"Draft ID."`
}

type DraftsRejectCmd struct {
	Id     string `arg:"" help:"Draft ID."`
	Reason string `help:"Why the draft was rejected."`
}

// openOffline opens the configured store for a one-shot command.
func openOffline(ctx *Context) (dal.IStore, error) {
	if ctx.cfg.StoreBackend == shared.StoreMemory {
		return nil, fmt.Errorf("store_backend is %q; there is nothing to inspect outside a running service", shared.StoreMemory)
	}
	store := dal.NewStore(ctx.cfg, ctx.logger)
	store.InitUpdateDb()
	return store, nil
}

// Publishing is the serve command's job; offline review only needs the store.
func offlineDraftService(ctx *Context, store dal.IStore) logic.IDraftService {
	gate := logic.NewGate(ctx.cfg, ctx.logger, store)
	return logic.NewDraftService(ctx.cfg, ctx.logger, store, nil, nil, gate, logic.NewMetrics())
}

func (c *DraftsListCmd) Run(ctx *Context) error {
	store, err := openOffline(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	drafts, err := offlineDraftService(ctx, store).List(dal.DraftStatus(c.Status), c.Limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tCREATED\tREPLY TO\tTEXT")
	for _, d := range drafts {
		replyTo := "-"
		if d.ReplyToId != nil {
			replyTo = *d.ReplyToId
		}
		text := shared.TruncateWithEllipsis(strings.ReplaceAll(d.Text, "\n", " "), 60)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Id, d.Kind, d.Status, d.CreatedAt.Local().Format(time.DateTime), replyTo, text)
	}
	return tw.Flush()
}

func (c *DraftsApproveCmd) Run(ctx *Context) error {
	store, err := openOffline(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err = offlineDraftService(ctx, store).Approve(c.Id); err != nil {
		return fmt.Errorf("cannot approve draft %s: %w", c.Id, err)
	}
	fmt.Printf("Draft %s approved; it goes out on the publisher's next cycle.\n", c.Id)
	return nil
}

func (c *DraftsRejectCmd) Run(ctx *Context) error {
	store, err := openOffline(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err = offlineDraftService(ctx, store).Reject(c.Id, c.Reason); err != nil {
		return fmt.Errorf("cannot reject draft %s: %w", c.Id, err)
	}
	fmt.Printf("Draft %s rejected.\n", c.Id)
	return nil
}
