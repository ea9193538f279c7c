package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cheerrun/cheercast/internal/journal"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	historyLimit   int
	historySession string

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recently received cheers",
		Long: paragraph(fmt.Sprintf("\n%s the cheers recorded in the local journal, newest first. "+
			"With --session, show one session's cheers in the order they arrived.", keyword("List"))),
		Example: paragraph("cheercast history\ncheercast history --limit 50\ncheercast history --session 42"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return history(ctx, cmd.OutOrStdout())
		},
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
	historyCmd.Flags().StringVar(&historySession, "session", "", "only show this session's cheers")
}

func history(ctx context.Context, w io.Writer) error {
	if !cfg.Journal.Enabled {
		return errors.New("the journal is disabled (journal.enabled: false)")
	}
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	var entries []journal.Entry
	if historySession != "" {
		entries, err = j.BySession(ctx, historySession)
	} else {
		entries, err = j.Recent(ctx, historyLimit)
	}
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		_, err = fmt.Fprintln(w, faint("No cheers yet."))
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, formatEntry(e)); err != nil {
			return err
		}
	}
	return nil
}

func formatEntry(e journal.Entry) string {
	kind := string(e.Type)
	if s, ok := typeStyle[kind]; ok {
		kind = s.Render(fmt.Sprintf("%-8s", kind))
	}

	var b strings.Builder
	b.WriteString(faint(fmt.Sprintf("%-16s", humanize.Time(e.ReceivedAt))))
	b.WriteString(" ")
	b.WriteString(kind)
	b.WriteString(" ")
	b.WriteString(e.Content)
	if e.SessionID != "" && historySession == "" {
		b.WriteString(" ")
		b.WriteString(faint("#" + e.SessionID))
	}
	return b.String()
}
