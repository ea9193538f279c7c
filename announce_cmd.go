package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cheerrun/cheercast/internal/app"
	"github.com/cheerrun/cheercast/internal/config"
	"github.com/spf13/cobra"
)

var (
	announceSession string
	announceWait    time.Duration

	announceCmd = &cobra.Command{
		Use:   "announce TEXT...",
		Short: "Send announcements to a running session and speak them",
		Long: paragraph(fmt.Sprintf("\n%s each argument to the session's followers and read it aloud locally. "+
			"Announcements are buffered until the session id is bound, then sent in order.", keyword("Send"))),
		Example: paragraph("cheercast announce --session 42 \"5 km done\" \"halfway there\""),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return announce(cmd.Context(), args)
		},
	}
)

func init() {
	announceCmd.Flags().StringVar(&announceSession, "session", "", "running session id")
	announceCmd.Flags().DurationVar(&announceWait, "wait", 2*time.Minute, "how long to wait for local speech to finish")
	_ = announceCmd.MarkFlagRequired("session")
}

func announce(parent context.Context, texts []string) error {
	if parent == nil {
		parent = context.Background()
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	a, err := app.New(cfg, creds)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("Shutdown", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.StartSession()
	for _, text := range texts {
		if err := a.Announce(ctx, text); err != nil {
			return err
		}
	}

	var errs []error
	if err := a.SessionSaved(ctx, announceSession); err != nil {
		errs = append(errs, err)
	}

	wctx, cancel := context.WithTimeout(ctx, announceWait)
	defer cancel()
	if err := a.Engine().WaitIdle(wctx); err != nil {
		log.Warn("Stopped before local speech finished", "error", err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("some announcements were not delivered: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Sent %d announcement(s) to session %s\n", len(texts), keyword(announceSession))
	return nil
}
