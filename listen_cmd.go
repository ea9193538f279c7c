package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cheerrun/cheercast/internal/app"
	"github.com/cheerrun/cheercast/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	listenSession      string
	listenStartSession bool

	listenCmd = &cobra.Command{
		Use:   "listen",
		Short: "Connect to the broker and play incoming cheers",
		Long: paragraph(fmt.Sprintf("\n%s for cheers on your event topic and play them one at a time. "+
			"Credentials are read from CHEERCAST_USER_ID and CHEERCAST_TOKEN.", keyword("Listen"))),
		Example: paragraph("cheercast listen\ncheercast listen --session 42\ncheercast listen --locale en-US"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listen(cmd.Context())
		},
	}
)

func init() {
	listenCmd.Flags().StringVar(&listenSession, "session", "", "attach to an existing running session id")
	listenCmd.Flags().BoolVar(&listenStartSession, "start-session", false, "start a session that will receive an id later")
}

func listen(parent context.Context) error {
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

	config.Watch(viper.GetViper(), func(c config.Config) {
		if !verbose {
			log.SetLevel(c.LogLevel())
		}
		a.Apply(c)
	})

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case listenSession != "":
		if err := a.SessionSaved(ctx, listenSession); err != nil {
			log.Warn("Session flush", "error", err)
		}
	case listenStartSession:
		a.StartSession()
	}

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	started := time.Now()
	fmt.Fprintln(os.Stderr, faint("Listening for cheers. Press Ctrl+C to stop."))
	<-ctx.Done()

	stats := a.Ingest().Stats()
	qs := a.Engine().QueueStats()
	log.Info("Stopped listening",
		"uptime", time.Since(started).Round(time.Second),
		"received", stats.Received,
		"routed", stats.Routed,
		"dropped", stats.Dropped,
		"played", qs.TotalDequeued,
		"cleared", qs.TotalCleared,
		"peak_queue", qs.PeakSize)
	return nil
}
