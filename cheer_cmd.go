package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cheerrun/cheercast/internal/app"
	"github.com/cheerrun/cheercast/internal/config"
	"github.com/spf13/cobra"
)

var (
	cheerSession string
	cheerText    string
	cheerAudio   string

	cheerCmd = &cobra.Command{
		Use:   "cheer",
		Short: "Cheer on someone else's run",
		Long: paragraph(fmt.Sprintf("\n%s a text or voice cheer to a running session. "+
			"Text is read aloud on the runner's side, recordings are played as they are.", keyword("Send"))),
		Example: paragraph("cheercast cheer --session 42 --text \"you got this\"\ncheercast cheer --session 42 --audio go.m4a"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cheer(ctx)
		},
	}
)

func init() {
	cheerCmd.Flags().StringVar(&cheerSession, "session", "", "running session id to cheer")
	cheerCmd.Flags().StringVarP(&cheerText, "text", "t", "", "text cheer")
	cheerCmd.Flags().StringVarP(&cheerAudio, "audio", "a", "", "recording to send as a voice cheer")
	_ = cheerCmd.MarkFlagRequired("session")
	cheerCmd.MarkFlagsMutuallyExclusive("text", "audio")
	cheerCmd.MarkFlagsOneRequired("text", "audio")
}

func cheer(ctx context.Context) error {
	creds, err := config.LoadCredentials()
	if err != nil && !errors.Is(err, config.ErrMissingCredentials) {
		return err
	}
	if creds.Token == "" {
		return config.ErrMissingCredentials
	}

	c, err := app.NewCheers(cfg, creds)
	if err != nil {
		return err
	}

	if cheerAudio != "" {
		err = c.Audio(ctx, cheerSession, cheerAudio)
	} else {
		err = c.Text(ctx, cheerSession, cheerText)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Cheer sent to session %s\n", keyword(cheerSession))
	return nil
}
