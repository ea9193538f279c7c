package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# cheercast configuration.
# Credentials are never stored here: set CHEERCAST_USER_ID and CHEERCAST_TOKEN.

api:
  # backend base URL, used for announcements and cheer audio
  base_url: "https://api.cheer.run"

broker:
  url: "ssl://mqtt.cheer.run:8883"
  connect_timeout: "10s"
  keep_alive: "30s"
  max_reconnect_interval: "1m"
  # 0, 1 or 2
  qos: 1

speech:
  # locale cheers are read in; changes apply without a restart
  locale: "ko-KR"
  slow: false
  requests_per_minute: 50
  timeout: "30s"
  binary: "gtts-cli"

audio:
  # 44100 or 48000
  sample_rate: 44100
  # 0.0 to 1.0
  volume: 1.0
  ffmpeg: "ffmpeg"
  fetch_timeout: "30s"
  # temp_dir: "/tmp"

cache:
  enabled: true
  # dir: "~/.cache/cheercast/speech"
  # megabytes
  max_size: 100

journal:
  enabled: true
  # path: "~/.local/share/cheercast/journal.db"

log:
  # debug, info, warn or error
  level: "info"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the cheercast config file",
	Long:    paragraph(fmt.Sprintf("\n%s the cheercast config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("cheercast config\ncheercast config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	// A broken config file must still be editable.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("cheercast", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
