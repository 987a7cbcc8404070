package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/farum-chat/internal/config"
)

type rootOptions struct {
	configFile string
	storage    string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "farum-chat",
		Short: "Chat sessions backed by an LLM",
		Long: `farum-chat keeps chat sessions and their messages in a store and
answers prompts through an LLM provider.

Quick Start:
  farum-chat serve                       # Start the JSON API
  farum-chat sessions                    # List sessions
  farum-chat ask <session-id> "Hello"    # Ask within a session`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (overrides FARUM_CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&opts.storage, "storage", "", "Storage backend: memory, sqlite or firestore")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(
		newServeCmd(opts),
		newSessionsCmd(opts),
		newAskCmd(opts),
	)
	return cmd
}

// loadConfig applies the persistent flags on top of config.Load.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configFile != "" {
		if err := os.Setenv("FARUM_CONFIG_FILE", o.configFile); err != nil {
			return nil, err
		}
	}
	if o.storage != "" {
		if err := os.Setenv("FARUM_STORAGE_BACKEND", o.storage); err != nil {
			return nil, err
		}
	}
	return config.Load()
}

// logOutput is where one-shot commands log: stderr when verbose, nowhere
// otherwise.
func (o *rootOptions) logOutput(cmd *cobra.Command) io.Writer {
	if o.verbose {
		return cmd.ErrOrStderr()
	}
	return io.Discard
}
