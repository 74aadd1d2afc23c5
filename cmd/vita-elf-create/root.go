package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions carries everything the subcommands need: the config loaded
// (or defaulted) in PersistentPreRunE, and a logger sized to the
// requested verbosity.
type rootOptions struct {
	config  *config
	logger  *slog.Logger
	cfgFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "vita-elf-create",
		Short: "Convert a statically linked ARM ELF relocatable into a PS Vita SCE module",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.cfgFile)
			if err != nil {
				return err
			}
			opts.config = cfg
			opts.logger = newLogger(cfg.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "Path to an optional config file")

	cmd.AddCommand(newCreateCommand(opts))

	return cmd
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
