package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/underwriter/internal/config"
	"github.com/opensource-finance/underwriter/internal/domain"
)

// cli carries state shared by every subcommand.
type cli struct {
	loader     *config.Loader
	configPath string
	cfg        *domain.Config
}

func newRootCmd() *cobra.Command {
	app := &cli{loader: config.NewLoader()}

	root := &cobra.Command{
		Use:     "underwriter",
		Short:   fmt.Sprintf("Underwriter STP engine (version: %s, commit: %s)", Version, Commit),
		Long:    "Underwriter evaluates life insurance proposals against staged, tenant-configured rules.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loader.Load(app.configPath)
			if err != nil {
				return err
			}
			app.cfg = cfg

			logger, err := newLogger(cfg.Logging, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&app.configPath, "config", "c", "", "config file (default ./underwriter.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, text)")

	v := app.loader.Viper()
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("logging.format", flags.Lookup("log-format"))

	root.AddCommand(
		newServeCmd(app),
		newEvaluateCmd(app),
		newSeedCmd(app),
		newVersionCmd(),
	)
	return root
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg domain.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}
