package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ProtagonismAnalyzer/internal/app"
	"ProtagonismAnalyzer/internal/config"
	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/logging"
)

type options struct {
	configPath string
	logLevel   string
	fanOut     int
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "protagonism",
		Short: "Classify brand protagonism in news articles",
		Long: `protagonism collects articles from the configured endpoints, asks the
classifier how prominent each configured brand is in every article and writes
the bulk-import spreadsheets.

Example usage:
  protagonism run --config config.yaml
  protagonism schedule --config config.yaml --fan-out 8`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is $PROTAGONISM_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")
	root.PersistentFlags().IntVar(&opts.fanOut, "fan-out", 0, "override pipeline.fanOut")

	root.AddCommand(newRunCmd(opts), newScheduleCmd(opts))
	return root
}

// load reads the configuration and applies flag overrides, re-validating the result.
func (o *options) load() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := o.apply(&cfg); err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Debug("configuration loaded",
		"brands", len(cfg.Brands),
		"endpoints", len(cfg.Endpoints),
		"provider", cfg.Classifier.Provider,
		"fan_out", cfg.Pipeline.FanOut)
	return cfg, logger, nil
}

func (o *options) apply(cfg *config.Config) error {
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.fanOut != 0 {
		cfg.Pipeline.FanOut = o.fanOut
	}
	return cfg.Validate()
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := application.Run(ctx)
			if abort, ok := domain.IsRunAbort(err); ok {
				return fmt.Errorf("run %s aborted (%s): %w", summary.RunID, abort.Reason, err)
			}
			if err != nil {
				return err
			}
			for _, f := range summary.Files {
				cmd.Println(f)
			}
			return nil
		},
	}
}

func newScheduleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline every schedule.interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return application.Schedule(ctx)
		},
	}
}
