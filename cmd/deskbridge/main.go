package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/deskbridge/deskbridge"
	"github.com/deskbridge/deskbridge/internal/config"
	"github.com/deskbridge/deskbridge/internal/state"
)

const helpDescription = `
Move service-desk tickets from a Jira-style source into a GLPI-style target,
batch by batch, with a durable checkpoint so an interrupted run picks up
where it left off.

Highlights:
  - Resumable: progress is checkpointed after every applied batch.
  - Tolerant: a broken record is skipped and reported, never a dead end.
  - Configurable: shared + per-migration documents, env overrides, flags.
  - Honest about gaps: unresolved people and groups land in a TSV report.

Credentials (JIRA_PAT, GLPI_APP_TOKEN, GLPI_USER_TOKEN, GLPI_USERNAME,
GLPI_PASSWORD) are read from the environment or the config documents; they
have no flags on purpose.
`

var longHelp = strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  deskbridge --shared-config ./config_shared.yaml --config ./config_support.yaml
  deskbridge --config ./config_support.yaml --dry-run --max-records 25
  deskbridge --config ./config_support.yaml --record SUP-1234
  deskbridge state show --config ./config_support.yaml
  deskbridge state reset --config ./config_support.yaml
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := config.Default()
	var sharedPath, cfgPath string

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	// Resolve the effective configuration for the command at hand. Without a
	// migration document only flags, env and defaults apply, which is enough
	// for the inspection subcommands and for fully flag-driven runs.
	loadFor := func(cmd *cobra.Command) (map[string]bool, error) {
		changed := map[string]bool{}
		cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

		if cfgPath == "" {
			config.ApplyEnv(&cfg, changed)
			return changed, nil
		}
		if err := cfg.Load(sharedPath, cfgPath, changed); err != nil {
			return changed, fmt.Errorf("load config: %w", err)
		}
		return changed, nil
	}

	root := &cobra.Command{
		Use:     "deskbridge",
		Short:   "Migrate service-desk tickets between REST services in resumable batches",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed, err := loadFor(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}

			logCfg := cfg
			if len(logCfg.Source.Token) > 0 {
				logCfg.Source.Token = "*****"
			}
			if len(logCfg.Target.AppToken) > 0 {
				logCfg.Target.AppToken = "*****"
			}
			if len(logCfg.Target.UserToken) > 0 {
				logCfg.Target.UserToken = "*****"
			}
			if len(logCfg.Target.Password) > 0 {
				logCfg.Target.Password = "*****"
			}
			logger.Info().Interface("config", logCfg).Msg("configuration")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			watcher := config.NewWatcher(func() {
				fresh := config.Default()
				if err := fresh.Load(sharedPath, cfgPath, changed); err != nil {
					logger.Warn().Err(err).Msg("config reload failed")
					return
				}
				if changed["log-level"] {
					// A flag pins the level for the life of the run.
					return
				}
				applyLogLevel(logger, fresh.Logging.Level)
			}, sharedPath, cfgPath)
			go func() {
				if err := watcher.Run(ctx); err != nil {
					logger.Warn().Err(err).Msg("config watcher stopped")
				}
			}()

			sum, err := deskbridge.Run(ctx, cfg, deskbridge.WithLogger(logger))
			if err != nil {
				return err
			}

			mode := ""
			if cfg.Migration.DryRun {
				mode = " (dry run)"
			}
			fmt.Printf("run %s%s: fetched %d of %d, created %d, skipped %d, missing identities %d\n",
				sum.RunID, mode, sum.Fetched, sum.Total, sum.Created, sum.Skipped, sum.Missing)
			return nil
		},
	}

	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the saved checkpoint",
	}
	stateCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadFor(cmd); err != nil {
				return err
			}
			store := state.NewFileStore(cfg.Migration.StateFile)
			cp, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			if cp.IsZero() {
				fmt.Printf("no checkpoint at %s, the next run starts from the beginning\n", store.Path())
				return nil
			}
			fmt.Printf("cursor:    %d\nprocessed: %d\nsaved at:  %s\n",
				cp.Cursor, cp.Processed, cp.SavedAt.Format(time.RFC3339))
			return nil
		},
	}, &cobra.Command{
		Use:   "reset",
		Short: "Delete the saved checkpoint so the next run starts from the beginning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadFor(cmd); err != nil {
				return err
			}
			store := state.NewFileStore(cfg.Migration.StateFile)
			if _, err := os.Stat(store.Path()); os.IsNotExist(err) {
				fmt.Printf("no checkpoint at %s\n", store.Path())
				return nil
			}
			if err := store.Reset(); err != nil {
				return err
			}
			fmt.Printf("checkpoint %s removed\n", store.Path())
			return nil
		},
	})

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print the missing-identity report from the last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadFor(cmd); err != nil {
				return err
			}
			path := cfg.Migration.MissingReport
			if path == "" {
				fmt.Println("missing-identity reporting is disabled")
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Printf("no report at %s, every identity has resolved so far\n", path)
					return nil
				}
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}

	root.AddCommand(stateCmd, reportCmd)

	pf := root.PersistentFlags()
	pf.StringVar(&sharedPath, "shared-config", "", "path to the settings document shared by every migration")
	pf.StringVar(&cfgPath, "config", "", "path to the migration-specific settings document")
	pf.StringVar(&cfg.Migration.StateFile, "state-file", cfg.Migration.StateFile, "checkpoint file path")
	pf.StringVar(&cfg.Migration.MissingReport, "missing-report", cfg.Migration.MissingReport, "missing-identity report path (empty disables it)")

	root.Flags().StringVar(&cfg.Source.URL, "source-url", cfg.Source.URL, "base URL of the source service")
	root.Flags().StringVar(&cfg.Source.Project, "project", cfg.Source.Project, "source project key to migrate")
	root.Flags().StringVar(&cfg.Source.JQL, "jql", cfg.Source.JQL, "search query overriding the whole-project default")
	root.Flags().StringVar(&cfg.Target.URL, "target-url", cfg.Target.URL, "base URL of the target service")
	root.Flags().IntVar(&cfg.Migration.BatchSize, "batch-size", cfg.Migration.BatchSize, "records fetched and applied per batch")
	root.Flags().IntVar(&cfg.Migration.MaxRecords, "max-records", cfg.Migration.MaxRecords, "stop after this many records (0 means all)")
	root.Flags().StringVar(&cfg.Migration.OnlyRecord, "record", cfg.Migration.OnlyRecord, "migrate a single record by key, ignoring the checkpoint (debug)")
	if err := root.Flags().MarkHidden("record"); err != nil {
		log.Info().Err(err).Msg("failed to hide record flag")
	}
	root.Flags().DurationVar(&cfg.Migration.BatchPause, "batch-pause", cfg.Migration.BatchPause, "pause between batches")
	root.Flags().StringVar(&cfg.Migration.Timezone, "timezone", cfg.Migration.Timezone, "IANA zone converted timestamps are rendered in")
	root.Flags().BoolVar(&cfg.Migration.DryRun, "dry-run", cfg.Migration.DryRun, "transform records without writing or checkpointing")
	root.Flags().StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "log level (trace, debug, info, warn, error)")
	root.Flags().StringVar(&cfg.Logging.File, "log-file", cfg.Logging.File, "also append logs to this file")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("deskbridge")
		os.Exit(1)
	}
}

// newLogger builds the run logger: console output on stderr, optionally
// tee'd to a file. The level is applied globally so the config watcher can
// change it mid-run.
func newLogger(cfg config.LoggingConfig) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(lvl)

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	var out io.Writer = console
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(console, f)
	}
	return zerolog.New(out).With().Timestamp().Logger(), nil
}

func applyLogLevel(log zerolog.Logger, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("ignoring invalid log level")
		return
	}
	if zerolog.GlobalLevel() == lvl {
		return
	}
	zerolog.SetGlobalLevel(lvl)
	log.Info().Str("level", level).Msg("log level changed")
}
