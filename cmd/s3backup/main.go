package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rowjay/s3backup/internal/app"
	"github.com/rowjay/s3backup/internal/command"
	"github.com/rowjay/s3backup/internal/config"
	"github.com/rowjay/s3backup/internal/lock"
	"github.com/rowjay/s3backup/internal/logging"
	"github.com/rowjay/s3backup/internal/notify"
	"github.com/rowjay/s3backup/internal/schedule"
	"github.com/rowjay/s3backup/internal/storage"
	"github.com/rowjay/s3backup/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "s3backup",
		Short: "Back up databases and folders to S3-compatible storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Usage()
			return errors.New("a subcommand is required")
		},
	}

	rootCmd.PersistentFlags().StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json or .enc)")
	rootCmd.PersistentFlags().StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")

	rootCmd.AddCommand(newBackupCmd(root))
	rootCmd.AddCommand(newRestoreCmd(root))
	rootCmd.AddCommand(newValidateCmd(root))
	rootCmd.AddCommand(newListCmd(root))
	rootCmd.AddCommand(newScheduleCmd(root))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newBackupCmd(root *rootFlags) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up every configured element",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := buildApp(root)
			if err != nil {
				return err
			}
			ctx, cancel := operationContext(cfg)
			defer cancel()

			report, err := svc.Backup(ctx)
			if err != nil {
				return err
			}
			return reportResult(report, strict)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any element fails")
	return cmd
}

func newRestoreCmd(root *rootFlags) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "restore [TITLE...]",
		Short: "Restore the latest remote artifact of the given elements (all when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := buildApp(root)
			if err != nil {
				return err
			}
			ctx, cancel := operationContext(cfg)
			defer cancel()

			report, err := svc.Restore(ctx, args)
			if err != nil {
				return err
			}
			return reportResult(report, strict)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any element fails")
	return cmd
}

func newValidateCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration, tools and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := buildApp(root)
			if err != nil {
				return err
			}
			ctx, cancel := operationContext(cfg)
			defer cancel()

			failed := 0
			for _, res := range svc.Validate(ctx) {
				name := res.Title
				if name == "" {
					name = "remote store"
				}
				status := "ok"
				if res.Err != nil {
					failed++
					status = res.Err.Error()
				}
				fmt.Printf("%s\t%s\n", name, status)
			}
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			svc.Log.Info().Msg("validation succeeded")
			return nil
		},
	}
}

func newListCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list [TITLE...]",
		Short: "List remote artifacts per element",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := buildApp(root)
			if err != nil {
				return err
			}
			ctx, cancel := operationContext(cfg)
			defer cancel()

			listings, err := svc.List(ctx, args)
			if err != nil {
				return err
			}
			var errs []error
			for _, l := range listings {
				if l.Err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", l.Title, l.Err))
					continue
				}
				for _, obj := range l.Objects {
					fmt.Printf("%s\t%s\t%s\t%s\n", l.Title, obj.Key, humanize.Bytes(uint64(obj.Size)), obj.LastModified.Format(time.RFC3339))
				}
			}
			return errors.Join(errs...)
		},
	}
}

func newScheduleCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run backups on the configured cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := buildApp(root)
			if err != nil {
				return err
			}
			if cfg.Schedule.Cron == "" {
				return errors.New("schedule.cron is not configured")
			}

			sched, err := schedule.New(cfg.Schedule.Cron, cfg.Schedule.Timezone, svc.Log, func(ctx context.Context) {
				runScheduledBackup(ctx, svc, cfg)
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return sched.Run(ctx)
		},
	}
}

func runScheduledBackup(ctx context.Context, svc *app.App, cfg *config.Config) {
	if cfg.Global.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Global.OperationTimeout)
		defer cancel()
	}
	report, err := svc.Backup(ctx)
	switch {
	case errors.Is(err, lock.ErrLocked):
		svc.Log.Warn().Err(err).Msg("skipping scheduled backup")
	case err != nil:
		svc.Log.Error().Err(err).Msg("scheduled backup did not run")
	case !report.OK():
		svc.Log.Warn().Err(report.Err()).Msg("scheduled backup finished with failures")
	}
}

func newConfigCmd() *cobra.Command {
	var input string
	var output string
	var key string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config utilities",
	}

	encrypt := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = os.Getenv(config.KeyEnv)
			}
			if input == "" || output == "" || key == "" {
				return fmt.Errorf("--input, --output, and --key (or %s) are required", config.KeyEnv)
			}
			return config.EncryptConfigFile(input, output, key)
		},
	}
	encrypt.Flags().StringVar(&input, "input", "", "Input config file")
	encrypt.Flags().StringVar(&output, "output", "", "Output encrypted config file (must end in .enc)")
	encrypt.Flags().StringVar(&key, "key", "", "Encryption key (base64 or hex)")

	cmd.AddCommand(encrypt)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("s3backup %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

// buildApp loads the configuration and wires the application.
func buildApp(root *rootFlags) (*app.App, *config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}

	logger := logging.Configure(logging.Options{
		Level:      cfg.Global.LogLevel,
		Format:     cfg.Global.LogFormat,
		File:       cfg.Global.LogFile,
		MaxSizeMB:  cfg.Global.LogMaxSizeMB,
		MaxBackups: cfg.Global.LogMaxBackups,
		MaxAgeDays: cfg.Global.LogMaxAgeDays,
	})
	store, err := storage.New(cfg.Remote)
	if err != nil {
		return nil, nil, err
	}
	runner := command.NewRunner(logger, cfg.Global.CommandTimeout)
	return app.New(cfg, store, runner, logger, notify.FromConfig(cfg.Notifications)), cfg, nil
}

func operationContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if cfg.Global.OperationTimeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Global.OperationTimeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// reportResult prints one line per element. Element failures only fail the
// command under --strict.
func reportResult(report *app.BatchReport, strict bool) error {
	for _, res := range report.Results {
		line := fmt.Sprintf("%s\t%s", res.Title, res.State)
		if res.Key != "" {
			line += "\t" + res.Key
		}
		if res.Err != nil {
			line += fmt.Sprintf("\tfailed at %s: %v", res.FailedStage, res.Err)
		}
		fmt.Println(line)
	}
	if strict && !report.OK() {
		return report.Err()
	}
	return nil
}
