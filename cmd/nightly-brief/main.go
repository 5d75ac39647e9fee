// main package for the nightly-brief job
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/nightly-brief/internal/brief"
	"github.com/book-expert/nightly-brief/internal/config"
	"github.com/book-expert/nightly-brief/internal/tones"
	"github.com/book-expert/nightly-brief/internal/worker"
	"github.com/spf13/cobra"
)

const envFile = ".env"

// ErrServeNeedsNATS indicates that serve mode was started without a NATS URL.
var ErrServeNeedsNATS = errors.New("serve requires a NATS url")

// reportedError wraps an error that was already printed to the user.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string {
	return e.err.Error()
}

func (e *reportedError) Unwrap() error {
	return e.err
}

// runFlags holds the flag overrides shared by the commands.
type runFlags struct {
	tone     string
	tonesDir string
	date     string
}

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "nightly-brief.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// bootstrap loads the env file and configuration and returns the final logger.
func bootstrap(flags *runFlags) (*config.Config, *logger.Logger, error) {
	err := config.LoadDotEnv(envFile)
	if err != nil {
		return nil, nil, err
	}

	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		return nil, nil, err
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	// 2. Load configuration
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, nil, err
	}

	if flags.tone != "" {
		cfg.Job.ToneName = flags.tone
	}

	if flags.tonesDir != "" {
		cfg.Job.TonesDir = flags.tonesDir
	}

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, nil, err
	}

	return cfg, finalLog, nil
}

func closeLogger(log *logger.Logger) {
	closeErr := log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}

func jobContext(parent context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if cfg.Job.TimeoutSeconds == 0 {
		return context.WithCancel(parent)
	}

	return context.WithTimeout(parent, time.Duration(cfg.Job.TimeoutSeconds)*time.Second)
}

// newRunner connects every backend and builds the runner. The caller closes
// the returned connections.
func newRunner(ctx context.Context, cfg *config.Config, log *logger.Logger) (*brief.Runner, *connections, error) {
	conns, err := connect(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	toneSet, err := tones.LoadDir(cfg.Job.TonesDir, log)
	if err != nil {
		conns.close()

		return nil, nil, err
	}

	log.Info("Loaded %d tones from %s", len(toneSet), cfg.Job.TonesDir)

	runner, err := brief.NewRunner(brief.Deps{
		Store:    conns.store,
		OpsLog:   conns.opsLog,
		Notifier: conns.notifier,
		Tones:    toneSet,
		Log:      log,
		JobName:  cfg.Job.Name,
		Clock:    nil,
		NewID:    nil,
	})
	if err != nil {
		conns.close()

		return nil, nil, fmt.Errorf("failed to create runner: %w", err)
	}

	return runner, conns, nil
}

func runJob(cmd *cobra.Command, flags *runFlags) error {
	cfg, log, err := bootstrap(flags)
	if err != nil {
		return err
	}
	defer closeLogger(log)

	ctx, cancel := jobContext(cmd.Context(), cfg)
	defer cancel()

	runner, conns, err := newRunner(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize: %v", err)

		return err
	}
	defer conns.close()

	result, err := runner.Run(ctx, cfg.Job.ToneName)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Nightly mock brief failed ❌", err)

		return &reportedError{err: err}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Nightly mock brief uploaded ✅ (tone: %s)\n", result.Tone.Name)

	return nil
}

func listTones(cmd *cobra.Command, flags *runFlags) error {
	cfg, log, err := bootstrap(flags)
	if err != nil {
		return err
	}
	defer closeLogger(log)

	toneSet, err := tones.LoadDir(cfg.Job.TonesDir, log)
	if err != nil {
		return err
	}

	for _, name := range toneSet.Names() {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}

	selected := tones.Select(toneSet, cfg.Job.ToneName)
	fmt.Fprintf(cmd.OutOrStdout(), "selected: %s\n", selected.Name)

	return nil
}

func showDay(cmd *cobra.Command, flags *runFlags) error {
	cfg, log, err := bootstrap(flags)
	if err != nil {
		return err
	}
	defer closeLogger(log)

	dateKey := flags.date
	if dateKey == "" {
		dateKey = time.Now().UTC().Format(brief.DateLayout)
	}

	ctx, cancel := jobContext(cmd.Context(), cfg)
	defer cancel()

	runner, conns, err := newRunner(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer conns.close()

	status, err := runner.Status(ctx, dateKey)
	if err != nil {
		return err
	}

	meta, err := runner.Metadata(ctx, dateKey)
	if err != nil {
		return err
	}

	out := map[string]any{
		"ops":      status,
		"metadata": json.RawMessage(meta),
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")

	err = encoder.Encode(out)
	if err != nil {
		return fmt.Errorf("failed to print %s: %w", dateKey, err)
	}

	return nil
}

func serve(cmd *cobra.Command, flags *runFlags) error {
	cfg, log, err := bootstrap(flags)
	if err != nil {
		return err
	}
	defer closeLogger(log)

	if cfg.NATS.URL == "" {
		return fmt.Errorf("%w: set %s", ErrServeNeedsNATS, config.EnvNATSURL)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, conns, err := newRunner(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer conns.close()

	natsWorker, err := worker.NewNatsWorker(
		conns.nats,
		cfg.NATS.TriggerSubject,
		runner,
		cfg.Job.ToneName,
		time.Duration(cfg.Job.TimeoutSeconds)*time.Second,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	log.System("Nightly brief worker started. Listening for triggers on subject: %s", cfg.NATS.TriggerSubject)

	return natsWorker.Run(ctx)
}

func newRootCommand() *cobra.Command {
	flags := &runFlags{}

	rootCmd := &cobra.Command{
		Use:   "nightly-brief",
		Short: "Publish the nightly mock audio brief",
		Long: `nightly-brief uploads a placeholder audio brief and its metadata
to object storage and records the run in the ops log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, flags)
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.tone, "tone", "", "Tone name (overrides "+config.EnvToneName+")")
	rootCmd.PersistentFlags().StringVar(&flags.tonesDir, "tones-dir", "", "Tone directory (overrides "+config.EnvTonesDir+")")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one publication cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, flags)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "tones",
		Short: "List the loaded tones and the one a run would select",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listTones(cmd, flags)
		},
	})

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the ops-log document and metadata for a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showDay(cmd, flags)
		},
	}
	showCmd.Flags().StringVar(&flags.date, "date", "", "Day to show as YYYY-MM-DD (default today, UTC)")
	rootCmd.AddCommand(showCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the job for every trigger received on NATS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, flags)
		},
	})

	return rootCmd
}

func main() {
	err := newRootCommand().ExecuteContext(context.Background())
	if err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(os.Stderr, "nightly-brief exited with error: %v\n", err)
		}

		os.Exit(1)
	}
}
