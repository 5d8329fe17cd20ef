package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anstrom/netsweep/internal/history"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/pipeline"
	"github.com/anstrom/netsweep/internal/report"
	"github.com/anstrom/netsweep/internal/scheduler"
	"github.com/anstrom/netsweep/internal/status"
)

var (
	watchSchedule   string
	watchNoFirstRun bool
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scan the network periodically",
	Long: `Run discovery scans on a cron schedule until interrupted. Each
completed run is reported like a one-shot scan; when the history store is
configured the run is persisted as well, and the status server (if
enabled) exposes health, scheduler state and metrics over HTTP.

A scan still in flight when the next tick fires is never overlapped, the
tick is skipped instead.`,
	Example: `  netsweep watch
  netsweep watch --schedule "@hourly"
  netsweep watch --schedule "*/15 * * * *" --no-first-run`,
	Run: runWatchCmd,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "Cron expression for scan scheduling (e.g. '@hourly', '*/15 * * * *')")
	watchCmd.Flags().BoolVar(&watchNoFirstRun, "no-first-run", false, "Wait for the first tick instead of scanning immediately")
}

func runWatchCmd(cmd *cobra.Command, _ []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if cmd.Flags().Changed("schedule") {
		cfg.Watch.Schedule = watchSchedule
	}
	if watchNoFirstRun {
		cfg.Watch.RunOnStart = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The store outlives individual runs, so it is connected once here
	// and shared by the result callback.
	var store *history.Store
	if cfg.History.Enabled {
		store = connectWatchStore(ctx, &cfg.History)
		if store != nil {
			defer func() {
				if closeErr := store.Close(); closeErr != nil {
					logging.ErrorStore("Failed to close history store", closeErr)
				}
			}()
		}
	}

	var writer *report.Writer
	if cfg.Report.Enabled {
		writer = report.NewWriter(cfg.Report)
	}

	onResult := func(result *pipeline.Result) {
		handleWatchResult(result, writer, store)
	}

	sched, err := scheduler.New(cfg.Watch, pipeline.New(cfg), onResult)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.Status.Enabled {
		server := status.New(cfg.Status, sched, getVersion())
		go func() {
			if serveErr := server.Start(ctx); serveErr != nil {
				logging.Error("Status server stopped", "error", serveErr)
			}
		}()
		fmt.Printf("Status server listening on http://%s\n", server.Address())
	}

	if err := sched.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Watch mode running (schedule %q), press Ctrl+C to stop\n", cfg.Watch.Schedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	fmt.Printf("\nReceived %v, shutting down...\n", sig)

	// Stop drains an in-flight run before returning, so the last result
	// still reaches the callback. The status server goes down last.
	sched.Stop()
	cancel()
}

// connectWatchStore connects the history store for watch mode. A store
// that cannot be reached degrades watch mode to report-only.
func connectWatchStore(ctx context.Context, cfg *history.Config) *history.Store {
	store, err := history.Connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: history store unavailable, runs will not be persisted: %v\n", err)
		return nil
	}
	if err := store.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: history schema setup failed, runs will not be persisted: %v\n", err)
		if closeErr := store.Close(); closeErr != nil {
			logging.ErrorStore("Failed to close history store", closeErr)
		}
		return nil
	}
	return store
}

// handleWatchResult delivers one completed run to the configured sinks.
// Runs from watch mode are long-lived service output, failures here are
// logged rather than printed.
func handleWatchResult(result *pipeline.Result, writer *report.Writer, store *history.Store) {
	if writer != nil {
		if path, err := writer.Write(result); err != nil {
			logging.Error("Failed to write report", "error", err, "run_id", result.RunID)
		} else {
			logging.Info("Report written", "path", path, "run_id", result.RunID)
		}
	}

	if store == nil {
		return
	}
	run, devices, err := result.HistoryRows()
	if err != nil {
		logging.ErrorStore("Failed to convert run for persistence", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := store.SaveRun(ctx, run, devices); err != nil {
		logging.ErrorStore("Failed to persist run", err)
		return
	}
	logging.InfoStore("Run persisted", "run_id", result.RunID, "devices", len(devices))
}
