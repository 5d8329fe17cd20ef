package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/netsweep/internal/history"
)

const (
	defaultHistoryLimit = 20 // runs listed without --limit
	maxErrorCell        = 40 // characters of run error shown in the table
)

var (
	historyLimit int
	historyJSON  bool
)

// historyCmd represents the history command.
var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show persisted scan runs",
	Long: `List recent scan runs from the history store, or show the devices
recorded for one run. Requires history persistence to be enabled in the
configuration.`,
	Example: `  netsweep history
  netsweep history --limit 50
  netsweep history --json
  netsweep history 2f6b0f0e-8f5c-4d7a-9f10-3b1c5a0e7d42`,
	Args: cobra.MaximumNArgs(1),
	Run:  runHistoryCmd,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", defaultHistoryLimit, "Maximum number of runs to list")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON instead of a table")
}

func runHistoryCmd(_ *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.History.Enabled {
		fmt.Fprintf(os.Stderr, "Error: history persistence is disabled, enable it under 'history' in the config\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	store, err := history.Connect(ctx, &cfg.History)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to history store: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close history store: %v\n", closeErr)
		}
	}()

	if len(args) == 1 {
		showRunDevices(ctx, store, args[0])
		return
	}
	listRuns(ctx, store)
}

func listRuns(ctx context.Context, store *history.Store) {
	runs, err := store.RecentRuns(ctx, historyLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing runs: %v\n", err)
		os.Exit(1)
	}

	if historyJSON {
		displayRunsJSON(runs)
		return
	}
	if len(runs) == 0 {
		fmt.Println("No scan runs recorded yet.")
		return
	}
	displayRunsTable(runs)
}

func showRunDevices(ctx context.Context, store *history.Store, id string) {
	runID, err := uuid.Parse(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid run id %q, use the full id shown by 'netsweep history'\n", id)
		os.Exit(1)
	}

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading run: %v\n", err)
		os.Exit(1)
	}
	devices, err := store.RunDevices(ctx, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading run devices: %v\n", err)
		os.Exit(1)
	}

	if historyJSON {
		displayRunJSON(run, devices)
		return
	}

	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("  Network:  %s\n", run.Network)
	fmt.Printf("  Status:   %s\n", run.Status)
	fmt.Printf("  Started:  %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Duration: %s\n", run.Duration().Round(time.Second))
	fmt.Printf("  Targets:  %d\n", run.TargetCount)
	if run.Error != "" {
		fmt.Printf("  Error:    %s\n", run.Error)
	}
	fmt.Println()

	if len(devices) == 0 {
		fmt.Println("No devices recorded for this run.")
		return
	}
	displayDevicesTable(devices)
}

// displayRunsTable displays runs in a table format
func displayRunsTable(runs []history.Run) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Run ID", "Started", "Duration", "Status", "Network", "Devices", "Error")

	for i := range runs {
		_ = table.Append(runRow(&runs[i]))
	}

	_ = table.Render()
}

// displayDevicesTable displays one run's devices in a table format
func displayDevicesTable(devices []history.Device) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("IP", "MAC", "Hostname", "Type", "Open Ports", "SNMP Name")

	for i := range devices {
		_ = table.Append(deviceRow(&devices[i]))
	}

	_ = table.Render()
}

// runRow formats one run as a table row.
func runRow(run *history.Run) []string {
	errText := run.Error
	if len(errText) > maxErrorCell {
		errText = errText[:maxErrorCell] + "..."
	}

	return []string{
		run.ID.String(),
		run.StartedAt.Local().Format("2006-01-02 15:04"),
		run.Duration().Round(time.Second).String(),
		run.Status,
		run.Network,
		strconv.Itoa(run.DeviceCount),
		errText,
	}
}

// deviceRow formats one device as a table row.
func deviceRow(dev *history.Device) []string {
	return []string{
		dev.IP,
		dev.MAC,
		dev.Hostname,
		dev.DeviceType,
		joinInt64s(dev.OpenPorts),
		dev.SNMPName,
	}
}

// joinInt64s renders a port array as "22, 80, 443".
func joinInt64s(values pq.Int64Array) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ", ")
}

// displayRunsJSON displays runs in JSON format
func displayRunsJSON(runs []history.Run) {
	output := struct {
		Runs  []history.Run `json:"runs"`
		Count int           `json:"count"`
	}{
		Runs:  runs,
		Count: len(runs),
	}

	jsonData, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(jsonData))
}

// displayRunJSON displays one run and its devices in JSON format
func displayRunJSON(run *history.Run, devices []history.Device) {
	output := struct {
		Run     *history.Run     `json:"run"`
		Devices []history.Device `json:"devices"`
	}{
		Run:     run,
		Devices: devices,
	}

	jsonData, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(jsonData))
}
