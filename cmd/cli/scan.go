package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/history"
	"github.com/anstrom/netsweep/internal/pipeline"
	"github.com/anstrom/netsweep/internal/report"
)

const (
	// storeTimeout bounds history store connection and writes after a
	// one-shot scan.
	storeTimeout = 30 * time.Second
)

var (
	scanInterface string
	scanCIDR      string
	scanExclude   []string
	scanSkipArp   bool
	scanSkipSnmp  bool
	scanPorts     string
	scanOutputDir string
	scanNoReport  bool
)

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one discovery scan of the local network",
	Long: `Run a single discovery scan: sweep the subnet with ARP probes,
port-scan the hosts that answered, query SNMP on candidates and classify
every device found.

Without flags the scan uses the subnet of the first usable interface and
the settings from the config file. Flags override individual settings
for this run only. Interrupting the scan (Ctrl+C) stops the active phase
and still reports whatever completed.`,
	Example: `  netsweep scan
  netsweep scan --cidr 192.168.1.0/24
  netsweep scan --interface eth0 --exclude 192.168.1.128/25
  netsweep scan --skip-snmp --ports "22,80,443,8080"
  netsweep scan --no-report`,
	Run: runScanCmd,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanInterface, "interface", "", "Network interface to scan from (default: first usable)")
	scanCmd.Flags().StringVar(&scanCIDR, "cidr", "", "Subnet to scan instead of the interface subnet (e.g. 192.168.1.0/24)")
	scanCmd.Flags().StringSliceVar(&scanExclude, "exclude", nil, "CIDR ranges removed from the target set (repeatable)")
	scanCmd.Flags().BoolVar(&scanSkipArp, "skip-arp", false, "Skip the ARP sweep and port-scan every target")
	scanCmd.Flags().BoolVar(&scanSkipSnmp, "skip-snmp", false, "Skip SNMP enrichment")
	scanCmd.Flags().StringVar(&scanPorts, "ports", "", "Ports to scan (e.g. '22,80,8000-8100')")
	scanCmd.Flags().StringVar(&scanOutputDir, "output-dir", "", "Directory receiving the JSON report")
	scanCmd.Flags().BoolVar(&scanNoReport, "no-report", false, "Skip writing the JSON report file")
}

func runScanCmd(cmd *cobra.Command, _ []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	applyScanOverrides(cmd, cfg)

	// Re-validate after flag overrides so a bad --cidr or --ports fails
	// here instead of mid-run.
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived %v, finishing with whatever completed...\n", sig)
		cancel()
	}()

	if verbose {
		fmt.Printf("Scanning with technique %s, ports %s\n", cfg.PortScan.Technique, cfg.PortScan.Ports)
	}

	result, err := pipeline.New(cfg).ExecuteFullScan(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	report.RenderSummary(os.Stdout, result)

	if cfg.Report.Enabled {
		path, err := report.NewWriter(cfg.Report).Write(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nReport written to %s\n", path)
	}

	if cfg.History.Enabled {
		saveRunHistory(result, &cfg.History)
	}
}

// applyScanOverrides folds the scan command's flags into the loaded
// configuration. Only flags the user actually set override the file.
func applyScanOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("interface") {
		cfg.Network.Interface = scanInterface
	}
	if flags.Changed("cidr") {
		cfg.Network.CIDR = scanCIDR
	}
	if flags.Changed("exclude") {
		cfg.Network.Exclusions = scanExclude
	}
	if scanSkipArp {
		cfg.ARP.Enabled = false
	}
	if scanSkipSnmp {
		cfg.SNMP.Enabled = false
	}
	if flags.Changed("ports") {
		cfg.PortScan.Ports = scanPorts
	}
	if flags.Changed("output-dir") {
		cfg.Report.OutputDir = scanOutputDir
	}
	if scanNoReport {
		cfg.Report.Enabled = false
	}
}

// saveRunHistory persists a finished run to the history store. Store
// problems degrade to a warning, the scan itself already succeeded.
func saveRunHistory(result *pipeline.Result, cfg *history.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	store, err := history.Connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: history store unavailable: %v\n", err)
		return
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close history store: %v\n", closeErr)
		}
	}()

	if err := store.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: history schema setup failed: %v\n", err)
		return
	}

	run, devices, err := result.HistoryRows()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not convert run for persistence: %v\n", err)
		return
	}
	if err := store.SaveRun(ctx, run, devices); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to persist run: %v\n", err)
		return
	}
	if verbose {
		fmt.Printf("Run %s saved to history store\n", result.RunID)
	}
}
