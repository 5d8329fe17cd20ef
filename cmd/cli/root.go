// Package cli implements the netsweep command-line interface. It wires
// the Cobra command tree with commands for one-shot scans, periodic
// watch mode, scan history and version information.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/logging"
)

const (
	// Default configuration constants.
	defaultConfigFile   = "netsweep.yaml" // config file looked up in the working directory
	defaultPostgresPort = 5432            // PostgreSQL default port
)

var (
	cfgFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "netsweep",
	Short: "LAN discovery scanner",
	Long: `Netsweep discovers devices on the local network. A run sweeps the
subnet with ARP probes, port-scans the responders, enriches SNMP-capable
devices and classifies everything it found into a single report. Watch
mode repeats the run on a cron schedule and can expose a status endpoint
and persist run history to PostgreSQL.`,
	Version: getVersion(),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./netsweep.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("netsweep")
	}

	// Read in environment variables that match
	viper.AutomaticEnv()
	viper.SetEnvPrefix("NETSWEEP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults for common configuration
	setConfigDefaults()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}

	// Initialize structured logging after config is loaded
	initLogging()
}

// setConfigDefaults sets default values for configuration.
func setConfigDefaults() {
	// History store configuration
	viper.SetDefault("history.host", "localhost")
	viper.SetDefault("history.port", defaultPostgresPort)
	viper.SetDefault("history.ssl_mode", "disable")

	// Watch mode configuration
	viper.SetDefault("watch.schedule", "@hourly")
	viper.SetDefault("watch.run_on_start", true)

	// Report configuration
	viper.SetDefault("report.output_dir", "reports")

	// Logging configuration
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stderr")
}

// getConfigFilePath returns the config file the commands should load:
// the --config flag if given, otherwise whatever file viper located,
// otherwise the default name in the working directory.
func getConfigFilePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return defaultConfigFile
}

// loadConfig loads the configuration file and folds NETSWEEP_-prefixed
// environment variables over it. Flags are applied per command on top
// of this, so precedence ends up flags > env > file > defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigFilePath())
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides copies the environment-overridable knobs from viper
// into the loaded configuration. Only scalar settings an operator would
// export are covered, credentials for the history store in particular.
func applyEnvOverrides(cfg *config.Config) {
	if v := viper.GetString("network.interface"); v != "" {
		cfg.Network.Interface = v
	}
	if v := viper.GetString("network.cidr"); v != "" {
		cfg.Network.CIDR = v
	}
	if v := viper.GetString("portscan.ports"); v != "" {
		cfg.PortScan.Ports = v
	}
	if v := viper.GetString("history.host"); v != "" {
		cfg.History.Host = v
	}
	if v := viper.GetInt("history.port"); v > 0 {
		cfg.History.Port = v
	}
	if v := viper.GetString("history.database"); v != "" {
		cfg.History.Database = v
	}
	if v := viper.GetString("history.username"); v != "" {
		cfg.History.Username = v
	}
	if v := viper.GetString("history.password"); v != "" {
		cfg.History.Password = v
	}
	if v := viper.GetString("watch.schedule"); v != "" {
		cfg.Watch.Schedule = v
	}
	if v := viper.GetString("report.output_dir"); v != "" {
		cfg.Report.OutputDir = v
	}
	if v := viper.GetString("logging.level"); v != "" {
		cfg.Logging.Level = logging.LogLevel(v)
	}
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// initLogging initializes structured logging based on configuration.
func initLogging() {
	// Try to load full config for logging settings
	cfg, err := loadConfig()
	if err != nil {
		// If config loading fails, use default logging
		logger := logging.NewDefault()
		logging.SetDefault(logger)
		return
	}

	logConfig := cfg.Logging
	logConfig.AddSource = cfg.Logging.Level == logging.LevelDebug

	// Create logger
	logger, err := logging.New(logConfig)
	if err != nil {
		// Fall back to default if creation fails
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}

	// Set as default logger
	logging.SetDefault(logger)

	// Log initialization if verbose
	if verbose {
		logging.Info("Structured logging initialized", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	}
}
