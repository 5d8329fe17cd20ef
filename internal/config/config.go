package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/history"
	"github.com/anstrom/netsweep/internal/logging"
)

// Config represents the complete scanner configuration
type Config struct {
	// Network selection
	Network NetworkConfig `yaml:"network" json:"network"`

	// ARP discovery phase
	ARP ARPConfig `yaml:"arp" json:"arp"`

	// Port scanning phase
	PortScan PortScanConfig `yaml:"portscan" json:"portscan"`

	// SNMP enrichment phase
	SNMP SNMPConfig `yaml:"snmp" json:"snmp"`

	// Device classification
	Classify ClassifyConfig `yaml:"classify" json:"classify"`

	// Reverse DNS enrichment
	Resolve ResolveConfig `yaml:"resolve" json:"resolve"`

	// Report output
	Report ReportConfig `yaml:"report" json:"report"`

	// Scan history persistence
	History history.Config `yaml:"history" json:"history"`

	// Status server (watch mode)
	Status StatusConfig `yaml:"status" json:"status"`

	// Periodic scanning
	Watch WatchConfig `yaml:"watch" json:"watch"`

	// Logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`
}

// NetworkConfig holds network selection settings
type NetworkConfig struct {
	// Interface to scan from (empty picks the first usable interface)
	Interface string `yaml:"interface" json:"interface"`

	// CIDR overrides the subnet derived from the interface address
	CIDR string `yaml:"cidr" json:"cidr"`

	// CIDR ranges removed from the target set
	Exclusions []string `yaml:"exclusions" json:"exclusions"`

	// Subnets with prefixes shorter than this are refused
	MinPrefixLen int `yaml:"min_prefix_len" json:"min_prefix_len" validate:"min=0,max=32"`
}

// ARPConfig holds ARP discovery settings
type ARPConfig struct {
	// Enable the ARP phase
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Probe strategy (auto, arping, packet, icmp)
	Strategy string `yaml:"strategy" json:"strategy" validate:"oneof=auto arping packet icmp"`

	// Timeout per probe
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Retries per unresponsive target
	Retries int `yaml:"retries" json:"retries" validate:"min=0,max=10"`

	// Number of concurrent probe workers
	Workers int `yaml:"workers" json:"workers" validate:"min=1,max=1024"`
}

// PortScanConfig holds port scanning settings
type PortScanConfig struct {
	// Scan technique (connect, syn, version, aggressive, comprehensive)
	Technique string `yaml:"technique" json:"technique" validate:"oneof=connect syn version aggressive comprehensive"`

	// Ports to scan (list and range syntax, e.g. "22,80,8000-8100")
	Ports string `yaml:"ports" json:"ports"`

	// Timing template (0 slowest to 5 fastest)
	Timing int `yaml:"timing" json:"timing" validate:"min=0,max=5"`

	// Enable OS fingerprinting (requires elevated privileges)
	DetectOS bool `yaml:"detect_os" json:"detect_os"`

	// Enable service detection
	DetectServices bool `yaml:"detect_services" json:"detect_services"`

	// Additional flags passed to the scan tool
	ExtraArgs []string `yaml:"extra_args" json:"extra_args"`

	// Timeout for the whole phase
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Credential is one SNMP protocol version and community string pair.
// Pairs are tried in configured order and the first success wins.
type Credential struct {
	// Protocol version (1 or 2c)
	Version string `yaml:"version" json:"version" validate:"oneof=1 2c"`

	// Community string
	Community string `yaml:"community" json:"community" validate:"required"`
}

// SNMPConfig holds SNMP enrichment settings
type SNMPConfig struct {
	// Enable the SNMP phase
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Port that marks a scanned host as an SNMP candidate
	Port int `yaml:"port" json:"port" validate:"min=1,max=65535"`

	// Credentials tried in order against each candidate
	Credentials []Credential `yaml:"credentials" json:"credentials" validate:"omitempty,dive"`

	// Timeout per request
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Retries per request
	Retries int `yaml:"retries" json:"retries" validate:"min=0,max=5"`

	// OIDs queried on authenticated devices
	OIDs []string `yaml:"oids" json:"oids"`

	// Subtrees walked on authenticated devices
	WalkOIDs []string `yaml:"walk_oids" json:"walk_oids"`

	// Maximum OIDs per request
	MaxPerRequest int `yaml:"max_per_request" json:"max_per_request" validate:"min=1,max=60"`

	// Maximum values collected per subtree walk
	MaxWalkValues int `yaml:"max_walk_values" json:"max_walk_values" validate:"min=1"`

	// Number of concurrent device workers
	Workers int `yaml:"workers" json:"workers" validate:"min=1,max=1024"`
}

// ClassifyConfig holds device classification settings
type ClassifyConfig struct {
	// Substrings matched against OS fingerprints for Windows hosts
	WindowsSignatures []string `yaml:"windows_signatures" json:"windows_signatures"`

	// Substrings matched against OS fingerprints for Linux hosts
	LinuxSignatures []string `yaml:"linux_signatures" json:"linux_signatures"`

	// Open ports that mark a device as IoT
	IoTPorts []int `yaml:"iot_ports" json:"iot_ports"`

	// Open ports that mark a device as network equipment
	ManagementPorts []int `yaml:"management_ports" json:"management_ports"`
}

// ResolveConfig holds reverse DNS settings
type ResolveConfig struct {
	// Enable hostname resolution for merged devices
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Nameserver for PTR queries (empty uses the system resolver)
	Nameserver string `yaml:"nameserver" json:"nameserver"`

	// Timeout per query
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Number of concurrent query workers
	Workers int `yaml:"workers" json:"workers" validate:"min=1,max=1024"`
}

// ReportConfig holds report output settings
type ReportConfig struct {
	// Enable JSON report writing
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Directory receiving report files
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}

// StatusConfig holds status server settings
type StatusConfig struct {
	// Enable the status server
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Listen port
	Port int `yaml:"port" json:"port" validate:"min=0,max=65535"`

	// CORS settings
	CORS CORSConfig `yaml:"cors" json:"cors"`
}

// CORSConfig holds CORS settings for the status server
type CORSConfig struct {
	// Enable CORS
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Allowed origins
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// WatchConfig holds periodic scanning settings
type WatchConfig struct {
	// Cron expression for periodic scans
	Schedule string `yaml:"schedule" json:"schedule"`

	// Run one scan immediately when watch mode starts
	RunOnStart bool `yaml:"run_on_start" json:"run_on_start"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			Interface:    "",
			CIDR:         "",
			Exclusions:   nil,
			MinPrefixLen: 16,
		},
		ARP: ARPConfig{
			Enabled:  true,
			Strategy: "auto",
			Timeout:  2 * time.Second,
			Retries:  2,
			Workers:  32,
		},
		PortScan: PortScanConfig{
			Technique:      "connect",
			Ports:          "22,23,80,135,139,161,443,445,554,1883,3389,5683,8080,8443,8554,9999",
			Timing:         4,
			DetectOS:       false,
			DetectServices: true,
			ExtraArgs:      nil,
			Timeout:        10 * time.Minute,
		},
		SNMP: SNMPConfig{
			Enabled: true,
			Port:    161,
			Credentials: []Credential{
				{Version: "2c", Community: "public"},
				{Version: "1", Community: "public"},
			},
			Timeout: 3 * time.Second,
			Retries: 1,
			OIDs: []string{
				".1.3.6.1.2.1.1.1.0", // sysDescr
				".1.3.6.1.2.1.1.2.0", // sysObjectID
				".1.3.6.1.2.1.1.3.0", // sysUpTime
				".1.3.6.1.2.1.1.4.0", // sysContact
				".1.3.6.1.2.1.1.5.0", // sysName
				".1.3.6.1.2.1.1.6.0", // sysLocation
			},
			WalkOIDs:      []string{".1.3.6.1.2.1.2.2.1.2"}, // ifDescr
			MaxPerRequest: 10,
			MaxWalkValues: 100,
			Workers:       16,
		},
		Classify: ClassifyConfig{
			WindowsSignatures: []string{"windows", "microsoft"},
			LinuxSignatures:   []string{"linux", "unix"},
			IoTPorts:          []int{554, 1883, 5683, 8554, 9999},
			ManagementPorts:   []int{22, 23, 161, 443, 8443},
		},
		Resolve: ResolveConfig{
			Enabled:    true,
			Nameserver: "",
			Timeout:    2 * time.Second,
			Workers:    16,
		},
		Report: ReportConfig{
			Enabled:   true,
			OutputDir: "reports",
		},
		History: history.DefaultConfig(),
		Status: StatusConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1",
			Port:       8090,
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
			},
		},
		Watch: WatchConfig{
			Schedule:   "@hourly",
			RunOnStart: true,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Start with defaults
	config := Default()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil // Return defaults if no config file
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "Failed to read config file", err)
	}

	// Parse based on file extension (JSON is a YAML subset)
	ext := filepath.Ext(path)
	switch ext {
	case ".yaml", ".yml", ".json":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.WrapConfigError(errors.CodeConfiguration, "Failed to parse config file", err)
		}
	default:
		return nil, errors.ErrConfigInvalid("config file extension", ext)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "Failed to create config directory", err)
	}

	// Marshal to YAML
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "Failed to marshal config", err)
	}

	// Write file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "Failed to write config file", err)
	}

	return nil
}

var validate = validator.New()

// Validate validates the configuration
func (c *Config) Validate() error {
	// Structural validation via struct tags
	if err := validate.Struct(c); err != nil {
		return errors.WrapConfigError(errors.CodeValidation, "Configuration failed validation", err)
	}

	// Validate network selection
	if c.Network.CIDR != "" {
		if _, _, err := net.ParseCIDR(c.Network.CIDR); err != nil {
			return errors.ErrConfigInvalid("network.cidr", c.Network.CIDR)
		}
	}
	for _, excl := range c.Network.Exclusions {
		if _, _, err := net.ParseCIDR(excl); err != nil {
			return errors.ErrConfigInvalid("network.exclusions", excl)
		}
	}

	// Validate phase timing
	if c.ARP.Enabled && c.ARP.Timeout <= 0 {
		return errors.ErrConfigInvalid("arp.timeout", c.ARP.Timeout.String())
	}
	if c.PortScan.Timeout <= 0 {
		return errors.ErrConfigInvalid("portscan.timeout", c.PortScan.Timeout.String())
	}

	// Validate the port selector before it reaches the scan tool
	if err := ValidatePorts(c.PortScan.Ports); err != nil {
		return err
	}

	// Validate SNMP settings
	if c.SNMP.Enabled {
		if len(c.SNMP.Credentials) == 0 {
			return errors.ErrConfigMissing("snmp.credentials")
		}
		if c.SNMP.Timeout <= 0 {
			return errors.ErrConfigInvalid("snmp.timeout", c.SNMP.Timeout.String())
		}
	}

	// Validate status server settings
	if c.Status.Enabled {
		if c.Status.ListenAddr == "" {
			return errors.ErrConfigMissing("status.listen_addr")
		}
		if c.Status.Port <= 0 {
			return errors.ErrConfigInvalid("status.port", c.Status.Port)
		}
	}

	// Validate history settings when persistence is on
	if c.History.Enabled {
		if c.History.Host == "" {
			return errors.ErrConfigMissing("history.host")
		}
		if c.History.Database == "" {
			return errors.ErrConfigMissing("history.database")
		}
		if c.History.Username == "" {
			return errors.ErrConfigMissing("history.username")
		}
	}

	// Validate report settings
	if c.Report.Enabled && c.Report.OutputDir == "" {
		return errors.ErrConfigMissing("report.output_dir")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[string(c.Logging.Level)] {
		return errors.ErrConfigInvalid("logging.level", string(c.Logging.Level))
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[string(c.Logging.Format)] {
		return errors.ErrConfigInvalid("logging.format", string(c.Logging.Format))
	}

	return nil
}

// ValidatePorts checks a port selector for valid list and range syntax
// with every port between 1 and 65535.
func ValidatePorts(spec string) error {
	if spec == "" {
		return errors.ErrConfigMissing("portscan.ports")
	}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return errors.ErrConfigInvalid("portscan.ports", spec)
		}
		bounds := strings.SplitN(part, "-", 2)
		lo, err := strconv.Atoi(bounds[0])
		if err != nil || lo < 1 || lo > 65535 {
			return errors.ErrConfigInvalid("portscan.ports", part)
		}
		if len(bounds) == 2 {
			hi, err := strconv.Atoi(bounds[1])
			if err != nil || hi < lo || hi > 65535 {
				return errors.ErrConfigInvalid("portscan.ports", part)
			}
		}
	}
	return nil
}

// GetStatusAddress returns the full status server address
func (c *Config) GetStatusAddress() string {
	return fmt.Sprintf("%s:%d", c.Status.ListenAddr, c.Status.Port)
}

// IsStatusEnabled returns true if the status server is enabled
func (c *Config) IsStatusEnabled() bool {
	return c.Status.Enabled
}

// IsHistoryEnabled returns true if scan history persistence is enabled
func (c *Config) IsHistoryEnabled() bool {
	return c.History.Enabled
}
