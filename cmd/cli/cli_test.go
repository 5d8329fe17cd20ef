package cli

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/history"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{"scan", "watch", "history", "version"}

	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}

	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q not registered on root", name)
		}
	}
}

func TestGetConfigFilePath(t *testing.T) {
	original := cfgFile
	defer func() { cfgFile = original }()

	cfgFile = "/etc/netsweep/custom.yaml"
	if got := getConfigFilePath(); got != "/etc/netsweep/custom.yaml" {
		t.Errorf("getConfigFilePath() = %v, want flag value", got)
	}

	cfgFile = ""
	if got := getConfigFilePath(); got != defaultConfigFile {
		t.Errorf("getConfigFilePath() = %v, want %v", got, defaultConfigFile)
	}
}

func TestSetVersion(t *testing.T) {
	origVersion, origCommit, origBuildTime := version, commit, buildTime
	defer SetVersion(origVersion, origCommit, origBuildTime)

	SetVersion("1.2.3", "abc1234", "2026-01-02")

	got := getVersion()
	for _, part := range []string{"1.2.3", "abc1234", "2026-01-02"} {
		if !strings.Contains(got, part) {
			t.Errorf("getVersion() = %v, missing %v", got, part)
		}
	}
	if rootCmd.Version != got {
		t.Errorf("rootCmd.Version = %v, want %v", rootCmd.Version, got)
	}
}

func TestApplyScanOverrides(t *testing.T) {
	t.Run("no flags leaves config untouched", func(t *testing.T) {
		cfg := config.Default()
		applyScanOverrides(scanCmd, cfg)

		if !cfg.ARP.Enabled || !cfg.SNMP.Enabled || !cfg.Report.Enabled {
			t.Error("phases disabled without their skip flags")
		}
		if cfg.Network.CIDR != "" || cfg.Network.Interface != "" {
			t.Error("network selection changed without flags")
		}
	})

	t.Run("set flags override config", func(t *testing.T) {
		flags := scanCmd.Flags()
		mustSet := func(name, value string) {
			if err := flags.Set(name, value); err != nil {
				t.Fatalf("set flag %s: %v", name, err)
			}
		}
		mustSet("interface", "eth1")
		mustSet("cidr", "10.42.0.0/24")
		mustSet("exclude", "10.42.0.128/25")
		mustSet("skip-arp", "true")
		mustSet("skip-snmp", "true")
		mustSet("ports", "22,443")
		mustSet("output-dir", "/tmp/sweeps")
		mustSet("no-report", "true")

		cfg := config.Default()
		applyScanOverrides(scanCmd, cfg)

		if cfg.Network.Interface != "eth1" {
			t.Errorf("Interface = %v, want eth1", cfg.Network.Interface)
		}
		if cfg.Network.CIDR != "10.42.0.0/24" {
			t.Errorf("CIDR = %v, want 10.42.0.0/24", cfg.Network.CIDR)
		}
		if !reflect.DeepEqual(cfg.Network.Exclusions, []string{"10.42.0.128/25"}) {
			t.Errorf("Exclusions = %v", cfg.Network.Exclusions)
		}
		if cfg.ARP.Enabled {
			t.Error("ARP still enabled after --skip-arp")
		}
		if cfg.SNMP.Enabled {
			t.Error("SNMP still enabled after --skip-snmp")
		}
		if cfg.PortScan.Ports != "22,443" {
			t.Errorf("Ports = %v, want 22,443", cfg.PortScan.Ports)
		}
		if cfg.Report.OutputDir != "/tmp/sweeps" {
			t.Errorf("OutputDir = %v, want /tmp/sweeps", cfg.Report.OutputDir)
		}
		if cfg.Report.Enabled {
			t.Error("report still enabled after --no-report")
		}
	})
}

func TestRunRow(t *testing.T) {
	started := time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)
	run := history.Run{
		ID:          uuid.MustParse("2f6b0f0e-8f5c-4d7a-9f10-3b1c5a0e7d42"),
		StartedAt:   started,
		CompletedAt: started.Add(95 * time.Second),
		Status:      "COMPLETED",
		Network:     "192.168.1.0/24",
		DeviceCount: 12,
	}

	row := runRow(&run)
	want := []string{
		"2f6b0f0e-8f5c-4d7a-9f10-3b1c5a0e7d42",
		started.Local().Format("2006-01-02 15:04"),
		"1m35s",
		"COMPLETED",
		"192.168.1.0/24",
		"12",
		"",
	}
	if !reflect.DeepEqual(row, want) {
		t.Errorf("runRow() = %v, want %v", row, want)
	}
}

func TestRunRowTruncatesLongError(t *testing.T) {
	run := history.Run{
		ID:    uuid.New(),
		Error: strings.Repeat("x", maxErrorCell+20),
	}

	row := runRow(&run)
	got := row[len(row)-1]
	want := strings.Repeat("x", maxErrorCell) + "..."
	if got != want {
		t.Errorf("error cell = %v, want %v", got, want)
	}
}

func TestDeviceRow(t *testing.T) {
	dev := history.Device{
		IP:         "192.168.1.10",
		MAC:        "aa:bb:cc:dd:ee:10",
		Hostname:   "core-sw.lan",
		DeviceType: "NETWORK_EQUIPMENT",
		OpenPorts:  pq.Int64Array{22, 161},
		SNMPName:   "core-sw",
	}

	row := deviceRow(&dev)
	want := []string{"192.168.1.10", "aa:bb:cc:dd:ee:10", "core-sw.lan", "NETWORK_EQUIPMENT", "22, 161", "core-sw"}
	if !reflect.DeepEqual(row, want) {
		t.Errorf("deviceRow() = %v, want %v", row, want)
	}
}

func TestJoinInt64s(t *testing.T) {
	tests := []struct {
		name     string
		values   pq.Int64Array
		expected string
	}{
		{
			name:     "empty",
			values:   nil,
			expected: "",
		},
		{
			name:     "single port",
			values:   pq.Int64Array{22},
			expected: "22",
		},
		{
			name:     "multiple ports",
			values:   pq.Int64Array{22, 80, 443},
			expected: "22, 80, 443",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinInt64s(tt.values); got != tt.expected {
				t.Errorf("joinInt64s() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	initConfig()
	t.Setenv("NETSWEEP_NETWORK_CIDR", "10.42.0.0/16")
	t.Setenv("NETSWEEP_HISTORY_PASSWORD", "hunter2")

	cfg := config.Default()
	applyEnvOverrides(cfg)

	if cfg.Network.CIDR != "10.42.0.0/16" {
		t.Errorf("CIDR = %v, want env value", cfg.Network.CIDR)
	}
	if cfg.History.Password != "hunter2" {
		t.Errorf("history password not taken from environment")
	}
	if cfg.Watch.Schedule != "@hourly" {
		t.Errorf("Schedule = %v, want default @hourly", cfg.Watch.Schedule)
	}
}
