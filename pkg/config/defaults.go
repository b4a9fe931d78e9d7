package config

import "time"

// DefaultConfig returns the built-in configuration. User YAML values are
// merged on top of these.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			Host: "127.0.0.1",
			Port: 8741,
		},
		Bus: &BusConfig{
			QueueSize: 256,
		},
		Hub: &HubConfig{
			WriteTimeout: 5 * time.Second,
		},
		Permissions: &PermissionsConfig{
			Notifications: BoolPtr(true),
		},
		Signals: &SignalsConfig{
			CPU: &CPUSignalConfig{
				Enabled:    BoolPtr(true),
				Interval:   2 * time.Second,
				ChangeStep: 5.0,
				CPULow:     20.0,
				CPUHigh:    80.0,
				MemoryLow:  30.0,
				MemoryHigh: 85.0,
			},
			Battery: &BatterySignalConfig{
				Enabled:    BoolPtr(true),
				Interval:   30 * time.Second,
				ChangeStep: 5.0,
				Low:        20.0,
				High:       90.0,
				SysfsPath:  "/sys/class/power_supply",
			},
			Network: &NetworkSignalConfig{
				Enabled:  BoolPtr(true),
				Interval: 5 * time.Second,
			},
			Window: &WindowSignalConfig{
				Enabled:  BoolPtr(true),
				Interval: 500 * time.Millisecond,
			},
			Filesystem: &FilesystemSignalConfig{
				Enabled:        BoolPtr(false),
				Recursive:      BoolPtr(true),
				Patterns:       []string{"*"},
				IgnorePatterns: []string{"*.tmp", "*.swp", "~*", ".git"},
				Interval:       100 * time.Millisecond,
				QueueSize:      1024,
			},
			Clipboard: &ClipboardSignalConfig{
				Enabled:  BoolPtr(false),
				Interval: 1 * time.Second,
				MaxBytes: 64 * 1024,
			},
		},
	}
}
