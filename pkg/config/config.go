package config

import "time"

// Optional boolean fields are pointers so an explicit `false` in user
// YAML survives the defaults merge: a value-typed false is
// indistinguishable from an absent key and would be dropped.

// BoolPtr builds a *bool for config literals.
func BoolPtr(b bool) *bool { return &b }

// BoolVal reads an optional config boolean, nil meaning false.
func BoolVal(b *bool) bool { return b != nil && *b }

// Config is the fully resolved runtime configuration. It is built once by
// Initialize and passed explicitly to the components that need it.
type Config struct {
	configDir string

	Server      *ServerConfig      `yaml:"server"`
	Signals     *SignalsConfig     `yaml:"signals"`
	Bus         *BusConfig         `yaml:"bus"`
	Hub         *HubConfig         `yaml:"hub"`
	Permissions *PermissionsConfig `yaml:"permissions"`
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BusConfig controls the event bus.
type BusConfig struct {
	// QueueSize is the per-subscriber bounded queue length.
	QueueSize int `yaml:"queue_size"`
}

// HubConfig controls the WebSocket hub.
type HubConfig struct {
	// WriteTimeout bounds a single frame write to one client.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PermissionsConfig is the startup state of the permission gates. The
// runtime-mutable view lives in Permissions.
type PermissionsConfig struct {
	Notifications  *bool `yaml:"notifications"`
	Clipboard      *bool `yaml:"clipboard"`
	Shell          *bool `yaml:"shell"`
	FileOperations *bool `yaml:"file_operations"`
	ProcessControl *bool `yaml:"process_control"`
	NetworkControl *bool `yaml:"network_control"`
}

// SignalsConfig groups per-source settings.
type SignalsConfig struct {
	CPU        *CPUSignalConfig        `yaml:"cpu"`
	Battery    *BatterySignalConfig    `yaml:"battery"`
	Network    *NetworkSignalConfig    `yaml:"network"`
	Window     *WindowSignalConfig     `yaml:"window_focus"`
	Filesystem *FilesystemSignalConfig `yaml:"filesystem"`
	Clipboard  *ClipboardSignalConfig  `yaml:"clipboard"`
}

// CPUSignalConfig configures the cpu/ram monitor.
type CPUSignalConfig struct {
	Enabled       *bool         `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	ChangeStep    float64       `yaml:"change_step"`
	CPULow        float64       `yaml:"cpu_low"`
	CPUHigh       float64       `yaml:"cpu_high"`
	MemoryLow     float64       `yaml:"memory_low"`
	MemoryHigh    float64       `yaml:"memory_high"`
	IncludePerCPU bool          `yaml:"include_per_cpu"`
}

// BatterySignalConfig configures the battery monitor.
type BatterySignalConfig struct {
	Enabled    *bool         `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	ChangeStep float64       `yaml:"change_step"`
	Low        float64       `yaml:"low"`
	High       float64       `yaml:"high"`
	SysfsPath  string        `yaml:"sysfs_path"`
}

// NetworkSignalConfig configures the network monitor.
type NetworkSignalConfig struct {
	Enabled  *bool         `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// WindowSignalConfig configures the focused-window monitor.
type WindowSignalConfig struct {
	Enabled  *bool         `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// FilesystemSignalConfig configures the filesystem watcher.
type FilesystemSignalConfig struct {
	Enabled        *bool         `yaml:"enabled"`
	Paths          []string      `yaml:"paths"`
	Recursive      *bool         `yaml:"recursive"`
	Patterns       []string      `yaml:"patterns"`
	IgnorePatterns []string      `yaml:"ignore_patterns"`
	Interval       time.Duration `yaml:"interval"`
	QueueSize      int           `yaml:"queue_size"`
}

// ClipboardSignalConfig configures the clipboard monitor. The source is
// only started when the clipboard permission is granted.
type ClipboardSignalConfig struct {
	Enabled  *bool         `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	MaxBytes int           `yaml:"max_bytes"`
}
