package config

import "fmt"

// Validate checks the resolved configuration for values that would make a
// component misbehave at runtime.
func Validate(cfg *Config) error {
	if cfg.Server == nil {
		return fmt.Errorf("server configuration is nil")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Bus == nil || cfg.Bus.QueueSize < 1 {
		return fmt.Errorf("bus queue_size must be at least 1")
	}
	if cfg.Hub == nil || cfg.Hub.WriteTimeout <= 0 {
		return fmt.Errorf("hub write_timeout must be positive")
	}
	if cfg.Signals == nil {
		return fmt.Errorf("signals configuration is nil")
	}
	if err := validateSignals(cfg.Signals); err != nil {
		return err
	}
	return nil
}

func validateSignals(s *SignalsConfig) error {
	if s.CPU != nil && BoolVal(s.CPU.Enabled) {
		if s.CPU.Interval <= 0 {
			return fmt.Errorf("cpu interval must be positive")
		}
		if err := validateBand("cpu", s.CPU.CPULow, s.CPU.CPUHigh); err != nil {
			return err
		}
		if err := validateBand("memory", s.CPU.MemoryLow, s.CPU.MemoryHigh); err != nil {
			return err
		}
	}
	if s.Battery != nil && BoolVal(s.Battery.Enabled) {
		if s.Battery.Interval <= 0 {
			return fmt.Errorf("battery interval must be positive")
		}
		if err := validateBand("battery", s.Battery.Low, s.Battery.High); err != nil {
			return err
		}
	}
	if s.Network != nil && BoolVal(s.Network.Enabled) && s.Network.Interval <= 0 {
		return fmt.Errorf("network interval must be positive")
	}
	if s.Window != nil && BoolVal(s.Window.Enabled) && s.Window.Interval <= 0 {
		return fmt.Errorf("window_focus interval must be positive")
	}
	if s.Filesystem != nil && BoolVal(s.Filesystem.Enabled) {
		if len(s.Filesystem.Paths) == 0 {
			return fmt.Errorf("filesystem watcher enabled without paths")
		}
		if s.Filesystem.QueueSize < 1 {
			return fmt.Errorf("filesystem queue_size must be at least 1")
		}
	}
	if s.Clipboard != nil && BoolVal(s.Clipboard.Enabled) && s.Clipboard.Interval <= 0 {
		return fmt.Errorf("clipboard interval must be positive")
	}
	return nil
}

func validateBand(name string, low, high float64) error {
	if low < 0 || high > 100 || low >= high {
		return fmt.Errorf("%s thresholds invalid: low=%v high=%v (need 0 <= low < high <= 100)", name, low, high)
	}
	return nil
}
