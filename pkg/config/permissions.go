package config

import (
	"fmt"
	"sync"
)

// Permission tags used by actions and sources.
const (
	PermNotifications  = "notifications"
	PermClipboard      = "clipboard"
	PermShell          = "shell"
	PermFileOperations = "file_operations"
	PermProcessControl = "process_control"
	PermNetworkControl = "network_control"
)

// Permissions is the runtime-mutable permission store. Actions consult it
// on every invocation, and the system API can flip grants while running.
type Permissions struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewPermissions seeds the store from startup configuration.
func NewPermissions(cfg *PermissionsConfig) *Permissions {
	p := &Permissions{flags: map[string]bool{
		PermNotifications:  false,
		PermClipboard:      false,
		PermShell:          false,
		PermFileOperations: false,
		PermProcessControl: false,
		PermNetworkControl: false,
	}}
	if cfg != nil {
		p.flags[PermNotifications] = BoolVal(cfg.Notifications)
		p.flags[PermClipboard] = BoolVal(cfg.Clipboard)
		p.flags[PermShell] = BoolVal(cfg.Shell)
		p.flags[PermFileOperations] = BoolVal(cfg.FileOperations)
		p.flags[PermProcessControl] = BoolVal(cfg.ProcessControl)
		p.flags[PermNetworkControl] = BoolVal(cfg.NetworkControl)
	}
	return p
}

// Granted reports whether the named permission is currently on. Unknown
// permission tags are never granted.
func (p *Permissions) Granted(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.flags[name]
}

// Set flips a known permission at runtime.
func (p *Permissions) Set(name string, granted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.flags[name]; !ok {
		return fmt.Errorf("unknown permission: %s", name)
	}
	p.flags[name] = granted
	return nil
}

// Snapshot returns a copy of the current grants.
func (p *Permissions) Snapshot() map[string]bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]bool, len(p.flags))
	for k, v := range p.flags {
		out[k] = v
	}
	return out
}
