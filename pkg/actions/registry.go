package actions

import (
	"fmt"

	"github.com/signaldock/signaldock/pkg/config"
)

// Registry is the closed set of action variants. Unknown types fail at
// pipeline load, never at event time.
type Registry struct {
	factories map[string]func() Action
	order     []string
}

// NewRegistry builds the registry with every built-in action.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]func() Action)}
	r.Register("notification", func() Action { return NewNotificationAction(nil) })
	r.Register("shell", func() Action { return NewShellAction() })
	r.Register("file_operation", func() Action { return NewFileOperationAction() })
	r.Register("process_control", func() Action { return NewProcessControlAction() })
	r.Register("network_control", func() Action { return NewNetworkControlAction() })
	return r
}

// Register adds or replaces an action factory.
func (r *Registry) Register(name string, factory func() Action) {
	if _, exists := r.factories[name]; !exists {
		r.order = append(r.order, name)
	}
	r.factories[name] = factory
}

// Known reports whether an action type exists.
func (r *Registry) Known(actionType string) bool {
	_, ok := r.factories[actionType]
	return ok
}

// New materializes an action instance by type.
func (r *Registry) New(actionType string) (Action, error) {
	factory, ok := r.factories[actionType]
	if !ok {
		return nil, fmt.Errorf("unknown action type: %s", actionType)
	}
	return factory(), nil
}

// Catalog lists metadata for every registered action.
func (r *Registry) Catalog() []Metadata {
	out := make([]Metadata, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.factories[name]().Metadata())
	}
	return out
}

// permission tags reused by the concrete actions
var (
	permShell   = config.PermShell
	permFiles   = config.PermFileOperations
	permProcess = config.PermProcessControl
	permNetwork = config.PermNetworkControl
)
