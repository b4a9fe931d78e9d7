package actions

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	gopsnet "github.com/shirou/gopsutil/v4/net"

	"github.com/signaldock/signaldock/pkg/models"
)

// interfaceOps abstracts the ip(8) calls and interface enumeration so
// tests do not touch the host network stack.
type interfaceOps interface {
	SetLink(ctx context.Context, iface string, up bool) error
	Interfaces(ctx context.Context) ([]ifaceStatus, error)
}

type ifaceStatus struct {
	Name      string   `json:"name"`
	Up        bool     `json:"up"`
	Addresses []string `json:"addresses"`
}

type ipLinkOps struct{}

func (ipLinkOps) SetLink(ctx context.Context, iface string, up bool) error {
	state := "down"
	if up {
		state = "up"
	}
	out, err := exec.CommandContext(ctx, "ip", "link", "set", "dev", iface, state).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ip link set %s %s: %w (%s)", iface, state, err, truncate(string(out), 200))
	}
	return nil
}

func (ipLinkOps) Interfaces(ctx context.Context) ([]ifaceStatus, error) {
	ifaces, err := gopsnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	out := make([]ifaceStatus, 0, len(ifaces))
	for _, iface := range ifaces {
		up := false
		for _, flag := range iface.Flags {
			if flag == "up" {
				up = true
				break
			}
		}
		addrs := make([]string, 0, len(iface.Addrs))
		for _, a := range iface.Addrs {
			addrs = append(addrs, a.Addr)
		}
		out = append(out, ifaceStatus{Name: iface.Name, Up: up, Addresses: addrs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// NetworkControlAction brings network interfaces up or down and reports
// interface status. Permission-gated.
type NetworkControlAction struct {
	ops interfaceOps
}

func NewNetworkControlAction() *NetworkControlAction {
	return &NetworkControlAction{ops: ipLinkOps{}}
}

var networkOperations = map[string]bool{
	"enable":  true,
	"disable": true,
	"status":  true,
}

func (a *NetworkControlAction) Metadata() Metadata {
	return Metadata{
		Type:               "network_control",
		DisplayName:        "Network Control",
		Description:        "Enable or disable network interfaces (requires permission)",
		RequiresPermission: true,
		Permission:         permNetwork,
	}
}

func (a *NetworkControlAction) ValidateParams(params map[string]any) error {
	op := paramString(params, "operation", "")
	if op == "" {
		return fmt.Errorf("operation is required")
	}
	if !networkOperations[op] {
		return fmt.Errorf("unknown network operation: %s", op)
	}
	if op != "status" && paramString(params, "interface", "") == "" {
		return fmt.Errorf("interface is required for %s", op)
	}
	return nil
}

func (a *NetworkControlAction) Execute(ctx context.Context, actx Context) models.ActionResult {
	op := paramString(actx.Params, "operation", "")
	iface := strings.TrimSpace(paramString(actx.Params, "interface", ""))

	switch op {
	case "status":
		ifaces, err := a.ops.Interfaces(ctx)
		if err != nil {
			return models.FailureResult("failed to read interface status", err)
		}
		if iface != "" {
			for _, s := range ifaces {
				if s.Name == iface {
					return models.SuccessResult("Interface status: "+iface, map[string]any{
						"interfaces": []ifaceStatus{s},
					})
				}
			}
			return models.FailureResult("interface not found", fmt.Errorf("interface %q", iface))
		}
		return models.SuccessResult(fmt.Sprintf("Found %d interface(s)", len(ifaces)), map[string]any{
			"interfaces": ifaces,
		})
	case "enable", "disable":
		up := op == "enable"
		if err := a.ops.SetLink(ctx, iface, up); err != nil {
			return models.FailureResult(fmt.Sprintf("failed to %s interface %s", op, iface), err)
		}
		return models.SuccessResult(fmt.Sprintf("Interface %s %sd", iface, op), map[string]any{
			"interface": iface,
			"up":        up,
		})
	}
	return models.FailureResult("unknown network operation", fmt.Errorf("operation %q", op))
}
