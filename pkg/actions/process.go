package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/signaldock/signaldock/pkg/models"
	"github.com/signaldock/signaldock/pkg/template"
)

// processOps abstracts gopsutil's process package for tests.
type processOps interface {
	Find(ctx context.Context, pid int32, name string, matchAll bool) ([]processHandle, error)
}

type processHandle interface {
	Pid() int32
	Name() string
	Suspend() error
	Resume() error
	Terminate() error
	Kill() error
	Running() (bool, error)
	CPUPercent() (float64, error)
	MemoryPercent() (float32, error)
}

type gopsutilProcs struct{}

type gopsutilHandle struct{ p *process.Process }

func (h gopsutilHandle) Pid() int32 { return h.p.Pid }
func (h gopsutilHandle) Name() string {
	name, _ := h.p.Name()
	return name
}
func (h gopsutilHandle) Suspend() error                 { return h.p.Suspend() }
func (h gopsutilHandle) Resume() error                  { return h.p.Resume() }
func (h gopsutilHandle) Terminate() error               { return h.p.Terminate() }
func (h gopsutilHandle) Kill() error                    { return h.p.Kill() }
func (h gopsutilHandle) Running() (bool, error)         { return h.p.IsRunning() }
func (h gopsutilHandle) CPUPercent() (float64, error)   { return h.p.CPUPercent() }
func (h gopsutilHandle) MemoryPercent() (float32, error) { return h.p.MemoryPercent() }

// Find resolves processes by pid, or by case-insensitive name substring.
// With matchAll false only the first name match is returned.
func (gopsutilProcs) Find(ctx context.Context, pid int32, name string, matchAll bool) ([]processHandle, error) {
	if pid > 0 {
		p, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("process %d: %w", pid, err)
		}
		return []processHandle{gopsutilHandle{p}}, nil
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	needle := strings.ToLower(name)
	var out []processHandle
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(pname), needle) {
			out = append(out, gopsutilHandle{p})
			if !matchAll {
				break
			}
		}
	}
	return out, nil
}

// ProcessControlAction suspends, resumes, terminates, kills or checks
// processes found by pid or name. Permission-gated.
type ProcessControlAction struct {
	ops processOps
}

func NewProcessControlAction() *ProcessControlAction {
	return &ProcessControlAction{ops: gopsutilProcs{}}
}

var processOperations = map[string]bool{
	"suspend":   true,
	"resume":    true,
	"terminate": true,
	"kill":      true,
	"check":     true,
}

func (a *ProcessControlAction) Metadata() Metadata {
	return Metadata{
		Type:               "process_control",
		DisplayName:        "Process Control",
		Description:        "Suspend, resume or terminate processes (requires permission)",
		RequiresPermission: true,
		Permission:         permProcess,
	}
}

func (a *ProcessControlAction) ValidateParams(params map[string]any) error {
	op := paramString(params, "operation", "")
	if op == "" {
		return fmt.Errorf("operation is required")
	}
	if !processOperations[op] {
		return fmt.Errorf("unknown process operation: %s", op)
	}
	if paramFloat(params, "pid", 0) <= 0 && paramString(params, "name", "") == "" {
		return fmt.Errorf("pid or name is required")
	}
	return nil
}

func (a *ProcessControlAction) Execute(ctx context.Context, actx Context) models.ActionResult {
	op := paramString(actx.Params, "operation", "")
	pid := int32(paramFloat(actx.Params, "pid", 0))
	name := template.Substitute(paramString(actx.Params, "name", ""), actx.Data(), "")
	matchAll := paramBool(actx.Params, "match_all", false)

	procs, err := a.ops.Find(ctx, pid, name, matchAll)
	if err != nil {
		return models.FailureResult("failed to find process", err)
	}
	if len(procs) == 0 {
		return models.FailureResult("no matching process found",
			fmt.Errorf("pid=%d name=%q", pid, name))
	}

	if op == "check" {
		return a.check(procs)
	}

	var acted []map[string]any
	var failures []string
	for _, p := range procs {
		var opErr error
		switch op {
		case "suspend":
			opErr = p.Suspend()
		case "resume":
			opErr = p.Resume()
		case "terminate":
			opErr = p.Terminate()
		case "kill":
			opErr = p.Kill()
		}
		if opErr != nil {
			failures = append(failures, fmt.Sprintf("pid %d: %v", p.Pid(), opErr))
			continue
		}
		acted = append(acted, map[string]any{"pid": p.Pid(), "name": p.Name()})
	}

	if len(acted) == 0 {
		return models.FailureResult(fmt.Sprintf("%s failed for all matches", op),
			fmt.Errorf("%s", strings.Join(failures, "; ")))
	}
	msg := fmt.Sprintf("%s applied to %d process(es)", op, len(acted))
	data := map[string]any{"operation": op, "processes": acted}
	if len(failures) > 0 {
		data["failures"] = failures
	}
	return models.SuccessResult(msg, data)
}

func (a *ProcessControlAction) check(procs []processHandle) models.ActionResult {
	var out []map[string]any
	for _, p := range procs {
		running, _ := p.Running()
		cpu, _ := p.CPUPercent()
		mem, _ := p.MemoryPercent()
		out = append(out, map[string]any{
			"pid":            p.Pid(),
			"name":           p.Name(),
			"running":        running,
			"cpu_percent":    cpu,
			"memory_percent": float64(mem),
		})
	}
	return models.SuccessResult(fmt.Sprintf("Found %d process(es)", len(out)), map[string]any{
		"operation": "check",
		"processes": out,
	})
}
