package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/signaldock/signaldock/pkg/models"
	"github.com/signaldock/signaldock/pkg/template"
)

// ShellAction runs a shell command with {placeholder} substitution from
// the event data. Permission-gated.
type ShellAction struct{}

func NewShellAction() *ShellAction { return &ShellAction{} }

var dangerousPatterns = []string{
	"rm -rf /",
	"mkfs",
	":(){",
	"> /dev/sda",
}

func (a *ShellAction) Metadata() Metadata {
	return Metadata{
		Type:               "shell",
		DisplayName:        "Shell Command",
		Description:        "Execute shell commands (requires permission)",
		RequiresPermission: true,
		Permission:         permShell,
	}
}

func (a *ShellAction) ValidateParams(params map[string]any) error {
	command := paramString(params, "command", "")
	if command == "" {
		return fmt.Errorf("command is required")
	}
	if t := paramFloat(params, "timeout", 30); t < 1 {
		return fmt.Errorf("timeout must be at least 1 second")
	}
	lowered := strings.ToLower(command)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowered, pattern) {
			return fmt.Errorf("potentially dangerous command pattern detected: %s", pattern)
		}
	}
	return nil
}

func (a *ShellAction) Execute(ctx context.Context, actx Context) models.ActionResult {
	command := shellSubstitute(paramString(actx.Params, "command", ""), actx.Data())
	timeout := time.Duration(paramFloat(actx.Params, "timeout", 30)) * time.Second
	workingDir := paramString(actx.Params, "working_dir", "")

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = workingDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return models.FailureResult(
			fmt.Sprintf("command timed out after %s", timeout),
			fmt.Errorf("process killed due to timeout"))
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return models.FailureResult(
				fmt.Sprintf("command failed with exit code %d", exitErr.ExitCode()),
				fmt.Errorf("%s", truncate(stderr.String(), 500)))
		}
		return models.FailureResult("command failed to start", err)
	}

	return models.SuccessResult("Command executed successfully", map[string]any{
		"command":     command,
		"return_code": 0,
		"stdout":      truncate(stdout.String(), 1000),
		"stderr":      truncate(stderr.String(), 1000),
	})
}

// shellSubstitute escapes quotes in substituted values so event content
// cannot break out of a quoted argument.
func shellSubstitute(command string, data map[string]any) string {
	escaped := make(map[string]any, len(data))
	for k, v := range data {
		escaped[k] = strings.NewReplacer(`"`, `\"`, `'`, `\'`).Replace(template.Stringify(v))
	}
	return template.Substitute(command, escaped, "")
}
