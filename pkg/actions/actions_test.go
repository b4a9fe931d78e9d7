package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldock/signaldock/pkg/models"
)

type staticPerms map[string]bool

func (p staticPerms) Granted(name string) bool { return p[name] }

type stubAction struct {
	meta    Metadata
	valErr  error
	execute func(ctx context.Context, actx Context) models.ActionResult
}

func (a *stubAction) Metadata() Metadata                    { return a.meta }
func (a *stubAction) ValidateParams(map[string]any) error   { return a.valErr }
func (a *stubAction) Execute(ctx context.Context, actx Context) models.ActionResult {
	return a.execute(ctx, actx)
}

func TestSafeExecutePermissionDenied(t *testing.T) {
	a := &stubAction{
		meta: Metadata{Type: "shell", RequiresPermission: true, Permission: permShell},
		execute: func(context.Context, Context) models.ActionResult {
			t.Fatal("Execute must not run without permission")
			return models.ActionResult{}
		},
	}

	result := SafeExecute(context.Background(), a, staticPerms{}, Context{})

	assert.Equal(t, models.ActionPermissionDenied, result.Status)
	assert.Equal(t, "permission_denied", result.Error)
	assert.Contains(t, result.Message, permShell)
}

func TestSafeExecuteInvalidParams(t *testing.T) {
	a := &stubAction{
		meta:   Metadata{Type: "stub"},
		valErr: fmt.Errorf("command is required"),
		execute: func(context.Context, Context) models.ActionResult {
			t.Fatal("Execute must not run with invalid params")
			return models.ActionResult{}
		},
	}

	result := SafeExecute(context.Background(), a, nil, Context{})

	assert.Equal(t, models.ActionFailure, result.Status)
	assert.Equal(t, "invalid parameters", result.Message)
	assert.Contains(t, result.Error, "command is required")
}

func TestSafeExecuteRecoversPanic(t *testing.T) {
	a := &stubAction{
		meta: Metadata{Type: "stub"},
		execute: func(context.Context, Context) models.ActionResult {
			panic("boom")
		},
	}

	result := SafeExecute(context.Background(), a, nil, Context{})

	assert.Equal(t, models.ActionFailure, result.Status)
	assert.Contains(t, result.Error, "boom")
}

func TestSafeExecuteMeasuresTime(t *testing.T) {
	a := &stubAction{
		meta: Metadata{Type: "stub"},
		execute: func(context.Context, Context) models.ActionResult {
			time.Sleep(10 * time.Millisecond)
			return models.SuccessResult("done", nil)
		},
	}

	result := SafeExecute(context.Background(), a, nil, Context{})

	assert.Equal(t, models.ActionSuccess, result.Status)
	assert.GreaterOrEqual(t, result.ExecutionTimeMs, 10.0)
}

type scriptedNotifier struct {
	title, message string
	err            error
}

func (n *scriptedNotifier) Notify(_ context.Context, title, message string, _ time.Duration) error {
	n.title, n.message = title, message
	return n.err
}

func TestNotificationSubstitutesTemplates(t *testing.T) {
	n := &scriptedNotifier{}
	a := NewNotificationAction(n)

	actx := Context{
		Event: map[string]any{
			"data": map[string]any{"cpu_percent": 91.5, "state": "high"},
		},
		Params: map[string]any{
			"title":   "CPU {state}",
			"message": "load at {cpu_percent}%",
		},
	}
	result := SafeExecute(context.Background(), a, nil, actx)

	require.Equal(t, models.ActionSuccess, result.Status)
	assert.Equal(t, "CPU high", n.title)
	assert.Equal(t, "load at 91.5%", n.message)
}

func TestNotificationFailure(t *testing.T) {
	a := NewNotificationAction(&scriptedNotifier{err: fmt.Errorf("no display")})

	result := SafeExecute(context.Background(), a, nil, Context{
		Params: map[string]any{"title": "hi"},
	})

	assert.Equal(t, models.ActionFailure, result.Status)
	assert.Contains(t, result.Error, "no display")
}

func TestShellValidateParams(t *testing.T) {
	a := NewShellAction()

	tests := []struct {
		name    string
		params  map[string]any
		wantErr string
	}{
		{"missing command", map[string]any{}, "command is required"},
		{"dangerous pattern", map[string]any{"command": "rm -rf / --no-preserve-root"}, "dangerous"},
		{"fork bomb", map[string]any{"command": ":(){ :|:& };:"}, "dangerous"},
		{"bad timeout", map[string]any{"command": "true", "timeout": 0.2}, "timeout"},
		{"valid", map[string]any{"command": "echo hello"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.ValidateParams(tt.params)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestShellExecute(t *testing.T) {
	a := NewShellAction()

	actx := Context{
		Event:  map[string]any{"data": map[string]any{"path": "/tmp/watched.txt"}},
		Params: map[string]any{"command": `echo "changed: {path}"`},
	}
	result := SafeExecute(context.Background(), a, staticPerms{permShell: true}, actx)

	require.Equal(t, models.ActionSuccess, result.Status)
	assert.Equal(t, "changed: /tmp/watched.txt\n", result.Data["stdout"])
	assert.Equal(t, 0, result.Data["return_code"])
}

func TestShellExecuteNonZeroExit(t *testing.T) {
	a := NewShellAction()

	result := SafeExecute(context.Background(), a, staticPerms{permShell: true}, Context{
		Params: map[string]any{"command": "exit 3"},
	})

	assert.Equal(t, models.ActionFailure, result.Status)
	assert.Contains(t, result.Message, "exit code 3")
}

func TestShellExecuteTimeout(t *testing.T) {
	a := NewShellAction()

	result := SafeExecute(context.Background(), a, staticPerms{permShell: true}, Context{
		Params: map[string]any{"command": "sleep 5", "timeout": 1},
	})

	assert.Equal(t, models.ActionFailure, result.Status)
	assert.Contains(t, result.Message, "timed out")
}

func TestFileOperationMove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.txt")
	dst := filepath.Join(dir, "archive", "in.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	a := NewFileOperationAction()
	result := SafeExecute(context.Background(), a, staticPerms{permFiles: true}, Context{
		Params: map[string]any{"operation": "move", "source": src, "destination": dst},
	})

	require.Equal(t, models.ActionSuccess, result.Status)
	assert.NoFileExists(t, src)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestFileOperationCopyIntoDirectory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.txt")
	dstDir := filepath.Join(dir, "backups")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))
	require.NoError(t, os.Mkdir(dstDir, 0o755))

	a := NewFileOperationAction()
	result := SafeExecute(context.Background(), a, staticPerms{permFiles: true}, Context{
		Params: map[string]any{"operation": "copy", "source": src, "destination": dstDir},
	})

	require.Equal(t, models.ActionSuccess, result.Status)
	assert.FileExists(t, src)
	assert.FileExists(t, filepath.Join(dstDir, "report.txt"))
}

func TestFileOperationSourceFromEventPath(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "dropped.tmp")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	a := NewFileOperationAction()
	result := SafeExecute(context.Background(), a, staticPerms{permFiles: true}, Context{
		Event:  map[string]any{"data": map[string]any{"path": src}},
		Params: map[string]any{"operation": "delete"},
	})

	require.Equal(t, models.ActionSuccess, result.Status)
	assert.NoFileExists(t, src)
}

func TestFileOperationRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("b"), 0o644))

	a := NewFileOperationAction()
	result := SafeExecute(context.Background(), a, staticPerms{permFiles: true}, Context{
		Params: map[string]any{"operation": "move", "source": src, "destination": dst},
	})

	assert.Equal(t, models.ActionFailure, result.Status)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
}

func TestFileOperationArchiveDirectory(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "logs")
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "one.log"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "sub", "two.log"), []byte("2"), 0o644))

	a := NewFileOperationAction()
	result := SafeExecute(context.Background(), a, staticPerms{permFiles: true}, Context{
		Params: map[string]any{"operation": "archive", "source": srcDir, "destination": filepath.Join(dir, "logs")},
	})

	require.Equal(t, models.ActionSuccess, result.Status)
	assert.FileExists(t, filepath.Join(dir, "logs.zip"))
	assert.Equal(t, 2, result.Data["files"])
}

type scriptedHandle struct {
	pid        int32
	name       string
	suspended  bool
	terminated bool
	opErr      error
}

func (h *scriptedHandle) Pid() int32   { return h.pid }
func (h *scriptedHandle) Name() string { return h.name }
func (h *scriptedHandle) Suspend() error {
	h.suspended = true
	return h.opErr
}
func (h *scriptedHandle) Resume() error { return h.opErr }
func (h *scriptedHandle) Terminate() error {
	h.terminated = true
	return h.opErr
}
func (h *scriptedHandle) Kill() error                    { return h.opErr }
func (h *scriptedHandle) Running() (bool, error)         { return !h.terminated, nil }
func (h *scriptedHandle) CPUPercent() (float64, error)   { return 12.5, nil }
func (h *scriptedHandle) MemoryPercent() (float32, error) { return 3.25, nil }

type scriptedProcs struct {
	handles []processHandle
	err     error
}

func (s *scriptedProcs) Find(_ context.Context, pid int32, name string, matchAll bool) ([]processHandle, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !matchAll && len(s.handles) > 1 {
		return s.handles[:1], nil
	}
	return s.handles, nil
}

func TestProcessControlTerminate(t *testing.T) {
	h := &scriptedHandle{pid: 4242, name: "stress"}
	a := &ProcessControlAction{ops: &scriptedProcs{handles: []processHandle{h}}}

	result := SafeExecute(context.Background(), a, staticPerms{permProcess: true}, Context{
		Params: map[string]any{"operation": "terminate", "name": "stress"},
	})

	require.Equal(t, models.ActionSuccess, result.Status)
	assert.True(t, h.terminated)
}

func TestProcessControlCheck(t *testing.T) {
	h := &scriptedHandle{pid: 7, name: "postgres"}
	a := &ProcessControlAction{ops: &scriptedProcs{handles: []processHandle{h}}}

	result := SafeExecute(context.Background(), a, staticPerms{permProcess: true}, Context{
		Params: map[string]any{"operation": "check", "pid": 7},
	})

	require.Equal(t, models.ActionSuccess, result.Status)
	procs, ok := result.Data["processes"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, procs, 1)
	assert.Equal(t, true, procs[0]["running"])
	assert.Equal(t, 12.5, procs[0]["cpu_percent"])
}

func TestProcessControlNoMatch(t *testing.T) {
	a := &ProcessControlAction{ops: &scriptedProcs{}}

	result := SafeExecute(context.Background(), a, staticPerms{permProcess: true}, Context{
		Params: map[string]any{"operation": "suspend", "name": "nonexistent"},
	})

	assert.Equal(t, models.ActionFailure, result.Status)
	assert.Contains(t, result.Message, "no matching process")
}

type scriptedIfaces struct {
	set    map[string]bool
	ifaces []ifaceStatus
}

func (s *scriptedIfaces) SetLink(_ context.Context, iface string, up bool) error {
	if s.set == nil {
		s.set = make(map[string]bool)
	}
	s.set[iface] = up
	return nil
}

func (s *scriptedIfaces) Interfaces(context.Context) ([]ifaceStatus, error) {
	return s.ifaces, nil
}

func TestNetworkControlDisable(t *testing.T) {
	ops := &scriptedIfaces{}
	a := &NetworkControlAction{ops: ops}

	result := SafeExecute(context.Background(), a, staticPerms{permNetwork: true}, Context{
		Params: map[string]any{"operation": "disable", "interface": "wlan0"},
	})

	require.Equal(t, models.ActionSuccess, result.Status)
	assert.Equal(t, false, ops.set["wlan0"])
}

func TestNetworkControlStatusSingleInterface(t *testing.T) {
	a := &NetworkControlAction{ops: &scriptedIfaces{ifaces: []ifaceStatus{
		{Name: "eth0", Up: true, Addresses: []string{"192.168.1.10/24"}},
		{Name: "wlan0", Up: false},
	}}}

	result := SafeExecute(context.Background(), a, staticPerms{permNetwork: true}, Context{
		Params: map[string]any{"operation": "status", "interface": "eth0"},
	})

	require.Equal(t, models.ActionSuccess, result.Status)
	ifaces, ok := result.Data["interfaces"].([]ifaceStatus)
	require.True(t, ok)
	require.Len(t, ifaces, 1)
	assert.True(t, ifaces[0].Up)
}

func TestRegistryCatalog(t *testing.T) {
	r := NewRegistry()

	catalog := r.Catalog()
	require.Len(t, catalog, 5)
	assert.Equal(t, "notification", catalog[0].Type)
	assert.True(t, r.Known("shell"))
	assert.False(t, r.Known("launch_missiles"))

	_, err := r.New("nope")
	assert.Error(t, err)
}
