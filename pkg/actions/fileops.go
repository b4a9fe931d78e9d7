package actions

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/signaldock/signaldock/pkg/models"
	"github.com/signaldock/signaldock/pkg/template"
)

// FileOperationAction moves, copies, deletes, renames, archives or
// creates files and directories. Paths support {placeholder}
// substitution from the event data; source defaults to the event's
// "path" field so filesystem pipelines can omit it.
type FileOperationAction struct{}

func NewFileOperationAction() *FileOperationAction { return &FileOperationAction{} }

var fileOperations = map[string]bool{
	"move":        true,
	"copy":        true,
	"delete":      true,
	"rename":      true,
	"archive":     true,
	"create_file": true,
	"create_dir":  true,
}

func (a *FileOperationAction) Metadata() Metadata {
	return Metadata{
		Type:               "file_operation",
		DisplayName:        "File Operation",
		Description:        "Move, copy, delete or archive files (requires permission)",
		RequiresPermission: true,
		Permission:         permFiles,
	}
}

func (a *FileOperationAction) ValidateParams(params map[string]any) error {
	op := paramString(params, "operation", "")
	if op == "" {
		return fmt.Errorf("operation is required")
	}
	if !fileOperations[op] {
		return fmt.Errorf("unknown file operation: %s", op)
	}
	switch op {
	case "move", "copy", "rename", "archive":
		if paramString(params, "destination", "") == "" {
			return fmt.Errorf("destination is required for %s", op)
		}
	case "create_file", "create_dir":
		if paramString(params, "destination", "") == "" {
			return fmt.Errorf("destination is required for %s", op)
		}
	}
	return nil
}

func (a *FileOperationAction) Execute(ctx context.Context, actx Context) models.ActionResult {
	data := actx.Data()
	op := paramString(actx.Params, "operation", "")
	source := template.Substitute(paramString(actx.Params, "source", ""), data, "")
	destination := template.Substitute(paramString(actx.Params, "destination", ""), data, "")
	overwrite := paramBool(actx.Params, "overwrite", false)
	createDirs := paramBool(actx.Params, "create_dirs", true)

	if source == "" {
		source = template.Stringify(data["path"])
	}

	switch op {
	case "move", "rename":
		return a.move(source, destination, overwrite, createDirs)
	case "copy":
		return a.copy(source, destination, overwrite, createDirs)
	case "delete":
		return a.delete(source)
	case "archive":
		return a.archive(source, destination, createDirs)
	case "create_file":
		return a.createFile(destination, template.Substitute(paramString(actx.Params, "content", ""), data, ""), overwrite, createDirs)
	case "create_dir":
		return a.createDir(destination)
	}
	return models.FailureResult("unknown file operation", fmt.Errorf("operation %q", op))
}

func (a *FileOperationAction) move(source, destination string, overwrite, createDirs bool) models.ActionResult {
	if err := checkSource(source); err != nil {
		return models.FailureResult("source not found", err)
	}
	destination = resolveDestination(source, destination)
	if err := prepareDestination(destination, overwrite, createDirs); err != nil {
		return models.FailureResult("destination not usable", err)
	}
	if err := os.Rename(source, destination); err != nil {
		return models.FailureResult("failed to move file", err)
	}
	return models.SuccessResult(fmt.Sprintf("Moved %s to %s", source, destination), map[string]any{
		"source":      source,
		"destination": destination,
	})
}

func (a *FileOperationAction) copy(source, destination string, overwrite, createDirs bool) models.ActionResult {
	if err := checkSource(source); err != nil {
		return models.FailureResult("source not found", err)
	}
	destination = resolveDestination(source, destination)
	if err := prepareDestination(destination, overwrite, createDirs); err != nil {
		return models.FailureResult("destination not usable", err)
	}
	if err := copyFile(source, destination); err != nil {
		return models.FailureResult("failed to copy file", err)
	}
	return models.SuccessResult(fmt.Sprintf("Copied %s to %s", source, destination), map[string]any{
		"source":      source,
		"destination": destination,
	})
}

func (a *FileOperationAction) delete(source string) models.ActionResult {
	if err := checkSource(source); err != nil {
		return models.FailureResult("source not found", err)
	}
	info, err := os.Stat(source)
	if err != nil {
		return models.FailureResult("source not found", err)
	}
	if info.IsDir() {
		err = os.RemoveAll(source)
	} else {
		err = os.Remove(source)
	}
	if err != nil {
		return models.FailureResult("failed to delete", err)
	}
	return models.SuccessResult("Deleted "+source, map[string]any{"source": source})
}

func (a *FileOperationAction) archive(source, destination string, createDirs bool) models.ActionResult {
	if err := checkSource(source); err != nil {
		return models.FailureResult("source not found", err)
	}
	if !strings.HasSuffix(destination, ".zip") {
		destination += ".zip"
	}
	if err := prepareDestination(destination, true, createDirs); err != nil {
		return models.FailureResult("destination not usable", err)
	}
	count, err := zipPath(source, destination)
	if err != nil {
		return models.FailureResult("failed to create archive", err)
	}
	return models.SuccessResult(fmt.Sprintf("Archived %s to %s", source, destination), map[string]any{
		"source":      source,
		"destination": destination,
		"files":       count,
	})
}

func (a *FileOperationAction) createFile(destination, content string, overwrite, createDirs bool) models.ActionResult {
	if err := prepareDestination(destination, overwrite, createDirs); err != nil {
		return models.FailureResult("destination not usable", err)
	}
	if err := os.WriteFile(destination, []byte(content), 0o644); err != nil {
		return models.FailureResult("failed to create file", err)
	}
	return models.SuccessResult("Created file "+destination, map[string]any{
		"destination": destination,
		"bytes":       len(content),
	})
}

func (a *FileOperationAction) createDir(destination string) models.ActionResult {
	if err := os.MkdirAll(destination, 0o755); err != nil {
		return models.FailureResult("failed to create directory", err)
	}
	return models.SuccessResult("Created directory "+destination, map[string]any{
		"destination": destination,
	})
}

func checkSource(source string) error {
	if source == "" {
		return fmt.Errorf("source path is empty")
	}
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("stat %s: %w", source, err)
	}
	return nil
}

// resolveDestination keeps the source file name when the destination is
// an existing directory.
func resolveDestination(source, destination string) string {
	if info, err := os.Stat(destination); err == nil && info.IsDir() {
		return filepath.Join(destination, filepath.Base(source))
	}
	return destination
}

func prepareDestination(destination string, overwrite, createDirs bool) error {
	if _, err := os.Stat(destination); err == nil && !overwrite {
		return fmt.Errorf("destination %s already exists", destination)
	}
	if createDirs {
		if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
			return fmt.Errorf("create parent dirs: %w", err)
		}
	}
	return nil
}

func copyFile(source, destination string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// zipPath archives a file or directory tree into destination and
// returns the number of files written.
func zipPath(source, destination string) (int, error) {
	f, err := os.Create(destination)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	zw := zip.NewWriter(f)

	count := 0
	addFile := func(path, name string) error {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		if _, err := io.Copy(w, in); err != nil {
			return err
		}
		count++
		return nil
	}

	info, err := os.Stat(source)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		if err := addFile(source, filepath.Base(source)); err != nil {
			return 0, err
		}
		return count, zw.Close()
	}

	root := filepath.Clean(source)
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return addFile(path, filepath.ToSlash(filepath.Join(filepath.Base(root), rel)))
	})
	if err != nil {
		return 0, err
	}
	return count, zw.Close()
}
