package fileutil

import (
	"bufio"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/galaxyproject/depotsync/util/common/errors"
)

// validatePath checks if a path is valid and accessible.
// Returns an error if the path is empty, contains a NUL byte,
// or if the parent directory is not accessible.
func validatePath(path string) error {
	if path == "" {
		return errors.NewValidationError("path", "path cannot be empty")
	}

	// Image names carry ':' so only NUL is refused
	if strings.ContainsRune(path, 0) {
		return errors.NewValidationError("path", "path contains invalid characters")
	}

	// Check if parent directory exists and is accessible
	parent := filepath.Dir(path)
	if parent != "." {
		if _, err := os.Stat(parent); err != nil {
			return errors.NewFileError(parent, "access", err)
		}
	}

	return nil
}

// validateWritePermissions checks if a directory is writable.
// Returns an error if the directory is not writable or if testing
// write permissions fails.
func validateWritePermissions(dir string) error {
	f, err := os.CreateTemp(dir, ".write_test-*")
	if err != nil {
		return errors.NewFileError(dir, "write_permission", err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return nil
}

// EnsureDir creates a directory if needed and checks that it is writable.
func EnsureDir(path string) error {
	if path == "" {
		return errors.NewValidationError("path", "path cannot be empty")
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.NewFileError(path, "create", err)
	}
	return validateWritePermissions(path)
}

// WriteLines writes one line per element, creating parent directories if needed.
func WriteLines(path string, lines []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewFileError(path, "create_dir", err)
	}
	if err := validatePath(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.NewFileError(path, "create", err)
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			f.Close()
			return errors.NewFileError(path, "write", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.NewFileError(path, "write", err)
	}
	if err := f.Close(); err != nil {
		return errors.NewFileError(path, "close", err)
	}
	return nil
}

// CopyFileAtomic copies src to dst through a temporary file in the destination
// directory, so readers of dst never observe a partial file.
func CopyFileAtomic(src, dst string) error {
	if err := validatePath(src); err != nil {
		return err
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return errors.NewFileError(src, "stat", err)
	}
	if srcInfo.IsDir() {
		return errors.NewValidationError("src", "source path is a directory, expected a file")
	}

	dstDir := filepath.Dir(dst)
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return errors.NewFileError(dst, "create_dir", err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return errors.NewFileError(src, "open", err)
	}
	defer srcFile.Close()

	tmp, err := os.CreateTemp(dstDir, "."+filepath.Base(dst)+".partial-*")
	if err != nil {
		return errors.NewFileError(dst, "create", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := io.Copy(tmp, srcFile); err != nil {
		cleanup()
		return errors.NewFileError(dst, "copy", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.NewFileError(dst, "sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewFileError(dst, "close", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return errors.NewFileError(dst, "chmod", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return errors.NewFileError(dst, "rename", err)
	}
	return nil
}

// DirSize sums the size of every regular file below root. A missing root is empty.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return total, errors.NewFileError(root, "walk", err)
	}
	return total, nil
}
