// Package mirror implements recursive directory copy and removal for the
// backup and restore paths.
package mirror

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyTree recursively copies srcDir into dstDir, creating dstDir if needed,
// and returns the destination paths of every copied file. Directory names
// listed in excludeDirs are skipped wherever they appear in the tree.
// A missing srcDir is not an error; it yields zero files.
func CopyTree(srcDir, dstDir string, excludeDirs []string) ([]string, error) {
	info, err := os.Stat(srcDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", srcDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", srcDir)
	}

	excluded := make(map[string]bool, len(excludeDirs))
	for _, d := range excludeDirs {
		excluded[d] = true
	}

	var copied []string
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel != "." && excluded[d.Name()] {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dstDir, rel), 0o755)
		}
		if !d.Type().IsRegular() {
			// Symlinks and special files are not part of a site backup.
			return nil
		}
		dst := filepath.Join(dstDir, rel)
		if err := copyFile(path, dst); err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
		copied = append(copied, dst)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return copied, nil
}

// RemoveTree deletes a directory and everything under it.
func RemoveTree(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
