package mirror

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")

	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(src, "sub", "b.txt"), "beta")
	writeFile(t, filepath.Join(src, "sub", "deep", "c.txt"), "gamma")

	copied, err := CopyTree(src, dst, nil)
	if err != nil {
		t.Fatalf("copy tree: %v", err)
	}
	if len(copied) != 3 {
		t.Fatalf("copied %d files, want 3", len(copied))
	}

	data, err := os.ReadFile(filepath.Join(dst, "sub", "deep", "c.txt"))
	if err != nil {
		t.Fatalf("read copied file: %v", err)
	}
	if string(data) != "gamma" {
		t.Errorf("content = %q, want %q", data, "gamma")
	}
}

func TestCopyTreeExcludes(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")

	writeFile(t, filepath.Join(src, "keep.txt"), "keep")
	writeFile(t, filepath.Join(src, "cache", "skip.txt"), "skip")
	writeFile(t, filepath.Join(src, "sub", "cache", "skip2.txt"), "skip")

	copied, err := CopyTree(src, dst, []string{"cache"})
	if err != nil {
		t.Fatalf("copy tree: %v", err)
	}
	if len(copied) != 1 {
		t.Fatalf("copied %d files, want 1", len(copied))
	}
	if _, err := os.Stat(filepath.Join(dst, "cache")); !os.IsNotExist(err) {
		t.Error("excluded top-level dir was copied")
	}
	if _, err := os.Stat(filepath.Join(dst, "sub", "cache")); !os.IsNotExist(err) {
		t.Error("excluded nested dir was copied")
	}
}

func TestCopyTreeMissingSource(t *testing.T) {
	copied, err := CopyTree(filepath.Join(t.TempDir(), "nope"), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("missing source should not error, got %v", err)
	}
	if len(copied) != 0 {
		t.Errorf("copied %d files from missing source, want 0", len(copied))
	}
}

func TestRemoveTree(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "gone")
	writeFile(t, filepath.Join(target, "x.txt"), "x")

	if err := RemoveTree(target); err != nil {
		t.Fatalf("remove tree: %v", err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("directory still exists after RemoveTree")
	}
}
