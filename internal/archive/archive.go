// Package archive packs a directory tree into a gzip-compressed tar file and
// unpacks such archives, guarding against path traversal on extraction.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
)

// writerStack holds the layered writers for archive creation and closes them
// in reverse order.
type writerStack struct {
	tw      *tar.Writer
	closers []io.Closer
}

func (ws *writerStack) Close() error {
	var err error
	for i := len(ws.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, ws.closers[i].Close())
	}
	return err
}

func newWriterStack(outPath string) (*writerStack, error) {
	outFile, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	gz := gzip.NewWriter(outFile)
	tw := tar.NewWriter(gz)
	return &writerStack{
		tw:      tw,
		closers: []io.Closer{outFile, gz, tw},
	}, nil
}

// Create archives everything under srcDir into a tar.gz file at outPath.
// Entry names are relative to srcDir.
func Create(srcDir, outPath string) (err error) {
	ws, err := newWriterStack(outPath)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, ws.Close())
	}()

	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("tar header for %s: %w", rel, err)
		}
		header.Name = filepath.ToSlash(rel)
		if err := ws.tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write header %s: %w", rel, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", rel, err)
		}
		defer f.Close()
		if _, err := io.Copy(ws.tw, f); err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		return nil
	})
}

// Extract unpacks a tar.gz archive into destDir, rejecting entries whose
// resolved path would escape destDir.
func Extract(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		dest, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := extractFile(tr, dest); err != nil {
				return fmt.Errorf("extract %s: %w", header.Name, err)
			}
		default:
			// Symlinks and special entries are never written by Create; skip.
		}
	}
}

// safeJoin joins name onto destDir and rejects traversal outside destDir.
func safeJoin(destDir, name string) (string, error) {
	dest := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid path in archive: %s", name)
	}
	return dest, nil
}

func extractFile(r io.Reader, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return err
	}
	return out.Close()
}
