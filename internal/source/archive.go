package source

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractZip unpacks zip data into dest. When stripRoot is set and every
// entry shares a single top-level directory (as GitHub archive exports
// do), that directory is stripped. Entries with unsafe paths are rejected.
func ExtractZip(data []byte, dest string, stripRoot bool) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	prefix := ""
	if stripRoot {
		prefix = commonRoot(zr.File)
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	for _, f := range zr.File {
		name := strings.TrimPrefix(f.Name, prefix)
		if name == "" {
			continue
		}
		if !safeZipPath(name) {
			return fmt.Errorf("unsafe zip entry %q", f.Name)
		}

		target := filepath.Join(dest, filepath.FromSlash(name))

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}

	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// commonRoot returns the shared "<root>/" prefix of all entries, or ""
// when entries do not share one.
func commonRoot(files []*zip.File) string {
	root := ""
	for _, f := range files {
		name := strings.TrimSuffix(f.Name, "/")
		top, _, found := strings.Cut(name, "/")
		if !found {
			if f.FileInfo().IsDir() && (root == "" || root == name+"/") {
				// A bare top-level directory entry is compatible with
				// itself as the root.
				root = name + "/"
				continue
			}
			return ""
		}
		if root == "" {
			root = top + "/"
		} else if root != top+"/" {
			return ""
		}
	}
	return root
}

// safeZipPath rejects absolute paths and traversal outside the target.
func safeZipPath(name string) bool {
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(name)))
	return clean != ".." && !strings.HasPrefix(clean, "../")
}
