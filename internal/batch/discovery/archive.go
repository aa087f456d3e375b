package discovery

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"labelcheck/internal/batch/models"
)

// Limits caps what an archive may expand to.
type Limits struct {
	MaxFiles int
	MaxBytes int64
}

// Extract unpacks the zip at src into dest. Entries that would land outside
// dest, symlinks and archives over the limits are rejected.
func Extract(src, dest string, limits Limits) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return newError(models.CodeArchiveInvalid, "open archive: %v", err)
	}
	defer zr.Close()

	if limits.MaxFiles > 0 && len(zr.File) > limits.MaxFiles {
		return newError(models.CodeBatchSizeOutOfRange, "archive has %d entries, limit is %d", len(zr.File), limits.MaxFiles)
	}
	root, err := filepath.Abs(dest)
	if err != nil {
		return newError(models.CodeArchiveInvalid, "resolve staging area: %v", err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return newError(models.CodeArchiveInvalid, "create staging area: %v", err)
	}

	var written int64
	for _, f := range zr.File {
		target, err := entryPath(root, f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		switch {
		case mode&os.ModeSymlink != 0:
			return newError(models.CodeArchiveInvalid, "archive entry %q is a symlink", f.Name)
		case f.FileInfo().IsDir():
			if err := os.MkdirAll(target, 0o750); err != nil {
				return newError(models.CodeArchiveInvalid, "create %q: %v", f.Name, err)
			}
			continue
		}

		budget := int64(-1)
		if limits.MaxBytes > 0 {
			budget = limits.MaxBytes - written
		}
		n, err := extractFile(f, target, budget)
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

// entryPath resolves name under root, refusing anything that escapes it.
func entryPath(root, name string) (string, error) {
	clean := filepath.FromSlash(name)
	if !filepath.IsLocal(clean) {
		return "", newError(models.CodeArchiveInvalid, "archive entry %q escapes the staging area", name)
	}
	target := filepath.Join(root, clean)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", newError(models.CodeArchiveInvalid, "archive entry %q escapes the staging area", name)
	}
	return target, nil
}

// extractFile copies one entry; budget < 0 means unlimited.
func extractFile(f *zip.File, target string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return 0, newError(models.CodeArchiveInvalid, "create %q: %v", filepath.Dir(f.Name), err)
	}
	rc, err := f.Open()
	if err != nil {
		return 0, newError(models.CodeArchiveInvalid, "read %q: %v", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, newError(models.CodeArchiveInvalid, "write %q: %v", f.Name, err)
	}
	defer out.Close()

	var r io.Reader = rc
	if budget >= 0 {
		r = io.LimitReader(rc, budget+1)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		return n, newError(models.CodeArchiveInvalid, "write %q: %v", f.Name, err)
	}
	if budget >= 0 && n > budget {
		return n, newError(models.CodeBatchSizeOutOfRange, "archive expands beyond the size limit")
	}
	return n, out.Close()
}
