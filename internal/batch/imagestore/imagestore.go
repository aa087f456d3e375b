// Package imagestore keeps label images on the local filesystem under
// content-addressed names.
package imagestore

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	"labelcheck/pkg/platform/sentinel"
)

// Store writes each image once, named by the BLAKE2b-256 digest of its bytes.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create image root: %w", err)
	}
	return &Store{root: root}, nil
}

// Put stores data and returns its key. Storing the same bytes twice is a no-op.
func (s *Store) Put(ctx context.Context, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sum := blake2b.Sum256(data)
	name := hex.EncodeToString(sum[:])
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext != "" {
		name += "." + ext
	}
	key := filepath.Join(name[:2], name)
	target := filepath.Join(s.root, key)
	if _, err := os.Stat(target); err == nil {
		return filepath.ToSlash(key), nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("commit image: %w", err)
	}
	return filepath.ToSlash(key), nil
}

// Read returns the bytes stored under key.
func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("image %q: invalid key", key)
	}
	data, err := os.ReadFile(filepath.Join(s.root, rel))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("image %q: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}
