package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DiskStore keeps blobs as flat files under one root directory. A ref is the
// stored filename: a uuid prefix plus the sanitized suggested name, which
// keeps concurrent saves of identically named files apart.
type DiskStore struct {
	root string
}

// NewDiskStore creates the root (and a tmp staging dir) if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("blob store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{root: abs}, nil
}

// Save streams r into a temp file and renames it into place, so a failed
// upload never leaves a half-written blob behind a live ref.
func (d *DiskStore) Save(ctx context.Context, r io.Reader, suggestedName string) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	tmp, err := os.CreateTemp(filepath.Join(d.root, "tmp"), "put-*")
	if err != nil {
		return "", 0, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return "", 0, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", 0, err
	}

	ref := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeName(suggestedName))
	dst := filepath.Join(d.root, ref)
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, err
	}
	return ref, n, nil
}

// Open returns a reader over the blob's bytes.
func (d *DiskStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.pathFromRef(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// SizeOf reports the stored byte count for a ref.
func (d *DiskStore) SizeOf(ctx context.Context, ref string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path, err := d.pathFromRef(ref)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Delete removes the blob. A missing ref is ErrNotFound, not a silent pass,
// so the sweeper can tell a leak from a double delete.
func (d *DiskStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := d.pathFromRef(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// pathFromRef rejects anything that would escape the root. Refs only ever
// come from Save, but they travel through the registry and back.
func (d *DiskStore) pathFromRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("blob ref is required")
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || strings.HasPrefix(clean, "..") || strings.ContainsRune(clean, filepath.Separator) {
		return "", fmt.Errorf("invalid blob ref %q", ref)
	}
	return filepath.Join(d.root, clean), nil
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "\x00", "")
	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}
	return name
}
