package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/avezhov/filestorage/internal/common"
	"github.com/avezhov/filestorage/internal/logging"
)

// DiskStore keeps blobs on the local filesystem under
// <root>/<user>/<catalog>/<name>, mirroring each record's virtual path.
type DiskStore struct {
	root   string
	logger logging.Logger
}

func NewDiskStore(root string, logger logging.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("can't create storage root: %w", err)
	}
	return &DiskStore{root: root, logger: logger.With("module", "disk_blob_store")}, nil
}

// Write streams src into a temp file in the destination directory, fsyncs
// it and renames it into place. The rename replaces previous bytes
// atomically, so a concurrent reader observes either the old or the new
// content, never a partial file. If anything fails before the rename the
// old bytes stay untouched.
func (s *DiskStore) Write(ctx context.Context, user, catalog, name string, src io.Reader, overwrite bool) error {

	dst, err := s.resolve(user, fromVirtual(catalog), name)
	if err != nil {
		return err
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("can't create catalog dir: %w", err)
	}

	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			s.logger.Warn(ctx, "blob exists for a freshly created record, replacing", "path", dst)
		}
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("can't create temp file: %w", err)
	}

	if err := writeAndSync(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("can't close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("can't move blob into place: %w", err)
	}

	return nil
}

// Open opens the blob for sequential reading. A missing file maps to
// ErrNotFound so the service layer can report a consistent locator error.
func (s *DiskStore) Open(ctx context.Context, user, path string) (io.ReadCloser, error) {
	p, err := s.resolve(user, fromVirtual(path))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("can't open blob: %w", err)
	}
	return f, nil
}

func writeAndSync(f *os.File, src io.Reader) error {
	if _, err := io.Copy(f, src); err != nil {
		return fmt.Errorf("can't write blob: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("can't sync blob: %w", err)
	}
	return nil
}

// resolve joins the parts under the user's directory and verifies the
// cleaned result lands strictly inside it. Virtual paths are validated
// before they reach this layer; the check here keeps a traversal segment
// that slipped through from ever touching anything outside <root>/<user>.
func (s *DiskStore) resolve(user string, parts ...string) (string, error) {
	userRoot := filepath.Join(s.root, user)
	p := filepath.Join(append([]string{userRoot}, parts...)...)
	if !strings.HasPrefix(p, userRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: escapes user directory", common.ErrFilePath)
	}
	return p, nil
}

// fromVirtual converts a virtual path ("/docs/a.txt") into a relative
// filesystem path.
func fromVirtual(p string) string {
	return filepath.FromSlash(strings.TrimPrefix(p, "/"))
}
