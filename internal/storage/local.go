package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	tempPrefix      = ".tmp-"
	maxNameAttempts = 16
)

// LocalStore keeps attachments as flat files in a single directory.
type LocalStore struct {
	dir   string
	refs  refs
	names *nameGenerator
}

// NewLocalStore creates the directory when needed and returns a store that
// publishes files under publicPrefix.
func NewLocalStore(dir, publicPrefix string) (*LocalStore, error) {
	return newLocalStore(dir, publicPrefix, time.Now)
}

func newLocalStore(dir, publicPrefix string, now func() time.Time) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("storage: empty directory")
	}
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("storage: %s exists and is not a directory", dir)
	case err != nil && !os.IsNotExist(err):
		return nil, fmt.Errorf("storage: stat %s: %w", dir, err)
	case err != nil:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create %s: %w", dir, err)
		}
	}

	return &LocalStore{
		dir:   dir,
		refs:  newRefs(publicPrefix),
		names: newNameGenerator(now),
	}, nil
}

// Save writes the content to a temp file first and then links it under its
// final name. Linking fails when the name is taken, in which case the next
// timestamp is tried.
func (s *LocalStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage: write attachment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: close temp file: %w", err)
	}

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := s.names.next(filename)
		err := os.Link(tmpPath, filepath.Join(s.dir, name))
		if err == nil {
			return s.refs.ref(name), nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("storage: publish attachment: %w", err)
		}
	}
	return "", fmt.Errorf("storage: no free name for %q after %d attempts", filename, maxNameAttempts)
}

func (s *LocalStore) Open(ctx context.Context, ref string) (io.ReadCloser, Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, Object{}, err
	}
	name, err := s.refs.name(ref)
	if err != nil {
		return nil, Object{}, err
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Object{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, Object{}, fmt.Errorf("storage: open %s: %w", ref, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Object{}, fmt.Errorf("storage: stat %s: %w", ref, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, Object{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return f, s.object(name, info), nil
}

func (s *LocalStore) Remove(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := s.refs.name(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove %s: %w", ref, err)
	}
	return nil
}

func (s *LocalStore) List(ctx context.Context) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", s.dir, err)
	}

	objects := make([]Object, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("storage: stat %s: %w", entry.Name(), err)
		}
		objects = append(objects, s.object(entry.Name(), info))
	}
	return objects, nil
}

func (s *LocalStore) object(name string, info os.FileInfo) Object {
	return Object{
		Ref:         s.refs.ref(name),
		Name:        name,
		Size:        info.Size(),
		ContentType: ContentType(name),
		ModTime:     info.ModTime(),
	}
}

var _ Store = (*LocalStore)(nil)
