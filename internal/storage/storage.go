// Package storage persists contract attachments and hands out the public
// references that are embedded in contract records.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound   = errors.New("attachment not found")
	ErrInvalidRef = errors.New("invalid attachment reference")
)

// Object describes a stored attachment.
type Object struct {
	Ref         string
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Store is implemented by every attachment backend.
type Store interface {
	// Save stores the content under a new time based name derived from
	// filename and returns its public reference.
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	// Open returns the content of a previously saved reference.
	Open(ctx context.Context, ref string) (io.ReadCloser, Object, error)
	// Remove deletes the referenced object. Removing a missing object is not an error.
	Remove(ctx context.Context, ref string) error
	// List returns every stored object.
	List(ctx context.Context) ([]Object, error)
}

// refs maps object names to public references under a fixed prefix.
type refs struct {
	prefix string
}

func newRefs(prefix string) refs {
	return refs{prefix: "/" + strings.Trim(prefix, "/")}
}

func (r refs) ref(name string) string {
	return r.prefix + "/" + name
}

// name extracts the object name from a reference. Only flat names directly
// under the prefix are accepted.
func (r refs) name(ref string) (string, error) {
	rest, ok := strings.CutPrefix(ref, r.prefix+"/")
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	if rest == "" || rest == "." || rest == ".." || strings.ContainsAny(rest, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return rest, nil
}

// nameGenerator produces object names from the upload time in Unix
// milliseconds plus the original extension. Timestamps handed out by one
// generator are strictly increasing.
type nameGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newNameGenerator(now func() time.Time) *nameGenerator {
	if now == nil {
		now = time.Now
	}
	return &nameGenerator{now: now}
}

func (g *nameGenerator) next(filename string) string {
	g.mu.Lock()
	stamp := g.now().UnixMilli()
	if stamp <= g.last {
		stamp = g.last + 1
	}
	g.last = stamp
	g.mu.Unlock()

	return fmt.Sprintf("%d%s", stamp, extension(filename))
}

// extension returns the lowercased extension of filename, or "" when it
// contains anything but ASCII letters and digits.
func extension(filename string) string {
	ext := strings.ToLower(filepath.Ext(path.Base(strings.ReplaceAll(filename, `\`, "/"))))
	if len(ext) < 2 || len(ext) > 16 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

// ContentType guesses the MIME type of an object from its name.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
