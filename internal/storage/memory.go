package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

type memoryObject struct {
	data    []byte
	modTime time.Time
}

// MemoryStore keeps attachments in memory. It is safe for concurrent use and
// meant for tests and throwaway environments.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	refs    refs
	names   *nameGenerator
	now     func() time.Time
}

func NewMemoryStore(publicPrefix string) *MemoryStore {
	return NewMemoryStoreWithClock(publicPrefix, time.Now)
}

func NewMemoryStoreWithClock(publicPrefix string, now func() time.Time) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		refs:    newRefs(publicPrefix),
		names:   newNameGenerator(now),
		now:     now,
	}
}

func (m *MemoryStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("storage: read attachment: %w", err)
	}

	name := m.names.next(filename)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = memoryObject{data: data, modTime: m.now()}
	return m.refs.ref(name), nil
}

func (m *MemoryStore) Open(ctx context.Context, ref string) (io.ReadCloser, Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, Object{}, err
	}
	name, err := m.refs.name(ref)
	if err != nil {
		return nil, Object{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[name]
	if !ok {
		return nil, Object{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), m.object(name, obj), nil
}

func (m *MemoryStore) Remove(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := m.refs.name(ref)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	return nil
}

// List returns the objects ordered by name.
func (m *MemoryStore) List(ctx context.Context) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	objects := make([]Object, 0, len(m.objects))
	for name, obj := range m.objects {
		objects = append(objects, m.object(name, obj))
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

// Has reports whether ref is currently stored.
func (m *MemoryStore) Has(ref string) bool {
	name, err := m.refs.name(ref)
	if err != nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[name]
	return ok
}

func (m *MemoryStore) object(name string, obj memoryObject) Object {
	return Object{
		Ref:         m.refs.ref(name),
		Name:        name,
		Size:        int64(len(obj.data)),
		ContentType: ContentType(name),
		ModTime:     obj.modTime,
	}
}

var _ Store = (*MemoryStore)(nil)
