// Package memory implements an in-memory archive store for tests.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"sitcomledger/internal/archive/core"
)

type entry struct {
	obj  core.Object
	data []byte
}

// Store keeps archived objects in process memory.
type Store struct {
	mu   sync.RWMutex
	objs map[string]entry
	now  func() time.Time
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{objs: make(map[string]entry), now: func() time.Time { return time.Now().UTC() }}
}

// Driver returns the archive driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores a new object; it fails if the key exists.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Object, error) {
	if strings.TrimSpace(key) == "" {
		return core.Object{}, core.ErrInvalidKey
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return core.Object{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return core.Object{}, fmt.Errorf("%w: %s", core.ErrExists, key)
	}
	sum := sha256.Sum256(b)
	obj := core.Object{
		Key:          key,
		Size:         int64(len(b)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: s.now(),
	}
	s.objs[key] = entry{obj: obj, data: b}
	return copyObject(obj), nil
}

// Get returns object metadata and a reader over a copy of its content.
func (s *Store) Get(_ context.Context, key string) (core.Object, io.ReadCloser, error) {
	s.mu.RLock()
	e, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return core.Object{}, nil, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	data := append([]byte(nil), e.data...)
	return copyObject(e.obj), io.NopCloser(bytes.NewReader(data)), nil
}

// List returns all objects whose key has prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Object, 0, len(s.objs))
	for k, e := range s.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, copyObject(e.obj))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func copyObject(o core.Object) core.Object {
	o.Metadata = core.CloneMetadata(o.Metadata)
	return o
}
