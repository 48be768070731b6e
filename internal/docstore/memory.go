package docstore

import (
	"context"
	"sync"
	"time"
)

type memoryDoc struct {
	data    Document
	created time.Time
	updated time.Time
}

// MemoryStore keeps documents in process memory. It backs tests and
// single-node development servers.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]*memoryDoc
	children map[string]map[string]struct{}
	hub      *hub
	now      func() time.Time
	closed   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     map[string]*memoryDoc{},
		children: map[string]map[string]struct{}{},
		hub:      newHub(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) snapshotLocked(p string) Snapshot {
	d, ok := s.docs[p]
	if !ok {
		return Snapshot{Path: p, ID: baseID(p)}
	}
	return Snapshot{
		Path:       p,
		ID:         baseID(p),
		Exists:     true,
		Data:       d.data.Clone(),
		CreateTime: d.created,
		UpdateTime: d.updated,
	}
}

func (s *MemoryStore) Read(ctx context.Context, path string) (Snapshot, error) {
	p, err := cleanDocPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	return s.snapshotLocked(p), nil
}

func (s *MemoryStore) Write(ctx context.Context, path string, doc Document, opts WriteOptions) error {
	p, err := cleanDocPath(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.putLocked(p, doc, opts)
	s.hub.publish(s.snapshotLocked(p))
	return nil
}

func (s *MemoryStore) putLocked(p string, doc Document, opts WriteOptions) {
	now := s.now()
	existing, ok := s.docs[p]
	if !ok {
		s.docs[p] = &memoryDoc{data: doc.Clone(), created: now, updated: now}
		parent := Parent(p)
		if s.children[parent] == nil {
			s.children[parent] = map[string]struct{}{}
		}
		s.children[parent][p] = struct{}{}
		return
	}
	existing.data = merge(existing.data, doc, opts)
	existing.updated = now
}

func (s *MemoryStore) Append(ctx context.Context, collection string, doc Document) (string, error) {
	c, err := cleanCollectionPath(collection)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	id := newDocID()
	p := c + "/" + id
	s.putLocked(p, doc, WriteOptions{})
	s.hub.publish(s.snapshotLocked(p))
	return id, nil
}

func (s *MemoryStore) List(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	c, err := cleanCollectionPath(collection)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.listLocked(c, q), nil
}

func (s *MemoryStore) listLocked(c string, q Query) []Snapshot {
	out := make([]Snapshot, 0, len(s.children[c]))
	for p := range s.children[c] {
		out = append(out, s.snapshotLocked(p))
	}
	sortSnapshots(out, q)
	return out
}

func (s *MemoryStore) Subscribe(ctx context.Context, path string) (<-chan Snapshot, func(), error) {
	p, err := Clean(path)
	if err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, ErrClosed
	}
	var initial []Snapshot
	if IsCollection(p) {
		initial = s.listLocked(p, Query{})
	} else {
		initial = []Snapshot{s.snapshotLocked(p)}
	}
	ch, cancel := s.hub.subscribe(ctx, p, initial)
	return ch, cancel, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.closeAll()
	return nil
}
