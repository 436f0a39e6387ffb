package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	collection string
	fields     Fields
	seq        int64
}

// MemoryStore keeps documents in process memory. It is used by tests and by
// DOCUMENT_STORE=memory for local development.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*memoryEntry
	seq  int64
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*memoryEntry),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for server timestamps.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *MemoryStore) Add(ctx context.Context, collectionPath string, data Fields) (string, error) {
	segments, err := parseCollection(collectionPath)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if parent := parentDoc(segments); parent != "" {
		if _, ok := s.docs[parent]; !ok {
			return "", ErrParentNotFound
		}
	}

	id := uuid.NewString()
	s.seq++
	s.docs[collectionPath+"/"+id] = &memoryEntry{
		collection: collectionPath,
		fields:     resolve(data, s.now()),
		seq:        s.seq,
	}
	return id, nil
}

func (s *MemoryStore) Update(ctx context.Context, docPath string, fields Fields) error {
	if _, err := parseDoc(docPath); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.docs[docPath]
	if !ok {
		return ErrNotFound
	}

	merged := make(Fields, len(entry.fields)+len(fields))
	for k, v := range entry.fields {
		merged[k] = v
	}
	for k, v := range resolve(fields, s.now()) {
		merged[k] = v
	}
	entry.fields = merged
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, docPath string) (*Document, error) {
	segments, err := parseDoc(docPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.docs[docPath]
	if !ok {
		return nil, ErrNotFound
	}
	return memoryDocument(docPath, segments[len(segments)-1], entry.fields), nil
}

func (s *MemoryStore) List(ctx context.Context, collectionPath string) ([]*Document, error) {
	if _, err := parseCollection(collectionPath); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		path  string
		entry *memoryEntry
	}
	var hits []hit
	for path, entry := range s.docs {
		if entry.collection == collectionPath {
			hits = append(hits, hit{path: path, entry: entry})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].entry.seq < hits[j].entry.seq })

	docs := make([]*Document, 0, len(hits))
	for _, h := range hits {
		id := h.path[strings.LastIndex(h.path, "/")+1:]
		docs = append(docs, memoryDocument(h.path, id, h.entry.fields))
	}
	return docs, nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func memoryDocument(path, id string, fields Fields) *Document {
	snapshot := make(Fields, len(fields))
	for k, v := range fields {
		snapshot[k] = v
	}
	return &Document{
		ID:   id,
		Path: path,
		decode: func(out interface{}) error {
			raw, err := json.Marshal(snapshot)
			if err != nil {
				return err
			}
			return json.Unmarshal(raw, out)
		},
	}
}
