// Package docstore provides a schemaless document store addressed by
// collection and document paths ("sessions", "sessions/{id}",
// "sessions/{id}/interactions"), with server-assigned timestamps.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("document not found")
	ErrParentNotFound = errors.New("parent document not found")
	ErrInvalidPath    = errors.New("invalid document path")
)

// Fields is the payload of a document write.
type Fields map[string]interface{}

type serverTimestamp struct{}

// ServerTimestamp marks a field to be set from the store's clock at write time.
var ServerTimestamp interface{} = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v interface{}) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Store is implemented by every document backend.
type Store interface {
	// Add creates a document with a store-generated id in collectionPath.
	// Writes into a subcollection fail with ErrParentNotFound when the
	// parent document does not exist.
	Add(ctx context.Context, collectionPath string, data Fields) (string, error)

	// Update merges fields into an existing document in a single atomic
	// write. Returns ErrNotFound when the document does not exist.
	Update(ctx context.Context, docPath string, fields Fields) error

	Get(ctx context.Context, docPath string) (*Document, error)

	// List returns the documents of a collection. No ordering is guaranteed
	// beyond what the backend provides.
	List(ctx context.Context, collectionPath string) ([]*Document, error)

	Close(ctx context.Context) error
}

// Document is a stored document as returned by Get and List.
type Document struct {
	ID   string
	Path string

	decode func(out interface{}) error
}

// DataTo decodes the document body into out.
func (d *Document) DataTo(out interface{}) error {
	if d.decode == nil {
		return fmt.Errorf("document %s has no data", d.Path)
	}
	return d.decode(out)
}

// CollectionPath joins segments into a collection path, e.g.
// CollectionPath("sessions", id, "interactions").
func CollectionPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// DocPath joins segments into a document path, e.g. DocPath("sessions", id).
func DocPath(segments ...string) string {
	return strings.Join(segments, "/")
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	segments := strings.Split(path, "/")
	for _, s := range segments {
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
	}
	return segments, nil
}

func parseCollection(path string) ([]string, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segments)%2 != 1 {
		return nil, fmt.Errorf("%w: %q is not a collection path", ErrInvalidPath, path)
	}
	return segments, nil
}

func parseDoc(path string) ([]string, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segments)%2 != 0 {
		return nil, fmt.Errorf("%w: %q is not a document path", ErrInvalidPath, path)
	}
	return segments, nil
}

// parentDoc returns the document that owns a collection, or "" for a
// top-level collection.
func parentDoc(collectionSegments []string) string {
	if len(collectionSegments) < 3 {
		return ""
	}
	return strings.Join(collectionSegments[:len(collectionSegments)-1], "/")
}

// shape drops the ids from a collection path: "sessions/abc/interactions"
// becomes "sessions.interactions".
func shape(collectionSegments []string) string {
	names := make([]string, 0, len(collectionSegments)/2+1)
	for i := 0; i < len(collectionSegments); i += 2 {
		names = append(names, collectionSegments[i])
	}
	return strings.Join(names, ".")
}

// resolve returns a copy of fields with every ServerTimestamp replaced by now.
func resolve(fields Fields, now time.Time) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if IsServerTimestamp(v) {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}
