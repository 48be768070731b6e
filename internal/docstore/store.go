// Package docstore is a small hierarchical document store: documents are
// field maps addressed by slash-separated paths whose segments alternate
// collection/document, and callers can subscribe to a document or to the
// direct children of a collection.
package docstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is the schema-less field map persisted at a path.
type Document map[string]any

// Clone copies the top level of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Snapshot is the state of one document at a point in time.
type Snapshot struct {
	Path       string
	ID         string
	Exists     bool
	Data       Document
	CreateTime time.Time
	UpdateTime time.Time
}

type WriteOptions struct {
	// Merge updates only the provided top-level fields instead of replacing the document.
	Merge bool
}

// Query orders a collection listing. Without OrderBy, documents come back in creation order.
type Query struct {
	OrderBy string
	Desc    bool
}

var (
	ErrInvalidPath = errors.New("docstore: invalid path")
	ErrClosed      = errors.New("docstore: store closed")
)

type Store interface {
	Read(ctx context.Context, path string) (Snapshot, error)
	Write(ctx context.Context, path string, doc Document, opts WriteOptions) error
	Append(ctx context.Context, collection string, doc Document) (string, error)
	List(ctx context.Context, collection string, q Query) ([]Snapshot, error)
	// Subscribe delivers the current state of path followed by every change.
	// For a collection path, each snapshot is one changed child document.
	// The returned func cancels the subscription and closes the channel.
	Subscribe(ctx context.Context, path string) (<-chan Snapshot, func(), error)
	Close() error
}

// Clean drops empty segments and checks p has at least one. Dot segments
// are rejected, never resolved.
func Clean(p string) (string, error) {
	var segs []string
	for _, seg := range strings.Split(strings.TrimSpace(p), "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return "", ErrInvalidPath
		}
		segs = append(segs, seg)
	}
	if len(segs) == 0 {
		return "", ErrInvalidPath
	}
	return strings.Join(segs, "/"), nil
}

// IsCollection reports whether p names a collection (odd number of segments).
func IsCollection(p string) bool {
	return strings.Count(p, "/")%2 == 0
}

func cleanDocPath(p string) (string, error) {
	c, err := Clean(p)
	if err != nil {
		return "", err
	}
	if IsCollection(c) {
		return "", ErrInvalidPath
	}
	return c, nil
}

func cleanCollectionPath(p string) (string, error) {
	c, err := Clean(p)
	if err != nil {
		return "", err
	}
	if !IsCollection(c) {
		return "", ErrInvalidPath
	}
	return c, nil
}

// Parent returns the collection containing a document path.
func Parent(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

func baseID(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}

func newDocID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

func merge(existing, incoming Document, opts WriteOptions) Document {
	if !opts.Merge || existing == nil {
		return incoming.Clone()
	}
	out := existing.Clone()
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

func sortSnapshots(snaps []Snapshot, q Query) {
	sort.SliceStable(snaps, func(i, j int) bool {
		var c int
		if q.OrderBy != "" {
			c = compareValues(snaps[i].Data[q.OrderBy], snaps[j].Data[q.OrderBy])
		}
		if c == 0 {
			c = snaps[i].CreateTime.Compare(snaps[j].CreateTime)
		}
		if c == 0 {
			c = strings.Compare(snaps[i].Path, snaps[j].Path)
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})
}

// compareValues orders timestamps chronologically, numbers numerically and
// everything else by its string form. Missing values sort first.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	sa, _ := a.(string)
	sb, _ := b.(string)
	return strings.Compare(sa, sb)
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
