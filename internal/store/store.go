// Package store defines the live document store the sync engine reads from and
// writes to. Documents live at slash-separated paths ("groups/g1",
// "groups/g1/messages/m1"); collections are the odd-length prefixes.
package store

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned when a read or subscription is refused.
	// It is expected transiently during membership changes and account deletion.
	ErrPermissionDenied = errors.New("store: permission denied")
	// ErrResourceExhausted signals a store-wide quota failure.
	ErrResourceExhausted = errors.New("store: resource exhausted")
	// ErrNotFound is returned by Get and Update callers when a document is required.
	ErrNotFound = errors.New("store: document not found")
	// ErrAborted is returned when an Update could not commit after retries.
	ErrAborted = errors.New("store: update aborted by concurrent writes")
)

// Fields is a set of top-level or dotted field paths to write. Values may be
// plain values or one of the transforms (Increment, ArrayUnion, ArrayRemove,
// ServerTimestamp, DeleteField).
type Fields map[string]interface{}

// Document is a single materialized document.
type Document struct {
	Path   string
	ID     string
	Data   map[string]interface{}
	Exists bool
}

// Get returns the raw value at a dotted field path.
func (d Document) Get(field string) interface{} {
	if d.Data == nil {
		return nil
	}
	return GetPath(d.Data, field)
}

// Snapshot is a point-in-time materialization of a subscribed target.
type Snapshot struct {
	Target Target
	Docs   []Document
}

// Doc returns the single document of a document-target snapshot. A missing
// document is returned with Exists=false.
func (s Snapshot) Doc() Document {
	if len(s.Docs) == 0 {
		return Document{Path: s.Target.Path, ID: ID(s.Target.Path)}
	}
	return s.Docs[0]
}

// Target is what a subscription watches: either one document or a query.
type Target struct {
	Path  string
	Query *Query
}

// DocTarget watches a single document.
func DocTarget(path string) Target { return Target{Path: path} }

// QueryTarget watches the result set of a query.
func QueryTarget(q Query) Target { return Target{Path: q.Collection, Query: &q} }

// Op is a filter comparison operator.
type Op string

const (
	OpEqual          Op = "=="
	OpArrayContains  Op = "array-contains"
	OpGreaterOrEqual Op = ">="
	OpLess           Op = "<"
)

// Filter restricts a query to documents whose Field satisfies Op against Value.
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Query selects documents from one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// WriteOptions controls Write. With Merge only the named fields are touched;
// without it the document is replaced.
type WriteOptions struct {
	Merge bool
}

// Merge is shorthand for WriteOptions{Merge: true}.
var Merge = WriteOptions{Merge: true}

// UpdateFunc computes the fields to merge into the current state of a
// document. Returning nil fields skips the write.
type UpdateFunc func(current Document) (Fields, error)

// Store is the live document store. Writes are atomic per document only.
// Snapshots for one subscription are delivered in write order; there is no
// ordering across subscriptions.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Query(ctx context.Context, q Query) (Snapshot, error)
	Write(ctx context.Context, path string, fields Fields, opts WriteOptions) error
	Delete(ctx context.Context, path string) error
	// Update performs an atomic read-modify-write on a single document.
	Update(ctx context.Context, path string, fn UpdateFunc) error
	// Subscribe delivers an initial snapshot and then one per change. The
	// returned function cancels the subscription. A callback already running
	// when it is called may still complete; callers that switch targets guard
	// with their own generation check.
	Subscribe(ctx context.Context, target Target, onSnapshot func(Snapshot), onError func(error)) (unsubscribe func())
}
