// Package memstore is an in-process implementation of store.Store used by
// tests and local development.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/daijir/scripture-habit/internal/store"
)

type entry struct {
	data map[string]interface{}
	seq  int64
}

// Store keeps every document in memory. Each subscription has its own
// delivery goroutine so snapshots for one subscription arrive in write order.
type Store struct {
	mu       sync.Mutex
	docs     map[string]*entry
	seq      int64
	subs     map[int64]*subscription
	nextSub  int64
	readErrs map[string]error
	writeErr map[string]error

	// Now supplies commit time for ServerTimestamp fields.
	Now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		docs:     make(map[string]*entry),
		subs:     make(map[int64]*subscription),
		readErrs: make(map[string]error),
		writeErr: make(map[string]error),
		Now:      time.Now,
	}
}

// FailReads makes every read and subscription under prefix fail with err.
// A nil err clears the failure.
func (s *Store) FailReads(prefix string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.readErrs, prefix)
		return
	}
	s.readErrs[prefix] = err
}

// FailWrites makes every write under prefix fail with err. A nil err clears
// the failure.
func (s *Store) FailWrites(prefix string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.writeErr, prefix)
		return
	}
	s.writeErr[prefix] = err
}

// Seed writes raw data without transforms or notifications.
func (s *Store) Seed(path string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.docs[path] = &entry{data: deepCopy(data), seq: s.seq}
}

func matchErr(errs map[string]error, path string) error {
	for prefix, err := range errs {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return err
		}
	}
	return nil
}

// Get returns the document at path; a missing document has Exists=false.
func (s *Store) Get(ctx context.Context, path string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := matchErr(s.readErrs, path); err != nil {
		return store.Document{}, err
	}
	return s.docLocked(path), nil
}

// Query runs q against the current state.
func (s *Store) Query(ctx context.Context, q store.Query) (store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := matchErr(s.readErrs, q.Collection); err != nil {
		return store.Snapshot{}, err
	}
	return s.queryLocked(q), nil
}

// Write applies fields to path, replacing the document unless opts.Merge.
func (s *Store) Write(ctx context.Context, path string, fields store.Fields, opts store.WriteOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := matchErr(s.writeErr, path); err != nil {
		return err
	}
	s.writeLocked(path, fields, opts.Merge)
	return nil
}

// Delete removes the document at path. Deleting a missing document is not an
// error.
func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := matchErr(s.writeErr, path); err != nil {
		return err
	}
	if _, ok := s.docs[path]; !ok {
		return nil
	}
	delete(s.docs, path)
	s.notifyLocked(path)
	return nil
}

// Update runs fn and merges its fields while holding the store lock, so no
// other write can interleave. fn must not call back into the store.
func (s *Store) Update(ctx context.Context, path string, fn store.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := matchErr(s.writeErr, path); err != nil {
		return err
	}
	fields, err := fn(s.docLocked(path))
	if err != nil {
		return err
	}
	if fields == nil {
		return nil
	}
	s.writeLocked(path, fields, true)
	return nil
}

// Subscribe delivers the current snapshot of target and then one snapshot per
// write that touches it.
func (s *Store) Subscribe(ctx context.Context, target store.Target, onSnapshot func(store.Snapshot), onError func(error)) func() {
	sub := &subscription{
		target:     target,
		onSnapshot: onSnapshot,
		onError:    onError,
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	if err := matchErr(s.readErrs, target.Path); err != nil {
		sub.push(event{err: err})
	} else {
		s.subs[id] = sub
		sub.push(event{snap: s.snapshotLocked(target)})
	}
	s.mu.Unlock()

	go sub.run()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(sub.done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.done:
		}
	}()
	return unsubscribe
}

func (s *Store) writeLocked(path string, fields store.Fields, merge bool) {
	e, ok := s.docs[path]
	if !ok {
		s.seq++
		e = &entry{seq: s.seq}
		s.docs[path] = e
	}
	if !merge || e.data == nil {
		e.data = make(map[string]interface{})
	}
	store.ApplyFields(e.data, fields, s.Now())
	s.notifyLocked(path)
}

func (s *Store) docLocked(path string) store.Document {
	doc := store.Document{Path: path, ID: store.ID(path)}
	if e, ok := s.docs[path]; ok {
		doc.Data = deepCopy(e.data)
		doc.Exists = true
	}
	return doc
}

func (s *Store) queryLocked(q store.Query) store.Snapshot {
	type hit struct {
		doc store.Document
		seq int64
	}
	var hits []hit
	for path, e := range s.docs {
		if store.Parent(path) != q.Collection {
			continue
		}
		doc := store.Document{Path: path, ID: store.ID(path), Data: e.data, Exists: true}
		if !store.Matches(doc, q) {
			continue
		}
		hits = append(hits, hit{doc: doc, seq: e.seq})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })

	docs := make([]store.Document, 0, len(hits))
	for _, h := range hits {
		h.doc.Data = deepCopy(h.doc.Data)
		docs = append(docs, h.doc)
	}
	return store.Snapshot{Target: store.QueryTarget(q), Docs: store.SortAndLimit(docs, q)}
}

func (s *Store) snapshotLocked(target store.Target) store.Snapshot {
	if target.Query != nil {
		return s.queryLocked(*target.Query)
	}
	doc := s.docLocked(target.Path)
	snap := store.Snapshot{Target: target}
	if doc.Exists {
		snap.Docs = []store.Document{doc}
	}
	return snap
}

func (s *Store) notifyLocked(path string) {
	for _, sub := range s.subs {
		if sub.target.Query != nil {
			if store.Parent(path) != sub.target.Query.Collection {
				continue
			}
		} else if sub.target.Path != path {
			continue
		}
		sub.push(event{snap: s.snapshotLocked(sub.target)})
	}
}

type event struct {
	snap store.Snapshot
	err  error
}

type subscription struct {
	target     store.Target
	onSnapshot func(store.Snapshot)
	onError    func(error)

	mu     sync.Mutex
	queue  []event
	signal chan struct{}
	done   chan struct{}
}

func (sub *subscription) push(ev event) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, ev)
	sub.mu.Unlock()
	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

func (sub *subscription) pop() (event, bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.queue) == 0 {
		return event{}, false
	}
	ev := sub.queue[0]
	sub.queue = sub.queue[1:]
	return ev, true
}

func (sub *subscription) run() {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.signal:
		}
		for {
			ev, ok := sub.pop()
			if !ok {
				break
			}
			select {
			case <-sub.done:
				return
			default:
			}
			if ev.err != nil {
				if sub.onError != nil {
					sub.onError(ev.err)
				}
				continue
			}
			if sub.onSnapshot != nil {
				sub.onSnapshot(ev.snap)
			}
		}
	}
}

func deepCopy(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopy(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, x := range t {
			out[i] = copyValue(x)
		}
		return out
	}
	return v
}
