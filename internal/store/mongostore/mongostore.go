// Package mongostore implements store.Store on MongoDB. Every write publishes
// the touched path on Redis so subscriptions on any instance re-read and
// deliver a fresh snapshot.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/daijir/scripture-habit/internal/store"
)

const (
	fieldID     = "_id"
	fieldParent = "_parent"
	fieldRev    = "_rev"

	changeChannelPrefix = "store:changes:"
	maxUpdateAttempts   = 5

	replaceRevBase = int64(1) << 40
)

// Store is a store.Store backed by one Mongo collection per collection group
// ("groups/messages" is stored in "groups_messages").
type Store struct {
	db    *mongo.Database
	redis *redis.Client
	feed  *changeFeed
}

// New returns a Store. rdb may be nil, in which case subscriptions deliver
// only their initial snapshot.
func New(db *mongo.Database, rdb *redis.Client) *Store {
	s := &Store{db: db, redis: rdb}
	s.feed = newChangeFeed(rdb)
	return s
}

func collectionName(collectionPath string) string {
	return strings.ReplaceAll(store.CollectionGroup(collectionPath), "/", "_")
}

func (s *Store) collection(docPath string) *mongo.Collection {
	return s.db.Collection(collectionName(store.Parent(docPath)))
}

// EnsureIndexes creates the indexes queries rely on. Called on startup from
// main after Mongo has connected.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		"groups_messages": {
			{
				Keys:    bson.D{{Key: fieldParent, Value: 1}, {Key: "createdAt", Value: 1}},
				Options: options.Index().SetName("idx_parent_created"),
			},
			{
				Keys:    bson.D{{Key: fieldParent, Value: 1}, {Key: "noteId", Value: 1}},
				Options: options.Index().SetName("idx_parent_note"),
			},
		},
		"users_notes": {
			{
				Keys:    bson.D{{Key: fieldParent, Value: 1}, {Key: "createdAt", Value: -1}},
				Options: options.Index().SetName("idx_parent_created"),
			},
		},
		"users_groupStates": {
			{
				Keys:    bson.D{{Key: fieldParent, Value: 1}},
				Options: options.Index().SetName("idx_parent"),
			},
		},
		"groups": {
			{
				Keys:    bson.D{{Key: "inviteCode", Value: 1}},
				Options: options.Index().SetName("idx_invite_code").SetSparse(true),
			},
		},
	}
	for name, models := range indexes {
		col := s.db.Collection(name)
		for _, m := range models {
			if _, err := col.Indexes().CreateOne(ctx, m); err != nil {
				return fmt.Errorf("mongostore: index on %s: %w", name, err)
			}
		}
	}
	return nil
}

// Get returns the document at path.
func (s *Store) Get(ctx context.Context, path string) (store.Document, error) {
	doc := store.Document{Path: path, ID: store.ID(path)}
	var raw bson.M
	err := s.collection(path).FindOne(ctx, bson.M{fieldID: path}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return doc, nil
	}
	if err != nil {
		return doc, classify(err)
	}
	doc.Data = stripMeta(raw)
	doc.Exists = true
	return doc, nil
}

// Query runs q. Filters and ordering are pushed down to Mongo; ties are
// broken by _id ordering, which for ULID ids is insertion order.
func (s *Store) Query(ctx context.Context, q store.Query) (store.Snapshot, error) {
	filter := bson.M{fieldParent: q.Collection}
	for _, f := range q.Filters {
		cond, ok := filter[f.Field].(bson.M)
		if !ok {
			cond = bson.M{}
		}
		switch f.Op {
		case store.OpEqual, store.OpArrayContains:
			filter[f.Field] = f.Value
			continue
		case store.OpGreaterOrEqual:
			cond["$gte"] = f.Value
		case store.OpLess:
			cond["$lt"] = f.Value
		default:
			return store.Snapshot{}, fmt.Errorf("mongostore: unsupported operator %q", f.Op)
		}
		filter[f.Field] = cond
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: fieldID, Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.db.Collection(collectionName(q.Collection)).Find(ctx, filter, opts)
	if err != nil {
		return store.Snapshot{}, classify(err)
	}
	defer cur.Close(ctx)

	snap := store.Snapshot{Target: store.QueryTarget(q)}
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			log.Printf("mongostore: skipping undecodable document in %s: %v", q.Collection, err)
			continue
		}
		path, _ := raw[fieldID].(string)
		snap.Docs = append(snap.Docs, store.Document{
			Path:   path,
			ID:     store.ID(path),
			Data:   stripMeta(raw),
			Exists: true,
		})
	}
	if err := cur.Err(); err != nil {
		return store.Snapshot{}, classify(err)
	}
	return snap, nil
}

// Write applies fields at path. A merge write becomes a single update with
// $set/$inc/$addToSet/$pull/$unset; a replace write resolves transforms
// against an empty document.
func (s *Store) Write(ctx context.Context, path string, fields store.Fields, opts store.WriteOptions) error {
	col := s.collection(path)
	if !opts.Merge {
		data := replacement(path, fields, time.Now().UTC())
		_, err := col.ReplaceOne(ctx, bson.M{fieldID: path}, data, options.Replace().SetUpsert(true))
		if err != nil {
			return classify(err)
		}
		s.publish(ctx, path)
		return nil
	}

	update := buildUpdate(path, fields, time.Now().UTC())
	if _, err := col.UpdateOne(ctx, bson.M{fieldID: path}, update, options.Update().SetUpsert(true)); err != nil {
		return classify(err)
	}
	s.publish(ctx, path)
	return nil
}

// replacement builds a full document for a replace write. Its _rev starts at
// a random value far above any count merges reach, so an Update that read
// the previous version cannot match the new one.
func replacement(path string, fields store.Fields, now time.Time) map[string]interface{} {
	data := store.ApplyFields(nil, fields, now)
	data[fieldID] = path
	data[fieldParent] = store.Parent(path)
	data[fieldRev] = replaceRevBase + rand.Int63n(replaceRevBase)
	return data
}

// Delete removes the document at path.
func (s *Store) Delete(ctx context.Context, path string) error {
	if _, err := s.collection(path).DeleteOne(ctx, bson.M{fieldID: path}); err != nil {
		return classify(err)
	}
	s.publish(ctx, path)
	return nil
}

// Update is an optimistic read-modify-write guarded by the _rev counter.
func (s *Store) Update(ctx context.Context, path string, fn store.UpdateFunc) error {
	col := s.collection(path)
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var raw bson.M
		err := col.FindOne(ctx, bson.M{fieldID: path}).Decode(&raw)
		exists := true
		if errors.Is(err, mongo.ErrNoDocuments) {
			exists = false
		} else if err != nil {
			return classify(err)
		}

		current := store.Document{Path: path, ID: store.ID(path), Exists: exists}
		var rev int64
		if exists {
			rev = revOf(raw[fieldRev])
			current.Data = stripMeta(raw)
		}

		fields, err := fn(current)
		if err != nil {
			return err
		}
		if fields == nil {
			return nil
		}

		update := buildUpdate(path, fields, time.Now().UTC())
		var res *mongo.UpdateResult
		if exists {
			res, err = col.UpdateOne(ctx, bson.M{fieldID: path, fieldRev: raw[fieldRev]}, update)
		} else {
			// Upsert keyed on a missing _rev fails with a duplicate key error
			// if another writer created the document first.
			res, err = col.UpdateOne(ctx, bson.M{fieldID: path, fieldRev: bson.M{"$exists": false}}, update, options.Update().SetUpsert(true))
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
		}
		if err != nil {
			return classify(err)
		}
		if res.MatchedCount == 0 && res.UpsertedCount == 0 {
			log.Printf("mongostore: update conflict on %s at rev %d, retrying", path, rev)
			continue
		}
		s.publish(ctx, path)
		return nil
	}
	return fmt.Errorf("mongostore: %s: %w", path, store.ErrAborted)
}

func buildUpdate(path string, fields store.Fields, now time.Time) bson.M {
	set := bson.M{fieldParent: store.Parent(path)}
	inc := bson.M{fieldRev: int64(1)}
	addToSet := bson.M{}
	pull := bson.M{}
	unset := bson.M{}

	for field, value := range fields {
		switch t := value.(type) {
		case store.Increment:
			inc[field] = t.By
		case store.ArrayUnion:
			addToSet[field] = bson.M{"$each": t.Values}
		case store.ArrayRemove:
			pull[field] = bson.M{"$in": t.Values}
		case store.ServerTimestamp:
			set[field] = now
		case store.DeleteField:
			unset[field] = ""
		default:
			set[field] = value
		}
	}

	update := bson.M{"$set": set, "$inc": inc}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}
	if len(pull) > 0 {
		update["$pull"] = pull
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func revOf(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	}
	return 0
}

// stripMeta drops bookkeeping fields and converts BSON containers to plain
// Go maps and slices.
func stripMeta(raw bson.M) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if k == fieldID || k == fieldParent || k == fieldRev {
			continue
		}
		out[k] = plain(v)
	}
	return out
}

func plain(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.M:
		out := make(map[string]interface{}, len(t))
		for k, x := range t {
			out[k] = plain(x)
		}
		return out
	case primitive.D:
		return plain(t.Map())
	case primitive.A:
		out := make([]interface{}, len(t))
		for i, x := range t {
			out[i] = plain(x)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	}
	return v
}

// classify maps driver errors onto the store taxonomy.
func classify(err error) error {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 13: // Unauthorized
			return fmt.Errorf("%w: %v", store.ErrPermissionDenied, err)
		case 8000, 12502: // Atlas quota / space exceeded
			return fmt.Errorf("%w: %v", store.ErrResourceExhausted, err)
		}
	}
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) && writeErr.HasErrorCode(13) {
		return fmt.Errorf("%w: %v", store.ErrPermissionDenied, err)
	}
	return err
}

func (s *Store) publish(ctx context.Context, path string) {
	if s.redis == nil {
		return
	}
	channel := changeChannelPrefix + collectionName(store.Parent(path))
	if err := s.redis.Publish(ctx, channel, path).Err(); err != nil {
		log.Printf("mongostore: publish change for %s failed: %v", path, err)
	}
}

// Subscribe delivers an initial snapshot and re-reads the target whenever the
// change feed reports a write to it. Bursts of changes are coalesced; every
// delivered snapshot reflects state at least as new as the triggering write.
func (s *Store) Subscribe(ctx context.Context, target store.Target, onSnapshot func(store.Snapshot), onError func(error)) func() {
	subCtx, cancel := context.WithCancel(ctx)
	w := &watcher{target: target, signal: make(chan struct{}, 1)}
	w.signal <- struct{}{}

	id := s.feed.add(w)

	go func() {
		defer s.feed.remove(id)
		for {
			select {
			case <-subCtx.Done():
				return
			case <-w.signal:
			}
			snap, err := s.snapshot(subCtx, target)
			if subCtx.Err() != nil {
				return
			}
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onSnapshot != nil {
				onSnapshot(snap)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.feed.remove(id)
			cancel()
		})
	}
}

func (s *Store) snapshot(ctx context.Context, target store.Target) (store.Snapshot, error) {
	if target.Query != nil {
		return s.Query(ctx, *target.Query)
	}
	doc, err := s.Get(ctx, target.Path)
	if err != nil {
		return store.Snapshot{}, err
	}
	snap := store.Snapshot{Target: target}
	if doc.Exists {
		snap.Docs = []store.Document{doc}
	}
	return snap, nil
}
