package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyFieldsTransforms(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	data := map[string]interface{}{
		"messageCount": int32(4),
		"members":      []interface{}{"a", "b"},
		"dailyActivity": map[string]interface{}{
			"date":          "2026-01-01",
			"activeMembers": []interface{}{"a"},
		},
		"stale": true,
	}

	ApplyFields(data, Fields{
		"messageCount":                Inc(2),
		"noteCount":                   Inc(1),
		"members":                     Union("b", "c"),
		"dailyActivity.activeMembers": Remove("a"),
		"dailyActivity.date":          "2026-01-02",
		"updatedAt":                   ServerTimestamp{},
		"stale":                       DeleteField{},
	}, now)

	assert.Equal(t, int64(6), data["messageCount"])
	assert.Equal(t, int64(1), data["noteCount"])
	assert.Equal(t, []interface{}{"a", "b", "c"}, data["members"])
	assert.Empty(t, GetPath(data, "dailyActivity.activeMembers"))
	assert.Equal(t, "2026-01-02", GetPath(data, "dailyActivity.date"))
	assert.Equal(t, now, data["updatedAt"])
	_, ok := data["stale"]
	assert.False(t, ok)
}

func TestArrayUnionIsIdempotent(t *testing.T) {
	data := map[string]interface{}{}
	for i := 0; i < 3; i++ {
		ApplyFields(data, Fields{"reactions": Union(map[string]interface{}{"userId": "u1", "nickname": "Ann"})}, time.Now())
	}
	assert.Len(t, data["reactions"], 1)
}

func TestMatchesAndSort(t *testing.T) {
	docs := []Document{
		{ID: "m1", Data: map[string]interface{}{"createdAt": int64(300), "noteId": "n1", "tags": []interface{}{"x"}}},
		{ID: "m2", Data: map[string]interface{}{"createdAt": int64(100), "noteId": "n2"}},
		{ID: "m3", Data: map[string]interface{}{"createdAt": int64(200), "noteId": "n1", "tags": []interface{}{"x", "y"}}},
	}

	q := Query{
		Filters: []Filter{{Field: "noteId", Op: OpEqual, Value: "n1"}},
		OrderBy: "createdAt",
	}
	var hits []Document
	for _, d := range docs {
		if Matches(d, q) {
			hits = append(hits, d)
		}
	}
	hits = SortAndLimit(hits, q)
	assert.Equal(t, []string{"m3", "m1"}, []string{hits[0].ID, hits[1].ID})

	q = Query{Filters: []Filter{{Field: "tags", Op: OpArrayContains, Value: "y"}}}
	assert.False(t, Matches(docs[0], q))
	assert.True(t, Matches(docs[2], q))

	q = Query{Filters: []Filter{{Field: "createdAt", Op: OpGreaterOrEqual, Value: int64(200)}, {Field: "createdAt", Op: OpLess, Value: int64(300)}}}
	assert.False(t, Matches(docs[0], q))
	assert.False(t, Matches(docs[1], q))
	assert.True(t, Matches(docs[2], q))
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "groups/g1/messages/m1", MessagePath("g1", "m1"))
	assert.Equal(t, "m1", ID("groups/g1/messages/m1"))
	assert.Equal(t, "groups/g1/messages", Parent("groups/g1/messages/m1"))
	assert.True(t, IsDocPath("users/u1"))
	assert.False(t, IsDocPath("users/u1/notes"))
	assert.Equal(t, "groups/messages", CollectionGroup("groups/g1/messages"))
	assert.Equal(t, "users/groupStates", CollectionGroup(ReadStatesPath("u1")))
}
