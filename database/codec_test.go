package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status string

type record struct {
	ID       string                 `bson:"id"`
	Count    int                    `bson:"count"`
	Status   status                 `bson:"status"`
	Tags     []string               `bson:"tags"`
	Req      map[string]interface{} `bson:"req"`
	Modified time.Time              `bson:"modified"`
}

func TestEncodeNormalizes(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 6789123, time.UTC)
	d, err := Encode(record{
		ID:       "a",
		Count:    3,
		Status:   "queued",
		Tags:     []string{"x", "y"},
		Req:      map[string]interface{}{"cpu": 2, "os": []string{"RHEL_7"}},
		Modified: now,
	})
	require.NoError(t, err)

	assert.Equal(t, 3.0, d["count"])
	assert.Equal(t, "queued", d["status"])
	assert.Equal(t, []interface{}{"x", "y"}, d["tags"])
	assert.Equal(t, 2.0, d.Float("req.cpu"))
	assert.Equal(t, []interface{}{"RHEL_7"}, d["req"].(Doc)["os"])
	assert.Equal(t, now.Truncate(time.Millisecond), d["modified"])
}

func TestDecodeRoundTrip(t *testing.T) {
	in := record{ID: "a", Count: 3, Status: "waiting", Tags: []string{"x"}}
	d, err := Encode(in)
	require.NoError(t, err)

	var out record
	require.NoError(t, Decode(d, &out))
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Count, out.Count)
	assert.Equal(t, in.Status, out.Status)
	assert.Equal(t, in.Tags, out.Tags)
}

func TestPaths(t *testing.T) {
	d := Doc{}
	SetPath(d, "requirements.memory", 2.0)
	v, ok := Lookup(d, "requirements.memory")
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)

	_, ok = Lookup(d, "requirements.cpu")
	assert.False(t, ok)

	UnsetPath(d, "requirements.memory")
	_, ok = Lookup(d, "requirements.memory")
	assert.False(t, ok)
}

func TestCompare(t *testing.T) {
	c, ok := Compare(1.0, 2.0)
	assert.True(t, ok)
	assert.Equal(t, -1, c)

	_, ok = Compare(1.0, "a")
	assert.False(t, ok)

	assert.True(t, Equal([]interface{}{"a"}, []interface{}{"a"}))
	assert.False(t, Equal(nil, 0.0))
}

func TestSorted(t *testing.T) {
	opts := Sorted("-priority", "task_id")
	assert.Equal(t, []SortField{{Field: "priority", Desc: true}, {Field: "task_id"}}, opts.Sort)
}
