package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Association(t *testing.T) {
	r := New("User", nil)
	require.NotNil(t, r.Fields)
	assert.False(t, r.HasAssociation("posts"))

	posts := r.Association("posts")
	profile := r.Association("profile")
	assert.Same(t, posts, r.Association("posts"))
	assert.NotSame(t, posts, profile)
	assert.True(t, r.HasAssociation("posts"))
	assert.Equal(t, []string{"posts", "profile"}, r.AssociationNames())
}

func TestRecord_Get(t *testing.T) {
	r := New("User", map[string]any{"id": int64(1), "deleted_at": nil})

	v, ok := r.Get("id")
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)

	v, ok = r.Get("deleted_at")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestSlot(t *testing.T) {
	a := New("Post", map[string]any{"id": 1})
	b := New("Post", map[string]any{"id": 2})

	var s Slot
	assert.Equal(t, SlotUnknown, s.State())
	assert.Equal(t, "unknown", s.State().String())

	assert.True(t, s.SetIfEmpty(a))
	assert.False(t, s.SetIfEmpty(b))
	assert.Same(t, a, s.Target())

	var c Slot
	c.Append(a)
	c.Append(a)
	assert.Len(t, c.Records(), 2)

	c.MarkLoaded()
	c.MarkLoaded()
	assert.True(t, c.Loaded())
	assert.Equal(t, "loaded", c.State().String())
}

func TestStore(t *testing.T) {
	s := NewStore()
	s.Ensure("User")
	assert.Empty(t, s.Records("User"))
	assert.Equal(t, 0, s.Len("User"))

	u1 := New("User", map[string]any{"id": 1})
	u2 := New("User", map[string]any{"id": 2})
	assert.Equal(t, 0, s.Append(u1))
	assert.Equal(t, 1, s.Append(u2))
	s.AppendAll(New("Post", nil), New("Post", nil))

	assert.Same(t, u2, s.At("User", 1))
	assert.Nil(t, s.At("User", 2))
	assert.Nil(t, s.At("User", -1))
	assert.Equal(t, 2, s.Len("Post"))

	s.Ensure("User")
	assert.Equal(t, 2, s.Len("User"), "Ensure keeps existing records")
}
