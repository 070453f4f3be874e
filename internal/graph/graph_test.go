package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasMany(name string, owner EntityType, fk string) *Edge {
	return &Edge{Name: name, JoinEntity: owner, JoinKey: "id", PrimaryKey: fk, Collection: true}
}

func TestNew_PreservesOrder(t *testing.T) {
	post := NewVertex("Post", "", nil, hasMany("posts", "User", "user_id"))
	comment := NewVertex("Comment", "post_comments", []string{"id", "post_id"}, hasMany("comments", "Post", "post_id"))

	g, err := New(post, nil, comment)
	require.NoError(t, err)

	vertices := g.Vertices()
	require.Len(t, vertices, 2)
	assert.Equal(t, EntityType("Post"), vertices[0].Entity)
	assert.Equal(t, "Post", vertices[0].Table)
	assert.Equal(t, "post_comments", vertices[1].Table)

	v, ok := g.Vertex("Comment")
	require.True(t, ok)
	assert.Same(t, comment, v)
	_, ok = g.Vertex("Missing")
	assert.False(t, ok)
}

func TestNew_DuplicateVertex(t *testing.T) {
	_, err := New(NewVertex("Post", "", nil), NewVertex("Post", "", nil))
	require.ErrorIs(t, err, ErrMalformedGraph)
}

func TestNew_ScopeConflictInSameGroup(t *testing.T) {
	a := hasMany("posts", "User", "user_id")
	a.Disambiguator = "recent"
	a.Scope = Scope{OrderBy: []Order{{Column: "id", Desc: true}}}
	b := hasMany("authored_posts", "Author", "user_id")
	b.Disambiguator = "recent"
	b.Scope = Scope{Where: map[string]any{"published": true}}

	_, err := New(NewVertex("Post", "", nil, a, b))
	require.ErrorIs(t, err, ErrMalformedGraph)
	assert.Contains(t, err.Error(), "different filters")
}

func TestNew_SameScopeSharesGroup(t *testing.T) {
	a := hasMany("posts", "User", "user_id")
	a.Scope = Scope{Where: map[string]any{"published": true}}
	b := hasMany("posts", "Author", "user_id")
	b.Scope = Scope{Where: map[string]any{"published": true}}

	_, err := New(NewVertex("Post", "", nil, a, b))
	require.NoError(t, err)
}

func TestNew_SkippedEdgeIgnoresScopeConflict(t *testing.T) {
	a := hasMany("posts", "User", "user_id")
	b := hasMany("posts_cached", "User", "user_id")
	b.Scope = Scope{Expr: "deleted_at IS NULL"}
	b.SkipLoading = true

	_, err := New(NewVertex("Post", "", nil, a, b))
	require.NoError(t, err)
}

func TestNew_InvalidEdges(t *testing.T) {
	cyclic := hasMany("posts", "User", "user_id")
	cyclic.Through = cyclic

	tests := []struct {
		name string
		edge *Edge
	}{
		{name: "missing join key", edge: &Edge{Name: "posts", JoinEntity: "User", PrimaryKey: "user_id"}},
		{name: "missing name", edge: &Edge{JoinEntity: "User", JoinKey: "id", PrimaryKey: "user_id"}},
		{name: "question mark disambiguator", edge: &Edge{Name: "posts", JoinEntity: "User", JoinKey: "id", PrimaryKey: "user_id", Disambiguator: "a?b"}},
		{name: "cyclic through", edge: cyclic},
		{name: "through hop incomplete", edge: &Edge{Name: "posts", JoinEntity: "Post", JoinKey: "id", PrimaryKey: "post_id", Through: &Edge{JoinEntity: "User"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(NewVertex("Comment", "", nil, tt.edge))
			require.ErrorIs(t, err, ErrMalformedGraph)
		})
	}
}

func TestVertex_EdgesIsRepeatable(t *testing.T) {
	v := NewVertex("Post", "", nil, hasMany("a", "User", "user_id"), hasMany("b", "User", "author_id"))

	var first, second []string
	for e := range v.Edges() {
		first = append(first, e.Name)
	}
	for e := range v.Edges() {
		second = append(second, e.Name)
		break
	}
	assert.Equal(t, []string{"a", "b"}, first)
	assert.Equal(t, []string{"a"}, second)
	assert.Len(t, v.EdgeList(), 2)
}

func TestEdge_OwnerEntity(t *testing.T) {
	through := &Edge{
		Name: "user_comments", JoinEntity: "Post", JoinKey: "id", PrimaryKey: "post_id", Collection: true,
		Through: &Edge{Name: "posts", JoinEntity: "User", JoinKey: "id", PrimaryKey: "user_id"},
	}
	assert.Equal(t, ThroughEdge, through.Kind())
	assert.Equal(t, EntityType("User"), through.OwnerEntity())
	assert.Equal(t, "User.user_comments(through Post)", through.String())

	direct := hasMany("comments", "Post", "post_id")
	assert.Equal(t, DirectEdge, direct.Kind())
	assert.Equal(t, EntityType("Post"), direct.OwnerEntity())
	assert.Equal(t, "direct", direct.Kind().String())
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		term    string
		want    Order
		wantErr bool
	}{
		{term: "id", want: Order{Column: "id"}},
		{term: "created_at DESC", want: Order{Column: "created_at", Desc: true}},
		{term: "  name asc ", want: Order{Column: "name"}},
		{term: "", wantErr: true},
		{term: "id sideways", wantErr: true},
		{term: "id desc nulls", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			got, err := ParseOrder(tt.term)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScope_KeyAndEqual(t *testing.T) {
	assert.True(t, Scope{}.IsZero())
	assert.Equal(t, "", Scope{Expr: "   "}.Key())

	a := Scope{Where: map[string]any{"b": 2, "a": 1}, OrderBy: []Order{{Column: "id", Desc: true}}}
	b := Scope{Where: map[string]any{"a": 1, "b": 2}, OrderBy: []Order{{Column: "id", Desc: true}}}
	assert.True(t, a.Equal(b))

	c := Scope{Where: map[string]any{"a": 1, "b": 2}, OrderBy: []Order{{Column: "id"}}}
	assert.False(t, a.Equal(c))

	d := Scope{Expr: "x > ?", Args: []any{1}}
	e := Scope{Expr: "x > ?", Args: []any{2}}
	assert.False(t, d.Equal(e))
}
