package graphfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastpreload/internal/graph"
)

const blogGraph = `
naming:
  plural_overrides:
    person: persons
root:
  entity: User
  columns: [id, name]
vertices:
  - entity: Post
    edges:
      - owner: User
        kind: has_many
      - owner: User
        kind: has_many
        name: published_posts
        scope:
          where: {published: true}
          order_by: ["created_at desc"]
  - entity: Comment
    table: post_comments
    columns: [id, post_id, body]
    edges:
      - owner: Post
      - owner: Post
        name: user_comments
        through:
          owner: User
  - entity: Person
    edges:
      - owner: Comment
        kind: belongs_to
        join_key: author_id
`

func TestParse_Defaults(t *testing.T) {
	def, err := Parse([]byte(blogGraph))
	require.NoError(t, err)

	assert.Equal(t, graph.EntityType("User"), def.RootEntity())
	assert.Equal(t, "users", def.Root.Table)
	assert.Equal(t, []string{"id", "name"}, def.Root.Columns)

	vertices := def.Graph.Vertices()
	require.Len(t, vertices, 3)

	post := vertices[0]
	assert.Equal(t, "posts", post.Table)
	edges := post.EdgeList()
	require.Len(t, edges, 2)
	assert.Equal(t, "posts", edges[0].Name)
	assert.Equal(t, graph.EntityType("User"), edges[0].JoinEntity)
	assert.Equal(t, "id", edges[0].JoinKey)
	assert.Equal(t, "user_id", edges[0].PrimaryKey)
	assert.True(t, edges[0].Collection)
	assert.Empty(t, edges[0].Disambiguator)

	assert.Equal(t, "published_posts", edges[1].Name)
	assert.Equal(t, "published_posts", edges[1].Disambiguator)
	assert.Equal(t, map[string]any{"published": true}, edges[1].Scope.Where)
	assert.Equal(t, []graph.Order{{Column: "created_at", Desc: true}}, edges[1].Scope.OrderBy)

	comment := vertices[1]
	assert.Equal(t, "post_comments", comment.Table)
	assert.Equal(t, []string{"id", "post_id", "body"}, comment.Columns)
	cedges := comment.EdgeList()
	require.Len(t, cedges, 2)
	assert.Equal(t, "comments", cedges[0].Name)
	assert.Equal(t, "post_id", cedges[0].PrimaryKey)

	through := cedges[1]
	assert.Equal(t, graph.ThroughEdge, through.Kind())
	assert.Equal(t, graph.EntityType("User"), through.OwnerEntity())
	assert.Equal(t, graph.EntityType("Post"), through.JoinEntity)
	assert.Equal(t, "post_id", through.PrimaryKey)
	require.NotNil(t, through.Through)
	assert.Equal(t, graph.EntityType("User"), through.Through.JoinEntity)
	assert.Equal(t, "user_id", through.Through.PrimaryKey)

	person := vertices[2]
	assert.Equal(t, "persons", person.Table)
	pedges := person.EdgeList()
	require.Len(t, pedges, 1)
	assert.Equal(t, "author", pedges[0].Name)
	assert.Equal(t, "author_id", pedges[0].JoinKey)
	assert.Equal(t, "id", pedges[0].PrimaryKey)
	assert.False(t, pedges[0].Collection)
}

func TestParse_DefaultRootIsFirstOwner(t *testing.T) {
	def, err := Parse([]byte(`
vertices:
  - entity: comments
    edges:
      - owner: posts
        kind: has_one
`))
	require.NoError(t, err)
	assert.Equal(t, graph.EntityType("posts"), def.RootEntity())
	assert.Equal(t, "posts", def.Root.Table)

	e := def.Graph.Vertices()[0].EdgeList()[0]
	assert.Equal(t, "comment", e.Name)
	assert.False(t, e.Collection)
	assert.Equal(t, "post_id", e.PrimaryKey)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		malform bool
	}{
		{name: "empty", yaml: "", wantErr: "empty"},
		{name: "unknown field", yaml: "vertices:\n  - entity: a\n    colums: [id]\n", wantErr: "colums"},
		{name: "missing entity", yaml: "vertices:\n  - table: a\n", wantErr: "entity is required"},
		{name: "missing owner", yaml: "vertices:\n  - entity: a\n    edges:\n      - kind: has_many\n", wantErr: "owner is required"},
		{name: "bad kind", yaml: "vertices:\n  - entity: a\n    edges:\n      - owner: b\n        kind: many_to_many\n", wantErr: "unknown kind"},
		{name: "bad order", yaml: "vertices:\n  - entity: a\n    edges:\n      - owner: b\n        scope:\n          order_by: [\"x sideways\"]\n", wantErr: "invalid order term"},
		{
			name: "conflicting scopes",
			yaml: `
vertices:
  - entity: posts
    edges:
      - owner: users
        disambiguator: g
        scope: {where: {published: true}}
      - owner: users
        name: drafts
        disambiguator: g
        scope: {where: {published: false}}
`,
			wantErr: "different filters",
			malform: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			if tt.malform {
				assert.ErrorIs(t, err, graph.ErrMalformedGraph)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(blogGraph), 0o600))

	def, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, def.Graph.Vertices(), 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
