package preloader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastpreload/internal/batch"
	"fastpreload/internal/graph"
	"fastpreload/internal/index"
	"fastpreload/internal/record"
)

// tableFetcher answers requests from in-memory tables, emulating the
// routing columns of the UNION ALL statement.
type tableFetcher struct {
	tables   map[graph.EntityType][]map[string]any
	requests []*batch.Request
	err      error
}

func (f *tableFetcher) Fetch(_ context.Context, req *batch.Request) (Rows, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	var rows []Row
	for ordinal, g := range req.Groups {
		keys := make(map[string]bool, len(g.Keys))
		for _, k := range g.Keys {
			keys[index.ValueKey(k)] = true
		}
		for _, fields := range f.tables[req.Entity] {
			if !keys[index.ValueKey(fields[g.PrimaryKey])] {
				continue
			}
			if !matchesWhere(fields, g.Scope.Where) {
				continue
			}
			copied := make(map[string]any, len(fields))
			for k, v := range fields {
				copied[k] = v
			}
			rows = append(rows, Row{Tag: g.Disambiguator, Group: ordinal, Fields: copied})
		}
	}
	return NewSliceRows(rows, nil), nil
}

func matchesWhere(fields map[string]any, where map[string]any) bool {
	for col, want := range where {
		if fields[col] != want {
			return false
		}
	}
	return true
}

func blogStore() *record.Store {
	store := record.NewStore()
	store.Ensure("User")
	for _, id := range []int64{1, 2, 3} {
		store.Append(record.New("User", map[string]any{"id": id}))
	}
	return store
}

func blogTables() map[graph.EntityType][]map[string]any {
	return map[graph.EntityType][]map[string]any{
		"Post": {
			{"id": int64(10), "user_id": int64(1), "editor_id": int64(2), "published": true},
			{"id": int64(11), "user_id": int64(1), "editor_id": int64(1), "published": false},
			{"id": int64(12), "user_id": int64(2), "editor_id": int64(1), "published": true},
		},
		"Profile": {
			{"id": int64(20), "user_id": int64(1)},
			{"id": int64(21), "user_id": int64(1)},
		},
		"Comment": {
			{"id": int64(30), "post_id": int64(10), "user_id": int64(1)},
			{"id": int64(31), "post_id": int64(12), "user_id": int64(2)},
			{"id": int64(32), "post_id": int64(12), "user_id": int64(1)},
		},
	}
}

func postsEdge() *graph.Edge {
	return &graph.Edge{Name: "posts", JoinEntity: "User", JoinKey: "id", PrimaryKey: "user_id", Collection: true}
}

func ids(records []*record.Record) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.Fields["id"].(int64))
	}
	return out
}

func TestAssociation_HasManyCompleteness(t *testing.T) {
	store := blogStore()
	fetcher := &tableFetcher{tables: blogTables()}
	v := graph.NewVertex("Post", "posts", nil, postsEdge())

	assoc := NewAssociation(v, store, index.New(), fetcher)
	require.NoError(t, assoc.Load(context.Background()))
	assert.Equal(t, StateCompleted, assoc.State())

	users := store.Records("User")
	assert.Equal(t, []int64{10, 11}, ids(users[0].Association("posts").Records()))
	assert.Equal(t, []int64{12}, ids(users[1].Association("posts").Records()))
	for _, u := range users {
		assert.True(t, u.Association("posts").Loaded(), "user %v", u.Fields["id"])
	}
	assert.Empty(t, users[2].Association("posts").Records())
	assert.Equal(t, 3, store.Len("Post"))

	stats := assoc.Stats()
	assert.Equal(t, 1, stats.Groups)
	assert.Equal(t, 3, stats.Keys)
	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 3, stats.Associated)
	assert.True(t, stats.Fetched)
	assert.Len(t, fetcher.requests, 1)
}

func TestAssociation_HasOneFirstWins(t *testing.T) {
	store := blogStore()
	fetcher := &tableFetcher{tables: blogTables()}
	v := graph.NewVertex("Profile", "profiles", nil,
		&graph.Edge{Name: "profile", JoinEntity: "User", JoinKey: "id", PrimaryKey: "user_id"})

	require.NoError(t, NewAssociation(v, store, index.New(), fetcher).Load(context.Background()))

	users := store.Records("User")
	require.NotNil(t, users[0].Association("profile").Target())
	assert.Equal(t, int64(20), users[0].Association("profile").Target().Fields["id"])
	assert.Nil(t, users[1].Association("profile").Target())
	assert.True(t, users[1].Association("profile").Loaded())
}

func TestAssociation_TagRoutesRowsToScopedEdge(t *testing.T) {
	store := blogStore()
	fetcher := &tableFetcher{tables: blogTables()}
	v := graph.NewVertex("Post", "posts", nil,
		postsEdge(),
		&graph.Edge{
			Name: "published_posts", JoinEntity: "User", JoinKey: "id", PrimaryKey: "user_id", Collection: true,
			Scope:         graph.Scope{Where: map[string]any{"published": true}},
			Disambiguator: "published_posts",
		},
	)

	assoc := NewAssociation(v, store, index.New(), fetcher)
	require.NoError(t, assoc.Load(context.Background()))
	require.Len(t, fetcher.requests, 1, "both groups share one round trip")
	assert.Len(t, fetcher.requests[0].Groups, 2)

	ada := store.Records("User")[0]
	assert.Equal(t, []int64{10, 11}, ids(ada.Association("posts").Records()))
	assert.Equal(t, []int64{10}, ids(ada.Association("published_posts").Records()))
	assert.Equal(t, 5, store.Len("Post"), "a row fetched by two groups is stored twice")
}

func TestAssociation_OwnersOnDifferentJoinKeysGetEachRowOnce(t *testing.T) {
	store := blogStore()
	for _, post := range blogTables()["Post"] {
		store.Append(record.New("Post", post))
	}
	fetcher := &tableFetcher{tables: blogTables()}
	v := graph.NewVertex("Comment", "comments", nil,
		&graph.Edge{Name: "comments", JoinEntity: "Post", JoinKey: "id", PrimaryKey: "post_id", Collection: true},
		&graph.Edge{Name: "comments", JoinEntity: "User", JoinKey: "id", PrimaryKey: "user_id", Collection: true},
	)
	_, err := graph.New(v)
	require.NoError(t, err)

	assoc := NewAssociation(v, store, index.New(), fetcher)
	require.NoError(t, assoc.Load(context.Background()))
	require.Len(t, fetcher.requests, 1)
	require.Len(t, fetcher.requests[0].Groups, 2, "same scope, different join keys")

	posts := store.Records("Post")
	assert.Equal(t, []int64{30}, ids(posts[0].Association("comments").Records()))
	assert.Empty(t, posts[1].Association("comments").Records())
	assert.Equal(t, []int64{31, 32}, ids(posts[2].Association("comments").Records()))

	users := store.Records("User")
	assert.Equal(t, []int64{30, 32}, ids(users[0].Association("comments").Records()))
	assert.Equal(t, []int64{31}, ids(users[1].Association("comments").Records()))
	assert.Empty(t, users[2].Association("comments").Records())
	assert.Equal(t, 6, assoc.Stats().Associated)
}

func TestAssociation_ScopedEdgeOnlySeesItsOwnGroup(t *testing.T) {
	store := blogStore()
	fetcher := &tableFetcher{tables: blogTables()}
	v := graph.NewVertex("Post", "posts", nil,
		&graph.Edge{
			Name: "published_posts", JoinEntity: "User", JoinKey: "id", PrimaryKey: "user_id", Collection: true,
			Scope:         graph.Scope{Where: map[string]any{"published": true}},
			Disambiguator: "x",
		},
		&graph.Edge{
			Name: "edited_posts", JoinEntity: "User", JoinKey: "id", PrimaryKey: "editor_id", Collection: true,
			Disambiguator: "x",
		},
	)
	_, err := graph.New(v)
	require.NoError(t, err)

	require.NoError(t, NewAssociation(v, store, index.New(), fetcher).Load(context.Background()))

	users := store.Records("User")
	assert.Equal(t, []int64{10}, ids(users[0].Association("published_posts").Records()))
	assert.Equal(t, []int64{11, 12}, ids(users[0].Association("edited_posts").Records()))
	assert.Equal(t, []int64{12}, ids(users[1].Association("published_posts").Records()))
	assert.Equal(t, []int64{10}, ids(users[1].Association("edited_posts").Records()))
	for _, u := range users {
		for _, p := range u.Association("published_posts").Records() {
			assert.Equal(t, true, p.Fields["published"], "post %v", p.Fields["id"])
		}
	}
}

func TestAssociation_EquivalentEdgesAppendTwice(t *testing.T) {
	store := blogStore()
	fetcher := &tableFetcher{tables: blogTables()}
	v := graph.NewVertex("Post", "posts", nil, postsEdge(), postsEdge())

	require.NoError(t, NewAssociation(v, store, index.New(), fetcher).Load(context.Background()))
	assert.Equal(t, []int64{12, 12}, ids(store.Records("User")[1].Association("posts").Records()))
}

func TestAssociation_SkipLoadingLeavesSlotAlone(t *testing.T) {
	store := blogStore()
	fetcher := &tableFetcher{tables: blogTables()}
	skipped := postsEdge()
	skipped.SkipLoading = true
	v := graph.NewVertex("Post", "posts", nil, skipped)

	assoc := NewAssociation(v, store, index.New(), fetcher)
	require.NoError(t, assoc.Load(context.Background()))
	assert.Empty(t, fetcher.requests)
	assert.False(t, store.Records("User")[0].HasAssociation("posts"))
}

func TestAssociation_NoKeysSkipsFetch(t *testing.T) {
	store := record.NewStore()
	store.Append(record.New("User", map[string]any{"id": nil}))
	fetcher := FetcherFunc(func(context.Context, *batch.Request) (Rows, error) {
		t.Fatal("fetch must not run without keys")
		return nil, nil
	})
	v := graph.NewVertex("Post", "posts", nil, postsEdge())

	assoc := NewAssociation(v, store, index.New(), fetcher)
	require.NoError(t, assoc.Load(context.Background()))
	assert.False(t, assoc.Stats().Fetched)
	assert.True(t, store.Records("User")[0].Association("posts").Loaded())
}

func TestAssociation_FetchErrorFails(t *testing.T) {
	store := blogStore()
	boom := errors.New("connection reset")
	fetcher := &tableFetcher{err: boom}
	v := graph.NewVertex("Post", "posts", nil, postsEdge())

	assoc := NewAssociation(v, store, index.New(), fetcher)
	err := assoc.Load(context.Background())
	require.ErrorIs(t, err, ErrFetch)
	require.ErrorIs(t, err, boom)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, graph.EntityType("Post"), fetchErr.Entity)
	assert.Equal(t, StateFailed, assoc.State())
	assert.False(t, store.Records("User")[0].Association("posts").Loaded())
}

func TestAssociation_RowsErrorFails(t *testing.T) {
	store := blogStore()
	boom := errors.New("row decode")
	fetcher := FetcherFunc(func(context.Context, *batch.Request) (Rows, error) {
		return NewSliceRows([]Row{{Fields: map[string]any{"id": int64(10), "user_id": int64(1)}}}, boom), nil
	})
	v := graph.NewVertex("Post", "posts", nil, postsEdge())

	assoc := NewAssociation(v, store, index.New(), fetcher)
	err := assoc.Load(context.Background())
	require.ErrorIs(t, err, ErrFetch)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, assoc.State())
}

func TestAssociation_NilRowsFails(t *testing.T) {
	store := blogStore()
	fetcher := FetcherFunc(func(context.Context, *batch.Request) (Rows, error) {
		return nil, nil
	})
	assoc := NewAssociation(graph.NewVertex("Post", "posts", nil, postsEdge()), store, index.New(), fetcher)

	var err error
	require.NotPanics(t, func() { err = assoc.Load(context.Background()) })
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, StateFailed, assoc.State())
	assert.False(t, store.Records("User")[0].Association("posts").Loaded())
}

func TestAssociation_UnroutableRowFails(t *testing.T) {
	tests := []struct {
		name string
		row  Row
	}{
		{name: "ordinal out of range", row: Row{Group: 3}},
		{name: "tag mismatch", row: Row{Tag: "other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := blogStore()
			row := tt.row
			row.Fields = map[string]any{"id": int64(10), "user_id": int64(1)}
			fetcher := FetcherFunc(func(context.Context, *batch.Request) (Rows, error) {
				return NewSliceRows([]Row{row}, nil), nil
			})
			assoc := NewAssociation(graph.NewVertex("Post", "posts", nil, postsEdge()), store, index.New(), fetcher)

			err := assoc.Load(context.Background())
			require.ErrorIs(t, err, ErrFetch)
			require.ErrorIs(t, err, errUnroutableRow)
			assert.Equal(t, StateFailed, assoc.State())
			assert.Empty(t, store.Records("User")[0].Association("posts").Records())
		})
	}
}

func TestAssociation_LoadTwice(t *testing.T) {
	store := blogStore()
	assoc := NewAssociation(graph.NewVertex("Post", "posts", nil, postsEdge()), store, index.New(), &tableFetcher{tables: blogTables()})
	require.NoError(t, assoc.Load(context.Background()))
	require.ErrorIs(t, assoc.Load(context.Background()), ErrAlreadyLoaded)
}

func TestRun_ThroughEdgeAcrossVertices(t *testing.T) {
	post := graph.NewVertex("Post", "posts", nil, postsEdge())
	comment := graph.NewVertex("Comment", "comments", nil,
		&graph.Edge{Name: "comments", JoinEntity: "Post", JoinKey: "id", PrimaryKey: "post_id", Collection: true},
		&graph.Edge{
			Name: "user_comments", JoinEntity: "Post", JoinKey: "id", PrimaryKey: "post_id", Collection: true,
			Through: &graph.Edge{Name: "posts", JoinEntity: "User", JoinKey: "id", PrimaryKey: "user_id"},
		},
	)
	g, err := graph.New(post, comment)
	require.NoError(t, err)

	store := blogStore()
	fetcher := &tableFetcher{tables: blogTables()}
	report, err := New(fetcher).Run(context.Background(), g, store)
	require.NoError(t, err)

	assert.NotEmpty(t, report.PassID)
	assert.Len(t, report.Vertices, 2)
	assert.Equal(t, 2, report.Fetches())

	users := store.Records("User")
	assert.Equal(t, []int64{30}, ids(users[0].Association("user_comments").Records()))
	assert.Equal(t, []int64{31, 32}, ids(users[1].Association("user_comments").Records()))
	assert.True(t, users[2].Association("user_comments").Loaded())

	posts := store.Records("Post")
	assert.Equal(t, []int64{30}, ids(posts[0].Association("comments").Records()))
	assert.Empty(t, posts[1].Association("comments").Records())
	assert.True(t, posts[1].Association("comments").Loaded())
}

func TestRun_AbortsOnFirstError(t *testing.T) {
	g, err := graph.New(
		graph.NewVertex("Post", "posts", nil, postsEdge()),
		graph.NewVertex("Comment", "comments", nil,
			&graph.Edge{Name: "comments", JoinEntity: "Post", JoinKey: "id", PrimaryKey: "post_id", Collection: true}),
	)
	require.NoError(t, err)

	calls := 0
	fetcher := FetcherFunc(func(context.Context, *batch.Request) (Rows, error) {
		calls++
		return nil, errors.New("timeout")
	})
	report, err := New(fetcher).Run(context.Background(), g, blogStore())
	require.ErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "load Post")
	assert.Equal(t, 1, calls)
	assert.Len(t, report.Vertices, 1)
	assert.Equal(t, 0, report.Fetches())
}

func TestRun_WithNilMetrics(t *testing.T) {
	g, err := graph.New(graph.NewVertex("Post", "posts", nil, postsEdge()))
	require.NoError(t, err)

	_, err = New(&tableFetcher{tables: blogTables()}, WithMetrics(nil), nil).Run(context.Background(), g, blogStore())
	require.NoError(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "distributing", StateDistributing.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestSliceRows(t *testing.T) {
	rows := NewSliceRows([]Row{{Tag: "a"}, {Tag: "b"}}, nil)
	assert.Equal(t, Row{}, rows.Row())
	var tags []string
	for rows.Next() {
		tags = append(tags, rows.Row().Tag)
	}
	assert.Equal(t, []string{"a", "b"}, tags)
	assert.NoError(t, rows.Err())
	assert.NoError(t, rows.Close())
}
