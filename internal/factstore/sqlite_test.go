package factstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInsertAndProperties(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx)
	require.NoError(t, err)

	require.NoError(t, store.SetText(ctx, id, "kind", "iterate"))
	require.NoError(t, store.SetInt(ctx, id, "repository", 42))

	kind, ok, err := store.GetText(ctx, id, "kind")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "iterate", kind)

	repo, ok, err := store.GetInt(ctx, id, "repository")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), repo)

	_, ok, err = store.GetInt(ctx, id, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	props, err := store.Properties(ctx, id)
	require.NoError(t, err)
	assert.Len(t, props, 2)
}

func TestInsertWithCreatesFactAndProperties(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertWith(ctx,
		Property{Name: "kind", IsText: true, Text: "iterate"},
		Property{Name: "source", IsText: true, Text: "github"},
		Property{Name: "repository", Int: 42},
		Property{Name: "issues", Int: 7},
	)
	require.NoError(t, err)

	props, err := store.Properties(ctx, id)
	require.NoError(t, err)
	assert.Len(t, props, 4)

	kind, ok, err := store.GetText(ctx, id, "kind")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "iterate", kind)

	issues, ok, err := store.GetInt(ctx, id, "issues")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), issues)
}

func TestInsertWithEmptyIsJustAFact(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertWith(ctx)
	require.NoError(t, err)

	props, err := store.Properties(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, props)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReplaceIntKeepsOtherProperties(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx)
	require.NoError(t, err)

	require.NoError(t, store.ReplaceInt(ctx, id, "issues", 10))
	require.NoError(t, store.ReplaceInt(ctx, id, "pulls", 7))
	require.NoError(t, store.ReplaceInt(ctx, id, "issues", 11))

	issues, ok, err := store.GetInt(ctx, id, "issues")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(11), issues)

	pulls, ok, err := store.GetInt(ctx, id, "pulls")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), pulls)

	// Replace collapses multi-valued properties to the single new value.
	props, err := store.Properties(ctx, id)
	require.NoError(t, err)
	assert.Len(t, props, 2)
}

func TestFirstAndFacts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := store.Insert(ctx)
		require.NoError(t, err)
		require.NoError(t, store.SetText(ctx, id, "what", "repository"))
		require.NoError(t, store.SetInt(ctx, id, "repository", int64(100+i)))
		ids = append(ids, id)
	}

	first, ok, err := store.First(ctx, Eq("what", Text("repository")))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ids[0], first)

	all, err := store.Facts(ctx, Eq("what", Text("repository")))
	require.NoError(t, err)
	assert.Equal(t, ids, all)

	_, ok, err = store.First(ctx, Eq("what", Text("nothing")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSelectOneAggregates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, v := range []int64{5, 1, 9} {
		id, err := store.Insert(ctx)
		require.NoError(t, err)
		require.NoError(t, store.SetText(ctx, id, "what", "issue-was-opened"))
		require.NoError(t, store.SetInt(ctx, id, "repository", 7))
		require.NoError(t, store.SetInt(ctx, id, "issue", v))
	}

	template := Query{
		Conds: []Cond{
			Eq("what", Text("issue-was-opened")),
			Eq("repository", Param("repository")),
			Gt("issue", Param("before")),
		},
		Pick: "issue",
		Agg:  AggMin,
	}

	q, err := template.Bind(map[string]int64{"repository": 7, "before": 1})
	require.NoError(t, err)

	next, ok, err := store.SelectOne(ctx, q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), next)

	q, err = template.Bind(map[string]int64{"repository": 7, "before": 9})
	require.NoError(t, err)
	_, ok, err = store.SelectOne(ctx, q)
	require.NoError(t, err)
	assert.False(t, ok)

	// Max aggregate over the same facts.
	q, err = Query{
		Conds: []Cond{Eq("what", Text("issue-was-opened"))},
		Pick:  "issue",
		Agg:   AggMax,
	}.Bind(nil)
	require.NoError(t, err)
	max, ok, err := store.SelectOne(ctx, q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(9), max)
}

func TestSelectAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, v := range []int64{5, 1, 3, 3, 9} {
		id, err := store.Insert(ctx)
		require.NoError(t, err)
		require.NoError(t, store.SetText(ctx, id, "what", "pull-was-opened"))
		require.NoError(t, store.SetInt(ctx, id, "repository", 7))
		require.NoError(t, store.SetInt(ctx, id, "pull", v))
	}

	q, err := Query{
		Conds: []Cond{
			Eq("what", Text("pull-was-opened")),
			Eq("repository", Param("repository")),
			Gt("pull", Param("before")),
		},
		Pick: "pull",
		Agg:  AggMin,
	}.Bind(map[string]int64{"repository": 7, "before": 0})
	require.NoError(t, err)

	values, err := store.SelectAll(ctx, q)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{5, 1, 3, 3, 9}, values)
}

func TestBindRejectsMissingParameter(t *testing.T) {
	template := Query{
		Conds: []Cond{Gt("issue", Param("before"))},
		Pick:  "issue",
	}

	_, err := template.Bind(map[string]int64{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$before")
}

func TestUnboundQueryRejectedByBackend(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.SelectOne(ctx, Query{
		Conds: []Cond{Gt("issue", Param("before"))},
		Pick:  "issue",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not bound")
}

func TestQueryParams(t *testing.T) {
	q := Query{
		Conds: []Cond{
			Eq("repository", Param("repository")),
			Gt("issue", Param("before")),
			Eq("repository", Param("repository")),
		},
		Pick: "issue",
	}
	assert.Equal(t, []string{"repository", "before"}, q.Params())
}
