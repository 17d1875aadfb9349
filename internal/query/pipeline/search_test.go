package pipeline

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/config"
	"github.com/Aman-CERP/ftscore/internal/indexer"
	"github.com/Aman-CERP/ftscore/internal/store"
)

func openTestEnv(t *testing.T) *store.Environment {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "idx")
	env, err := store.Open(dir, store.OpenOptions{ReadTxnPoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func newTestEngine(t *testing.T, settings config.Settings) (*Engine, *indexer.Pipeline) {
	t.Helper()
	env := openTestEnv(t)
	err := env.Update(func(tx *bbolt.Tx) error {
		return env.SaveSettings(tx, settings)
	})
	require.NoError(t, err)
	require.NoError(t, env.InvalidateCaches())

	p, err := indexer.NewPipeline(env, indexer.PipelineOptions{Concurrency: 2, CacheCapacity: 16})
	require.NoError(t, err)

	e, err := NewEngine(env)
	require.NoError(t, err)
	return e, p
}

func defaultTestSettings() config.Settings {
	s := config.DefaultSettings()
	s.FilterableAttributes = []string{"genre"}
	s.SortableAttributes = []string{"rating"}
	s.DistinctAttribute = ""
	return s
}

func TestSearchFindsMatchingDocument(t *testing.T) {
	e, p := newTestEngine(t, defaultTestSettings())

	_, err := p.Run(indexer.Batch{
		PrimaryKey: "id",
		Upserts: []indexer.RawDocument{
			{"id": raw(t, "1"), "title": raw(t, "quick brown fox"), "genre": raw(t, "fiction")},
			{"id": raw(t, "2"), "title": raw(t, "lazy dog"), "genre": raw(t, "nonfiction")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.RefreshDocids())

	resp, err := e.Search(Request{Query: "fox"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "1", resp.Hits[0].ExternalID)
}

func TestSearchEmptyQueryReturnsEveryLiveDocument(t *testing.T) {
	e, p := newTestEngine(t, defaultTestSettings())

	_, err := p.Run(indexer.Batch{
		PrimaryKey: "id",
		Upserts: []indexer.RawDocument{
			{"id": raw(t, "1"), "title": raw(t, "quick brown fox"), "genre": raw(t, "fiction")},
			{"id": raw(t, "2"), "title": raw(t, "lazy dog"), "genre": raw(t, "nonfiction")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.RefreshDocids())

	resp, err := e.Search(Request{})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 2)
}

func TestSearchFilterNarrowsResults(t *testing.T) {
	e, p := newTestEngine(t, defaultTestSettings())

	_, err := p.Run(indexer.Batch{
		PrimaryKey: "id",
		Upserts: []indexer.RawDocument{
			{"id": raw(t, "1"), "title": raw(t, "quick brown fox"), "genre": raw(t, "fiction")},
			{"id": raw(t, "2"), "title": raw(t, "quick lazy dog"), "genre": raw(t, "nonfiction")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.RefreshDocids())

	resp, err := e.Search(Request{Query: "quick", Filter: `genre = "fiction"`})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "1", resp.Hits[0].ExternalID)
}

func TestSearchSortRequiresPlaceholderInRankingRules(t *testing.T) {
	e, p := newTestEngine(t, defaultTestSettings())
	_, err := p.Run(indexer.Batch{
		PrimaryKey: "id",
		Upserts: []indexer.RawDocument{
			{"id": raw(t, "1"), "title": raw(t, "fox"), "rating": raw(t, 3)},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.RefreshDocids())

	_, err = e.Search(Request{Sort: []string{"rating:desc"}})
	assert.Error(t, err)
}

func TestSearchSortOrdersByRequestedSortWhenPlaceholderPresent(t *testing.T) {
	settings := defaultTestSettings()
	settings.RankingRules = []string{"sort", "words"}
	e, p := newTestEngine(t, settings)

	_, err := p.Run(indexer.Batch{
		PrimaryKey: "id",
		Upserts: []indexer.RawDocument{
			{"id": raw(t, "1"), "title": raw(t, "fox"), "rating": raw(t, 2)},
			{"id": raw(t, "2"), "title": raw(t, "fox"), "rating": raw(t, 5)},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.RefreshDocids())

	resp, err := e.Search(Request{Query: "fox", Sort: []string{"rating:desc"}})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)
	assert.Equal(t, "2", resp.Hits[0].ExternalID)
	assert.Equal(t, "1", resp.Hits[1].ExternalID)
}

func TestSearchPaginationLimitOffset(t *testing.T) {
	e, p := newTestEngine(t, defaultTestSettings())
	_, err := p.Run(indexer.Batch{
		PrimaryKey: "id",
		Upserts: []indexer.RawDocument{
			{"id": raw(t, "1"), "title": raw(t, "fox one")},
			{"id": raw(t, "2"), "title": raw(t, "fox two")},
			{"id": raw(t, "3"), "title": raw(t, "fox three")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.RefreshDocids())

	resp, err := e.Search(Request{Query: "fox", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.EstimatedTotalHits)
	assert.Len(t, resp.Hits, 1)
}

func TestSearchPaginationPageHitsPerPage(t *testing.T) {
	e, p := newTestEngine(t, defaultTestSettings())
	_, err := p.Run(indexer.Batch{
		PrimaryKey: "id",
		Upserts: []indexer.RawDocument{
			{"id": raw(t, "1"), "title": raw(t, "fox one")},
			{"id": raw(t, "2"), "title": raw(t, "fox two")},
			{"id": raw(t, "3"), "title": raw(t, "fox three")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.RefreshDocids())

	resp, err := e.Search(Request{Query: "fox", Page: 2, HitsPerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 2, resp.HitsPerPage)
	assert.Len(t, resp.Hits, 1)
}

func TestSearchHighlightsMatchedWords(t *testing.T) {
	e, p := newTestEngine(t, defaultTestSettings())
	_, err := p.Run(indexer.Batch{
		PrimaryKey: "id",
		Upserts: []indexer.RawDocument{
			{"id": raw(t, "1"), "title": raw(t, "the quick brown fox")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.RefreshDocids())

	resp, err := e.Search(Request{
		Query:                 "fox",
		AttributesToHighlight: []string{"title"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Contains(t, resp.Hits[0].Formatted["title"], "<em>fox</em>")
}

func TestSearchFacetDistributionCountsLiveMatches(t *testing.T) {
	e, p := newTestEngine(t, defaultTestSettings())
	_, err := p.Run(indexer.Batch{
		PrimaryKey: "id",
		Upserts: []indexer.RawDocument{
			{"id": raw(t, "1"), "title": raw(t, "fox"), "genre": raw(t, "fiction")},
			{"id": raw(t, "2"), "title": raw(t, "fox"), "genre": raw(t, "fiction")},
			{"id": raw(t, "3"), "title": raw(t, "fox"), "genre": raw(t, "nonfiction")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.RefreshDocids())

	resp, err := e.Search(Request{Query: "fox", Facets: []string{"genre"}})
	require.NoError(t, err)
	require.NotNil(t, resp.FacetDistribution)
	assert.Equal(t, 2, resp.FacetDistribution["genre"]["fiction"])
	assert.Equal(t, 1, resp.FacetDistribution["genre"]["nonfiction"])
}

func TestSearchDeletedDocumentIsExcluded(t *testing.T) {
	e, p := newTestEngine(t, defaultTestSettings())
	_, err := p.Run(indexer.Batch{
		PrimaryKey: "id",
		Upserts: []indexer.RawDocument{
			{"id": raw(t, "1"), "title": raw(t, "fox")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.RefreshDocids())

	resp, err := e.Search(Request{Query: "fox"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)

	_, err = p.Run(indexer.Batch{PrimaryKey: "id", Deletes: []string{"1"}})
	require.NoError(t, err)
	require.NoError(t, e.RefreshDocids())

	resp, err = e.Search(Request{Query: "fox"})
	require.NoError(t, err)
	assert.Empty(t, resp.Hits)
}
