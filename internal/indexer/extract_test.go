package indexer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ftscore/internal/config"
	"github.com/Aman-CERP/ftscore/internal/store"
)

func testSettings() config.Settings {
	s := config.DefaultSettings()
	s.FilterableAttributes = []string{"genre", "rating"}
	s.SortableAttributes = []string{"rating"}
	return s
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestExtractInsertionProducesAddOnlyDeltas(t *testing.T) {
	fields := store.NewFieldsMap()
	x := NewExtractor(fields, testSettings())

	ch := DocumentChange{
		Kind:  Insertion,
		Docid: 1,
		Merged: map[string]json.RawMessage{
			"title": raw(t, "The Great Gatsby"),
			"genre": raw(t, "fiction"),
		},
	}

	d, err := x.Extract(ch)
	require.NoError(t, err)

	key := []byte("great")
	delta, ok := d.WordDocids[string(key)]
	require.True(t, ok)
	require.NotNil(t, delta.Add)
	assert.True(t, delta.Add.Contains(1))
	assert.Nil(t, delta.Del)
	assert.NotNil(t, d.DocumentBlob)
}

func TestExtractDeletionProducesDelOnlyDeltas(t *testing.T) {
	fields := store.NewFieldsMap()
	x := NewExtractor(fields, testSettings())

	ch := DocumentChange{
		Kind:  Deletion,
		Docid: 3,
		Current: map[string]json.RawMessage{
			"title": raw(t, "Moby Dick"),
		},
	}

	d, err := x.Extract(ch)
	require.NoError(t, err)

	delta, ok := d.WordDocids["moby"]
	require.True(t, ok)
	assert.Nil(t, delta.Add)
	require.NotNil(t, delta.Del)
	assert.True(t, delta.Del.Contains(3))
	assert.Nil(t, d.DocumentBlob)
}

func TestExtractUpdateProducesBothDelAndAddForChangedWords(t *testing.T) {
	fields := store.NewFieldsMap()
	x := NewExtractor(fields, testSettings())

	ch := DocumentChange{
		Kind:  Update,
		Docid: 5,
		Current: map[string]json.RawMessage{
			"title": raw(t, "old title"),
		},
		Merged: map[string]json.RawMessage{
			"title": raw(t, "new title"),
		},
	}

	d, err := x.Extract(ch)
	require.NoError(t, err)

	oldDelta, ok := d.WordDocids["old"]
	require.True(t, ok)
	require.NotNil(t, oldDelta.Del)
	assert.True(t, oldDelta.Del.Contains(5))
	assert.Nil(t, oldDelta.Add)

	newDelta, ok := d.WordDocids["new"]
	require.True(t, ok)
	require.NotNil(t, newDelta.Add)
	assert.True(t, newDelta.Add.Contains(5))
	assert.Nil(t, newDelta.Del)

	// "title" appears in both Current and Merged, so its delta carries the
	// docid on both the Del and the Add side; merging (prev \ Del) ∪ Add
	// then leaves the word's postings unchanged.
	sharedDelta, ok := d.WordDocids["title"]
	require.True(t, ok)
	require.NotNil(t, sharedDelta.Add)
	require.NotNil(t, sharedDelta.Del)
}

func TestExtractFacetFieldsEmitExistsAndValueDeltas(t *testing.T) {
	fields := store.NewFieldsMap()
	x := NewExtractor(fields, testSettings())

	ch := DocumentChange{
		Kind:  Insertion,
		Docid: 2,
		Merged: map[string]json.RawMessage{
			"genre":  raw(t, "scifi"),
			"rating": raw(t, 4.5),
		},
	}

	d, err := x.Extract(ch)
	require.NoError(t, err)

	assert.Len(t, d.FacetExistsDocids, 2, "genre and rating are both filterable/sortable")

	var sawF64, sawString bool
	for range d.FacetF64Docids {
		sawF64 = true
	}
	for range d.FacetStringDocids {
		sawString = true
	}
	assert.True(t, sawF64, "rating should contribute a facet_id_f64_docids entry")
	assert.True(t, sawString, "genre should contribute a facet_id_string_docids entry")
}

func TestExtractEmptyStringValueEmitsIsEmptyAndExistsFacets(t *testing.T) {
	fields := store.NewFieldsMap()
	s := testSettings()
	s.FilterableAttributes = []string{"genre"}
	s.SortableAttributes = nil
	x := NewExtractor(fields, s)

	ch := DocumentChange{
		Kind:  Insertion,
		Docid: 9,
		Merged: map[string]json.RawMessage{
			"genre": raw(t, ""),
		},
	}

	d, err := x.Extract(ch)
	require.NoError(t, err)
	assert.Len(t, d.FacetIsEmptyDocids, 1)
	assert.Len(t, d.FacetExistsDocids, 1)
}

func TestExtractWordPairProximityWithinWindow(t *testing.T) {
	fields := store.NewFieldsMap()
	x := NewExtractor(fields, testSettings())

	ch := DocumentChange{
		Kind:  Insertion,
		Docid: 1,
		Merged: map[string]json.RawMessage{
			"title": raw(t, "quick brown fox"),
		},
	}

	d, err := x.Extract(ch)
	require.NoError(t, err)
	assert.NotEmpty(t, d.WordPairProximityDocids)
}
