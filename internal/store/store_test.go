package store

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/dutchbook/dutchbook/common/errors"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory(zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func put(t *testing.T, s *Store, pk string, sortKey int64, entries ...IndexEntry) {
	t.Helper()
	err := s.TransactUpdate(pk, func(old []byte) (*Mutation, error) {
		return &Mutation{Doc: []byte("doc-" + pk), Put: entries}, nil
	})
	require.NoError(t, err)
}

func entry(index, partition string, sortKey int64, pk string) IndexEntry {
	return IndexEntry{Index: index, PartitionKey: partition, SortKey: sortKey, PrimaryKey: pk}
}

func TestGetAbsent(t *testing.T) {
	s := newStore(t)
	_, err := s.Get("missing")
	assert.Equal(t, ErrAbsent, err)
}

func TestTransactUpdateWritesDocAndEntries(t *testing.T) {
	s := newStore(t)
	put(t, s, "h1", 10, entry("offerer", "0xaa", 10, "h1"))

	doc, err := s.Get("h1")
	require.NoError(t, err)
	assert.Equal(t, []byte("doc-h1"), doc)

	got, err := s.QueryIndex(IndexQuery{Index: "offerer", PartitionKey: "0xaa", MaxSort: math.MaxInt64, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "h1", got[0].PrimaryKey)
	assert.Equal(t, int64(10), got[0].SortKey)
}

func TestTransactUpdateSeesOldDocAndDeletesStaleEntries(t *testing.T) {
	s := newStore(t)
	put(t, s, "h1", 10, entry("orderStatus", "OPEN", 10, "h1"))

	var sawOld []byte
	err := s.TransactUpdate("h1", func(old []byte) (*Mutation, error) {
		sawOld = old
		return &Mutation{
			Doc: []byte("doc2"),
			Del: []IndexEntry{entry("orderStatus", "OPEN", 10, "h1")},
			Put: []IndexEntry{entry("orderStatus", "FILLED", 10, "h1")},
		}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("doc-h1"), sawOld)

	open, err := s.QueryIndex(IndexQuery{Index: "orderStatus", PartitionKey: "OPEN", MaxSort: math.MaxInt64, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, open)

	filled, err := s.QueryIndex(IndexQuery{Index: "orderStatus", PartitionKey: "FILLED", MaxSort: math.MaxInt64, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, filled, 1)
}

func TestTransactUpdateMutateErrorAborts(t *testing.T) {
	s := newStore(t)
	boom := apperrors.NotFoundf("nope")
	err := s.TransactUpdate("h1", func(old []byte) (*Mutation, error) {
		return nil, boom
	})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = s.Get("h1")
	assert.Equal(t, ErrAbsent, err)
}

func TestQueryIndexOrderAndDirection(t *testing.T) {
	s := newStore(t)
	for i := 1; i <= 5; i++ {
		pk := fmt.Sprintf("h%d", i)
		put(t, s, pk, int64(i*100), entry("pair", "WETH/USDC", int64(i*100), pk))
	}

	asc, err := s.QueryIndex(IndexQuery{Index: "pair", PartitionKey: "WETH/USDC", MaxSort: math.MaxInt64, Limit: 10})
	require.NoError(t, err)
	require.Len(t, asc, 5)
	for i := 1; i < len(asc); i++ {
		assert.Less(t, asc[i-1].SortKey, asc[i].SortKey)
	}

	desc, err := s.QueryIndex(IndexQuery{Index: "pair", PartitionKey: "WETH/USDC", MaxSort: math.MaxInt64, Desc: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, desc, 5)
	assert.Equal(t, int64(500), desc[0].SortKey)
	assert.Equal(t, int64(100), desc[4].SortKey)
}

func TestQueryIndexSortBounds(t *testing.T) {
	s := newStore(t)
	for i := 1; i <= 5; i++ {
		pk := fmt.Sprintf("h%d", i)
		put(t, s, pk, int64(i*100), entry("pair", "WETH/USDC", int64(i*100), pk))
	}
	got, err := s.QueryIndex(IndexQuery{
		Index: "pair", PartitionKey: "WETH/USDC",
		MinSort: 200, MaxSort: 400, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(200), got[0].SortKey)
	assert.Equal(t, int64(400), got[2].SortKey)
}

func TestQueryIndexStartAfterResumes(t *testing.T) {
	s := newStore(t)
	for i := 1; i <= 4; i++ {
		pk := fmt.Sprintf("h%d", i)
		put(t, s, pk, int64(i), entry("offerer", "0xaa", int64(i), pk))
	}
	first, err := s.QueryIndex(IndexQuery{Index: "offerer", PartitionKey: "0xaa", MaxSort: math.MaxInt64, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)

	rest, err := s.QueryIndex(IndexQuery{
		Index: "offerer", PartitionKey: "0xaa", MaxSort: math.MaxInt64, Limit: 10,
		StartAfter: &first[1],
	})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "h3", rest[0].PrimaryKey)
	assert.Equal(t, "h4", rest[1].PrimaryKey)
}

func TestQueryIndexPartitionsDoNotLeak(t *testing.T) {
	s := newStore(t)
	// "WETH/USDC" and "WETH/USDT" share a byte prefix; entries must stay in
	// their own partitions.
	put(t, s, "h1", 1, entry("pair", "WETH/USDC", 1, "h1"))
	put(t, s, "h2", 1, entry("pair", "WETH/USDT", 1, "h2"))

	got, err := s.QueryIndex(IndexQuery{Index: "pair", PartitionKey: "WETH/USDC", MaxSort: math.MaxInt64, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "h1", got[0].PrimaryKey)
}

func TestDeleteRemovesDocAndEntries(t *testing.T) {
	s := newStore(t)
	e := entry("offerer", "0xaa", 7, "h1")
	put(t, s, "h1", 7, e)

	require.NoError(t, s.Delete("h1", []IndexEntry{e}))

	_, err := s.Get("h1")
	assert.Equal(t, ErrAbsent, err)
	got, err := s.QueryIndex(IndexQuery{Index: "offerer", PartitionKey: "0xaa", MaxSort: math.MaxInt64, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCountIndex(t *testing.T) {
	s := newStore(t)
	for i := 1; i <= 3; i++ {
		pk := fmt.Sprintf("h%d", i)
		put(t, s, pk, int64(i), entry("offerer_orderStatus", "0xaa_OPEN", int64(i), pk))
	}
	n, err := s.CountIndex("offerer_orderStatus", "0xaa_OPEN", 0, math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountIndex("offerer_orderStatus", "0xaa_OPEN", 2, math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestKVRoundTrip(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.PutKV("unimind/WETH-USDC", []byte(`{"count":1}`)))
	v, err := s.GetKV("unimind/WETH-USDC")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"count":1}`), v)
}
