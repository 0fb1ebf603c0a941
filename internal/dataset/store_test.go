package dataset

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreEmpty(t *testing.T) {
	s := NewStore()

	_, err := s.Current()
	require.ErrorIs(t, err, ErrNoDataset)
	assert.True(t, s.Identity().IsZero())
	assert.Equal(t, uint64(0), s.Generation())
	assert.False(t, s.Matches(Identity{SubjectID: "sub-001", MetadataFile: "a_metadata.json"}))
	assert.False(t, s.Matches(Identity{}))
}

func TestStoreSwapAdvancesGeneration(t *testing.T) {
	s := NewStore()
	a := New(Identity{SubjectID: "sub-001", MetadataFile: "a_metadata.json"})
	b := New(Identity{SubjectID: "sub-002", MetadataFile: "b_metadata.json"})

	g1 := s.Swap(a)
	g2 := s.Swap(b)
	assert.Greater(t, g2, g1)
	assert.Equal(t, g2, b.Generation)
	assert.False(t, b.LoadedAt.IsZero())

	cur, err := s.Current()
	require.NoError(t, err)
	assert.Same(t, b, cur)
}

func TestStoreMatches(t *testing.T) {
	s := NewStore()
	id := Identity{SubjectID: "sub-001", MetadataFile: "a_metadata.json"}
	s.Swap(New(id))

	assert.True(t, s.Matches(id))
	assert.False(t, s.Matches(Identity{SubjectID: "sub-001", MetadataFile: "b_metadata.json"}))
	assert.False(t, s.Matches(Identity{SubjectID: "sub-002", MetadataFile: "a_metadata.json"}))
	assert.False(t, s.Matches(Identity{SubjectID: "SUB-001", MetadataFile: "a_metadata.json"}))
}

func TestStoreGuard(t *testing.T) {
	s := NewStore()
	id := Identity{SubjectID: "sub-001", MetadataFile: "a_metadata.json"}

	_, err := s.Guard(id)
	var mm *MismatchError
	require.ErrorAs(t, err, &mm)
	assert.True(t, mm.Active.IsZero())

	ds := New(id)
	s.Swap(ds)
	before := s.Generation()

	got, err := s.Guard(id)
	require.NoError(t, err)
	assert.Same(t, ds, got)

	other := Identity{SubjectID: "sub-002", MetadataFile: "a_metadata.json"}
	_, err = s.Guard(other)
	require.ErrorIs(t, err, ErrIdentityMismatch)
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, id, mm.Active)
	assert.Equal(t, other, mm.Requested)

	// A rejected request leaves the store untouched.
	assert.Equal(t, before, s.Generation())
	assert.Equal(t, id, s.Identity())
}

func TestStoreCommitStreamlines(t *testing.T) {
	s := NewStore()

	err := s.CommitStreamlines(1, map[int]any{0: "x"})
	require.ErrorIs(t, err, ErrStaleGeneration)

	a := New(Identity{SubjectID: "sub-001", MetadataFile: "a_metadata.json"})
	ga := s.Swap(a)
	require.NoError(t, s.CommitStreamlines(ga, map[int]any{5: "a5"}))
	g, ok := a.Full.Get(5)
	require.True(t, ok)
	assert.Equal(t, "a5", g)

	b := New(Identity{SubjectID: "sub-002", MetadataFile: "b_metadata.json"})
	s.Swap(b)

	// Writes tagged with the old generation never reach the new dataset.
	err = s.CommitStreamlines(ga, map[int]any{6: "a6"})
	require.True(t, errors.Is(err, ErrStaleGeneration))
	assert.Equal(t, 0, b.Full.Len())
	_, ok = a.Full.Get(6)
	assert.False(t, ok)
}

func TestStoreConcurrentReadersDuringCommit(t *testing.T) {
	s := NewStore()
	ds := New(Identity{SubjectID: "sub-001", MetadataFile: "a_metadata.json"})
	gen := s.Swap(ds)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = s.CommitStreamlines(gen, map[int]any{i: i})
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if g, ok := ds.Full.Get(i); ok {
					assert.Equal(t, i, g)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, ds.Full.Len())
}
