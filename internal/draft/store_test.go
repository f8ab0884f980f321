package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stockItem(stockID, materialID, parentID int64, qty float64) Item {
	return Item{
		Key:              StockKey(stockID),
		MaterialID:       materialID,
		StockID:          stockID,
		ParentMaterialID: parentID,
		Quantity:         qty,
		Available:        100,
	}
}

func TestStoreUpsertIsIdempotent(t *testing.T) {
	once := NewStore()
	once.Upsert(stockItem(1, 10, 0, 5))

	twice := NewStore()
	twice.Upsert(stockItem(1, 10, 0, 5))
	twice.Upsert(stockItem(1, 10, 0, 5))

	assert.Equal(t, once.All(), twice.All())
	assert.Equal(t, once.Len(), twice.Len())
	assert.Equal(t, once.Dirty(), twice.Dirty())
}

func TestStoreUpsertKeepsPosition(t *testing.T) {
	s := NewStore()
	s.Upsert(stockItem(1, 10, 0, 1))
	s.Upsert(stockItem(2, 11, 0, 1))
	s.Upsert(stockItem(3, 12, 0, 1))

	s.Upsert(stockItem(2, 11, 0, 9))

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, StockKey(1), all[0].Key)
	assert.Equal(t, StockKey(2), all[1].Key)
	assert.Equal(t, 9.0, all[1].Quantity)
	assert.Equal(t, StockKey(3), all[2].Key)
}

func TestStoreRemove(t *testing.T) {
	s := NewStore()
	s.Upsert(stockItem(1, 10, 0, 1))
	s.MarkClean()

	assert.False(t, s.Remove(StockKey(99)))
	assert.False(t, s.Dirty(), "removing an absent key must not dirty the store")

	assert.True(t, s.Remove(StockKey(1)))
	assert.True(t, s.Dirty())
	_, ok := s.Get(StockKey(1))
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestStoreRemoveAllByParent(t *testing.T) {
	s := NewStore()
	s.Upsert(stockItem(1, 10, 100, 1))
	s.Upsert(stockItem(2, 20, 0, 1))
	s.Upsert(stockItem(3, 11, 100, 1))
	s.Upsert(stockItem(4, 12, 200, 1))
	s.Upsert(stockItem(5, 13, 100, 1))

	removed := s.RemoveAllByParent(100)

	assert.Equal(t, 3, removed)
	for _, id := range []int64{1, 3, 5} {
		_, ok := s.Get(StockKey(id))
		assert.False(t, ok, "child %d still present", id)
	}

	keys := []Key{}
	for _, item := range s.All() {
		keys = append(keys, item.Key)
	}
	assert.Equal(t, []Key{StockKey(2), StockKey(4)}, keys)

	assert.Zero(t, s.RemoveAllByParent(100))
	assert.Zero(t, s.RemoveAllByParent(0), "root items are never removed as children")
}

func TestStoreClear(t *testing.T) {
	s := NewStore()
	s.Upsert(stockItem(1, 10, 0, 1))
	s.Upsert(stockItem(2, 11, 0, 1))

	s.Clear()

	assert.Zero(t, s.Len())
	assert.Empty(t, s.All())
	assert.True(t, s.Dirty())
}

func TestStoreAllReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Upsert(stockItem(1, 10, 0, 1))

	all := s.All()
	all[0].Quantity = 42

	got, _ := s.Get(StockKey(1))
	assert.Equal(t, 1.0, got.Quantity)
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("stock:12")
	require.NoError(t, err)
	assert.Equal(t, StockKey(12), k)

	k, err = ParseKey("material:7")
	require.NoError(t, err)
	assert.Equal(t, MaterialKey(7), k)

	for _, bad := range []string{"", "stock", "batch:1", "stock:abc"} {
		_, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
}
