package batchcache

import (
	"testing"

	"github.com/magiconair/properties/assert"
	"github.com/marsleezm/spec-calvin/txn"
)

func TestAddTake(t *testing.T) {
	c := New()
	c.Add(&txn.Batch{BatchNumber: 3})
	b, ok := c.Take(3)
	assert.Equal(t, ok, true)
	assert.Equal(t, b.BatchNumber, uint64(3))

	_, ok = c.Take(3)
	assert.Equal(t, ok, false)
}

func TestDrainUntilFoundBuffersOutOfOrder(t *testing.T) {
	c := New()
	arrivals := []*txn.Batch{
		{BatchNumber: 5},
		{BatchNumber: 6},
		{BatchNumber: 4},
	}
	i := 0
	fetch := func() (*txn.Batch, bool) {
		if i >= len(arrivals) {
			return nil, false
		}
		b := arrivals[i]
		i++
		return b, true
	}

	got, ok := c.DrainUntilFound(4, fetch)
	assert.Equal(t, ok, true)
	assert.Equal(t, got.BatchNumber, uint64(4))
	assert.Equal(t, c.Len(), 2)

	got, ok = c.DrainUntilFound(5, fetch)
	assert.Equal(t, ok, true)
	assert.Equal(t, got.BatchNumber, uint64(5))
	assert.Equal(t, c.Len(), 1)
}
