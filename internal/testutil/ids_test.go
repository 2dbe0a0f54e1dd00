package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestSequentialIDs_StartsAtZero(t *testing.T) {
	ids := NewSequentialIDs()
	assert.Equal(t, uint64(0), ids.Current())
}

func TestSequentialIDs_NextIncrementsMonotonically(t *testing.T) {
	ids := NewSequentialIDs()

	assert.Equal(t, "000000000000000000000001", ids.Next().Hex())
	assert.Equal(t, uint64(1), ids.Current())

	assert.Equal(t, "000000000000000000000002", ids.Next().Hex())
	ids.Next()
	assert.Equal(t, SequenceID(4), ids.Next())
	assert.Equal(t, uint64(4), ids.Current())
}

func TestSequentialIDs_Reset(t *testing.T) {
	ids := NewSequentialIDs()
	ids.Next()
	ids.Next()

	ids.Reset()
	assert.Equal(t, uint64(0), ids.Current())
	assert.Equal(t, SequenceID(1), ids.Next())
}

func TestSequenceID_Large(t *testing.T) {
	assert.Equal(t, "00000000000000000000ffff", SequenceID(0xffff).Hex())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	ids := NewSequentialIDs()
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]bson.ObjectID, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]bson.ObjectID, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = ids.Next()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[bson.ObjectID]bool)
	for _, batch := range results {
		for _, id := range batch {
			require.False(t, seen[id], "duplicate id %s", id.Hex())
			seen[id] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}

func TestMemStore_IDSource(t *testing.T) {
	mem := NewMemStore()
	mem.SetIDSource(NewSequentialIDs().Next)

	ids := mem.Seed("items", bson.M{"n": 1}, bson.M{"n": 2})
	assert.Equal(t, []any{SequenceID(1), SequenceID(2)}, ids)
}
