package crdt

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelcheck/internal/application/models"
)

var base = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func op(actor string, seq int64, id string, offset time.Duration) models.Operation {
	return models.Operation{
		ID:            id,
		ApplicationID: "app-1",
		ActorID:       actor,
		Sequence:      seq,
		Payload:       json.RawMessage(fmt.Sprintf(`{"v":%q}`, id)),
		CreatedAt:     base.Add(offset),
	}
}

func randomOps(r *rand.Rand, n int) []models.Operation {
	actors := []string{"device-a", "device-b", "device-c"}
	ops := make([]models.Operation, 0, n)
	for i := range n {
		ops = append(ops, op(
			actors[r.IntN(len(actors))],
			int64(r.IntN(6)+1),
			fmt.Sprintf("op-%02d", i),
			time.Duration(r.IntN(5))*time.Second,
		))
	}
	return ops
}

func TestMerge_Convergence(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for round := range 50 {
		a := randomOps(r, r.IntN(10))
		b := randomOps(r, r.IntN(10))

		ab := Merge(Merge(nil, a), b)
		ba := Merge(Merge(nil, b), a)
		union := Merge(nil, append(append([]models.Operation{}, a...), b...))

		require.Equal(t, union, ab, "round %d", round)
		require.Equal(t, union, ba, "round %d", round)
	}
}

func TestMerge_ChunkingIndependent(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	all := randomOps(r, 30)
	want := Merge(nil, all)

	var got []models.Operation
	for start := 0; start < len(all); start += 4 {
		end := min(start+4, len(all))
		got = Merge(got, all[start:end])
	}
	assert.Equal(t, want, got)

	reversed := make([]models.Operation, len(all))
	for i, o := range all {
		reversed[len(all)-1-i] = o
	}
	assert.Equal(t, want, Merge(nil, reversed))
}

func TestMerge_Idempotent(t *testing.T) {
	first := op("device-a", 1, "op-b", 2*time.Second)
	merged := Merge(nil, []models.Operation{first, op("device-b", 1, "op-x", 0)})

	t.Run("exact replay", func(t *testing.T) {
		assert.Equal(t, merged, Merge(merged, merged))
	})

	t.Run("replay with different payload and timestamp keeps cardinality", func(t *testing.T) {
		later := op("device-a", 1, "op-z", 9*time.Second)
		later.Payload = json.RawMessage(`{"v":"changed"}`)
		again := Merge(merged, []models.Operation{later})
		require.Len(t, again, 2)
		assert.Equal(t, merged, again)
	})

	t.Run("earlier tie-break wins deterministically", func(t *testing.T) {
		earlier := op("device-a", 1, "op-a", time.Second)
		again := Merge(merged, []models.Operation{earlier})
		require.Len(t, again, 2)
		assert.Contains(t, again, earlier)
		assert.NotContains(t, again, first)
	})
}

func TestMerge_OrderedBySequenceThenActor(t *testing.T) {
	ops := []models.Operation{
		op("device-b", 2, "op-1", 0),
		op("device-a", 2, "op-2", 0),
		op("device-c", 1, "op-3", 0),
	}
	merged := Merge(nil, ops)
	require.Len(t, merged, 3)
	assert.Equal(t, "op-3", merged[0].ID)
	assert.Equal(t, "op-2", merged[1].ID)
	assert.Equal(t, "op-1", merged[2].ID)
}

func TestAfter(t *testing.T) {
	merged := Merge(nil, []models.Operation{op("a", 1, "1", 0), op("a", 2, "2", 0), op("b", 3, "3", 0)})
	assert.Len(t, After(merged, 0), 3)
	assert.Len(t, After(merged, 2), 1)
	assert.Empty(t, After(merged, 3))
}
