// Package crdt merges per-actor operation logs into one ordered sequence.
//
// Merge is a join over the set of operations keyed by
// (applicationId, actorId, sequence): when two operations share a key the
// smaller one by Compare is kept. Taking a minimum is commutative,
// associative and idempotent, so replicas converge regardless of delivery
// order, chunking or replay.
package crdt

import (
	"cmp"
	"slices"

	"labelcheck/internal/application/models"
)

type key struct {
	applicationID string
	actorID       string
	sequence      int64
}

func keyOf(op models.Operation) key {
	return key{applicationID: op.ApplicationID, actorID: op.ActorID, sequence: op.Sequence}
}

// Compare orders operations by sequence, actor id, creation time, op id.
// Application id breaks the remaining ties so the order is total.
func Compare(a, b models.Operation) int {
	if c := cmp.Compare(a.Sequence, b.Sequence); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ActorID, b.ActorID); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.ApplicationID, b.ApplicationID)
}

// Merge returns the deduplicated, ordered union of existing and incoming.
// Neither input is modified.
func Merge(existing, incoming []models.Operation) []models.Operation {
	winners := make(map[key]models.Operation, len(existing)+len(incoming))
	for _, ops := range [][]models.Operation{existing, incoming} {
		for _, op := range ops {
			k := keyOf(op)
			if cur, ok := winners[k]; ok && Compare(cur, op) <= 0 {
				continue
			}
			winners[k] = op
		}
	}

	out := make([]models.Operation, 0, len(winners))
	for _, op := range winners {
		out = append(out, op)
	}
	slices.SortFunc(out, Compare)
	return out
}

// After returns the operations in merged whose sequence is greater than after.
func After(merged []models.Operation, after int64) []models.Operation {
	out := make([]models.Operation, 0, len(merged))
	for _, op := range merged {
		if op.Sequence > after {
			out = append(out, op)
		}
	}
	return out
}
