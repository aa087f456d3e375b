package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func items(statuses ...ItemStatus) []Item {
	out := make([]Item, len(statuses))
	for i, s := range statuses {
		out[i] = Item{Index: i, Status: s}
	}
	return out
}

func TestRecalculate(t *testing.T) {
	tests := []struct {
		name  string
		items []Item
		want  JobStatus
	}{
		{"work remaining", items(ItemCompleted, ItemProcessing, ItemQueued), JobProcessing},
		{"failure while work remains is informational", items(ItemFailed, ItemQueued), JobProcessing},
		{"all completed", items(ItemCompleted, ItemCompleted), JobCompleted},
		{"any failure once terminal", items(ItemCompleted, ItemFailed, ItemCompleted), JobPartiallyFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{}
			job.Recalculate(tt.items)
			assert.Equal(t, tt.want, job.Status)
			assert.Equal(t, len(tt.items), job.TotalItems)
			assert.Equal(t, job.TotalItems, job.QueuedItems+job.ProcessingItems+job.CompletedItems+job.FailedItems)
		})
	}
}

func TestProgressPercent(t *testing.T) {
	job := &Job{ID: "b"}
	job.Recalculate(items(ItemCompleted, ItemFailed, ItemQueued, ItemProcessing))
	p := job.Progress()
	assert.Equal(t, 50.0, p.Percent)
	assert.Equal(t, 1, p.Queued)
	assert.Equal(t, 1, p.Processing)

	failed := &Job{Status: JobFailed}
	assert.Equal(t, 100.0, failed.Progress().Percent)
}

func TestItemCloneIsDeep(t *testing.T) {
	it := Item{
		Images:   []Image{{Role: RoleFront, Path: "a"}},
		Expected: Expected{Extra: map[string]string{"k": "v"}},
	}
	c := it.Clone()
	c.Images[0].Path = "b"
	c.Expected.Extra["k"] = "w"
	assert.Equal(t, "a", it.Images[0].Path)
	assert.Equal(t, "v", it.Expected.Extra["k"])
}
