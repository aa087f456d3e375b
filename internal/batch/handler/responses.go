package handler

import "labelcheck/internal/batch/models"

// JobResponse is a job with its derived progress.
type JobResponse struct {
	*models.Job
	Percent float64 `json:"percent"`
}

func newJobResponse(job *models.Job) JobResponse {
	return JobResponse{Job: job, Percent: job.Progress().Percent}
}

type ItemListResponse struct {
	BatchID string        `json:"batchId"`
	Items   []models.Item `json:"items"`
	Total   int           `json:"total"`
	Offset  int           `json:"offset"`
}

type AttemptListResponse struct {
	BatchItemID string           `json:"batchItemId"`
	Attempts    []models.Attempt `json:"attempts"`
}
