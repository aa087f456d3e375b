package handler

import "labelcheck/internal/application/models"

type ApplicationListResponse struct {
	Applications []*models.Application `json:"applications"`
	Total        int                   `json:"total"`
}

type EventListResponse struct {
	ApplicationID string         `json:"applicationId"`
	Events        []models.Event `json:"events"`
}

type ClaimResponse struct {
	ApplicationID string             `json:"applicationId"`
	Result        models.ClaimResult `json:"result"`
}

type OperationsResponse struct {
	ApplicationID string             `json:"applicationId"`
	Ops           []models.Operation `json:"ops"`
	LastSequence  int64              `json:"lastSequence"`
}

func newOperationsResponse(id string, ops []models.Operation) OperationsResponse {
	if ops == nil {
		ops = []models.Operation{}
	}
	resp := OperationsResponse{ApplicationID: id, Ops: ops}
	for _, op := range ops {
		resp.LastSequence = max(resp.LastSequence, op.Sequence)
	}
	return resp
}
