package handler

import (
	"fmt"
	"strings"

	appModels "labelcheck/internal/application/models"
	"labelcheck/internal/batch/models"
	dErrors "labelcheck/pkg/domain-errors"
)

// StartBatchRequest is the body for POST /batches.
type StartBatchRequest struct {
	RegulatoryProfile string             `json:"regulatoryProfile"`
	Items             []BatchItemRequest `json:"items"`

	parsedProfile appModels.RegulatoryProfile
}

type BatchItemRequest struct {
	ClientLabelID     string          `json:"clientLabelId"`
	RegulatoryProfile string          `json:"regulatoryProfile"`
	Expected          models.Expected `json:"expected"`
	Images            []models.Image  `json:"images"`
}

func (r *StartBatchRequest) Validate() error {
	r.parsedProfile = appModels.RegulatoryProfile(strings.TrimSpace(r.RegulatoryProfile))
	if !r.parsedProfile.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "regulatoryProfile must be distilled_spirits, wine or malt_beverage")
	}
	if len(r.Items) == 0 {
		return dErrors.New(dErrors.CodeValidation, "items must not be empty")
	}
	for i, it := range r.Items {
		for _, img := range it.Images {
			switch img.Role {
			case models.RoleFront, models.RoleBack, models.RoleExtra:
			default:
				return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("items[%d]: image role must be front, back or extra", i))
			}
			if strings.TrimSpace(img.Path) == "" {
				return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("items[%d]: image path is required", i))
			}
		}
	}
	return nil
}

func (r *StartBatchRequest) inputs() []models.ItemInput {
	out := make([]models.ItemInput, len(r.Items))
	for i, it := range r.Items {
		out[i] = models.ItemInput{
			ClientLabelID:     strings.TrimSpace(it.ClientLabelID),
			RegulatoryProfile: appModels.RegulatoryProfile(strings.TrimSpace(it.RegulatoryProfile)),
			Expected:          it.Expected,
			Images:            it.Images,
		}
	}
	return out
}
