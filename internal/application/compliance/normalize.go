package compliance

import "labelcheck/internal/application/models"

// Normalize converts raw scanner checks into compliance checks for profile.
func Normalize(profile models.RegulatoryProfile, result models.QuickCheckResult) []models.ComplianceCheck {
	out := make([]models.ComplianceCheck, 0, len(result.Checks))
	for _, raw := range result.Checks {
		out = append(out, NormalizeCheck(profile, raw, result.Confidence))
	}
	return out
}

// NormalizeCheck applies rule severity and confidence adjustment to one check.
// fallbackConfidence is used when the check carries no confidence of its own.
func NormalizeCheck(profile models.RegulatoryProfile, raw models.RawCheck, fallbackConfidence float64) models.ComplianceCheck {
	rule, _ := Lookup(profile, raw.ID)
	base := fallbackConfidence
	if raw.Confidence != nil {
		base = *raw.Confidence
	}

	severity := rule.Severity
	var confidence float64
	switch raw.Outcome {
	case models.OutcomePass:
		severity = models.SeverityAdvisory
		confidence = clamp(base, 0, 1)
	case models.OutcomeNotEvaluable:
		if severity == models.SeverityHardFail {
			severity = models.SeveritySoftFail
		}
		confidence = clamp(0.75*base, 0.2, 0.7)
	default:
		// anything that is not pass or not_evaluable is treated as a failure
		confidence = clamp(0.6*base, 0.1, 0.6)
	}

	outcome := raw.Outcome
	if outcome != models.OutcomePass && outcome != models.OutcomeNotEvaluable {
		outcome = models.OutcomeFail
	}

	return models.ComplianceCheck{
		ID:         raw.ID,
		Title:      rule.Title,
		Outcome:    outcome,
		Severity:   severity,
		Confidence: confidence,
		Detail:     raw.Detail,
		Citation:   rule.Citation,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
