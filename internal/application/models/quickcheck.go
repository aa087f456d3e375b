package models

// Summary is the overall scanner verdict.
type Summary string

const (
	SummaryPass        Summary = "pass"
	SummaryFail        Summary = "fail"
	SummaryNeedsReview Summary = "needs_review"
)

// CheckOutcome is the raw outcome of a single scanner check.
type CheckOutcome string

const (
	OutcomePass         CheckOutcome = "pass"
	OutcomeFail         CheckOutcome = "fail"
	OutcomeNotEvaluable CheckOutcome = "not_evaluable"
)

// Severity rates how much a failing check matters.
type Severity string

const (
	SeverityHardFail Severity = "hard_fail"
	SeveritySoftFail Severity = "soft_fail"
	SeverityAdvisory Severity = "advisory"
)

// ExtractedFields are the label fields the extractor read off the images.
type ExtractedFields struct {
	BrandName      string `json:"brandName,omitempty"`
	ClassType      string `json:"classType,omitempty"`
	AlcoholContent string `json:"alcoholContent,omitempty"`
	NetContents    string `json:"netContents,omitempty"`
}

// RawCheck is one check as reported by the extraction pipeline.
// Confidence is optional; when nil the result confidence is used.
type RawCheck struct {
	ID         string       `json:"id"`
	Outcome    CheckOutcome `json:"outcome"`
	Confidence *float64     `json:"confidence,omitempty"`
	Detail     string       `json:"detail,omitempty"`
}

// QuickCheckResult is the output of the extraction and check pipeline.
type QuickCheckResult struct {
	Summary      Summary         `json:"summary"`
	Confidence   float64         `json:"confidence"`
	LatencyMs    int64           `json:"latencyMs"`
	Provider     string          `json:"provider,omitempty"`
	UsedFallback bool            `json:"usedFallback"`
	Extracted    ExtractedFields `json:"extracted"`
	Checks       []RawCheck      `json:"checks"`
}

// Clone returns a deep copy.
func (r QuickCheckResult) Clone() QuickCheckResult {
	c := r
	c.Checks = make([]RawCheck, len(r.Checks))
	for i, chk := range r.Checks {
		c.Checks[i] = chk
		if chk.Confidence != nil {
			v := *chk.Confidence
			c.Checks[i].Confidence = &v
		}
	}
	return c
}

// ComplianceCheck is a RawCheck after rule lookup and severity/confidence adjustment.
type ComplianceCheck struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Outcome    CheckOutcome `json:"outcome"`
	Severity   Severity     `json:"severity"`
	Confidence float64      `json:"confidence"`
	Detail     string       `json:"detail,omitempty"`
	Citation   string       `json:"citation,omitempty"`
}

// Expected holds the values the submitter declared for the label.
type Expected struct {
	BrandName      string            `json:"brandName,omitempty"`
	ClassType      string            `json:"classType,omitempty"`
	AlcoholContent string            `json:"alcoholContent,omitempty"`
	NetContents    string            `json:"netContents,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}
