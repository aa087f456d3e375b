package compliance

import "labelcheck/internal/application/models"

// Rule is the static metadata for one check id within a regulatory profile.
type Rule struct {
	ID       string
	Title    string
	Severity models.Severity
	Citation string
}

var commonRules = []Rule{
	{ID: "brand_name", Title: "Brand name", Severity: models.SeverityHardFail, Citation: "27 CFR 4.33 / 5.64 / 7.64"},
	{ID: "class_type", Title: "Class and type designation", Severity: models.SeverityHardFail, Citation: "27 CFR 4.34 / 5.141 / 7.141"},
	{ID: "net_contents", Title: "Net contents", Severity: models.SeverityHardFail, Citation: "27 CFR 4.37 / 5.70 / 7.70"},
	{ID: "government_warning", Title: "Health warning statement", Severity: models.SeverityHardFail, Citation: "27 CFR 16.21"},
	{ID: "name_address", Title: "Name and address of bottler or importer", Severity: models.SeveritySoftFail, Citation: "27 CFR 4.35 / 5.66 / 7.66"},
	{ID: "country_of_origin", Title: "Country of origin", Severity: models.SeveritySoftFail, Citation: "19 CFR 134.11"},
	{ID: "image_quality", Title: "Image legibility", Severity: models.SeverityAdvisory},
}

var profileRules = map[models.RegulatoryProfile][]Rule{
	models.ProfileDistilledSpirits: {
		{ID: "alcohol_content", Title: "Alcohol content", Severity: models.SeverityHardFail, Citation: "27 CFR 5.65"},
		{ID: "age_statement", Title: "Age statement", Severity: models.SeveritySoftFail, Citation: "27 CFR 5.74"},
		{ID: "commodity_statement", Title: "Commodity statement", Severity: models.SeveritySoftFail, Citation: "27 CFR 5.71"},
	},
	models.ProfileWine: {
		{ID: "alcohol_content", Title: "Alcohol content", Severity: models.SeveritySoftFail, Citation: "27 CFR 4.36"},
		{ID: "sulfite_declaration", Title: "Sulfite declaration", Severity: models.SeverityHardFail, Citation: "27 CFR 4.32(e)"},
		{ID: "appellation", Title: "Appellation of origin", Severity: models.SeveritySoftFail, Citation: "27 CFR 4.25"},
		{ID: "vintage", Title: "Vintage date", Severity: models.SeverityAdvisory, Citation: "27 CFR 4.27"},
	},
	models.ProfileMaltBeverage: {
		{ID: "alcohol_content", Title: "Alcohol content", Severity: models.SeverityAdvisory, Citation: "27 CFR 7.65"},
		{ID: "added_flavors", Title: "Flavoring disclosure", Severity: models.SeveritySoftFail, Citation: "27 CFR 7.147"},
	},
}

var ruleIndex = buildIndex()

func buildIndex() map[models.RegulatoryProfile]map[string]Rule {
	idx := make(map[models.RegulatoryProfile]map[string]Rule, len(profileRules))
	for profile, rules := range profileRules {
		m := make(map[string]Rule, len(commonRules)+len(rules))
		for _, r := range commonRules {
			m[r.ID] = r
		}
		for _, r := range rules {
			m[r.ID] = r
		}
		idx[profile] = m
	}
	return idx
}

// Lookup returns the rule for checkID under profile. Unknown ids get a
// soft_fail rule titled with the id itself.
func Lookup(profile models.RegulatoryProfile, checkID string) (Rule, bool) {
	if r, ok := ruleIndex[profile][checkID]; ok {
		return r, true
	}
	return Rule{ID: checkID, Title: checkID, Severity: models.SeveritySoftFail}, false
}
