package analysis

import (
	"strings"

	"github.com/joseph-ayodele/acuvera/constants"
)

// categoryRule maps an analyzer category to a finding type. A rule with
// keywords applies only when the issue description contains one of them.
type categoryRule struct {
	category string
	keywords []string
	typ      constants.FindingType
}

// Evaluated in order; first match wins.
var categoryRules = []categoryRule{
	{"financial", []string{"duplicate", "duplicated", "repeated"}, constants.FindingDuplicateCharge},
	{"financial", []string{"discount", "negotiated rate", "contracted rate"}, constants.FindingMissingDiscount},
	{"financial", nil, constants.FindingOvercharge},
	{"coding", nil, constants.FindingIncorrectCoding},
	{"insurance", nil, constants.FindingDenialRisk},
	{"administrative", nil, constants.FindingOther},
	{"compliance", nil, constants.FindingOther},
	{"administrative/compliance", nil, constants.FindingOther},
}

type keywordRule struct {
	keywords []string
	typ      constants.FindingType
}

// keywordRules classify issues whose category is not recognized.
var keywordRules = []keywordRule{
	{[]string{"duplicate"}, constants.FindingDuplicateCharge},
	{[]string{"upcoding", "unbundl", "code", "cpt", "hcpcs", "icd", "modifier"}, constants.FindingIncorrectCoding},
	{[]string{"overcharge", "excess", "higher than", "above"}, constants.FindingOvercharge},
	{[]string{"discount", "negotiat"}, constants.FindingMissingDiscount},
	{[]string{"denial", "denied", "deny", "eligib"}, constants.FindingDenialRisk},
}

var severityTable = map[string]constants.Severity{
	"low":      constants.SeverityLow,
	"medium":   constants.SeverityMedium,
	"high":     constants.SeverityHigh,
	"critical": constants.SeverityCritical,
	"severe":   constants.SeverityCritical,
}

// MapFindingType resolves an analyzer category and description to a finding type.
func MapFindingType(category, description string) constants.FindingType {
	cat := canonicalCategory(category)
	desc := strings.ToLower(description)

	known := false
	for _, r := range categoryRules {
		if r.category != cat {
			continue
		}
		known = true
		if len(r.keywords) == 0 || containsAny(desc, r.keywords) {
			return r.typ
		}
	}
	if known {
		return constants.FindingOther
	}
	for _, r := range keywordRules {
		if containsAny(desc, r.keywords) {
			return r.typ
		}
	}
	return constants.FindingOther
}

// canonicalCategory lower-cases category and joins its parts with a bare "/",
// so "Administrative / Compliance" and "Administrative & Compliance" both
// read "administrative/compliance".
func canonicalCategory(category string) string {
	parts := strings.FieldsFunc(strings.ToLower(category), func(r rune) bool {
		return r == '/' || r == '&'
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// MapSeverity defaults to MEDIUM for anything unrecognized.
func MapSeverity(s string) constants.Severity {
	if sev, ok := severityTable[strings.ToLower(strings.TrimSpace(s))]; ok {
		return sev
	}
	return constants.SeverityMedium
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

var explanations = map[constants.FindingType]string{
	constants.FindingDuplicateCharge: "This charge appears to be duplicated from a previous billing cycle.",
	constants.FindingIncorrectCoding: "The procedure code may not match the service description provided.",
	constants.FindingOvercharge:      "The billed amount exceeds the typical range for this service.",
	constants.FindingMissingDiscount: "A negotiated discount may not have been applied to this charge.",
	constants.FindingDenialRisk:      "This claim has characteristics that may lead to denial by the payer.",
	constants.FindingOther:           "An anomaly was detected that requires manual review.",
}

var actions = map[constants.FindingType]string{
	constants.FindingDuplicateCharge: "Contact the billing department to verify and remove duplicate charge.",
	constants.FindingIncorrectCoding: "Review the procedure code and update if necessary before resubmission.",
	constants.FindingOvercharge:      "Verify the charge amount against the service agreement or fee schedule.",
	constants.FindingMissingDiscount: "Apply the negotiated discount rate before finalizing the bill.",
	constants.FindingDenialRisk:      "Review claim documentation and consider pre-authorization before submission.",
	constants.FindingOther:           "Manually review this item with the billing team for resolution.",
}

func explanationFor(t constants.FindingType) string {
	if s, ok := explanations[t]; ok {
		return s
	}
	return "Review required."
}

func actionFor(t constants.FindingType) string {
	if s, ok := actions[t]; ok {
		return s
	}
	return "Contact billing department."
}
