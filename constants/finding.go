package constants

// FindingType is the canonical finding taxonomy stored on findings.type.
type FindingType string

const (
	FindingDuplicateCharge FindingType = "DUPLICATE_CHARGE"
	FindingIncorrectCoding FindingType = "INCORRECT_CODING"
	FindingOvercharge      FindingType = "OVERCHARGE"
	FindingMissingDiscount FindingType = "MISSING_DISCOUNT"
	FindingDenialRisk      FindingType = "DENIAL_RISK"
	FindingOther           FindingType = "OTHER"
)

// FindingTypes lists every type in declaration order.
var FindingTypes = []FindingType{
	FindingDuplicateCharge,
	FindingIncorrectCoding,
	FindingOvercharge,
	FindingMissingDiscount,
	FindingDenialRisk,
	FindingOther,
}

// Severity is stored on findings.severity.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
