package analyzer

import (
	"encoding/json"
	"strings"
)

// MaxPromptChars bounds the bill text sent in one request.
const MaxPromptChars = 12000

// BuildSystemPrompt describes the reviewer role and the answer shape.
func BuildSystemPrompt() string {
	parts := []string{
		"You are a medical billing expert reviewing a patient's bill for errors.",
		"Return ONLY a JSON object that matches the provided JSON Schema.",
		"Extract every billed line item with its description, CPT/HCPCS code, quantity, unit_price and total_price.",
		"Report each problem in detected_issues with a category of Financial, Coding, Insurance, Administrative or Compliance.",
		"Use severity low, medium, high or critical, and a confidence between 0 and 1.",
		"List the descriptions or codes of the line items each issue concerns in affected_items.",
		"Estimate estimated_savings in US dollars when the issue has a monetary impact.",
		"risk_score is an integer from 0 (clean) to 100 (almost certainly wrong).",
		"Put line items that look correct in clean_items and anything needed for a full review in missing_information.",
		"Never output null. If a field is unknown, omit it.",
	}
	return strings.Join(parts, " ")
}

// BuildTextPrompt wraps extracted bill text for the user message.
func BuildTextPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Analyze the following medical bill text.\n\nBill text:\n")
	if len(text) > MaxPromptChars {
		b.WriteString(strings.ToValidUTF8(text[:MaxPromptChars], ""))
	} else {
		b.WriteString(text)
	}
	return b.String()
}

// ImagePrompt introduces rendered bill pages.
const ImagePrompt = "Analyze the medical bill shown in these page images."

// SchemaPrompt renders the payload schema for the system message.
func SchemaPrompt() string {
	b, _ := json.MarshalIndent(BuildPayloadJSONSchema(), "", "  ")
	return "JSON Schema:\n" + string(b)
}
