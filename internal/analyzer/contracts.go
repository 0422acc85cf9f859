package analyzer

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/acuvera/internal/common"
)

// Analyzer turns bill text or page images into a structured payload.
type Analyzer interface {
	AnalyzeText(ctx context.Context, text string) (Payload, error)
	AnalyzeImages(ctx context.Context, images []string) (Payload, error)
}

// Payload is the analyzer's raw answer. Every field is optional.
type Payload struct {
	Summary            Text       `json:"summary"`
	RiskScore          Number     `json:"risk_score"`
	TotalAmount        *Number    `json:"total_amount"`
	LineItems          []LineItem `json:"line_items"`
	DetectedIssues     []Issue    `json:"detected_issues"`
	CleanItems         Strings    `json:"clean_items"`
	MissingInformation Strings    `json:"missing_information"`
}

type LineItem struct {
	Description Text    `json:"description"`
	Code        Text    `json:"code"`
	Quantity    *Number `json:"quantity"`
	UnitPrice   *Number `json:"unit_price"`
	TotalPrice  *Number `json:"total_price"`
}

type Issue struct {
	Category          Text    `json:"category"`
	Severity          Text    `json:"severity"`
	Description       Text    `json:"description"`
	Confidence        *Number `json:"confidence"`
	AffectedItems     Strings `json:"affected_items"`
	RecommendedAction Text    `json:"recommended_action"`
	EstimatedSavings  *Number `json:"estimated_savings"`
}

// Risk returns the risk score as an integer.
func (p Payload) Risk() int {
	return int(math.Round(float64(p.RiskScore)))
}

// DecodePayload decodes analyzer content. Anything other than a JSON object
// is an analyzer failure.
func DecodePayload(raw []byte) (Payload, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Payload{}, common.AnalyzerError("analyzer returned non-JSON content", err)
	}
	if _, ok := v.(map[string]any); !ok {
		return Payload{}, common.AnalyzerError("analyzer returned a non-object JSON value", nil)
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, common.AnalyzerError("decode analyzer payload", err)
	}
	return p, nil
}

// Number accepts JSON numbers, numeric strings and amounts like "$1,250.00".
// Values it cannot read decode as zero.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		*n = Number(t)
	case string:
		if f, ok := ParseAmount(t); ok {
			*n = Number(f)
		}
	case bool:
		if t {
			*n = 1
		}
	}
	return nil
}

func (n *Number) Float() float64 {
	if n == nil {
		return 0
	}
	return float64(*n)
}

// ParseAmount reads a money-ish string such as "$1,250.00" or "12.5%".
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Text accepts strings and scalars; null decodes as "".
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case string:
		*t = Text(strings.TrimSpace(x))
	case float64:
		*t = Text(strconv.FormatFloat(x, 'f', -1, 64))
	case bool:
		*t = Text(strconv.FormatBool(x))
	}
	return nil
}

func (t Text) String() string { return string(t) }

// Strings accepts a list of scalars or a single string.
type Strings []string

func (s *Strings) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	var out []string
	add := func(x any) {
		var t Text
		raw, _ := json.Marshal(x)
		_ = t.UnmarshalJSON(raw)
		if t != "" {
			out = append(out, string(t))
		}
	}
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			add(e)
		}
	case nil:
	default:
		add(x)
	}
	*s = out
	return nil
}
