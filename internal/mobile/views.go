package mobile

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/entity"
)

const (
	defaultProviderName    = "Medical Provider"
	defaultConfidenceScore = 85.0
	defaultNextSteps       = "Contact your billing department to resolve this issue."
	processingETASeconds   = 15
)

// BillingPhone is shown on the call action until providers carry their own number.
var BillingPhone = "(555) 123-4567"

var errorTypes = map[constants.FindingType]string{
	constants.FindingDuplicateCharge: "duplicate",
	constants.FindingIncorrectCoding: "upcoding",
	constants.FindingOvercharge:      "upcoding",
	constants.FindingMissingDiscount: "coverage-mismatch",
	constants.FindingDenialRisk:      "out-of-network",
	constants.FindingOther:           "coverage-mismatch",
}

var severities = map[constants.Severity]string{
	constants.SeverityLow:      "low",
	constants.SeverityMedium:   "medium",
	constants.SeverityHigh:     "high",
	constants.SeverityCritical: "high",
}

var resolutions = map[constants.Severity]string{
	constants.SeverityLow:      "3-5 business days",
	constants.SeverityMedium:   "5-7 business days",
	constants.SeverityHigh:     "2-3 business days",
	constants.SeverityCritical: "1-2 business days",
}

type FlaggedItem struct {
	ID                  string  `json:"id"`
	ServiceName         string  `json:"serviceName"`
	ServiceCode         string  `json:"serviceCode"`
	ChargedAmount       float64 `json:"chargedAmount"`
	ExpectedAmount      float64 `json:"expectedAmount"`
	Savings             float64 `json:"savings"`
	Severity            string  `json:"severity"`
	ErrorType           string  `json:"errorType"`
	Explanation         string  `json:"explanation"`
	WhyMatters          string  `json:"whyMatters"`
	NextSteps           string  `json:"nextSteps"`
	SuccessProbability  float64 `json:"successProbability"`
	EstimatedResolution string  `json:"estimatedResolution"`
}

type BillAnalysis struct {
	ID               string        `json:"id"`
	ProviderName     string        `json:"providerName"`
	Date             string        `json:"date"`
	TotalAmount      float64       `json:"totalAmount"`
	PotentialSavings float64       `json:"potentialSavings"`
	ConfidenceScore  float64       `json:"confidenceScore"`
	Status           string        `json:"status"`
	FlaggedItems     []FlaggedItem `json:"flaggedItems"`
}

type UserStats struct {
	MonthlySavings     float64 `json:"monthlySavings"`
	MonthlyTrend       float64 `json:"monthlyTrend"`
	TotalSavedThisYear float64 `json:"totalSavedThisYear"`
	BillsAnalyzed      int     `json:"billsAnalyzed"`
	IssuesFound        int     `json:"issuesFound"`
}

type Action struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Badge       string `json:"badge,omitempty"`
	Type        string `json:"type"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type AnalysisStatus struct {
	BillID                 string  `json:"billId"`
	Status                 string  `json:"status"`
	Progress               float64 `json:"progress"`
	CurrentStep            string  `json:"currentStep"`
	EstimatedTimeRemaining *int    `json:"estimatedTimeRemaining,omitempty"`
	Error                  *string `json:"error,omitempty"`
}

// NewFlaggedItem projects a finding and its line item, which may be nil.
func NewFlaggedItem(f entity.Finding, li *entity.LineItem) FlaggedItem {
	errType, ok := errorTypes[f.Type]
	if !ok {
		errType = "coverage-mismatch"
	}
	sev, ok := severities[f.Severity]
	if !ok {
		sev = "medium"
	}
	resolution, ok := resolutions[f.Severity]
	if !ok {
		resolution = resolutions[constants.SeverityLow]
	}

	name, code := "Unknown Service", "N/A"
	charged, expected := f.EstimatedSavings*2, f.EstimatedSavings
	if li != nil {
		name = li.Description
		if li.Code != nil {
			code = *li.Code
		}
		charged = li.TotalPrice
		expected = charged - f.EstimatedSavings
	}

	penalty := 5.0
	if f.Severity == constants.SeverityHigh {
		penalty = 10
	}
	success := math.Max(60, math.Min(95, f.Confidence*100-penalty))

	next := f.RecommendedAction
	if next == "" {
		next = defaultNextSteps
	}

	return FlaggedItem{
		ID:                  strconv.FormatInt(f.ID, 10),
		ServiceName:         name,
		ServiceCode:         code,
		ChargedAmount:       round(charged, 2),
		ExpectedAmount:      round(expected, 2),
		Savings:             round(f.EstimatedSavings, 2),
		Severity:            sev,
		ErrorType:           errType,
		Explanation:         f.Explanation,
		WhyMatters:          fmt.Sprintf("This %s can significantly impact your out-of-pocket costs.", errType),
		NextSteps:           next,
		SuccessProbability:  math.Round(success),
		EstimatedResolution: resolution,
	}
}

// NewBillAnalysis projects a bill with its findings and line items.
func NewBillAnalysis(b entity.Bill, findings []entity.Finding, items []entity.LineItem) BillAnalysis {
	byID := make(map[int64]*entity.LineItem, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}

	savings := decimal.Zero
	var conf float64
	flagged := make([]FlaggedItem, 0, len(findings))
	for _, f := range findings {
		savings = savings.Add(decimal.NewFromFloat(f.EstimatedSavings))
		conf += f.Confidence
		var li *entity.LineItem
		if f.LineItemID != nil {
			li = byID[*f.LineItemID]
		}
		flagged = append(flagged, NewFlaggedItem(f, li))
	}
	score := defaultConfidenceScore
	if len(findings) > 0 {
		score = round(conf/float64(len(findings))*100, 1)
	}

	status := "pending"
	if b.Status == constants.BillStatusCompleted {
		status = "analyzed"
	}
	var total float64
	if b.TotalAmount != nil {
		total = *b.TotalAmount
	}

	return BillAnalysis{
		ID:               strconv.FormatInt(b.ID, 10),
		ProviderName:     ProviderName(b.FileName),
		Date:             b.UploadedAt.UTC().Format(time.RFC3339),
		TotalAmount:      round(total, 2),
		PotentialSavings: savings.Round(2).InexactFloat64(),
		ConfidenceScore:  score,
		Status:           status,
		FlaggedItems:     flagged,
	}
}

// ProviderName derives a display name from an uploaded file name.
func ProviderName(fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	base = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(base))
	if len(base) < 3 {
		return defaultProviderName
	}
	return cases.Title(language.English).String(base)
}

// Actions lists the recommended next steps for a finding.
func Actions(f entity.Finding) []Action {
	id := strconv.FormatInt(f.ID, 10)
	out := []Action{{
		ID:          "action-" + id + "-1",
		Title:       "Generate Appeal Email",
		Icon:        "mail",
		Description: "AI-drafted email to billing department",
		Badge:       "Most effective",
		Type:        "email",
	}}
	if f.Type == constants.FindingDuplicateCharge || f.Type == constants.FindingOvercharge {
		out = append(out, Action{
			ID:          "action-" + id + "-2",
			Title:       "Request Itemized Bill",
			Icon:        "file-text",
			Description: "Get detailed breakdown of charges",
			Type:        "request",
		})
	}
	return append(out,
		Action{
			ID:          "action-" + id + "-3",
			Title:       "Call Billing Department",
			Icon:        "phone",
			Description: "Speak with a representative",
			Type:        "call",
			PhoneNumber: BillingPhone,
		},
		Action{
			ID:          "action-" + id + "-4",
			Title:       "Save for Later",
			Icon:        "bookmark",
			Description: "Add to your saved items",
			Type:        "save",
		},
	)
}

// NewAnalysisStatus reports progress for a polling client. job may be nil.
func NewAnalysisStatus(b entity.Bill, job *entity.AnalysisJob) AnalysisStatus {
	st := AnalysisStatus{
		BillID: strconv.FormatInt(b.ID, 10),
		Status: strings.ToLower(string(b.Status)),
	}
	switch b.Status {
	case constants.BillStatusCompleted:
		st.Progress = 100
		st.CurrentStep = "Analysis complete"
	case constants.BillStatusProcessing:
		eta := processingETASeconds
		st.Progress = 50
		st.CurrentStep = "Analyzing billing codes..."
		st.EstimatedTimeRemaining = &eta
	case constants.BillStatusFailed:
		st.CurrentStep = "Analysis failed"
		if job != nil {
			st.Error = job.ErrorMessage
		}
	default:
		st.CurrentStep = "Waiting to start..."
	}
	return st
}

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
