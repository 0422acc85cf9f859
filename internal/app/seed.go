package app

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
	"github.com/joseph-ayodele/acuvera/internal/repository"
)

// DemoOrganization is the organization the demo accounts belong to.
const (
	DemoOrganization = "Demo Medical Center"
	DemoPatientEmail = "patient@demo.com"
)

type SeedResult struct {
	OrganizationID int64            `json:"organization_id"`
	Users          map[string]int64 `json:"users"`
	UsersCreated   int              `json:"users_created"`
	BillsCreated   int              `json:"bills_created"`
}

var demoUsers = []entity.User{
	{Email: DemoPatientEmail, FullName: "Demo Patient", Role: constants.RolePatient},
	{Email: "provider@demo.com", FullName: "Demo Provider", Role: constants.RoleProvider},
	{Email: "admin@demo.com", FullName: "Demo Admin", Role: constants.RoleAdmin},
}

var demoItems = []entity.LineItem{
	{Description: "Office Visit - Level 3", Code: code("99213"), Quantity: 1, UnitPrice: 150, TotalPrice: 150},
	{Description: "Laboratory - Complete Blood Count", Code: code("85027"), Quantity: 1, UnitPrice: 45, TotalPrice: 45},
	{Description: "X-Ray - Chest 2 Views", Code: code("71020"), Quantity: 1, UnitPrice: 200, TotalPrice: 200},
	{Description: "EKG - 12 Lead", Code: code("93000"), Quantity: 1, UnitPrice: 85, TotalPrice: 85},
	{Description: "Medication - Prescription", Code: code("J3490"), Quantity: 1, UnitPrice: 120, TotalPrice: 120},
}

var demoFindings = []entity.Finding{
	{
		Type: constants.FindingDuplicateCharge, Severity: constants.SeverityHigh, Confidence: 0.92, EstimatedSavings: 150,
		Explanation:       "Office visit charge appears to be duplicated from a previous billing cycle.",
		RecommendedAction: "Contact the billing department to verify and remove duplicate charge.",
	},
	{
		Type: constants.FindingIncorrectCoding, Severity: constants.SeverityMedium, Confidence: 0.85, EstimatedSavings: 45,
		Explanation:       "The procedure code may not match the service description provided.",
		RecommendedAction: "Review the procedure code and update if necessary before resubmission.",
	},
	{
		Type: constants.FindingOvercharge, Severity: constants.SeverityCritical, Confidence: 0.88, EstimatedSavings: 200,
		Explanation:       "The billed amount for X-Ray exceeds the typical range for this service.",
		RecommendedAction: "Verify the charge amount against the service agreement or fee schedule.",
	},
}

func code(s string) *string { return &s }

// Seed creates the demo organization, one account per role and a completed
// demo bill for the patient. Running it again creates nothing new.
func (a *App) Seed(ctx context.Context) (*SeedResult, error) {
	org, err := a.Orgs.GetOrCreateByName(ctx, DemoOrganization)
	if err != nil {
		return nil, err
	}
	res := &SeedResult{OrganizationID: org.ID, Users: map[string]int64{}}

	var patient *entity.User
	for _, du := range demoUsers {
		u, err := a.Users.GetByEmail(ctx, du.Email)
		if errors.Is(err, common.ErrNotFound) {
			nu := du
			nu.IsActive = true
			if nu.Role != constants.RoleAdmin {
				nu.OrganizationID = &org.ID
			}
			u, err = a.Users.Create(ctx, &nu)
			if err == nil {
				res.UsersCreated++
			}
		}
		if err != nil {
			return nil, err
		}
		res.Users[string(u.Role)] = u.ID
		if u.Role == constants.RolePatient {
			patient = u
		}
	}

	existing, err := a.Repos.Bills.List(ctx, repository.BillFilter{PatientID: &patient.ID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		if err := a.seedBill(ctx, patient, org.ID); err != nil {
			return nil, err
		}
		res.BillsCreated++
	}
	a.log.Info("seed.ok", "organization_id", org.ID, "users_created", res.UsersCreated, "bills_created", res.BillsCreated)
	return res, nil
}

func (a *App) seedBill(ctx context.Context, patient *entity.User, orgID int64) error {
	now := time.Now().UTC()
	return a.DB.WithTx(ctx, func(ctx context.Context) error {
		b, err := a.Repos.Bills.Create(ctx, &entity.Bill{
			PatientID:      patient.ID,
			OrganizationID: &orgID,
			FilePath:       "demo_bill.pdf",
			FileName:       "demo_medical_bill.pdf",
			FileType:       constants.FileKindPDF,
			UploadedAt:     now,
		})
		if err != nil {
			return err
		}
		if _, err := a.Repos.Jobs.Create(ctx, b.ID); err != nil {
			return err
		}
		if _, err := a.Repos.Jobs.Claim(ctx, b.ID, now); err != nil {
			return err
		}
		if _, err := a.Repos.LineItems.CreateBulk(ctx, b.ID, demoItems); err != nil {
			return err
		}
		if _, err := a.Repos.Findings.CreateBulk(ctx, b.ID, demoFindings); err != nil {
			return err
		}
		if err := a.Repos.Jobs.MarkCompleted(ctx, b.ID, now); err != nil {
			return err
		}
		return a.Repos.Bills.MarkCompleted(ctx, b.ID, 1250, now)
	})
}
