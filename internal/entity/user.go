package entity

import (
	"time"

	"github.com/joseph-ayodele/acuvera/constants"
)

// User is a patient, provider or admin.
type User struct {
	ID             int64          `json:"id"`
	Email          string         `json:"email"`
	FullName       string         `json:"full_name"`
	Role           constants.Role `json:"role"`
	OrganizationID *int64         `json:"organization_id,omitempty"`
	IsActive       bool           `json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Organization groups providers and the bills attributed to them.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
