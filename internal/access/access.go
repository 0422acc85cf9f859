// Package access decides which bills a user may see.
package access

import (
	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
	"github.com/joseph-ayodele/acuvera/internal/repository"
)

// DefaultAdminLimit bounds the admin listing.
const DefaultAdminLimit = 100

// CanAccess reports whether user may read bill. It depends only on role,
// patient id and organization; account activity is checked at authentication.
func CanAccess(bill *entity.Bill, user *entity.User) bool {
	if bill == nil || user == nil {
		return false
	}
	switch user.Role {
	case constants.RoleAdmin:
		return true
	case constants.RolePatient:
		return bill.PatientID == user.ID
	case constants.RoleProvider:
		return user.OrganizationID != nil &&
			bill.OrganizationID != nil &&
			*bill.OrganizationID == *user.OrganizationID
	default:
		return false
	}
}

// Authorize is CanAccess as an error.
func Authorize(bill *entity.Bill, user *entity.User) error {
	if CanAccess(bill, user) {
		return nil
	}
	var uid, bid int64
	if user != nil {
		uid = user.ID
	}
	if bill != nil {
		bid = bill.ID
	}
	return common.PermissionDeniedf("user %d may not access bill %d", uid, bid)
}

// ProviderOrganization returns the organization whose dashboard and export
// user may read. Only active providers and admins with an organization have one.
func ProviderOrganization(user *entity.User) (int64, error) {
	if user == nil || !user.IsActive {
		return 0, common.PermissionDeniedf("an active user is required")
	}
	if user.Role != constants.RoleProvider && user.Role != constants.RoleAdmin {
		return 0, common.PermissionDeniedf("user %d has no provider dashboard", user.ID)
	}
	if user.OrganizationID == nil {
		return 0, common.Validationf("user %d is not associated with an organization", user.ID)
	}
	return *user.OrganizationID, nil
}

// RequireAdmin rejects everyone but active admins.
func RequireAdmin(user *entity.User) error {
	if user == nil || !user.IsActive || user.Role != constants.RoleAdmin {
		return common.PermissionDeniedf("admin role required")
	}
	return nil
}

// Scope is the listing partition for one user. Empty means the user sees nothing.
type Scope struct {
	Filter repository.BillFilter
	Empty  bool
}

// ListScope maps a user onto a bill filter. adminLimit <= 0 uses DefaultAdminLimit.
func ListScope(user *entity.User, adminLimit int) Scope {
	if user == nil {
		return Scope{Empty: true}
	}
	switch user.Role {
	case constants.RoleAdmin:
		if adminLimit <= 0 {
			adminLimit = DefaultAdminLimit
		}
		return Scope{Filter: repository.BillFilter{Limit: adminLimit}}
	case constants.RolePatient:
		id := user.ID
		return Scope{Filter: repository.BillFilter{PatientID: &id}}
	case constants.RoleProvider:
		if user.OrganizationID == nil {
			return Scope{Empty: true}
		}
		org := *user.OrganizationID
		return Scope{Filter: repository.BillFilter{OrganizationID: &org}}
	default:
		return Scope{Empty: true}
	}
}
