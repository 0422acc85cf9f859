package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
)

func ptr(v int64) *int64 { return &v }

func TestPatientSeesOnlyOwnBills(t *testing.T) {
	a := &entity.User{ID: 1, Role: constants.RolePatient, IsActive: true}
	c := &entity.User{ID: 3, Role: constants.RolePatient, IsActive: true}
	bill := &entity.Bill{ID: 10, PatientID: a.ID}

	assert.NoError(t, Authorize(bill, a))
	err := Authorize(bill, c)
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
	assert.NotErrorIs(t, err, common.ErrNotFound)
}

func TestProviderSeesOrganizationBills(t *testing.T) {
	p := &entity.User{ID: 9, Role: constants.RoleProvider, OrganizationID: ptr(5), IsActive: true}

	assert.NoError(t, Authorize(&entity.Bill{ID: 1, OrganizationID: ptr(5)}, p))
	assert.ErrorIs(t, Authorize(&entity.Bill{ID: 2, OrganizationID: ptr(6)}, p), common.ErrPermissionDenied)
	assert.False(t, CanAccess(&entity.Bill{ID: 3}, p))

	unaffiliated := &entity.User{ID: 8, Role: constants.RoleProvider, IsActive: true}
	assert.False(t, CanAccess(&entity.Bill{ID: 4, OrganizationID: ptr(5)}, unaffiliated))
}

// Exhaustive over a small universe of users and bills.
func TestAccessPartition(t *testing.T) {
	var users []*entity.User
	id := int64(1)
	for _, role := range []constants.Role{constants.RoleAdmin, constants.RolePatient, constants.RoleProvider, constants.Role("AUDITOR")} {
		for _, org := range []*int64{nil, ptr(5), ptr(6)} {
			for _, active := range []bool{true, false} {
				users = append(users, &entity.User{ID: id, Role: role, OrganizationID: org, IsActive: active})
				id++
			}
		}
	}
	var bills []*entity.Bill
	for pid := int64(1); pid <= id; pid++ {
		for _, org := range []*int64{nil, ptr(5), ptr(6)} {
			bills = append(bills, &entity.Bill{ID: int64(len(bills) + 1), PatientID: pid, OrganizationID: org})
		}
	}

	for _, u := range users {
		for _, b := range bills {
			want := u.Role == constants.RoleAdmin ||
				(u.Role == constants.RolePatient && b.PatientID == u.ID) ||
				(u.Role == constants.RoleProvider && u.OrganizationID != nil && b.OrganizationID != nil && *b.OrganizationID == *u.OrganizationID)
			assert.Equal(t, want, CanAccess(b, u), "user %d (%s) bill %d", u.ID, u.Role, b.ID)
		}
	}
}

func TestAccessIgnoresActivity(t *testing.T) {
	admin := &entity.User{ID: 1, Role: constants.RoleAdmin}
	assert.True(t, CanAccess(&entity.Bill{ID: 1}, admin))
	assert.False(t, ListScope(admin, 0).Empty)

	patient := &entity.User{ID: 2, Role: constants.RolePatient}
	assert.True(t, CanAccess(&entity.Bill{ID: 2, PatientID: 2}, patient))

	assert.False(t, CanAccess(&entity.Bill{ID: 1}, nil))
	assert.False(t, CanAccess(nil, admin))
	assert.True(t, ListScope(nil, 0).Empty)
}

func TestListScope(t *testing.T) {
	admin := ListScope(&entity.User{ID: 1, Role: constants.RoleAdmin, IsActive: true}, 0)
	assert.False(t, admin.Empty)
	assert.Equal(t, DefaultAdminLimit, admin.Filter.Limit)
	assert.Nil(t, admin.Filter.PatientID)
	assert.Nil(t, admin.Filter.OrganizationID)

	patient := ListScope(&entity.User{ID: 7, Role: constants.RolePatient, IsActive: true}, 0)
	require.NotNil(t, patient.Filter.PatientID)
	assert.Equal(t, int64(7), *patient.Filter.PatientID)
	assert.Zero(t, patient.Filter.Limit)

	provider := ListScope(&entity.User{ID: 8, Role: constants.RoleProvider, OrganizationID: ptr(5), IsActive: true}, 0)
	require.NotNil(t, provider.Filter.OrganizationID)
	assert.Equal(t, int64(5), *provider.Filter.OrganizationID)

	assert.True(t, ListScope(&entity.User{ID: 9, Role: constants.RoleProvider, IsActive: true}, 0).Empty)
	assert.True(t, ListScope(&entity.User{ID: 9, Role: "AUDITOR", IsActive: true}, 0).Empty)
	assert.Equal(t, 25, ListScope(&entity.User{ID: 1, Role: constants.RoleAdmin, IsActive: true}, 25).Filter.Limit)
}

func TestProviderOrganization(t *testing.T) {
	id, err := ProviderOrganization(&entity.User{ID: 2, Role: constants.RoleProvider, OrganizationID: ptr(5), IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	_, err = ProviderOrganization(&entity.User{ID: 2, Role: constants.RoleProvider, IsActive: true})
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = ProviderOrganization(&entity.User{ID: 3, Role: constants.RolePatient, OrganizationID: ptr(5), IsActive: true})
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
	_, err = ProviderOrganization(&entity.User{ID: 4, Role: constants.RoleAdmin, OrganizationID: ptr(5)})
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
	_, err = ProviderOrganization(nil)
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
}

func TestRequireAdmin(t *testing.T) {
	org := int64(3)
	assert.NoError(t, RequireAdmin(&entity.User{ID: 1, Role: constants.RoleAdmin, IsActive: true}))
	for name, u := range map[string]*entity.User{
		"nil":      nil,
		"patient":  {ID: 2, Role: constants.RolePatient, IsActive: true},
		"provider": {ID: 3, Role: constants.RoleProvider, OrganizationID: &org, IsActive: true},
		"inactive": {ID: 4, Role: constants.RoleAdmin},
	} {
		assert.ErrorIs(t, RequireAdmin(u), common.ErrPermissionDenied, name)
	}
}
