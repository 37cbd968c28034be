package policy

import (
	"testing"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	e := Default()

	tests := []struct {
		role     model.Role
		resource Resource
		action   Action
		want     bool
	}{
		{model.RoleAdmin, ResourceReport, ActionExport, true},
		{model.RoleAdmin, ResourceProperty, ActionDelete, true},
		{model.RoleLandlord, ResourceProperty, ActionCreate, true},
		{model.RoleLandlord, ResourcePayment, ActionVerify, true},
		{model.RoleManager, ResourceProperty, ActionCreate, false},
		{model.RoleManager, ResourceProperty, ActionDelete, false},
		{model.RoleManager, ResourceLease, ActionActivate, true},
		{model.RoleTenant, ResourcePayment, ActionCreate, true},
		{model.RoleTenant, ResourcePayment, ActionVerify, false},
		{model.RoleTenant, ResourceLease, ActionActivate, false},
		{model.RoleTenant, ResourceMaintenance, ActionTransition, false},
		{model.RoleTenant, ResourceMaintenance, ActionCancel, true},
		{model.RoleTenant, ResourceReport, ActionRead, false},
		{model.Role("owner"), ResourceLease, ActionRead, false},
	}
	for _, tt := range tests {
		got := e.Allowed(tt.role, tt.resource, tt.action)
		assert.Equal(t, tt.want, got, "%s %s %s", tt.role, tt.action, tt.resource)
	}
}

func TestAuthorize(t *testing.T) {
	e := Default()

	assert.NoError(t, e.Authorize(Actor{UserID: 1, Role: model.RoleLandlord}, ResourceInvoice, ActionSend))

	err := e.Authorize(Actor{UserID: 1, Role: model.RoleTenant}, ResourceInvoice, ActionSend)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Contains(t, err.Error(), "tenant may not send invoice")

	assert.ErrorIs(t, e.Authorize(Actor{Role: model.RoleAdmin}, ResourceInvoice, ActionRead), ErrForbidden)
}

func TestPermissions(t *testing.T) {
	got := Default().Permissions(model.RoleTenant)

	want := map[Resource][]Action{
		ResourceProperty:    {ActionList, ActionRead},
		ResourceLease:       {ActionList, ActionRead, ActionRemind},
		ResourceInvoice:     {ActionList, ActionRead},
		ResourcePayment:     {ActionCreate, ActionList, ActionRead},
		ResourceMaintenance: {ActionCancel, ActionCreate, ActionList, ActionRead},
		ResourceDashboard:   {ActionRead},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Permissions(tenant) mismatch (-want +got):\n%s", diff)
	}
}

func TestReload(t *testing.T) {
	e := Default()
	require.False(t, e.Allowed(model.RoleTenant, ResourceReport, ActionRead))

	require.NoError(t, e.Reload([]byte(`
roles:
  tenant:
    report: [read]
`)))
	assert.True(t, e.Allowed(model.RoleTenant, ResourceReport, ActionRead))
	assert.False(t, e.Allowed(model.RoleLandlord, ResourceProperty, ActionRead))
}

func TestReloadKeepsRulesOnError(t *testing.T) {
	e := Default()

	assert.Error(t, e.Reload([]byte("roles: [")))
	assert.Error(t, e.Reload([]byte("roles:\n  owner:\n    property: [read]\n")))
	assert.Error(t, e.Reload([]byte("roles:\n  tenant:\n    garage: [read]\n")))
	assert.Error(t, e.Reload([]byte("other: 1\n")))

	assert.True(t, e.Allowed(model.RoleLandlord, ResourceProperty, ActionCreate))
}

func TestLoadFile(t *testing.T) {
	e, err := LoadFile("")
	require.NoError(t, err)
	assert.True(t, e.Allowed(model.RoleLandlord, ResourceLease, ActionActivate))

	_, err = LoadFile("/does/not/exist.yaml")
	assert.Error(t, err)
}
