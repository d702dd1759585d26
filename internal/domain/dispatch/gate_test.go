package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetline/dispatch/internal/domain/model"
	"github.com/fleetline/dispatch/internal/testutil"
)

func TestGateCanView(t *testing.T) {
	gate := Gate{}
	job := testutil.NewJob().WithVisibleTo("dispatcher-1", "driver-1").Build()

	owner := testutil.NewUser("owner-1").WithRole(model.RoleOwner).Build()
	admin := testutil.NewUser("admin-1").WithRole(model.RoleAdmin).Build()
	listed := testutil.NewUser("driver-1").Build()
	outsider := testutil.NewUser("driver-2").Build()

	assert.True(t, gate.CanView(&owner, job), "owners see everything")
	assert.True(t, gate.CanView(&admin, job), "admins see everything")
	assert.True(t, gate.CanView(&listed, job))
	assert.False(t, gate.CanView(&outsider, job))
	assert.False(t, gate.CanView(nil, job))
}

func TestGateCanDelete(t *testing.T) {
	gate := Gate{}

	owner := testutil.NewUser("owner-1").WithRole(model.RoleOwner).Build()
	dispatcher := testutil.NewUser("disp-1").WithRole(model.RoleDispatcher).Build()

	assert.True(t, gate.CanDelete(&owner))
	assert.False(t, gate.CanDelete(&dispatcher))
}

func TestGateCanApproveGOA(t *testing.T) {
	gate := Gate{}

	tests := []struct {
		role model.Role
		want bool
	}{
		{model.RoleOwner, true},
		{model.RoleAdmin, true},
		{model.RoleDispatcher, true},
		{model.RoleRegionalManager, true},
		{model.RoleServiceProvider, true},
		{model.RoleDriver, false},
		{model.RoleNone, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			user := testutil.NewUser("u").WithRole(tt.role).Build()
			assert.Equal(t, tt.want, gate.CanApproveGOA(&user))
		})
	}
}

func TestGateCanApproveUnsuccessful(t *testing.T) {
	gate := Gate{PlatformVendorID: "platform"}

	owner := testutil.NewUser("o").WithRole(model.RoleOwner).Build()
	rm := testutil.NewUser("rm").WithRole(model.RoleRegionalManager).Build()
	platformDispatcher := testutil.NewUser("pd").WithRole(model.RoleDispatcher).WithVendor("platform").Build()
	vendorDispatcher := testutil.NewUser("vd").WithRole(model.RoleDispatcher).WithVendor("acme").Build()
	driver := testutil.NewUser("d").Build()

	assert.True(t, gate.CanApproveUnsuccessful(&owner))
	assert.True(t, gate.CanApproveUnsuccessful(&rm))
	assert.True(t, gate.CanApproveUnsuccessful(&platformDispatcher))
	assert.False(t, gate.CanApproveUnsuccessful(&vendorDispatcher))
	assert.False(t, gate.CanApproveUnsuccessful(&driver))
}

func TestGateCanManage(t *testing.T) {
	gate := Gate{}

	admin := testutil.NewUser("a").WithRole(model.RoleAdmin).Build()
	disp := testutil.NewUser("d1").WithRole(model.RoleDispatcher).WithVendor("acme").Build()
	sameVendor := testutil.NewUser("d2").WithVendor("acme").Build()
	otherVendor := testutil.NewUser("d3").WithVendor("rival").Build()

	assert.True(t, gate.CanManage(&admin, &otherVendor))
	assert.True(t, gate.CanManage(&disp, &sameVendor))
	assert.False(t, gate.CanManage(&disp, &otherVendor))
	assert.True(t, gate.CanManage(&sameVendor, &sameVendor), "anyone may manage themselves")
}
