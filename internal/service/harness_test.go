package service

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetline/dispatch/internal/domain/dispatch"
	"github.com/fleetline/dispatch/internal/domain/model"
	"github.com/fleetline/dispatch/internal/testutil"
)

// testPlatformVendor is the platform's own vendor id in harness fixtures.
const testPlatformVendor = "platform"

// harness wires every engine against in-memory fakes.
type harness struct {
	clock     *fakeClock
	repo      *fakeJobRepo
	directory *fakeDirectory
	vehicles  *fakeVehicles
	timers    *fakeTimers
	publisher *fakePublisher
	sink      *fakeSink

	jobs        *JobService
	assignments *AssignmentService
	acceptance  *AcceptanceService
	status      *StatusService
}

type harnessSeed struct {
	users    []model.User
	jobs     []*model.Job
	vehicles []*model.Vehicle
}

func newHarness(t *testing.T, seed harnessSeed) *harness {
	t.Helper()

	h := &harness{
		clock:     newFakeClock(),
		repo:      newFakeJobRepo(seed.jobs...),
		directory: newFakeDirectory(seed.users...),
		vehicles:  newFakeVehicles(seed.vehicles...),
		timers:    &fakeTimers{},
		publisher: newFakePublisher(),
		sink:      &fakeSink{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fanout, err := NewFanout(FanoutOptions{Publisher: h.publisher, Logger: logger})
	require.NoError(t, err)
	visibility := NewVisibilityResolver(h.directory)
	policy, err := dispatch.NewAcceptancePolicy(0, 0)
	require.NoError(t, err)
	gate := dispatch.Gate{PlatformVendorID: testPlatformVendor}

	h.assignments, err = NewAssignmentService(AssignmentServiceOptions{
		Repo:       h.repo,
		Directory:  h.directory,
		Vehicles:   h.vehicles,
		Timers:     h.timers,
		Visibility: visibility,
		Fanout:     fanout,
		Policy:     policy,
		Clock:      h.clock,
		Logger:     logger,
	})
	require.NoError(t, err)

	h.acceptance, err = NewAcceptanceService(AcceptanceServiceOptions{
		Repo:       h.repo,
		Directory:  h.directory,
		Vehicles:   h.vehicles,
		Timers:     h.timers,
		Visibility: visibility,
		Fanout:     fanout,
		Clock:      h.clock,
		Logger:     logger,
		Metrics:    h.sink,
	})
	require.NoError(t, err)

	h.status, err = NewStatusService(StatusServiceOptions{
		Repo:        h.repo,
		Directory:   h.directory,
		Vehicles:    h.vehicles,
		Timers:      h.timers,
		Visibility:  visibility,
		Fanout:      fanout,
		Assignments: h.assignments,
		Gate:        gate,
		Clock:       h.clock,
		Logger:      logger,
	})
	require.NoError(t, err)

	h.jobs, err = NewJobService(JobServiceOptions{
		Repo:       h.repo,
		Orders:     &fakeOrders{},
		Directory:  h.directory,
		Timers:     h.timers,
		Visibility: visibility,
		Fanout:     fanout,
		Gate:       gate,
		Clock:      h.clock,
		Logger:     logger,
	})
	require.NoError(t, err)

	return h
}

// dispatchFixture is the cast most engine tests need: a dispatcher who
// creates jobs, a driver with a free vehicle, a provider, and an owner.
func dispatchFixture() harnessSeed {
	return harnessSeed{
		users: []model.User{
			testutil.NewUser("dispatcher-1").WithRole(model.RoleDispatcher).WithVendor("acme").Build(),
			testutil.NewUser("driver-1").WithName("Pat Driver").WithVendor("acme").Build(),
			testutil.NewUser("driver-2").WithName("Sam Driver").WithVendor("acme").Build(),
			testutil.NewUser("provider-1").WithName("TowCo Desk").WithRole(model.RoleServiceProvider).WithVendor("towco").Build(),
			testutil.NewUser("owner-1").WithRole(model.RoleOwner).WithVendor(testPlatformVendor).Build(),
		},
		vehicles: []*model.Vehicle{
			{ID: "veh-1", Name: "Truck 1", VendorID: "acme", OnDuty: true},
			{ID: "veh-2", Name: "Truck 2", VendorID: "acme", OnDuty: true},
		},
	}
}

func pendingJob() *model.Job {
	return testutil.NewJob().Build()
}

func assignedJob(clockNow time.Time, actorID, name string, window time.Duration) *model.Job {
	return testutil.NewJob().AssignedTo(actorID, name, clockNow, window).Build()
}
