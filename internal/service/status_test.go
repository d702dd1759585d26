package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetline/dispatch/internal/domain/model"
	apperrors "github.com/fleetline/dispatch/internal/errors"
	"github.com/fleetline/dispatch/internal/testutil"
)

// statusHarness builds a harness around a single job in the given status,
// optionally assigned to driver-1.
func statusHarness(t *testing.T, status model.JobStatus, assigned bool) *harness {
	t.Helper()
	builder := testutil.NewJob()
	if assigned {
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		builder.AssignedTo("driver-1", "Pat Driver", now, 2*time.Minute)
	}
	seed := dispatchFixture()
	seed.jobs = []*model.Job{builder.WithStatus(status).Build()}
	return newHarness(t, seed)
}

func TestUpdateStatusStampsTimestamps(t *testing.T) {
	ctx := context.Background()
	h := statusHarness(t, model.JobStatusDispatched, true)

	job, err := h.status.UpdateStatus(ctx, UpdateStatusParams{JobID: "job-1", Status: model.JobStatusEnRoute})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusEnRoute, job.Status)
	require.NotNil(t, job.EnRouteAt)
	assert.Equal(t, h.clock.Now(), *job.EnRouteAt)

	h.clock.Advance(15 * time.Minute)
	job, err = h.status.UpdateStatus(ctx, UpdateStatusParams{JobID: "job-1", Status: model.JobStatusOnSite})
	require.NoError(t, err)
	require.NotNil(t, job.OnSiteAt)
	assert.Equal(t, h.clock.Now(), *job.OnSiteAt)

	job, err = h.status.UpdateStatus(ctx, UpdateStatusParams{JobID: "job-1", Status: model.JobStatusCompleted})
	require.NoError(t, err)
	require.NotNil(t, job.CompletedAt)
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	h := statusHarness(t, model.JobStatusPending, false)

	_, err := h.status.UpdateStatus(context.Background(), UpdateStatusParams{JobID: "job-1", Status: "limbo"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	h := statusHarness(t, model.JobStatusCompleted, false)

	_, err := h.status.UpdateStatus(context.Background(), UpdateStatusParams{JobID: "job-1", Status: model.JobStatusEnRoute})
	assert.True(t, apperrors.IsInvalidTransition(err))
}

func TestUpdateStatusCancelDisarmsAcceptanceWindow(t *testing.T) {
	ctx := context.Background()
	h := statusHarness(t, model.JobStatusPendingAcceptance, true)

	job, err := h.status.UpdateStatus(ctx, UpdateStatusParams{
		JobID: "job-1", Status: model.JobStatusCanceled, Reason: "customer called back",
	})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusCanceled, job.Status)
	assert.Equal(t, "customer called back", job.CancelReason)
	assert.Contains(t, h.timers.canceled, "job-1")
}

func TestUpdateStatusWaitingUnassigns(t *testing.T) {
	ctx := context.Background()
	h := statusHarness(t, model.JobStatusDispatched, true)
	require.NoError(t, h.vehicles.Bind(ctx, "veh-1", "driver-1"))

	job, err := h.status.UpdateStatus(ctx, UpdateStatusParams{JobID: "job-1", Status: model.JobStatusWaiting})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusWaiting, job.Status)
	assert.False(t, job.Assigned())
	assert.Nil(t, h.vehicles.boundTo("driver-1"), "vehicle released when the actor is removed")
	assert.True(t, h.publisher.received("driver-1", EventJobRemoved))
}

func TestUpdateStatusGOARequestNeedsReason(t *testing.T) {
	ctx := context.Background()
	h := statusHarness(t, model.JobStatusOnSite, true)

	_, err := h.status.UpdateStatus(ctx, UpdateStatusParams{JobID: "job-1", Status: model.JobStatusAwaitingApproval})
	require.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "reason", apperrors.GetField(err))

	job, err := h.status.UpdateStatus(ctx, UpdateStatusParams{
		JobID: "job-1", Status: model.JobStatusAwaitingApproval, Reason: "customer gone on arrival",
	})
	require.NoError(t, err)
	assert.Equal(t, "customer gone on arrival", job.GOAReason)
	assert.Equal(t, model.ApprovalPending, job.GOAApproval.Status)
}

func TestUpdateStatusUnsuccessfulNeedsReason(t *testing.T) {
	ctx := context.Background()
	h := statusHarness(t, model.JobStatusOnSite, true)

	_, err := h.status.UpdateStatus(ctx, UpdateStatusParams{JobID: "job-1", Status: model.JobStatusUnsuccessful})
	require.True(t, apperrors.IsValidation(err))

	job, err := h.status.UpdateStatus(ctx, UpdateStatusParams{
		JobID: "job-1", Status: model.JobStatusUnsuccessful, Reason: "vehicle not serviceable",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalPending, job.UnsuccessfulApproval.Status)
}

func TestUpdateStatusWithNewActorReassigns(t *testing.T) {
	ctx := context.Background()
	h := statusHarness(t, model.JobStatusPendingAcceptance, true)

	job, err := h.status.UpdateStatus(ctx, UpdateStatusParams{
		JobID: "job-1", Status: model.JobStatusDispatched, ActorID: "driver-2",
	})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusPendingAcceptance, job.Status, "a new actor restarts the acceptance flow")
	assert.Equal(t, "driver-2", job.AssignedActorID())
	require.Len(t, job.PreviousDrivers, 1)
	assert.Equal(t, "driver-1", job.PreviousDrivers[0].ActorID)

	handle, ok := h.timers.lastArmed()
	require.True(t, ok)
	assert.Equal(t, "driver-2", handle.ActorID)
}

func TestUpdateStatusWithCurrentActorKeepsWindow(t *testing.T) {
	ctx := context.Background()
	h := statusHarness(t, model.JobStatusDispatched, true)

	job, err := h.status.UpdateStatus(ctx, UpdateStatusParams{
		JobID: "job-1", Status: model.JobStatusEnRoute, ActorID: "driver-1",
	})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusEnRoute, job.Status)
	_, armed := h.timers.lastArmed()
	assert.False(t, armed, "no acceptance window opens for the current assignee")
}

func goaPendingHarness(t *testing.T) *harness {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	job := testutil.NewJob().AssignedTo("driver-1", "Pat Driver", now, 2*time.Minute).
		WithStatus(model.JobStatusAwaitingApproval).Build()
	job.NeedsAcceptance = false
	job.GOAReason = "customer gone on arrival"
	job.GOAApproval = model.Approval{Status: model.ApprovalPending}
	seed := dispatchFixture()
	seed.jobs = []*model.Job{job}
	return newHarness(t, seed)
}

func TestApproveGOA(t *testing.T) {
	ctx := context.Background()
	h := goaPendingHarness(t)

	job, err := h.status.ApproveGOA(ctx, ApprovalParams{JobID: "job-1", ReviewerID: "dispatcher-1"})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusGOA, job.Status)
	assert.Equal(t, model.ApprovalApproved, job.GOAApproval.Status)
	assert.Equal(t, "dispatcher-1", job.GOAApproval.ReviewerID)
	require.NotNil(t, job.GOAApproval.ReviewedAt)
	assert.True(t, h.publisher.received("driver-1", EventGOAApproved))
}

func TestDenyGOA(t *testing.T) {
	ctx := context.Background()
	h := goaPendingHarness(t)

	job, err := h.status.DenyGOA(ctx, ApprovalParams{
		JobID: "job-1", ReviewerID: "owner-1", Reason: "photos show customer present",
	})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusRejected, job.Status)
	assert.Equal(t, model.ApprovalRejected, job.GOAApproval.Status)
	assert.Equal(t, "photos show customer present", job.RejectionReason)
	assert.True(t, h.publisher.received("driver-1", EventGOADenied))
}

func TestGOAReviewRequiresPermission(t *testing.T) {
	h := goaPendingHarness(t)

	_, err := h.status.ApproveGOA(context.Background(), ApprovalParams{JobID: "job-1", ReviewerID: "driver-2"})
	assert.True(t, apperrors.IsForbidden(err))
}

func TestGOAReviewNeedsPendingRequest(t *testing.T) {
	h := statusHarness(t, model.JobStatusOnSite, true)

	_, err := h.status.ApproveGOA(context.Background(), ApprovalParams{JobID: "job-1", ReviewerID: "owner-1"})
	assert.True(t, apperrors.IsInvalidState(err))
}

func unsuccessfulPendingHarness(t *testing.T) *harness {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	job := testutil.NewJob().AssignedTo("driver-1", "Pat Driver", now, 2*time.Minute).
		WithStatus(model.JobStatusUnsuccessful).Build()
	job.NeedsAcceptance = false
	job.UnsuccessfulReason = "vehicle not serviceable"
	job.UnsuccessfulApproval = model.Approval{Status: model.ApprovalPending}
	seed := dispatchFixture()
	seed.users = append(seed.users,
		testutil.NewUser("platform-dispatcher").WithRole(model.RoleDispatcher).WithVendor(testPlatformVendor).Build())
	seed.jobs = []*model.Job{job}
	return newHarness(t, seed)
}

func TestApproveUnsuccessful(t *testing.T) {
	ctx := context.Background()
	h := unsuccessfulPendingHarness(t)

	job, err := h.status.ApproveUnsuccessful(ctx, ApprovalParams{JobID: "job-1", ReviewerID: "owner-1"})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusUnsuccessful, job.Status)
	assert.Equal(t, model.ApprovalApproved, job.UnsuccessfulApproval.Status)
	assert.True(t, h.publisher.received("driver-1", EventUnsuccessfulApproved))
}

func TestDenyUnsuccessfulCancels(t *testing.T) {
	ctx := context.Background()
	h := unsuccessfulPendingHarness(t)

	job, err := h.status.DenyUnsuccessful(ctx, ApprovalParams{
		JobID: "job-1", ReviewerID: "platform-dispatcher", Reason: "retry with a flatbed",
	})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusCanceled, job.Status)
	assert.Equal(t, model.ApprovalRejected, job.UnsuccessfulApproval.Status)
	assert.Equal(t, "retry with a flatbed", job.CancelReason)
	assert.True(t, h.publisher.received("driver-1", EventUnsuccessfulDenied))
}

func TestUnsuccessfulReviewRestrictedToLeadership(t *testing.T) {
	h := unsuccessfulPendingHarness(t)

	_, err := h.status.ApproveUnsuccessful(context.Background(), ApprovalParams{
		JobID: "job-1", ReviewerID: "dispatcher-1",
	})
	assert.True(t, apperrors.IsForbidden(err), "vendor dispatchers cannot approve unsuccessful reports")
}
