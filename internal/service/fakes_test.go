package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetline/dispatch/internal/core"
	"github.com/fleetline/dispatch/internal/domain/model"
	apperrors "github.com/fleetline/dispatch/internal/errors"
)

// fakeClock is a manually advanced core.Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeJobRepo is an in-memory core.JobRepository with the same revision
// semantics as the real store: GetByID hands out an independent copy, and
// Update fails with a Conflict when the revision no longer matches.
type fakeJobRepo struct {
	mu      sync.Mutex
	jobs    map[string]*model.Job
	nextID  int
	updates int

	// conflictsLeft forces that many Update calls to lose the revision race.
	conflictsLeft int
	// failUpdate, when set, is returned by every Update.
	failUpdate error
}

func newFakeJobRepo(seed ...*model.Job) *fakeJobRepo {
	r := &fakeJobRepo{jobs: make(map[string]*model.Job)}
	for _, job := range seed {
		r.jobs[job.ID] = cloneJob(job)
	}
	return r
}

func (r *fakeJobRepo) Create(_ context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == "" {
		r.nextID++
		job.ID = fmt.Sprintf("job-%d", r.nextID)
	}
	job.Revision = 1
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	return cloneJob(job), nil
}

func (r *fakeJobRepo) Update(_ context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.failUpdate != nil {
		return r.failUpdate
	}
	stored, ok := r.jobs[job.ID]
	if !ok {
		return apperrors.NotFoundf("job %s not found", job.ID)
	}
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		// Another writer got there first: bump the stored revision so the
		// caller's copy is out of date.
		stored.Revision++
		return apperrors.Conflict("job was modified concurrently")
	}
	if stored.Revision != job.Revision {
		return apperrors.Conflict("job was modified concurrently")
	}
	job.Revision++
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *fakeJobRepo) ListByStatus(_ context.Context, status model.JobStatus) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, job := range r.jobs {
		if job.Status == status {
			out = append(out, cloneJob(job))
		}
	}
	return out, nil
}

func (r *fakeJobRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return apperrors.NotFoundf("job %s not found", id)
	}
	delete(r.jobs, id)
	return nil
}

// stored returns the persisted copy for assertions.
func (r *fakeJobRepo) stored(id string) *model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneJob(r.jobs[id])
}

func cloneJob(job *model.Job) *model.Job {
	if job == nil {
		return nil
	}
	c := *job
	c.History = append([]model.StatusEvent(nil), job.History...)
	c.Rejections = append([]model.RejectionEntry(nil), job.Rejections...)
	c.PreviousDrivers = append([]model.PreviousAssignment(nil), job.PreviousDrivers...)
	c.VisibleTo = append([]string(nil), job.VisibleTo...)
	return &c
}

// fakeOrders issues sequential order numbers.
type fakeOrders struct {
	mu   sync.Mutex
	next int
	err  error
}

func (o *fakeOrders) Next(context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return "", o.err
	}
	o.next++
	return fmt.Sprintf("%08d", o.next), nil
}

// fakeDirectory is an in-memory core.UserDirectory.
type fakeDirectory struct {
	users map[string]model.User
}

func newFakeDirectory(users ...model.User) *fakeDirectory {
	d := &fakeDirectory{users: make(map[string]model.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeDirectory) GetUser(_ context.Context, id string) (*model.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, apperrors.NotFoundf("user %s not found", id)
	}
	return &u, nil
}

func (d *fakeDirectory) ListActive(context.Context) ([]model.User, error) {
	var out []model.User
	for _, u := range d.users {
		if u.Active {
			out = append(out, u)
		}
	}
	return out, nil
}

// fakeVehicles is an in-memory core.VehicleDirectory with deterministic
// FindAvailable ordering.
type fakeVehicles struct {
	mu       sync.Mutex
	vehicles []*model.Vehicle
}

func newFakeVehicles(vehicles ...*model.Vehicle) *fakeVehicles {
	return &fakeVehicles{vehicles: vehicles}
}

func (v *fakeVehicles) GetVehicle(_ context.Context, ref string) (*model.Vehicle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, veh := range v.vehicles {
		if veh.ID == ref || veh.Name == ref {
			return veh, nil
		}
	}
	return nil, apperrors.NotFoundf("vehicle %s not found", ref)
}

func (v *fakeVehicles) FindBoundTo(_ context.Context, actorID string) (*model.Vehicle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, veh := range v.vehicles {
		if veh.BoundActorID() == actorID {
			return veh, nil
		}
	}
	return nil, nil
}

func (v *fakeVehicles) FindAvailable(_ context.Context, vendorID string) (*model.Vehicle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, veh := range v.vehicles {
		if veh.VendorID == vendorID && veh.Available() {
			return veh, nil
		}
	}
	return nil, nil
}

func (v *fakeVehicles) Bind(_ context.Context, vehicleID, actorID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, veh := range v.vehicles {
		if veh.ID == vehicleID {
			bound := actorID
			veh.BoundTo = &bound
			return nil
		}
	}
	return apperrors.NotFoundf("vehicle %s not found", vehicleID)
}

func (v *fakeVehicles) Unbind(_ context.Context, vehicleID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, veh := range v.vehicles {
		if veh.ID == vehicleID {
			veh.BoundTo = nil
			return nil
		}
	}
	return apperrors.NotFoundf("vehicle %s not found", vehicleID)
}

func (v *fakeVehicles) boundTo(actorID string) *model.Vehicle {
	veh, _ := v.FindBoundTo(context.Background(), actorID)
	return veh
}

// fakeTimers records Arm and Cancel calls.
type fakeTimers struct {
	mu       sync.Mutex
	armed    []core.TimerHandle
	canceled []string
}

func (t *fakeTimers) Arm(handle core.TimerHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = append(t.armed, handle)
}

func (t *fakeTimers) Cancel(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.canceled = append(t.canceled, jobID)
}

func (t *fakeTimers) lastArmed() (core.TimerHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.armed) == 0 {
		return core.TimerHandle{}, false
	}
	return t.armed[len(t.armed)-1], true
}

// published is one delivered notification.
type published struct {
	UserID  string
	Event   string
	Payload any
}

// fakePublisher records deliveries; ids in fail are reported undelivered.
type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	fail map[string]bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{fail: make(map[string]bool)}
}

func (p *fakePublisher) Publish(_ context.Context, userID, event string, payload any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[userID] {
		return false
	}
	p.sent = append(p.sent, published{UserID: userID, Event: event, Payload: payload})
	return true
}

func (p *fakePublisher) eventsFor(userID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, s := range p.sent {
		if s.UserID == userID {
			out = append(out, s.Event)
		}
	}
	return out
}

func (p *fakePublisher) received(userID, event string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sent {
		if s.UserID == userID && s.Event == event {
			return true
		}
	}
	return false
}

// fakeSink records counted metrics so tests can assert emission.
type fakeSink struct {
	mu     sync.Mutex
	counts []counted
}

type counted struct {
	name string
	tags map[string]string
}

func (s *fakeSink) Count(name string, _ int64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = append(s.counts, counted{name: name, tags: tags})
}

func (s *fakeSink) Gauge(string, float64, map[string]string)        {}
func (s *fakeSink) Timing(string, time.Duration, map[string]string) {}

// timerOutcomes returns the outcome tag of every acceptance-timer count.
func (s *fakeSink) timerOutcomes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.counts {
		if c.name == "dispatch.acceptance_timer" {
			out = append(out, c.tags["outcome"])
		}
	}
	return out
}
