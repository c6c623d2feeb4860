package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"fieldops/internal/events"
	"fieldops/internal/modules/appointment"
	"fieldops/internal/modules/location"
	"fieldops/internal/modules/route"
	"fieldops/internal/types"
)

type fakeTracker struct{}

func (fakeTracker) Record(_ context.Context, p location.Ping) (*location.TechnicianLocation, error) {
	if p.UserID == "" {
		return nil, types.ErrInvalidInput
	}
	return &location.TechnicianLocation{
		UserID: p.UserID, TenantID: p.TenantID,
		Lat: p.Position.Lat, Lng: p.Position.Lng,
		Heading: p.Heading, Status: location.StatusEnRoute, RecordedAt: p.RecordedAt,
	}, nil
}

type fakeAppointments struct {
	mu   sync.Mutex
	jobs map[types.ID]*appointment.Appointment
}

func (f *fakeAppointments) Get(_ context.Context, _, id types.ID) (*appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.jobs[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAppointments) FindByTechnicianAndDate(_ context.Context, _, technicianID types.ID, _ time.Time) ([]appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range f.jobs {
		if a.AssignedTo(technicianID) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAppointments) UpdateStatus(_ context.Context, _, id types.ID, from, to appointment.Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.jobs[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	return true, nil
}

type recordingPublisher struct{ seen []string }

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.seen = append(r.seen, e.Type)
	return nil
}

func newFixture() (*Service, *Hub, *fakeAppointments) {
	tech := types.ID("tech_1")
	appts := &fakeAppointments{jobs: map[types.ID]*appointment.Appointment{
		"with_loc": {ID: "with_loc", TechnicianID: &tech, Status: appointment.StatusConfirmed,
			Location: &types.Point{Lat: 25.1340, Lng: 121.5645}},
		"no_loc":   {ID: "no_loc", TechnicianID: &tech, Status: appointment.StatusScheduled},
		"finished": {ID: "finished", TechnicianID: &tech, Status: appointment.StatusCompleted},
	}}
	hub := NewHub(16)
	return NewService(hub, fakeTracker{}, appts, nil), hub, appts
}

func eventsOf(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Event
	}
	return out
}

func TestOnLocationPingFansOut(t *testing.T) {
	svc, hub, _ := newFixture()
	withLoc := hub.Connect("customer_a")
	noLoc := hub.Connect("customer_b")
	finished := hub.Connect("customer_c")
	dispatcher := hub.Connect("dispatcher")
	_ = hub.TrackJob("customer_a", "with_loc")
	_ = hub.TrackJob("customer_b", "no_loc")
	_ = hub.TrackJob("customer_c", "finished")
	_ = hub.Join("dispatcher", TenantRoom("t1"))

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	_, err := svc.OnLocationPing(context.Background(), location.Ping{
		UserID: "tech_1", TenantID: "t1", Position: types.Point{Lat: 25.0340, Lng: 121.5645}, RecordedAt: at,
	})
	if err != nil {
		t.Fatalf("ping: %v", err)
	}

	a := drain(withLoc)
	if got := eventsOf(a); len(got) != 2 || got[0] != EventTechnicianLocation || got[1] != EventETAUpdate {
		t.Fatalf("customer_a events = %v", got)
	}
	loc := a[0].Data.(TechnicianLocationPayload)
	if loc.JobID != "with_loc" || loc.TechnicianID != "tech_1" {
		t.Fatalf("unexpected location payload %+v", loc)
	}
	eta := a[1].Data.(ETAUpdatePayload)
	if eta.JobID != "with_loc" || eta.EstimatedMinutes != 22 {
		t.Fatalf("unexpected eta payload %+v", eta)
	}

	if got := eventsOf(drain(noLoc)); len(got) != 1 || got[0] != EventTechnicianLocation {
		t.Fatalf("customer_b events = %v", got)
	}
	if got := drain(finished); len(got) != 0 {
		t.Fatalf("completed job watchers should not be notified: %v", eventsOf(got))
	}
	d := drain(dispatcher)
	if len(d) != 1 || d[0].Data.(TechnicianLocationPayload).JobID != "" {
		t.Fatalf("dispatcher should get one job-less location event, got %+v", d)
	}
}

func TestOnLocationPingRecordFailure(t *testing.T) {
	svc, hub, _ := newFixture()
	dispatcher := hub.Connect("dispatcher")
	_ = hub.Join("dispatcher", TenantRoom("t1"))

	if _, err := svc.OnLocationPing(context.Background(), location.Ping{TenantID: "t1"}); !errors.Is(err, types.ErrInvalidInput) {
		t.Fatalf("expected record error, got %v", err)
	}
	if len(drain(dispatcher)) != 0 {
		t.Fatalf("nothing should be broadcast for a rejected ping")
	}
}

func TestOnJobStatus(t *testing.T) {
	svc, hub, appts := newFixture()
	pub := &recordingPublisher{}
	svc.events = pub
	watcher := hub.Connect("customer")
	dispatcher := hub.Connect("dispatcher")
	_ = hub.TrackJob("customer", "with_loc")
	_ = hub.Join("dispatcher", TenantRoom("t1"))

	a, err := svc.OnJobStatus(context.Background(), JobStatusChange{
		TenantID: "t1", JobID: "with_loc", Status: appointment.StatusInProgress, Message: "on site",
	})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if a.Status != appointment.StatusInProgress || appts.jobs["with_loc"].Status != appointment.StatusInProgress {
		t.Fatalf("status not persisted")
	}
	for name, c := range map[string]*Client{"watcher": watcher, "dispatcher": dispatcher} {
		got := drain(c)
		if len(got) != 1 || got[0].Event != EventJobStatus {
			t.Fatalf("%s events = %v", name, eventsOf(got))
		}
		b, _ := json.Marshal(got[0].Data)
		var payload map[string]any
		_ = json.Unmarshal(b, &payload)
		if payload["jobId"] != "with_loc" || payload["status"] != "IN_PROGRESS" || payload["message"] != "on site" {
			t.Fatalf("%s payload = %s", name, b)
		}
		if _, ok := payload["photoUrl"]; ok {
			t.Fatalf("empty photoUrl should be omitted: %s", b)
		}
	}
	if len(pub.seen) != 1 {
		t.Fatalf("expected one domain event, got %v", pub.seen)
	}
}

func TestOnJobStatusRejected(t *testing.T) {
	svc, _, _ := newFixture()
	ctx := context.Background()

	cases := []struct {
		change JobStatusChange
		want   error
	}{
		{JobStatusChange{TenantID: "t1", JobID: "finished", Status: appointment.StatusInProgress}, types.ErrConflict},
		{JobStatusChange{TenantID: "t1", JobID: "no_loc", Status: "TELEPORTED"}, types.ErrInvalidInput},
		{JobStatusChange{TenantID: "t1", JobID: "missing", Status: appointment.StatusConfirmed}, types.ErrNotFound},
	}
	for _, tc := range cases {
		if _, err := svc.OnJobStatus(ctx, tc.change); !errors.Is(err, tc.want) {
			t.Errorf("OnJobStatus(%+v) = %v, want %v", tc.change, err, tc.want)
		}
	}
}

func TestRouteAppliedPushesJobUpdates(t *testing.T) {
	svc, hub, _ := newFixture()
	tech := hub.Connect("tech")
	customer := hub.Connect("customer")
	_ = hub.RegisterTechnician("tech", "tech_1", "t1")
	_ = hub.TrackJob("customer", "b")

	svc.RouteApplied(context.Background(), &route.OptimizedRoute{
		ID:           "route_1",
		TechnicianID: "tech_1",
		Stops: []route.Stop{
			{JobID: "a", SequenceOrder: 0},
			{JobID: "b", SequenceOrder: 1},
		},
	})

	if got := drain(tech); len(got) != 2 {
		t.Fatalf("technician should get every stop, got %v", eventsOf(got))
	}
	got := drain(customer)
	if len(got) != 1 || got[0].Event != EventJobUpdate {
		t.Fatalf("customer events = %v", eventsOf(got))
	}
	p := got[0].Data.(JobUpdatePayload)
	if p.JobID != "b" || p.SequenceOrder != 1 || p.RouteID != "route_1" {
		t.Fatalf("unexpected payload %+v", p)
	}
}
