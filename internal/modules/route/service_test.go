// README: Route service tests (optimize/apply flow, conflicts, concurrent apply).
package route

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fieldops/internal/events"
	"fieldops/internal/modules/appointment"
	"fieldops/internal/platform/dbtest"
	"fieldops/internal/types"
)

// memStore mirrors Store's optimistic-lock semantics in memory.
type memStore struct {
	mu      sync.Mutex
	routes  map[types.ID]*OptimizedRoute
	history []HistoryEntry
}

func newMemStore() *memStore {
	return &memStore{routes: map[types.ID]*OptimizedRoute{}}
}

func (m *memStore) Upsert(_ context.Context, r *OptimizedRoute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.routes {
		if existing.TenantID == r.TenantID && existing.TechnicianID == r.TechnicianID && existing.Date.Equal(r.Date) {
			r.ID = existing.ID
			r.Version = existing.Version + 1
			break
		}
	}
	if r.Version == 0 {
		r.Version = 1
	}
	r.Status = StatusPending
	r.AppliedAt = nil
	cp := *r
	m.routes[r.ID] = &cp
	m.history = append(m.history, HistoryEntry{RouteID: r.ID, Version: r.Version, Status: r.Status})
	return nil
}

func (m *memStore) Get(_ context.Context, tenantID, id types.ID) (*OptimizedRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok || r.TenantID != tenantID {
		return nil, types.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) GetByTechnicianDate(_ context.Context, tenantID, technicianID types.ID, date time.Time) (*OptimizedRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.routes {
		if r.TenantID == tenantID && r.TechnicianID == technicianID && r.Date.Equal(date) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, types.ErrNotFound
}

func (m *memStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok || r.Status != from || r.Version != version {
		return false, nil
	}
	r.Status = to
	r.Version++
	return true, nil
}

func (m *memStore) AppendHistory(_ context.Context, h *HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *h)
	return nil
}

type fakeAppointments struct {
	byTech map[types.ID][]appointment.Appointment
}

func (f fakeAppointments) FindByTechnicianAndDate(_ context.Context, _, technicianID types.ID, _ time.Time) ([]appointment.Appointment, error) {
	return f.byTech[technicianID], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type recordingNotifier struct {
	mu      sync.Mutex
	applied []types.ID
}

func (n *recordingNotifier) RouteApplied(_ context.Context, r *OptimizedRoute) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.applied = append(n.applied, r.ID)
}

func appt(id string, hour int, lat, lng float64) appointment.Appointment {
	tech := types.ID("tech_1")
	return appointment.Appointment{
		ID:              types.ID(id),
		TenantID:        "t1",
		CustomerID:      types.ID("cust_" + id),
		ServiceID:       "svc",
		TechnicianID:    &tech,
		Location:        &types.Point{Lat: lat, Lng: lng},
		ScheduledAt:     day.Add(time.Duration(hour) * time.Hour),
		DurationMinutes: 45,
		Status:          appointment.StatusScheduled,
	}
}

func newTestService(store Repository) (*Service, *recordingPublisher, *recordingNotifier) {
	appts := fakeAppointments{byTech: map[types.ID][]appointment.Appointment{
		"tech_1": {
			appt("nine", 9, 25.0000, 121.5000),
			appt("ten", 10, 25.0020, 121.5100),
			appt("eleven", 11, 25.0000, 121.5200),
		},
		"tech_nowhere": {
			{ID: "no_loc", ScheduledAt: day.Add(9 * time.Hour), DurationMinutes: 30},
		},
	}}
	pub := &recordingPublisher{}
	notifier := &recordingNotifier{}
	svc := NewService(store, appts, NewOptimizer(failingProvider{}, 50*time.Millisecond), pub)
	svc.SetNotifier(notifier)
	return svc, pub, notifier
}

func TestOptimizeAndApply(t *testing.T) {
	store := newMemStore()
	svc, pub, notifier := newTestService(store)
	ctx := context.Background()

	r, err := svc.Optimize(ctx, OptimizeCommand{TenantID: "t1", TechnicianID: "tech_1", Date: day.Add(15 * time.Hour)})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if r.Status != StatusPending || r.Version != 1 || len(r.Stops) != 3 {
		t.Fatalf("unexpected route %+v", r)
	}
	if !r.Date.Equal(day) {
		t.Fatalf("route date = %v, want %v", r.Date, day)
	}

	applied, err := svc.Apply(ctx, ApplyCommand{TenantID: "t1", RouteID: r.ID})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied.Status != StatusApplied || applied.AppliedAt == nil {
		t.Fatalf("expected applied route, got %+v", applied)
	}
	if len(notifier.applied) != 1 || notifier.applied[0] != r.ID {
		t.Fatalf("notifier not called: %v", notifier.applied)
	}

	if _, err := svc.Apply(ctx, ApplyCommand{TenantID: "t1", RouteID: r.ID}); !errors.Is(err, types.ErrConflict) {
		t.Fatalf("expected ErrConflict on second apply, got %v", err)
	}

	again, err := svc.Optimize(ctx, OptimizeCommand{TenantID: "t1", TechnicianID: "tech_1", Date: day})
	if err != nil {
		t.Fatalf("re-optimize: %v", err)
	}
	if again.ID != r.ID || again.Status != StatusPending || again.Version <= applied.Version {
		t.Fatalf("expected fresh pending version of %s, got %+v", r.ID, again)
	}

	got := pub.eventTypes()
	want := []string{events.RouteOptimized, events.RouteApplied, events.RouteOptimized}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestApplyUnknownRoute(t *testing.T) {
	svc, _, _ := newTestService(newMemStore())
	if _, err := svc.Apply(context.Background(), ApplyCommand{TenantID: "t1", RouteID: "missing"}); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOptimizeInvalidRequests(t *testing.T) {
	svc, _, _ := newTestService(newMemStore())
	ctx := context.Background()

	cases := []OptimizeCommand{
		{TechnicianID: "tech_1", Date: day},
		{TenantID: "t1", Date: day},
		{TenantID: "t1", TechnicianID: "tech_1"},
		{TenantID: "t1", TechnicianID: "tech_nowhere", Date: day},
	}
	for _, cmd := range cases {
		if _, err := svc.Optimize(ctx, cmd); !errors.Is(err, types.ErrInvalidInput) {
			t.Errorf("Optimize(%+v) = %v, want ErrInvalidInput", cmd, err)
		}
	}
}

func TestConcurrentApplySameRoute(t *testing.T) {
	svc, _, notifier := newTestService(newMemStore())
	assertSingleApply(t, svc)
	if len(notifier.applied) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.applied))
	}
}

func TestConcurrentApplySameRouteDB(t *testing.T) {
	svc, _, _ := newTestService(NewStore(dbtest.Pool(t)))
	assertSingleApply(t, svc)
}

func assertSingleApply(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()

	r, err := svc.Optimize(ctx, OptimizeCommand{TenantID: "t1", TechnicianID: "tech_1", Date: day})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(ctx, ApplyCommand{TenantID: "t1", RouteID: r.ID})
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, types.ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}

	stored, err := svc.Get(ctx, "t1", "tech_1", day)
	if err != nil {
		t.Fatalf("get route: %v", err)
	}
	if stored.Status != StatusApplied {
		t.Fatalf("unexpected final status: %s", stored.Status)
	}
}
