// README: Route service: optimize a technician's day and apply the result.
package route

import (
	"context"
	"fmt"
	"log"
	"time"

	"fieldops/internal/events"
	"fieldops/internal/modules/appointment"
	"fieldops/internal/types"
)

type Appointments interface {
	FindByTechnicianAndDate(ctx context.Context, tenantID, technicianID types.ID, date time.Time) ([]appointment.Appointment, error)
}

type Repository interface {
	Upsert(ctx context.Context, r *OptimizedRoute) error
	Get(ctx context.Context, tenantID, id types.ID) (*OptimizedRoute, error)
	GetByTechnicianDate(ctx context.Context, tenantID, technicianID types.ID, date time.Time) (*OptimizedRoute, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error)
	AppendHistory(ctx context.Context, h *HistoryEntry) error
}

// Notifier is told about applied routes so connected clients can be updated.
type Notifier interface {
	RouteApplied(ctx context.Context, r *OptimizedRoute)
}

type Service struct {
	store        Repository
	appointments Appointments
	optimizer    *Optimizer
	events       events.Publisher
	notifier     Notifier
}

func NewService(store Repository, appointments Appointments, optimizer *Optimizer, publisher events.Publisher) *Service {
	return &Service{store: store, appointments: appointments, optimizer: optimizer, events: publisher}
}

// SetNotifier attaches the real-time notifier. It must be called before serving requests.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

type OptimizeCommand struct {
	TenantID     types.ID
	TechnicianID types.ID
	Date         time.Time
}

type ApplyCommand struct {
	TenantID types.ID
	RouteID  types.ID
}

func (s *Service) Optimize(ctx context.Context, cmd OptimizeCommand) (*OptimizedRoute, error) {
	if cmd.TenantID == "" || cmd.TechnicianID == "" || cmd.Date.IsZero() {
		return nil, fmt.Errorf("tenant, technician and date are required: %w", types.ErrInvalidInput)
	}
	day, _ := appointment.DayBounds(cmd.Date)

	appts, err := s.appointments.FindByTechnicianAndDate(ctx, cmd.TenantID, cmd.TechnicianID, day)
	if err != nil {
		return nil, err
	}
	stops, err := StopsFromAppointments(appts)
	if err != nil {
		return nil, err
	}

	plan, err := s.optimizer.Optimize(ctx, stops)
	if err != nil {
		return nil, err
	}

	r := &OptimizedRoute{
		ID:               types.NewID(),
		TenantID:         cmd.TenantID,
		TechnicianID:     cmd.TechnicianID,
		Date:             day,
		Stops:            plan.Stops,
		TotalDistanceKm:  plan.TotalDistanceKm,
		TotalDurationMin: plan.TotalDurationMin,
		Savings:          plan.Savings,
		Source:           plan.Source,
		Status:           StatusPending,
		OptimizedAt:      time.Now().UTC(),
	}
	if err := s.store.Upsert(ctx, r); err != nil {
		return nil, err
	}
	log.Printf("route optimized: route=%s technician=%s stops=%d km=%.2f source=%s version=%d",
		r.ID, r.TechnicianID, len(r.Stops), r.TotalDistanceKm, r.Source, r.Version)

	events.Emit(ctx, s.events, events.New(events.RouteOptimized, r.TenantID, string(r.ID), r))
	return r, nil
}

// Apply commits a PENDING route. A route that is already applied, or that was
// re-optimized or applied concurrently, yields types.ErrConflict.
func (s *Service) Apply(ctx context.Context, cmd ApplyCommand) (*OptimizedRoute, error) {
	r, err := s.store.Get(ctx, cmd.TenantID, cmd.RouteID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, fmt.Errorf("route %s is %s: %w", r.ID, r.Status, types.ErrConflict)
	}

	ok, err := s.store.UpdateStatus(ctx, r.ID, StatusPending, StatusApplied, r.Version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("route %s changed concurrently: %w", r.ID, types.ErrConflict)
	}

	now := time.Now().UTC()
	r.Status = StatusApplied
	r.Version++
	r.AppliedAt = &now

	if err := s.store.AppendHistory(ctx, &HistoryEntry{
		RouteID:         r.ID,
		Version:         r.Version,
		Status:          r.Status,
		Stops:           r.Stops,
		TotalDistanceKm: r.TotalDistanceKm,
		CreatedAt:       now,
	}); err != nil {
		log.Printf("route history append failed: route=%s err=%v", r.ID, err)
	}

	if s.notifier != nil {
		s.notifier.RouteApplied(ctx, r)
	}
	events.Emit(ctx, s.events, events.New(events.RouteApplied, r.TenantID, string(r.ID), r))
	return r, nil
}

func (s *Service) Get(ctx context.Context, tenantID, technicianID types.ID, date time.Time) (*OptimizedRoute, error) {
	day, _ := appointment.DayBounds(date)
	return s.store.GetByTechnicianDate(ctx, tenantID, technicianID, day)
}

// StopsFromAppointments builds one stop per appointment. Appointments without a
// location cannot be routed and are rejected.
func StopsFromAppointments(appts []appointment.Appointment) ([]Stop, error) {
	stops := make([]Stop, 0, len(appts))
	for _, a := range appts {
		if a.Location == nil {
			return nil, fmt.Errorf("appointment %s has no location: %w", a.ID, types.ErrInvalidInput)
		}
		stops = append(stops, Stop{
			ID:              a.ID,
			JobID:           a.ID,
			CustomerID:      a.CustomerID,
			Address:         a.Address,
			Location:        *a.Location,
			ScheduledAt:     a.ScheduledAt,
			DurationMinutes: a.DurationMinutes,
		})
	}
	return stops, nil
}
