// README: Dispatch service turns pings, status changes and applied routes into hub events.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"fieldops/internal/events"
	"fieldops/internal/modules/appointment"
	"fieldops/internal/modules/location"
	"fieldops/internal/modules/route"
	"fieldops/internal/types"
)

type Tracker interface {
	Record(ctx context.Context, p location.Ping) (*location.TechnicianLocation, error)
}

type Appointments interface {
	Get(ctx context.Context, tenantID, id types.ID) (*appointment.Appointment, error)
	FindByTechnicianAndDate(ctx context.Context, tenantID, technicianID types.ID, date time.Time) ([]appointment.Appointment, error)
	UpdateStatus(ctx context.Context, tenantID, id types.ID, from, to appointment.Status) (bool, error)
}

type Service struct {
	hub          *Hub
	tracker      Tracker
	appointments Appointments
	events       events.Publisher
}

func NewService(hub *Hub, tracker Tracker, appointments Appointments, publisher events.Publisher) *Service {
	return &Service{hub: hub, tracker: tracker, appointments: appointments, events: publisher}
}

func (s *Service) Hub() *Hub {
	return s.hub
}

// OnLocationPing records the ping, then notifies watchers of the technician's active jobs
// for that day (with an ETA when the job has a location) and the tenant's dispatchers.
// Only a failed recording is returned; broadcast problems are logged.
func (s *Service) OnLocationPing(ctx context.Context, p location.Ping) (*location.TechnicianLocation, error) {
	l, err := s.tracker.Record(ctx, p)
	if err != nil {
		return nil, err
	}

	base := TechnicianLocationPayload{
		TechnicianID: l.UserID,
		Latitude:     l.Lat,
		Longitude:    l.Lng,
		Heading:      l.Heading,
		Speed:        l.Speed,
		Status:       string(l.Status),
		Timestamp:    l.RecordedAt,
	}

	jobs, err := s.appointments.FindByTechnicianAndDate(ctx, l.TenantID, l.UserID, l.RecordedAt)
	if err != nil {
		log.Printf("dispatch: loading jobs for technician=%s failed: %v", l.UserID, err)
	}
	for _, job := range jobs {
		if !job.Status.Active() {
			continue
		}
		perJob := base
		perJob.JobID = job.ID
		s.hub.ToJob(job.ID, Message{Event: EventTechnicianLocation, Data: perJob})

		if job.Location == nil {
			continue
		}
		eta := location.EstimateETA(l.Point(), *job.Location)
		s.hub.ToJob(job.ID, Message{Event: EventETAUpdate, Data: ETAUpdatePayload{
			JobID:            job.ID,
			EstimatedMinutes: eta.Minutes,
			Distance:         eta.DistanceKm,
			Timestamp:        l.RecordedAt,
		}})
	}

	s.hub.ToRoom(TenantRoom(l.TenantID), Message{Event: EventTechnicianLocation, Data: base})
	return l, nil
}

type JobStatusChange struct {
	TenantID types.ID
	JobID    types.ID
	Status   appointment.Status
	Message  string
	PhotoURL string
}

// OnJobStatus moves a job to a new status and tells its watchers and the tenant room.
func (s *Service) OnJobStatus(ctx context.Context, c JobStatusChange) (*appointment.Appointment, error) {
	if !c.Status.Valid() {
		return nil, fmt.Errorf("unknown job status %q: %w", c.Status, types.ErrInvalidInput)
	}
	a, err := s.appointments.Get(ctx, c.TenantID, c.JobID)
	if err != nil {
		return nil, err
	}
	if !appointment.CanTransition(a.Status, c.Status) {
		return nil, fmt.Errorf("job %s cannot move from %s to %s: %w", a.ID, a.Status, c.Status, types.ErrConflict)
	}
	ok, err := s.appointments.UpdateStatus(ctx, c.TenantID, a.ID, a.Status, c.Status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("job %s changed concurrently: %w", a.ID, types.ErrConflict)
	}
	a.Status = c.Status

	msg := Message{Event: EventJobStatus, Data: JobStatusPayload{
		JobID:     a.ID,
		Status:    string(a.Status),
		Message:   c.Message,
		PhotoURL:  c.PhotoURL,
		Timestamp: time.Now().UTC(),
	}}
	s.hub.ToJob(a.ID, msg)
	s.hub.ToRoom(TenantRoom(c.TenantID), msg)

	events.Emit(ctx, s.events, events.New(events.JobStatus, c.TenantID, string(a.ID), msg.Data))
	return a, nil
}

// RouteApplied pushes the new sequence of every stop to the job's watchers and the
// technician's own connection.
func (s *Service) RouteApplied(_ context.Context, r *route.OptimizedRoute) {
	now := time.Now().UTC()
	for _, stop := range r.Stops {
		msg := Message{Event: EventJobUpdate, Data: JobUpdatePayload{
			JobID:         stop.JobID,
			TechnicianID:  r.TechnicianID,
			SequenceOrder: stop.SequenceOrder,
			ScheduledAt:   stop.ScheduledAt,
			RouteID:       r.ID,
			Timestamp:     now,
		}}
		s.hub.ToJob(stop.JobID, msg)
		s.hub.ToRoom(TechnicianRoom(r.TechnicianID), msg)
	}
}
