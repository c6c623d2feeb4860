// Package gapfill suggests unassigned jobs that could fill a technician's open window.
package gapfill

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fieldops/internal/geo"
	"fieldops/internal/modules/appointment"
	"fieldops/internal/modules/location"
	"fieldops/internal/modules/technician"
	"fieldops/internal/types"
)

// CandidateLimit caps how many recent unassigned jobs are considered.
const CandidateLimit = 20

type Suggestion struct {
	AppointmentID   types.ID              `json:"appointmentId"`
	CustomerName    string                `json:"customerName"`
	ServiceName     string                `json:"serviceName"`
	DurationMinutes int                   `json:"durationMinutes"`
	DistanceKm      float64               `json:"distanceKm"`
	FitsInGap       bool                  `json:"fitsInGap"`
	SkillLevel      technician.SkillLevel `json:"skillLevel,omitempty"`
}

type GapQuery struct {
	TenantID     types.ID
	TechnicianID types.ID
	WindowStart  time.Time
	WindowEnd    time.Time
}

type Appointments interface {
	ListRecentUnassigned(ctx context.Context, tenantID types.ID, limit int) ([]appointment.Appointment, error)
}

type Skills interface {
	SkillLevel(ctx context.Context, tenantID, userID, serviceID types.ID) (technician.SkillLevel, error)
}

type Locator interface {
	Current(ctx context.Context, tenantID, userID types.ID) (*location.TechnicianLocation, error)
}

type Service struct {
	appointments Appointments
	skills       Skills
	locations    Locator
}

func NewService(appointments Appointments, skills Skills, locations Locator) *Service {
	return &Service{appointments: appointments, skills: skills, locations: locations}
}

// Fill returns every candidate job, ordered with jobs that fit first, then nearest, then
// strongest skill match. Jobs that do not fit are kept so near-misses stay visible.
func (s *Service) Fill(ctx context.Context, q GapQuery) ([]Suggestion, error) {
	if q.TenantID == "" || q.TechnicianID == "" {
		return nil, fmt.Errorf("tenant and technician are required: %w", types.ErrInvalidInput)
	}
	if !q.WindowEnd.After(q.WindowStart) {
		return nil, fmt.Errorf("window end must be after start: %w", types.ErrInvalidInput)
	}
	gapMinutes := int(q.WindowEnd.Sub(q.WindowStart) / time.Minute)

	jobs, err := s.appointments.ListRecentUnassigned(ctx, q.TenantID, CandidateLimit)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return []Suggestion{}, nil
	}

	here, err := s.locations.Current(ctx, q.TenantID, q.TechnicianID)
	if err != nil {
		return nil, err
	}

	levels := make(map[types.ID]technician.SkillLevel)
	out := make([]Suggestion, 0, len(jobs))
	for _, j := range jobs {
		level, ok := levels[j.ServiceID]
		if !ok {
			if level, err = s.skills.SkillLevel(ctx, q.TenantID, q.TechnicianID, j.ServiceID); err != nil {
				return nil, err
			}
			levels[j.ServiceID] = level
		}

		var km float64
		if here != nil && j.Location != nil {
			km = geo.DistanceKm(here.Point(), *j.Location)
		}

		out = append(out, Suggestion{
			AppointmentID:   j.ID,
			CustomerName:    j.CustomerName,
			ServiceName:     j.ServiceName,
			DurationMinutes: j.DurationMinutes,
			DistanceKm:      km,
			FitsInGap:       j.DurationMinutes <= gapMinutes,
			SkillLevel:      level,
		})
	}

	sort.SliceStable(out, func(a, b int) bool {
		x, y := out[a], out[b]
		if x.FitsInGap != y.FitsInGap {
			return x.FitsInGap
		}
		if x.DistanceKm != y.DistanceKm {
			return x.DistanceKm < y.DistanceKm
		}
		return x.SkillLevel.Score() > y.SkillLevel.Score()
	})
	return out, nil
}
