// README: Optimized route aggregate, stops and savings.
package route

import (
	"time"

	"fieldops/internal/distance"
	"fieldops/internal/types"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusApplied Status = "APPLIED"
)

// Stop is one visit on a technician's day, derived from an appointment.
type Stop struct {
	ID              types.ID    `json:"id"`
	JobID           types.ID    `json:"jobId"`
	CustomerID      types.ID    `json:"customerId"`
	Address         string      `json:"address"`
	Location        types.Point `json:"location"`
	ScheduledAt     time.Time   `json:"scheduledAt"`
	DurationMinutes int         `json:"durationMinutes"`
	SequenceOrder   int         `json:"sequenceOrder"`
}

type Savings struct {
	DistanceKm float64 `json:"distanceKm"`
	TimeMin    int     `json:"timeMin"`
	Percentage int     `json:"percentage"`
}

// OptimizedRoute is unique per (tenant, technician, date). Stops is always a
// permutation of the day's appointments.
type OptimizedRoute struct {
	ID               types.ID        `json:"id"`
	TenantID         types.ID        `json:"tenantId"`
	TechnicianID     types.ID        `json:"technicianId"`
	Date             time.Time       `json:"date"`
	Stops            []Stop          `json:"stops"`
	TotalDistanceKm  float64         `json:"totalDistanceKm"`
	TotalDurationMin int             `json:"totalDurationMin"`
	Savings          Savings         `json:"savings"`
	Source           distance.Source `json:"source"`
	Status           Status          `json:"status"`
	Version          int             `json:"version"`
	OptimizedAt      time.Time       `json:"optimizedAt"`
	AppliedAt        *time.Time      `json:"appliedAt,omitempty"`
}

// HistoryEntry snapshots a route each time it is optimized or applied.
type HistoryEntry struct {
	ID              types.ID
	RouteID         types.ID
	Version         int
	Status          Status
	Stops           []Stop
	TotalDistanceKm float64
	CreatedAt       time.Time
}
