// README: Appointment aggregate, status set and allowed status transitions.
package appointment

import (
	"time"

	"fieldops/internal/types"
)

type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// ActiveStatuses are the statuses that count toward a technician's workload.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

func (s Status) Active() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type Appointment struct {
	ID              types.ID     `json:"id"`
	TenantID        types.ID     `json:"tenantId"`
	CustomerID      types.ID     `json:"customerId"`
	CustomerName    string       `json:"customerName"`
	ServiceID       types.ID     `json:"serviceId"`
	ServiceName     string       `json:"serviceName"`
	TechnicianID    *types.ID    `json:"technicianId,omitempty"`
	Address         string       `json:"address"`
	Location        *types.Point `json:"location,omitempty"`
	ScheduledAt     time.Time    `json:"scheduledAt"`
	DurationMinutes int          `json:"durationMinutes"`
	Status          Status       `json:"status"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// AssignedTo reports whether the appointment belongs to technicianID.
func (a *Appointment) AssignedTo(technicianID types.ID) bool {
	return a.TechnicianID != nil && *a.TechnicianID == technicianID
}

// AllowedTransitions is the job status flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusScheduled:  {StatusConfirmed, StatusInProgress, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DayBounds returns the UTC calendar day containing t as a half-open range.
func DayBounds(t time.Time) (start, end time.Time) {
	y, m, d := t.UTC().Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}
