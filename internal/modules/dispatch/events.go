// README: Real-time event names and payloads. Field names are consumed by existing clients.
package dispatch

import (
	"time"

	"fieldops/internal/types"
)

const (
	EventTechnicianLocation = "technician:location"
	EventETAUpdate          = "eta:update"
	EventJobStatus          = "job:status"
	EventJobUpdate          = "job:update"
)

type TechnicianLocationPayload struct {
	JobID        types.ID  `json:"jobId,omitempty"`
	TechnicianID types.ID  `json:"technicianId"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Heading      *float64  `json:"heading,omitempty"`
	Speed        *float64  `json:"speed,omitempty"`
	Status       string    `json:"status,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type ETAUpdatePayload struct {
	JobID            types.ID  `json:"jobId"`
	EstimatedMinutes int       `json:"estimatedMinutes"`
	Distance         float64   `json:"distance"`
	Timestamp        time.Time `json:"timestamp"`
}

type JobStatusPayload struct {
	JobID     types.ID  `json:"jobId"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	PhotoURL  string    `json:"photoUrl,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type JobUpdatePayload struct {
	JobID         types.ID  `json:"jobId"`
	TechnicianID  types.ID  `json:"technicianId"`
	SequenceOrder int       `json:"sequenceOrder"`
	ScheduledAt   time.Time `json:"scheduledAt"`
	RouteID       types.ID  `json:"routeId"`
	Timestamp     time.Time `json:"timestamp"`
}
