// README: Technician location log entries, pings and ETA results.
package location

import (
	"time"

	"fieldops/internal/types"
)

type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusEnRoute Status = "EN_ROUTE"
	StatusOnSite  Status = "ON_SITE"
	StatusBreak   Status = "BREAK"
	StatusOffline Status = "OFFLINE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusEnRoute, StatusOnSite, StatusBreak, StatusOffline:
		return true
	}
	return false
}

// TechnicianLocation is one append-only entry of a technician's position log.
type TechnicianLocation struct {
	ID         types.ID  `json:"id"`
	UserID     types.ID  `json:"userId"`
	TenantID   types.ID  `json:"tenantId"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Status     Status    `json:"status"`
	RecordedAt time.Time `json:"recordedAt"`
}

func (l *TechnicianLocation) Point() types.Point {
	return types.Point{Lat: l.Lat, Lng: l.Lng}
}

// Ping is an inbound position report. Status defaults to IDLE and RecordedAt to now.
type Ping struct {
	UserID     types.ID
	TenantID   types.ID
	Position   types.Point
	Accuracy   *float64
	Heading    *float64
	Speed      *float64
	Status     Status
	RecordedAt time.Time
}

type ETA struct {
	Minutes    int     `json:"minutes"`
	DistanceKm float64 `json:"distanceKm"`
}

type Nearby struct {
	UserID     types.ID    `json:"userId"`
	Position   types.Point `json:"position"`
	DistanceKm float64     `json:"distanceKm"`
}
