// README: Technician location handlers: ping, current position, ETA and nearby search.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fieldops/internal/http/middleware"
	"fieldops/internal/modules/location"
	"fieldops/internal/types"
)

type PingService interface {
	OnLocationPing(ctx context.Context, p location.Ping) (*location.TechnicianLocation, error)
}

type LocationService interface {
	Current(ctx context.Context, tenantID, userID types.ID) (*location.TechnicianLocation, error)
	ETA(ctx context.Context, tenantID, technicianID types.ID, destination types.Point) (*location.ETA, error)
	Nearby(ctx context.Context, tenantID types.ID, p types.Point, radiusKm float64) ([]location.Nearby, error)
}

type LocationHandler struct {
	pings     PingService
	locations LocationService
}

func NewLocationHandler(pings PingService, locations LocationService) *LocationHandler {
	return &LocationHandler{pings: pings, locations: locations}
}

type locationUpdateReq struct {
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Accuracy  *float64   `json:"accuracy"`
	Heading   *float64   `json:"heading"`
	Speed     *float64   `json:"speed"`
	Status    string     `json:"status"`
	Timestamp *time.Time `json:"timestamp"`
}

func (r locationUpdateReq) ping(userID, tenantID types.ID) location.Ping {
	p := location.Ping{
		UserID:   userID,
		TenantID: tenantID,
		Position: types.Point{Lat: *r.Latitude, Lng: *r.Longitude},
		Accuracy: r.Accuracy,
		Heading:  r.Heading,
		Speed:    r.Speed,
		Status:   location.Status(r.Status),
	}
	if r.Timestamp != nil {
		p.RecordedAt = *r.Timestamp
	}
	return p
}

func (h *LocationHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tenant, ok := callerTenant(c)
	if !ok {
		return
	}
	// Only the authenticated technician may update their own location.
	if middleware.CallerRole(c) != RoleTechnician {
		writeError(c, http.StatusForbidden, "forbidden: technician role required")
		return
	}
	if middleware.CallerUID(c) != id {
		writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated user")
		return
	}
	var req locationUpdateReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Latitude == nil || req.Longitude == nil {
		writeError(c, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	l, err := h.pings.OnLocationPing(c.Request.Context(), req.ping(types.ID(id), tenant))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, l)
}

func (h *LocationHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tenant, ok := callerTenant(c)
	if !ok {
		return
	}
	l, err := h.locations.Current(c.Request.Context(), tenant, types.ID(id))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	if l == nil {
		writeError(c, http.StatusNotFound, "no known location")
		return
	}
	writeJSON(c, http.StatusOK, l)
}

func (h *LocationHandler) ETA(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tenant, ok := callerTenant(c)
	if !ok {
		return
	}
	dest, present, ok := queryPoint(c)
	if !ok || !present {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	eta, err := h.locations.ETA(c.Request.Context(), tenant, types.ID(id), dest)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	if eta == nil {
		writeError(c, http.StatusNotFound, "no known location")
		return
	}
	writeJSON(c, http.StatusOK, eta)
}

func (h *LocationHandler) Nearby(c *gin.Context) {
	tenant, ok := callerTenant(c)
	if !ok || !requireDispatcher(c) {
		return
	}
	p, present, ok := queryPoint(c)
	if !ok || !present {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	radius := 10.0
	if c.Query("radius_km") != "" {
		if radius, ok = queryFloat(c, "radius_km"); !ok {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
	}
	found, err := h.locations.Nearby(c.Request.Context(), tenant, p, radius)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"technicians": found})
}
