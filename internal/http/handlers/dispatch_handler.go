// README: Dispatcher handlers for technician ranking and gap filling.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fieldops/internal/modules/gapfill"
	"fieldops/internal/modules/scoring"
	"fieldops/internal/types"
)

type RankService interface {
	Rank(ctx context.Context, q scoring.RankQuery) ([]scoring.TechnicianScore, error)
}

type GapFillService interface {
	Fill(ctx context.Context, q gapfill.GapQuery) ([]gapfill.Suggestion, error)
}

type DispatchHandler struct {
	rank    RankService
	gapfill GapFillService
}

func NewDispatchHandler(rank RankService, gaps GapFillService) *DispatchHandler {
	return &DispatchHandler{rank: rank, gapfill: gaps}
}

func (h *DispatchHandler) Rank(c *gin.Context) {
	tenant, ok := callerTenant(c)
	if !ok || !requireDispatcher(c) {
		return
	}
	serviceID := c.Query("service_id")
	if !isValidID(serviceID) {
		writeError(c, http.StatusBadRequest, "invalid service_id")
		return
	}
	date, err := parseDate(c.Query("date"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	q := scoring.RankQuery{TenantID: tenant, ServiceID: types.ID(serviceID), Date: date}
	p, present, ok := queryPoint(c)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid lat/lng")
		return
	}
	if present {
		q.Location = &p
	}
	for _, ex := range c.QueryArray("exclude") {
		q.Exclude = append(q.Exclude, types.ID(ex))
	}

	scores, err := h.rank.Rank(c.Request.Context(), q)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"technicians": scores})
}

type gapFillReq struct {
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
}

func (h *DispatchHandler) GapFill(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tenant, ok := callerTenant(c)
	if !ok || !requireSelfOrDispatcher(c, id) {
		return
	}
	var req gapFillReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "windowStart and windowEnd must be RFC 3339 timestamps")
		return
	}
	suggestions, err := h.gapfill.Fill(c.Request.Context(), gapfill.GapQuery{
		TenantID:     tenant,
		TechnicianID: types.ID(id),
		WindowStart:  req.WindowStart,
		WindowEnd:    req.WindowEnd,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"suggestions": suggestions})
}
