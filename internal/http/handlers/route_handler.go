// README: Route handlers for optimize, fetch and apply.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fieldops/internal/modules/route"
	"fieldops/internal/types"
)

type RouteService interface {
	Optimize(ctx context.Context, cmd route.OptimizeCommand) (*route.OptimizedRoute, error)
	Apply(ctx context.Context, cmd route.ApplyCommand) (*route.OptimizedRoute, error)
	Get(ctx context.Context, tenantID, technicianID types.ID, date time.Time) (*route.OptimizedRoute, error)
}

type RouteHandler struct {
	routes RouteService
}

func NewRouteHandler(svc RouteService) *RouteHandler {
	return &RouteHandler{routes: svc}
}

type optimizeRouteReq struct {
	Date string `json:"date"`
}

func (h *RouteHandler) Optimize(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tenant, ok := callerTenant(c)
	if !ok || !requireSelfOrDispatcher(c, id) {
		return
	}
	var req optimizeRouteReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	r, err := h.routes.Optimize(c.Request.Context(), route.OptimizeCommand{
		TenantID:     tenant,
		TechnicianID: types.ID(id),
		Date:         date,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RouteHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tenant, ok := callerTenant(c)
	if !ok || !requireSelfOrDispatcher(c, id) {
		return
	}
	date, err := parseDate(c.Query("date"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	r, err := h.routes.Get(c.Request.Context(), tenant, types.ID(id), date)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RouteHandler) Apply(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tenant, ok := callerTenant(c)
	if !ok || !requireDispatcher(c) {
		return
	}
	r, err := h.routes.Apply(c.Request.Context(), route.ApplyCommand{TenantID: tenant, RouteID: types.ID(id)})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}
