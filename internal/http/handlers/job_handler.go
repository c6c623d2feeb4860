// README: Job handlers for status changes and reassignment suggestions.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"fieldops/internal/modules/appointment"
	"fieldops/internal/modules/dispatch"
	"fieldops/internal/modules/scoring"
	"fieldops/internal/types"
)

type JobStatusService interface {
	OnJobStatus(ctx context.Context, c dispatch.JobStatusChange) (*appointment.Appointment, error)
}

type ReassignmentService interface {
	SuggestReassignment(ctx context.Context, tenantID, jobID types.ID) (*scoring.Reassignment, error)
}

type JobHandler struct {
	status   JobStatusService
	reassign ReassignmentService
}

func NewJobHandler(status JobStatusService, reassign ReassignmentService) *JobHandler {
	return &JobHandler{status: status, reassign: reassign}
}

type jobStatusReq struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	PhotoURL string `json:"photoUrl"`
}

func (h *JobHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tenant, ok := callerTenant(c)
	if !ok {
		return
	}
	var req jobStatusReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeError(c, http.StatusBadRequest, "status is required")
		return
	}
	a, err := h.status.OnJobStatus(c.Request.Context(), dispatch.JobStatusChange{
		TenantID: tenant,
		JobID:    types.ID(id),
		Status:   appointment.Status(req.Status),
		Message:  req.Message,
		PhotoURL: req.PhotoURL,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, a)
}

func (h *JobHandler) Reassignment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tenant, ok := callerTenant(c)
	if !ok || !requireDispatcher(c) {
		return
	}
	r, err := h.reassign.SuggestReassignment(c.Request.Context(), tenant, types.ID(id))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"suggestion": r})
}
