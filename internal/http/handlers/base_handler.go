// README: Base handler utilities (JSON helpers, error mapping, caller checks).
package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fieldops/internal/http/middleware"
	"fieldops/internal/platform/obs"
	"fieldops/internal/types"
)

const (
	RoleTechnician = "technician"
	RoleDispatcher = "dispatcher"
	RoleAdmin      = "admin"
)

const dateLayout = "2006-01-02"

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the uuid-style ids the stores generate.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeDispatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		log.Printf("req_id=%s %s %s failed: %v", obs.RequestID(c.Request.Context()), c.Request.Method, c.FullPath(), err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// callerTenant aborts with 403 when the token carries no tenant.
func callerTenant(c *gin.Context) (types.ID, bool) {
	t := middleware.CallerTenant(c)
	if t == "" {
		writeError(c, http.StatusForbidden, "forbidden: token has no tenant")
		return "", false
	}
	return types.ID(t), true
}

func isDispatcher(c *gin.Context) bool {
	r := middleware.CallerRole(c)
	return r == RoleDispatcher || r == RoleAdmin
}

func requireDispatcher(c *gin.Context) bool {
	if !isDispatcher(c) {
		writeError(c, http.StatusForbidden, "forbidden: dispatcher role required")
		return false
	}
	return true
}

// requireSelfOrDispatcher lets technicians act on their own resources only.
func requireSelfOrDispatcher(c *gin.Context, technicianID string) bool {
	if isDispatcher(c) || middleware.CallerUID(c) == technicianID {
		return true
	}
	writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated user")
	return false
}

// pathID reads and validates a path parameter.
func pathID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return id, true
}

// parseDate reads YYYY-MM-DD, defaulting to today in UTC.
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(dateLayout, v)
}

func queryFloat(c *gin.Context, key string) (float64, bool) {
	f, err := strconv.ParseFloat(c.Query(key), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// queryPoint reads lat/lng. present is false when both are absent.
func queryPoint(c *gin.Context) (p types.Point, present, ok bool) {
	if c.Query("lat") == "" && c.Query("lng") == "" {
		return types.Point{}, false, true
	}
	lat, okLat := queryFloat(c, "lat")
	lng, okLng := queryFloat(c, "lng")
	if !okLat || !okLng {
		return types.Point{}, true, false
	}
	return types.Point{Lat: lat, Lng: lng}, true, true
}
