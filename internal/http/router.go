// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fieldops/internal/http/handlers"
	"fieldops/internal/http/middleware"
	"fieldops/internal/infra"
	"fieldops/internal/modules/dispatch"
)

type DispatchService interface {
	handlers.PingService
	handlers.JobStatusService
}

type ScoringService interface {
	handlers.RankService
	handlers.ReassignmentService
}

// RouterDeps carries the services behind each route group.
type RouterDeps struct {
	Verifier  infra.TokenVerifier
	Hub       *dispatch.Hub
	Routes    handlers.RouteService
	Dispatch  DispatchService
	Locations handlers.LocationService
	Scoring   ScoringService
	GapFill   handlers.GapFillService
	Jobs      handlers.JobLookup
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	routeHandler := handlers.NewRouteHandler(deps.Routes)
	jobHandler := handlers.NewJobHandler(deps.Dispatch, deps.Scoring)
	dispatchHandler := handlers.NewDispatchHandler(deps.Scoring, deps.GapFill)
	locationHandler := handlers.NewLocationHandler(deps.Dispatch, deps.Locations)
	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.Dispatch, deps.Jobs)

	r.GET("/ws", middleware.AuthWebsocket(deps.Verifier), realtimeHandler.Serve)

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	api.GET("/dispatch/rank", dispatchHandler.Rank)

	api.GET("/jobs/:id/reassignment", jobHandler.Reassignment)
	api.POST("/jobs/:id/status", jobHandler.UpdateStatus)

	api.POST("/routes/:id/apply", routeHandler.Apply)

	api.GET("/technicians/nearby", locationHandler.Nearby)
	api.POST("/technicians/:id/routes/optimize", routeHandler.Optimize)
	api.GET("/technicians/:id/routes", routeHandler.Get)
	api.PUT("/technicians/:id/location", locationHandler.Update)
	api.GET("/technicians/:id/location", locationHandler.Get)
	api.GET("/technicians/:id/eta", locationHandler.ETA)
	api.POST("/technicians/:id/gap-fill", dispatchHandler.GapFill)

	return r
}
