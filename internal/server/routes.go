package server

import (
	"github.com/OFFIS-RIT/graphsync/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Graph consistency routes
	apiRoutes.GET("/graphs", routes.GetGraphsHandler)
	apiRoutes.GET("/graphs/:graph/consistency_status", routes.GetConsistencyStatusHandler)
	apiRoutes.POST("/graphs/:graph/sync", routes.PostSyncHandler)
	apiRoutes.GET("/graphs/:graph/runs/:request_id", routes.GetRunHandler)
}
