package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/graphsync/internal/consistency"
	"github.com/OFFIS-RIT/graphsync/internal/queue"
	"github.com/OFFIS-RIT/graphsync/internal/server/middleware"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"

	"github.com/labstack/echo/v4"
)

type messageResponse struct {
	Message string `json:"message"`
}

func GetGraphsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App

	graphs, err := app.Statuses.ListGraphs(c.Request().Context())
	if err != nil {
		logger.Error("[Server] Failed to list graphs", "err", err)
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Failed to list graphs"})
	}
	if graphs == nil {
		graphs = []consistency.GraphState{}
	}
	return c.JSON(http.StatusOK, graphs)
}

// GetConsistencyStatusHandler returns the driver status of a graph. Graphs
// that never had a driver get one requested and answer 202.
func GetConsistencyStatusHandler(c echo.Context) error {
	type pendingResponse struct {
		Message   string `json:"message"`
		Graph     string `json:"graph"`
		Requested bool   `json:"requested"`
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()
	name := c.Param("graph")

	stores, err := app.Stores.Open(ctx, name)
	if err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid graph"})
	}

	status, ok, err := consistency.LoadStatus(ctx, app.Statuses, stores.Graph, name)
	if err != nil {
		logger.Error("[Server] Failed to load status", "graph", name, "err", err)
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Failed to load status"})
	}
	if ok && status.Initialized {
		return c.JSON(http.StatusOK, status)
	}

	err = queue.PublishSync(app.Queue, queue.SyncMessage{Graph: name, Action: queue.ActionStart})
	if err != nil {
		logger.Error("[Server] Failed to request driver start", "graph", name, "err", err)
		return c.JSON(http.StatusServiceUnavailable, pendingResponse{
			Message: "Consistency driver is not running and could not be requested",
			Graph:   name,
		})
	}
	return c.JSON(http.StatusAccepted, pendingResponse{
		Message:   "Consistency driver is not running, start requested",
		Graph:     name,
		Requested: true,
	})
}

func GetRunHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	name := c.Param("graph")
	requestID := c.Param("request_id")

	run, ok, err := app.Statuses.GetRun(c.Request().Context(), requestID)
	if err != nil {
		logger.Error("[Server] Failed to load run", "request_id", requestID, "err", err)
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Failed to load run"})
	}
	if !ok || run.Graph != name {
		return c.JSON(http.StatusNotFound, messageResponse{Message: "Run not found"})
	}
	return c.JSON(http.StatusOK, run)
}
