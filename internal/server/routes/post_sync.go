package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/graphsync/internal/queue"
	"github.com/OFFIS-RIT/graphsync/internal/server/middleware"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// PostSyncHandler publishes a driver action for a graph.
func PostSyncHandler(c echo.Context) error {
	type syncBody struct {
		Action string `json:"action" validate:"required,oneof=start sync cleanup stop"`
	}

	type syncResponse struct {
		Message       string `json:"message"`
		Graph         string `json:"graph,omitempty"`
		Action        string `json:"action,omitempty"`
		CorrelationID string `json:"correlation_id,omitempty"`
	}

	data := new(syncBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, syncResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, syncResponse{Message: "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	name := c.Param("graph")
	correlationID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, syncResponse{Message: "Failed to create correlation id"})
	}

	msg := queue.SyncMessage{Graph: name, Action: queue.Action(data.Action), CorrelationID: correlationID}
	if err := queue.PublishSync(app.Queue, msg); err != nil {
		logger.Error("[Server] Failed to publish sync message", "graph", name, "action", data.Action, "err", err)
		return c.JSON(http.StatusServiceUnavailable, syncResponse{Message: "Failed to queue action"})
	}

	logger.Info("[Server] Queued driver action", "graph", name, "action", data.Action, "correlation_id", correlationID)
	return c.JSON(http.StatusAccepted, syncResponse{
		Message:       "Action queued",
		Graph:         name,
		Action:        data.Action,
		CorrelationID: correlationID,
	})
}
