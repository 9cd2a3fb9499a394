package middleware

import (
	"github.com/OFFIS-RIT/graphsync/internal/consistency"
	"github.com/OFFIS-RIT/graphsync/internal/queue"
	"github.com/OFFIS-RIT/graphsync/pkg/store"

	"github.com/labstack/echo/v4"
)

// App holds the collaborators shared by every request.
type App struct {
	Statuses consistency.StatusStore
	Stores   store.Opener
	Queue    queue.Publisher
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
