package http

import "github.com/labstack/echo/v4"

// Handler mounts a group of routes on the server's Echo instance.
// NewServer calls RegisterRoutes once per handler, in order, before
// /metrics and /healthz are added.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}
