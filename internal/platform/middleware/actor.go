package middleware

import (
	"github.com/labstack/echo/v4"
)

// ActorHeader names the staff member performing the request. There is no
// authentication layer; the header is trusted as supplied.
const ActorHeader = "X-Actor"

const actorKey = "actor"

// Actor resolves the acting staff member for the request, falling back to
// defaultActor when the header is absent.
func Actor(defaultActor string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := c.Request().Header.Get(ActorHeader)
			if actor == "" {
				actor = defaultActor
			}
			c.Set(actorKey, actor)
			return next(c)
		}
	}
}

// ActorFrom returns the actor resolved for the request, or "" when the
// Actor middleware is not installed.
func ActorFrom(c echo.Context) string {
	actor, _ := c.Get(actorKey).(string)
	return actor
}
