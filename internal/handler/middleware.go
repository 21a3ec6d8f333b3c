package handler

import (
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/fleetdesk/internal/domain"
	"github.com/sumire/fleetdesk/internal/service"
)

const (
	contextKeyActor = "actor"
)

// RequestLogger logs each HTTP request with structured fields.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			attrs := []any{
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			}
			if actor, ok := GetActor(c); ok {
				attrs = append(attrs, "actor_id", actor.ID, "role", actor.Role)
			}
			slog.Info("http request", attrs...)

			return err
		}
	}
}

// ActorAuth resolves the Bearer token into an actor and stores it in echo
// context. WebSocket clients may pass the token as access_token instead.
func ActorAuth(tokens *service.TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.QueryParam("access_token")
			if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
				parts := strings.SplitN(header, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					return domain.ErrUnauthorized
				}
				raw = parts[1]
			}
			if raw == "" {
				return domain.ErrUnauthorized
			}

			actor, err := tokens.Resolve(raw)
			if err != nil {
				return domain.ErrUnauthorized
			}

			c.Set(contextKeyActor, actor)
			return next(c)
		}
	}
}

// RequireAdmin rejects actors without the admin role.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, ok := GetActor(c)
		if !ok {
			return domain.ErrUnauthorized
		}
		if !actor.IsAdmin() {
			return domain.ErrForbidden
		}
		return next(c)
	}
}

// GetActor extracts the authenticated actor from echo context.
func GetActor(c echo.Context) (domain.Actor, bool) {
	actor, ok := c.Get(contextKeyActor).(domain.Actor)
	return actor, ok
}

func mustActor(c echo.Context) (domain.Actor, error) {
	actor, ok := GetActor(c)
	if !ok {
		return domain.Actor{}, domain.ErrUnauthorized
	}
	return actor, nil
}
