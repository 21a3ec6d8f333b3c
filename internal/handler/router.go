package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sumire/fleetdesk/internal/service"
)

// Services bundles the engine components exposed over HTTP.
type Services struct {
	Tokens        *service.TokenService
	Lifecycle     *service.LifecycleService
	Notifications *service.NotificationService
	Tracking      *service.TrackingService
	Messages      *service.MessageService
}

// NewRouter builds the echo instance with every route registered.
func NewRouter(svc Services, frontendURL string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = HTTPErrorHandler
	e.Validator = NewAppValidator()

	e.Use(middleware.RequestID())
	e.Use(RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{frontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentType},
		ExposeHeaders:    []string{echo.HeaderXRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	e.GET("/health", func(c echo.Context) error {
		return JSON(c, http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	requests := NewRequestHandler(svc.Lifecycle)
	notifications := NewNotificationHandler(svc.Notifications)
	tracking := NewTrackingHandler(svc.Tracking, func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == frontendURL
	})
	messages := NewMessageHandler(svc.Messages)

	api := e.Group("/api/v1", ActorAuth(svc.Tokens))

	api.POST("/requests", requests.Create)
	api.GET("/requests", requests.List)
	api.GET("/requests/:id", requests.Get)
	api.PATCH("/requests/:id", requests.Update)
	api.POST("/requests/:id/transitions", requests.Transition)
	api.GET("/requests/:id/history", requests.History)

	api.GET("/requests/:id/tracking", tracking.Session)
	api.GET("/requests/:id/tracking/stream", tracking.Stream)
	api.POST("/requests/:id/tracking/samples", tracking.AppendSample)

	api.GET("/notifications", notifications.List)
	api.GET("/notifications/unread-count", notifications.UnreadCount)
	api.POST("/notifications/read-all", notifications.MarkAllRead)
	api.POST("/notifications/:id/read", notifications.MarkRead)
	api.POST("/notifications/reminders", notifications.Reminder, RequireAdmin)

	api.GET("/threads", messages.Threads)
	api.GET("/threads/:key/messages", messages.History)
	api.POST("/threads/:key/messages", messages.Post)

	return e
}
