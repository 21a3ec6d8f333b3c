package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sumire/fleetdesk/internal/domain"
	"github.com/sumire/fleetdesk/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// TrackingHandler serves the live tracking endpoints.
type TrackingHandler struct {
	tracking *service.TrackingService
	upgrader websocket.Upgrader
}

// NewTrackingHandler creates a new TrackingHandler. checkOrigin may be nil
// to accept only same-origin websocket upgrades.
func NewTrackingHandler(tracking *service.TrackingService, checkOrigin func(r *http.Request) bool) *TrackingHandler {
	return &TrackingHandler{
		tracking: tracking,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Session returns the current or latest tracking session of a request.
func (h *TrackingHandler) Session(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	sess, err := h.tracking.Session(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, sess)
}

// AppendSample records a vehicle position for an active session.
func (h *TrackingHandler) AppendSample(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	var pos domain.Position
	if err := c.Bind(&pos); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&pos); err != nil {
		return err
	}

	sample, err := h.tracking.AppendSample(c.Request().Context(), actor, c.Param("id"), pos)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, sample)
}

// Stream upgrades to a websocket and pushes samples as JSON frames until the
// session ends, then sends a normal close frame.
func (h *TrackingHandler) Stream(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	requestID := c.Param("id")
	sub, err := h.tracking.Subscribe(c.Request().Context(), actor, requestID)
	if err != nil {
		return err
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already replied.
		slog.Warn("websocket upgrade failed", "request_id", requestID, "error", err)
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	go readPump(conn, cancel)
	go pingPump(ctx, conn)

	log := slog.With("request_id", requestID, "actor_id", actor.ID)
	for {
		sample, err := sub.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			closeConn(conn, websocket.CloseNormalClosure, "tracking ended")
			return nil
		case errors.Is(err, service.ErrSubscriptionIdle):
			closeConn(conn, websocket.CloseGoingAway, "idle")
			return nil
		case err != nil:
			log.Debug("tracking subscriber gone", "error", err)
			return nil
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(sample); err != nil {
			log.Debug("tracking write failed", "error", err)
			return nil
		}
	}
}

// readPump drains client frames so pongs and close frames are processed;
// it cancels the stream once the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func pingPump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
