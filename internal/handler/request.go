package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/fleetdesk/internal/domain"
	"github.com/sumire/fleetdesk/internal/service"
)

// RequestHandler serves the service request endpoints.
type RequestHandler struct {
	lifecycle *service.LifecycleService
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(lifecycle *service.LifecycleService) *RequestHandler {
	return &RequestHandler{lifecycle: lifecycle}
}

type transitionBody struct {
	Status domain.RequestStatus `json:"status" validate:"required"`
	Notes  string               `json:"notes" validate:"max=2000"`
}

// Create submits a new service request.
func (h *RequestHandler) Create(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	var in service.CreateRequestInput
	if err := c.Bind(&in); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&in); err != nil {
		return err
	}

	req, err := h.lifecycle.Create(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, req)
}

// List returns the actor's requests, another user's (user_id, admin) or all (scope=all, admin).
func (h *RequestHandler) List(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var reqs []domain.ServiceRequest
	if c.QueryParam("scope") == "all" {
		reqs, err = h.lifecycle.ListAll(ctx, actor)
	} else {
		reqs, err = h.lifecycle.ListFor(ctx, actor, c.QueryParam("user_id"))
	}
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, reqs)
}

// Get returns one request.
func (h *RequestHandler) Get(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	req, err := h.lifecycle.Get(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, req)
}

// Update edits the descriptive fields of a pending request.
func (h *RequestHandler) Update(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	var in service.UpdateDetailsInput
	if err := c.Bind(&in); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&in); err != nil {
		return err
	}

	req, err := h.lifecycle.UpdateDetails(c.Request().Context(), actor, c.Param("id"), in)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, req)
}

// Transition changes the status of a request.
func (h *RequestHandler) Transition(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	var body transitionBody
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&body); err != nil {
		return err
	}

	req, err := h.lifecycle.Transition(c.Request().Context(), actor, c.Param("id"), body.Status, body.Notes)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, req)
}

// History returns the status history of a request.
func (h *RequestHandler) History(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	changes, err := h.lifecycle.History(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, changes)
}
