package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sumire/fleetdesk/internal/domain"
	"github.com/sumire/fleetdesk/internal/metrics"
)

const dispatchTimeout = 5 * time.Second

// RequestStore defines the request data access interface consumed by LifecycleService.
type RequestStore interface {
	Insert(ctx context.Context, req domain.ServiceRequest, change domain.StatusChange) error
	FindByID(ctx context.Context, id string) (*domain.ServiceRequest, error)
	ListByUser(ctx context.Context, userID string) ([]domain.ServiceRequest, error)
	ListAll(ctx context.Context) ([]domain.ServiceRequest, error)
	UpdateDetails(ctx context.Context, req domain.ServiceRequest) error
	UpdateStatus(ctx context.Context, req domain.ServiceRequest, from domain.RequestStatus, change domain.StatusChange) error
	History(ctx context.Context, id string) ([]domain.StatusChange, error)
}

// TransitionHandler reacts to a committed status transition.
type TransitionHandler interface {
	HandleTransition(ctx context.Context, event domain.TransitionEvent) error
}

// TransitionHandlerFunc adapts a function to TransitionHandler.
type TransitionHandlerFunc func(ctx context.Context, event domain.TransitionEvent) error

func (f TransitionHandlerFunc) HandleTransition(ctx context.Context, event domain.TransitionEvent) error {
	return f(ctx, event)
}

type namedHandler struct {
	name    string
	handler TransitionHandler
}

// CreateRequestInput carries the fields of a new service request.
type CreateRequestInput struct {
	UserID          string   `json:"user_id"`
	ServiceType     string   `json:"service_type" validate:"required,max=100"`
	Description     string   `json:"description" validate:"max=4000"`
	SuggestedParts  []string `json:"suggested_parts" validate:"max=50,dive,required,max=200"`
	TrackingEnabled bool     `json:"tracking_enabled"`
}

// UpdateDetailsInput carries the editable payload of a pending request.
type UpdateDetailsInput struct {
	ServiceType    string   `json:"service_type" validate:"required,max=100"`
	Description    string   `json:"description" validate:"max=4000"`
	SuggestedParts []string `json:"suggested_parts" validate:"max=50,dive,required,max=200"`
}

// LifecycleService is the only writer of request status. Transitions on the
// same request are serialized; handlers run after commit, before return.
type LifecycleService struct {
	store RequestStore
	locks *keyedMutex
	log   *slog.Logger

	hmu      sync.RWMutex
	handlers []namedHandler

	now   func() time.Time
	newID func() string
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(store RequestStore, logger *slog.Logger) *LifecycleService {
	return &LifecycleService{
		store: store,
		locks: newKeyedMutex(),
		log:   logger.With("component", "lifecycle"),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Subscribe registers h to receive every transition event, in registration order.
func (s *LifecycleService) Subscribe(name string, h TransitionHandler) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.handlers = append(s.handlers, namedHandler{name: name, handler: h})
}

// Create stores a new pending request. Users create for themselves; admins
// may create on behalf of a user.
func (s *LifecycleService) Create(ctx context.Context, actor domain.Actor, in CreateRequestInput) (*domain.ServiceRequest, error) {
	owner := in.UserID
	switch {
	case actor.IsAdmin():
		if owner == "" {
			return nil, &domain.ValidationError{Field: "user_id", Message: "admins must name the owning user"}
		}
	case owner == "":
		owner = actor.ID
	case owner != actor.ID:
		return nil, fmt.Errorf("%w: users may only create their own requests", domain.ErrForbidden)
	}
	if strings.TrimSpace(in.ServiceType) == "" {
		return nil, &domain.ValidationError{Field: "service_type", Message: "service type is required"}
	}

	now := s.now()
	req := domain.ServiceRequest{
		ID:              s.newID(),
		UserID:          owner,
		ServiceType:     strings.TrimSpace(in.ServiceType),
		Description:     in.Description,
		SuggestedParts:  cleanParts(in.SuggestedParts),
		Status:          domain.RequestStatusPending,
		TrackingEnabled: in.TrackingEnabled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	unlock := s.locks.Lock(req.ID)
	defer unlock()

	change := domain.StatusChange{RequestID: req.ID, To: domain.RequestStatusPending, ActorID: actor.ID, At: now}
	if err := s.store.Insert(ctx, req, change); err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}
	metrics.TransitionsTotal.WithLabelValues("none", string(domain.RequestStatusPending)).Inc()

	s.publish(ctx, domain.TransitionEvent{
		RequestID: req.ID,
		To:        domain.RequestStatusPending,
		ActorID:   actor.ID,
		Timestamp: now,
		Request:   req.Clone(),
	})
	return &req, nil
}

// Transition moves a request to target. Only admins may transition; rejection requires notes.
func (s *LifecycleService) Transition(ctx context.Context, actor domain.Actor, id string, target domain.RequestStatus, notes string) (*domain.ServiceRequest, error) {
	if !target.Valid() {
		metrics.TransitionsRejected.WithLabelValues("validation").Inc()
		return nil, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", target)}
	}
	if !actor.IsAdmin() {
		metrics.TransitionsRejected.WithLabelValues("forbidden").Inc()
		return nil, fmt.Errorf("%w: only admins can change request status", domain.ErrForbidden)
	}
	notes = strings.TrimSpace(notes)
	if target == domain.RequestStatusRejected && notes == "" {
		metrics.TransitionsRejected.WithLabelValues("validation").Inc()
		return nil, &domain.ValidationError{Field: "notes", Message: "rejection requires notes"}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cur.Status.CanTransitionTo(target) {
		metrics.TransitionsRejected.WithLabelValues("invalid_transition").Inc()
		return nil, &domain.TransitionError{From: cur.Status, To: target}
	}

	var notesPtr *string
	if notes != "" {
		notesPtr = &notes
	}
	now := s.now()
	next := cur.WithStatus(target, notesPtr, now)
	change := domain.StatusChange{RequestID: id, From: cur.Status, To: target, ActorID: actor.ID, Notes: notesPtr, At: now}

	if err := s.store.UpdateStatus(ctx, next, cur.Status, change); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.TransitionsRejected.WithLabelValues("invalid_transition").Inc()
			return nil, &domain.TransitionError{From: cur.Status, To: target}
		}
		return nil, fmt.Errorf("update status: %w", err)
	}
	metrics.TransitionsTotal.WithLabelValues(string(cur.Status), string(target)).Inc()

	s.log.Info("request transitioned",
		"request_id", id,
		"from", cur.Status,
		"to", target,
		"actor_id", actor.ID,
	)

	s.publish(ctx, domain.TransitionEvent{
		RequestID: id,
		From:      cur.Status,
		To:        target,
		ActorID:   actor.ID,
		Timestamp: now,
		Request:   next.Clone(),
	})
	return &next, nil
}

// UpdateDetails rewrites the descriptive payload while the request is pending.
func (s *LifecycleService) UpdateDetails(ctx context.Context, actor domain.Actor, id string, in UpdateDetailsInput) (*domain.ServiceRequest, error) {
	if strings.TrimSpace(in.ServiceType) == "" {
		return nil, &domain.ValidationError{Field: "service_type", Message: "service type is required"}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.UserID != actor.ID {
		return nil, fmt.Errorf("%w: only the owner can edit a request", domain.ErrForbidden)
	}
	if cur.Status != domain.RequestStatusPending {
		return nil, fmt.Errorf("%w: request is %s and can no longer be edited", domain.ErrConflict, cur.Status)
	}

	next := cur.Clone()
	next.ServiceType = strings.TrimSpace(in.ServiceType)
	next.Description = in.Description
	next.SuggestedParts = cleanParts(in.SuggestedParts)
	next.UpdatedAt = s.now()

	if err := s.store.UpdateDetails(ctx, next); err != nil {
		return nil, fmt.Errorf("update request details: %w", err)
	}
	return &next, nil
}

// Get returns a request visible to actor.
func (s *LifecycleService) Get(ctx context.Context, actor domain.Actor, id string) (*domain.ServiceRequest, error) {
	req, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(req.UserID) {
		return nil, fmt.Errorf("%w: request belongs to another user", domain.ErrForbidden)
	}
	return req, nil
}

// ListFor returns the requests owned by userID; an empty userID means the actor.
func (s *LifecycleService) ListFor(ctx context.Context, actor domain.Actor, userID string) ([]domain.ServiceRequest, error) {
	if userID == "" {
		userID = actor.ID
	}
	if !actor.CanAccess(userID) {
		return nil, fmt.Errorf("%w: cannot list another user's requests", domain.ErrForbidden)
	}
	return s.store.ListByUser(ctx, userID)
}

// ListAll returns every request. Admin only.
func (s *LifecycleService) ListAll(ctx context.Context, actor domain.Actor) ([]domain.ServiceRequest, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can list all requests", domain.ErrForbidden)
	}
	return s.store.ListAll(ctx)
}

// History returns the status changes of a request visible to actor.
func (s *LifecycleService) History(ctx context.Context, actor domain.Actor, id string) ([]domain.StatusChange, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id)
}

// publish delivers event to every handler. Failures are logged, never returned:
// the transition is already committed.
func (s *LifecycleService) publish(ctx context.Context, event domain.TransitionEvent) {
	s.hmu.RLock()
	handlers := append([]namedHandler(nil), s.handlers...)
	s.hmu.RUnlock()

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	for _, h := range handlers {
		if err := s.dispatch(dctx, h, event); err != nil {
			metrics.DispatchFailures.WithLabelValues(h.name).Inc()
			s.log.Error("transition handler failed",
				"handler", h.name,
				"request_id", event.RequestID,
				"to", event.To,
				"error", err,
			)
		}
	}
}

func (s *LifecycleService) dispatch(ctx context.Context, h namedHandler, event domain.TransitionEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.handler.HandleTransition(ctx, event)
}

func cleanParts(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
