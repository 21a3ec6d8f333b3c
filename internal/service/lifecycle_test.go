package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/fleetdesk/internal/domain"
	"github.com/sumire/fleetdesk/internal/repository"
)

var (
	owner    = domain.Actor{ID: "user-1", Role: domain.RoleUser}
	stranger = domain.Actor{ID: "user-2", Role: domain.RoleUser}
	admin    = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
)

type engine struct {
	requests      *repository.MemoryRequestStore
	lifecycle     *LifecycleService
	notifications *NotificationService
	tracking      *TrackingService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	log := discardLogger()
	requests := repository.NewMemoryRequestStore()
	e := &engine{
		requests:      requests,
		lifecycle:     NewLifecycleService(requests, log),
		notifications: NewNotificationService(repository.NewMemoryNotificationStore(), StaticAdminDirectory{admin.ID, "admin-2"}, log),
		tracking:      NewTrackingService(requests, 0, log),
	}
	e.lifecycle.Subscribe("notifications", e.notifications)
	e.lifecycle.Subscribe("tracking", e.tracking)
	return e
}

func (e *engine) create(t *testing.T, tracking bool) *domain.ServiceRequest {
	t.Helper()
	req, err := e.lifecycle.Create(context.Background(), owner, CreateRequestInput{
		ServiceType:     "brake inspection",
		Description:     "squealing on the front axle",
		SuggestedParts:  []string{"brake pads", " ", "rotor"},
		TrackingEnabled: tracking,
	})
	require.NoError(t, err)
	return req
}

func TestLifecycle_Create(t *testing.T) {
	e := newEngine(t)
	req := e.create(t, true)

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, owner.ID, req.UserID)
	assert.Equal(t, domain.RequestStatusPending, req.Status)
	assert.Equal(t, []string{"brake pads", "rotor"}, req.SuggestedParts)
	assert.True(t, req.TrackingEnabled)

	history, err := e.lifecycle.History(context.Background(), owner, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.RequestStatus(""), history[0].From)
	assert.Equal(t, domain.RequestStatusPending, history[0].To)
}

func TestLifecycle_CreateAuthorization(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.lifecycle.Create(ctx, owner, CreateRequestInput{UserID: stranger.ID, ServiceType: "oil change"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = e.lifecycle.Create(ctx, admin, CreateRequestInput{ServiceType: "oil change"})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "user_id", vErr.Field)

	req, err := e.lifecycle.Create(ctx, admin, CreateRequestInput{UserID: owner.ID, ServiceType: "oil change"})
	require.NoError(t, err)
	assert.Equal(t, owner.ID, req.UserID)

	_, err = e.lifecycle.Create(ctx, owner, CreateRequestInput{ServiceType: "  "})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "service_type", vErr.Field)
}

func TestLifecycle_TransitionPaths(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		steps []domain.RequestStatus
		ok    []bool
	}{
		{"approve then complete", []domain.RequestStatus{domain.RequestStatusApproved, domain.RequestStatusCompleted}, []bool{true, true}},
		{"reject", []domain.RequestStatus{domain.RequestStatusRejected}, []bool{true}},
		{"skip approval", []domain.RequestStatus{domain.RequestStatusCompleted}, []bool{false}},
		{"back to pending", []domain.RequestStatus{domain.RequestStatusApproved, domain.RequestStatusPending}, []bool{true, false}},
		{"approve twice", []domain.RequestStatus{domain.RequestStatusApproved, domain.RequestStatusApproved}, []bool{true, false}},
		{"leave rejected", []domain.RequestStatus{domain.RequestStatusRejected, domain.RequestStatusApproved}, []bool{true, false}},
		{"leave completed", []domain.RequestStatus{domain.RequestStatusApproved, domain.RequestStatusCompleted, domain.RequestStatusRejected}, []bool{true, true, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t)
			req := e.create(t, false)

			for i, target := range tt.steps {
				before, err := e.lifecycle.Get(ctx, admin, req.ID)
				require.NoError(t, err)

				got, err := e.lifecycle.Transition(ctx, admin, req.ID, target, "reason given")
				if tt.ok[i] {
					require.NoError(t, err)
					assert.Equal(t, target, got.Status)
					assert.False(t, got.UpdatedAt.Before(before.UpdatedAt))
					continue
				}
				assert.ErrorIs(t, err, domain.ErrInvalidTransition)
				after, err := e.lifecycle.Get(ctx, admin, req.ID)
				require.NoError(t, err)
				assert.Equal(t, before.Status, after.Status)
			}
		})
	}
}

func TestLifecycle_TransitionForbiddenForUsers(t *testing.T) {
	e := newEngine(t)
	req := e.create(t, false)

	for _, target := range []domain.RequestStatus{domain.RequestStatusApproved, domain.RequestStatusRejected, domain.RequestStatusCompleted, domain.RequestStatusPending} {
		_, err := e.lifecycle.Transition(context.Background(), owner, req.ID, target, "notes")
		assert.ErrorIs(t, err, domain.ErrForbidden, target)
	}

	got, err := e.lifecycle.Get(context.Background(), owner, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPending, got.Status)
}

func TestLifecycle_RejectRequiresNotes(t *testing.T) {
	e := newEngine(t)
	req := e.create(t, false)

	for _, notes := range []string{"", "   ", "\t\n"} {
		_, err := e.lifecycle.Transition(context.Background(), admin, req.ID, domain.RequestStatusRejected, notes)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "notes", vErr.Field)
		assert.Equal(t, "rejection requires notes", vErr.Message)
	}

	got, err := e.lifecycle.Get(context.Background(), owner, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPending, got.Status)

	got, err = e.lifecycle.Transition(context.Background(), admin, req.ID, domain.RequestStatusRejected, "  parts unavailable ")
	require.NoError(t, err)
	require.NotNil(t, got.AdminNotes)
	assert.Equal(t, "parts unavailable", *got.AdminNotes)
}

func TestLifecycle_TransitionUnknown(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.lifecycle.Transition(ctx, admin, "missing", domain.RequestStatusApproved, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	req := e.create(t, false)
	_, err = e.lifecycle.Transition(ctx, admin, req.ID, domain.RequestStatus("archived"), "")
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestLifecycle_ConcurrentTransitions(t *testing.T) {
	e := newEngine(t)
	req := e.create(t, true)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.lifecycle.Transition(ctx, admin, req.ID, domain.RequestStatusApproved, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	require.Len(t, failures, workers-1)
	for _, err := range failures {
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	}

	list, err := e.notifications.ListFor(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Len(t, e.tracking.Sessions(req.ID), 1)
}

func TestLifecycle_HandlerFailureDoesNotRollBack(t *testing.T) {
	e := newEngine(t)
	req := e.create(t, false)

	var seen []domain.RequestStatus
	e.lifecycle.Subscribe("broken", TransitionHandlerFunc(func(context.Context, domain.TransitionEvent) error {
		return errors.New("downstream unavailable")
	}))
	e.lifecycle.Subscribe("panicky", TransitionHandlerFunc(func(context.Context, domain.TransitionEvent) error {
		panic("boom")
	}))
	e.lifecycle.Subscribe("recorder", TransitionHandlerFunc(func(_ context.Context, ev domain.TransitionEvent) error {
		seen = append(seen, ev.To)
		return nil
	}))

	got, err := e.lifecycle.Transition(context.Background(), admin, req.ID, domain.RequestStatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusApproved, got.Status)
	assert.Equal(t, []domain.RequestStatus{domain.RequestStatusApproved}, seen)
}

func TestLifecycle_EventSeesCommittedState(t *testing.T) {
	e := newEngine(t)
	req := e.create(t, false)

	var observed domain.RequestStatus
	e.lifecycle.Subscribe("reader", TransitionHandlerFunc(func(ctx context.Context, ev domain.TransitionEvent) error {
		cur, err := e.requests.FindByID(ctx, ev.RequestID)
		if err != nil {
			return err
		}
		observed = cur.Status
		return nil
	}))

	_, err := e.lifecycle.Transition(context.Background(), admin, req.ID, domain.RequestStatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusApproved, observed)
}

func TestLifecycle_UpdateDetails(t *testing.T) {
	e := newEngine(t)
	req := e.create(t, false)
	ctx := context.Background()
	in := UpdateDetailsInput{ServiceType: "tire rotation", Description: "at 30k miles", SuggestedParts: []string{"valve stems"}}

	_, err := e.lifecycle.UpdateDetails(ctx, stranger, req.ID, in)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := e.lifecycle.UpdateDetails(ctx, owner, req.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "tire rotation", got.ServiceType)

	_, err = e.lifecycle.Transition(ctx, admin, req.ID, domain.RequestStatusApproved, "")
	require.NoError(t, err)

	_, err = e.lifecycle.UpdateDetails(ctx, owner, req.ID, in)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestLifecycle_Listing(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	mine := e.create(t, false)
	_, err := e.lifecycle.Create(ctx, stranger, CreateRequestInput{ServiceType: "battery"})
	require.NoError(t, err)

	list, err := e.lifecycle.ListFor(ctx, owner, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	_, err = e.lifecycle.ListFor(ctx, owner, stranger.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = e.lifecycle.ListAll(ctx, owner)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	all, err := e.lifecycle.ListAll(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = e.lifecycle.Get(ctx, stranger, mine.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
