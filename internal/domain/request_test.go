package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestStatus_CanTransitionTo(t *testing.T) {
	all := []RequestStatus{RequestStatusPending, RequestStatusApproved, RequestStatusRejected, RequestStatusCompleted}
	allowed := map[[2]RequestStatus]bool{
		{RequestStatusPending, RequestStatusApproved}:   true,
		{RequestStatusPending, RequestStatusRejected}:   true,
		{RequestStatusApproved, RequestStatusCompleted}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]RequestStatus{from, to}]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestRequestStatus_Terminal(t *testing.T) {
	assert.False(t, RequestStatusPending.Terminal())
	assert.False(t, RequestStatusApproved.Terminal())
	assert.True(t, RequestStatusRejected.Terminal())
	assert.True(t, RequestStatusCompleted.Terminal())
	assert.False(t, RequestStatus("archived").Valid())
}

func TestServiceRequest_WithStatusDoesNotAlias(t *testing.T) {
	notes := "looks good"
	orig := ServiceRequest{ID: "r1", Status: RequestStatusPending, SuggestedParts: []string{"brake pads"}}

	next := orig.WithStatus(RequestStatusApproved, &notes, orig.CreatedAt)
	next.SuggestedParts[0] = "rotor"

	assert.Equal(t, RequestStatusPending, orig.Status)
	assert.Equal(t, "brake pads", orig.SuggestedParts[0])
	assert.Nil(t, orig.AdminNotes)
	assert.Equal(t, "looks good", *next.AdminNotes)
}

func TestTransitionError(t *testing.T) {
	err := error(&TransitionError{From: RequestStatusCompleted, To: RequestStatusApproved})

	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, "cannot move request from completed to approved", err.Error())
	assert.Contains(t, (&TransitionError{To: RequestStatusApproved}).Error(), "from none")
}

func TestThreadKey(t *testing.T) {
	key := ThreadKeyFor("u-42")

	owner, ok := ThreadOwner(key)
	assert.True(t, ok)
	assert.Equal(t, "u-42", owner)

	_, ok = ThreadOwner("u-42")
	assert.False(t, ok)
	_, ok = ThreadOwner("thread:")
	assert.False(t, ok)
}

func TestActor(t *testing.T) {
	admin := Actor{ID: "a1", Role: RoleAdmin}
	user := Actor{ID: "u1", Role: RoleUser}

	assert.True(t, admin.CanAccess("u1"))
	assert.True(t, user.CanAccess("u1"))
	assert.False(t, user.CanAccess("u2"))
	assert.Equal(t, SenderAdmin, SenderFor(admin))
	assert.Equal(t, SenderUser, SenderFor(user))
	assert.False(t, Role("superuser").Valid())
}
