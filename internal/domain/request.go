package domain

import "time"

// RequestStatus represents the lifecycle state of a service request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCompleted RequestStatus = "completed"
)

var allowedTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:  {RequestStatusApproved, RequestStatusRejected},
	RequestStatusApproved: {RequestStatusCompleted},
}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected, RequestStatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusRejected || s == RequestStatusCompleted
}

// CanTransitionTo reports whether moving from s to target is allowed.
func (s RequestStatus) CanTransitionTo(target RequestStatus) bool {
	for _, next := range allowedTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// ServiceRequest is a fleet service request submitted by a user.
type ServiceRequest struct {
	ID              string        `json:"id" db:"id"`
	UserID          string        `json:"user_id" db:"user_id"`
	ServiceType     string        `json:"service_type" db:"service_type"`
	Description     string        `json:"description" db:"description"`
	SuggestedParts  []string      `json:"suggested_parts" db:"-"`
	Status          RequestStatus `json:"status" db:"status"`
	TrackingEnabled bool          `json:"tracking_enabled" db:"tracking_enabled"`
	AdminNotes      *string       `json:"admin_notes,omitempty" db:"admin_notes"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// WithStatus returns a copy of the request moved to status at the given time.
func (r ServiceRequest) WithStatus(status RequestStatus, notes *string, at time.Time) ServiceRequest {
	next := r.Clone()
	next.Status = status
	if notes != nil {
		next.AdminNotes = notes
	}
	next.UpdatedAt = at
	return next
}

// Clone returns a deep copy so callers never share the parts slice.
func (r ServiceRequest) Clone() ServiceRequest {
	c := r
	if r.SuggestedParts != nil {
		c.SuggestedParts = append([]string(nil), r.SuggestedParts...)
	}
	if r.AdminNotes != nil {
		n := *r.AdminNotes
		c.AdminNotes = &n
	}
	return c
}

// StatusChange is one entry of a request's status history.
type StatusChange struct {
	RequestID string        `json:"request_id" db:"request_id"`
	From      RequestStatus `json:"from" db:"from_status"`
	To        RequestStatus `json:"to" db:"to_status"`
	ActorID   string        `json:"actor_id" db:"actor_id"`
	Notes     *string       `json:"notes,omitempty" db:"notes"`
	At        time.Time     `json:"at" db:"at"`
}

// TransitionEvent is published after every committed status change,
// including creation (From is empty). Request is the post-commit snapshot.
type TransitionEvent struct {
	RequestID string         `json:"request_id"`
	From      RequestStatus  `json:"from"`
	To        RequestStatus  `json:"to"`
	ActorID   string         `json:"actor_id"`
	Timestamp time.Time      `json:"timestamp"`
	Request   ServiceRequest `json:"request"`
}

// IsCreation reports whether the event records a new request.
func (e TransitionEvent) IsCreation() bool {
	return e.From == ""
}
