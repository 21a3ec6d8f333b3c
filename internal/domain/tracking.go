package domain

import "time"

// SessionStatus is the state of a tracking session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Position is a client-supplied coordinate.
type Position struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Sample is a position stamped by the server.
type Sample struct {
	Seq       int64     `json:"seq"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// TrackingSession is a snapshot of one request's position stream.
type TrackingSession struct {
	ID        string        `json:"id"`
	RequestID string        `json:"request_id"`
	Status    SessionStatus `json:"status"`
	Samples   []Sample      `json:"samples"`
	OpenedAt  time.Time     `json:"opened_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}
