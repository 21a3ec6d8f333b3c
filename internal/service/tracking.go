package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sumire/fleetdesk/internal/domain"
	"github.com/sumire/fleetdesk/internal/metrics"
)

// ErrSubscriptionIdle ends a subscription that saw no sample for the idle timeout.
var ErrSubscriptionIdle = errors.New("tracking subscription idle")

// RequestReader is the read side of the request store.
type RequestReader interface {
	FindByID(ctx context.Context, id string) (*domain.ServiceRequest, error)
}

type session struct {
	id        string
	requestID string
	openedAt  time.Time

	mu      sync.Mutex
	status  domain.SessionStatus
	samples []domain.Sample
	endedAt *time.Time
	// wake is closed and replaced whenever samples or status change.
	wake chan struct{}
}

func newSession(requestID string, at time.Time) *session {
	return &session{
		id:        uuid.NewString(),
		requestID: requestID,
		openedAt:  at,
		status:    domain.SessionActive,
		wake:      make(chan struct{}),
	}
}

func (s *session) append(pos domain.Position, now time.Time) (domain.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.SessionActive {
		return domain.Sample{}, domain.ErrNotActive
	}
	if n := len(s.samples); n > 0 && !now.After(s.samples[n-1].Timestamp) {
		now = s.samples[n-1].Timestamp.Add(time.Nanosecond)
	}
	sample := domain.Sample{
		Seq:       int64(len(s.samples)) + 1,
		Lat:       pos.Lat,
		Lng:       pos.Lng,
		Timestamp: now,
	}
	s.samples = append(s.samples, sample)
	s.broadcast()
	return sample, nil
}

func (s *session) end(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.SessionEnded {
		return
	}
	s.status = domain.SessionEnded
	s.endedAt = &at
	s.broadcast()
}

func (s *session) broadcast() {
	close(s.wake)
	s.wake = make(chan struct{})
}

func (s *session) snapshot() domain.TrackingSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.TrackingSession{
		ID:        s.id,
		RequestID: s.requestID,
		Status:    s.status,
		Samples:   append([]domain.Sample{}, s.samples...),
		OpenedAt:  s.openedAt,
		EndedAt:   s.endedAt,
	}
}

// TrackingService owns the live position stream of approved,
// tracking-enabled requests.
type TrackingService struct {
	requests    RequestReader
	idleTimeout time.Duration
	log         *slog.Logger
	now         func() time.Time

	mu     sync.Mutex
	active map[string]*session
	ended  map[string][]*session
}

// NewTrackingService creates a new TrackingService. A zero idleTimeout
// disables the subscription idle backstop.
func NewTrackingService(requests RequestReader, idleTimeout time.Duration, logger *slog.Logger) *TrackingService {
	return &TrackingService{
		requests:    requests,
		idleTimeout: idleTimeout,
		log:         logger.With("component", "tracking"),
		now:         func() time.Time { return time.Now().UTC() },
		active:      make(map[string]*session),
		ended:       make(map[string][]*session),
	}
}

// HandleTransition opens a session on approval of a tracking-enabled request
// and closes it on any other status.
func (s *TrackingService) HandleTransition(_ context.Context, e domain.TransitionEvent) error {
	if e.To == domain.RequestStatusApproved && e.Request.TrackingEnabled {
		s.Open(e.RequestID)
		return nil
	}
	s.Close(e.RequestID)
	return nil
}

// Open starts a session for requestID. It reports false if one is already active.
func (s *TrackingService) Open(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[requestID]; ok {
		return false
	}
	sess := newSession(requestID, s.now())
	s.active[requestID] = sess
	metrics.TrackingSessionsActive.Inc()
	s.log.Info("tracking session opened", "request_id", requestID, "session_id", sess.id)
	return true
}

// Close ends the active session of requestID, if any. Ended sessions are kept.
func (s *TrackingService) Close(requestID string) {
	s.mu.Lock()
	sess, ok := s.active[requestID]
	if ok {
		delete(s.active, requestID)
		s.ended[requestID] = append(s.ended[requestID], sess)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	sess.end(s.now())
	metrics.TrackingSessionsActive.Dec()
	s.log.Info("tracking session ended", "request_id", requestID, "session_id", sess.id)
}

// Active reports whether requestID has an active session.
func (s *TrackingService) Active(requestID string) bool {
	return s.activeSession(requestID) != nil
}

// AppendSample adds a server-stamped position to the active session.
func (s *TrackingService) AppendSample(_ context.Context, actor domain.Actor, requestID string, pos domain.Position) (*domain.Sample, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only operators can report positions", domain.ErrForbidden)
	}
	if pos.Lat < -90 || pos.Lat > 90 {
		return nil, &domain.ValidationError{Field: "lat", Message: "latitude must be between -90 and 90"}
	}
	if pos.Lng < -180 || pos.Lng > 180 {
		return nil, &domain.ValidationError{Field: "lng", Message: "longitude must be between -180 and 180"}
	}

	sess := s.activeSession(requestID)
	if sess == nil {
		return nil, fmt.Errorf("%w: request %s", domain.ErrNotActive, requestID)
	}
	sample, err := sess.append(pos, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: request %s", err, requestID)
	}
	metrics.TrackingSamples.Inc()
	return &sample, nil
}

// Subscribe returns a replay-then-live sample stream for requestID. Without
// an active session the stream is already finished.
func (s *TrackingService) Subscribe(ctx context.Context, actor domain.Actor, requestID string) (*Subscription, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(req.UserID) {
		return nil, fmt.Errorf("%w: request belongs to another user", domain.ErrForbidden)
	}

	metrics.TrackingSubscribers.Inc()
	return &Subscription{
		sess:   s.activeSession(requestID),
		idle:   s.idleTimeout,
		closed: make(chan struct{}),
	}, nil
}

// Session returns the current session of requestID, or the latest ended one.
func (s *TrackingService) Session(ctx context.Context, actor domain.Actor, requestID string) (*domain.TrackingSession, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(req.UserID) {
		return nil, fmt.Errorf("%w: request belongs to another user", domain.ErrForbidden)
	}

	s.mu.Lock()
	sess := s.active[requestID]
	if sess == nil {
		if ended := s.ended[requestID]; len(ended) > 0 {
			sess = ended[len(ended)-1]
		}
	}
	s.mu.Unlock()

	if sess == nil {
		return nil, fmt.Errorf("%w: no tracking session for request %s", domain.ErrNotFound, requestID)
	}
	snap := sess.snapshot()
	return &snap, nil
}

// Sessions returns every session ever opened for requestID, oldest first.
func (s *TrackingService) Sessions(requestID string) []domain.TrackingSession {
	s.mu.Lock()
	all := append([]*session(nil), s.ended[requestID]...)
	if sess, ok := s.active[requestID]; ok {
		all = append(all, sess)
	}
	s.mu.Unlock()

	out := make([]domain.TrackingSession, 0, len(all))
	for _, sess := range all {
		out = append(out, sess.snapshot())
	}
	return out
}

func (s *TrackingService) activeSession(requestID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[requestID]
}

// Subscription is a cancellable cursor over one session's samples. Each
// subscription reads independently; closing it leaves the session untouched.
type Subscription struct {
	sess   *session
	cursor int
	idle   time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// Next blocks until the next sample is available. It returns io.EOF once
// the session has ended and every buffered sample was delivered.
func (sub *Subscription) Next(ctx context.Context) (domain.Sample, error) {
	if sub.sess == nil {
		return domain.Sample{}, io.EOF
	}

	var idle <-chan time.Time
	if sub.idle > 0 {
		timer := time.NewTimer(sub.idle)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-sub.closed:
			return domain.Sample{}, io.EOF
		default:
		}

		sub.sess.mu.Lock()
		if sub.cursor < len(sub.sess.samples) {
			sample := sub.sess.samples[sub.cursor]
			sub.cursor++
			sub.sess.mu.Unlock()
			return sample, nil
		}
		if sub.sess.status == domain.SessionEnded {
			sub.sess.mu.Unlock()
			return domain.Sample{}, io.EOF
		}
		wake := sub.sess.wake
		sub.sess.mu.Unlock()

		select {
		case <-wake:
		case <-sub.closed:
			return domain.Sample{}, io.EOF
		case <-ctx.Done():
			return domain.Sample{}, ctx.Err()
		case <-idle:
			return domain.Sample{}, ErrSubscriptionIdle
		}
	}
}

// Close releases the subscription. It is safe to call more than once.
func (sub *Subscription) Close() {
	sub.closeOnce.Do(func() {
		close(sub.closed)
		metrics.TrackingSubscribers.Dec()
	})
}
