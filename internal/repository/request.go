package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/fleetdesk/internal/domain"
)

const requestColumns = `id, user_id, service_type, description, suggested_parts, status,
		tracking_enabled, admin_notes, created_at, updated_at`

// RequestRepository persists service requests and their status history in Postgres.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

type requestRow struct {
	ID              string               `db:"id"`
	UserID          string               `db:"user_id"`
	ServiceType     string               `db:"service_type"`
	Description     string               `db:"description"`
	SuggestedParts  []byte               `db:"suggested_parts"`
	Status          domain.RequestStatus `db:"status"`
	TrackingEnabled bool                 `db:"tracking_enabled"`
	AdminNotes      *string              `db:"admin_notes"`
	CreatedAt       time.Time            `db:"created_at"`
	UpdatedAt       time.Time            `db:"updated_at"`
}

func (r requestRow) toDomain() (domain.ServiceRequest, error) {
	parts := []string{}
	if len(r.SuggestedParts) > 0 {
		if err := json.Unmarshal(r.SuggestedParts, &parts); err != nil {
			return domain.ServiceRequest{}, fmt.Errorf("decode suggested parts of %s: %w", r.ID, err)
		}
	}
	return domain.ServiceRequest{
		ID:              r.ID,
		UserID:          r.UserID,
		ServiceType:     r.ServiceType,
		Description:     r.Description,
		SuggestedParts:  parts,
		Status:          r.Status,
		TrackingEnabled: r.TrackingEnabled,
		AdminNotes:      r.AdminNotes,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}

func encodeParts(parts []string) ([]byte, error) {
	if parts == nil {
		parts = []string{}
	}
	return json.Marshal(parts)
}

// Insert stores a new request together with its creation history entry.
func (r *RequestRepository) Insert(ctx context.Context, req domain.ServiceRequest, change domain.StatusChange) error {
	parts, err := encodeParts(req.SuggestedParts)
	if err != nil {
		return fmt.Errorf("encode suggested parts: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert request: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO service_requests (`+requestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.ID, req.UserID, req.ServiceType, req.Description, parts, req.Status,
		req.TrackingEnabled, req.AdminNotes, req.CreatedAt, req.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert request %s: %w", req.ID, err)
	}

	if err := insertChange(ctx, tx, change); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert request %s: %w", req.ID, err)
	}
	return nil
}

// FindByID retrieves a request by its ID.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	var row requestRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+requestColumns+` FROM service_requests WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find request by id %s: %w", id, err)
	}
	req, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListByUser returns a user's requests, newest first.
func (r *RequestRepository) ListByUser(ctx context.Context, userID string) ([]domain.ServiceRequest, error) {
	var rows []requestRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+requestColumns+` FROM service_requests
		 WHERE user_id = $1 ORDER BY created_at DESC, id`, userID); err != nil {
		return nil, fmt.Errorf("list requests for user %s: %w", userID, err)
	}
	return toDomainRequests(rows)
}

// ListAll returns every request, newest first.
func (r *RequestRepository) ListAll(ctx context.Context) ([]domain.ServiceRequest, error) {
	var rows []requestRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+requestColumns+` FROM service_requests ORDER BY created_at DESC, id`); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return toDomainRequests(rows)
}

// UpdateDetails rewrites the descriptive payload of a pending request.
func (r *RequestRepository) UpdateDetails(ctx context.Context, req domain.ServiceRequest) error {
	parts, err := encodeParts(req.SuggestedParts)
	if err != nil {
		return fmt.Errorf("encode suggested parts: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE service_requests
		 SET service_type = $1, description = $2, suggested_parts = $3, updated_at = $4
		 WHERE id = $5 AND status = $6`,
		req.ServiceType, req.Description, parts, req.UpdatedAt, req.ID, domain.RequestStatusPending)
	if err != nil {
		return fmt.Errorf("update request %s: %w", req.ID, err)
	}
	return checkAffected(ctx, r.db, res, req.ID)
}

// UpdateStatus writes a status change if the stored status still equals from.
// It returns domain.ErrConflict when another writer got there first.
func (r *RequestRepository) UpdateStatus(ctx context.Context, req domain.ServiceRequest, from domain.RequestStatus, change domain.StatusChange) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update status: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE service_requests
		 SET status = $1, admin_notes = $2, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		req.Status, req.AdminNotes, req.UpdatedAt, req.ID, from)
	if err != nil {
		return fmt.Errorf("update status of %s: %w", req.ID, err)
	}
	if err := checkAffected(ctx, tx, res, req.ID); err != nil {
		return err
	}

	if err := insertChange(ctx, tx, change); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update status of %s: %w", req.ID, err)
	}
	return nil
}

// History returns the status changes of a request in commit order.
func (r *RequestRepository) History(ctx context.Context, id string) ([]domain.StatusChange, error) {
	var changes []domain.StatusChange
	if err := r.db.SelectContext(ctx, &changes,
		`SELECT request_id, from_status, to_status, actor_id, notes, at
		 FROM request_status_history WHERE request_id = $1 ORDER BY id`, id); err != nil {
		return nil, fmt.Errorf("list history of %s: %w", id, err)
	}
	if len(changes) == 0 {
		return nil, domain.ErrNotFound
	}
	return changes, nil
}

// checkAffected tells a missing row apart from a lost compare-and-set.
func checkAffected(ctx context.Context, q sqlx.QueryerContext, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists,
		`SELECT EXISTS(SELECT 1 FROM service_requests WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("check request %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func insertChange(ctx context.Context, tx *sqlx.Tx, change domain.StatusChange) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO request_status_history (request_id, from_status, to_status, actor_id, notes, at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		change.RequestID, change.From, change.To, change.ActorID, change.Notes, change.At,
	); err != nil {
		return fmt.Errorf("insert history for %s: %w", change.RequestID, err)
	}
	return nil
}

func toDomainRequests(rows []requestRow) ([]domain.ServiceRequest, error) {
	out := make([]domain.ServiceRequest, 0, len(rows))
	for _, row := range rows {
		req, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}
