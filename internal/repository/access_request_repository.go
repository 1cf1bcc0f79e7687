package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotPending is returned by Transition when the row exists but was already handled.
	ErrNotPending = errors.New("access request is not pending")
	// ErrCorruptRow is returned when a stored row violates the status variant.
	ErrCorruptRow = errors.New("access request row violates status invariant")
)

// AccessRequest is an alumni request for a bounded window of journal access.
type AccessRequest struct {
	ID          string
	RequesterID string
	Status      types.RequestStatus
	WindowStart time.Time
	WindowEnd   time.Time
	Reason      string
	CreatedAt   time.Time
	HandledAt   *time.Time
	HandledBy   *string

	ExpiryNotified bool

	// Filled by review-queue queries only
	RequesterNickname string
	RequesterEmail    string
}

// Decision is the terminal half of the status variant. It only exists for
// approved or rejected requests, so a decision without a handler cannot be built.
type Decision struct {
	Status types.RequestStatus
	By     string
	At     time.Time
}

func (r *AccessRequest) IsPending() bool {
	return r.Status == types.StatusPending
}

// Decision returns the reviewer decision, or false while the request is pending.
func (r *AccessRequest) Decision() (Decision, bool) {
	if r.IsPending() || r.HandledAt == nil || r.HandledBy == nil {
		return Decision{}, false
	}
	return Decision{Status: r.Status, By: *r.HandledBy, At: *r.HandledAt}, true
}

// Covers reports whether an approved window contains t.
func (r *AccessRequest) Covers(t time.Time) bool {
	return r.Status == types.StatusApproved && !t.Before(r.WindowStart) && !t.After(r.WindowEnd)
}

// CheckVariant verifies pending rows carry no handler and decided rows carry both fields.
func (r *AccessRequest) CheckVariant() error {
	switch r.Status {
	case types.StatusPending:
		if r.HandledAt != nil || r.HandledBy != nil {
			return ErrCorruptRow
		}
	case types.StatusApproved, types.StatusRejected:
		if r.HandledAt == nil || r.HandledBy == nil {
			return ErrCorruptRow
		}
	default:
		return ErrCorruptRow
	}
	return nil
}

type AccessRequestRepository interface {
	Create(ctx context.Context, req *AccessRequest) error
	FindByID(ctx context.Context, id string) (*AccessRequest, error)
	FindByRequester(ctx context.Context, requesterID string) ([]*AccessRequest, error)
	// FindAll lists every request, optionally filtered by status, newest first.
	FindAll(ctx context.Context, status types.RequestStatus) ([]*AccessRequest, error)
	// Transition moves a pending request to status. It returns ErrNotPending when
	// the request was already handled and (nil, nil) when it does not exist.
	Transition(ctx context.Context, id string, status types.RequestStatus, handledBy string, handledAt time.Time) (*AccessRequest, error)
	FindActiveForRequester(ctx context.Context, requesterID string, at time.Time) (*AccessRequest, error)
	FindEndedUnnotified(ctx context.Context, before time.Time) ([]*AccessRequest, error)
	MarkExpiryNotified(ctx context.Context, id string) error
}

type pgAccessRequestRepository struct {
	pool *pgxpool.Pool
}

func NewAccessRequestRepository(pool *pgxpool.Pool) AccessRequestRepository {
	return &pgAccessRequestRepository{pool: pool}
}

const accessRequestColumns = `r.id, r.requester_id, r.status, r.window_start, r.window_end, r.reason, r.created_at, r.handled_at, r.handled_by, r.expiry_notified`

func scanAccessRequest(row pgx.Row, extra ...any) (*AccessRequest, error) {
	req := &AccessRequest{}
	dest := []any{
		&req.ID, &req.RequesterID, &req.Status, &req.WindowStart, &req.WindowEnd,
		&req.Reason, &req.CreatedAt, &req.HandledAt, &req.HandledBy, &req.ExpiryNotified,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if err := req.CheckVariant(); err != nil {
		return nil, fmt.Errorf("request %s: %w", req.ID, err)
	}
	return req, nil
}

func (r *pgAccessRequestRepository) queryMany(ctx context.Context, query string, args ...any) ([]*AccessRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*AccessRequest
	for rows.Next() {
		req, err := scanAccessRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return requests, nil
}

func (r *pgAccessRequestRepository) Create(ctx context.Context, req *AccessRequest) error {
	query := `
		INSERT INTO journal_access_requests (requester_id, status, window_start, window_end, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	if req.Status == "" {
		req.Status = types.StatusPending
	}
	err := r.pool.QueryRow(ctx, query,
		req.RequesterID, req.Status, req.WindowStart, req.WindowEnd, req.Reason,
	).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return fmt.Errorf("create access request: %w", err)
	}
	return nil
}

func (r *pgAccessRequestRepository) FindByID(ctx context.Context, id string) (*AccessRequest, error) {
	query := `SELECT ` + accessRequestColumns + ` FROM journal_access_requests r WHERE r.id = $1`
	req, err := scanAccessRequest(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get access request: %w", err)
	}
	return req, nil
}

func (r *pgAccessRequestRepository) FindByRequester(ctx context.Context, requesterID string) ([]*AccessRequest, error) {
	query := `
		SELECT ` + accessRequestColumns + `
		FROM journal_access_requests r
		WHERE r.requester_id = $1
		ORDER BY r.created_at DESC, r.id DESC
	`
	requests, err := r.queryMany(ctx, query, requesterID)
	if err != nil {
		return nil, fmt.Errorf("get requester requests: %w", err)
	}
	return requests, nil
}

func (r *pgAccessRequestRepository) FindAll(ctx context.Context, status types.RequestStatus) ([]*AccessRequest, error) {
	query := `
		SELECT ` + accessRequestColumns + `, p.nickname, p.email
		FROM journal_access_requests r
		JOIN profiles p ON p.id = r.requester_id
		WHERE ($1 = '' OR r.status = $1)
		ORDER BY r.created_at DESC, r.id DESC
	`
	rows, err := r.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	defer rows.Close()

	var requests []*AccessRequest
	for rows.Next() {
		var nickname, email string
		req, err := scanAccessRequest(rows, &nickname, &email)
		if err != nil {
			return nil, fmt.Errorf("scan access request: %w", err)
		}
		req.RequesterNickname = nickname
		req.RequesterEmail = email
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return requests, nil
}

// Transition relies on the status guard in the WHERE clause: of two concurrent
// reviewers only one UPDATE matches a pending row.
func (r *pgAccessRequestRepository) Transition(ctx context.Context, id string, status types.RequestStatus, handledBy string, handledAt time.Time) (*AccessRequest, error) {
	query := `
		UPDATE journal_access_requests r
		SET status = $2, handled_at = $3, handled_by = $4
		WHERE r.id = $1 AND r.status = 'pending'
		RETURNING ` + accessRequestColumns

	req, err := scanAccessRequest(r.pool.QueryRow(ctx, query, id, status, handledAt, handledBy))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transition access request: %w", err)
	}

	existing, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	return existing, ErrNotPending
}

func (r *pgAccessRequestRepository) FindActiveForRequester(ctx context.Context, requesterID string, at time.Time) (*AccessRequest, error) {
	query := `
		SELECT ` + accessRequestColumns + `
		FROM journal_access_requests r
		WHERE r.requester_id = $1 AND r.status = 'approved'
		  AND r.window_start <= $2 AND r.window_end >= $2
		ORDER BY r.window_end DESC
		LIMIT 1
	`
	req, err := scanAccessRequest(r.pool.QueryRow(ctx, query, requesterID, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active access: %w", err)
	}
	return req, nil
}

func (r *pgAccessRequestRepository) FindEndedUnnotified(ctx context.Context, before time.Time) ([]*AccessRequest, error) {
	query := `
		SELECT ` + accessRequestColumns + `
		FROM journal_access_requests r
		WHERE r.status = 'approved' AND r.window_end < $1 AND r.expiry_notified = FALSE
		ORDER BY r.window_end ASC
		LIMIT 500
	`
	requests, err := r.queryMany(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("find ended windows: %w", err)
	}
	return requests, nil
}

func (r *pgAccessRequestRepository) MarkExpiryNotified(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE journal_access_requests SET expiry_notified = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark expiry notified: %w", err)
	}
	return nil
}
