// internal/repository/postgres/purchase_attempt_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"boost-service/internal/domain/boost"
	xerrors "boost-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

const attemptColumns = `
	id, reference, workflow_id, identity_id, listing_id,
	boost_type, duration_days, price, payment_method, offered_channels,
	status, boost_id, redirect_url, failure_reason, resolved_at,
	created_at, updated_at
`

const defaultPageSize = 20

// dbtx is the part of *pgxpool.Pool the repository uses.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type PurchaseAttemptRepository struct {
	db dbtx
}

func NewPurchaseAttemptRepository(db *pgxpool.Pool) *PurchaseAttemptRepository {
	return &PurchaseAttemptRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAttempt(row rowScanner) (*boost.PurchaseAttempt, error) {
	var a boost.PurchaseAttempt
	var offered []string

	err := row.Scan(
		&a.ID, &a.Reference, &a.WorkflowID, &a.IdentityID, &a.ListingID,
		&a.BoostType, &a.DurationDays, &a.Price, &a.PaymentMethod, pq.Array(&offered),
		&a.Status, &a.BoostID, &a.RedirectURL, &a.FailureReason, &a.ResolvedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.OfferedChannels = pq.StringArray(offered)
	return &a, nil
}

// Create journals a new attempt in the submitting state.
func (r *PurchaseAttemptRepository) Create(ctx context.Context, a *boost.PurchaseAttempt) error {
	query := `
		INSERT INTO promotion_purchase_attempts (
			reference, workflow_id, identity_id, listing_id,
			boost_type, duration_days, price, payment_method, offered_channels, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	if a.Status == "" {
		a.Status = boost.AttemptSubmitting
	}

	err := r.db.QueryRow(ctx, query,
		a.Reference, a.WorkflowID, a.IdentityID, a.ListingID,
		a.BoostType, a.DurationDays, a.Price, a.PaymentMethod, pq.Array(a.OfferedChannels), a.Status,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return xerrors.ErrConflict
		}
		return fmt.Errorf("failed to create purchase attempt: %w", err)
	}

	return nil
}

func (r *PurchaseAttemptRepository) MarkConfirmed(ctx context.Context, reference, boostID string) error {
	return r.updateOutcome(ctx, reference, boost.AttemptConfirmed, boostID, "", "", true)
}

func (r *PurchaseAttemptRepository) MarkRedirectPending(ctx context.Context, reference, redirectURL string) error {
	return r.updateOutcome(ctx, reference, boost.AttemptRedirectPending, "", redirectURL, "", false)
}

func (r *PurchaseAttemptRepository) MarkFailed(ctx context.Context, reference, reason string) error {
	return r.updateOutcome(ctx, reference, boost.AttemptFailed, "", "", reason, true)
}

// MarkObserved resolves a redirect once the boost shows up upstream.
func (r *PurchaseAttemptRepository) MarkObserved(ctx context.Context, reference, boostID string) error {
	return r.updateOutcome(ctx, reference, boost.AttemptObserved, boostID, "", "", true)
}

func (r *PurchaseAttemptRepository) updateOutcome(ctx context.Context, reference string, status boost.AttemptStatus, boostID, redirectURL, reason string, resolved bool) error {
	query := `
		UPDATE promotion_purchase_attempts
		SET status = $1,
		    boost_id = COALESCE(NULLIF($2, ''), boost_id),
		    redirect_url = COALESCE(NULLIF($3, ''), redirect_url),
		    failure_reason = NULLIF($4, ''),
		    resolved_at = CASE WHEN $5 THEN $6 ELSE resolved_at END,
		    updated_at = $6
		WHERE reference = $7
	`

	result, err := r.db.Exec(ctx, query, status, boostID, redirectURL, reason, resolved, time.Now(), reference)
	if err != nil {
		return fmt.Errorf("failed to update purchase attempt: %w", err)
	}

	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

// ListByIdentity returns a page of the caller's attempts, newest first.
func (r *PurchaseAttemptRepository) ListByIdentity(ctx context.Context, identityID int64, filters *boost.AttemptListFilters) ([]boost.PurchaseAttempt, int64, error) {
	conditions := []string{"identity_id = $1"}
	args := []interface{}{identityID}
	argPos := 2

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *filters.Status)
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM promotion_purchase_attempts WHERE %s", whereClause)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count purchase attempts: %w", err)
	}

	limit, offset := pageWindow(filters)

	query := fmt.Sprintf(`
		SELECT %s
		FROM promotion_purchase_attempts
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, attemptColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, offset)

	attempts, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list purchase attempts: %w", err)
	}
	return attempts, total, nil
}

// pageWindow normalises the page filters in place and returns LIMIT and OFFSET.
func pageWindow(filters *boost.AttemptListFilters) (int, int) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = defaultPageSize
	}
	return filters.PageSize, (filters.Page - 1) * filters.PageSize
}

// ListPendingRedirects returns redirect_pending attempts created before olderThan.
func (r *PurchaseAttemptRepository) ListPendingRedirects(ctx context.Context, olderThan time.Time, limit int) ([]boost.PurchaseAttempt, error) {
	if limit < 1 {
		limit = 100
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM promotion_purchase_attempts
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`, attemptColumns)

	attempts, err := r.query(ctx, query, boost.AttemptRedirectPending, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending redirects: %w", err)
	}
	return attempts, nil
}

// CountPendingRedirects counts every unresolved external redirect.
func (r *PurchaseAttemptRepository) CountPendingRedirects(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM promotion_purchase_attempts WHERE status = $1`,
		boost.AttemptRedirectPending,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending redirects: %w", err)
	}
	return n, nil
}

func (r *PurchaseAttemptRepository) query(ctx context.Context, query string, args ...interface{}) ([]boost.PurchaseAttempt, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []boost.PurchaseAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
