package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository implements processor.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

const sessionColumns = `session_id, processor, order_id, member_id, amount_cents, currency, state, receipt_url, created_at, updated_at`

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*processor.CheckoutSession, error) {
	s := &processor.CheckoutSession{}
	err := row.Scan(
		&s.SessionID, &s.Processor, &s.OrderID, &s.MemberID,
		&s.AmountCents, &s.Currency, &s.State, &s.ReceiptURL,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new checkout session record.
func (r *SessionRepository) Create(ctx context.Context, s *processor.CheckoutSession) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO checkout_sessions
		 (session_id, processor, order_id, member_id, amount_cents, currency, state, receipt_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
		s.SessionID, string(s.Processor), s.OrderID, s.MemberID,
		s.AmountCents, s.Currency, string(s.State), s.ReceiptURL,
	)
	if err != nil {
		return fmt.Errorf("insert checkout session: %w", err)
	}
	return nil
}

// GetByOrderID resolves a session from a gateway order id.
func (r *SessionRepository) GetByOrderID(ctx context.Context, kind processor.Kind, orderID string) (*processor.CheckoutSession, error) {
	s, err := scanSession(r.db(ctx).QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM checkout_sessions
		 WHERE processor = $1 AND (order_id = $2 OR session_id = $2)`,
		string(kind), orderID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	return s, nil
}

// UpdateState transitions a session. An empty receiptURL leaves the stored
// value untouched.
func (r *SessionRepository) UpdateState(ctx context.Context, sessionID string, state processor.SessionState, receiptURL string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE checkout_sessions
		 SET state = $2,
		     receipt_url = CASE WHEN $3 = '' THEN receipt_url ELSE $3 END,
		     updated_at = NOW()
		 WHERE session_id = $1`,
		sessionID, string(state), receiptURL,
	)
	if err != nil {
		return fmt.Errorf("update checkout session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrSessionNotFound
	}
	return nil
}

// ListPending returns pending sessions, oldest first.
func (r *SessionRepository) ListPending(ctx context.Context, limit int) ([]*processor.CheckoutSession, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM checkout_sessions
		 WHERE state = $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		string(processor.SessionPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending sessions: %w", err)
	}
	defer rows.Close()

	var out []*processor.CheckoutSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkout session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending sessions: %w", err)
	}
	return out, nil
}
