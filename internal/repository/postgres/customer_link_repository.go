package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CustomerLinkRepository implements processor.CustomerLinkRepository using
// PostgreSQL. The unique constraint on (member_id, processor) is what makes
// concurrent first-time customer creation converge on a single link.
type CustomerLinkRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerLinkRepository creates a new CustomerLinkRepository.
func NewCustomerLinkRepository(pool *pgxpool.Pool) *CustomerLinkRepository {
	return &CustomerLinkRepository{pool: pool}
}

func (r *CustomerLinkRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Get retrieves the link for a member under a processor.
func (r *CustomerLinkRepository) Get(ctx context.Context, memberID string, kind processor.Kind) (*processor.CustomerLink, error) {
	link := &processor.CustomerLink{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT member_id, processor, external_customer_id, created_at
		 FROM customer_links
		 WHERE member_id = $1 AND processor = $2`,
		memberID, string(kind),
	).Scan(&link.MemberID, &link.Processor, &link.ExternalCustomerID, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrCustomerLinkNotFound
		}
		return nil, fmt.Errorf("get customer link: %w", err)
	}
	return link, nil
}

// Upsert inserts the link, or returns the existing one when another writer
// got there first.
func (r *CustomerLinkRepository) Upsert(ctx context.Context, link *processor.CustomerLink) (*processor.CustomerLink, error) {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO customer_links (member_id, processor, external_customer_id, created_at)
		 VALUES ($1, $2, $3, NOW())`,
		link.MemberID, string(link.Processor), link.ExternalCustomerID,
	)
	if err == nil {
		return r.Get(ctx, link.MemberID, link.Processor)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		// Lost the race: the stored link wins, the caller's freshly created
		// gateway customer is abandoned.
		return r.Get(ctx, link.MemberID, link.Processor)
	}
	return nil, fmt.Errorf("insert customer link: %w", err)
}
