// Package postgres provides a PostgreSQL implementation of the reconcile
// repository interfaces. The upsert on the external subscription id's unique
// index is the engine's sole serialization point: concurrent handlers for the
// same subscription converge on one row, last write wins.
//
// Expected schema:
//
//	CREATE TABLE subscriptions (
//		id                       UUID PRIMARY KEY,
//		user_id                  TEXT NOT NULL,
//		plan_id                  TEXT NOT NULL DEFAULT '',
//		external_customer_id     TEXT NOT NULL DEFAULT '',
//		external_subscription_id TEXT NOT NULL UNIQUE,
//		status                   TEXT NOT NULL,
//		billing_cycle            TEXT NOT NULL,
//		current_period_start     TIMESTAMPTZ NOT NULL,
//		current_period_end       TIMESTAMPTZ NOT NULL,
//		cancel_at_period_end     BOOLEAN NOT NULL DEFAULT FALSE,
//		created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//		updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//
//	CREATE TABLE plans (
//		id               TEXT PRIMARY KEY,
//		monthly_price_id TEXT NOT NULL DEFAULT '',
//		yearly_price_id  TEXT NOT NULL DEFAULT ''
//	);
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/applytrack/billsync/pkg/reconcile"
)

// Repository implements reconcile.SubscriptionRepository and
// reconcile.PlanLookup backed by PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL repository configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL repository
func New(ctx context.Context, config Config) (*Repository, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{pool: pool, config: config}, nil
}

// Close closes the PostgreSQL connection pool.
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

const subscriptionColumns = `id, user_id, plan_id, external_customer_id, external_subscription_id,
	status, billing_cycle, current_period_start, current_period_end, cancel_at_period_end,
	created_at, updated_at`

// Create implements reconcile.SubscriptionRepository. The ON CONFLICT clause
// makes replayed create events converge on the existing row; user_id and the
// internal id are kept from the original insert, and an empty incoming
// plan_id never clears an assigned one.
func (r *Repository) Create(ctx context.Context, fields reconcile.SubscriptionFields) (*reconcile.Subscription, error) {
	if fields.ExternalSubscriptionID == "" {
		return nil, fmt.Errorf("external subscription id is required")
	}
	if fields.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO subscriptions (
			id, user_id, plan_id, external_customer_id, external_subscription_id,
			status, billing_cycle, current_period_start, current_period_end,
			cancel_at_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (external_subscription_id) DO UPDATE SET
			plan_id              = CASE WHEN EXCLUDED.plan_id = '' THEN subscriptions.plan_id ELSE EXCLUDED.plan_id END,
			external_customer_id = CASE WHEN EXCLUDED.external_customer_id = '' THEN subscriptions.external_customer_id ELSE EXCLUDED.external_customer_id END,
			status               = EXCLUDED.status,
			billing_cycle        = EXCLUDED.billing_cycle,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end   = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			updated_at           = NOW()
		RETURNING `+subscriptionColumns,
		uuid.NewString(), fields.UserID, fields.PlanID, fields.ExternalCustomerID,
		fields.ExternalSubscriptionID, string(fields.Status), string(fields.BillingCycle),
		fields.CurrentPeriodStart, fields.CurrentPeriodEnd, fields.CancelAtPeriodEnd)

	return scanSubscription(row)
}

// UpdateByExternalID implements reconcile.SubscriptionRepository.
func (r *Repository) UpdateByExternalID(ctx context.Context, externalID string, fields reconcile.SubscriptionFields) (*reconcile.Subscription, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE subscriptions SET
			plan_id              = CASE WHEN $2 = '' THEN plan_id ELSE $2 END,
			external_customer_id = CASE WHEN $3 = '' THEN external_customer_id ELSE $3 END,
			status               = $4,
			billing_cycle        = $5,
			current_period_start = $6,
			current_period_end   = $7,
			cancel_at_period_end = $8,
			updated_at           = NOW()
		WHERE external_subscription_id = $1
		RETURNING `+subscriptionColumns,
		externalID, fields.PlanID, fields.ExternalCustomerID, string(fields.Status),
		string(fields.BillingCycle), fields.CurrentPeriodStart, fields.CurrentPeriodEnd,
		fields.CancelAtPeriodEnd)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reconcile.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// FindByExternalID implements reconcile.SubscriptionRepository.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*reconcile.Subscription, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE external_subscription_id = $1`,
		externalID)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reconcile.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// FindPlanByPriceID implements reconcile.PlanLookup. A plan matches on
// either its monthly or its yearly price reference.
func (r *Repository) FindPlanByPriceID(ctx context.Context, priceID string) (string, error) {
	var planID string
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM plans WHERE monthly_price_id = $1 OR yearly_price_id = $1`,
		priceID).Scan(&planID)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", reconcile.ErrPlanNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up plan: %w", err)
	}
	return planID, nil
}

func scanSubscription(row pgx.Row) (*reconcile.Subscription, error) {
	var sub reconcile.Subscription
	var status, cycle string

	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.PlanID,
		&sub.ExternalCustomerID,
		&sub.ExternalSubscriptionID,
		&status,
		&cycle,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}

	sub.Status = reconcile.Status(status)
	sub.BillingCycle = reconcile.BillingCycle(cycle)
	return &sub, nil
}
