package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/database"
)

// SubscriptionRepository handles the per-tenant subscription row
type SubscriptionRepository struct {
	db *database.DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *database.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Get returns the tenant's subscription.
func (r *SubscriptionRepository) Get(ctx context.Context, tenantID string) (*domain.Subscription, error) {
	query := `SELECT id, tenant_id, plan, status, current_period_end, created_at, updated_at
		FROM subscriptions WHERE tenant_id = $1`

	var s domain.Subscription
	if err := r.db.Q(ctx).GetContext(ctx, &s, query, tenantID); err != nil {
		return nil, notFound(err, "subscription")
	}
	return &s, nil
}

// Create inserts the tenant's subscription.
func (r *SubscriptionRepository) Create(ctx context.Context, s *domain.Subscription) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	query := `INSERT INTO subscriptions (id, tenant_id, plan, status, current_period_end)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`

	err := r.db.Q(ctx).QueryRowxContext(ctx, query, s.ID, s.TenantID, s.Plan, s.Status, s.CurrentPeriodEnd).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	return mapWriteErr(err)
}
