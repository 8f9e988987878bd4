package plans

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	"github.com/mivahub/mivahub-backend/pkg/types"
)

// Repository handles plan and subscription persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveSubscription(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Subscription, error)
	FindPlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	FindPlanByCode(ctx context.Context, code string) (*models.Plan, error)
	ListPlans(ctx context.Context) ([]models.Plan, error)
	UpdatePlanLimits(ctx context.Context, id uuid.UUID, limits types.LimitTable) error
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a plans repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindActiveSubscription returns the most recently started subscription that
// is active and not yet past its period end. Ties on period_start fall back to
// id so the pick is deterministic.
func (r *repository) FindActiveSubscription(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("status = ?", enums.SubscriptionStatusActive).
		Where("period_end > ?", now.UTC()).
		Order("period_start DESC").
		Order("id DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindPlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindPlanByCode(ctx context.Context, code string) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) ListPlans(ctx context.Context) ([]models.Plan, error) {
	var out []models.Plan
	if err := r.db.WithContext(ctx).
		Order("price_amount ASC").
		Order("code ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) UpdatePlanLimits(ctx context.Context, id uuid.UUID, limits types.LimitTable) error {
	res := r.db.WithContext(ctx).
		Model(&models.Plan{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"limits":     limits,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(sub).Error
}
