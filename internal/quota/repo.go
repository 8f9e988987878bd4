package quota

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
)

// CounterKey identifies one usage counter row.
type CounterKey struct {
	UserID      uuid.UUID
	UsageType   string
	PeriodType  enums.PeriodType
	PeriodStart time.Time
}

// CounterState is the post-reservation view returned by the store.
type CounterState struct {
	CurrentCount int
	LimitCount   int
	PlanCode     string
}

// Repository persists usage counters. Every mutation is a single statement
// so concurrent requests cannot read-modify-write past a limit.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCounter(ctx context.Context, key CounterKey) (*models.UsageCounter, error)
	InsertCounterIfAbsent(ctx context.Context, counter *models.UsageCounter) error
	Reserve(ctx context.Context, key CounterKey, amount int, now time.Time) (*CounterState, error)
	ListCounters(ctx context.Context, userID uuid.UUID, activeAt time.Time) ([]models.UsageCounter, error)
	DeleteExpired(ctx context.Context, endedBefore time.Time, limit int) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a quota repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindCounter(ctx context.Context, key CounterKey) (*models.UsageCounter, error) {
	var counter models.UsageCounter
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND usage_type = ? AND period_type = ? AND period_start = ?",
			key.UserID, key.UsageType, key.PeriodType, key.PeriodStart.UTC()).
		First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &counter, nil
}

// InsertCounterIfAbsent creates the counter row unless one already exists for
// the same (user, usage type, period type, period start). A losing concurrent
// insert is silently ignored; the winner's limit snapshot stands.
func (r *repository) InsertCounterIfAbsent(ctx context.Context, counter *models.UsageCounter) error {
	if counter.ID == uuid.Nil {
		counter.ID = uuid.New()
	}
	counter.PeriodStart = counter.PeriodStart.UTC()
	counter.PeriodEnd = counter.PeriodEnd.UTC()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"},
				{Name: "usage_type"},
				{Name: "period_type"},
				{Name: "period_start"},
			},
			DoNothing: true,
		}).
		Create(counter).Error
}

const reserveSQL = `UPDATE usage_counters
SET current_count = current_count + ?, updated_at = ?
WHERE user_id = ? AND usage_type = ? AND period_type = ? AND period_start = ?
  AND (limit_count = -1 OR current_count + ? <= limit_count)
RETURNING current_count, limit_count, plan_code`

// Reserve atomically adds amount to the counter when the limit allows it.
// It returns nil when the guard rejected the increment (or the row is
// missing); nothing is written in that case.
func (r *repository) Reserve(ctx context.Context, key CounterKey, amount int, now time.Time) (*CounterState, error) {
	var rows []CounterState
	res := r.db.WithContext(ctx).
		Raw(reserveSQL,
			amount, now.UTC(),
			key.UserID, key.UsageType, key.PeriodType, key.PeriodStart.UTC(),
			amount).
		Scan(&rows)
	if res.Error != nil {
		return nil, res.Error
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListCounters returns the user's counters whose period contains activeAt.
func (r *repository) ListCounters(ctx context.Context, userID uuid.UUID, activeAt time.Time) ([]models.UsageCounter, error) {
	var out []models.UsageCounter
	at := activeAt.UTC()
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND period_start <= ? AND period_end > ?", userID, at, at).
		Order("usage_type ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteExpired removes up to limit counters whose period ended before the
// cutoff.
func (r *repository) DeleteExpired(ctx context.Context, endedBefore time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	sub := r.db.WithContext(ctx).
		Model(&models.UsageCounter{}).
		Select("id").
		Where("period_end < ?", endedBefore.UTC()).
		Limit(limit)
	res := r.db.WithContext(ctx).
		Where("id IN (?)", sub).
		Delete(&models.UsageCounter{})
	return res.RowsAffected, res.Error
}
