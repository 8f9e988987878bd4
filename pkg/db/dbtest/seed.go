package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	"github.com/mivahub/mivahub-backend/pkg/types"
)

// SeedPlan inserts an active plan with the given limit table.
func SeedPlan(t testing.TB, conn *gorm.DB, code string, limits types.LimitTable) models.Plan {
	t.Helper()
	plan := models.Plan{
		ID:           uuid.New(),
		Code:         code,
		Name:         code,
		Status:       enums.PlanStatusActive,
		Limits:       limits,
		PriceAmount:  decimal.NewFromInt(5),
		CurrencyCode: "USD",
		Features:     pq.StringArray{},
	}
	if err := conn.Create(&plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return plan
}

// SeedSubscription binds userID to planID with the given status and window.
func SeedSubscription(t testing.TB, conn *gorm.DB, userID, planID uuid.UUID, status enums.SubscriptionStatus, start, end time.Time) models.Subscription {
	t.Helper()
	sub := models.Subscription{
		ID:          uuid.New(),
		UserID:      userID,
		PlanID:      planID,
		Status:      status,
		PeriodStart: start.UTC(),
		PeriodEnd:   end.UTC(),
	}
	if err := conn.Create(&sub).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}

// SeedMaterial inserts a material owned by userID.
func SeedMaterial(t testing.TB, conn *gorm.DB, userID uuid.UUID) models.Material {
	t.Helper()
	id := uuid.New()
	material := models.Material{
		ID:          id,
		UploadedBy:  userID,
		Title:       "Lecture 1",
		FileType:    enums.FileTypePDF,
		FileName:    "lecture-1.pdf",
		ContentType: "application/pdf",
		SizeBytes:   1024,
		ObjectKey:   "materials/" + id.String() + "/lecture-1.pdf",
		Semester:    "Fall 2025",
	}
	if err := conn.Create(&material).Error; err != nil {
		t.Fatalf("seed material: %v", err)
	}
	return material
}
