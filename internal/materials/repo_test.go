package materials

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mivahub/mivahub-backend/pkg/db/dbtest"
	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
)

func TestRepositoryFindByJobID(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	material := dbtest.SeedMaterial(t, conn, uuid.New())
	job := models.ProcessingJob{
		ID:         uuid.New(),
		MaterialID: material.ID,
		JobType:    enums.JobTypePDFProcessing,
		Status:     enums.JobStatusPending,
	}
	require.NoError(t, conn.Create(&job).Error)

	got, err := repo.FindByJobID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, material.ID, got.ID)
	assert.Equal(t, material.UploadedBy, got.UploadedBy)

	missing, err := repo.FindByJobID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepositoryCreateAssignsID(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	material := &models.Material{
		UploadedBy:  uuid.New(),
		Title:       "Week 2 slides",
		FileType:    enums.FileTypePDF,
		FileName:    "week-2.pdf",
		ContentType: "application/pdf",
		SizeBytes:   2048,
		ObjectKey:   "materials/week-2.pdf",
		Semester:    "Fall 2025",
	}
	require.NoError(t, repo.Create(context.Background(), material))
	assert.NotEqual(t, uuid.Nil, material.ID)

	got, err := repo.FindByID(context.Background(), material.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Week 2 slides", got.Title)
}

func seedListedMaterial(t *testing.T, conn *gorm.DB, owner uuid.UUID, course *uuid.UUID, title string, week *int) models.Material {
	t.Helper()
	material := models.Material{
		ID:          uuid.New(),
		CourseID:    course,
		UploadedBy:  owner,
		Title:       title,
		FileType:    enums.FileTypePDF,
		FileName:    title + ".pdf",
		ContentType: "application/pdf",
		SizeBytes:   512,
		ObjectKey:   "materials/" + uuid.NewString() + ".pdf",
		WeekNumber:  week,
		Semester:    "Fall 2025",
	}
	require.NoError(t, conn.Create(&material).Error)
	return material
}

func seedJob(t *testing.T, conn *gorm.DB, materialID uuid.UUID, status enums.JobStatus, created time.Time) models.ProcessingJob {
	t.Helper()
	job := models.ProcessingJob{
		ID:         uuid.New(),
		MaterialID: materialID,
		JobType:    enums.JobTypePDFProcessing,
		Status:     status,
		CreatedAt:  created,
	}
	require.NoError(t, conn.Create(&job).Error)
	return job
}

func intPtr(v int) *int { return &v }

func TestListerOrdersByWeekThenTitle(t *testing.T) {
	conn := dbtest.Open(t)
	lister, err := NewLister(NewRepository(conn))
	require.NoError(t, err)
	owner := uuid.New()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	unscheduled := seedListedMaterial(t, conn, owner, nil, "Syllabus", nil)
	week2 := seedListedMaterial(t, conn, owner, nil, "Momentum", intPtr(2))
	week1b := seedListedMaterial(t, conn, owner, nil, "Vectors", intPtr(1))
	week1a := seedListedMaterial(t, conn, owner, nil, "Units", intPtr(1))
	seedListedMaterial(t, conn, uuid.New(), nil, "Someone else's notes", intPtr(1))

	seedJob(t, conn, week1a.ID, enums.JobStatusFailed, base)
	retry := seedJob(t, conn, week1a.ID, enums.JobStatusCompleted, base.Add(time.Hour))
	summary := "SI base units"
	require.NoError(t, conn.Create(&models.ProcessedContent{
		ID:          uuid.New(),
		MaterialID:  week1a.ID,
		JobID:       retry.ID,
		Summary:     &summary,
		KeyConcepts: pq.StringArray{"metre", "second"},
	}).Error)

	got, err := lister.List(context.Background(), ListQuery{UserID: owner})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, []uuid.UUID{week1a.ID, week1b.ID, week2.ID, unscheduled.ID},
		[]uuid.UUID{got[0].MaterialID, got[1].MaterialID, got[2].MaterialID, got[3].MaterialID})

	first := got[0]
	require.NotNil(t, first.JobID)
	assert.Equal(t, retry.ID, *first.JobID)
	require.NotNil(t, first.JobStatus)
	assert.Equal(t, enums.JobStatusCompleted, *first.JobStatus)
	assert.True(t, first.AIProcessed)
	require.NotNil(t, first.Summary)
	assert.Equal(t, "SI base units", *first.Summary)
	assert.Equal(t, []string{"metre", "second"}, first.KeyConcepts)

	assert.False(t, got[1].AIProcessed)
	assert.Nil(t, got[1].JobID)
	assert.Equal(t, []string{}, got[1].KeyConcepts)
}

func TestListerFiltersByCourseAndProcessed(t *testing.T) {
	conn := dbtest.Open(t)
	lister, err := NewLister(NewRepository(conn))
	require.NoError(t, err)
	owner := uuid.New()
	course := uuid.New()

	processed := seedListedMaterial(t, conn, owner, &course, "Lecture 1", intPtr(1))
	seedListedMaterial(t, conn, owner, &course, "Lecture 2", intPtr(2))
	seedListedMaterial(t, conn, owner, nil, "Personal notes", nil)
	job := seedJob(t, conn, processed.ID, enums.JobStatusCompleted, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, conn.Create(&models.ProcessedContent{ID: uuid.New(), MaterialID: processed.ID, JobID: job.ID}).Error)

	inCourse, err := lister.List(context.Background(), ListQuery{UserID: owner, CourseID: &course})
	require.NoError(t, err)
	assert.Len(t, inCourse, 2)
	require.NotNil(t, inCourse[0].CourseID)
	assert.Equal(t, course, *inCourse[0].CourseID)

	done, err := lister.List(context.Background(), ListQuery{UserID: owner, CourseID: &course, ProcessedOnly: true})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, processed.ID, done[0].MaterialID)

	limited, err := lister.List(context.Background(), ListQuery{UserID: owner, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestListerScopesToCallerUnlessAdmin(t *testing.T) {
	conn := dbtest.Open(t)
	lister, err := NewLister(NewRepository(conn))
	require.NoError(t, err)
	owner := uuid.New()
	seedListedMaterial(t, conn, owner, nil, "Mine", nil)
	seedListedMaterial(t, conn, uuid.New(), nil, "Theirs", nil)

	mine, err := lister.List(context.Background(), ListQuery{UserID: owner})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Mine", mine[0].Title)

	all, err := lister.List(context.Background(), ListQuery{UserID: owner, IsAdmin: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = lister.List(context.Background(), ListQuery{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = lister.List(context.Background(), ListQuery{UserID: owner, Limit: -1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
