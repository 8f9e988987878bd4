package materials

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mivahub/mivahub-backend/internal/dispatch"
	"github.com/mivahub/mivahub-backend/internal/jobs"
	"github.com/mivahub/mivahub-backend/internal/plans"
	"github.com/mivahub/mivahub-backend/internal/quota"
	"github.com/mivahub/mivahub-backend/pkg/db"
	"github.com/mivahub/mivahub-backend/pkg/db/dbtest"
	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/outbox"
	"github.com/mivahub/mivahub-backend/pkg/types"
	"github.com/mivahub/mivahub-backend/pkg/worker"
)

const pdfBody = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Put(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return "mem://" + key, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type uploadFixture struct {
	conn   *gorm.DB
	store  *memStore
	orch   Orchestrator
	ledger jobs.Ledger
	now    time.Time
}

func newUploadFixture(t *testing.T, workerStatus int) *uploadFixture {
	t.Helper()
	conn := dbtest.Open(t)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(workerStatus)
	}))
	t.Cleanup(srv.Close)

	resolver, err := plans.NewService(plans.ServiceParams{Repo: plans.NewRepository(conn), Now: clock})
	require.NoError(t, err)
	quotaSvc, err := quota.NewService(quota.ServiceParams{
		Repo:  quota.NewRepository(conn),
		Plans: resolver,
		Now:   clock,
	})
	require.NoError(t, err)

	emitter := outbox.NewWriter(outbox.NewRepository(conn), nil)
	ledger, err := jobs.NewLedger(jobs.LedgerParams{
		DB:     db.FromConn(conn),
		Repo:   jobs.NewRepository(conn),
		Outbox: emitter,
		Now:    clock,
	})
	require.NoError(t, err)

	client, err := worker.NewClient(srv.URL)
	require.NoError(t, err)
	dispatcher, err := dispatch.New(dispatch.Params{Worker: client, Ledger: ledger, Now: clock})
	require.NoError(t, err)

	store := newMemStore()
	orch, err := NewOrchestrator(OrchestratorParams{
		DB:             db.FromConn(conn),
		Repo:           NewRepository(conn),
		Quota:          quotaSvc,
		Store:          store,
		Ledger:         ledger,
		Dispatcher:     dispatcher,
		Outbox:         emitter,
		UpgradeURL:     "/pricing",
		Semester:       "Spring 2026",
		MaxUploadBytes: 1 << 20,
		Now:            clock,
	})
	require.NoError(t, err)
	return &uploadFixture{conn: conn, store: store, orch: orch, ledger: ledger, now: now}
}

func (f *uploadFixture) subscribe(t *testing.T, uploads int) uuid.UUID {
	t.Helper()
	plan := dbtest.SeedPlan(t, f.conn, "basic-"+uuid.NewString()[:8], types.LimitTable{quota.UsageUploads: uploads})
	userID := uuid.New()
	dbtest.SeedSubscription(t, f.conn, userID, plan.ID, enums.SubscriptionStatusActive, f.now.AddDate(0, 0, -1), f.now.AddDate(0, 1, 0))
	return userID
}

func pdfUpload(userID uuid.UUID) UploadInput {
	return UploadInput{
		UserID:      userID,
		Title:       "Thermodynamics lecture",
		FileName:    "thermo.pdf",
		ContentType: "application/pdf",
		Size:        int64(len(pdfBody)),
		Body:        strings.NewReader(pdfBody),
	}
}

func count(t *testing.T, conn *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(model).Count(&n).Error)
	return n
}

func TestUploadDispatchesJob(t *testing.T) {
	f := newUploadFixture(t, http.StatusAccepted)
	userID := f.subscribe(t, 5)

	res, err := f.orch.Upload(context.Background(), pdfUpload(userID))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, res.MaterialID)
	assert.NotEqual(t, uuid.Nil, res.JobID)
	assert.Equal(t, enums.JobStatusProcessing, res.Status)
	assert.Equal(t, enums.FileTypePDF, res.FileType)
	assert.Equal(t, enums.JobTypePDFProcessing, res.JobType)

	var material models.Material
	require.NoError(t, f.conn.Where("id = ?", res.MaterialID).First(&material).Error)
	assert.Equal(t, userID, material.UploadedBy)
	assert.Equal(t, "Spring 2026", material.Semester)
	assert.Equal(t, []byte(pdfBody), f.store.objects[material.ObjectKey])

	var uploaded int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventMaterialUploaded).Count(&uploaded).Error)
	assert.Equal(t, int64(1), uploaded)
}

func TestUploadWorkerRejectionFailsJob(t *testing.T) {
	f := newUploadFixture(t, http.StatusServiceUnavailable)
	userID := f.subscribe(t, 5)

	res, err := f.orch.Upload(context.Background(), pdfUpload(userID))
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusFailed, res.Status)
	require.NotNil(t, res.ErrorMessage)
	assert.Contains(t, *res.ErrorMessage, "503")

	job, err := f.ledger.Get(context.Background(), res.JobID)
	require.NoError(t, err)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, int64(1), count(t, f.conn, &models.Material{}), "material is kept")
}

func TestUploadQuotaExceeded(t *testing.T) {
	f := newUploadFixture(t, http.StatusAccepted)
	userID := f.subscribe(t, 1)
	ctx := context.Background()

	_, err := f.orch.Upload(ctx, pdfUpload(userID))
	require.NoError(t, err)

	_, err = f.orch.Upload(ctx, pdfUpload(userID))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeQuotaExceeded))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), details["resets_at"])
	assert.Equal(t, 1, f.store.count())
	assert.Equal(t, int64(1), count(t, f.conn, &models.ProcessingJob{}))
}

func TestUploadFreePlanDenied(t *testing.T) {
	f := newUploadFixture(t, http.StatusAccepted)

	_, err := f.orch.Upload(context.Background(), pdfUpload(uuid.New()))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeQuotaExceeded))
	assert.Zero(t, f.store.count())
}

func TestUploadStorageFailure(t *testing.T) {
	f := newUploadFixture(t, http.StatusAccepted)
	f.store.putErr = errors.New("bucket unreachable")
	userID := f.subscribe(t, 5)

	_, err := f.orch.Upload(context.Background(), pdfUpload(userID))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.CodeDependency).Retryable)
	assert.Zero(t, count(t, f.conn, &models.Material{}))
	assert.Zero(t, count(t, f.conn, &models.ProcessingJob{}))
}

func TestUploadValidationHappensBeforeReservation(t *testing.T) {
	f := newUploadFixture(t, http.StatusAccepted)
	userID := f.subscribe(t, 5)

	in := pdfUpload(userID)
	in.ContentType = "application/zip"
	_, err := f.orch.Upload(context.Background(), in)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	in = pdfUpload(userID)
	in.ContentType = "image/png"
	_, err = f.orch.Upload(context.Background(), in)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	in = pdfUpload(userID)
	in.Size = 2 << 20
	_, err = f.orch.Upload(context.Background(), in)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePayloadTooLarge))

	assert.Zero(t, count(t, f.conn, &models.UsageCounter{}))
	assert.Zero(t, f.store.count())
}

func TestUploadTextMapsToPDFProcessing(t *testing.T) {
	f := newUploadFixture(t, http.StatusAccepted)
	userID := f.subscribe(t, 5)
	body := "Chapter 3 notes: entropy always increases in an isolated system."

	res, err := f.orch.Upload(context.Background(), UploadInput{
		UserID:      userID,
		Title:       "Notes",
		FileName:    "notes.txt",
		ContentType: "text/plain; charset=utf-8",
		Size:        int64(len(body)),
		Body:        bytes.NewBufferString(body),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.FileTypeText, res.FileType)
	assert.Equal(t, enums.JobTypePDFProcessing, res.JobType)
}
