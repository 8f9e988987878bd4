package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
)

type checkRequest struct {
	UsageType  string `json:"usage_type" validate:"required"`
	PeriodType string `json:"period_type" validate:"required,oneof=daily weekly monthly"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"usage_type":"","period_type":"yearly"}`))

	var dest checkRequest
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["usage_type"])
	assert.Equal(t, "must be one of [daily weekly monthly]", details["period_type"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"usage_type":"uploads","period_type":"daily","extra":1}`))

	var dest checkRequest
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &dest), pkgerrors.CodeValidation))
}

type limitsRequest struct {
	Period string         `json:"period" validate:"required,period_type"`
	Limits map[string]int `json:"limits" validate:"required,dive,keys,usage_key,endkeys,gte=-1"`
}

func TestDecodeJSONBodyDomainTags(t *testing.T) {
	ok := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"period":"Weekly","limits":{"ai_summary":-1}}`))
	var dest limitsRequest
	require.NoError(t, DecodeJSONBody(ok, &dest))

	bad := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"period":"hourly","limits":{"Bad Key":1}}`))
	err := DecodeJSONBody(bad, &limitsRequest{})
	details, isMap := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, isMap)
	assert.Equal(t, "must be one of [daily weekly monthly]", details["period"])
	assert.Len(t, details, 2)
}

func TestDecodeJSONBodyRejectsTrailingData(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"usage_type":"uploads","period_type":"daily"} {}`))
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &checkRequest{}), pkgerrors.CodeValidation))

	empty := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(empty, &checkRequest{}), pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyCapsSize(t *testing.T) {
	huge := `{"usage_type":"` + strings.Repeat("a", MaxJSONBodyBytes) + `","period_type":"daily"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(huge))
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &checkRequest{}), pkgerrors.CodePayloadTooLarge))
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("jobId", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := ParseUUIDParam(req, "jobId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(req, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestOptionalFormFields(t *testing.T) {
	courseID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/?course_id="+courseID.String()+"&week_number=7&bad_week=x", nil)

	gotCourse, err := OptionalFormUUID(req, "course_id")
	require.NoError(t, err)
	require.NotNil(t, gotCourse)
	assert.Equal(t, courseID, *gotCourse)

	week, err := OptionalFormInt(req, "week_number")
	require.NoError(t, err)
	require.NotNil(t, week)
	assert.Equal(t, 7, *week)

	missing, err := OptionalFormInt(req, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = OptionalFormInt(req, "bad_week")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "Week 3\nnotes", SanitizeText("  Week 3\nnotes\x00 ", 0))
	assert.Equal(t, "éé", SanitizeText("ééé", 2))
	assert.Equal(t, "", SanitizeText(" \x07 ", 10))
}
