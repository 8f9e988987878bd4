package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mivahub/mivahub-backend/api/middleware"
	"github.com/mivahub/mivahub-backend/api/responses"
	"github.com/mivahub/mivahub-backend/api/validators"
	"github.com/mivahub/mivahub-backend/internal/materials"
	"github.com/mivahub/mivahub-backend/pkg/config"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/logger"
)

const (
	multipartMemory   = 8 << 20
	multipartOverhead = 1 << 20
	maxDescriptionLen = 4000
)

// MaterialUpload accepts a multipart upload and hands it to the orchestrator.
// The response reports the job as soon as it has been dispatched.
func MaterialUpload(svc materials.Orchestrator, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "materials service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodePayloadTooLarge, err, "file exceeds the upload limit"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body"))
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()

		file, header, err := r.FormFile("file")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file is required"))
			return
		}
		defer file.Close()

		input := materials.UploadInput{
			UserID:      userID,
			Title:       strings.TrimSpace(r.FormValue("title")),
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		}
		if input.Title == "" {
			input.Title = header.Filename
		}
		if desc := validators.SanitizeText(r.FormValue("description"), maxDescriptionLen); desc != "" {
			input.Description = &desc
		}
		if input.CourseID, err = validators.OptionalFormUUID(r, "course_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if input.WeekNumber, err = validators.OptionalFormInt(r, "week_number"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Upload(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// MaterialLister lists uploaded materials.
type MaterialLister interface {
	List(ctx context.Context, query materials.ListQuery) ([]materials.Summary, error)
}

type materialListResponse struct {
	Count     int                 `json:"materials_count"`
	Materials []materials.Summary `json:"materials"`
}

// ListMaterials returns the caller's materials, or a course's materials for
// admins, with their processing state.
func ListMaterials(svc MaterialLister, academic config.AcademicConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "materials service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := materials.ListQuery{
			UserID:  userID,
			IsAdmin: middleware.IsAdmin(r.Context(), academic),
		}
		if query.CourseID, err = validators.OptionalFormUUID(r, "course_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if query.ProcessedOnly, err = validators.OptionalFormBool(r, "processed_only"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.OptionalFormInt(r, "limit")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if limit != nil {
			query.Limit = *limit
		}

		list, err := svc.List(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, materialListResponse{Count: len(list), Materials: list})
	}
}
