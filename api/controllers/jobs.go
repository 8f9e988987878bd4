package controllers

import (
	"net/http"

	"github.com/mivahub/mivahub-backend/api/middleware"
	"github.com/mivahub/mivahub-backend/api/responses"
	"github.com/mivahub/mivahub-backend/api/validators"
	"github.com/mivahub/mivahub-backend/internal/jobs"
	"github.com/mivahub/mivahub-backend/internal/results"
	"github.com/mivahub/mivahub-backend/internal/status"
	"github.com/mivahub/mivahub-backend/pkg/config"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/logger"
)

// JobStatus returns the polled view of a processing job.
func JobStatus(svc status.Observer, academic config.AcademicConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "status service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		jobID, err := validators.ParseUUIDParam(r, "jobId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithJobID(r.Context(), jobID.String())
		view, err := svc.Status(ctx, jobID, status.Viewer{
			UserID:  userID,
			IsAdmin: middleware.IsAdmin(r.Context(), academic),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type jobResultRequest struct {
	Status       string             `json:"status" validate:"required,oneof=completed failed COMPLETED FAILED"`
	ErrorMessage string             `json:"error_message" validate:"max=4000"`
	Content      *jobs.ContentInput `json:"content"`
}

type jobResultResponse struct {
	JobID  string          `json:"job_id"`
	Status enums.JobStatus `json:"status"`
}

// JobResultCallback records the worker's terminal report for a job.
func JobResultCallback(applier *results.Applier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if applier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "result applier unavailable"))
			return
		}
		jobID, err := validators.ParseUUIDParam(r, "jobId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req jobResultRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		jobStatus, err := enums.ParseJobStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		ctx := logg.WithJobID(r.Context(), jobID.String())
		job, err := applier.Apply(ctx, results.Result{
			JobID:        jobID,
			Status:       jobStatus,
			ErrorMessage: req.ErrorMessage,
			Content:      req.Content,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, jobResultResponse{JobID: job.ID.String(), Status: job.Status})
	}
}
