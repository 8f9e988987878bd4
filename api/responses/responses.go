// Package responses writes the JSON envelopes every handler returns.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	zlog "github.com/rs/zerolog/log"

	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/logger"
)

// Detail keys WriteError turns into a Retry-After header.
const (
	DetailResetsAt          = "resets_at"
	DetailRetryAfterSeconds = "retry_after_seconds"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope[any]{Data: data})
}

// WriteError renders err as an error envelope. Untyped errors become
// CodeInternal. Server-side faults only ever show the code's public message;
// client errors show the error's own message so the caller can act on it.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := ErrorBody{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		RequestID: logger.RequestIDFromContext(ctx),
	}
	if meta.HTTPStatus < http.StatusInternalServerError && typed.Message() != "" {
		body.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if logg != nil {
		logFailure(ctx, logg, err, typed, meta.HTTPStatus)
	}
	if secs, ok := retryAfter(typed.Details(), time.Now()); ok {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: body})
}

// logFailure puts 5xx at error level with a stack and 4xx at info, so client
// mistakes stay out of error dashboards.
func logFailure(ctx context.Context, logg *logger.Logger, err error, typed *pkgerrors.Error, status int) {
	fields := pkgerrors.Dump(err).Fields()
	fields["http_status"] = status
	if details, ok := typed.Details().(map[string]any); ok {
		if step, ok := details["step"]; ok {
			fields["step"] = step
		}
	}
	ctx = logg.WithFields(ctx, fields)

	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Info(ctx, "request.rejected")
}

// retryAfter reads a wait hint from error details: an absolute resets_at or
// a relative retry_after_seconds. The result is at least one second.
func retryAfter(details any, now time.Time) (int, bool) {
	dm, ok := details.(map[string]any)
	if !ok {
		return 0, false
	}
	var secs int
	switch {
	case dm[DetailResetsAt] != nil:
		at, ok := dm[DetailResetsAt].(time.Time)
		if !ok || at.IsZero() {
			return 0, false
		}
		secs = int(at.Sub(now).Seconds())
	case dm[DetailRetryAfterSeconds] != nil:
		n, ok := dm[DetailRetryAfterSeconds].(int)
		if !ok {
			return 0, false
		}
		secs = n
	default:
		return 0, false
	}
	return max(secs, 1), true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are gone; all that is left is to record it.
		zlog.Error().Err(err).Int("status", status).Msg("response.encode.failed")
	}
}
