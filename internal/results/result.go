package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/internal/jobs"
	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/outbox/registry"
)

const (
	// MessageType identifies worker result messages on the results subscription.
	MessageType    = "processing_job_result"
	MessageVersion = 1
)

// Result is the terminal report the worker sends for a job, either through
// the HTTP callback or the results subscription.
type Result struct {
	JobID        uuid.UUID          `json:"job_id" validate:"required"`
	Status       enums.JobStatus    `json:"status" validate:"required,oneof=completed failed"`
	ErrorMessage string             `json:"error_message,omitempty" validate:"max=4000"`
	Content      *jobs.ContentInput `json:"content,omitempty"`
}

// Applier funnels worker results into the ledger.
type Applier struct {
	ledger jobs.Ledger
}

// NewApplier builds a result applier.
func NewApplier(ledger jobs.Ledger) (*Applier, error) {
	if ledger == nil {
		return nil, errors.New("job ledger is required")
	}
	return &Applier{ledger: ledger}, nil
}

// Apply writes the terminal status. Only completed and failed are accepted;
// repeats follow the ledger's idempotency rules.
func (a *Applier) Apply(ctx context.Context, result Result) (*models.ProcessingJob, error) {
	if result.JobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job_id is required")
	}
	switch result.Status {
	case enums.JobStatusCompleted:
		content := jobs.ContentInput{}
		if result.Content != nil {
			content = *result.Content
		}
		return a.ledger.MarkCompleted(ctx, result.JobID, content)
	case enums.JobStatusFailed:
		return a.ledger.MarkFailed(ctx, result.JobID, result.ErrorMessage)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("status must be %q or %q", enums.JobStatusCompleted, enums.JobStatusFailed)).
			WithDetails(map[string]any{"status": result.Status})
	}
}

// RegisterDecoders installs the result message decoders.
func RegisterDecoders(reg *registry.Decoders) error {
	return reg.Register(MessageType, MessageVersion, decodeResultV1)
}

func decodeResultV1(payload json.RawMessage) (any, error) {
	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, registry.Permanent(fmt.Errorf("decode job result: %w", err))
	}
	result.Status = enums.JobStatus(strings.ToLower(strings.TrimSpace(string(result.Status))))
	if result.JobID == uuid.Nil {
		return nil, registry.Permanent(errors.New("job result missing job_id"))
	}
	return result, nil
}
