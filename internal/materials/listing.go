package materials

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// ListFilter narrows a material listing. UploadedBy is forced to the caller
// for non-admins.
type ListFilter struct {
	UploadedBy    *uuid.UUID
	CourseID      *uuid.UUID
	ProcessedOnly bool
	Limit         int
}

// ListQuery is a listing request on behalf of a caller.
type ListQuery struct {
	UserID        uuid.UUID
	IsAdmin       bool
	CourseID      *uuid.UUID
	ProcessedOnly bool
	Limit         int
}

// Summary is a material as shown in a course listing.
type Summary struct {
	MaterialID  uuid.UUID        `json:"material_id"`
	CourseID    *uuid.UUID       `json:"course_id"`
	Title       string           `json:"title"`
	FileType    enums.FileType   `json:"file_type"`
	WeekNumber  *int             `json:"week_number"`
	CreatedAt   time.Time        `json:"created_at"`
	JobID       *uuid.UUID       `json:"job_id"`
	JobStatus   *enums.JobStatus `json:"job_status"`
	AIProcessed bool             `json:"ai_processed"`
	Summary     *string          `json:"ai_summary"`
	KeyConcepts []string         `json:"key_concepts"`
}

// Lister is the read path for uploaded materials.
type Lister struct {
	repo Repository
}

// NewLister builds a material lister.
func NewLister(repo Repository) (*Lister, error) {
	if repo == nil {
		return nil, errors.New("materials repository is required")
	}
	return &Lister{repo: repo}, nil
}

// List returns the caller's materials, or any uploader's for admins. A
// course filter narrows either view.
func (l *Lister) List(ctx context.Context, query ListQuery) ([]Summary, error) {
	if query.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if query.Limit < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "limit must not be negative")
	}
	filter := ListFilter{
		CourseID:      query.CourseID,
		ProcessedOnly: query.ProcessedOnly,
		Limit:         min(query.Limit, maxListLimit),
	}
	if filter.Limit == 0 {
		filter.Limit = defaultListLimit
	}
	if !query.IsAdmin {
		owner := query.UserID
		filter.UploadedBy = &owner
	}

	rows, err := l.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list materials")
	}
	out := make([]Summary, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.summary())
	}
	return out, nil
}

func (r ListingRow) summary() Summary {
	s := Summary{
		MaterialID:  r.ID,
		Title:       r.Title,
		FileType:    r.FileType,
		WeekNumber:  r.WeekNumber,
		CreatedAt:   r.CreatedAt,
		JobStatus:   r.JobStatus,
		AIProcessed: r.ContentID.Valid,
		Summary:     r.Summary,
		KeyConcepts: []string(r.KeyConcepts),
	}
	if r.CourseID.Valid {
		id := r.CourseID.UUID
		s.CourseID = &id
	}
	if r.JobID.Valid {
		id := r.JobID.UUID
		s.JobID = &id
	}
	if s.KeyConcepts == nil {
		s.KeyConcepts = []string{}
	}
	return s
}
