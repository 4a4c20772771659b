package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mohitagrawal/finsight/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicateJob      = errors.New("job already exists")
	ErrResultExists      = errors.New("result already exists for job")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrClaimConflict     = errors.New("job already claimed")
)

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
	ClaimJob(ctx context.Context, id uuid.UUID) error
	TransitionJob(ctx context.Context, id uuid.UUID, status string, opts ...TransitionOption) error

	CreateResult(ctx context.Context, result *models.Result) error
	GetResult(ctx context.Context, jobID uuid.UUID) (*models.Result, error)
	ListResults(ctx context.Context, limit, offset int) ([]*models.Result, int, error)

	RecordActivity(ctx context.Context, rec *models.ActivityRecord) error
	GetStats(ctx context.Context) (*models.Stats, error)

	FindUnreconciled(ctx context.Context, limit int) ([]uuid.UUID, error)
}

type transitionParams struct {
	ErrorMessage *string
}

type TransitionOption func(*transitionParams)

func WithErrorMessage(msg string) TransitionOption {
	return func(p *transitionParams) {
		p.ErrorMessage = &msg
	}
}
