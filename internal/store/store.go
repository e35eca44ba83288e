// Package store defines the persistence capabilities the marketplace core
// consumes, plus the Postgres implementation and an in-memory substitute used
// in tests. The core never touches a connection pool directly; it is handed a
// Store at construction.
package store

import (
	"context"
	"encoding/json"

	"github.com/agoramarket/agora/internal/model"
)

// SearchFilter narrows a service search. Zero values mean "no constraint".
type SearchFilter struct {
	Category  string
	MaxPrice  string
	MinRating float64
	AgentID   string
}

type AgentStore interface {
	CreateAgent(ctx context.Context, a *model.Agent) (*model.Agent, error)
	AgentByID(ctx context.Context, id string) (*model.Agent, error)
	AgentByAPIKey(ctx context.Context, apiKey string) (*model.Agent, error)
	// CreditBalance adds amount (a decimal string) to the agent's balance as
	// a store-evaluated relative increment, never a read-modify-write.
	CreditBalance(ctx context.Context, id, amount string) error
	IncrementJobsCompleted(ctx context.Context, id string) error
}

type ServiceStore interface {
	CreateService(ctx context.Context, s *model.Service) (*model.Service, error)
	ServiceByID(ctx context.Context, id string) (*model.Service, error)
	SearchServices(ctx context.Context, f SearchFilter) ([]model.Service, error)
	// SetServiceActive flips the active flag; the ownerID predicate makes it
	// a no-op for anyone but the listing owner. Returns false when no row
	// matched.
	SetServiceActive(ctx context.Context, id, ownerID string, active bool) (bool, error)
	// ApplyReviewRating folds one rating into the service's running average:
	// new_avg = (rating + old_avg*old_count) / (old_count+1), evaluated by
	// the store in a single statement.
	ApplyReviewRating(ctx context.Context, id string, rating int) error
}

type JobStore interface {
	CreateJob(ctx context.Context, j *model.Job) (*model.Job, error)
	JobByID(ctx context.Context, id string) (*model.Job, error)
	JobsByClient(ctx context.Context, agentID string) ([]model.Job, error)
	JobsByProvider(ctx context.Context, agentID string) ([]model.Job, error)
	// UpdateJobStatus writes the new status and stamps started_at /
	// completed_at as the status dictates.
	UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, output json.RawMessage) error
	MarkJobPaymentReceived(ctx context.Context, id, txHash string) error
	SetJobRequestID(ctx context.Context, id, requestID string) error
	// JobWithTxHash reports whether any job, across the whole history, has
	// recorded txHash as its settling transaction. Replay protection depends
	// on this being global, not per-job.
	JobWithTxHash(ctx context.Context, txHash string) (bool, error)
}

type PaymentRequestStore interface {
	CreatePaymentRequest(ctx context.Context, r *model.PaymentRequest) error
	PaymentRequestByID(ctx context.Context, id string) (*model.PaymentRequest, error)
	// TransitionPaymentRequest moves a request from one status to another as
	// a conditional write. Exactly one of two concurrent callers sees true;
	// the loser observes zero rows affected and gets false.
	TransitionPaymentRequest(ctx context.Context, id string, from, to model.RequestStatus) (bool, error)
}

type ReviewStore interface {
	CreateReview(ctx context.Context, r *model.Review) (*model.Review, error)
	ReviewForJob(ctx context.Context, jobID string) (bool, error)
	ReviewsByService(ctx context.Context, serviceID string) ([]model.Review, error)
}

// Store is the full persistence surface the core needs.
type Store interface {
	AgentStore
	ServiceStore
	JobStore
	PaymentRequestStore
	ReviewStore
}
