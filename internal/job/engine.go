// Package job owns the job lifecycle: the transition table, who may drive
// which transition, and the ledger side effects of payment and completion.
package job

import (
	"context"
	"encoding/json"

	"github.com/agoramarket/agora/internal/fault"
	"github.com/agoramarket/agora/internal/model"
	"github.com/agoramarket/agora/internal/store"
)

// transitions is total: every status has an explicit successor set, and an
// empty set means terminal. There is no default-allow path.
var transitions = map[model.JobStatus][]model.JobStatus{
	model.JobPendingPayment:  {model.JobPaymentReceived},
	model.JobPaymentReceived: {model.JobInProgress},
	model.JobInProgress:      {model.JobCompleted, model.JobFailed},
	model.JobCompleted:       {},
	model.JobFailed:          {},
	// Reserved for a dispute-resolution collaborator; nothing transitions
	// into disputed yet, and nothing leaves it.
	model.JobDisputed: {},
}

func canTransition(from, to model.JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Notifier receives lifecycle events for best-effort delivery to agent
// webhooks. All methods must be non-blocking from the engine's perspective.
type Notifier interface {
	PaymentReceived(ctx context.Context, j *model.Job)
	JobFinished(ctx context.Context, j *model.Job)
	ReviewReceived(ctx context.Context, r *model.Review)
}

// Engine is the single authority over Job.status and over the provider
// counters and balance that move with it.
type Engine struct {
	store    store.Store
	notifier Notifier // may be nil
}

func NewEngine(st store.Store, n Notifier) *Engine {
	return &Engine{store: st, notifier: n}
}

// CreateJob snapshots the service's current price and provider into a new
// job in pending_payment. The snapshot is what insulates an open job from
// later price changes on the service.
func (e *Engine) CreateJob(ctx context.Context, serviceID, clientAgentID string, input json.RawMessage) (*model.Job, *model.Service, error) {
	svc, err := e.store.ServiceByID(ctx, serviceID)
	if err != nil {
		return nil, nil, err
	}
	if !svc.IsActive {
		return nil, nil, fault.New(fault.ServiceUnavailable, "service is not active")
	}

	j, err := e.store.CreateJob(ctx, &model.Job{
		ServiceID:       svc.ID,
		ClientAgentID:   clientAgentID,
		ProviderAgentID: svc.AgentID,
		Status:          model.JobPendingPayment,
		Price:           svc.PricePerUnit,
		Input:           input,
	})
	if err != nil {
		return nil, nil, err
	}
	return j, svc, nil
}

// RequestTransition applies a caller-requested status change. Only the
// provider may drive post-payment transitions; pending_payment to
// payment_received is reserved for the payment path and is never reachable
// from here.
func (e *Engine) RequestTransition(ctx context.Context, jobID, requestedBy string, target model.JobStatus, output json.RawMessage) (*model.Job, error) {
	j, err := e.store.JobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if target == model.JobPaymentReceived {
		return nil, fault.New(fault.Forbidden, "payment verification drives this transition")
	}
	if j.ProviderAgentID != requestedBy {
		return nil, fault.New(fault.Forbidden, "only the provider can update job status")
	}
	if !canTransition(j.Status, target) {
		return nil, fault.Newf(fault.InvalidTransition, "cannot transition from %s to %s", j.Status, target)
	}

	if err := e.store.UpdateJobStatus(ctx, j.ID, target, output); err != nil {
		return nil, err
	}

	// The counter moves here, not in a handler, so an API bug cannot skip it.
	if target == model.JobCompleted {
		if err := e.store.IncrementJobsCompleted(ctx, j.ProviderAgentID); err != nil {
			return nil, err
		}
	}

	updated, err := e.store.JobByID(ctx, j.ID)
	if err != nil {
		return nil, err
	}
	if e.notifier != nil && (target == model.JobCompleted || target == model.JobFailed) {
		e.notifier.JobFinished(ctx, updated)
	}
	return updated, nil
}

// MarkPaymentReceived is the payment path's entry into the state machine:
// it attaches the settling transaction, moves the job to payment_received,
// and credits the provider by amount. Callers must have already verified the
// payment and claimed the request.
func (e *Engine) MarkPaymentReceived(ctx context.Context, jobID, txHash, amount string) (*model.Job, error) {
	j, err := e.store.JobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !canTransition(j.Status, model.JobPaymentReceived) {
		return nil, fault.Newf(fault.InvalidTransition, "cannot transition from %s to %s", j.Status, model.JobPaymentReceived)
	}

	// Ordered so a crash between the two writes under-credits rather than
	// double-credits; the job row carrying the tx hash makes the gap
	// detectable and repairable.
	if err := e.store.MarkJobPaymentReceived(ctx, j.ID, txHash); err != nil {
		return nil, err
	}
	if err := e.store.CreditBalance(ctx, j.ProviderAgentID, amount); err != nil {
		return nil, err
	}

	updated, err := e.store.JobByID(ctx, j.ID)
	if err != nil {
		return nil, err
	}
	if e.notifier != nil {
		e.notifier.PaymentReceived(ctx, updated)
	}
	return updated, nil
}

// RecordReview appends the client's rating for a completed job and folds it
// into the service's running average. One review per job; a second attempt
// fails rather than skewing the aggregate.
func (e *Engine) RecordReview(ctx context.Context, jobID, requestedBy string, rating int, text string) (*model.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, fault.New(fault.InvalidInput, "rating must be between 1 and 5")
	}

	j, err := e.store.JobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.ClientAgentID != requestedBy {
		return nil, fault.New(fault.Forbidden, "only the client can review")
	}
	if j.Status != model.JobCompleted {
		return nil, fault.New(fault.InvalidTransition, "can only review completed jobs")
	}

	exists, err := e.store.ReviewForJob(ctx, j.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fault.New(fault.AlreadyProcessed, "job already reviewed")
	}

	review, err := e.store.CreateReview(ctx, &model.Review{
		JobID:           j.ID,
		ServiceID:       j.ServiceID,
		ClientAgentID:   j.ClientAgentID,
		ProviderAgentID: j.ProviderAgentID,
		Rating:          rating,
		Review:          text,
	})
	if err != nil {
		return nil, err
	}
	if err := e.store.ApplyReviewRating(ctx, j.ServiceID, rating); err != nil {
		return nil, err
	}
	if e.notifier != nil {
		e.notifier.ReviewReceived(ctx, review)
	}
	return review, nil
}
