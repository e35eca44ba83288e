// Package x402 mints and redeems payment requests: the claim checks that
// gate a job behind an on-chain payment. Redemption is the trust boundary
// where an untrusted client's "I paid" is checked against the chain.
package x402

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agoramarket/agora/internal/chain"
	"github.com/agoramarket/agora/internal/fault"
	"github.com/agoramarket/agora/internal/job"
	"github.com/agoramarket/agora/internal/model"
	"github.com/agoramarket/agora/internal/store"
)

const (
	// DefaultTTL bounds how long a minted request stays payable.
	DefaultTTL = time.Hour

	DefaultAsset = "USDC"
	DefaultChain = "base"
)

// Registry tracks payment requests and redeems them against the chain.
type Registry struct {
	store    store.Store
	verifier chain.Verifier
	engine   *job.Engine
	now      func() time.Time
}

func NewRegistry(st store.Store, v chain.Verifier, eng *job.Engine) *Registry {
	return &Registry{store: st, verifier: v, engine: eng, now: time.Now}
}

// CreateRequest mints a pending request for jobID. The destination is read by
// the caller from the provider's record at this moment; a later address
// rotation does not move an in-flight request.
func (r *Registry) CreateRequest(ctx context.Context, jobID, amount, destination, chainName, asset string, ttl time.Duration) (*model.PaymentRequest, error) {
	if chainName == "" {
		chainName = DefaultChain
	}
	if asset == "" {
		asset = DefaultAsset
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	req := &model.PaymentRequest{
		RequestID:   uuid.New().String(),
		JobID:       jobID,
		Amount:      amount,
		Asset:       asset,
		Chain:       chainName,
		Destination: destination,
		Status:      model.RequestPending,
		ExpiresAt:   r.now().Add(ttl),
		CreatedAt:   r.now(),
	}
	if err := r.store.CreatePaymentRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Get is a read-only lookup with no side effects.
func (r *Registry) Get(ctx context.Context, requestID string) (*model.PaymentRequest, error) {
	return r.store.PaymentRequestByID(ctx, requestID)
}

// Redeem validates a client-submitted payment proof and, exactly once,
// unlocks the owning job. The check order is load-bearing: expiry before
// replay before chain verification, so an expired request is never payable
// no matter how valid the transaction is.
func (r *Registry) Redeem(ctx context.Context, requestID, txHash string) (*model.Job, error) {
	req, err := r.store.PaymentRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != model.RequestPending {
		// Already paid or expired. Rejecting here is what makes Redeem
		// idempotent: a retry after success cannot credit twice.
		return nil, fault.New(fault.NotFound, "payment request not found or already processed")
	}

	if r.now().After(req.ExpiresAt) {
		// Persist the expiry even though we are failing, so the next attempt
		// observes expired rather than pending.
		if _, err := r.store.TransitionPaymentRequest(ctx, requestID, model.RequestPending, model.RequestExpired); err != nil {
			return nil, err
		}
		return nil, fault.New(fault.RequestExpired, "payment request expired")
	}

	used, err := r.store.JobWithTxHash(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, fault.New(fault.ReplayedTransaction, "transaction already used")
	}

	if !r.verifier.Verify(ctx, txHash, req.Chain, req.Destination) {
		// The request stays pending: a client who submitted the wrong hash
		// can retry with the right one before expiry.
		return nil, fault.New(fault.VerificationFailed, "payment verification failed")
	}

	claimed, err := r.store.TransitionPaymentRequest(ctx, requestID, model.RequestPending, model.RequestPaid)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// A concurrent redemption won the conditional write.
		return nil, fault.New(fault.AlreadyProcessed, "payment request was redeemed concurrently")
	}

	return r.engine.MarkPaymentReceived(ctx, req.JobID, txHash, req.Amount)
}
