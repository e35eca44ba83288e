package x402

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agoramarket/agora/internal/fault"
	"github.com/agoramarket/agora/internal/job"
	"github.com/agoramarket/agora/internal/model"
	"github.com/agoramarket/agora/internal/store"
)

// stubVerifier approves or rejects everything; tests flip it mid-flight to
// exercise retry paths.
type stubVerifier struct {
	mu sync.Mutex
	ok bool
}

func (s *stubVerifier) Verify(context.Context, string, string, string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ok
}

func (s *stubVerifier) set(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ok = ok
}

type fixture struct {
	store    *store.Memory
	registry *Registry
	verifier *stubVerifier
	provider *model.Agent
	client   *model.Agent
	job      *model.Job
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	verifier := &stubVerifier{ok: true}
	engine := job.NewEngine(st, nil)
	registry := NewRegistry(st, verifier, engine)

	provider, err := st.CreateAgent(ctx, &model.Agent{
		Name:           "provider",
		APIKey:         "asd_provider",
		DepositAddress: "0x1111111111111111111111111111111111111111",
	})
	require.NoError(t, err)
	client, err := st.CreateAgent(ctx, &model.Agent{Name: "client", APIKey: "asd_client"})
	require.NoError(t, err)
	svc, err := st.CreateService(ctx, &model.Service{
		AgentID:      provider.ID,
		Name:         "summarize",
		PricePerUnit: "10.00",
		IsActive:     true,
	})
	require.NoError(t, err)
	j, _, err := engine.CreateJob(ctx, svc.ID, client.ID, nil)
	require.NoError(t, err)

	return &fixture{store: st, registry: registry, verifier: verifier, provider: provider, client: client, job: j}
}

func (f *fixture) mintRequest(t *testing.T, ttl time.Duration) *model.PaymentRequest {
	t.Helper()
	req, err := f.registry.CreateRequest(context.Background(), f.job.ID, f.job.Price, f.provider.DepositAddress, "", "", ttl)
	require.NoError(t, err)
	return req
}

func TestCreateRequestDefaults(t *testing.T) {
	f := newFixture(t)
	req := f.mintRequest(t, 0)

	require.Equal(t, f.job.ID, req.JobID)
	require.Equal(t, "10.00", req.Amount)
	require.Equal(t, DefaultAsset, req.Asset)
	require.Equal(t, DefaultChain, req.Chain)
	require.Equal(t, f.provider.DepositAddress, req.Destination)
	require.Equal(t, model.RequestPending, req.Status)
	require.WithinDuration(t, time.Now().Add(DefaultTTL), req.ExpiresAt, time.Minute)
}

func TestRedeemHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.mintRequest(t, 0)

	j, err := f.registry.Redeem(ctx, req.RequestID, "0xdeadbeef")
	require.NoError(t, err)
	require.Equal(t, model.JobPaymentReceived, j.Status)
	require.Equal(t, "0xdeadbeef", j.X402TxHash)

	got, err := f.registry.Get(ctx, req.RequestID)
	require.NoError(t, err)
	require.Equal(t, model.RequestPaid, got.Status)

	provider, err := f.store.AgentByID(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Equal(t, "10.00", provider.Balance)
}

func TestRedeemIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.mintRequest(t, 0)

	_, err := f.registry.Redeem(ctx, req.RequestID, "0xdeadbeef")
	require.NoError(t, err)

	_, err = f.registry.Redeem(ctx, req.RequestID, "0xdeadbeef")
	require.Equal(t, fault.NotFound, fault.KindOf(err))

	provider, err := f.store.AgentByID(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Equal(t, "10.00", provider.Balance)
}

func TestRedeemExpiredRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now()
	f.registry.now = func() time.Time { return base }
	req := f.mintRequest(t, time.Hour)

	f.registry.now = func() time.Time { return base.Add(2 * time.Hour) }

	// A perfectly valid transaction cannot revive an expired request.
	_, err := f.registry.Redeem(ctx, req.RequestID, "0xdeadbeef")
	require.Equal(t, fault.RequestExpired, fault.KindOf(err))

	// The expiry was persisted on the failed attempt.
	got, err := f.registry.Get(ctx, req.RequestID)
	require.NoError(t, err)
	require.Equal(t, model.RequestExpired, got.Status)

	// A retry observes not-pending, not expired-again.
	_, err = f.registry.Redeem(ctx, req.RequestID, "0xdeadbeef")
	require.Equal(t, fault.NotFound, fault.KindOf(err))

	j, err := f.store.JobByID(ctx, f.job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobPendingPayment, j.Status)
}

func TestRedeemRejectsReplayedTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := job.NewEngine(f.store, nil)

	req1 := f.mintRequest(t, 0)
	_, err := f.registry.Redeem(ctx, req1.RequestID, "0xdeadbeef")
	require.NoError(t, err)

	// Second job on the same service, second request.
	svc, err := f.store.CreateService(ctx, &model.Service{
		AgentID:      f.provider.ID,
		Name:         "translate",
		PricePerUnit: "5.00",
		IsActive:     true,
	})
	require.NoError(t, err)
	j2, _, err := engine.CreateJob(ctx, svc.ID, f.client.ID, nil)
	require.NoError(t, err)
	req2, err := f.registry.CreateRequest(ctx, j2.ID, j2.Price, f.provider.DepositAddress, "", "", 0)
	require.NoError(t, err)

	_, err = f.registry.Redeem(ctx, req2.RequestID, "0xdeadbeef")
	require.Equal(t, fault.ReplayedTransaction, fault.KindOf(err))

	// The losing request stays pending and redeemable with a fresh hash.
	got, err := f.registry.Get(ctx, req2.RequestID)
	require.NoError(t, err)
	require.Equal(t, model.RequestPending, got.Status)

	_, err = f.registry.Redeem(ctx, req2.RequestID, "0xfeedface")
	require.NoError(t, err)
}

func TestRedeemVerificationFailureLeavesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.mintRequest(t, 0)

	f.verifier.set(false)
	_, err := f.registry.Redeem(ctx, req.RequestID, "0xbogus")
	require.Equal(t, fault.VerificationFailed, fault.KindOf(err))

	got, err := f.registry.Get(ctx, req.RequestID)
	require.NoError(t, err)
	require.Equal(t, model.RequestPending, got.Status)

	provider, err := f.store.AgentByID(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Equal(t, "0", provider.Balance)

	// The client retries with the right hash before expiry.
	f.verifier.set(true)
	j, err := f.registry.Redeem(ctx, req.RequestID, "0xdeadbeef")
	require.NoError(t, err)
	require.Equal(t, model.JobPaymentReceived, j.Status)
}

func TestConcurrentRedemptionCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.mintRequest(t, 0)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.registry.Redeem(ctx, req.RequestID, "0xdeadbeef")
		}(i)
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		switch fault.KindOf(err) {
		case fault.AlreadyProcessed, fault.NotFound, fault.ReplayedTransaction:
		default:
			t.Fatalf("unexpected redemption error: %v", err)
		}
	}
	require.Equal(t, 1, won)

	provider, err := f.store.AgentByID(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Equal(t, "10.00", provider.Balance)
}
