package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoramarket/agora/internal/fault"
	"github.com/agoramarket/agora/internal/model"
)

func TestAddDecimal(t *testing.T) {
	cases := []struct {
		a, b, want string
	}{
		{"0", "10.00", "10.00"},
		{"10.00", "0.5", "10.50"},
		{"0.1", "0.2", "0.3"},
		{"99.999", "0.001", "100.000"},
		{"5", "5", "10"},
	}
	for _, tc := range cases {
		got, err := addDecimal(tc.a, tc.b)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "%s + %s", tc.a, tc.b)
	}

	_, err := addDecimal("10.00", "ten")
	require.Error(t, err)
}

func TestCompareDecimal(t *testing.T) {
	require.Equal(t, 0, compareDecimal("10.00", "10"))
	require.Equal(t, -1, compareDecimal("9.99", "10"))
	require.Equal(t, 1, compareDecimal("10.01", "10"))
}

func TestCreditBalanceConcurrent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a, err := m.CreateAgent(ctx, &model.Agent{Name: "worker", APIKey: "asd_w"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.CreditBalance(ctx, a.ID, "1.00"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, err := m.AgentByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "50.00", got.Balance)
}

func TestTransitionPaymentRequestConditional(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreatePaymentRequest(ctx, &model.PaymentRequest{
		RequestID: "req-1",
		JobID:     "job-1",
		Amount:    "10.00",
		Status:    model.RequestPending,
	}))

	ok, err := m.TransitionPaymentRequest(ctx, "req-1", model.RequestPending, model.RequestPaid)
	require.NoError(t, err)
	require.True(t, ok)

	// Second claim loses: the row is no longer pending.
	ok, err = m.TransitionPaymentRequest(ctx, "req-1", model.RequestPending, model.RequestPaid)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = m.TransitionPaymentRequest(ctx, "missing", model.RequestPending, model.RequestPaid)
	require.NoError(t, err)
	require.False(t, ok)

	r, err := m.PaymentRequestByID(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, model.RequestPaid, r.Status)
}

func TestSetServiceActiveOwnership(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	owner, err := m.CreateAgent(ctx, &model.Agent{Name: "owner", APIKey: "asd_o"})
	require.NoError(t, err)
	svc, err := m.CreateService(ctx, &model.Service{AgentID: owner.ID, Name: "svc", PricePerUnit: "1.00", IsActive: true})
	require.NoError(t, err)

	ok, err := m.SetServiceActive(ctx, svc.ID, "someone-else", false)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := m.ServiceByID(ctx, svc.ID)
	require.NoError(t, err)
	require.True(t, got.IsActive)

	ok, err = m.SetServiceActive(ctx, svc.ID, owner.ID, false)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSearchServices(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a, err := m.CreateAgent(ctx, &model.Agent{Name: "a", APIKey: "asd_a"})
	require.NoError(t, err)

	cheap, err := m.CreateService(ctx, &model.Service{AgentID: a.ID, Name: "cheap", Category: "nlp", PricePerUnit: "1.00", IsActive: true})
	require.NoError(t, err)
	_, err = m.CreateService(ctx, &model.Service{AgentID: a.ID, Name: "pricey", Category: "nlp", PricePerUnit: "50.00", IsActive: true})
	require.NoError(t, err)
	_, err = m.CreateService(ctx, &model.Service{AgentID: a.ID, Name: "hidden", Category: "nlp", PricePerUnit: "1.00", IsActive: false})
	require.NoError(t, err)

	out, err := m.SearchServices(ctx, SearchFilter{Category: "nlp", MaxPrice: "10"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, cheap.ID, out[0].ID)

	out, err = m.SearchServices(ctx, SearchFilter{Category: "vision"})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestJobWithTxHashScansAllJobs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	j, err := m.CreateJob(ctx, &model.Job{ServiceID: "svc", Status: model.JobPendingPayment, Price: "1.00"})
	require.NoError(t, err)

	seen, err := m.JobWithTxHash(ctx, "0xabc")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, m.MarkJobPaymentReceived(ctx, j.ID, "0xabc"))

	seen, err = m.JobWithTxHash(ctx, "0xabc")
	require.NoError(t, err)
	require.True(t, seen)

	// Empty tx hashes never match each other.
	seen, err = m.JobWithTxHash(ctx, "")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestNotFoundKinds(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.AgentByID(ctx, "nope")
	require.Equal(t, fault.NotFound, fault.KindOf(err))
	_, err = m.ServiceByID(ctx, "nope")
	require.Equal(t, fault.NotFound, fault.KindOf(err))
	_, err = m.JobByID(ctx, "nope")
	require.Equal(t, fault.NotFound, fault.KindOf(err))
	_, err = m.PaymentRequestByID(ctx, "nope")
	require.Equal(t, fault.NotFound, fault.KindOf(err))
}
