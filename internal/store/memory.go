package store

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agoramarket/agora/internal/fault"
	"github.com/agoramarket/agora/internal/model"
)

// Memory is an in-process Store. It mirrors the conditional-write and
// relative-increment semantics of the Postgres implementation so the engine
// and registry behave identically against either.
type Memory struct {
	mu       sync.Mutex
	agents   map[string]*model.Agent
	services map[string]*model.Service
	jobs     map[string]*model.Job
	requests map[string]*model.PaymentRequest
	reviews  map[string]*model.Review
}

func NewMemory() *Memory {
	return &Memory{
		agents:   make(map[string]*model.Agent),
		services: make(map[string]*model.Service),
		jobs:     make(map[string]*model.Job),
		requests: make(map[string]*model.PaymentRequest),
		reviews:  make(map[string]*model.Review),
	}
}

// ===== agents =====

func (m *Memory) CreateAgent(_ context.Context, a *model.Agent) (*model.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *a
	out.ID = uuid.New().String()
	out.Balance = "0"
	out.CreatedAt = time.Now()
	m.agents[out.ID] = &out
	cp := out
	return &cp, nil
}

func (m *Memory) AgentByID(_ context.Context, id string) (*model.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, fault.New(fault.NotFound, "agent not found")
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) AgentByAPIKey(_ context.Context, apiKey string) (*model.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.agents {
		if a.APIKey == apiKey {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fault.New(fault.NotFound, "agent not found")
}

func (m *Memory) CreditBalance(_ context.Context, id, amount string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return fault.New(fault.NotFound, "agent not found")
	}
	sum, err := addDecimal(a.Balance, amount)
	if err != nil {
		return fault.Newf(fault.InvalidInput, "bad amount %q", amount)
	}
	a.Balance = sum
	return nil
}

func (m *Memory) IncrementJobsCompleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.agents[id]; ok {
		a.TotalJobsCompleted++
	}
	return nil
}

// ===== services =====

func (m *Memory) CreateService(_ context.Context, s *model.Service) (*model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *s
	out.ID = uuid.New().String()
	out.CreatedAt = time.Now()
	out.UpdatedAt = out.CreatedAt
	m.services[out.ID] = &out
	cp := out
	return &cp, nil
}

func (m *Memory) ServiceByID(_ context.Context, id string) (*model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, fault.New(fault.NotFound, "service not found")
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) SearchServices(_ context.Context, f SearchFilter) ([]model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Service
	for _, s := range m.services {
		if !s.IsActive {
			continue
		}
		if f.Category != "" && s.Category != f.Category {
			continue
		}
		if f.AgentID != "" && s.AgentID != f.AgentID {
			continue
		}
		if f.MinRating > 0 && s.AverageRating < f.MinRating {
			continue
		}
		if f.MaxPrice != "" && compareDecimal(s.PricePerUnit, f.MaxPrice) > 0 {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AverageRating != out[j].AverageRating {
			return out[i].AverageRating > out[j].AverageRating
		}
		return out[i].TotalReviews > out[j].TotalReviews
	})
	return out, nil
}

func (m *Memory) SetServiceActive(_ context.Context, id, ownerID string, active bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok || s.AgentID != ownerID {
		return false, nil
	}
	s.IsActive = active
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *Memory) ApplyReviewRating(_ context.Context, id string, rating int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return fault.New(fault.NotFound, "service not found")
	}
	s.AverageRating = (float64(rating) + s.AverageRating*float64(s.TotalReviews)) / float64(s.TotalReviews+1)
	s.TotalReviews++
	s.UpdatedAt = time.Now()
	return nil
}

// ===== jobs =====

func (m *Memory) CreateJob(_ context.Context, j *model.Job) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *j
	out.ID = uuid.New().String()
	out.CreatedAt = time.Now()
	m.jobs[out.ID] = &out
	cp := out
	return &cp, nil
}

func (m *Memory) JobByID(_ context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fault.New(fault.NotFound, "job not found")
	}
	cp := *j
	return &cp, nil
}

func (m *Memory) JobsByClient(_ context.Context, agentID string) ([]model.Job, error) {
	return m.jobsBy(func(j *model.Job) bool { return j.ClientAgentID == agentID })
}

func (m *Memory) JobsByProvider(_ context.Context, agentID string) ([]model.Job, error) {
	return m.jobsBy(func(j *model.Job) bool { return j.ProviderAgentID == agentID })
}

func (m *Memory) jobsBy(match func(*model.Job) bool) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Job
	for _, j := range m.jobs {
		if match(j) {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateJobStatus(_ context.Context, id string, status model.JobStatus, output json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return fault.New(fault.NotFound, "job not found")
	}
	j.Status = status
	now := time.Now()
	switch status {
	case model.JobInProgress:
		j.StartedAt = &now
	case model.JobCompleted, model.JobFailed:
		j.CompletedAt = &now
	}
	if output != nil {
		j.Output = output
	}
	return nil
}

func (m *Memory) MarkJobPaymentReceived(_ context.Context, id, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return fault.New(fault.NotFound, "job not found")
	}
	j.Status = model.JobPaymentReceived
	j.X402TxHash = txHash
	return nil
}

func (m *Memory) SetJobRequestID(_ context.Context, id, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.X402RequestID = requestID
	}
	return nil
}

func (m *Memory) JobWithTxHash(_ context.Context, txHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.X402TxHash != "" && j.X402TxHash == txHash {
			return true, nil
		}
	}
	return false, nil
}

// ===== payment requests =====

func (m *Memory) CreatePaymentRequest(_ context.Context, r *model.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[cp.RequestID] = &cp
	return nil
}

func (m *Memory) PaymentRequestByID(_ context.Context, id string) (*model.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, fault.New(fault.NotFound, "payment request not found")
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) TransitionPaymentRequest(_ context.Context, id string, from, to model.RequestStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

// ===== reviews =====

func (m *Memory) CreateReview(_ context.Context, r *model.Review) (*model.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *r
	out.ID = uuid.New().String()
	out.CreatedAt = time.Now()
	m.reviews[out.ID] = &out
	cp := out
	return &cp, nil
}

func (m *Memory) ReviewForJob(_ context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reviews {
		if r.JobID == jobID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ReviewsByService(_ context.Context, serviceID string) ([]model.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Review
	for _, r := range m.reviews {
		if r.ServiceID == serviceID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// addDecimal adds two decimal strings exactly, preserving the wider scale of
// the two operands. Postgres does this on NUMERIC; here big.Rat stands in.
func addDecimal(a, b string) (string, error) {
	ra, ok := new(big.Rat).SetString(a)
	if !ok {
		return "", fault.Newf(fault.InvalidInput, "not a decimal: %q", a)
	}
	rb, ok := new(big.Rat).SetString(b)
	if !ok {
		return "", fault.Newf(fault.InvalidInput, "not a decimal: %q", b)
	}
	scale := decimalScale(a)
	if s := decimalScale(b); s > scale {
		scale = s
	}
	return new(big.Rat).Add(ra, rb).FloatString(scale), nil
}

func compareDecimal(a, b string) int {
	ra, oka := new(big.Rat).SetString(a)
	rb, okb := new(big.Rat).SetString(b)
	if !oka || !okb {
		return strings.Compare(a, b)
	}
	return ra.Cmp(rb)
}

func decimalScale(s string) int {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(s) - i - 1
}
