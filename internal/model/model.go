package model

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a job. Transitions between statuses are
// owned by the job engine; nothing else writes this field.
type JobStatus string

const (
	JobPendingPayment  JobStatus = "pending_payment"
	JobPaymentReceived JobStatus = "payment_received"
	JobInProgress      JobStatus = "in_progress"
	JobCompleted       JobStatus = "completed"
	JobFailed          JobStatus = "failed"
	// JobDisputed is reserved for a dispute-resolution flow. No transition
	// into it exists yet.
	JobDisputed JobStatus = "disputed"
)

// RequestStatus is the lifecycle state of a payment request.
type RequestStatus string

const (
	RequestPending RequestStatus = "pending"
	RequestPaid    RequestStatus = "paid"
	RequestExpired RequestStatus = "expired"
)

// Agent is a marketplace participant. It hires services as a client and
// offers them as a provider; the same record plays both roles.
type Agent struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	APIKey             string    `json:"api_key,omitempty"`
	DepositAddress     string    `json:"deposit_address"`
	WebhookURL         string    `json:"webhook_url,omitempty"`
	Balance            string    `json:"balance"`
	ReputationScore    float64   `json:"reputation_score"`
	TotalJobsCompleted int       `json:"total_jobs_completed"`
	TotalJobsFailed    int       `json:"total_jobs_failed"`
	CreatedAt          time.Time `json:"created_at"`
}

// Service is a listing owned by one agent. PricePerUnit is a decimal string;
// money never passes through floats.
type Service struct {
	ID            string          `json:"id"`
	AgentID       string          `json:"agent_id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	PricePerUnit  string          `json:"price_per_unit"`
	UnitType      string          `json:"unit_type"`
	EstimatedTime string          `json:"estimated_time"`
	APISchema     json.RawMessage `json:"api_schema,omitempty"`
	IsActive      bool            `json:"is_active"`
	AverageRating float64         `json:"average_rating"`
	TotalReviews  int             `json:"total_reviews"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Job is one hire of a service. Price and ProviderAgentID are snapshots taken
// at creation and never change afterwards, so later edits to the service
// cannot affect an open job.
type Job struct {
	ID              string          `json:"id"`
	ServiceID       string          `json:"service_id"`
	ClientAgentID   string          `json:"client_agent_id"`
	ProviderAgentID string          `json:"provider_agent_id"`
	Status          JobStatus       `json:"status"`
	Price           string          `json:"price"`
	Input           json.RawMessage `json:"input,omitempty"`
	Output          json.RawMessage `json:"output,omitempty"`
	X402RequestID   string          `json:"x402_request_id,omitempty"`
	X402TxHash      string          `json:"x402_tx_hash,omitempty"`
	EscrowReleased  bool            `json:"escrow_released"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// PaymentRequest is a single-use, time-boxed claim check for one job's
// payment. Destination is the provider's deposit address as it was when the
// request was minted.
type PaymentRequest struct {
	RequestID   string        `json:"request_id"`
	JobID       string        `json:"job_id"`
	Amount      string        `json:"amount"`
	Asset       string        `json:"asset"`
	Chain       string        `json:"chain"`
	Destination string        `json:"destination"`
	Status      RequestStatus `json:"status"`
	ExpiresAt   time.Time     `json:"expires_at"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Review is an immutable rating tied to one completed job.
type Review struct {
	ID              string    `json:"id"`
	JobID           string    `json:"job_id"`
	ServiceID       string    `json:"service_id"`
	ClientAgentID   string    `json:"client_agent_id"`
	ProviderAgentID string    `json:"provider_agent_id"`
	Rating          int       `json:"rating"`
	Review          string    `json:"review,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
