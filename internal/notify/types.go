package notify

import "time"

// Task type constants
const (
	TaskPaymentReceived = "webhook:payment_received"
	TaskJobFinished     = "webhook:job_finished"
	TaskReviewReceived  = "webhook:review_received"
)

// PaymentReceivedPayload is delivered to the provider when a payment request
// for one of its jobs is redeemed.
type PaymentReceivedPayload struct {
	Event         string    `json:"event"`
	JobID         string    `json:"job_id"`
	ServiceID     string    `json:"service_id"`
	ClientAgentID string    `json:"client_agent_id"`
	AgentID       string    `json:"agent_id"`
	Amount        string    `json:"amount"`
	TxHash        string    `json:"tx_hash"`
	SentAt        time.Time `json:"sent_at"`
}

// JobFinishedPayload is delivered to the client when the provider reports a
// terminal status.
type JobFinishedPayload struct {
	Event     string    `json:"event"`
	JobID     string    `json:"job_id"`
	ServiceID string    `json:"service_id"`
	AgentID   string    `json:"agent_id"`
	Status    string    `json:"status"`
	SentAt    time.Time `json:"sent_at"`
}

// ReviewReceivedPayload is delivered to the provider when the client reviews
// a completed job.
type ReviewReceivedPayload struct {
	Event     string    `json:"event"`
	JobID     string    `json:"job_id"`
	ServiceID string    `json:"service_id"`
	AgentID   string    `json:"agent_id"`
	Rating    int       `json:"rating"`
	SentAt    time.Time `json:"sent_at"`
}
