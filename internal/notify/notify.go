// Package notify delivers lifecycle events to agent webhook URLs through an
// asynq task queue. Delivery is best-effort: enqueue failures are logged and
// dropped, agents without a webhook URL are skipped.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/agoramarket/agora/internal/model"
	"github.com/agoramarket/agora/internal/store"
)

// Dispatcher owns the asynq client/server pair and the HTTP delivery of
// webhook payloads. It implements the engine's Notifier interface.
type Dispatcher struct {
	client *asynq.Client
	server *asynq.Server
	agents store.AgentStore
	httpc  *http.Client
}

// New starts the worker and returns a dispatcher. Callers must Close it.
func New(redisAddr string, agents store.AgentStore) *Dispatcher {
	opts := asynq.RedisClientOpt{Addr: redisAddr}

	d := &Dispatcher{
		client: asynq.NewClient(opts),
		agents: agents,
		httpc:  &http.Client{Timeout: 10 * time.Second},
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskPaymentReceived, d.handlePaymentReceived)
	mux.HandleFunc(TaskJobFinished, d.handleJobFinished)
	mux.HandleFunc(TaskReviewReceived, d.handleReviewReceived)

	d.server = asynq.NewServer(opts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"webhooks": 10,
		},
	})
	go func() {
		if err := d.server.Run(mux); err != nil {
			log.Printf("notify: asynq server stopped: %v", err)
		}
	}()

	log.Printf("notify: webhook dispatcher started (redis=%s)", redisAddr)
	return d
}

// Close releases the client and stops the worker.
func (d *Dispatcher) Close() {
	if d.client != nil {
		_ = d.client.Close()
	}
	if d.server != nil {
		d.server.Shutdown()
	}
}

// PaymentReceived notifies the provider that its job has been paid.
func (d *Dispatcher) PaymentReceived(_ context.Context, j *model.Job) {
	d.enqueue(TaskPaymentReceived, PaymentReceivedPayload{
		Event:         "payment_received",
		JobID:         j.ID,
		ServiceID:     j.ServiceID,
		ClientAgentID: j.ClientAgentID,
		AgentID:       j.ProviderAgentID,
		Amount:        j.Price,
		TxHash:        j.X402TxHash,
		SentAt:        time.Now(),
	})
}

// JobFinished notifies the client that the provider reported a terminal
// status.
func (d *Dispatcher) JobFinished(_ context.Context, j *model.Job) {
	d.enqueue(TaskJobFinished, JobFinishedPayload{
		Event:     "job_finished",
		JobID:     j.ID,
		ServiceID: j.ServiceID,
		AgentID:   j.ClientAgentID,
		Status:    string(j.Status),
		SentAt:    time.Now(),
	})
}

// ReviewReceived notifies the provider of a new review.
func (d *Dispatcher) ReviewReceived(_ context.Context, r *model.Review) {
	d.enqueue(TaskReviewReceived, ReviewReceivedPayload{
		Event:     "review_received",
		JobID:     r.JobID,
		ServiceID: r.ServiceID,
		AgentID:   r.ProviderAgentID,
		Rating:    r.Rating,
		SentAt:    time.Now(),
	})
}

func (d *Dispatcher) enqueue(taskType string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify: marshal %s: %v", taskType, err)
		return
	}
	if _, err := d.client.Enqueue(asynq.NewTask(taskType, b), asynq.Queue("webhooks")); err != nil {
		log.Printf("notify: enqueue %s: %v", taskType, err)
	}
}

func (d *Dispatcher) handlePaymentReceived(ctx context.Context, t *asynq.Task) error {
	var p PaymentReceivedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	return d.deliver(ctx, p.AgentID, t.Payload())
}

func (d *Dispatcher) handleJobFinished(ctx context.Context, t *asynq.Task) error {
	var p JobFinishedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	return d.deliver(ctx, p.AgentID, t.Payload())
}

func (d *Dispatcher) handleReviewReceived(ctx context.Context, t *asynq.Task) error {
	var p ReviewReceivedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	return d.deliver(ctx, p.AgentID, t.Payload())
}

// deliver POSTs the payload to the agent's webhook URL. No URL configured
// means the agent opted out; that is success, not an error to retry.
func (d *Dispatcher) deliver(ctx context.Context, agentID string, body []byte) error {
	agent, err := d.agents.AgentByID(ctx, agentID)
	if err != nil {
		return err
	}
	if agent.WebhookURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, agent.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s answered %d", agent.WebhookURL, resp.StatusCode)
	}
	log.Printf("notify: delivered webhook to agent %s", agentID)
	return nil
}
