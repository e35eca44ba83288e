package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agoramarket/agora/internal/fault"
	"github.com/agoramarket/agora/internal/model"
)

// Postgres implements Store on a pgx connection pool. All money arithmetic
// happens inside Postgres (NUMERIC columns, relative increments); amounts
// cross this boundary as decimal strings.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ===== agents =====

func (p *Postgres) CreateAgent(ctx context.Context, a *model.Agent) (*model.Agent, error) {
	out := *a
	err := p.pool.QueryRow(ctx,
		`INSERT INTO agents (name, description, api_key, deposit_address, webhook_url)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, balance::text, reputation_score, total_jobs_completed, total_jobs_failed, created_at`,
		a.Name, a.Description, a.APIKey, a.DepositAddress, nullable(a.WebhookURL),
	).Scan(&out.ID, &out.Balance, &out.ReputationScore, &out.TotalJobsCompleted, &out.TotalJobsFailed, &out.CreatedAt)
	if err != nil {
		return nil, fault.Wrap("insert agent", err)
	}
	return &out, nil
}

func (p *Postgres) AgentByID(ctx context.Context, id string) (*model.Agent, error) {
	return p.agentBy(ctx, `id = $1`, id)
}

func (p *Postgres) AgentByAPIKey(ctx context.Context, apiKey string) (*model.Agent, error) {
	return p.agentBy(ctx, `api_key = $1`, apiKey)
}

func (p *Postgres) agentBy(ctx context.Context, where string, arg any) (*model.Agent, error) {
	var a model.Agent
	var description, webhookURL *string
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, description, api_key, deposit_address, webhook_url,
		        balance::text, reputation_score, total_jobs_completed, total_jobs_failed, created_at
		 FROM agents WHERE `+where, arg,
	).Scan(&a.ID, &a.Name, &description, &a.APIKey, &a.DepositAddress, &webhookURL,
		&a.Balance, &a.ReputationScore, &a.TotalJobsCompleted, &a.TotalJobsFailed, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.New(fault.NotFound, "agent not found")
	}
	if err != nil {
		return nil, fault.Wrap("fetch agent", err)
	}
	a.Description = deref(description)
	a.WebhookURL = deref(webhookURL)
	return &a, nil
}

func (p *Postgres) CreditBalance(ctx context.Context, id, amount string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE agents SET balance = balance + $1::numeric WHERE id = $2`,
		amount, id,
	)
	if err != nil {
		return fault.Wrap("credit balance", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.NotFound, "agent not found")
	}
	return nil
}

func (p *Postgres) IncrementJobsCompleted(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE agents SET total_jobs_completed = total_jobs_completed + 1 WHERE id = $1`, id)
	if err != nil {
		return fault.Wrap("increment jobs completed", err)
	}
	return nil
}

// ===== services =====

const serviceColumns = `id, agent_id, name, description, category, price_per_unit::text,
	unit_type, estimated_time, api_schema, is_active, average_rating, total_reviews, created_at, updated_at`

func (p *Postgres) CreateService(ctx context.Context, s *model.Service) (*model.Service, error) {
	out := *s
	err := p.pool.QueryRow(ctx,
		`INSERT INTO services (agent_id, name, description, category, price_per_unit, unit_type, estimated_time, api_schema, is_active)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)
		 RETURNING id, average_rating, total_reviews, created_at, updated_at`,
		s.AgentID, s.Name, s.Description, s.Category, s.PricePerUnit, s.UnitType, s.EstimatedTime, s.APISchema, s.IsActive,
	).Scan(&out.ID, &out.AverageRating, &out.TotalReviews, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fault.Wrap("insert service", err)
	}
	return &out, nil
}

func (p *Postgres) ServiceByID(ctx context.Context, id string) (*model.Service, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id)
	s, err := scanService(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.New(fault.NotFound, "service not found")
	}
	if err != nil {
		return nil, fault.Wrap("fetch service", err)
	}
	return s, nil
}

func (p *Postgres) SearchServices(ctx context.Context, f SearchFilter) ([]model.Service, error) {
	sql := `SELECT ` + serviceColumns + ` FROM services WHERE is_active = true`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Category != "" {
		sql += ` AND category = ` + arg(f.Category)
	}
	if f.MaxPrice != "" {
		sql += ` AND price_per_unit <= ` + arg(f.MaxPrice) + `::numeric`
	}
	if f.MinRating > 0 {
		sql += ` AND average_rating >= ` + arg(f.MinRating)
	}
	if f.AgentID != "" {
		sql += ` AND agent_id = ` + arg(f.AgentID)
	}
	sql += ` ORDER BY average_rating DESC, total_reviews DESC`

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fault.Wrap("search services", err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fault.Wrap("scan service", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *Postgres) SetServiceActive(ctx context.Context, id, ownerID string, active bool) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE services SET is_active = $1, updated_at = NOW() WHERE id = $2 AND agent_id = $3`,
		active, id, ownerID,
	)
	if err != nil {
		return false, fault.Wrap("update service", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) ApplyReviewRating(ctx context.Context, id string, rating int) error {
	// Streaming mean, computed by Postgres so concurrent reviews cannot lose
	// each other's counts.
	_, err := p.pool.Exec(ctx,
		`UPDATE services
		 SET average_rating = (($1 + (average_rating * total_reviews)) / (total_reviews + 1)),
		     total_reviews  = total_reviews + 1,
		     updated_at     = NOW()
		 WHERE id = $2`,
		rating, id,
	)
	if err != nil {
		return fault.Wrap("apply review rating", err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanService(row scannable) (*model.Service, error) {
	var s model.Service
	var schema []byte
	err := row.Scan(&s.ID, &s.AgentID, &s.Name, &s.Description, &s.Category, &s.PricePerUnit,
		&s.UnitType, &s.EstimatedTime, &schema, &s.IsActive, &s.AverageRating, &s.TotalReviews,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.APISchema = json.RawMessage(schema)
	return &s, nil
}

// ===== jobs =====

const jobColumns = `id, service_id, client_agent_id, provider_agent_id, status, price::text,
	input, output, x402_request_id, x402_tx_hash, escrow_released, created_at, started_at, completed_at`

func (p *Postgres) CreateJob(ctx context.Context, j *model.Job) (*model.Job, error) {
	out := *j
	err := p.pool.QueryRow(ctx,
		`INSERT INTO jobs (service_id, client_agent_id, provider_agent_id, status, price, input, x402_request_id)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
		 RETURNING id, created_at`,
		j.ServiceID, j.ClientAgentID, j.ProviderAgentID, j.Status, j.Price, j.Input, nullable(j.X402RequestID),
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fault.Wrap("insert job", err)
	}
	return &out, nil
}

func (p *Postgres) JobByID(ctx context.Context, id string) (*model.Job, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.New(fault.NotFound, "job not found")
	}
	if err != nil {
		return nil, fault.Wrap("fetch job", err)
	}
	return j, nil
}

func (p *Postgres) JobsByClient(ctx context.Context, agentID string) ([]model.Job, error) {
	return p.jobsBy(ctx, `client_agent_id`, agentID)
}

func (p *Postgres) JobsByProvider(ctx context.Context, agentID string) ([]model.Job, error) {
	return p.jobsBy(ctx, `provider_agent_id`, agentID)
}

func (p *Postgres) jobsBy(ctx context.Context, column, agentID string) ([]model.Job, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE `+column+` = $1 ORDER BY created_at DESC`, agentID)
	if err != nil {
		return nil, fault.Wrap("list jobs", err)
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fault.Wrap("scan job", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, output json.RawMessage) error {
	sql := `UPDATE jobs SET status = $1`
	args := []any{status}
	switch status {
	case model.JobInProgress:
		sql += `, started_at = CURRENT_TIMESTAMP`
	case model.JobCompleted, model.JobFailed:
		sql += `, completed_at = CURRENT_TIMESTAMP`
	}
	if output != nil {
		args = append(args, output)
		sql += fmt.Sprintf(`, output = $%d`, len(args))
	}
	args = append(args, id)
	sql += fmt.Sprintf(` WHERE id = $%d`, len(args))

	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fault.Wrap("update job status", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.NotFound, "job not found")
	}
	return nil
}

func (p *Postgres) MarkJobPaymentReceived(ctx context.Context, id, txHash string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, x402_tx_hash = $2 WHERE id = $3`,
		model.JobPaymentReceived, txHash, id,
	)
	if err != nil {
		return fault.Wrap("mark payment received", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.NotFound, "job not found")
	}
	return nil
}

func (p *Postgres) SetJobRequestID(ctx context.Context, id, requestID string) error {
	_, err := p.pool.Exec(ctx, `UPDATE jobs SET x402_request_id = $1 WHERE id = $2`, requestID, id)
	if err != nil {
		return fault.Wrap("set job request id", err)
	}
	return nil
}

func (p *Postgres) JobWithTxHash(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE x402_tx_hash = $1)`, txHash,
	).Scan(&exists)
	if err != nil {
		return false, fault.Wrap("check tx hash", err)
	}
	return exists, nil
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var input, output []byte
	var requestID, txHash *string
	err := row.Scan(&j.ID, &j.ServiceID, &j.ClientAgentID, &j.ProviderAgentID, &j.Status, &j.Price,
		&input, &output, &requestID, &txHash, &j.EscrowReleased, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	j.Input = json.RawMessage(input)
	j.Output = json.RawMessage(output)
	j.X402RequestID = deref(requestID)
	j.X402TxHash = deref(txHash)
	return &j, nil
}

// ===== payment requests =====

func (p *Postgres) CreatePaymentRequest(ctx context.Context, r *model.PaymentRequest) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO x402_requests (request_id, job_id, amount, asset, chain, destination, status, expires_at)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)`,
		r.RequestID, r.JobID, r.Amount, r.Asset, r.Chain, r.Destination, r.Status, r.ExpiresAt,
	)
	if err != nil {
		return fault.Wrap("insert payment request", err)
	}
	return nil
}

func (p *Postgres) PaymentRequestByID(ctx context.Context, id string) (*model.PaymentRequest, error) {
	var r model.PaymentRequest
	err := p.pool.QueryRow(ctx,
		`SELECT request_id, job_id, amount::text, asset, chain, destination, status, expires_at, created_at
		 FROM x402_requests WHERE request_id = $1`, id,
	).Scan(&r.RequestID, &r.JobID, &r.Amount, &r.Asset, &r.Chain, &r.Destination, &r.Status, &r.ExpiresAt, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.New(fault.NotFound, "payment request not found")
	}
	if err != nil {
		return nil, fault.Wrap("fetch payment request", err)
	}
	return &r, nil
}

func (p *Postgres) TransitionPaymentRequest(ctx context.Context, id string, from, to model.RequestStatus) (bool, error) {
	// The from-status predicate is the whole point: under two concurrent
	// redemptions only one UPDATE touches the row.
	tag, err := p.pool.Exec(ctx,
		`UPDATE x402_requests SET status = $1 WHERE request_id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return false, fault.Wrap("transition payment request", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ===== reviews =====

func (p *Postgres) CreateReview(ctx context.Context, r *model.Review) (*model.Review, error) {
	out := *r
	err := p.pool.QueryRow(ctx,
		`INSERT INTO reviews (job_id, service_id, client_agent_id, provider_agent_id, rating, review)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		r.JobID, r.ServiceID, r.ClientAgentID, r.ProviderAgentID, r.Rating, r.Review,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fault.Wrap("insert review", err)
	}
	return &out, nil
}

func (p *Postgres) ReviewForJob(ctx context.Context, jobID string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reviews WHERE job_id = $1)`, jobID,
	).Scan(&exists)
	if err != nil {
		return false, fault.Wrap("check review", err)
	}
	return exists, nil
}

func (p *Postgres) ReviewsByService(ctx context.Context, serviceID string) ([]model.Review, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, job_id, service_id, client_agent_id, provider_agent_id, rating, review, created_at
		 FROM reviews WHERE service_id = $1 ORDER BY created_at DESC`, serviceID)
	if err != nil {
		return nil, fault.Wrap("list reviews", err)
	}
	defer rows.Close()

	var out []model.Review
	for rows.Next() {
		var r model.Review
		var text *string
		if err := rows.Scan(&r.ID, &r.JobID, &r.ServiceID, &r.ClientAgentID, &r.ProviderAgentID,
			&r.Rating, &text, &r.CreatedAt); err != nil {
			return nil, fault.Wrap("scan review", err)
		}
		r.Review = deref(text)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
