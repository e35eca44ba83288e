package db

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool against dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Println("Connected to Postgres successfully")
	return pool, nil
}

// EnsureSchema creates the marketplace tables if they are missing. Each table
// is ensured independently so a partial failure leaves the rest usable.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) {
	ensureAgentsTable(ctx, pool)
	ensureServicesTable(ctx, pool)
	ensureJobsTable(ctx, pool)
	ensureX402RequestsTable(ctx, pool)
	ensureReviewsTable(ctx, pool)
}

func ensureAgentsTable(ctx context.Context, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS agents (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            name TEXT NOT NULL,
            description TEXT,
            api_key TEXT UNIQUE NOT NULL,
            deposit_address TEXT NOT NULL,
            webhook_url TEXT,
            balance NUMERIC(24,6) NOT NULL DEFAULT 0,
            reputation_score DOUBLE PRECISION NOT NULL DEFAULT 0,
            total_jobs_completed INTEGER NOT NULL DEFAULT 0,
            total_jobs_failed INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_agents_api_key ON agents(api_key);
    `)
	if err != nil {
		log.Printf("failed to ensure agents table: %v", err)
	}
}

func ensureServicesTable(ctx context.Context, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS services (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            agent_id UUID NOT NULL REFERENCES agents(id),
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL DEFAULT '',
            price_per_unit NUMERIC(24,6) NOT NULL,
            unit_type TEXT NOT NULL DEFAULT '',
            estimated_time TEXT NOT NULL DEFAULT '',
            api_schema JSONB,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            average_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
            total_reviews INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_services_category ON services(category) WHERE is_active;
    `)
	if err != nil {
		log.Printf("failed to ensure services table: %v", err)
	}
}

func ensureJobsTable(ctx context.Context, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS jobs (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            service_id UUID NOT NULL REFERENCES services(id),
            client_agent_id UUID NOT NULL REFERENCES agents(id),
            provider_agent_id UUID NOT NULL REFERENCES agents(id),
            status TEXT NOT NULL CHECK (status IN (
                'pending_payment', 'payment_received', 'in_progress',
                'completed', 'failed', 'disputed'
            )),
            price NUMERIC(24,6) NOT NULL,
            input JSONB,
            output JSONB,
            x402_request_id TEXT,
            x402_tx_hash TEXT,
            escrow_released BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            started_at TIMESTAMP WITH TIME ZONE NULL,
            completed_at TIMESTAMP WITH TIME ZONE NULL
        );
        CREATE INDEX IF NOT EXISTS idx_jobs_client ON jobs(client_agent_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_jobs_provider ON jobs(provider_agent_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_jobs_tx_hash ON jobs(x402_tx_hash) WHERE x402_tx_hash IS NOT NULL;
    `)
	if err != nil {
		log.Printf("failed to ensure jobs table: %v", err)
	}
}

func ensureX402RequestsTable(ctx context.Context, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS x402_requests (
            request_id UUID PRIMARY KEY,
            job_id UUID NOT NULL REFERENCES jobs(id),
            amount NUMERIC(24,6) NOT NULL,
            asset TEXT NOT NULL DEFAULT 'USDC',
            chain TEXT NOT NULL DEFAULT 'base',
            destination TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','paid','expired')),
            expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_x402_requests_job ON x402_requests(job_id);
    `)
	if err != nil {
		log.Printf("failed to ensure x402_requests table: %v", err)
	}
}

func ensureReviewsTable(ctx context.Context, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS reviews (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            job_id UUID NOT NULL UNIQUE REFERENCES jobs(id),
            service_id UUID NOT NULL REFERENCES services(id),
            client_agent_id UUID NOT NULL REFERENCES agents(id),
            provider_agent_id UUID NOT NULL REFERENCES agents(id),
            rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
            review TEXT,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_reviews_service ON reviews(service_id, created_at);
    `)
	if err != nil {
		log.Printf("failed to ensure reviews table: %v", err)
	}
}
