package db

import (
	"context"
	"fmt"
	"log"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         BIGSERIAL PRIMARY KEY,
		name       VARCHAR(255) NOT NULL,
		email      VARCHAR(255) NOT NULL UNIQUE,
		password   VARCHAR(255) NOT NULL,
		role       VARCHAR(20)  NOT NULL CHECK (role IN ('customer', 'driver')),
		created_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS towing_requests (
		id            BIGSERIAL PRIMARY KEY,
		customer_id   BIGINT REFERENCES users (id) ON DELETE CASCADE,
		driver_id     BIGINT REFERENCES users (id) ON DELETE SET NULL,
		customer_name VARCHAR(255) NOT NULL,
		location      VARCHAR(500) NOT NULL,
		latitude      NUMERIC(10, 7),
		longitude     NUMERIC(10, 7),
		note          TEXT,
		status        VARCHAR(20) NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'assigned', 'completed')),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_towing_requests_customer_id ON towing_requests (customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_towing_requests_status ON towing_requests (status)`,
	`CREATE TABLE IF NOT EXISTS outbox_tasks (
		id           UUID PRIMARY KEY,
		status       VARCHAR(20) NOT NULL,
		payload      JSONB       NOT NULL,
		topic        VARCHAR(255) NOT NULL,
		attempts     INT         NOT NULL DEFAULT 0,
		last_error   TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_tasks_status ON outbox_tasks (status, updated_at)`,
}

// Bootstrap creates the schema when it does not exist yet.
func Bootstrap(ctx context.Context, database *Database) error {
	for _, stmt := range schema {
		if _, err := database.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

// SeedDemo inserts a handful of sample requests for local development.
// Runs once; a non-empty table means a previous run already seeded.
func SeedDemo(ctx context.Context, database *Database) {
	var count int
	err := database.ExecQueryRow(ctx, "SELECT COUNT(*) FROM towing_requests").Scan(&count)
	if err != nil {
		log.Printf("Demo seed skipped: %v", err)
		return
	}
	if count > 0 {
		log.Println("Demo seed skipped: towing_requests is not empty.")
		return
	}

	_, err = database.Exec(ctx, `
		INSERT INTO towing_requests (customer_name, location, note, status) VALUES
			('Ahmed Al-Rashidi', 'King Fahd Road, Riyadh', 'Car broke down near the gas station', 'pending'),
			('Sara Mohammed', 'Olaya District, Riyadh', 'Flat tire, need immediate help', 'pending'),
			('Khalid Al-Otaibi', 'Al Nakheel, Riyadh', 'Engine won''t start', 'pending')
	`)
	if err != nil {
		log.Printf("Demo seed failed: %v", err)
		return
	}
	log.Println("Demo towing requests created successfully.")
}
