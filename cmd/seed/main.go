// Package main provides a CLI tool for seeding the database with a
// deterministic ledger transaction history for local development.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/joho/godotenv"

	"invclose/internal/core/id"
	"invclose/internal/core/period"
	"invclose/internal/infrastructure/storage/postgres"
	"invclose/pkg/logger"
)

// Fixed seed keeps repeated runs reproducible.
const randomSeed = 42

var facilityTypes = []string{"WAREHOUSE", "COLD_STORAGE", "DISTRIBUTION_CENTER"}

func main() {
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if err := ensureSchema(ctx, pool); err != nil {
		log.Fatalw("failed to create schema", "error", err)
	}
	log.Info("schema ready")

	txManager := postgres.NewTxManager(pool)

	entityID, inserted, err := seedLedgerHistory(ctx, txManager)
	if err != nil {
		log.Fatalw("failed to seed ledger history", "error", err)
	}

	log.Infow("seeding completed successfully",
		"entity_id", entityID,
		"transactions", inserted,
		"facility_types", facilityTypes,
	)
}

// ensureSchema creates the tables the engine needs. Idempotent.
func ensureSchema(ctx context.Context, pool *postgres.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ledger_transactions (
			id                 uuid PRIMARY KEY,
			entity_id          uuid NOT NULL,
			facility_type_code text NOT NULL,
			direction          text NOT NULL CHECK (direction IN ('in', 'out')),
			quantity           bigint NOT NULL CHECK (quantity > 0),
			occurred_at        timestamptz NOT NULL,
			cancelled_at       timestamptz
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_txn_key_time
			ON ledger_transactions (entity_id, facility_type_code, occurred_at)
			WHERE cancelled_at IS NULL`,
		`CREATE TABLE IF NOT EXISTS closing_records (
			id                 uuid PRIMARY KEY,
			entity_id          uuid NOT NULL,
			facility_type_code text NOT NULL,
			granularity        text NOT NULL CHECK (granularity IN ('DAY', 'MONTH')),
			period_date        timestamptz NOT NULL,
			previous_qty       bigint NOT NULL DEFAULT 0,
			inbound_qty        bigint NOT NULL DEFAULT 0,
			outbound_qty       bigint NOT NULL DEFAULT 0,
			closing_qty        bigint NOT NULL DEFAULT 0,
			is_closed          boolean NOT NULL DEFAULT false,
			closed_at          timestamptz,
			closed_by          text NOT NULL DEFAULT '',
			version            int NOT NULL DEFAULT 0,
			created_at         timestamptz NOT NULL DEFAULT now(),
			updated_at         timestamptz NOT NULL DEFAULT now(),
			UNIQUE (entity_id, facility_type_code, granularity, period_date)
		)`,
		`CREATE TABLE IF NOT EXISTS closing_audit (
			id                  uuid PRIMARY KEY,
			action              text NOT NULL,
			entity_id           uuid NOT NULL,
			facility_type_code  text NOT NULL,
			actor_id            text NOT NULL DEFAULT '',
			changes             jsonb,
			changes_compressed  bytea,
			compression_algo    text NOT NULL DEFAULT '',
			created_at          timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sys_idempotency (
			idempotency_key       text PRIMARY KEY,
			actor_id              text NOT NULL DEFAULT '',
			operation             text NOT NULL,
			status                text NOT NULL,
			request_hash          text NOT NULL,
			response              jsonb,
			response_status       int NOT NULL DEFAULT 0,
			response_content_type text NOT NULL DEFAULT '',
			created_at            timestamptz NOT NULL DEFAULT now(),
			updated_at            timestamptz NOT NULL DEFAULT now(),
			expires_at            timestamptz NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// seedLedgerHistory generates 90 days of inbound/outbound movements per
// facility type, streamed through the COPY batch inserter. Outbound volumes
// stay below the running balance so every day closes nonnegative.
func seedLedgerHistory(ctx context.Context, txManager *postgres.TxManager) (id.ID, int64, error) {
	entityID := id.MustParse("01933f00-0000-7000-8000-000000000001")
	rng := rand.New(rand.NewSource(randomSeed))

	today := period.Truncate(time.Now().UTC())
	start := today.AddDate(0, 0, -90)

	columns := []string{
		"id", "entity_id", "facility_type_code",
		"direction", "quantity", "occurred_at", "cancelled_at",
	}

	var rows [][]any
	for _, code := range facilityTypes {
		var balance int64
		for day := start; day.Before(today); day = day.AddDate(0, 0, 1) {
			// 1..3 receipts per day
			receipts := 1 + rng.Intn(3)
			for i := 0; i < receipts; i++ {
				qty := int64(10 + rng.Intn(90))
				balance += qty
				rows = append(rows, ledgerRow(entityID, code, "in", qty, day, rng))
			}

			// 0..2 issues per day, bounded by the running balance
			issues := rng.Intn(3)
			for i := 0; i < issues && balance > 0; i++ {
				qty := 1 + rng.Int63n(balance/2+1)
				balance -= qty
				rows = append(rows, ledgerRow(entityID, code, "out", qty, day, rng))
			}
		}
	}

	inserter := postgres.NewBatchInserter(txManager)
	var inserted int64
	err := txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		n, err := inserter.CopyFromSlice(ctx, "ledger_transactions", columns, rows)
		inserted = n
		return err
	})
	if err != nil {
		return id.Nil(), 0, err
	}

	return entityID, inserted, nil
}

func ledgerRow(entityID id.ID, code, direction string, qty int64, day time.Time, rng *rand.Rand) []any {
	occurredAt := day.Add(time.Duration(rng.Intn(24*60)) * time.Minute)
	return []any{
		id.New(), entityID, code,
		direction, qty, occurredAt, nil,
	}
}
