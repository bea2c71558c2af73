// Command dedupscan sweeps the gateway_events archive for events
// recorded by more than one relay instance and deletes the extra
// copies, keeping the earliest received row per event id.
//
// Inserts are idempotent per instance, so duplicates only appear when
// several instances archive the same gateway traffic. Run with
// --dry-run to see what would be removed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/podwave/relay/internal/config"
	"github.com/podwave/relay/internal/database"
)

const statsQuery = `
	SELECT count(*), count(DISTINCT event_id)
	FROM gateway_events
`

const groupsQuery = `
	SELECT count(*)
	FROM (
		SELECT event_id
		FROM gateway_events
		GROUP BY event_id
		HAVING count(*) > 1
	) g
`

// deleteQuery keeps the earliest received row per event id and removes
// the rest. Ties on received_at keep an arbitrary single row.
const deleteQuery = `
	DELETE FROM gateway_events
	WHERE ctid IN (
		SELECT ctid
		FROM (
			SELECT ctid,
			       row_number() OVER (PARTITION BY event_id ORDER BY received_at) AS rn
			FROM gateway_events
		) ranked
		WHERE rn > 1
	)
`

func main() {
	configPath := flag.String("config", "configs/relayd.local.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "report duplicates without deleting anything")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := scan(ctx, pool, *dryRun, logger); err != nil {
		logger.Error("scan failed", "error", err)
		os.Exit(1)
	}
}

func scan(ctx context.Context, pool *pgxpool.Pool, dryRun bool, logger *slog.Logger) error {
	var total, distinct int64
	if err := pool.QueryRow(ctx, statsQuery).Scan(&total, &distinct); err != nil {
		return fmt.Errorf("count events: %w", err)
	}

	var groups int64
	if err := pool.QueryRow(ctx, groupsQuery).Scan(&groups); err != nil {
		return fmt.Errorf("count duplicate groups: %w", err)
	}

	removable := total - distinct
	logger.Info("archive scanned",
		"rows", total,
		"events", distinct,
		"duplicate_groups", groups,
		"removable", removable,
	)

	if removable == 0 {
		logger.Info("no duplicates found")
		return nil
	}
	if dryRun {
		logger.Info("dry run, nothing deleted", "would_delete", removable)
		return nil
	}

	start := time.Now()
	ct, err := pool.Exec(ctx, deleteQuery)
	if err != nil {
		return fmt.Errorf("delete duplicates: %w", err)
	}

	logger.Info("duplicates deleted",
		"rows", ct.RowsAffected(),
		"duration", time.Since(start),
	)
	return nil
}
