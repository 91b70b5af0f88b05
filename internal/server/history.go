package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/searchstack/textsearchd/internal/analytics"
	"github.com/searchstack/textsearchd/pkg/postgres"
	"github.com/searchstack/textsearchd/pkg/resilience"
)

// BuildHistory persists one audit row per completed build pass. Failures are
// logged by the caller and never affect the build outcome.
type BuildHistory struct {
	client *postgres.Client
	logger *slog.Logger
}

// NewBuildHistory wraps an established Postgres client.
func NewBuildHistory(client *postgres.Client) *BuildHistory {
	return &BuildHistory{
		client: client,
		logger: slog.Default().With("component", "build-history"),
	}
}

// EnsureSchema creates the build_history table if it does not exist.
func (h *BuildHistory) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS build_history (
	id            BIGSERIAL PRIMARY KEY,
	mode          TEXT        NOT NULL,
	dataset       TEXT        NOT NULL,
	workers       INT         NOT NULL,
	scanned_files BIGINT      NOT NULL,
	indexed_files BIGINT      NOT NULL,
	skipped_files BIGINT      NOT NULL,
	errors        BIGINT      NOT NULL,
	elapsed_ms    BIGINT      NOT NULL,
	status        TEXT        NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := h.client.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating build_history table: %w", err)
	}
	return nil
}

// Record inserts one row for a completed build pass. Transient insert
// failures are retried with backoff before giving up.
func (h *BuildHistory) Record(ctx context.Context, ev analytics.BuildEvent) error {
	return resilience.Retry(ctx, "build_history insert", resilience.RetryConfig{Attempts: 3}, func() error {
		return h.client.InTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
INSERT INTO build_history
	(mode, dataset, workers, scanned_files, indexed_files, skipped_files, errors, elapsed_ms, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				ev.Mode, ev.Dataset, ev.Workers,
				ev.Scanned, ev.Indexed, ev.Skipped,
				ev.Errors, ev.ElapsedMS, ev.Status, ev.Timestamp,
			)
			return err
		})
	})
}

// Recent returns the latest n build records, newest first.
func (h *BuildHistory) Recent(ctx context.Context, n int) ([]analytics.BuildEvent, error) {
	if n < 1 {
		n = 10
	}
	rows, err := h.client.DB.QueryContext(ctx, `
SELECT mode, dataset, workers, scanned_files, indexed_files, skipped_files, errors, elapsed_ms, status, created_at
FROM build_history
ORDER BY id DESC
LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("querying build_history: %w", err)
	}
	defer rows.Close()

	var out []analytics.BuildEvent
	for rows.Next() {
		ev := analytics.BuildEvent{Type: "build"}
		if err := rows.Scan(
			&ev.Mode, &ev.Dataset, &ev.Workers,
			&ev.Scanned, &ev.Indexed, &ev.Skipped,
			&ev.Errors, &ev.ElapsedMS, &ev.Status, &ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scanning build_history row: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
