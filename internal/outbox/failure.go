package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQWriter parks undeliverable outbox records for the DLQ manager to
// retry. The table carries no row-level security: entries from every
// tenant land here and are re-queued by a single cross-tenant worker.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter initialises a writer backed by the provided connection pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// WriteBatch records the failed records in a single round trip. Entries
// become eligible for retry immediately.
func (w *DLQWriter) WriteBatch(ctx context.Context, records []Record, reason string) error {
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(
			`INSERT INTO outbox_dlq (tenant_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
	         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`,
			rec.TenantID, rec.EventID, rec.EventType, rec.Topic, rec.Payload,
			fmt.Sprintf("%s (topic=%s)", reason, rec.Topic),
			rec.AggregateType, rec.AggregateID, rec.SchemaSubject, rec.PartitionKey,
		)
	}

	results := w.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
