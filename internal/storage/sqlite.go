package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/alerting"
	"github.com/scrapewatch/scrapewatch-backend-go/internal/core/telemetry"
)

// eventRow is the SQLite row shape of a telemetry event
type eventRow struct {
	ID            string    `db:"id"`
	Timestamp     time.Time `db:"timestamp"`
	CorrelationID string    `db:"correlation_id"`
	Source        string    `db:"source"`
	Payload       []byte    `db:"payload"`
}

// alertRow is the SQLite row shape of an alert
type alertRow struct {
	ID        string    `db:"id"`
	Type      string    `db:"type"`
	Severity  string    `db:"severity"`
	Status    string    `db:"status"`
	Metric    string    `db:"metric"`
	Source    string    `db:"source"`
	Timestamp time.Time `db:"timestamp"`
	Payload   []byte    `db:"payload"`
}

// SQLiteBackend is the primary storage backend
type SQLiteBackend struct {
	db *sqlx.DB
}

// NewSQLiteBackend wraps an initialized database handle
func NewSQLiteBackend(db *sqlx.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

// StoreEvent upserts an event row; replay of the same event is idempotent
func (b *SQLiteBackend) StoreEvent(ctx context.Context, event *telemetry.TelemetryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	query := `
		INSERT INTO telemetry_events (id, timestamp, correlation_id, source, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`
	if _, err := b.db.ExecContext(ctx, query, event.ID, event.Timestamp, event.CorrelationID, event.Source, payload); err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// StoreAlert upserts an alert row; lifecycle updates rewrite the payload
func (b *SQLiteBackend) StoreAlert(ctx context.Context, alert *alerting.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	query := `
		INSERT INTO alerts (id, type, severity, status, metric, source, timestamp, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			severity = excluded.severity,
			status = excluded.status,
			payload = excluded.payload
	`
	if _, err := b.db.ExecContext(ctx, query, alert.ID, alert.Type, alert.Severity, alert.Status, alert.Metric, alert.Source, alert.Timestamp, payload); err != nil {
		return fmt.Errorf("failed to store alert: %w", err)
	}
	return nil
}

// EventsByTimeRange returns events inside [from, to], oldest first
func (b *SQLiteBackend) EventsByTimeRange(ctx context.Context, from, to time.Time) ([]*telemetry.TelemetryEvent, error) {
	var rows []eventRow
	query := `
		SELECT id, timestamp, correlation_id, source, payload
		FROM telemetry_events
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`
	if err := b.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	events := make([]*telemetry.TelemetryEvent, 0, len(rows))
	for _, row := range rows {
		var event telemetry.TelemetryEvent
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			return nil, fmt.Errorf("failed to decode event %s: %w", row.ID, err)
		}
		events = append(events, &event)
	}
	return events, nil
}

// AlertsByTimeRange returns alerts inside [from, to], oldest first
func (b *SQLiteBackend) AlertsByTimeRange(ctx context.Context, from, to time.Time) ([]*alerting.Alert, error) {
	var rows []alertRow
	query := `
		SELECT id, type, severity, status, metric, source, timestamp, payload
		FROM alerts
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`
	if err := b.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	alerts := make([]*alerting.Alert, 0, len(rows))
	for _, row := range rows {
		var alert alerting.Alert
		if err := json.Unmarshal(row.Payload, &alert); err != nil {
			return nil, fmt.Errorf("failed to decode alert %s: %w", row.ID, err)
		}
		alerts = append(alerts, &alert)
	}
	return alerts, nil
}

// ApplyRetentionPolicy deletes events and resolved alerts older than maxAge
func (b *SQLiteBackend) ApplyRetentionPolicy(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)

	res, err := b.db.ExecContext(ctx, `DELETE FROM telemetry_events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	deleted, _ := res.RowsAffected()

	res, err = b.db.ExecContext(ctx, `DELETE FROM alerts WHERE timestamp < ? AND status = ?`, cutoff, alerting.StatusResolved)
	if err != nil {
		return deleted, fmt.Errorf("failed to prune alerts: %w", err)
	}
	alertsDeleted, _ := res.RowsAffected()

	return deleted + alertsDeleted, nil
}

func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
