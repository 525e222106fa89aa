package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
)

const clickhouseHeartbeatTable = "trading_agent_heartbeats"

// ClickHouseHeartbeats keeps the full heartbeat history in a MergeTree table.
type ClickHouseHeartbeats struct {
	db    *sql.DB
	table string
}

func NewClickHouseHeartbeats(db *sql.DB) *ClickHouseHeartbeats {
	return &ClickHouseHeartbeats{db: db, table: clickhouseHeartbeatTable}
}

// Schema returns the DDL for the heartbeat table.
func (s *ClickHouseHeartbeats) Schema() []string {
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ts DateTime64(3, 'UTC'),
	agent_name LowCardinality(String),
	status LowCardinality(String),
	last_error String,
	metadata String
) ENGINE = MergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (agent_name, ts)
TTL toDateTime(ts) + INTERVAL 90 DAY`, s.table)}
}

func (s *ClickHouseHeartbeats) Init(ctx context.Context) error {
	for _, stmt := range s.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init heartbeat table: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseHeartbeats) Write(ctx context.Context, ev models.HeartbeatEvent) error {
	meta, err := encodeMetadata(ev.Metadata)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, agent_name, status, last_error, metadata) VALUES (?, ?, ?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, q, ev.Timestamp.UTC(), ev.AgentName, string(ev.Status), ev.LastError, meta); err != nil {
		return fmt.Errorf("insert heartbeat %s: %w", ev.AgentName, err)
	}
	return nil
}

func (s *ClickHouseHeartbeats) Latest(ctx context.Context) ([]models.HeartbeatEvent, error) {
	q := fmt.Sprintf(`SELECT agent_name, argMax(status, ts), max(ts), argMax(last_error, ts), argMax(metadata, ts)
FROM %s GROUP BY agent_name ORDER BY agent_name`, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query heartbeats: %w", err)
	}
	defer rows.Close()

	var out []models.HeartbeatEvent
	for rows.Next() {
		var (
			ev     models.HeartbeatEvent
			status string
			ts     time.Time
			meta   string
		)
		if err := rows.Scan(&ev.AgentName, &status, &ts, &ev.LastError, &meta); err != nil {
			return nil, fmt.Errorf("scan heartbeat: %w", err)
		}
		ev.Status = models.HealthStatus(status)
		ev.Timestamp = ts.UTC()
		ev.Metadata = decodeMetadata(meta)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *ClickHouseHeartbeats) Close() error { return nil }

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// decodeMetadata drops unparsable metadata rather than failing the read.
func decodeMetadata(s string) map[string]any {
	if s == "" || s == "{}" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

var _ drepo.HeartbeatStore = (*ClickHouseHeartbeats)(nil)
