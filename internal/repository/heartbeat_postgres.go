// Package repository holds the storage and transport adapters behind the domain interfaces.
package repository

import (
	"context"
	"fmt"
	"time"

	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"

	"gorm.io/gorm"
)

// heartbeatRow is the persisted form of a heartbeat event.
type heartbeatRow struct {
	ID        uint           `gorm:"primaryKey"`
	AgentName string         `gorm:"size:128;not null;index:idx_hb_agent_ts,priority:1"`
	Status    string         `gorm:"size:16;not null"`
	Timestamp time.Time      `gorm:"not null;index:idx_hb_agent_ts,priority:2,sort:desc"`
	LastError string         `gorm:"type:text"`
	Metadata  map[string]any `gorm:"type:jsonb;serializer:json"`
}

func (heartbeatRow) TableName() string { return "trading_agent_heartbeats" }

func rowFromEvent(ev models.HeartbeatEvent) heartbeatRow {
	return heartbeatRow{
		AgentName: ev.AgentName,
		Status:    string(ev.Status),
		Timestamp: ev.Timestamp.UTC(),
		LastError: ev.LastError,
		Metadata:  ev.Metadata,
	}
}

func (r heartbeatRow) event() models.HeartbeatEvent {
	return models.HeartbeatEvent{
		AgentName: r.AgentName,
		Status:    models.HealthStatus(r.Status),
		Timestamp: r.Timestamp,
		LastError: r.LastError,
		Metadata:  r.Metadata,
	}
}

// PostgresHeartbeats mirrors heartbeats into PostgreSQL through gorm.
type PostgresHeartbeats struct {
	db *gorm.DB
}

func NewPostgresHeartbeats(db *gorm.DB) *PostgresHeartbeats {
	return &PostgresHeartbeats{db: db}
}

func (s *PostgresHeartbeats) Init(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&heartbeatRow{}); err != nil {
		return fmt.Errorf("migrate heartbeats: %w", err)
	}
	return nil
}

func (s *PostgresHeartbeats) Write(ctx context.Context, ev models.HeartbeatEvent) error {
	row := rowFromEvent(ev)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert heartbeat %s: %w", ev.AgentName, err)
	}
	return nil
}

// Latest returns the newest row per agent.
func (s *PostgresHeartbeats) Latest(ctx context.Context) ([]models.HeartbeatEvent, error) {
	var rows []heartbeatRow
	err := s.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (agent_name) * FROM trading_agent_heartbeats ORDER BY agent_name, timestamp DESC`).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query heartbeats: %w", err)
	}
	out := make([]models.HeartbeatEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.event())
	}
	return out, nil
}

// Prune deletes rows older than before and returns how many were removed.
func (s *PostgresHeartbeats) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("timestamp < ?", before.UTC()).Delete(&heartbeatRow{})
	return res.RowsAffected, res.Error
}

// Close is a no-op; the pool belongs to the postgres client.
func (s *PostgresHeartbeats) Close() error { return nil }

var (
	_ drepo.HeartbeatStore  = (*PostgresHeartbeats)(nil)
	_ drepo.HeartbeatPruner = (*PostgresHeartbeats)(nil)
)
