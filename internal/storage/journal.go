package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/mohamedkhairy/breakout-monitor/pkg/logger"
)

const alertJournalSchema = `
CREATE TABLE IF NOT EXISTS alert_journal (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	stock_code TEXT NOT NULL DEFAULT '',
	signal     TEXT NOT NULL DEFAULT '',
	price      DOUBLE PRECISION NOT NULL DEFAULT 0,
	level      DOUBLE PRECISION NOT NULL DEFAULT 0,
	reason     TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL,
	bar_time   TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

// SQLAlertJournal implements AlertJournal on SQLite or PostgreSQL
type SQLAlertJournal struct {
	db     *sqlx.DB
	driver string
}

// NewSQLAlertJournal opens the journal database and creates its table
func NewSQLAlertJournal(driver, dsn string) (*SQLAlertJournal, error) {
	switch driver {
	case "sqlite3", "postgres":
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if driver == "sqlite3" {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, alertJournalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create alert journal table: %w", err)
	}

	logger.Info("Alert journal initialized",
		logger.String("driver", driver),
	)

	return &SQLAlertJournal{db: db, driver: driver}, nil
}

// WriteAlert inserts an alert
func (j *SQLAlertJournal) WriteAlert(ctx context.Context, alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}

	row := *alert
	row.BarTime = row.BarTime.UTC()
	row.CreatedAt = row.CreatedAt.UTC()

	query := `
		INSERT INTO alert_journal (id, kind, stock_code, signal, price, level, reason, message, bar_time, created_at)
		VALUES (:id, :kind, :stock_code, :signal, :price, :level, :reason, :message, :bar_time, :created_at)`

	if _, err := j.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", alert.ID, err)
	}
	return nil
}

// GetAlerts retrieves alerts with filtering options, newest first
func (j *SQLAlertJournal) GetAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	var (
		conds []string
		args  []interface{}
	)

	if filter.StockCode != "" {
		conds = append(conds, "stock_code = ?")
		args = append(args, filter.StockCode)
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if !filter.StartTime.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.StartTime.UTC())
	}
	if !filter.EndTime.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, filter.EndTime.UTC())
	}

	query := `SELECT id, kind, stock_code, signal, price, level, reason, message, bar_time, created_at FROM alert_journal`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	var alerts []*models.Alert
	if err := j.db.SelectContext(ctx, &alerts, j.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	return alerts, nil
}

// Close closes the database connection
func (j *SQLAlertJournal) Close() error {
	return j.db.Close()
}
