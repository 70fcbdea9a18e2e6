package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/superagent/internal/adapters/config"
	"github.com/selivandex/superagent/pkg/logger"
	"github.com/selivandex/superagent/pkg/metrics"
)

// Writer persists execution metrics into ClickHouse. It implements
// metrics.Writer and is normally driven through metrics.BufferedMetrics.
type Writer struct {
	db *sqlx.DB
}

// New connects to ClickHouse and returns a metrics writer
func New(cfg *config.ClickHouseConfig) (*Writer, error) {
	db, err := sqlx.Connect("clickhouse", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	logger.Info("clickhouse metrics writer initialized")

	return &Writer{db: db}, nil
}

// Write inserts the batch into the metric's table inside one transaction.
// All metrics in the batch share the same table and column set.
func (w *Writer) Write(ctx context.Context, tableName string, batch []metrics.Metric) error {
	if len(batch) == 0 {
		return nil
	}

	columns := batch[0].Columns()
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)

	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range batch {
		if _, err := stmt.ExecContext(ctx, m.Values()...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert metric into %s: %w", tableName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("saved metrics to ClickHouse",
		zap.String("table", tableName),
		zap.Int("count", len(batch)),
	)

	return nil
}

// Close closes the underlying connection
func (w *Writer) Close() error {
	return w.db.Close()
}

// Health pings ClickHouse
func (w *Writer) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return w.db.PingContext(ctx)
}
