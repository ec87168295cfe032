package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nathanyu/matching-engine/internal/domain"
)

var dbTracer = otel.Tracer("postgres")

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id           TEXT PRIMARY KEY,
	client_id          TEXT NOT NULL,
	symbol             TEXT NOT NULL,
	side               TEXT NOT NULL,
	kind               TEXT NOT NULL,
	quantity           BIGINT NOT NULL,
	price              NUMERIC NOT NULL,
	filled_quantity    BIGINT NOT NULL DEFAULT 0,
	remaining_quantity BIGINT NOT NULL,
	status             TEXT NOT NULL,
	sequence_id        BIGINT NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_symbol_idx ON orders (symbol, created_at);
CREATE INDEX IF NOT EXISTS orders_client_idx ON orders (client_id, created_at);

CREATE TABLE IF NOT EXISTS executions (
	exec_id         TEXT PRIMARY KEY,
	symbol          TEXT NOT NULL,
	sequence_id     BIGINT NOT NULL,
	maker_id        TEXT NOT NULL,
	taker_id        TEXT NOT NULL,
	maker_order_id  TEXT NOT NULL,
	taker_order_id  TEXT NOT NULL,
	taker_side      TEXT NOT NULL,
	price           NUMERIC NOT NULL,
	quantity        BIGINT NOT NULL,
	maker_remaining BIGINT NOT NULL,
	executed_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS executions_symbol_idx ON executions (symbol, sequence_id);
`

const orderColumns = `order_id, client_id, symbol, side, kind, quantity, price,
	filled_quantity, remaining_quantity, status, sequence_id, created_at, updated_at`

// PostgresLedger stores orders and executions in PostgreSQL.
type PostgresLedger struct {
	db *sql.DB
}

// OpenPostgres opens a lib/pq connection pool for dsn.
func OpenPostgres(dsn string) (*sql.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func startSpan(ctx context.Context, name, operation, table string) (context.Context, trace.Span) {
	return dbTracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", table),
		))
}

// Migrate creates the ledger tables if they do not exist.
func (r *PostgresLedger) Migrate(ctx context.Context) error {
	ctx, span := startSpan(ctx, "postgres.migrate", "CREATE", "orders,executions")
	defer span.End()

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return nil
}

func (r *PostgresLedger) CreateOrder(ctx context.Context, o *domain.OrderRecord) error {
	ctx, span := startSpan(ctx, "postgres.insert_order", "INSERT", "orders")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", o.OrderID))

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, o.OrderID, o.ClientID, o.Symbol, string(o.Side), string(o.Kind), o.Quantity, o.Price,
		o.FilledQuantity, o.RemainingQuantity, string(o.Status), int64(o.SequenceID), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert order %s: %w", o.OrderID, err)
	}
	return nil
}

func (r *PostgresLedger) UpdateOrder(ctx context.Context, o *domain.OrderRecord) error {
	ctx, span := startSpan(ctx, "postgres.update_order", "UPDATE", "orders")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", o.OrderID))

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET price = $2, filled_quantity = $3, remaining_quantity = $4, status = $5, sequence_id = $6, updated_at = $7
		WHERE order_id = $1
	`, o.OrderID, o.Price, o.FilledQuantity, o.RemainingQuantity, string(o.Status), int64(o.SequenceID), o.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update order %s: %w", o.OrderID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("order %s: %w", o.OrderID, domain.ErrOrderNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.OrderRecord, error) {
	var (
		o                  domain.OrderRecord
		side, kind, status string
		seq                int64
	)
	err := row.Scan(&o.OrderID, &o.ClientID, &o.Symbol, &side, &kind, &o.Quantity, &o.Price,
		&o.FilledQuantity, &o.RemainingQuantity, &status, &seq, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Side = domain.Side(side)
	o.Kind = domain.OrderKind(kind)
	o.Status = domain.OrderStatus(status)
	o.SequenceID = uint64(seq)
	return &o, nil
}

func (r *PostgresLedger) GetOrder(ctx context.Context, id string) (*domain.OrderRecord, error) {
	ctx, span := startSpan(ctx, "postgres.get_order", "SELECT", "orders")
	defer span.End()

	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return o, nil
}

// buildListQuery renders the SELECT for filter with positional arguments.
func buildListQuery(filter OrderFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.Symbol != "" {
		args = append(args, filter.Symbol)
		where = append(where, fmt.Sprintf("symbol = $%d", len(args)))
	}
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, sequence_id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (r *PostgresLedger) ListOrders(ctx context.Context, filter OrderFilter) ([]*domain.OrderRecord, error) {
	ctx, span := startSpan(ctx, "postgres.list_orders", "SELECT", "orders")
	defer span.End()

	query, args := buildListQuery(filter)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.OrderRecord, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (r *PostgresLedger) RecordExecutions(ctx context.Context, executions []*domain.Execution) error {
	if len(executions) == 0 {
		return nil
	}
	ctx, span := startSpan(ctx, "postgres.insert_executions", "INSERT", "executions")
	defer span.End()
	span.SetAttributes(attribute.Int("executions.count", len(executions)))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO executions (exec_id, symbol, sequence_id, maker_id, taker_id, maker_order_id,
			taker_order_id, taker_side, price, quantity, maker_remaining, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (exec_id) DO NOTHING
	`)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer stmt.Close()

	for _, e := range executions {
		_, err := stmt.ExecContext(ctx, e.ExecID, e.Symbol, int64(e.SequenceID), e.MakerID, e.TakerID,
			e.MakerOrderID, e.TakerOrderID, string(e.TakerSide), e.Price, e.Quantity, e.MakerRemaining, e.Timestamp)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to insert execution %s: %w", e.ExecID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (r *PostgresLedger) Close() error {
	return r.db.Close()
}
