package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"flightops/internal/logbook"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB records committed ledger events for reporting. It is an append-only sink; the
// ledger's system of record is the SQL backend.
type ClickHouseDB struct {
	conn driver.Conn
}

// Conn returns the underlying ClickHouse connection for direct queries.
func (d *ClickHouseDB) Conn() driver.Conn {
	return d.conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ledger event table.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	err := d.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS ledger_events (
		event_type      LowCardinality(String),
		logbook_id      String,
		entry_id        String,
		registration    LowCardinality(String),
		year            UInt16,
		month           UInt8,
		delta           Decimal(12, 2),
		current_hours   Decimal(12, 2),
		allowance       Decimal(12, 2),
		at              DateTime64(3),
		recorded_at     DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY (year, month)
	ORDER BY (registration, at, logbook_id)`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const insertLedgerEvent = `INSERT INTO ledger_events (event_type, logbook_id, entry_id, registration, year, month, delta, current_hours, allowance, at)`

// Publish implements logbook.Publisher.
func (d *ClickHouseDB) Publish(ctx context.Context, ev logbook.Event) error {
	return d.InsertBatch(ctx, []logbook.Event{ev})
}

// InsertBatch stores several ledger events in one round trip.
func (d *ClickHouseDB) InsertBatch(ctx context.Context, events []logbook.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, insertLedgerEvent)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, ev := range events {
		err := batch.Append(string(ev.Type), ev.LogbookID, ev.EntryID, ev.Registration,
			uint16(ev.Year), uint8(ev.Month), ev.Delta, ev.CurrentHours, ev.Allowance, ev.At)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// MonthlyHours is one aircraft's activity in a calendar month as recorded by the event stream.
type MonthlyHours struct {
	Registration string          `json:"registration"`
	Hours        decimal.Decimal `json:"hours"`
	Flights      int64           `json:"flights"`
	Allowance    decimal.Decimal `json:"allowance"`
	CurrentHours decimal.Decimal `json:"current_hours"`
}

// MonthlyHours rolls the ledger events of a month up per aircraft. Deletions cancel the
// appends they reverse, so the result matches the ledger's current state.
func (d *ClickHouseDB) MonthlyHours(ctx context.Context, month, year int) ([]MonthlyHours, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT
			registration,
			sum(delta),
			sum(multiIf(event_type = 'entry_appended', 1, event_type = 'entry_deleted', -1, 0)),
			sum(allowance),
			argMax(current_hours, at)
		FROM ledger_events
		WHERE year = ? AND month = ?
		GROUP BY registration
		ORDER BY registration
	`, uint16(year), uint8(month))
	if err != nil {
		return nil, fmt.Errorf("query monthly hours: %w", err)
	}
	defer rows.Close()

	var out []MonthlyHours
	for rows.Next() {
		var m MonthlyHours
		if err := rows.Scan(&m.Registration, &m.Hours, &m.Flights, &m.Allowance, &m.CurrentHours); err != nil {
			return nil, fmt.Errorf("scan monthly hours: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monthly hours: %w", err)
	}
	return out, nil
}

// CountEvents returns how many ledger events were recorded for a period.
func (d *ClickHouseDB) CountEvents(ctx context.Context, month, year int) (uint64, error) {
	var count uint64
	err := d.conn.QueryRow(ctx, "SELECT count() FROM ledger_events WHERE year = ? AND month = ?",
		uint16(year), uint8(month)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count ledger events: %w", err)
	}
	return count, nil
}
