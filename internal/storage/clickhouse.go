package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/wallet-tracker/internal/config"
)

// ClickHouseDB wraps the ClickHouse connection holding the ledger
// transaction log
type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying ClickHouse connection
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

// Ping checks if the database is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// EnsureLedgerSchema creates the ledger transaction table if it does not
// exist. ReplacingMergeTree keyed on the ledger row identity gives the
// write-once contract: duplicate inserts for the same txHash+tokenAddress
// collapse on merge, and reads use FINAL to observe the deduplicated view.
func (db *ClickHouseDB) EnsureLedgerSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ledger_transactions (
			user_id        String,
			wallet_address String,
			chain          LowCardinality(String),
			tx_hash        String,
			token_address  String,
			token_symbol   String,
			token_name     String,
			type           LowCardinality(String),
			amount         Float64,
			price_usd      Float64,
			value_usd      Float64,
			timestamp      DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree
		ORDER BY (user_id, wallet_address, chain, tx_hash, token_address)
	`
	if err := db.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create ledger_transactions table: %w", err)
	}
	return nil
}
