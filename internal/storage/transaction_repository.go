package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/wallet-tracker/internal/models"
	"github.com/wallet-tracker/internal/types"
)

// TransactionRepository handles the ClickHouse ledger transaction log
type TransactionRepository struct {
	conn driver.Conn
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(conn driver.Conn) *TransactionRepository {
	return &TransactionRepository{conn: conn}
}

// BatchInsert appends a batch of ledger rows. Re-inserting rows with the
// same identity is safe: the ReplacingMergeTree collapses them on merge.
func (r *TransactionRepository) BatchInsert(ctx context.Context, txs []*models.LedgerTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_transactions (
			user_id, wallet_address, chain, tx_hash, token_address,
			token_symbol, token_name, type, amount, price_usd, value_usd, timestamp
		)`)
	if err != nil {
		return fmt.Errorf("failed to prepare ledger batch: %w", err)
	}

	for _, tx := range txs {
		if err := batch.Append(
			tx.UserID,
			tx.WalletAddress,
			string(tx.Chain),
			tx.TxHash,
			tx.TokenAddress,
			tx.TokenSymbol,
			tx.TokenName,
			string(tx.Type),
			tx.Amount,
			tx.PriceUsd,
			tx.ValueUsd,
			tx.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to append ledger row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send ledger batch: %w", err)
	}
	return nil
}

// ListByWallet returns all ledger rows for a wallet ordered oldest first.
// FINAL forces the deduplicated view so replayed pages never double-count.
func (r *TransactionRepository) ListByWallet(ctx context.Context, userID, walletAddress string, chain types.ChainID) ([]*models.LedgerTransaction, error) {
	query := `
		SELECT
			user_id, wallet_address, chain, tx_hash, token_address,
			token_symbol, token_name, type, amount, price_usd, value_usd, timestamp
		FROM ledger_transactions FINAL
		WHERE user_id = ? AND wallet_address = ? AND chain = ?
		ORDER BY timestamp ASC`

	rows, err := r.conn.Query(ctx, query, userID, walletAddress, string(chain))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.LedgerTransaction
	for rows.Next() {
		var (
			tx    models.LedgerTransaction
			chain string
			typ   string
			ts    time.Time
		)
		if err := rows.Scan(
			&tx.UserID,
			&tx.WalletAddress,
			&chain,
			&tx.TxHash,
			&tx.TokenAddress,
			&tx.TokenSymbol,
			&tx.TokenName,
			&typ,
			&tx.Amount,
			&tx.PriceUsd,
			&tx.ValueUsd,
			&ts,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		tx.Chain = types.ChainID(chain)
		tx.Type = types.TxType(typ)
		tx.Timestamp = ts.UTC()
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger rows: %w", err)
	}
	return txs, nil
}
