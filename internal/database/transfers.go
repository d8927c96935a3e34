package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"monallopay/internal/models"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("database: record not found")

// Currency filter values meaning "every asset". The history UI sends the
// label of its first dropdown entry in either language.
var allCurrencies = map[string]bool{
	"":               true,
	"All Currencies": true,
	"所有币种":           true,
}

// SaveTransfer stores rec. Addresses are stored lowercase. Saving a tx hash
// twice is a no-op and reports created=false with the stored row.
func (s *Store) SaveTransfer(ctx context.Context, rec models.TransferRecord) (models.TransferRecord, bool, error) {
	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return rec, false, fmt.Errorf("transfer amount %q: %w", rec.Amount, err)
	}
	rec.Sender = strings.ToLower(rec.Sender)
	rec.Recipient = strings.ToLower(rec.Recipient)
	rec.TxHash = strings.ToLower(rec.TxHash)
	rec.Timestamp = rec.Timestamp.UTC()

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO transfers (amount, asset, sender, recipient, tx_hash, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tx_hash) DO NOTHING
		RETURNING id
	`, amount, rec.Asset, rec.Sender, rec.Recipient, rec.TxHash, rec.Timestamp).Scan(&rec.ID)
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := s.transferByHash(ctx, rec.TxHash)
		if err != nil {
			return rec, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("insert transfer: %w", err)
	}
	rec.Amount = amount.String()
	return rec, true, nil
}

func (s *Store) transferByHash(ctx context.Context, txHash string) (models.TransferRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, amount, asset, sender, recipient, tx_hash, timestamp
		FROM transfers WHERE tx_hash = $1
	`, txHash)
	rec, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	return rec, err
}

// ListTransfers returns one page of transfers sent or received by
// q.UserAddress, newest first. An empty UserAddress yields an empty page.
func (s *Store) ListTransfers(ctx context.Context, q models.TransferQuery) (models.TransferPage, error) {
	page := models.TransferPage{
		Transactions: []models.TransferRecord{},
		Pagination:   models.NewPagination(q.Page, q.Limit, 0),
	}
	if strings.TrimSpace(q.UserAddress) == "" {
		return page, nil
	}

	where, args := transferFilter(q)

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transfers WHERE "+where, args...,
	).Scan(&total); err != nil {
		return page, fmt.Errorf("count transfers: %w", err)
	}
	page.Pagination = models.NewPagination(q.Page, q.Limit, total)
	if total == 0 {
		return page, nil
	}

	args = append(args, q.Limit, q.Offset())
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, amount, asset, sender, recipient, tx_hash, timestamp
		FROM transfers
		WHERE %s
		ORDER BY timestamp DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return page, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanTransfer(rows)
		if err != nil {
			return page, err
		}
		page.Transactions = append(page.Transactions, rec)
	}
	return page, rows.Err()
}

// transferFilter builds the WHERE clause for q with positional arguments.
func transferFilter(q models.TransferQuery) (string, []interface{}) {
	args := []interface{}{strings.ToLower(strings.TrimSpace(q.UserAddress))}
	conds := []string{"(sender = $1 OR recipient = $1)"}

	if search := strings.TrimSpace(q.Search); search != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(search))+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(sender LIKE $%d OR recipient LIKE $%d OR tx_hash LIKE $%d)", n, n, n))
	}

	if currency := strings.TrimSpace(q.Currency); !allCurrencies[currency] {
		if asset, err := models.ParseAsset(currency); err == nil {
			currency = asset.String()
		}
		args = append(args, currency)
		conds = append(conds, fmt.Sprintf("asset = $%d", len(args)))
	}

	return strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransfer(row rowScanner) (models.TransferRecord, error) {
	var (
		rec    models.TransferRecord
		amount decimal.Decimal
	)
	if err := row.Scan(&rec.ID, &amount, &rec.Asset, &rec.Sender, &rec.Recipient, &rec.TxHash, &rec.Timestamp); err != nil {
		return rec, err
	}
	rec.Amount = amount.String()
	rec.Timestamp = rec.Timestamp.UTC()
	return rec, nil
}
