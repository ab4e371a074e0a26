// Package ledger stores the user's transactions. The sync engine only
// needs the earliest transaction date as its historical baseline.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/fxsync/internal/domain"
)

// Repository provides access to the transactions table
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "ledger_repo").Logger(),
	}
}

// EarliestDate returns the date of the oldest transaction across all
// currencies, or nil when the ledger is empty.
func (r *Repository) EarliestDate() (*time.Time, error) {
	var dateStr sql.NullString
	err := r.db.QueryRow("SELECT MIN(date) FROM transactions").Scan(&dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to get earliest transaction date: %w", err)
	}

	if !dateStr.Valid || dateStr.String == "" {
		return nil, nil
	}

	date, err := domain.ParseDay(dateStr.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction date %q: %w", dateStr.String, err)
	}

	return &date, nil
}

// Add stores a transaction and returns its id.
func (r *Repository) Add(txn domain.Transaction) (int64, error) {
	result, err := r.db.Exec(`
		INSERT INTO transactions (currency_id, amount, category, description, date)
		VALUES (?, ?, ?, ?, ?)
	`, txn.CurrencyID, txn.Amount, txn.Category, txn.Description, domain.FormatDay(txn.Date))
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get transaction id: %w", err)
	}

	return id, nil
}

// List returns transactions ordered by date descending, newest first.
func (r *Repository) List(limit int) ([]domain.Transaction, error) {
	rows, err := r.db.Query(`
		SELECT id, currency_id, amount, category, description, date
		FROM transactions
		ORDER BY date DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var txn domain.Transaction
		var dateStr string

		if err := rows.Scan(&txn.ID, &txn.CurrencyID, &txn.Amount, &txn.Category, &txn.Description, &dateStr); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		date, err := domain.ParseDay(dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse transaction date %q: %w", dateStr, err)
		}
		txn.Date = date

		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txns, nil
}
