package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/log"

	_ "modernc.org/sqlite"
)

const transactionColumns = `id, user_id, title, description, category, amount, date,
	transaction_type, recurring, created_at, updated_at, template_id`

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteRepository)(nil)

// DSN builds the modernc connection string with the pragmas the repository relies on.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// CreateTransaction assigns a fresh id and timestamps, then inserts t.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t *core.Transaction) error {
	now := r.now().UTC()
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Title, t.Description, t.Category, t.Amount.String(),
		t.Date.UTC().UnixNano(), string(t.Type), t.Recurring,
		now.UnixNano(), now.UnixNano(), t.TemplateID)
	if err != nil {
		t.ID = ""
		return unavailable("insert transaction", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		log.NewFields().WithTransaction(*t).WithComponent(log.ComponentStorage).ToSlice()...)

	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, unavailable("get transaction", err)
	}
	return t, nil
}

// FindTransactions returns matches in insertion order.
func (r *SQLiteRepository) FindTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	where, args := filterClause(f)
	query := `SELECT ` + transactionColumns + ` FROM transactions` + where + ` ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("find transactions", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, unavailable("scan transaction", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate transactions", err)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET
		title = ?, description = ?, category = ?, amount = ?, date = ?,
		transaction_type = ?, recurring = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, t.Description, t.Category, t.Amount.String(), t.Date.UTC().UnixNano(),
		string(t.Type), t.Recurring, now.UnixNano(), t.ID)
	if err != nil {
		return unavailable("update transaction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("update transaction", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id, ownerID string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?
		RETURNING `+transactionColumns, id, ownerID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s for user %s: %w", id, ownerID, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, unavailable("delete transaction", err)
	}

	slog.DebugContext(ctx, "Transaction deleted from SQLite",
		log.NewFields().WithTransaction(t).WithComponent(log.ComponentStorage).ToSlice()...)
	return t, nil
}

// CreateUser assigns an id when u.ID is empty.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u *core.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, r.now().UTC().UnixNano())
	if err != nil {
		return unavailable("insert user", err)
	}
	return nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx, `SELECT id, name, email FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, unavailable("get user", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM transactions WHERE user_id = ? ORDER BY seq`, id)
	if err != nil {
		return core.User{}, unavailable("load transaction index", err)
	}
	defer rows.Close()

	for rows.Next() {
		var txID string
		if err := rows.Scan(&txID); err != nil {
			return core.User{}, unavailable("scan transaction index", err)
		}
		u.TransactionIndex = append(u.TransactionIndex, txID)
	}
	if err := rows.Err(); err != nil {
		return core.User{}, unavailable("iterate transaction index", err)
	}
	return u, nil
}

func filterClause(f TransactionFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.OwnerID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.Type != "" {
		conds = append(conds, "transaction_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Recurring != nil {
		conds = append(conds, "recurring = ?")
		args = append(args, *f.Recurring)
	}
	if f.TemplatesOnly {
		conds = append(conds, "template_id = ''")
	}
	if f.After != nil {
		conds = append(conds, "date > ?")
		args = append(args, f.After.UTC().UnixNano())
	}
	if f.From != nil {
		conds = append(conds, "date >= ?")
		args = append(args, f.From.UTC().UnixNano())
	}
	if f.To != nil {
		conds = append(conds, "date <= ?")
		args = append(args, f.To.UTC().UnixNano())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                          core.Transaction
		amount, txType             string
		date, createdAt, updatedAt int64
	)
	err := s.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Category, &amount,
		&date, &txType, &t.Recurring, &createdAt, &updatedAt, &t.TemplateID)
	if err != nil {
		return core.Transaction{}, err
	}

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	t.Type = core.TransactionType(txType)
	t.Date = time.Unix(0, date).UTC()
	t.CreatedAt = time.Unix(0, createdAt).UTC()
	t.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return t, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, core.ErrStoreUnavailable, err)
}
