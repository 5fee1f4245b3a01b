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

	"github.com/shopspring/decimal"

	"despesas/internal/core"
	"despesas/internal/ports"

	_ "modernc.org/sqlite"
)

// timestamps are stored as fixed-width UTC text so that ORDER BY on the
// column matches chronological order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ ports.Repository = (*SQLiteRepository)(nil)
	_ ports.Pinger     = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

const expenseColumns = "id, valor, descricao, categoria, data_registro"

// ListExpenses returns expenses newest first, optionally limited to categories.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, categories ...string) ([]core.Expense, error) {
	query := "SELECT " + expenseColumns + " FROM expenses"
	var args []any
	var holders []string
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			args = append(args, c)
			holders = append(holders, "?")
		}
	}
	if len(holders) > 0 {
		query += " WHERE categoria IN (" + strings.Join(holders, ",") + ")"
	}
	query += " ORDER BY data_registro DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("list expenses: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE id = ?", id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ports.ErrExpenseNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return e, nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, in core.ExpenseInput) (int64, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return 0, err
	}
	ok, err := r.categoryExists(ctx, in.Categoria)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ports.ErrUnknownCategory
	}

	ts := r.now()
	if in.DataRegistro != nil {
		ts = *in.DataRegistro
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO expenses (valor, descricao, categoria, data_registro) VALUES (?, ?, ?, ?)",
		in.Valor.StringFixed(2), in.Descricao, in.Categoria, formatTS(ts))
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", id,
		"categoria", in.Categoria,
		"valor", in.Valor.StringFixed(2))
	return id, nil
}

// UpdateExpense replaces the fields of id. A nil DataRegistro keeps the
// stored timestamp.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, id int64, in core.ExpenseInput) error {
	if _, err := r.GetExpense(ctx, id); err != nil {
		return err
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return err
	}
	ok, err := r.categoryExists(ctx, in.Categoria)
	if err != nil {
		return err
	}
	if !ok {
		return ports.ErrUnknownCategory
	}

	if in.DataRegistro != nil {
		_, err = r.db.ExecContext(ctx,
			"UPDATE expenses SET valor = ?, descricao = ?, categoria = ?, data_registro = ? WHERE id = ?",
			in.Valor.StringFixed(2), in.Descricao, in.Categoria, formatTS(*in.DataRegistro), id)
	} else {
		_, err = r.db.ExecContext(ctx,
			"UPDATE expenses SET valor = ?, descricao = ?, categoria = ? WHERE id = ?",
			in.Valor.StringFixed(2), in.Descricao, in.Categoria, id)
	}
	if err != nil {
		return fmt.Errorf("update expense %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if n == 0 {
		return ports.ErrExpenseNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT name FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ports.ErrEmptyCategory
	}
	res, err := r.db.ExecContext(ctx, "INSERT OR IGNORE INTO categories (name) VALUES (?)", name)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrCategoryExists
	}
	return nil
}

func (r *SQLiteRepository) categoryExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM categories WHERE name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check category: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e            core.Expense
		valor, stamp string
	)
	if err := row.Scan(&e.ID, &valor, &e.Descricao, &e.Categoria, &stamp); err != nil {
		return core.Expense{}, err
	}
	v, err := decimal.NewFromString(valor)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d: bad valor %q: %w", e.ID, valor, err)
	}
	e.Valor = v
	ts, err := time.Parse(tsLayout, stamp)
	if err != nil {
		if ts, err = core.ParseTimestamp(stamp); err != nil {
			return core.Expense{}, fmt.Errorf("expense %d: %w", e.ID, err)
		}
	}
	e.DataRegistro = ts.UTC()
	return e, nil
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}
