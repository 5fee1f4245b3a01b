package ports

import (
	"context"
	"errors"

	"despesas/internal/core"
)

// Ports for the expense data sources: the remote API client, SQLite and
// the in-memory store all implement Repository.
type (
	ExpenseReader interface {
		// ListExpenses returns expenses newest first, restricted to the
		// given categories when any are passed.
		ListExpenses(ctx context.Context, categories ...string) ([]core.Expense, error)
		GetExpense(ctx context.Context, id int64) (core.Expense, error)
	}

	ExpenseWriter interface {
		CreateExpense(ctx context.Context, in core.ExpenseInput) (id int64, err error)
		UpdateExpense(ctx context.Context, id int64, in core.ExpenseInput) error
		DeleteExpense(ctx context.Context, id int64) error
	}

	// CategoryStore manages the flat list of category names.
	CategoryStore interface {
		ListCategories(ctx context.Context) ([]string, error)
		CreateCategory(ctx context.Context, name string) error
	}

	Repository interface {
		ExpenseReader
		ExpenseWriter
		CategoryStore
	}

	// Pinger is implemented by sources that can report their health.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)

var (
	ErrExpenseNotFound = errors.New("expense not found")
	ErrCategoryExists  = errors.New("category already exists")
	ErrUnknownCategory = errors.New("unknown category")
	ErrEmptyCategory   = errors.New("category name is required")
)
