// Package sqlite is the SQLite-backed store. Batches are written in a
// single transaction and category deletion is guarded inside it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"

	"scontrini/internal/core"
	"scontrini/internal/store"

	_ "modernc.org/sqlite"
)

var _ store.Store = (*Repository)(nil)

type Repository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewRepository opens the database at dbPath, applies migrations and seeds
// the categories when the table is empty.
func NewRepository(ctx context.Context, dbPath string, seed []core.Category) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single writer avoids SQLITE_BUSY on concurrent batches.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, err
	}

	r := &Repository{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
	if err := r.seed(ctx, seed); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) seed(ctx context.Context, seed []core.Category) error {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories").Scan(&n); err != nil {
		return fmt.Errorf("count categories: %w", err)
	}
	if n > 0 || len(seed) == 0 {
		return nil
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range seed {
			q, args, err := r.sb.Insert("categories").
				Columns("id", "name", "icon").
				Values(c.ID, c.Name, c.Icon).
				Suffix("ON CONFLICT DO NOTHING").
				ToSql()
			if err != nil {
				return fmt.Errorf("build seed query: %w", err)
			}
			if _, err := tx.ExecContext(ctx, q, args...); err != nil {
				return fmt.Errorf("seed category %s: %w", c.ID, err)
			}
		}
		slog.InfoContext(ctx, "Seeded categories", "count", len(seed))
		return nil
	})
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *Repository) categories(ctx context.Context, q queryer) ([]core.Category, error) {
	query, args, err := r.sb.Select("id", "name", "icon").From("categories").OrderBy("rowid").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build categories query: %w", err)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	cats := []core.Category{}
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (r *Repository) GetCategories(ctx context.Context) ([]core.Category, error) {
	return r.categories(ctx, r.db)
}

// nameTaken reports whether another category already uses name.
func (r *Repository) nameTaken(ctx context.Context, tx *sql.Tx, name, exceptID string) (bool, error) {
	q, args, err := r.sb.Select("COUNT(*)").From("categories").
		Where("name = ? COLLATE NOCASE", name).
		Where(sq.NotEq{"id": exceptID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build duplicate query: %w", err)
	}
	var n int
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check duplicate category: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) AddCategory(ctx context.Context, c core.Category) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		taken, err := r.nameTaken(ctx, tx, c.Name, "")
		if err != nil {
			return err
		}
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories WHERE id = ?", c.ID).Scan(&n); err != nil {
			return fmt.Errorf("check category id: %w", err)
		}
		if taken || n > 0 {
			return fmt.Errorf("%w: %s", store.ErrDuplicateCategory, c.Name)
		}
		q, args, err := r.sb.Insert("categories").Columns("id", "name", "icon").Values(c.ID, c.Name, c.Icon).ToSql()
		if err != nil {
			return fmt.Errorf("build insert category: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert category: %w", err)
		}
		return nil
	})
}

func (r *Repository) UpdateCategory(ctx context.Context, c core.Category) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		taken, err := r.nameTaken(ctx, tx, c.Name, c.ID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %s", store.ErrDuplicateCategory, c.Name)
		}
		q, args, err := r.sb.Update("categories").
			Set("name", c.Name).
			Set("icon", c.Icon).
			Where(sq.Eq{"id": c.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update category: %w", err)
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("update category: %w", err)
		}
		return expectOne(res, "category", c.ID)
	})
}

func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var refs int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM expenses WHERE category_id = ?", id).Scan(&refs); err != nil {
			return fmt.Errorf("count category references: %w", err)
		}
		if refs > 0 {
			return store.ErrCategoryInUse
		}
		q, args, err := r.sb.Delete("categories").Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete category: %w", err)
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		return expectOne(res, "category", id)
	})
}

var expenseColumns = []string{"id", "description", "amount_cents", "category_id", "occurred_at", "receipt_url"}

func scanExpense(sc interface{ Scan(...any) error }) (core.Expense, error) {
	var (
		e  core.Expense
		ns int64
	)
	if err := sc.Scan(&e.ID, &e.Description, &e.Amount.Cents, &e.CategoryID, &ns, &e.ReceiptURL); err != nil {
		return core.Expense{}, err
	}
	e.Date = time.Unix(0, ns).UTC()
	return e, nil
}

func (r *Repository) ListExpenses(ctx context.Context, f store.ExpenseFilter) ([]core.Expense, error) {
	sel := r.sb.Select(expenseColumns...).From("expenses").OrderBy("occurred_at DESC", "id ASC")
	if !f.Range.From.IsZero() {
		sel = sel.Where(sq.GtOrEq{"occurred_at": core.StartOfDay(f.Range.From).UnixNano()})
	}
	if !f.Range.To.IsZero() {
		sel = sel.Where(sq.Lt{"occurred_at": core.StartOfDay(f.Range.To).AddDate(0, 0, 1).UnixNano()})
	}
	if f.CategoryID != "" {
		sel = sel.Where(sq.Eq{"category_id": f.CategoryID})
	}
	if len(f.IDs) > 0 {
		sel = sel.Where(sq.Eq{"id": f.IDs})
	}
	q, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list expenses: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	q, args, err := r.sb.Select(expenseColumns...).From("expenses").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build get expense: %w", err)
	}
	e, err := scanExpense(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// AddExpensesBatch validates against the categories read inside the same
// transaction and inserts all rows with one statement.
func (r *Repository) AddExpensesBatch(ctx context.Context, drafts []core.ExpenseDraft) ([]core.Expense, error) {
	var created []core.Expense
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		cats, err := r.categories(ctx, tx)
		if err != nil {
			return err
		}
		created, err = store.Materialize(drafts, cats)
		if err != nil {
			return err
		}
		ins := r.sb.Insert("expenses").Columns(expenseColumns...)
		for _, e := range created {
			ins = ins.Values(e.ID, e.Description, e.Amount.Cents, e.CategoryID, e.Date.UnixNano(), e.ReceiptURL)
		}
		q, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("build insert expenses: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert expenses: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Expenses saved to SQLite", "count", len(created))
	return created, nil
}

func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		cats, err := r.categories(ctx, tx)
		if err != nil {
			return err
		}
		if err := e.Validate(cats); err != nil {
			return err
		}
		q, args, err := r.sb.Update("expenses").
			Set("description", e.Description).
			Set("amount_cents", e.Amount.Cents).
			Set("category_id", e.CategoryID).
			Set("occurred_at", e.Date.UnixNano()).
			Set("receipt_url", e.ReceiptURL).
			Where(sq.Eq{"id": e.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update expense: %w", err)
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("update expense: %w", err)
		}
		return expectOne(res, "expense", e.ID)
	})
}

func (r *Repository) DeleteExpense(ctx context.Context, id string) error {
	q, args, err := r.sb.Delete("expenses").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete expense: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return expectOne(res, "expense", id)
}

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}
