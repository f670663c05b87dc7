// Package postgres is the PostgreSQL-backed store built on a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"scontrini/internal/core"
	"scontrini/internal/store"
)

var _ store.Store = (*Repository)(nil)

type Repository struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

// NewRepository connects, migrates and seeds categories into an empty table.
func NewRepository(ctx context.Context, dsn string, seed []core.Category) (*Repository, error) {
	if err := RunMigrations(dsn); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &Repository{pool: pool, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
	if err := r.seed(ctx, seed); err != nil {
		pool.Close()
		return nil, err
	}
	slog.InfoContext(ctx, "Database connection established", "host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)
	return r, nil
}

func (r *Repository) seed(ctx context.Context, seed []core.Category) error {
	var n int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM categories").Scan(&n); err != nil {
		return fmt.Errorf("count categories: %w", err)
	}
	if n > 0 || len(seed) == 0 {
		return nil
	}
	ins := r.sb.Insert("categories").Columns("id", "name", "icon")
	for _, c := range seed {
		ins = ins.Values(c.ID, c.Name, c.Icon)
	}
	q, args, err := ins.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build seed query: %w", err)
	}
	if _, err := r.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	return nil
}

func (r *Repository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) categories(ctx context.Context, q querier, lock bool) ([]core.Category, error) {
	sel := r.sb.Select("id", "name", "icon").From("categories").OrderBy("position")
	if lock {
		sel = sel.Suffix("FOR SHARE")
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build categories query: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
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
	return r.categories(ctx, r.pool, false)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *Repository) AddCategory(ctx context.Context, c core.Category) error {
	q, args, err := r.sb.Insert("categories").Columns("id", "name", "icon").Values(c.ID, c.Name, c.Icon).ToSql()
	if err != nil {
		return fmt.Errorf("build insert category: %w", err)
	}
	if _, err := r.pool.Exec(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrDuplicateCategory, c.Name)
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *Repository) UpdateCategory(ctx context.Context, c core.Category) error {
	q, args, err := r.sb.Update("categories").
		Set("name", c.Name).
		Set("icon", c.Icon).
		Where(sq.Eq{"id": c.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update category: %w", err)
	}
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrDuplicateCategory, c.Name)
		}
		return fmt.Errorf("update category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("category %s: %w", c.ID, store.ErrNotFound)
	}
	return nil
}

func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		var refs int
		if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM expenses WHERE category_id = $1", id).Scan(&refs); err != nil {
			return fmt.Errorf("count category references: %w", err)
		}
		if refs > 0 {
			return store.ErrCategoryInUse
		}
		q, args, err := r.sb.Delete("categories").Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete category: %w", err)
		}
		tag, err := tx.Exec(ctx, q, args...)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return store.ErrCategoryInUse
			}
			return fmt.Errorf("delete category: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("category %s: %w", id, store.ErrNotFound)
		}
		return nil
	})
}

var expenseColumns = []string{"id", "description", "amount_cents", "category_id", "occurred_at", "receipt_url"}

func scanExpense(row pgx.Row) (core.Expense, error) {
	var e core.Expense
	if err := row.Scan(&e.ID, &e.Description, &e.Amount.Cents, &e.CategoryID, &e.Date, &e.ReceiptURL); err != nil {
		return core.Expense{}, err
	}
	e.Date = e.Date.UTC()
	return e, nil
}

func (r *Repository) ListExpenses(ctx context.Context, f store.ExpenseFilter) ([]core.Expense, error) {
	sel := r.sb.Select(expenseColumns...).From("expenses").OrderBy("occurred_at DESC", "id ASC")
	if !f.Range.From.IsZero() {
		sel = sel.Where(sq.GtOrEq{"occurred_at": core.StartOfDay(f.Range.From)})
	}
	if !f.Range.To.IsZero() {
		sel = sel.Where(sq.Lt{"occurred_at": core.StartOfDay(f.Range.To).AddDate(0, 0, 1)})
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
	rows, err := r.pool.Query(ctx, q, args...)
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
	e, err := scanExpense(r.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// AddExpensesBatch share-locks the category rows so none can disappear
// between validation and insert.
func (r *Repository) AddExpensesBatch(ctx context.Context, drafts []core.ExpenseDraft) ([]core.Expense, error) {
	var created []core.Expense
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		cats, err := r.categories(ctx, tx, true)
		if err != nil {
			return err
		}
		created, err = store.Materialize(drafts, cats)
		if err != nil {
			return err
		}
		ins := r.sb.Insert("expenses").Columns(expenseColumns...)
		for _, e := range created {
			ins = ins.Values(e.ID, e.Description, e.Amount.Cents, e.CategoryID, e.Date, e.ReceiptURL)
		}
		q, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("build insert expenses: %w", err)
		}
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("insert expenses: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		cats, err := r.categories(ctx, tx, true)
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
			Set("occurred_at", e.Date).
			Set("receipt_url", e.ReceiptURL).
			Where(sq.Eq{"id": e.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update expense: %w", err)
		}
		tag, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("update expense: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("expense %s: %w", e.ID, store.ErrNotFound)
		}
		return nil
	})
}

func (r *Repository) DeleteExpense(ctx context.Context, id string) error {
	q, args, err := r.sb.Delete("expenses").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete expense: %w", err)
	}
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("expense %s: %w", id, store.ErrNotFound)
	}
	return nil
}
