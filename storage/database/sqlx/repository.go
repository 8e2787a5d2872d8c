// Package sqlxrepos implements the repositories on postgres, mysql and sqlite.
// Queries use `?` placeholders and are rebound for the driver.
package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/trezcool/clubhub/core"
)

const defaultQueryTimeout = 10 * time.Second

// constraint violation codes
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"

	mysqlDuplicateEntry  = 1062
	mysqlNoReferencedRow = 1452
)

type repository struct {
	db      core.DB
	timeout time.Duration
}

func newRepository(db core.DB, timeout time.Duration) repository {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return repository{db: db, timeout: timeout}
}

// ctx bounds a call so that a stuck backend surfaces as core.ErrBackendUnavailable.
func (repo repository) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, repo.timeout)
}

func (repo repository) get(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return exec.GetContext(ctx, dest, exec.Rebind(query), args...)
}

func (repo repository) selekt(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return exec.SelectContext(ctx, dest, exec.Rebind(query), args...)
}

func (repo repository) exec(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (int64, error) {
	res, err := exec.ExecContext(ctx, exec.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// inTx runs fn in a transaction, committed when fn succeeds.
func (repo repository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// trapErr maps driver failures onto the core error taxonomy:
// no rows and foreign key violations become notFound, unique violations core.ErrConflict,
// and anything else core.ErrBackendUnavailable.
func trapErr(err error, notFound error, msg string) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return notFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return errors.WithMessage(core.ErrConflict, msg)
		case pqForeignKeyViolation:
			return notFound
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return errors.WithMessage(core.ErrConflict, msg)
		case mysqlNoReferencedRow:
			return notFound
		}
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return errors.WithMessage(core.ErrConflict, msg)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return notFound
		}
	}

	return core.Unavailable(errors.Wrap(err, msg))
}
