package gateway

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jsguru-git/api/internal/errs"
)

// ConvertDBError maps driver errors onto the shared taxonomy. Constraint
// and connectivity failures become store errors with the cause preserved;
// no-rows becomes not-found. Never retried here.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: unique constraint violation: %s", errs.ErrStore, pgErr.Detail)
		case "23503":
			return fmt.Errorf("%w: foreign key constraint violation: %s", errs.ErrStore, pgErr.Detail)
		case "23514":
			return fmt.Errorf("%w: check constraint violation: %s", errs.ErrStore, pgErr.Detail)
		case "23502":
			return fmt.Errorf("%w: not null constraint violation: column %s", errs.ErrStore, pgErr.ColumnName)
		}
	}

	return fmt.Errorf("%w: %v", errs.ErrStore, err)
}
