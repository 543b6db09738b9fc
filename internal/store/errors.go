package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jogardn/order-store/pkg/models"
	"github.com/lib/pq"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrInvalidStatus = models.ErrInvalidStatus
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidField  = errors.New("invalid field value")
)

// InternalError reports a storage failure that happened after validation,
// such as a constraint violation or a lost connection.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, describe(e.Err))
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func internalError(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

// describe adds the server-side detail that both Postgres drivers keep
// outside of Error().
func describe(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Detail != "" {
		return fmt.Sprintf("%s (%s)", pqErr.Message, pqErr.Detail)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Sprintf("%s (%s)", pgErr.Message, pgErr.Detail)
	}
	return err.Error()
}
