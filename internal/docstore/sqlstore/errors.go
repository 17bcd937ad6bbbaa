package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"pawfeed/internal/docstore"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL error codes the store maps onto the docstore sentinels.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
	pgConnectionClass      = "08"
)

// translate maps driver and gorm errors onto docstore sentinel errors,
// keeping the original as context.
func translate(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		docstore.ErrNotFound, docstore.ErrAlreadyExists, docstore.ErrConflict,
		docstore.ErrUnavailable, docstore.ErrUnsupportedQuery,
		context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return docstore.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", docstore.ErrAlreadyExists, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected:
			return fmt.Errorf("%w: %v", docstore.ErrConflict, err)
		case pgErr.Code == pgUniqueViolation:
			return fmt.Errorf("%w: %v", docstore.ErrAlreadyExists, err)
		case strings.HasPrefix(pgErr.Code, pgConnectionClass):
			return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}

	// SQLite reports writer contention as SQLITE_BUSY.
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", docstore.ErrAlreadyExists, err)
	}
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%w: %v", docstore.ErrConflict, err)
	}
	return err
}
