package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"pawfeed/internal/docstore"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestTranslate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"record not found", gorm.ErrRecordNotFound, docstore.ErrNotFound},
		{"duplicated key", gorm.ErrDuplicatedKey, docstore.ErrAlreadyExists},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, docstore.ErrConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, docstore.ErrConflict},
		{"unique violation", &pgconn.PgError{Code: "23505"}, docstore.ErrAlreadyExists},
		{"connection failure", &pgconn.PgError{Code: "08006"}, docstore.ErrUnavailable},
		{"bad conn", driver.ErrBadConn, docstore.ErrUnavailable},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), docstore.ErrConflict},
		{"sentinel passes through", docstore.ErrConflict, docstore.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, translate(tt.err), tt.want)
		})
	}

	other := errors.New("syntax error")
	assert.Equal(t, other, translate(other))
	assert.NoError(t, translate(nil))
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return New(db, nil), mock
}

func TestStore_PostgresOutageIsUnavailable(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "posts"`).
		WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

	_, err := s.GetPost(context.Background(), "p1")
	assert.ErrorIs(t, err, docstore.ErrUnavailable)
	assert.True(t, docstore.IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_PostgresSerializationFailureIsConflict(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "posts"`).
		WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	mock.ExpectRollback()

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		_, err := tx.GetPost("p1")
		return err
	})
	assert.ErrorIs(t, err, docstore.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
