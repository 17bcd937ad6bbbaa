package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"pawfeed/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestOpenSQLite_SingleConnection(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	assert.True(t, db.Config.TranslateError)
}

func TestConnect_RejectsNonSQLBackend(t *testing.T) {
	_, err := Connect(&config.Config{StoreBackend: config.BackendFirestore})
	assert.Error(t, err)
}

func TestCustomGormLogger_Trace(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	fc := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(context.Background(), time.Now(), fc, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String(), "record not found is not an error")

	l.Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	assert.Contains(t, buf.String(), "GORM query error")

	buf.Reset()
	l.Trace(context.Background(), time.Now().Add(-time.Second), fc, nil)
	assert.Contains(t, buf.String(), "GORM slow query")

	buf.Reset()
	silent := l.LogMode(logger.Silent)
	silent.Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	assert.Empty(t, buf.String())
}
