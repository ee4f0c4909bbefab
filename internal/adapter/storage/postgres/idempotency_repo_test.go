package postgres

import (
	"context"
	"testing"
	"time"

	"wallet-ledger-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := &domain.IdempotencyRecord{
		Key:       "derived-key",
		UserID:    uuid.New(),
		Operation: "TRANSFER",
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}

	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs(rec.Key, rec.UserID, rec.Operation, rec.CreatedAt, rec.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), rec)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Exists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	now := time.Now()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("derived-key", now).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), "derived-key", now)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_PurgeExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	now := time.Now()

	mock.ExpectExec("DELETE FROM idempotency_keys").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := repo.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
