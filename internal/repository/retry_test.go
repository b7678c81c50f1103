package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestWithRetry(t *testing.T) {
	connReset := errors.New("read tcp 127.0.0.1:5432: connection reset by peer")

	tests := []struct {
		name     string
		err      error
		attempts int
	}{
		{
			name:     "begin connection error is retried",
			err:      &beginError{err: connReset},
			attempts: 3,
		},
		{
			name:     "commit connection error is not retried",
			err:      fmt.Errorf("commit tx: %w", connReset),
			attempts: 1,
		},
		{
			name:     "serialization failure is retried",
			err:      fmt.Errorf("lock book: %w", &pgconn.PgError{Code: pgerrcode.SerializationFailure}),
			attempts: 3,
		},
		{
			name:     "deadlock is retried",
			err:      &pgconn.PgError{Code: pgerrcode.DeadlockDetected},
			attempts: 3,
		},
		{
			name:     "unique violation is not retried",
			err:      &pgconn.PgError{Code: pgerrcode.UniqueViolation},
			attempts: 1,
		},
		{
			name:     "begin error without connection failure is not retried",
			err:      &beginError{err: errors.New("pool closed")},
			attempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &PostgresRepository{delays: []time.Duration{time.Millisecond, time.Millisecond}}

			calls := 0
			err := r.withRetry(context.Background(), func() error {
				calls++
				return tt.err
			})

			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.attempts, calls)
		})
	}
}

func TestWithRetry_SucceedsAfterBeginFailure(t *testing.T) {
	r := &PostgresRepository{delays: []time.Duration{time.Millisecond}}

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &beginError{err: errors.New("dial tcp: connection refused")}
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}
