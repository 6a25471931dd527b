package sqlutil

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := fmt.Errorf("insert vote: %w", &pgconn.PgError{Code: "23505", ConstraintName: "votes_poll_student_key"})
	assert.True(t, IsUniqueViolation(dup))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("23505")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestIsInvalidInput(t *testing.T) {
	assert.True(t, IsInvalidInput(&pgconn.PgError{Code: "22P02"}))
	assert.False(t, IsInvalidInput(&pgconn.PgError{Code: "23505"}))
}

func TestTimestamptzRoundTrip(t *testing.T) {
	assert.False(t, ToPgTimestamptz(nil).Valid)
	assert.Nil(t, FromPgTimestamptz(pgtype.Timestamptz{}))

	now := time.Now()
	got := FromPgTimestamptz(ToPgTimestamptz(&now))
	require.NotNil(t, got)
	assert.True(t, got.Equal(now))
}
