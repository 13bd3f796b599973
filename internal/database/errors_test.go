package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorClass
	}{
		{nil, ErrorClassPermanent},
		{&pq.Error{Code: "40001"}, ErrorClassSerialization},
		{fmt.Errorf("wrapped: %w", &pq.Error{Code: "40P01"}), ErrorClassDeadlock},
		{&pq.Error{Code: "55P03"}, ErrorClassTransient},
		{&pq.Error{Code: "23505"}, ErrorClassPermanent},
		{sql.ErrNoRows, ErrorClassPermanent},
		{errors.New("boom"), ErrorClassPermanent},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyError(tc.err), "%v", tc.err)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: "40001"}))
	assert.False(t, IsRetryable(&pq.Error{Code: "23505"}))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert order: %w", &pq.Error{Code: "23505", Constraint: "orders_order_number_key"})

	assert.True(t, IsUniqueViolation(err, "orders_order_number_key"))
	assert.True(t, IsUniqueViolation(err, ""))
	assert.False(t, IsUniqueViolation(err, "users_email_key"))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}, ""))
	assert.True(t, IsForeignKeyViolation(&pq.Error{Code: "23503"}))
}

func TestJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		j := jitter(200 * time.Millisecond)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, 50*time.Millisecond)
	}
	assert.Equal(t, time.Duration(0), jitter(0))
}
