package errkind

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryRetriesTransientUntilSuccess(t *testing.T) {
	attempts := 0
	v, err := Retry(context.Background(), func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, New(Transient, "not yet")
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsImmediatelyOnNonTransient(t *testing.T) {
	attempts := 0
	_, err := Retry(context.Background(), func() (int, error) {
		attempts++
		return 0, New(Validation, "bad reference")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, Validation, e.Kind)
}

func TestRetrySurfacesAfterCeiling(t *testing.T) {
	attempts := 0
	_, err := Retry(context.Background(), func() (int, error) {
		attempts++
		return 0, New(Transient, "still failing")
	})
	require.Error(t, err)
	assert.Greater(t, attempts, 1)
}
