package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrorsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("refreshing count: %w", ErrSessionExpired)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.NotErrorIs(t, err, ErrNoToken)
}

func TestRequestError(t *testing.T) {
	var target *RequestError
	err := fmt.Errorf("toggling active: %w", &RequestError{Status: 409, Message: "already active"})

	require.True(t, errors.As(err, &target))
	assert.Equal(t, 409, target.Status)
	assert.Contains(t, target.Error(), "already active")
}
