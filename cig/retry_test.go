package cig_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/agrilink/cig-engine/cig"
	"github.com/stretchr/testify/assert"
)

func TestRetry_RetriesConflictsOnly(t *testing.T) {
	conflict := &cig.ConflictError{RecordID: 1, Err: cig.ErrGroupFull}

	calls := 0
	err := cig.Retry(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return conflict
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	boom := errors.New("disk full")
	err = cig.Retry(context.Background(), 3, func() error {
		calls++
		return fmt.Errorf("write: %w", boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	err := cig.Retry(context.Background(), 2, func() error {
		calls++
		return &cig.ConflictError{Err: cig.ErrDuplicateGroup}
	})
	assert.True(t, cig.IsRetryable(err))
	assert.Equal(t, 3, calls)
}
