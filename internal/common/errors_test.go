package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserError(t *testing.T) {
	err := NewUserError("scenario not found", ErrNotFound)

	assert.Equal(t, "scenario not found: not found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "scenario not found", UserMessage(err))

	wrapped := fmt.Errorf("loading: %w", err)
	assert.Equal(t, "scenario not found", UserMessage(wrapped))
}

func TestUserMessage_PlainError(t *testing.T) {
	assert.Equal(t, "disk full", UserMessage(errors.New("disk full")))
	assert.Equal(t, "no cause", NewUserError("no cause", nil).Error())
}
