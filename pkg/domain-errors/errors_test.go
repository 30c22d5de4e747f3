package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"bankguard/pkg/platform/sentinel"
)

func TestWrapPreservesCause(t *testing.T) {
	err := Wrap(sentinel.ErrNotFound, CodeNotFound, "role not found")

	assert.True(t, Is(err, CodeNotFound))
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	assert.Equal(t, "role not found: not found", err.Error())
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", New(CodeConflict, "duplicate"))

	assert.Equal(t, CodeConflict, CodeOf(wrapped))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.False(t, HasCode(errors.New("plain"), CodeConflict))
}
