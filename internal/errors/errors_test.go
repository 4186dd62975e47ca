package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorWireCode(t *testing.T) {
	err := New(CodeIndexNotFound, "index \"foo\" is not registered")
	assert.Equal(t, "[INDEX_NOT_FOUND] index \"foo\" is not registered", err.Error())
	assert.Equal(t, CategoryQuery, err.Category)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := New(CodeInternal, "disk full")
	wrapped := Wrap(CodeIOFailed, cause)
	require.ErrorIs(t, wrapped, cause)
	assert.Equal(t, cause, wrapped.Unwrap())
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(assertErr{}))
	assert.Equal(t, CodeEmbedFailed, CodeOf(New(CodeEmbedFailed, "batch 3 failed")))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
