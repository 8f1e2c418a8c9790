package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	cause := errors.New("row missing")
	inner := Wrap(cause, CodeNotFound, "registration not found")
	outer := Wrap(inner, CodeInternal, "load failed")

	assert.True(t, HasCode(inner, CodeNotFound))
	assert.True(t, HasCode(outer, CodeNotFound))
	assert.True(t, HasCode(outer, CodeInternal))
	assert.False(t, HasCode(outer, CodeConflict))
	assert.False(t, HasCode(cause, CodeNotFound))
	assert.ErrorIs(t, outer, cause)
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeIllegalTransition, GetCode(New(CodeIllegalTransition, "x")))
	assert.Equal(t, CodeInsufficientRole, GetCode(fmt.Errorf("ctx: %w", New(CodeInsufficientRole, "x"))))
	assert.Equal(t, CodeInternal, GetCode(errors.New("plain")))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
}
