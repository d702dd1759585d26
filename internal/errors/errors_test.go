package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	plain := NotFound("job not found")
	assert.Equal(t, "job not found", plain.Error())

	cause := stderrors.New("row scan failed")
	wrapped := Wrap(cause, ErrCodeInternal, "load job")
	assert.Equal(t, "load job: row scan failed", wrapped.Error())
	assert.Equal(t, cause, stderrors.Unwrap(wrapped))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "nothing %d", 1))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  *AppError
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Forbidden("x"), http.StatusForbidden},
		{Validation("x"), http.StatusBadRequest},
		{InvalidState("x"), http.StatusBadRequest},
		{InvalidTransition("x"), http.StatusBadRequest},
		{Unavailable("x"), http.StatusBadRequest},
		{Conflict("x"), http.StatusConflict},
		{Internal("x"), http.StatusInternalServerError},
		{&AppError{Code: ErrCodeTimeout}, http.StatusGatewayTimeout},
		{&AppError{Code: ErrCodeCanceled}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.HTTPStatus(), "code %s", tc.err.Code)
	}
}

func TestCodePredicates(t *testing.T) {
	assert.True(t, IsNotFound(NotFoundf("job %s not found", "j1")))
	assert.True(t, IsValidation(ValidationField("eta", "required")))
	assert.True(t, IsInvalidState(InvalidStatef("job is %s", "completed")))
	assert.True(t, IsInvalidTransition(InvalidTransition("x")))
	assert.True(t, IsForbidden(Forbiddenf("no access to %s", "j1")))
	assert.True(t, IsUnavailable(Unavailablef("no vehicle for %s", "v1")))
	assert.True(t, IsConflict(Conflict("revision mismatch")))
	assert.True(t, IsInternal(Internalf("boom %d", 1)))

	assert.False(t, IsNotFound(Conflict("x")))
	assert.False(t, IsConflict(stderrors.New("plain")))
	assert.False(t, IsConflict(nil))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	inner := Conflict("revision mismatch")
	outer := fmt.Errorf("update job: %w", inner)

	assert.True(t, IsConflict(outer))
	assert.Equal(t, ErrCodeConflict, GetCode(outer))
}

func TestGetCodeAndField(t *testing.T) {
	assert.Equal(t, ErrCodeValidation, GetCode(ValidationField("reason", "required")))
	assert.Equal(t, "reason", GetField(ValidationField("reason", "required")))

	require.Equal(t, ErrorCode(""), GetCode(stderrors.New("plain")))
	assert.Empty(t, GetField(stderrors.New("plain")))
}
