package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsDomainCode(t *testing.T) {
	inner := Forbidden("not yours")
	wrapped := Wrap(fmt.Errorf("tx: %w", inner), ErrCodeInternal, "transaction failed")

	assert.Equal(t, ErrCodeForbidden, wrapped.Code)
	assert.Equal(t, "not yours", wrapped.Message)
}

func TestWrapForeignError(t *testing.T) {
	cause := stderrors.New("connection reset")
	wrapped := Wrap(cause, ErrCodeInternal, "failed to load application")

	assert.Equal(t, ErrCodeInternal, wrapped.Code)
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "connection reset")
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("boom")))
	assert.Equal(t, ErrCodeConflict, CodeOf(fmt.Errorf("outer: %w", Conflict("already processed"))))
	assert.True(t, Is(NotFound("application", 7), ErrCodeNotFound))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		InvalidInput("values", "required"):            http.StatusBadRequest,
		New(ErrCodeUnauthorized, "missing token"):     http.StatusUnauthorized,
		Forbidden("nope"):                             http.StatusForbidden,
		NotFound("application", 1):                    http.StatusNotFound,
		Conflict("already processed"):                 http.StatusConflict,
		InvalidState("approved"):                      http.StatusUnprocessableEntity,
		stderrors.New("boom"):                         http.StatusInternalServerError,
		Timeout("budget exceeded", stderrors.New("")): http.StatusServiceUnavailable,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}
