package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusBadRequest},
		{InsufficientFunds, http.StatusBadRequest},
		{Forbidden, http.StatusForbidden},
		{Validation, http.StatusUnprocessableEntity},
		{Unavailable, http.StatusServiceUnavailable},
		{Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.kind))
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, NotFound, KindOf(NotFoundf("profile %s not found", "u1")))
	assert.Equal(t, Validation, KindOf(Validationf("rating out of range")))

	wrapped := fmt.Errorf("handler: %w", Conflictf("already reviewed"))
	assert.Equal(t, Conflict, KindOf(wrapped), "KindOf must see through wrapping")

	assert.Equal(t, Internal, KindOf(errors.New("sql: connection reset")),
		"unclassified errors default to internal")
	assert.True(t, IsKind(wrapped, Conflict))
	assert.False(t, IsKind(nil, Internal))
}

func TestDetailNeverLeaksCauses(t *testing.T) {
	cause := errors.New("pq: deadlock detected")
	err := Wrap(Internal, cause, "store profile %s", "u1")

	assert.Equal(t, "store profile u1", Detail(err),
		"the wrapped detail is what callers see")
	assert.ErrorIs(t, err, cause, "the cause stays reachable for logs")

	assert.Equal(t, "internal server error", Detail(errors.New("raw failure")),
		"non-apperr errors get the generic detail")
}

func TestInsufficientFundsNamesAmounts(t *testing.T) {
	err := InsufficientFundsf(120, 80)
	require.Equal(t, InsufficientFunds, KindOf(err))
	assert.Equal(t, "insufficient points: need 120, have 80", err.Detail)
}

func TestIsMatchesByKind(t *testing.T) {
	assert.ErrorIs(t, NotFoundf("swap missing"), NotFoundf(""))
	assert.NotErrorIs(t, NotFoundf("swap missing"), Forbiddenf(""))
}
