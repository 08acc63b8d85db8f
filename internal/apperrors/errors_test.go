package apperrors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"consultgo/backend/internal/apperrors"

	"github.com/stretchr/testify/assert"
)

// TestCode_SurvivesWrapping verifies wrapped sentinels keep their protocol
// code, which is how every layer reports errors.
func TestCode_SurvivesWrapping(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{apperrors.ErrMissingCredential, "MISSING_CREDENTIAL"},
		{apperrors.ErrExpiredCredential, "EXPIRED_CREDENTIAL"},
		{apperrors.ErrInvalidCredential, "INVALID_CREDENTIAL"},
		{apperrors.ErrPrincipalNotFound, "PRINCIPAL_NOT_FOUND"},
		{apperrors.ErrNotFound, "NOT_FOUND"},
		{apperrors.ErrForbidden, "FORBIDDEN"},
		{apperrors.ErrInvalidTransition, "INVALID_TRANSITION"},
		{apperrors.ErrCapacityExceeded, "CAPACITY_EXCEEDED"},
		{apperrors.ErrValidation, "VALIDATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, apperrors.Code(tt.err))
			wrapped := fmt.Errorf("context: %w", tt.err)
			assert.Equal(t, tt.code, apperrors.Code(wrapped))
		})
	}

	assert.Equal(t, "INTERNAL", apperrors.Code(errors.New("disk on fire")))
}

// TestHTTPStatus verifies the REST mapping, in particular that transition and
// capacity failures are conflicts rather than bad requests.
func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(apperrors.ErrExpiredCredential))
	assert.Equal(t, http.StatusForbidden, apperrors.HTTPStatus(apperrors.ErrForbidden))
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatus(apperrors.ErrNotFound))
	assert.Equal(t, http.StatusConflict, apperrors.HTTPStatus(apperrors.ErrInvalidTransition))
	assert.Equal(t, http.StatusConflict, apperrors.HTTPStatus(apperrors.ErrCapacityExceeded))
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(apperrors.ErrValidation))
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(errors.New("anything else")))
}
