package utils

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"dbaccountsync/pkg/errs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: instance 4", errs.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: bad", errs.ErrValidationFailed), http.StatusBadRequest},
		{errs.ErrUnsupportedDialect, http.StatusBadRequest},
		{errs.ErrLockNotAcquired, http.StatusConflict},
		{errs.ErrNoRules, http.StatusUnprocessableEntity},
		{fmt.Errorf("task x: %w", errs.ErrTaskTimeout), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: %w", errs.ErrConnectFailed, errors.New("refused")), http.StatusBadGateway},
		{errs.ErrPersistence, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestErrorResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ErrorResponse(c, fmt.Errorf("%w: session abc", errs.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found: session abc"}`, w.Body.String())
}

func TestParseID(t *testing.T) {
	id, err := ParseID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	for _, raw := range []string{"", "0", "-1", "abc", "1.5"} {
		_, err := ParseID(raw)
		assert.ErrorIs(t, err, errs.ErrValidationFailed, raw)
	}

	assert.Nil(t, OptionalID(0))
	assert.Equal(t, uint(3), *OptionalID(3))
}

func TestValidateStruct(t *testing.T) {
	type req struct {
		DBType   string `validate:"required,dbtype"`
		SyncType string `validate:"omitempty,synctype"`
	}
	assert.NoError(t, ValidateStruct(&req{DBType: "oracle", SyncType: "manual_batch"}))
	assert.ErrorIs(t, ValidateStruct(&req{DBType: "db2"}), errs.ErrValidationFailed)
	assert.ErrorIs(t, ValidateStruct(&req{DBType: "mysql", SyncType: "hourly"}), errs.ErrValidationFailed)
	assert.ErrorIs(t, ValidateStruct(&req{}), errs.ErrValidationFailed)
}
