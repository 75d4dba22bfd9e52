package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"vibe-drinks/services"
	"vibe-drinks/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	c, rec := newTestContext()
	err := fmt.Errorf("load order: %w", errors.New("pq: password authentication failed for user \"vibe\""))

	respondError(c, err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")
	require.Len(t, c.Errors, 1)
	assert.ErrorIs(t, c.Errors[0].Err, err)
}

func TestRespondErrorStatusCodes(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound},
		{&services.ValidationError{Field: "items", Message: "order has no items"}, http.StatusBadRequest},
		{services.ErrDeliveryUnresolved, http.StatusUnprocessableEntity},
		{services.ErrFeeAlreadyAdjusted, http.StatusConflict},
		{store.ErrDuplicate, http.StatusConflict},
		{services.ErrInvalidCredentials, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		c, rec := newTestContext()
		respondError(c, tt.err)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
		assert.Empty(t, c.Errors, tt.err.Error())
	}
}
