package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireTokenAcceptsValidToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	require.NoError(t, err)

	guard := RequireToken(string(hash))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/orders/pending", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireTokenRejectsWrongToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	require.NoError(t, err)

	guard := RequireToken(string(hash))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/orders/pending", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireTokenRejectsMissingHeader(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	require.NoError(t, err)

	guard := RequireToken(string(hash))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/orders/pending", nil)
	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireTokenDisabledWhenHashEmpty(t *testing.T) {
	guard := RequireToken("")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/orders/pending", nil)
	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
