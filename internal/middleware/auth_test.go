package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, accountID, role string, expiry time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account_id": accountID,
		"role":       role,
		"exp":        time.Now().Add(expiry).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	viper.Set("jwt.secret_key", testSecret)
	defer viper.Set("jwt.secret_key", "")

	var gotAccountID, gotRole string
	handler := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccountID, _ = r.Context().Value("accountID").(string)
		gotRole, _ = r.Context().Value("role").(string)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token populates caller identity", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/withdrawals", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, "acc1", "OWNER", time.Hour))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "acc1", gotAccountID)
		assert.Equal(t, "OWNER", gotRole)
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/withdrawals", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/withdrawals", nil)
		r.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/withdrawals", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, "acc1", "OWNER", -time.Hour))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token signed with the wrong key", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"account_id": "acc1",
			"role":       "ADMIN",
			"exp":        time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("some-other-secret"))
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/api/v1/withdrawals", nil)
		r.Header.Set("Authorization", "Bearer "+signed)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAdminOnly(t *testing.T) {
	viper.Set("jwt.secret_key", testSecret)
	defer viper.Set("jwt.secret_key", "")

	handler := AuthMiddleware(AdminOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	t.Run("owner is rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPatch, "/api/v1/withdrawals/wr1", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, "acc1", "OWNER", time.Hour))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin passes through", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPatch, "/api/v1/withdrawals/wr1", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, "admin1", "ADMIN", time.Hour))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
