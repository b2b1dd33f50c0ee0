package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.Claims, method jwt.SigningMethod, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "timesheet-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func TestVerifyAcceptsNumericSubject(t *testing.T) {
	v := NewVerifier(Config{Secret: testSecret, Issuer: "timesheet-test"})

	claims, err := v.Verify(signToken(t, validClaims("42"), jwt.SigningMethodHS256, testSecret))
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.False(t, claims.ExpiresAt.IsZero())
}

func TestVerifyRejections(t *testing.T) {
	v := NewVerifier(Config{Secret: testSecret, Issuer: "timesheet-test"})

	expired := validClaims("42")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongIssuer := validClaims("42")
	wrongIssuer.Issuer = "someone-else"
	noExpiry := validClaims("42")
	noExpiry.ExpiresAt = nil

	cases := map[string]string{
		"empty":          "",
		"garbage":        "not-a-jwt",
		"wrong secret":   signToken(t, validClaims("42"), jwt.SigningMethodHS256, "other"),
		"wrong method":   signToken(t, validClaims("42"), jwt.SigningMethodHS512, testSecret),
		"expired":        signToken(t, expired, jwt.SigningMethodHS256, testSecret),
		"wrong issuer":   signToken(t, wrongIssuer, jwt.SigningMethodHS256, testSecret),
		"missing expiry": signToken(t, noExpiry, jwt.SigningMethodHS256, testSecret),
		"text subject":   signToken(t, validClaims("alice"), jwt.SigningMethodHS256, testSecret),
		"zero subject":   signToken(t, validClaims("0"), jwt.SigningMethodHS256, testSecret),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.Error(t, err)
		})
	}

	_, err := v.Verify("")
	require.ErrorIs(t, err, ErrMissingToken)
	_, err = v.Verify("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier(Config{Secret: testSecret, Issuer: "timesheet-test"})
	token := signToken(t, validClaims("7"), jwt.SigningMethodHS256, testSecret)

	var seen int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := FromContext(r.Context())
		if ok {
			seen = claims.UserID
		}
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(v, func(r *http.Request) bool { return r.URL.Path == "/healthz" }).Wrap(next)

	serve := func(req *http.Request) int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/timesheets/current", nil)
	require.Equal(t, http.StatusUnauthorized, serve(req))

	req = httptest.NewRequest(http.MethodGet, "/v1/timesheets/current", nil)
	req.Header.Set("Authorization", "Token "+token)
	require.Equal(t, http.StatusUnauthorized, serve(req))

	req = httptest.NewRequest(http.MethodGet, "/v1/timesheets/current", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	require.Equal(t, http.StatusNoContent, serve(req))
	require.Equal(t, int64(7), seen)

	seen = 0
	req = httptest.NewRequest(http.MethodGet, "/v1/timesheets/ws?token="+token, nil)
	require.Equal(t, http.StatusNoContent, serve(req))
	require.Equal(t, int64(7), seen)

	seen = 0
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusNoContent, serve(req))
	require.Zero(t, seen)
}
