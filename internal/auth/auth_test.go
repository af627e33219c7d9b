package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "switchline.identity"}

func TestIssuedTokenRoundTrips(t *testing.T) {
	token, err := IssueToken(testConfig, "user-42", time.Hour, ScopeEngagementWrite)
	require.NoError(t, err)

	claims, err := ParseClaims(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-42", claims.Subject)
	require.True(t, claims.HasScope(ScopeEngagementWrite))
	require.True(t, claims.HasScope(ScopeEngagementRead), "write implies read")
	require.False(t, claims.HasScope("admin"))
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestParseClaimsRejects(t *testing.T) {
	sign := func(cfg Config, claims jwt.Claims, method jwt.SigningMethod) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(cfg.Secret))
		require.NoError(t, err)
		return token
	}
	valid := func() jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    testConfig.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
	}

	_, err := ParseClaims("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)

	cases := map[string]string{
		"wrong issuer": sign(Config{Secret: testConfig.Secret}, func() jwt.RegisteredClaims {
			c := valid()
			c.Issuer = "someone-else"
			return c
		}(), jwt.SigningMethodHS256),
		"wrong secret": sign(Config{Secret: "other"}, valid(), jwt.SigningMethodHS256),
		"expired": sign(testConfig, func() jwt.RegisteredClaims {
			c := valid()
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			return c
		}(), jwt.SigningMethodHS256),
		"no expiry": sign(testConfig, func() jwt.RegisteredClaims {
			c := valid()
			c.ExpiresAt = nil
			return c
		}(), jwt.SigningMethodHS256),
		"no subject": sign(testConfig, func() jwt.RegisteredClaims {
			c := valid()
			c.Subject = ""
			return c
		}(), jwt.SigningMethodHS256),
		"hs512": sign(testConfig, valid(), jwt.SigningMethodHS512),
		"garbage": "not.a.token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseClaims(token, testConfig)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestScopeSetAcceptsStringOrList(t *testing.T) {
	var fromString, fromList Claims
	require.NoError(t, json.Unmarshal([]byte(`{"sub":"u","scopes":" engagement:read  engagement:write "}`), &fromString))
	require.NoError(t, json.Unmarshal([]byte(`{"sub":"u","scopes":["engagement:read",""]}`), &fromList))
	require.Len(t, fromString.Scopes, 2)
	require.Len(t, fromList.Scopes, 1)

	var bad Claims
	require.Error(t, json.Unmarshal([]byte(`{"scopes":42}`), &bad))

	out, err := json.Marshal(NewScopeSet(ScopeEngagementWrite, ScopeEngagementRead))
	require.NoError(t, err)
	require.JSONEq(t, `"engagement:read engagement:write"`, string(out))
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	handler := NewMiddleware(testConfig).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, `Bearer realm="engagement"`, rec.Header().Get("WWW-Authenticate"))
	require.Contains(t, rec.Body.String(), `"type":"unauthorized"`)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Nil(t, seen)

	token, err := IssueToken(testConfig, "user-7", time.Hour, ScopeEngagementRead)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Basic "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("Authorization", "bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)

	userID, ok := UserID(WithClaims(req.Context(), seen))
	require.True(t, ok)
	require.Equal(t, "user-7", userID)
}
