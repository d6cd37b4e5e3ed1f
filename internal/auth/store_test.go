package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternisai/leadgen-assistant/internal/backend"
	"github.com/eternisai/leadgen-assistant/internal/logger"
)

func signToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := StandardClaims{
		Sub:    "sub-1",
		UserId: "user-1",
		Email:  "ada@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

type fakeAuthn struct {
	token     string
	loginErr  error
	logoutErr error
	profile   *backend.User
	logouts   int
}

func (f *fakeAuthn) Login(ctx context.Context, email, password string) (*backend.AuthResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &backend.AuthResponse{
		User:  backend.User{ID: "user-1", Email: email, LeadsQuota: 100, LeadsUsed: 10},
		Token: f.token,
	}, nil
}

func (f *fakeAuthn) Logout(ctx context.Context) error {
	f.logouts++
	return f.logoutErr
}

func (f *fakeAuthn) GetProfile(ctx context.Context) (*backend.User, error) {
	if f.profile == nil {
		return nil, errors.New("no profile")
	}
	return f.profile, nil
}

func writeState(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestCheckExpiry(t *testing.T) {
	now := time.Now()

	assert.NoError(t, CheckExpiry(signToken(t, now.Add(time.Hour)), now))
	assert.ErrorIs(t, CheckExpiry(signToken(t, now.Add(-time.Minute)), now), ErrExpiredToken)
	assert.NoError(t, CheckExpiry("opaque-session-token", now))
	assert.ErrorIs(t, CheckExpiry("not.a.jwt", now), ErrInvalidToken)
}

func TestSubjectOf(t *testing.T) {
	assert.Equal(t, "user-1", SubjectOf(signToken(t, time.Now().Add(time.Hour))))
	assert.Empty(t, SubjectOf("garbage"))
}

func TestInitializeRestoresValidSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	token := signToken(t, time.Now().Add(time.Hour))
	writeState(t, path, `{"user":{"id":"user-1","email":"ada@example.com"},"token":"`+token+`"}`)

	s := NewStore(path, &fakeAuthn{}, logger.Nop())
	require.NoError(t, s.Load())
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Token())

	require.NoError(t, s.Initialize())
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, token, s.Token())

	user, ok := s.User()
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", user.Email)
}

func TestInitializeDiscardsExpiredSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	token := signToken(t, time.Now().Add(-time.Hour))
	writeState(t, path, `{"user":{"id":"user-1"},"token":"`+token+`"}`)

	s := NewStore(path, &fakeAuthn{}, logger.Nop())
	require.NoError(t, s.Load())
	require.NoError(t, s.Initialize())

	assert.False(t, s.IsAuthenticated())
	assert.True(t, s.Initialized())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestInitializeRequiresBothTokenAndUser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	writeState(t, path, `{"user":null,"token":"opaque"}`)

	s := NewStore(path, &fakeAuthn{}, logger.Nop())
	require.NoError(t, s.Load())
	require.NoError(t, s.Initialize())
	assert.False(t, s.IsAuthenticated())

	// Nothing loaded at all.
	s = NewStore(filepath.Join(t.TempDir(), "missing.json"), &fakeAuthn{}, logger.Nop())
	require.NoError(t, s.Load())
	require.NoError(t, s.Initialize())
	assert.False(t, s.IsAuthenticated())
}

func TestLoadRejectsCorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	writeState(t, path, `{not json`)

	s := NewStore(path, &fakeAuthn{}, logger.Nop())
	assert.Error(t, s.Load())
}

func TestLoginPersistsAndLogoutClears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "auth.json")
	authn := &fakeAuthn{token: "opaque-token", logoutErr: errors.New("backend down")}
	s := NewStore(path, authn, logger.Nop())

	user, err := s.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "opaque-token", s.Token())

	// A fresh store sees the persisted session.
	restored := NewStore(path, authn, logger.Nop())
	require.NoError(t, restored.Load())
	require.NoError(t, restored.Initialize())
	assert.True(t, restored.IsAuthenticated())

	require.NoError(t, s.Logout(context.Background()))
	assert.Equal(t, 1, authn.logouts)
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Token())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLoginFailureKeepsStateEmpty(t *testing.T) {
	s := NewStore("", &fakeAuthn{loginErr: &backend.APIError{StatusCode: 401, Message: "Invalid credentials"}}, logger.Nop())

	_, err := s.Login(context.Background(), "ada@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, backend.IsUnauthorized(err))
	assert.False(t, s.IsAuthenticated())
}

func TestClear(t *testing.T) {
	s := NewStore("", &fakeAuthn{token: "tok"}, logger.Nop())
	_, err := s.Login(context.Background(), "a@b.co", "pw")
	require.NoError(t, err)

	s.Clear()
	assert.False(t, s.IsAuthenticated())
	_, ok := s.User()
	assert.False(t, ok)
}

func TestRefreshProfile(t *testing.T) {
	authn := &fakeAuthn{token: "tok", profile: &backend.User{ID: "user-1", LeadsUsed: 55, LeadsQuota: 100}}
	s := NewStore("", authn, logger.Nop())

	_, err := s.RefreshProfile(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = s.Login(context.Background(), "a@b.co", "pw")
	require.NoError(t, err)

	user, err := s.RefreshProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 55, user.LeadsUsed)

	stored, _ := s.User()
	assert.Equal(t, 55, stored.LeadsUsed)
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewStore("", &fakeAuthn{token: "tok"}, logger.Nop())

	r := gin.New()
	r.GET("/private", RequireAuth(s), func(c *gin.Context) {
		id, _ := GetUserID(c)
		c.String(http.StatusOK, id)
	})

	call := func(header, query string, upgrade bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/private"+query, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if upgrade {
			req.Header.Set("Upgrade", "websocket")
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, call("Bearer tok", "", false).Code)

	_, err := s.Login(context.Background(), "a@b.co", "pw")
	require.NoError(t, err)

	// logged in, but the caller must present the session token
	assert.Equal(t, http.StatusUnauthorized, call("", "", false).Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer other", "", false).Code)
	assert.Equal(t, http.StatusUnauthorized, call("tok", "", false).Code)
	assert.Equal(t, http.StatusUnauthorized, call("", "?token=tok", false).Code)

	w := call("Bearer tok", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())

	assert.Equal(t, http.StatusOK, call("", "?token=tok", true).Code)

	s.Clear()
	assert.Equal(t, http.StatusUnauthorized, call("Bearer tok", "", false).Code)
}
