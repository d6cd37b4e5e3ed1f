package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/eternisai/leadgen-assistant/internal/backend"
	"github.com/eternisai/leadgen-assistant/internal/logger"
)

// Authenticator is the part of the backend the store talks to.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*backend.AuthResponse, error)
	Logout(ctx context.Context) error
	GetProfile(ctx context.Context) (*backend.User, error)
}

// persistedState is what survives a restart.
type persistedState struct {
	User  *backend.User `json:"user"`
	Token string        `json:"token"`
}

// Store holds the authenticated session of the assistant. It is rehydrated
// from a state file and only trusted after Initialize.
type Store struct {
	path   string
	authn  Authenticator
	logger *logger.Logger
	now    func() time.Time

	mu            sync.RWMutex
	user          *backend.User
	token         string
	loaded        bool
	initialized   bool
	authenticated bool
}

// NewStore creates a store persisting to path. An empty path keeps state in memory only.
func NewStore(path string, authn Authenticator, log *logger.Logger) *Store {
	return &Store{
		path:   path,
		authn:  authn,
		logger: log.WithComponent("auth_store"),
		now:    time.Now,
	}
}

// SetAuthenticator attaches the backend after construction, which breaks the
// cycle between the store (token source) and the client.
func (s *Store) SetAuthenticator(authn Authenticator) {
	s.mu.Lock()
	s.authn = authn
	s.mu.Unlock()
}

// Load reads persisted state. A missing file is not an error.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read auth state: %w", err)
	}

	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("failed to decode auth state: %w", err)
	}

	s.mu.Lock()
	s.user = st.User
	s.token = st.Token
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Initialize decides whether rehydrated state is trusted: a token and a user
// must both have been loaded and the token must not be expired. Otherwise the
// state is cleared.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true

	if s.loaded && s.token != "" && s.user != nil {
		err := CheckExpiry(s.token, s.now())
		if err == nil {
			s.authenticated = true
			s.logger.Info("restored authenticated session", slog.String("user_id", s.user.ID))
			return nil
		}
		s.logger.Warn("discarding persisted session", slog.String("reason", err.Error()))
	}

	s.clearLocked()
	return s.persistLocked()
}

// Login authenticates against the backend and persists the session.
func (s *Store) Login(ctx context.Context, email, password string) (*backend.User, error) {
	s.mu.RLock()
	authn := s.authn
	s.mu.RUnlock()
	if authn == nil {
		return nil, fmt.Errorf("login: no authenticator configured")
	}

	resp, err := authn.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("login: %w: empty token", ErrInvalidToken)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := resp.User
	s.user = &user
	s.token = resp.Token
	s.loaded = true
	s.initialized = true
	s.authenticated = true

	s.logger.WithContext(ctx).Info("user logged in", slog.String("user_id", user.ID))

	if err := s.persistLocked(); err != nil {
		s.logger.Error("failed to persist auth state", slog.String("error", err.Error()))
	}
	u := user
	return &u, nil
}

// Logout tells the backend and always clears local state.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.RLock()
	authn := s.authn
	s.mu.RUnlock()

	if authn != nil {
		if err := authn.Logout(ctx); err != nil {
			s.logger.WithContext(ctx).Warn("backend logout failed, clearing session anyway",
				slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	return s.persistLocked()
}

// Clear drops the session without calling the backend, e.g. after a 401.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" && s.user == nil {
		return
	}
	s.logger.Warn("clearing session after unauthorized response")
	s.clearLocked()
	if err := s.persistLocked(); err != nil {
		s.logger.Error("failed to persist auth state", slog.String("error", err.Error()))
	}
}

// RefreshProfile reloads the user record, e.g. to pick up quota usage.
func (s *Store) RefreshProfile(ctx context.Context) (*backend.User, error) {
	s.mu.RLock()
	authn := s.authn
	s.mu.RUnlock()
	if authn == nil {
		return nil, ErrNotAuthenticated
	}

	user, err := authn.GetProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated {
		return nil, ErrNotAuthenticated
	}
	u := *user
	s.user = &u
	if err := s.persistLocked(); err != nil {
		s.logger.Error("failed to persist auth state", slog.String("error", err.Error()))
	}
	return user, nil
}

// Token returns the bearer token, empty when not authenticated.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticated {
		return ""
	}
	return s.token
}

// User returns a copy of the authenticated user.
func (s *Store) User() (*backend.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticated || s.user == nil {
		return nil, false
	}
	u := *s.user
	return &u, true
}

// IsAuthenticated reports whether requests can be made on behalf of a user.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Initialized reports whether Initialize or Login ran.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *Store) clearLocked() {
	s.user = nil
	s.token = ""
	s.authenticated = false
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	if s.token == "" && s.user == nil {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove auth state: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(persistedState{User: s.user, Token: s.token})
	if err != nil {
		return fmt.Errorf("failed to encode auth state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create auth state dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write auth state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace auth state: %w", err)
	}
	return nil
}
