// Package auth manages the Google OAuth token used for Drive and Sheets
// access. Tokens are cached on disk; the interactive sign-in flow runs a
// loopback redirect listener and exchanges the authorization code.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sourcestack/resume-batch/internal/common"
)

var scopes = []string{
	"https://www.googleapis.com/auth/drive.readonly",
	"https://www.googleapis.com/auth/spreadsheets",
}

// Manager caches and refreshes one user token.
type Manager struct {
	oauth     *oauth2.Config
	cachePath string
	timeout   time.Duration
	logger    *slog.Logger

	mu sync.Mutex
}

func NewManager(cfg common.GoogleConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       scopes,
		},
		cachePath: cfg.TokenCachePath,
		timeout:   cfg.AuthTimeout,
		logger:    logger,
	}
}

// AccessToken returns a valid access token, refreshing and re-caching it
// when the stored one has expired. Callers with no cached token get
// ErrSignInNeeded.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cached, err := m.loadToken()
	if err != nil {
		return "", err
	}
	if cached == nil {
		return "", common.ErrSignInNeeded
	}
	if cached.Valid() {
		return cached.AccessToken, nil
	}

	refreshed, err := m.oauth.TokenSource(ctx, cached).Token()
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if err := m.saveToken(refreshed); err != nil {
		return "", err
	}

	m.logger.Info("auth.token.refreshed", "expires", refreshed.Expiry)
	return refreshed.AccessToken, nil
}

// SignIn runs the interactive authorization flow: it starts a loopback
// listener, logs the consent URL for the user to open, waits for the
// redirect and caches the exchanged token. It blocks up to the configured
// auth timeout.
func (m *Manager) SignIn(ctx context.Context) error {
	if m.oauth.ClientID == "" {
		return common.NewAppError("CONFIG_ERROR", "GOOGLE_CLIENT_ID is required for sign-in", common.ErrInvalidInput)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("start redirect listener: %w", err)
	}
	defer listener.Close()

	cfg := *m.oauth
	cfg.RedirectURL = fmt.Sprintf("http://%s/callback", listener.Addr().String())

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- errors.New("authorization state mismatch")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			errCh <- errors.New("authorization response had no code")
			return
		}
		fmt.Fprintln(w, "Sign-in complete. You can close this window.")
		codeCh <- code
	})

	server := &http.Server{Handler: mux}
	go func() { _ = server.Serve(listener) }()
	defer func() { _ = server.Close() }()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	m.logger.Info("auth.signin.open_url", "url", authURL)

	timeout := m.timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var code string
	select {
	case <-waitCtx.Done():
		return fmt.Errorf("sign-in not completed: %w", waitCtx.Err())
	case err := <-errCh:
		return err
	case code = <-codeCh:
	}

	token, err := cfg.Exchange(waitCtx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.saveToken(token); err != nil {
		return err
	}
	m.logger.Info("auth.signin.complete", "expires", token.Expiry)
	return nil
}

// SignOut drops the cached token.
func (m *Manager) SignOut() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.Remove(m.cachePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cached token: %w", err)
	}
	m.logger.Info("auth.signout.complete")
	return nil
}

func (m *Manager) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(m.cachePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cached token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode cached token: %w", err)
	}
	return &token, nil
}

func (m *Manager) saveToken(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.cachePath), 0o755); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(m.cachePath, data, 0o600); err != nil {
		return fmt.Errorf("write cached token: %w", err)
	}
	return nil
}
