package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// tokenManager guards the client's single token set behind a mutex held
// only across the refresh decision and the refresh call itself (never
// across unrelated outbound calls), so at most one refresh is in flight;
// everyone else waits and observes the fresh token.
type tokenManager struct {
	mu     sync.Mutex
	tokens *tokenSet

	clientID     string
	clientSecret string
	license      string
	username     string
	password     string

	doRaw func(ctx context.Context, method, path string, body any) (*http.Response, error)
}

// accessToken returns a valid bearer token, acquiring or refreshing one if
// necessary. Only one caller performs the actual HTTP round trip at a time;
// concurrent callers block on the mutex and then observe the result.
func (m *tokenManager) accessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tokens == nil {
		tok, err := m.requestWithPassword(ctx)
		if err != nil {
			return "", err
		}
		m.tokens = tok
		return m.tokens.AccessToken, nil
	}

	if m.tokens.expired() {
		if tok, err := m.requestWithRefresh(ctx, m.tokens.RefreshToken); err == nil {
			m.tokens = tok
		} else {
			tok, err := m.requestWithPassword(ctx)
			if err != nil {
				return "", err
			}
			m.tokens = tok
		}
	}

	return m.tokens.AccessToken, nil
}

func (m *tokenManager) requestWithPassword(ctx context.Context) (*tokenSet, error) {
	payload := map[string]string{
		"grantType":    "password",
		"clientId":     m.clientID,
		"clientSecret": m.clientSecret,
		"license":      m.license,
		"user":         m.username,
		"pass":         m.password,
	}
	return m.requestToken(ctx, payload)
}

func (m *tokenManager) requestWithRefresh(ctx context.Context, refreshToken string) (*tokenSet, error) {
	payload := map[string]string{
		"grantType":    "refreshToken",
		"clientId":     m.clientID,
		"clientSecret": m.clientSecret,
		"refreshToken": refreshToken,
	}
	return m.requestToken(ctx, payload)
}

func (m *tokenManager) requestToken(ctx context.Context, payload map[string]string) (*tokenSet, error) {
	resp, err := m.doRaw(ctx, http.MethodPost, "/token", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, "token request failed")
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("upstream: decode token response: %w", err)
	}

	expiresIn := 1800
	if tr.ExpiresIn != nil {
		expiresIn = *tr.ExpiresIn
	}
	tokenType := tr.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}

	return &tokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(expiresIn) * time.Second),
		TokenType:    strings.ToLower(tokenType),
	}, nil
}
