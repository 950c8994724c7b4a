// Package oauthtoken keeps stored OAuth grants usable by refreshing them
// shortly before expiry.
package oauthtoken

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"reviewsync/internal/domain"
)

// DefaultLeeway is how long before expiry a token is already treated as expired.
const DefaultLeeway = 5 * time.Minute

type Manager struct {
	repo   domain.TokenRepository
	clock  domain.Clock
	hc     *http.Client
	leeway time.Duration

	mu    sync.Mutex
	confs map[string]*oauth2.Config
}

func New(repo domain.TokenRepository, clock domain.Clock, hc *http.Client) *Manager {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Manager{repo: repo, clock: clock, hc: hc, leeway: DefaultLeeway, confs: map[string]*oauth2.Config{}}
}

// Register sets the client credentials and token endpoint used to refresh service.
func (m *Manager) Register(service, clientID, clientSecret, tokenURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confs[service] = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}
}

// GetValidAccessToken returns a usable access token for service.
func (m *Manager) GetValidAccessToken(ctx context.Context, service string) (string, error) {
	t, err := m.Token(ctx, service)
	if err != nil {
		return "", err
	}
	return t.AccessToken, nil
}

// Token returns the stored record, refreshing and persisting it first when it
// expires within the leeway window.
func (m *Manager) Token(ctx context.Context, service string) (domain.OAuthToken, error) {
	// serializes refreshes so a rotated refresh token is never used twice
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.repo.GetToken(ctx, service)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.OAuthToken{}, fmt.Errorf("no stored token for %s: %w", service, domain.ErrAuthExpired)
		}
		return domain.OAuthToken{}, fmt.Errorf("load token %s: %w", service, err)
	}

	now := m.clock.Now()
	if now.Before(t.ExpiryDate.Add(-m.leeway)) {
		return t, nil
	}

	conf, ok := m.confs[service]
	if !ok {
		return domain.OAuthToken{}, fmt.Errorf("no oauth client registered for %s: %w", service, domain.ErrAuthExpired)
	}
	if t.RefreshToken == "" {
		return domain.OAuthToken{}, fmt.Errorf("token %s has no refresh token: %w", service, domain.ErrAuthExpired)
	}

	rctx := context.WithValue(ctx, oauth2.HTTPClient, m.hc)
	// no access token: the source refreshes immediately
	nt, err := conf.TokenSource(rctx, &oauth2.Token{RefreshToken: t.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			log.Error().Str("service", service).Int("status", re.Response.StatusCode).
				Str("action", "reauthorize").Msg("oauth refresh rejected")
		}
		return domain.OAuthToken{}, fmt.Errorf("refresh %s: %v: %w", service, err, domain.ErrAuthExpired)
	}

	t.AccessToken = nt.AccessToken
	if nt.RefreshToken != "" {
		t.RefreshToken = nt.RefreshToken
	}
	t.ExpiryDate = m.expiry(nt, now)

	if err := m.repo.UpdateToken(ctx, t); err != nil {
		return domain.OAuthToken{}, fmt.Errorf("persist refreshed token %s: %w", service, err)
	}
	log.Info().Str("service", service).Time("expiry", t.ExpiryDate).Msg("oauth token refreshed")
	return t, nil
}

// expiry derives the new expiry from expires_in against the injected clock,
// falling back to the library's computed expiry.
func (m *Manager) expiry(nt *oauth2.Token, now time.Time) time.Time {
	switch v := nt.Extra("expires_in").(type) {
	case float64:
		return now.Add(time.Duration(v) * time.Second)
	case int64:
		return now.Add(time.Duration(v) * time.Second)
	}
	if !nt.Expiry.IsZero() {
		return nt.Expiry
	}
	return now.Add(time.Hour)
}
