package qbosync

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/sitelinehq/contractor_backend/models"
)

// accessTokenSafetyMargin treats a token expiring within this window as
// already expired, so a request never leaves with a token that dies in
// flight.
const accessTokenSafetyMargin = 60 * time.Second

// TokenStore owns the OAuth2 credential lifecycle for QBO connections:
// the initial code exchange, transparent refresh with a safety margin, and
// the forced refresh after a 401. Refreshes for one business are collapsed
// through singleflight so concurrent syncs spend a single refresh grant.
type TokenStore struct {
	conns ConnectionStore
	oauth *oauthClient
	group singleflight.Group
	now   func() time.Time
}

func NewTokenStore(conns ConnectionStore, cfg Config) *TokenStore {
	return &TokenStore{
		conns: conns,
		oauth: newOAuthClient(cfg),
		now:   time.Now,
	}
}

// Connection returns the business's connection, or ErrNoConnection when the
// business never connected or has disconnected.
func (t *TokenStore) Connection(businessId string) (*models.QboConnection, error) {
	conn, err := t.conns.Get(businessId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoConnection
		}
		return nil, err
	}
	if conn.Status == models.QboConnectionStatusDisconnected {
		return nil, ErrNoConnection
	}
	return conn, nil
}

// ExchangeAuthorizationCode completes the OAuth connect flow and upserts the
// connection row. A failed exchange persists nothing.
func (t *TokenStore) ExchangeAuthorizationCode(ctx context.Context, businessId string, code string, redirectUri string, realmId string) (*models.QboConnection, error) {
	tokens, err := t.oauth.exchangeAuthorizationCode(ctx, code, redirectUri)
	if err != nil {
		return nil, err
	}

	now := t.now().UTC()
	refreshExpiry := now.Add(time.Duration(tokens.XRefreshTokenExpiresIn) * time.Second)
	conn := &models.QboConnection{
		BusinessId:            businessId,
		RealmId:               realmId,
		Status:                models.QboConnectionStatusConnected,
		AccessToken:           tokens.AccessToken,
		RefreshToken:          tokens.RefreshToken,
		AccessTokenExpiresAt:  now.Add(time.Duration(tokens.ExpiresIn) * time.Second),
		RefreshTokenExpiresAt: &refreshExpiry,
	}
	if err := t.conns.Save(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// ValidAccessToken returns an access token guaranteed to outlive the safety
// margin, refreshing first when needed.
func (t *TokenStore) ValidAccessToken(ctx context.Context, businessId string) (string, error) {
	conn, err := t.Connection(businessId)
	if err != nil {
		return "", err
	}
	if t.now().Add(accessTokenSafetyMargin).Before(conn.AccessTokenExpiresAt) {
		return conn.AccessToken, nil
	}
	return t.refresh(ctx, businessId, conn.AccessToken)
}

// ForceRefresh discards staleToken and returns a fresh access token. Used
// after the provider rejects a token the store still believed valid. The
// staleToken guard keeps a caller that raced a completed refresh from
// spending a second refresh grant.
func (t *TokenStore) ForceRefresh(ctx context.Context, businessId string, staleToken string) (string, error) {
	conn, err := t.Connection(businessId)
	if err != nil {
		return "", err
	}
	if conn.AccessToken != staleToken && conn.AccessToken != "" {
		return conn.AccessToken, nil
	}
	return t.refresh(ctx, businessId, staleToken)
}

func (t *TokenStore) refresh(ctx context.Context, businessId string, staleToken string) (string, error) {
	token, err, _ := t.group.Do(businessId, func() (any, error) {
		// Re-read inside the flight: a caller queued behind a finished
		// refresh should use its result, not trigger another one.
		conn, err := t.Connection(businessId)
		if err != nil {
			return "", err
		}
		if conn.AccessToken != staleToken && t.now().Add(accessTokenSafetyMargin).Before(conn.AccessTokenExpiresAt) {
			return conn.AccessToken, nil
		}

		tokens, err := t.oauth.refreshGrant(ctx, conn.RefreshToken)
		if err != nil {
			// Terminal refresh failure: the stored tokens stay untouched so
			// the operator can inspect the connection before reconnecting.
			return "", err
		}

		now := t.now().UTC()
		conn.AccessToken = tokens.AccessToken
		conn.AccessTokenExpiresAt = now.Add(time.Duration(tokens.ExpiresIn) * time.Second)
		if tokens.RefreshToken != "" {
			conn.RefreshToken = tokens.RefreshToken
		}
		if tokens.XRefreshTokenExpiresIn > 0 {
			refreshExpiry := now.Add(time.Duration(tokens.XRefreshTokenExpiresIn) * time.Second)
			conn.RefreshTokenExpiresAt = &refreshExpiry
		}
		conn.Status = models.QboConnectionStatusConnected
		if err := t.conns.UpdateTokens(conn); err != nil {
			return "", err
		}
		return conn.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}
