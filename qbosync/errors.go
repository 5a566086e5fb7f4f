package qbosync

import (
	"errors"
	"fmt"
	"net"

	"github.com/sitelinehq/contractor_backend/models"
)

// ErrNoConnection means the business has never completed the QBO OAuth flow
// (or has disconnected). The caller should prompt the user to connect.
var ErrNoConnection = errors.New("quickbooks is not connected")

// OAuthExchangeError is a provider rejection of the authorization-code grant
// (code already used, redirect URI mismatch, ...).
type OAuthExchangeError struct {
	StatusCode    int
	ProviderError string
	Description   string
}

func (e *OAuthExchangeError) Error() string {
	return fmt.Sprintf("qbo oauth exchange failed (%d): %s %s", e.StatusCode, e.ProviderError, e.Description)
}

// TokenRefreshError is a provider rejection of the refresh-token grant.
// Refresh tokens do not self-heal: the caller must surface "reconnect
// required" and must not retry automatically.
type TokenRefreshError struct {
	StatusCode    int
	ProviderError string
	Description   string
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("qbo token refresh failed (%d): %s %s", e.StatusCode, e.ProviderError, e.Description)
}

// MappingError means required correlated local data is missing, so a payload
// cannot be built. Recoverable by fixing the local record or syncing the
// missing dependency first.
type MappingError struct {
	EntityType models.LocalEntityType
	EntityId   string
	Reason     string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("cannot map %s %s: %s", e.EntityType, e.EntityId, e.Reason)
}

// DependencyError means a prerequisite sync failed, so the dependent entity
// was not attempted. It propagates the prerequisite's error unchanged.
type DependencyError struct {
	EntityType models.LocalEntityType
	EntityId   string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s %s is unsynced: %v", e.EntityType, e.EntityId, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// APIError is a normalized QBO API failure.
type APIError struct {
	StatusCode int
	Message    string
	RawBody    []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("qbo api error %d: %s", e.StatusCode, e.Message)
}

// DuplicateReferenceError is raised by the ledger when an insert loses a
// race: a reference for the same local entity already exists with a
// DIFFERENT external id. The winning reference is carried so the loser can
// treat the outcome as success; the loser's created external entity is an
// orphan in QBO and must be logged, not masked.
type DuplicateReferenceError struct {
	EntityType   models.LocalEntityType
	EntityId     string
	WinningQboId string
	OrphanQboId  string
}

func (e *DuplicateReferenceError) Error() string {
	return fmt.Sprintf("duplicate qbo reference for %s %s: winner=%s orphan=%s",
		e.EntityType, e.EntityId, e.WinningQboId, e.OrphanQboId)
}

// IsRetryable reports whether an error is safe to retry: network timeouts,
// 429 rate limits and 5xx outages. The ledger's idempotence check makes the
// retry safe against duplicate creation (see the RequestId note in client.go
// for the at-most-once caveat). 401 is not retriable here; the orchestrator
// handles it with a single token refresh.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
