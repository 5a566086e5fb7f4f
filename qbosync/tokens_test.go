package qbosync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/sitelinehq/contractor_backend/models"
)

type memConnectionStore struct {
	mu    sync.Mutex
	conns map[string]*models.QboConnection
}

func newMemConnectionStore() *memConnectionStore {
	return &memConnectionStore{conns: map[string]*models.QboConnection{}}
}

func (s *memConnectionStore) Get(businessId string) (*models.QboConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[businessId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *conn
	return &copied, nil
}

func (s *memConnectionStore) Save(conn *models.QboConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *conn
	s.conns[conn.BusinessId] = &copied
	return nil
}

func (s *memConnectionStore) UpdateTokens(conn *models.QboConnection) error {
	return s.Save(conn)
}

func (s *memConnectionStore) Disconnect(businessId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.conns[businessId]; ok {
		conn.Status = models.QboConnectionStatusDisconnected
		conn.AccessToken = ""
		conn.RefreshToken = ""
	}
	return nil
}

func tokenServer(t *testing.T, refreshCalls *int32, fail bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" {
			t.Fatalf("unexpected grant_type %q", r.Form.Get("grant_type"))
		}
		n := atomic.AddInt32(refreshCalls, 1)
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Token revoked"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"fresh-%d","refresh_token":"rot-%d","token_type":"bearer","expires_in":3600,"x_refresh_token_expires_in":8726400}`, n, n)
	}))
}

func storeWithConn(srvURL string, expiresAt time.Time) (*TokenStore, *memConnectionStore) {
	conns := newMemConnectionStore()
	_ = conns.Save(&models.QboConnection{
		BusinessId:           "biz1",
		RealmId:              "realm1",
		Status:               models.QboConnectionStatusConnected,
		AccessToken:          "stale",
		RefreshToken:         "refresh-0",
		AccessTokenExpiresAt: expiresAt,
	})
	cfg := Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		TokenURL:     srvURL,
		Timeout:      5 * time.Second,
	}
	return NewTokenStore(conns, cfg), conns
}

func TestValidAccessToken_FreshTokenSkipsRefresh(t *testing.T) {
	var refreshCalls int32
	srv := tokenServer(t, &refreshCalls, false)
	defer srv.Close()

	store, _ := storeWithConn(srv.URL, time.Now().Add(time.Hour))
	token, err := store.ValidAccessToken(context.Background(), "biz1")
	if err != nil {
		t.Fatalf("ValidAccessToken error: %v", err)
	}
	if token != "stale" {
		t.Fatalf("expected stored token, got %q", token)
	}
	if refreshCalls != 0 {
		t.Fatalf("expected 0 refresh calls, got %d", refreshCalls)
	}
}

func TestValidAccessToken_WithinSafetyMarginRefreshes(t *testing.T) {
	var refreshCalls int32
	srv := tokenServer(t, &refreshCalls, false)
	defer srv.Close()

	// Expires in 30s: inside the 60s margin, so a refresh must happen.
	store, conns := storeWithConn(srv.URL, time.Now().Add(30*time.Second))
	token, err := store.ValidAccessToken(context.Background(), "biz1")
	if err != nil {
		t.Fatalf("ValidAccessToken error: %v", err)
	}
	if token != "fresh-1" {
		t.Fatalf("expected fresh-1, got %q", token)
	}
	if refreshCalls != 1 {
		t.Fatalf("expected 1 refresh call, got %d", refreshCalls)
	}

	conn, err := conns.Get("biz1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if conn.AccessToken != "fresh-1" || conn.RefreshToken != "rot-1" {
		t.Fatalf("rotated tokens not persisted: %+v", conn)
	}
	if conn.RefreshTokenExpiresAt == nil {
		t.Fatalf("refresh token expiry not persisted")
	}
}

func TestValidAccessToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	var refreshCalls int32
	srv := tokenServer(t, &refreshCalls, false)
	defer srv.Close()

	store, _ := storeWithConn(srv.URL, time.Now().Add(-time.Minute))

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = store.ValidAccessToken(context.Background(), "biz1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error: %v", i, errs[i])
		}
		if tokens[i] != tokens[0] {
			t.Fatalf("callers got different tokens: %q vs %q", tokens[i], tokens[0])
		}
	}
	// Sequential stragglers may arrive after the flight finishes; they must
	// reuse the stored result rather than refresh again.
	if refreshCalls != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", refreshCalls)
	}
}

func TestValidAccessToken_RevokedConnection(t *testing.T) {
	var refreshCalls int32
	srv := tokenServer(t, &refreshCalls, true)
	defer srv.Close()

	store, conns := storeWithConn(srv.URL, time.Now().Add(-time.Minute))
	_, err := store.ValidAccessToken(context.Background(), "biz1")

	var refreshErr *TokenRefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("expected TokenRefreshError, got %v", err)
	}
	if refreshErr.ProviderError != "invalid_grant" {
		t.Fatalf("expected invalid_grant, got %q", refreshErr.ProviderError)
	}
	if refreshCalls != 1 {
		t.Fatalf("refresh must not be retried automatically, got %d calls", refreshCalls)
	}

	// Stored tokens stay untouched for operator inspection.
	conn, _ := conns.Get("biz1")
	if conn.AccessToken != "stale" || conn.RefreshToken != "refresh-0" {
		t.Fatalf("tokens mutated on failed refresh: %+v", conn)
	}
}

func TestConnection_Disconnected(t *testing.T) {
	conns := newMemConnectionStore()
	_ = conns.Save(&models.QboConnection{
		BusinessId: "biz1",
		Status:     models.QboConnectionStatusDisconnected,
	})
	store := NewTokenStore(conns, Config{Timeout: time.Second})

	if _, err := store.Connection("biz1"); !errors.Is(err, ErrNoConnection) {
		t.Fatalf("expected ErrNoConnection, got %v", err)
	}
	if _, err := store.Connection("missing"); !errors.Is(err, ErrNoConnection) {
		t.Fatalf("expected ErrNoConnection for missing business, got %v", err)
	}
}

func TestForceRefresh_SkipsWhenTokenAlreadyRotated(t *testing.T) {
	var refreshCalls int32
	srv := tokenServer(t, &refreshCalls, false)
	defer srv.Close()

	store, conns := storeWithConn(srv.URL, time.Now().Add(time.Hour))
	_ = conns.Save(&models.QboConnection{
		BusinessId:           "biz1",
		RealmId:              "realm1",
		Status:               models.QboConnectionStatusConnected,
		AccessToken:          "already-rotated",
		RefreshToken:         "refresh-0",
		AccessTokenExpiresAt: time.Now().Add(time.Hour),
	})

	token, err := store.ForceRefresh(context.Background(), "biz1", "stale")
	if err != nil {
		t.Fatalf("ForceRefresh error: %v", err)
	}
	if token != "already-rotated" {
		t.Fatalf("expected rotated token, got %q", token)
	}
	if refreshCalls != 0 {
		t.Fatalf("expected 0 refresh calls, got %d", refreshCalls)
	}
}
