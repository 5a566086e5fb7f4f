package qbosync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sitelinehq/contractor_backend/models"
	"github.com/sitelinehq/contractor_backend/utils"
)

func newTestHandlers(tokens *fakeTokens, users map[string]*models.User) *Handlers {
	api := &fakeAPI{respond: sequentialIds("qbo-")}
	syncer, _, _ := testSyncer(tokens, api, testSource())
	h := NewHandlers(syncer, nil, nil, nil, nil, nil)
	h.lookupUser = func(ctx context.Context, username string) (*models.User, error) {
		if u, ok := users[username]; ok {
			return u, nil
		}
		return nil, errors.New("unauthorized")
	}
	return h
}

func testRouter(h *Handlers, username string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if username != "" {
		r.Use(func(c *gin.Context) {
			c.Request = c.Request.WithContext(utils.SetUsernameInContext(c.Request.Context(), username))
			c.Next()
		})
	}
	h.RegisterRoutes(r.Group("/api/integrations/qbo"))
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlers_UnauthorizedWithoutSession(t *testing.T) {
	h := newTestHandlers(&fakeTokens{}, nil)
	r := testRouter(h, "")

	for _, path := range []string{"/api/integrations/qbo/status", "/api/integrations/qbo/sync/runs"} {
		if w := doRequest(t, r, http.MethodGet, path, ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, w.Code)
		}
	}
}

func TestHandlers_StatusResolvesOwnBusiness(t *testing.T) {
	users := map[string]*models.User{
		"bob": {Username: "bob", BusinessId: "biz1", Role: models.UserRoleOwner},
	}
	h := newTestHandlers(&fakeTokens{conn: testConnection(), token: "tok"}, users)
	r := testRouter(h, "bob")

	w := doRequest(t, r, http.MethodGet, "/api/integrations/qbo/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"connected":true`) {
		t.Fatalf("expected connected status, got %s", w.Body.String())
	}
}

func TestHandlers_BusinessOverride(t *testing.T) {
	users := map[string]*models.User{
		"admin": {Username: "admin", BusinessId: "", Role: models.UserRoleAdmin},
		"staff": {Username: "staff", BusinessId: "biz1", Role: models.UserRoleStaff},
	}
	h := newTestHandlers(&fakeTokens{}, users)

	// Admins may target any business.
	w := doRequest(t, testRouter(h, "admin"), http.MethodGet, "/api/integrations/qbo/status?business_id=biz2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("admin override expected 200, got %d", w.Code)
	}

	// Non-admins are pinned to their own business.
	w = doRequest(t, testRouter(h, "staff"), http.MethodGet, "/api/integrations/qbo/status?business_id=biz2", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("staff override expected 401, got %d", w.Code)
	}
	w = doRequest(t, testRouter(h, "staff"), http.MethodGet, "/api/integrations/qbo/status?business_id=biz1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("staff own business expected 200, got %d", w.Code)
	}
}

func TestConnect_ValidatesRequest(t *testing.T) {
	users := map[string]*models.User{
		"bob": {Username: "bob", BusinessId: "biz1", Role: models.UserRoleOwner},
	}
	h := newTestHandlers(&fakeTokens{}, users)
	r := testRouter(h, "bob")

	w := doRequest(t, r, http.MethodPost, "/api/integrations/qbo/connect", `{"redirectUri":"https://app.example.test/cb"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, "Code") || !strings.Contains(body, "RealmId") {
		t.Fatalf("expected field errors for Code and RealmId, got %s", body)
	}
}

func TestSyncEndpoint_NoConnectionConflict(t *testing.T) {
	users := map[string]*models.User{
		"bob": {Username: "bob", BusinessId: "biz1", Role: models.UserRoleOwner},
	}
	h := newTestHandlers(&fakeTokens{}, users)
	r := testRouter(h, "bob")

	w := doRequest(t, r, http.MethodPost, "/api/integrations/qbo/sync/client", `{"id":7}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 without a connection, got %d: %s", w.Code, w.Body.String())
	}
}

func TestEntityStatusEndpoint(t *testing.T) {
	users := map[string]*models.User{
		"bob": {Username: "bob", BusinessId: "biz1", Role: models.UserRoleOwner},
	}
	h := newTestHandlers(&fakeTokens{conn: testConnection(), token: "tok"}, users)
	r := testRouter(h, "bob")

	w := doRequest(t, r, http.MethodGet, "/api/integrations/qbo/status/client/7", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"synced":false`) {
		t.Fatalf("expected unsynced, got %s", w.Body.String())
	}

	w = doRequest(t, r, http.MethodGet, "/api/integrations/qbo/status/widget/7", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", w.Code)
	}
}

func TestWriteSyncError(t *testing.T) {
	cases := []struct {
		err      error
		expected int
	}{
		{ErrNoConnection, http.StatusConflict},
		{gorm.ErrRecordNotFound, http.StatusNotFound},
		{&MappingError{EntityType: models.LocalEntityClient, EntityId: "7", Reason: "name is required"}, http.StatusUnprocessableEntity},
		{&TokenRefreshError{StatusCode: 400, ProviderError: "invalid_grant"}, http.StatusConflict},
		{&DependencyError{EntityType: models.LocalEntityClient, EntityId: "7", Err: &APIError{StatusCode: 500, Message: "boom"}}, http.StatusBadGateway},
		{&DependencyError{EntityType: models.LocalEntityClient, EntityId: "7", Err: &MappingError{Reason: "missing"}}, http.StatusUnprocessableEntity},
		{&APIError{StatusCode: 400, Message: "validation"}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		writeSyncError(c, tc.err)
		if w.Code != tc.expected {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.expected, w.Code)
		}
	}
}
