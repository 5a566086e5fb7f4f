package qbosync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientCreate_RequestShape(t *testing.T) {
	var gotPath, gotAuth, gotMinor, gotRequestId string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotMinor = r.URL.Query().Get("minorversion")
		gotRequestId = r.URL.Query().Get("requestid")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"Customer":{"Id":"58","DisplayName":"Harbor View Homes"},"time":"2026-04-01T10:00:00-07:00"}`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, MinorVersion: "65", Timeout: 5 * time.Second})
	id, raw, err := client.Create(context.Background(), "realm1", "customer", "tok", &CustomerPayload{DisplayName: "Harbor View Homes"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if id != "58" {
		t.Fatalf("expected id 58, got %q", id)
	}
	if len(raw) == 0 {
		t.Fatalf("expected raw entity body")
	}
	if gotPath != "/v3/company/realm1/customer" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotMinor != "65" {
		t.Fatalf("unexpected minorversion %q", gotMinor)
	}
	if gotRequestId == "" {
		t.Fatalf("requestid missing")
	}
}

func TestClientCreate_FreshRequestIdPerCall(t *testing.T) {
	seen := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen[r.URL.Query().Get("requestid")] = true
		fmt.Fprint(w, `{"Vendor":{"Id":"9"}}`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, MinorVersion: "65", Timeout: 5 * time.Second})
	for i := 0; i < 3; i++ {
		if _, _, err := client.Create(context.Background(), "realm1", "vendor", "tok", &VendorPayload{DisplayName: "Bayside Lumber"}); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct request ids, got %d", len(seen))
	}
}

func TestClientCreate_FaultNormalization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"Fault":{"Error":[{"Message":"Duplicate Name Exists Error","Detail":"The name supplied already exists.","code":"6240"}],"type":"ValidationFault"}}`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, MinorVersion: "65", Timeout: 5 * time.Second})
	_, _, err := client.Create(context.Background(), "realm1", "customer", "tok", &CustomerPayload{DisplayName: "Dup"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "Duplicate Name Exists Error: The name supplied already exists." {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
	if len(apiErr.RawBody) == 0 {
		t.Fatalf("raw body must be preserved")
	}
}

func TestClientCreate_NonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream unavailable")
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, MinorVersion: "65", Timeout: 5 * time.Second})
	_, _, err := client.Create(context.Background(), "realm1", "invoice", "tok", &InvoicePayload{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "upstream unavailable" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
	if !IsRetryable(apiErr) {
		t.Fatalf("502 should be retryable")
	}
}

func TestClientCreate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, `{"Bill":{"Id":"1"}}`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, MinorVersion: "65", Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, _, err := client.Create(context.Background(), "realm1", "bill", "tok", &BillPayload{})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout not bounded: %v", elapsed)
	}
	if !IsRetryable(err) {
		t.Fatalf("timeout should be retryable, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err      error
		expected bool
	}{
		{&APIError{StatusCode: 429}, true},
		{&APIError{StatusCode: 500}, true},
		{&APIError{StatusCode: 503}, true},
		{&APIError{StatusCode: 400}, false},
		{&APIError{StatusCode: 401}, false},
		{&MappingError{}, false},
		{ErrNoConnection, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.expected {
			t.Fatalf("IsRetryable(%v) expected %v, got %v", tc.err, tc.expected, got)
		}
	}
}

func TestLoadConfig_BaseURLSelection(t *testing.T) {
	cases := []struct {
		env      string
		expected string
	}{
		{"sandbox", defaultSandboxBaseURL},
		{"production", defaultProductionBaseURL},
		{"PRODUCTION", defaultProductionBaseURL},
		{"", defaultSandboxBaseURL},
		{"staging", defaultSandboxBaseURL},
	}
	for _, tc := range cases {
		t.Setenv("QBO_ENVIRONMENT", tc.env)
		t.Setenv("QBO_API_BASE_URL", "")
		cfg := LoadConfig()
		if cfg.BaseURL != tc.expected {
			t.Fatalf("env %q: expected base url %s, got %s", tc.env, tc.expected, cfg.BaseURL)
		}
	}

	t.Setenv("QBO_API_BASE_URL", "https://qbo.example.test/")
	if cfg := LoadConfig(); cfg.BaseURL != "https://qbo.example.test" {
		t.Fatalf("override expected trimmed base url, got %s", cfg.BaseURL)
	}
}
