package qbosync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Client is the single HTTP wrapper for the QBO accounting API. All
// company-scoped calls go through here: bearer auth, the sandbox/production
// base URL from Config, a bounded timeout, and Fault-body normalization
// into *APIError. A fresh RequestId is attached to every create so a replay
// of the same HTTP request is deduplicated provider-side; note a RETRY from
// our side generates a new RequestId, so the ledger remains the idempotence
// guard for retries.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// qboFault is the provider's error envelope.
type qboFault struct {
	Fault struct {
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
		Type string `json:"type"`
	} `json:"Fault"`
}

// Create posts an entity payload to {baseUrl}/v3/company/{realmId}/{resource}
// and returns the created entity's QBO id plus the raw entity JSON.
func (c *Client) Create(ctx context.Context, realmId string, resource string, accessToken string, payload any) (string, json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, err
	}

	params := url.Values{}
	params.Set("minorversion", c.cfg.MinorVersion)
	params.Set("requestid", uuid.NewString())
	endpoint := fmt.Sprintf("%s/v3/company/%s/%s?%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(realmId), resource, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, normalizeAPIError(resp.StatusCode, respBody)
	}

	entity, err := extractEntity(respBody)
	if err != nil {
		return "", nil, err
	}
	id, err := extractEntityID(entity)
	if err != nil {
		return "", nil, err
	}
	return id, entity, nil
}

func normalizeAPIError(statusCode int, body []byte) *APIError {
	message := strings.TrimSpace(string(body))

	var fault qboFault
	if err := json.Unmarshal(body, &fault); err == nil && len(fault.Fault.Error) > 0 {
		first := fault.Fault.Error[0]
		message = first.Message
		if first.Detail != "" {
			message = message + ": " + first.Detail
		}
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
		RawBody:    body,
	}
}

// extractEntity pulls the created entity object out of the response
// envelope. QBO wraps it under its type name ({"Bill": {...}, "time": ...});
// the single non-"time" object key is the entity.
func extractEntity(body []byte) (json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	for key, raw := range envelope {
		if key == "time" {
			continue
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("qbo response has no entity object: %s", strings.TrimSpace(string(body)))
}

func extractEntityID(entity json.RawMessage) (string, error) {
	var parsed struct {
		Id string `json:"Id"`
	}
	if err := json.Unmarshal(entity, &parsed); err != nil {
		return "", err
	}
	if strings.TrimSpace(parsed.Id) == "" {
		return "", fmt.Errorf("qbo entity id missing in response")
	}
	return parsed.Id, nil
}
