package qbosync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type tokenResponse struct {
	AccessToken            string `json:"access_token"`
	RefreshToken           string `json:"refresh_token"`
	TokenType              string `json:"token_type"`
	ExpiresIn              int64  `json:"expires_in"`
	XRefreshTokenExpiresIn int64  `json:"x_refresh_token_expires_in"`
}

type oauthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// oauthClient speaks to the provider's OAuth2 token endpoint. Both grants
// authenticate with HTTP Basic base64(clientId:clientSecret) and a
// form-encoded body, per the QBO OAuth2 contract.
type oauthClient struct {
	cfg  Config
	http *http.Client
}

func newOAuthClient(cfg Config) *oauthClient {
	return &oauthClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *oauthClient) exchangeAuthorizationCode(ctx context.Context, code string, redirectURI string) (tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	status, body, err := c.post(ctx, form)
	if err != nil {
		return tokenResponse{}, err
	}
	if status < 200 || status >= 300 {
		oauthErr := parseOAuthError(body)
		return tokenResponse{}, &OAuthExchangeError{
			StatusCode:    status,
			ProviderError: oauthErr.Error,
			Description:   oauthErr.ErrorDescription,
		}
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return tokenResponse{}, err
	}
	return parsed, nil
}

func (c *oauthClient) refreshGrant(ctx context.Context, refreshToken string) (tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	status, body, err := c.post(ctx, form)
	if err != nil {
		return tokenResponse{}, err
	}
	if status < 200 || status >= 300 {
		oauthErr := parseOAuthError(body)
		return tokenResponse{}, &TokenRefreshError{
			StatusCode:    status,
			ProviderError: oauthErr.Error,
			Description:   oauthErr.ErrorDescription,
		}
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return tokenResponse{}, err
	}
	return parsed, nil
}

func (c *oauthClient) post(ctx context.Context, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

func parseOAuthError(body []byte) oauthErrorResponse {
	var parsed oauthErrorResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error == "" {
		parsed.Error = "unknown_error"
		parsed.ErrorDescription = strings.TrimSpace(string(body))
	}
	return parsed
}
