// Package provider exchanges mini-program login codes for an open id and a
// session key through the identity provider's code2session endpoint.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/MrEthical07/mpauth"
)

// DefaultEndpoint is the public code2session URL.
const DefaultEndpoint = "https://api.weixin.qq.com/sns/jscode2session"

// CodeMissingIdentity is the ProviderError code used when the provider answers
// without an error but also without an open id or session key.
const CodeMissingIdentity = -1

const maxResponseBytes = 64 << 10

// Config configures a Client.
type Config struct {
	AppID    string
	Secret   string
	Endpoint string
	Timeout  time.Duration
}

// Client implements mpauth.IdentityProvider over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

type sessionResponse struct {
	OpenID     string `json:"openid"`
	SessionKey string `json:"session_key"`
	UnionID    string `json:"unionid"`
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
}

// New returns a Client. A nil httpClient gets a default one bounded by cfg.Timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Exchange trades code for an external identity. Provider-reported errors are
// returned as *mpauth.ProviderError; transport failures wrap
// mpauth.ErrProviderUnavailable and keep the underlying cause.
func (c *Client) Exchange(ctx context.Context, code string) (mpauth.ExternalIdentity, error) {
	q := url.Values{}
	q.Set("appid", c.cfg.AppID)
	q.Set("secret", c.cfg.Secret)
	q.Set("js_code", code)
	q.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return mpauth.ExternalIdentity{}, fmt.Errorf("%w: %w", mpauth.ErrProviderUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return mpauth.ExternalIdentity{}, fmt.Errorf("%w: %w", mpauth.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return mpauth.ExternalIdentity{}, fmt.Errorf("%w: unexpected status %d", mpauth.ErrProviderUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return mpauth.ExternalIdentity{}, fmt.Errorf("%w: %w", mpauth.ErrProviderUnavailable, err)
	}

	var out sessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return mpauth.ExternalIdentity{}, fmt.Errorf("%w: malformed response: %v", mpauth.ErrProviderUnavailable, err)
	}

	if out.ErrCode != 0 {
		return mpauth.ExternalIdentity{}, &mpauth.ProviderError{Code: out.ErrCode, Message: out.ErrMsg}
	}
	if out.OpenID == "" || out.SessionKey == "" {
		if out.ErrMsg != "" {
			return mpauth.ExternalIdentity{}, &mpauth.ProviderError{Code: CodeMissingIdentity, Message: out.ErrMsg}
		}
		return mpauth.ExternalIdentity{}, &mpauth.ProviderError{Code: CodeMissingIdentity, Message: "response carried no openid or session_key"}
	}

	return mpauth.ExternalIdentity{
		OpenID:     out.OpenID,
		SessionKey: out.SessionKey,
		UnionID:    out.UnionID,
	}, nil
}
