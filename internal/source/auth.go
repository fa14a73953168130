package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rionegro-oan/matchup-cli/internal/config"
	"github.com/rionegro-oan/matchup-cli/internal/resilience"
)

// tokenExpirySlack refreshes tokens this long before they actually expire.
const tokenExpirySlack = 60 * time.Second

// TokenProvider exchanges CDSE client credentials for bearer tokens and
// caches them until shortly before expiry. Safe for concurrent use.
type TokenProvider struct {
	cfg    config.CDSEConfig
	client *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenProvider builds a provider for the CDSE identity endpoint.
func NewTokenProvider(cfg config.CDSEConfig) *TokenProvider {
	return &TokenProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Token returns a valid bearer token, refreshing if needed.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.expires) {
		return p.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "token request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusBadRequest {
		return "", &resilience.AuthError{Service: "cdse-identity", StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", eris.Wrap(err, "decode token response")
	}
	if body.AccessToken == "" {
		return "", &resilience.AuthError{Service: "cdse-identity", StatusCode: resp.StatusCode}
	}

	p.token = body.AccessToken
	p.expires = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - tokenExpirySlack)

	zap.L().Debug("cdse token refreshed", zap.Time("expires", p.expires))
	return p.token, nil
}

// Authorizer returns a request decorator that attaches the bearer token,
// suitable for fetcher.HTTPOptions.Authorize.
func (p *TokenProvider) Authorizer() func(ctx context.Context, req *http.Request) error {
	return func(ctx context.Context, req *http.Request) error {
		tok, err := p.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		return nil
	}
}
