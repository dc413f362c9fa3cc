// Package rapifac isolates all network-facing interaction with the external
// e-invoicing authority. Nothing outside this package sees transport details;
// callers get either a provider response or a typed GatewayError carrying
// enough context for manual reconciliation.
package rapifac

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mercadoandino/settlement-engine/internal/config"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
)

// Submitter is the narrow surface the invoice lifecycle depends on
type Submitter interface {
	Submit(ctx context.Context, payload *SalesDocument) (*ProviderResponse, error)
}

// SalesDocument is the JSON body posted to the provider's sales endpoint
type SalesDocument struct {
	Series        string `json:"serie"`
	Number        string `json:"numero"`
	DocumentType  string `json:"tipo_comprobante"`
	CustomerName  string `json:"cliente_nombre"`
	CustomerTaxID string `json:"cliente_ruc,omitempty"`
	Amount        string `json:"monto_total"`
	Currency      string `json:"moneda"`
	OrderID       string `json:"orden_referencia,omitempty"`
	SellerID      string `json:"vendedor_id,omitempty"`
}

// ProviderResponse carries the parsed summary plus the verbatim body, which
// is persisted with the invoice for audit.
type ProviderResponse struct {
	Success     bool            `json:"success"`
	Description string          `json:"description,omitempty"`
	Unparsed    bool            `json:"unparsed,omitempty"` // 2xx body that could not be decoded
	Raw         json.RawMessage `json:"-"`
}

type token struct {
	value     string
	expiresAt time.Time
}

// Client talks to the Rapifac e-invoicing gateway. The credential cache is
// read-mostly shared state: concurrent submissions reuse the cached token,
// and a cache miss performs exactly one password-grant exchange while other
// callers wait on the mutex.
type Client struct {
	cfg        config.RapifacConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	token token

	now func() time.Time // injectable clock for expiry tests
}

// NewClient builds a gateway client, failing fast on missing configuration
func NewClient(logger *slog.Logger, cfg config.RapifacConfig) (*Client, error) {
	if cfg.AuthURL == "" || cfg.SalesURL == "" {
		return nil, errors.New("rapifac: auth and sales endpoints are required")
	}
	if cfg.ClientID == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("rapifac: client id and service account credentials are required")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, errors.New("rapifac: request timeout must be positive")
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Token returns a cached bearer credential, performing a password-grant
// exchange when the cache is empty or within the refresh margin of expiry.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.value != "" && c.now().Before(c.token.expiresAt) {
		return c.token.value, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("rapifac: failed to build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", shared.GatewayError{Transient: true, Err: fmt.Errorf("credential exchange failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", shared.GatewayError{Transient: true, Err: fmt.Errorf("failed to read auth response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", shared.GatewayError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Transient:  resp.StatusCode >= http.StatusInternalServerError,
		}
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &grant); err != nil {
		return "", shared.GatewayError{StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("malformed auth response: %w", err)}
	}
	if grant.AccessToken == "" {
		return "", shared.GatewayError{StatusCode: resp.StatusCode, Body: string(body), Err: errors.New("auth response carried no access token")}
	}

	lifetime := c.cfg.TokenLifetime
	if grant.ExpiresIn > 0 {
		lifetime = time.Duration(grant.ExpiresIn) * time.Second
	}
	refresh := c.cfg.TokenRefresh
	if refresh <= 0 || refresh >= lifetime {
		// Conservative fallback: refresh at 55/60 of the declared lifetime
		refresh = lifetime * 55 / 60
	}

	c.token = token{
		value:     grant.AccessToken,
		expiresAt: c.now().Add(refresh),
	}
	c.logger.Debug("acquired gateway credential", "expires_at", c.token.expiresAt)

	return c.token.value, nil
}

// Submit POSTs an invoice payload to the sales endpoint with the bearer
// credential. It never retries internally; retry policy belongs to the
// invoice lifecycle, which knows whether a failure is transient.
func (c *Client) Submit(ctx context.Context, payload *SalesDocument) (*ProviderResponse, error) {
	bearer, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("rapifac: failed to marshal sales document: %w", err)
	}

	endpoint := c.cfg.SalesURL
	if c.cfg.BranchID != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("rapifac: invalid sales endpoint: %w", err)
		}
		q := u.Query()
		q.Set("sucursal", c.cfg.BranchID)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("rapifac: failed to build sales request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, shared.GatewayError{Transient: true, Err: fmt.Errorf("sales submission failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, shared.GatewayError{Transient: true, Err: fmt.Errorf("failed to read sales response: %w", err)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error("gateway rejected sales document",
			"status", resp.StatusCode,
			"series", payload.Series,
			"number", payload.Number,
		)
		return nil, shared.GatewayError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Transient:  resp.StatusCode >= http.StatusInternalServerError,
		}
	}

	providerResp := &ProviderResponse{Raw: body}
	// The parsed summary is best effort; the raw body is what gets audited.
	// An unparseable body is never reported as success
	if err := json.Unmarshal(body, providerResp); err != nil {
		c.logger.Warn("unparseable provider response",
			"status", resp.StatusCode,
			"series", payload.Series,
			"number", payload.Number,
		)
		providerResp.Success = false
		providerResp.Unparsed = true
		providerResp.Description = "unparseable provider response"
	}
	providerResp.Raw = body

	return providerResp, nil
}

// InvalidateToken drops the cached credential, forcing the next call to
// re-authenticate. Used when the provider starts rejecting the bearer early.
func (c *Client) InvalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token{}
}
