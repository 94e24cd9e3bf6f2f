// Package thingsboard is the gateway to the remote telemetry platform.
// Every operation is idempotent and safe to retry; resilience policy
// (bounded exponential backoff inside a circuit breaker) lives here so
// callers can treat any failure as a single non-fatal error.
package thingsboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"farm-control-backend/config"
	"farm-control-backend/internal/model"
)

const jwtCacheKey = "jwt"

// Gateway is the surface the engine and workers depend on.
type Gateway interface {
	PushTelemetry(ctx context.Context, deviceID string, payload map[string]any) error
	EnsureDevice(ctx context.Context, def DeviceDefinition) (string, error)
}

// DeviceState maps an actuator status onto the platform's integer
// deviceState convention: 1=open, 0=closed, -1=indeterminate.
func DeviceState(status string) int {
	switch status {
	case model.StatusOpen:
		return 1
	case model.StatusClose:
		return 0
	default:
		return -1
	}
}

// Client talks to a ThingsBoard instance over its HTTP API. JWT tokens
// and device credentials are cached with expiry.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	tokens     *cache.Cache
	breaker    *gobreaker.CircuitBreaker
	maxRetries uint64
	tokenTTL   time.Duration
	log        *zap.Logger
}

// NewClient builds a gateway client from configuration.
func NewClient(cfg *config.ThingsboardConfig, log *zap.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "thingsboard",
		Timeout: time.Duration(cfg.BreakerOpenSeconds) * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
	})

	return &Client{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		tokens:     cache.New(time.Duration(cfg.TokenTTLMinutes)*time.Minute, 10*time.Minute),
		breaker:    breaker,
		maxRetries: uint64(cfg.MaxRetries),
		tokenTTL:   time.Duration(cfg.TokenTTLMinutes) * time.Minute,
		log:        log,
	}
}

// Login authenticates against the platform and returns a JWT, cached
// until its TTL lapses.
func (c *Client) Login(ctx context.Context) (string, error) {
	if tok, found := c.tokens.Get(jwtCacheKey); found {
		return tok.(string), nil
	}

	body := map[string]string{"username": c.username, "password": c.password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/auth/login", "", body, &resp); err != nil {
		return "", fmt.Errorf("thingsboard login: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("thingsboard login: empty token")
	}

	c.tokens.Set(jwtCacheKey, resp.Token, c.tokenTTL)
	return resp.Token, nil
}

// DeviceCredentials resolves the telemetry credential for a device id.
// Credentials are stable per device, so they are cached alongside the
// JWT.
func (c *Client) DeviceCredentials(ctx context.Context, token, deviceID string) (string, error) {
	key := "cred:" + deviceID
	if cred, found := c.tokens.Get(key); found {
		return cred.(string), nil
	}

	var resp struct {
		CredentialsID string `json:"credentialsId"`
	}
	endpoint := fmt.Sprintf("%s/api/device/%s/credentials", c.baseURL, url.PathEscape(deviceID))
	if err := c.doJSON(ctx, http.MethodGet, endpoint, token, nil, &resp); err != nil {
		return "", fmt.Errorf("device credentials for %s: %w", deviceID, err)
	}
	if resp.CredentialsID == "" {
		return "", fmt.Errorf("device %s: no credentials on platform", deviceID)
	}

	c.tokens.Set(key, resp.CredentialsID, c.tokenTTL)
	return resp.CredentialsID, nil
}

// PushTelemetry authenticates, resolves the device credential, and
// posts the payload. Transient failures are retried with exponential
// backoff; sustained failure trips the breaker so a flapping platform
// cannot slow every status change down.
func (c *Client) PushTelemetry(ctx context.Context, deviceID string, payload map[string]any) error {
	if deviceID == "" {
		c.log.Debug("skipping telemetry push for device without platform id")
		return nil
	}

	_, err := c.breaker.Execute(func() (any, error) {
		bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
		return nil, backoff.Retry(func() error {
			return c.pushOnce(ctx, deviceID, payload)
		}, backoff.WithMaxRetries(bo, c.maxRetries))
	})
	if err != nil {
		c.log.Warn("telemetry push failed",
			zap.String("device_id", deviceID), zap.Error(err))
	}
	return err
}

func (c *Client) pushOnce(ctx context.Context, deviceID string, payload map[string]any) error {
	token, err := c.Login(ctx)
	if err != nil {
		return err
	}

	cred, err := c.DeviceCredentials(ctx, token, deviceID)
	if err != nil {
		// A stale JWT surfaces as a credentials failure; drop it so
		// the next attempt re-authenticates.
		c.tokens.Delete(jwtCacheKey)
		return err
	}

	endpoint := fmt.Sprintf("%s/api/v1/%s/telemetry", c.baseURL, url.PathEscape(cred))
	if err := c.doJSON(ctx, http.MethodPost, endpoint, "", payload, nil); err != nil {
		return fmt.Errorf("send telemetry for %s: %w", deviceID, err)
	}
	return nil
}

// doJSON performs one JSON request. A non-empty token is attached as
// the platform's X-Authorization bearer header.
func (c *Client) doJSON(ctx context.Context, method, endpoint, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reader = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("received non-200 status code %d: %s", resp.StatusCode, payload)
	}

	if out == nil {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
