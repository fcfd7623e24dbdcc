// Package daikin provides an API client for the Daikin One+ smart thermostat, using the Daikin integrator API.
//
// Using this package typically involves creating a Client as follows:
//
//	client := daikin.New(daikin.Credentials{
//		Email:           "your-daikin-account",
//		APIKey:          "your-api-key",
//		IntegratorToken: "your-integrator-token",
//	})
//
// Creating a client has no side effects. The client authenticates on its first request and transparently renews
// its access token when it expires.
//
// The following APIs are supported:
//
//	GetDevices:               get the devices at the configured location
//	GetDeviceInfo:            get the state of a device
//	GetDevicesInfo:           get the state of all devices
//	UpdateDeviceModeSetpoint: set the mode and heat/cool setpoints of a device
//	UpdateDeviceSchedule:     enable or disable the schedule of a device
//	UpdateDeviceFanSettings:  set the fan circulation of a device
package daikin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// BaseURL is the address of the Daikin integrator API.
const BaseURL = "https://integrator-api.daikinskyport.com"

const (
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 4
)

// Client represents a Daikin integrator API client.
type Client struct {
	credentials Credentials
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
	timeout     time.Duration
	concurrency int
	now         func() time.Time
	session     *oauth2.Token
	lock        sync.RWMutex
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the address of the API. Used for testing.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets the http.Client used to call the API.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the maximum duration of a single request. Default is 10 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithConcurrency sets how many devices GetDevicesInfo queries in parallel. Default is 4.
func WithConcurrency(concurrency int) Option {
	return func(c *Client) {
		if concurrency > 0 {
			c.concurrency = concurrency
		}
	}
}

// New returns a new Client. No requests are made until the first API call.
func New(credentials Credentials, options ...Option) *Client {
	c := Client{
		credentials: credentials,
		baseURL:     BaseURL,
		httpClient:  http.DefaultClient,
		logger:      slog.Default(),
		timeout:     defaultTimeout,
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, option := range options {
		option(&c)
	}
	return &c
}

// GetToken authenticates with the API and stores the new access token. Normally this doesn't need to be called
// by the application: each API call gets a new token when the current one has expired.
//
// If the API rejects the credentials, or doesn't return a valid token, GetToken returns ErrInvalidCredentials.
// If the API can't be reached, it returns ErrServerNotReachable.
func (c *Client) GetToken(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("authenticating")

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/token", tokenRequest{
		Email:           c.credentials.Email,
		IntegratorToken: c.credentials.IntegratorToken,
	})
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &reachabilityError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &reachabilityError{err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, resp.Status)
	case resp.StatusCode >= http.StatusInternalServerError:
		return &reachabilityError{err: errors.New(resp.Status)}
	}

	var response tokenResponse
	if err = json.Unmarshal(body, &response); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &reachabilityError{err: errors.New(resp.Status)}
		}
		return fmt.Errorf("%w: malformed token response: %w", ErrInvalidCredentials, err)
	}
	if response.AccessToken == nil || *response.AccessToken == "" || response.AccessTokenExpiresIn == nil {
		return fmt.Errorf("%w: missing accessToken or accessTokenExpiresIn in the response", ErrInvalidCredentials)
	}

	session := oauth2.Token{
		AccessToken: *response.AccessToken,
		TokenType:   "Bearer",
		Expiry:      c.now().Add(time.Duration(*response.AccessTokenExpiresIn) * time.Second),
	}

	c.lock.Lock()
	c.session = &session
	c.lock.Unlock()

	c.logger.Debug("authenticated", "expires", session.Expiry)
	return nil
}

// ensureTokenValid gets a new token if there is none, or if the current one has expired.
// Two concurrent callers may both refresh the token. That's harmless: the last one wins.
func (c *Client) ensureTokenValid(ctx context.Context) error {
	c.lock.RLock()
	valid := c.session != nil && c.now().Before(c.session.Expiry)
	c.lock.RUnlock()

	if valid {
		return nil
	}
	return c.GetToken(ctx)
}

func (c *Client) getSession() *oauth2.Token {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.session
}

// request performs an authenticated call and returns the response body. Any non-2xx status is returned as an *APIError.
// If the response has no content, request returns an empty JSON object.
func (c *Client) request(ctx context.Context, method, path string, payload any) ([]byte, error) {
	resp, err := c.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(resp.Body),
		}
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return []byte("{}"), nil
	}
	return resp.Body, nil
}

// do performs an authenticated call. It only returns an error if the call could not be made.
func (c *Client) do(ctx context.Context, method, path string, payload any) (*Response, error) {
	if err := c.ensureTokenValid(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	c.getSession().SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &reachabilityError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &reachabilityError{err: err}
	}

	c.logger.Debug("call done", "method", method, "path", path, "status", resp.StatusCode)

	return &Response{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		content, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(content)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.credentials.APIKey)
	return req, nil
}
