// Package controller is the HTTP client for the remote controller:
// registration, desired-state polling and telemetry.
package controller

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/relayd/internal/device"
)

// maxBody bounds how much of a response body is read.
const maxBody = 64 << 10

// Paths are the default controller paths, joined to the base URL.
type Paths struct {
	Register  string
	State     string
	Telemetry string
}

// DefaultPaths returns the controller's standard API paths.
func DefaultPaths() Paths {
	return Paths{
		Register:  "/api/devices/register",
		State:     "/api/pump/state",
		Telemetry: "/api/telemetry",
	}
}

// Endpoints is what the client currently talks to. Overrides come from
// controller directives and may be absolute URLs or paths.
type Endpoints struct {
	BaseURL           string
	StateOverride     string
	TelemetryOverride string
}

// Client talks to the controller. https URLs are served by a transport
// with certificate verification disabled; controllers on a LAN commonly
// use self-signed certificates.
type Client struct {
	paths      Paths
	httpClient *http.Client
	limiter    *rate.Limiter

	mu        sync.RWMutex
	endpoints Endpoints
}

// NewClient creates a controller client.
func NewClient(paths Paths, timeout time.Duration, rps float64) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if rps <= 0 {
		rps = 5
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	return &Client{
		paths: paths,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// SetEndpoints replaces the base URL and directive overrides.
func (c *Client) SetEndpoints(e Endpoints) {
	c.mu.Lock()
	c.endpoints = e
	c.mu.Unlock()
}

// Endpoints returns the current endpoints.
func (c *Client) Endpoints() Endpoints {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoints
}

// Close closes idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// RegisterURL returns the resolved registration URL.
func (c *Client) RegisterURL() string {
	e := c.Endpoints()
	return JoinURL(e.BaseURL, c.paths.Register)
}

// StateURL returns the resolved state URL, without the device query.
func (c *Client) StateURL() string {
	e := c.Endpoints()
	return JoinURL(e.BaseURL, firstNonEmpty(e.StateOverride, c.paths.State))
}

// TelemetryURL returns the resolved telemetry URL.
func (c *Client) TelemetryURL() string {
	e := c.Endpoints()
	return JoinURL(e.BaseURL, firstNonEmpty(e.TelemetryOverride, c.paths.Telemetry))
}

// Register announces the device and returns its identity and any directives.
// A reply without a device id or token is an invalid response.
func (c *Client) Register(ctx context.Context, mac, name string) (*Registration, error) {
	body, err := json.Marshal(registerRequest{
		MAC:            mac,
		Name:           name,
		ConnectionType: "http",
	})
	if err != nil {
		return nil, invalidResponse(OpRegister, err)
	}

	code, respBody, err := c.do(ctx, OpRegister, http.MethodPost, c.RegisterURL(), "", body)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK && code != http.StatusCreated {
		return nil, statusError(OpRegister, code, truncate(respBody))
	}

	var resp registerResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, invalidResponse(OpRegister, err)
	}
	if resp.DeviceID == 0 || resp.Token == "" {
		return nil, invalidResponse(OpRegister, errors.New("missing device_id or token"))
	}

	reg := &Registration{
		Identity: device.Identity{ID: resp.DeviceID, Token: resp.Token},
	}
	if resp.HTTP != nil {
		reg.Directives = &device.DirectiveUpdate{
			StateURL:     resp.HTTP.State,
			TelemetryURL: resp.HTTP.Telemetry,
			PollInterval: pollInterval(resp.HTTP.PollSeconds),
		}
	}
	return reg, nil
}

// FetchDesiredState returns the controller's declared relay intent.
func (c *Client) FetchDesiredState(ctx context.Context, id uint32, token string) (bool, error) {
	url := c.StateURL()
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	url += sep + "device_id=" + strconv.FormatUint(uint64(id), 10)

	code, respBody, err := c.do(ctx, OpState, http.MethodGet, url, token, nil)
	if err != nil {
		return false, err
	}
	if code != http.StatusOK {
		return false, statusError(OpState, code, truncate(respBody))
	}

	var resp stateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return false, invalidResponse(OpState, err)
	}
	return Truthy(resp.ShouldRun), nil
}

// SendTelemetry pushes a snapshot. 200 and 202 are both success.
func (c *Client) SendTelemetry(ctx context.Context, id uint32, token string, t Telemetry) error {
	body, err := json.Marshal(telemetryRequest{DeviceID: id, Telemetry: t})
	if err != nil {
		return invalidResponse(OpTelemetry, err)
	}

	code, respBody, err := c.do(ctx, OpTelemetry, http.MethodPost, c.TelemetryURL(), token, body)
	if err != nil {
		return err
	}
	if code != http.StatusOK && code != http.StatusAccepted {
		return statusError(OpTelemetry, code, truncate(respBody))
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, url, token string, body []byte) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, transportError(op, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, transportError(op, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, transportError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, nil, transportError(op, fmt.Errorf("failed to read body: %w", err))
	}

	log.Debug().
		Str("op", op).
		Str("method", method).
		Str("url", url).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Controller request")

	return resp.StatusCode, respBody, nil
}

// JoinURL joins base and path with exactly one slash. An absolute http(s)
// path is returned unchanged.
func JoinURL(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	baseSlash := strings.HasSuffix(base, "/")
	pathSlash := strings.HasPrefix(path, "/")
	switch {
	case baseSlash && pathSlash:
		return base + path[1:]
	case !baseSlash && !pathSlash:
		return base + "/" + path
	default:
		return base + path
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
