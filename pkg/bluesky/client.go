package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	errs "skeeterdeleter/pkg/errors"
	"skeeterdeleter/pkg/logger"
	"skeeterdeleter/pkg/ratelimit"
)

// DefaultPDS is the default personal data server
const DefaultPDS = "https://bsky.social"

// Client is an XRPC client for a single authenticated account.
// It does not retry or space requests; callers wrap calls in a requester.
type Client struct {
	httpClient *http.Client
	pds        string
	userAgent  string
	logger     logger.Logger
	now        func() time.Time
	gate       ratelimit.Waiter

	mu         sync.RWMutex
	accessJwt  string
	refreshJwt string
	session    Session
}

// Session identifies the logged in account
type Session struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
}

// NewClient creates a new Bluesky client. An empty pds means DefaultPDS.
func NewClient(pds string, timeout time.Duration, log logger.Logger) *Client {
	if pds == "" {
		pds = DefaultPDS
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		pds:        pds,
		userAgent:  "skeeterdeleter/1.0",
		logger:     log,
		now:        time.Now,
	}
}

// Login creates a session with an app password
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	var resp sessionResponse
	if err := c.post(ctx, OpCreateSession, body, &resp, false); err != nil {
		return err
	}

	c.setSession(resp)
	c.logger.InfoWithFields("logged in", map[string]interface{}{
		"handle": resp.Handle,
		"did":    resp.DID,
	})
	return nil
}

// Session returns the current session. Only valid after Login.
func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) setSession(resp sessionResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessJwt = resp.AccessJwt
	c.refreshJwt = resp.RefreshJwt
	c.session = Session{DID: resp.DID, Handle: resp.Handle}
}

// refresh exchanges the refresh token for a new access token
func (c *Client) refresh(ctx context.Context) error {
	c.mu.RLock()
	token := c.refreshJwt
	c.mu.RUnlock()
	if token == "" {
		return &errs.Error{Type: errs.ErrorTypeAuth, Message: "session expired", Op: OpRefreshSession}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.xrpcURL(OpRefreshSession, nil), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var resp sessionResponse
	if err := c.doJSON(req, OpRefreshSession, &resp); err != nil {
		return err
	}
	c.setSession(resp)
	c.logger.Debug("session refreshed")
	return nil
}

func (c *Client) xrpcURL(op string, params url.Values) string {
	u := c.pds + "/xrpc/" + op
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// get performs an authenticated query and decodes the JSON response
func (c *Client) get(ctx context.Context, op string, params url.Values, target interface{}) error {
	return c.withRefresh(ctx, func() error {
		req, err := c.newRequest(ctx, http.MethodGet, op, params, nil)
		if err != nil {
			return err
		}
		return c.doJSON(req, op, target)
	})
}

// getBytes performs an authenticated query and returns the raw body
func (c *Client) getBytes(ctx context.Context, op string, params url.Values) ([]byte, error) {
	var data []byte
	err := c.withRefresh(ctx, func() error {
		req, err := c.newRequest(ctx, http.MethodGet, op, params, nil)
		if err != nil {
			return err
		}
		resp, err := c.doRequest(req, op)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := c.checkResponseStatus(resp, op); err != nil {
			return err
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return &errs.Error{Type: errs.ErrorTypeNetwork, Message: fmt.Sprintf("failed to read response body: %v", err), Op: op}
		}
		return nil
	})
	return data, err
}

// post performs a procedure call with a JSON body
func (c *Client) post(ctx context.Context, op string, body, target interface{}, auth bool) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	call := func() error {
		req, err := c.newRequest(ctx, http.MethodPost, op, nil, payload)
		if err != nil {
			return err
		}
		if !auth {
			req.Header.Del("Authorization")
		}
		return c.doJSON(req, op, target)
	}
	if !auth {
		return call()
	}
	return c.withRefresh(ctx, call)
}

// SetGate makes the client wait at g before each request it sends on its
// own: the session refresh and the replay after it. The first attempt of a
// call is admitted by whoever runs the call.
func (c *Client) SetGate(g ratelimit.Waiter) {
	c.gate = g
}

func (c *Client) admit(ctx context.Context) error {
	if c.gate == nil {
		return nil
	}
	return c.gate.Wait(ctx)
}

// withRefresh runs call and, if the access token has expired, refreshes the
// session and runs it once more. Refresh and replay each pass the gate.
func (c *Client) withRefresh(ctx context.Context, call func() error) error {
	err := call()
	if !isExpiredToken(err) {
		return err
	}
	if err := c.admit(ctx); err != nil {
		return err
	}
	if err := c.refresh(ctx); err != nil {
		return err
	}
	if err := c.admit(ctx); err != nil {
		return err
	}
	return call()
}

func (c *Client) newRequest(ctx context.Context, method, op string, params url.Values, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.xrpcURL(op, params), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	token := c.accessJwt
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// doRequest sends the request and maps transport failures to network errors
func (c *Client) doRequest(req *http.Request, op string) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"op":     op,
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"op":       op,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
			Op:      op,
		}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"op":       op,
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

// doJSON sends the request and decodes a JSON body into target
func (c *Client) doJSON(req *http.Request, op string, target interface{}) error {
	resp, err := c.doRequest(req, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp, op); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
			Op:      op,
		}
	}
	if target == nil || len(body) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"op":           op,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    resp.StatusCode,
			Op:      op,
		}
	}
	return nil
}

// checkResponseStatus maps a non-2xx response to a typed error using the
// XRPC error body when present
func (c *Client) checkResponseStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var body xrpcError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	_ = json.Unmarshal(raw, &body)

	apiErr := errs.FromStatus(resp.StatusCode, body.Error, body.Message)
	apiErr.Op = op
	if apiErr.Type == errs.ErrorTypeRateLimit {
		apiErr.RetryAfter = retryAfter(resp.Header, c.now())
	}

	fields := map[string]interface{}{
		"op":     op,
		"status": resp.StatusCode,
		"type":   string(apiErr.Type),
	}
	if body.Error != "" {
		fields["xrpc_error"] = body.Error
	}
	if apiErr.RetryAfter > 0 {
		fields["retry_after"] = apiErr.RetryAfter.String()
	}
	if apiErr.Type == errs.ErrorTypeServerError || apiErr.Type == errs.ErrorTypeUnknown {
		c.logger.ErrorWithFields("API error", fields)
	} else {
		c.logger.WarnWithFields("API error", fields)
	}

	if body.Error == "ExpiredToken" {
		return &expiredTokenError{cause: apiErr}
	}
	return apiErr
}

// expiredTokenError marks an auth error the client can recover from by
// refreshing the session
type expiredTokenError struct {
	cause *errs.Error
}

func (e *expiredTokenError) Error() string {
	return e.cause.Error()
}

func (e *expiredTokenError) Unwrap() error {
	return e.cause
}

func isExpiredToken(err error) bool {
	_, ok := err.(*expiredTokenError)
	return ok
}

type sessionResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	DID        string `json:"did"`
	Handle     string `json:"handle"`
}

type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// retryAfter reads the wait hint of a 429 response: Retry-After in seconds,
// or ratelimit-reset as a unix timestamp
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := h.Get("RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(unix, 0).Sub(now); d > 0 {
				return d
			}
		}
	}
	return 0
}
