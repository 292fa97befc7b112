package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/wayfarer/cli/internal/logging"
	"github.com/wayfarer/cli/internal/nav"
	"github.com/wayfarer/cli/internal/utils"
)

// Default gateway settings
const (
	DefaultTimeout        = 10 * time.Second
	DefaultCSRFCookieName = "csrf_token"
	DefaultCSRFHeaderName = "X-CSRFToken"
	RequestIDHeader       = "X-Request-ID"
)

// Options configures a Client
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	Jar            http.CookieJar
	CSRFCookieName string
	CSRFHeaderName string
	Navigator      nav.Navigator
	Logger         *zap.Logger
	Transport      http.RoundTripper
}

// Client is the single outbound path to the backend. Every call runs the
// request interceptor before sending and the response interceptor after.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	base       *url.URL
	csrfCookie string
	csrfHeader string
	navigator  nav.Navigator
	logger     *zap.Logger
}

// NewClient creates a new API client
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", opts.BaseURL)
	}

	jar := opts.Jar
	if jar == nil {
		jar, err = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		BaseURL: base.String(),
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: opts.Transport,
		},
		base:       base,
		csrfCookie: opts.CSRFCookieName,
		csrfHeader: opts.CSRFHeaderName,
		navigator:  opts.Navigator,
		logger:     logging.OrNop(opts.Logger).Named("gateway"),
	}
	if c.csrfCookie == "" {
		c.csrfCookie = DefaultCSRFCookieName
	}
	if c.csrfHeader == "" {
		c.csrfHeader = DefaultCSRFHeaderName
	}
	return c, nil
}

// Do sends payload to path and decodes a successful JSON response into out.
// payload may be nil, url.Values (sent form-encoded) or any JSON-encodable
// value; out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, payload, out interface{}) error {
	body, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response from %s %s: %w", method, path, err)
	}
	return nil
}

// Raw sends payload to path and returns the undecoded response body
func (c *Client) Raw(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	return c.send(ctx, method, path, payload)
}

func (c *Client) send(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	c.interceptRequest(req)

	resp, err := c.HTTPClient.Do(req)
	return c.interceptResponse(req, resp, err)
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload interface{}) (*http.Request, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch p := payload.(type) {
	case nil:
	case url.Values:
		body = strings.NewReader(p.Encode())
		contentType = "application/x-www-form-urlencoded"
	case []byte:
		body = bytes.NewReader(p)
		contentType = "application/json"
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+"/"+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// interceptRequest tags the request and echoes the CSRF cookie on mutating
// methods. A missing token is logged; the server decides.
func (c *Client) interceptRequest(req *http.Request) {
	req.Header.Set(RequestIDHeader, uuid.NewString())

	if !mutating(req.Method) {
		return
	}

	if token, ok := c.csrfToken(req.URL); ok {
		req.Header.Set(c.csrfHeader, token)
		return
	}
	c.logger.Warn("csrf token cookie not found",
		zap.String("cookie", c.csrfCookie),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
	)
}

// interceptResponse classifies the outcome of a round trip and returns the
// body of a successful response
func (c *Client) interceptResponse(req *http.Request, resp *http.Response, err error) ([]byte, error) {
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("request_id", req.Header.Get(RequestIDHeader)),
	}

	if err != nil {
		kind := transportKind(err)
		c.logger.Error("request failed before a response", append(fields,
			zap.String("kind", string(kind)), zap.Error(err))...)
		return nil, utils.NewTransportError(kind, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		kind := transportKind(err)
		return nil, utils.NewTransportError(kind, req.Method, req.URL.Path, fmt.Errorf("failed to read response: %w", err))
	}

	fields = append(fields, zap.Int("status", resp.StatusCode))
	if resp.StatusCode < 400 {
		c.logger.Debug("request completed", fields...)
		return body, nil
	}

	apiErr := utils.NewAPIError(resp.StatusCode, utils.DetailFromBody(body), "")
	apiErr.Method = req.Method
	apiErr.Path = req.URL.Path
	fields = append(fields, zap.String("detail", apiErr.Message))

	switch apiErr.Kind {
	case utils.KindUnauthorized:
		c.logger.Info("session rejected", fields...)
		c.redirectToLogin()
	case utils.KindForbidden:
		c.logger.Warn("csrf token rejected or missing", fields...)
	case utils.KindRateLimited:
		c.logger.Warn("rate limited", fields...)
	case utils.KindServer:
		c.logger.Error("server error", fields...)
	default:
		c.logger.Debug("request rejected", fields...)
	}

	return nil, apiErr
}

func (c *Client) redirectToLogin() {
	if c.navigator == nil || nav.IsPublicAuthPage(c.navigator.Current()) {
		return
	}
	c.navigator.Navigate(nav.PathLogin, nil)
}

// valueJar is implemented by jars that can look a single cookie up directly
type valueJar interface {
	Value(u *url.URL, name string) (string, bool)
}

func (c *Client) csrfToken(u *url.URL) (string, bool) {
	if c.HTTPClient.Jar == nil {
		return "", false
	}
	if vj, ok := c.HTTPClient.Jar.(valueJar); ok {
		v, found := vj.Value(u, c.csrfCookie)
		return v, found && v != ""
	}
	for _, cookie := range c.HTTPClient.Jar.Cookies(u) {
		if cookie.Name == c.csrfCookie && cookie.Value != "" {
			return cookie.Value, true
		}
	}
	return "", false
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func transportKind(err error) utils.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return utils.KindTimeout
	}
	return utils.KindNetwork
}
