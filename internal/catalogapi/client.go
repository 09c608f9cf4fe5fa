// Package catalogapi is a typed client for the catalog REST API.
package catalogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Observer receives one observation per upstream call. code is 0 when the request never completed.
type Observer interface {
	ObserveUpstream(op string, code int, elapsed time.Duration)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Observer   Observer
}

// Client talks to the catalog API on behalf of the signed-in admin.
type Client struct {
	baseURL    string
	httpClient *http.Client
	observer   Observer
}

// NewClient constructs a Client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		observer:   cfg.Observer,
	}
}

type sessionContextKey struct{}

// ContextWithSession attaches the upstream session cookie header to ctx.
func ContextWithSession(ctx context.Context, cookieHeader string) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, cookieHeader)
}

// SessionFromContext returns the upstream session cookie header carried by ctx.
func SessionFromContext(ctx context.Context) string {
	value, _ := ctx.Value(sessionContextKey{}).(string)
	return value
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cookie := SessionFromContext(ctx); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	return req, nil
}

func (c *Client) do(op string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(op, 0, time.Since(start))
		return nil, &TransportError{Op: op, Err: err}
	}
	c.observe(op, resp.StatusCode, time.Since(start))
	return resp, nil
}

func (c *Client) observe(op string, code int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveUpstream(op, code, elapsed)
	}
}

// call issues a JSON request and decodes a JSON response into dest.
func (c *Client) call(ctx context.Context, op, method, path string, in, dest any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("catalogapi: %s: encode: %w", op, err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	resp, err := c.do(op, req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return decodeResponse(op, resp, dest)
}

func (c *Client) upload(ctx context.Context, op, path, field, filename string, content io.Reader, dest any) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body, writer.FormDataContentType())
	if err != nil {
		return err
	}
	resp, err := c.do(op, req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return decodeResponse(op, resp, dest)
}

// download returns the response body of a file endpoint. The caller closes it.
func (c *Client) download(ctx context.Context, op, path string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")
	resp, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	mediaType := mediaTypeOf(resp)
	if resp.StatusCode >= 300 || mediaType == "application/json" {
		defer func() {
			_ = resp.Body.Close()
		}()
		if err := decodeResponse(op, resp, nil); err != nil {
			return nil, err
		}
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Message: "unexpected JSON body"}
	}
	if mediaType == "text/html" {
		_ = resp.Body.Close()
		return nil, ErrNotAuthenticated
	}
	return resp.Body, nil
}

type errorEnvelope struct {
	Error *string `json:"error"`
}

func decodeResponse(op string, resp *http.Response, dest any) error {
	if resp.StatusCode >= 500 && mediaTypeOf(resp) != "application/json" {
		return &StatusError{Op: op, Code: resp.StatusCode}
	}
	if mediaTypeOf(resp) != "application/json" {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return ErrNotAuthenticated
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	var envelope errorEnvelope
	if isJSONObject(raw) {
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return fmt.Errorf("catalogapi: %s: decode: %w", op, err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{Op: op, Code: resp.StatusCode}
		if envelope.Error != nil {
			statusErr.Message = *envelope.Error
		}
		return statusErr
	}
	if envelope.Error != nil {
		return &AppError{Op: op, Message: *envelope.Error}
	}
	if dest == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("catalogapi: %s: decode: %w", op, err)
	}
	return nil
}

// Is lets errors.Is(err, ErrNotAuthenticated) match a 401 response.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotAuthenticated && e.Code == http.StatusUnauthorized
}

func mediaTypeOf(resp *http.Response) string {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mediaType
}

func isJSONObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// Login signs in to the API with form credentials and returns the session cookie header to
// replay on later calls.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	const op = "login"
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	req, err := c.newRequest(ctx, http.MethodPost, "/login", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return "", err
	}
	req.Header.Del("Cookie")
	req.Header.Set("Accept", "text/html")
	noRedirect := *c.httpClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	start := time.Now()
	resp, err := noRedirect.Do(req)
	if err != nil {
		c.observe(op, 0, time.Since(start))
		return "", &TransportError{Op: op, Err: err}
	}
	c.observe(op, resp.StatusCode, time.Since(start))
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrInvalidCredentials
	}
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return "", &StatusError{Op: op, Code: resp.StatusCode}
	}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return "", ErrInvalidCredentials
	}
	parts := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		parts = append(parts, cookie.Name+"="+cookie.Value)
	}
	return strings.Join(parts, "; "), nil
}

func productPath(id int64, suffix ...string) string {
	path := fmt.Sprintf("/api/productos/%d", id)
	for _, s := range suffix {
		path += "/" + s
	}
	return path
}
