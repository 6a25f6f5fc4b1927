// Package horde talks to the horde HTTP API with two independent network
// identities: a reception client that pops jobs and a generation client
// that submits and follows generations.
package horde

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/VilotStar/StableHorder/internal/model"
)

const (
	// HTTP timeout per request
	HTTPTimeout = 30 * time.Second

	// Upper bound on response bodies read from the horde
	maxBodySize = 32 << 20

	popPath    = "/api/v2/generate/pop"
	asyncPath  = "/api/v2/generate/async"
	checkPath  = "/api/v2/generate/check/"
	statusPath = "/api/v2/generate/status/"
)

// roleClient is the HTTP plumbing shared by both roles. It is never handed
// out directly; each role wraps its own instance.
type roleClient struct {
	role        string
	baseURL     string
	apiKey      string
	clientAgent string
	httpClient  *http.Client
}

// ReceptionClient pops jobs with the reception credential and proxy.
type ReceptionClient struct {
	rc      roleClient
	payload model.PopPayload
}

// GenerationClient submits and follows generations with the generation
// credential and proxy.
type GenerationClient struct {
	rc roleClient
}

// NewClients builds both role clients. Either both are returned or neither.
func NewClients(identity *model.WorkerIdentity) (*ReceptionClient, *GenerationClient, error) {
	if err := identity.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	base, err := url.Parse(identity.HordeURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, nil, fmt.Errorf("%w: horde_url %q is not an http(s) URL", ErrConfig, identity.HordeURL)
	}
	baseURL := strings.TrimRight(identity.HordeURL, "/")

	recHTTP, err := newHTTPClient("reception", identity.Reception.Proxy)
	if err != nil {
		return nil, nil, err
	}
	genHTTP, err := newHTTPClient("generation", identity.Generation.Proxy)
	if err != nil {
		return nil, nil, err
	}

	rec := &ReceptionClient{
		rc: roleClient{
			role:        "reception",
			baseURL:     baseURL,
			apiKey:      identity.Reception.Key,
			clientAgent: identity.ClientAgent(),
			httpClient:  recHTTP,
		},
		payload: identity.Payload,
	}
	gen := &GenerationClient{
		rc: roleClient{
			role:        "generation",
			baseURL:     baseURL,
			apiKey:      identity.Generation.Key,
			clientAgent: identity.ClientAgent(),
			httpClient:  genHTTP,
		},
	}
	return rec, gen, nil
}

// newHTTPClient gives a role its own transport so proxies and connection
// pools are never shared between roles.
func newHTTPClient(role, proxy string) (*http.Client, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("%w: %s: default transport is %T", ErrClientConstruction, role, http.DefaultTransport)
	}
	transport := base.Clone()
	transport.Proxy = nil

	if proxy != "" {
		proxyURL, err := ParseProxy(proxy)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProxy, role, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	transport.DialContext = (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &http.Client{Timeout: HTTPTimeout, Transport: transport}, nil
}

// ParseProxy validates a proxy URL. http, https and socks5 are supported.
func ParseProxy(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy %q has no host", raw)
	}
	return u, nil
}

// do sends one request and decodes a 2xx body into out.
func (c *roleClient) do(ctx context.Context, op, method, path string, auth bool, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Client-Agent", c.clientAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %w", errReadBody, err)}
	}

	if resp.StatusCode/100 != 2 {
		return &RequestError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &SchemaError{Op: op, Err: errors.New("empty body")}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &SchemaError{Op: op, Err: err}
	}
	return nil
}

// errorMessage extracts the horde's {"message": ...} body, if present.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) != nil {
		return ""
	}
	return body.Message
}

func logf(format string, args ...any) {
	log.Printf("[horde] "+format, args...)
}
