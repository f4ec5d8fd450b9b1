// Package redfish provides the management-HTTP transport for trayctl.
//
// The client speaks a Redfish-style JSON-over-HTTP interface and exposes
// exactly the contract the orchestration core relies on: every call
// reports a transport-level ok plus the decoded payload, transport
// failures never propagate as errors, and application-level faults
// embedded in successful responses are detectable on the payload.
package redfish

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"context"

	"github.com/rs/zerolog/log"

	"github.com/openrack/trayctl/pkg/config"
)

// Payload is a decoded JSON response body. Non-JSON bodies are wrapped
// under the "raw" key.
type Payload map[string]any

// String returns the string value at key, or "" when absent or not a
// string.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Float returns the numeric value at key, or 0 when absent.
func (p Payload) Float(key string) float64 {
	f, _ := p[key].(float64)
	return f
}

// Map returns the nested object at key, or nil.
func (p Payload) Map(key string) Payload {
	m, _ := p[key].(map[string]any)
	return Payload(m)
}

// EmbeddedError reports an application-level fault carried inside an
// otherwise successful transport response. Every mutating call must be
// checked with this in addition to the transport ok.
func (p Payload) EmbeddedError() (string, bool) {
	raw, present := p["error"]
	if !present {
		return "", false
	}
	if m, ok := raw.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok && msg != "" {
			return msg, true
		}
	}
	return fmt.Sprintf("%v", raw), true
}

// Client issues HTTP calls against one management-controller endpoint.
type Client struct {
	endpoint config.Endpoint
	base     string
	http     *http.Client
}

// NewClient builds a client for the given endpoint. The endpoint must
// already be validated; NewClient re-checks the fields it depends on and
// fails fast on malformed configuration.
func NewClient(ep config.Endpoint, timeout time.Duration) (*Client, error) {
	if ep.Address == "" || ep.Username == "" || ep.Password == "" {
		return nil, fmt.Errorf("redfish endpoint requires address and credentials")
	}
	if ep.Port < 1 || ep.Port > 65535 {
		return nil, fmt.Errorf("redfish endpoint has invalid port %d", ep.Port)
	}
	scheme := ep.Protocol
	if scheme == "" {
		scheme = "https"
	}
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("redfish endpoint protocol must be http or https, got %q", scheme)
	}

	return &Client{
		endpoint: ep,
		base:     fmt.Sprintf("%s://%s:%d", scheme, ep.Address, ep.Port),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				// Management controllers ship self-signed certificates.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		},
	}, nil
}

// Address returns the endpoint address for logging.
func (c *Client) Address() string {
	return c.endpoint.Address
}

// Call issues one HTTP request. ok=false signals a connection failure,
// timeout, or non-2xx status; the payload is whatever body could be
// decoded. Transport errors are logged here and never returned upward.
func (c *Client) Call(ctx context.Context, method, path string, body any) (bool, Payload) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("failed to encode request body")
			return false, Payload{}
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to build request")
		return false, Payload{}
	}
	req.SetBasicAuth(c.endpoint.Username, c.endpoint.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, method, path)
}

// UploadMultipart performs the single multipart POST that stages a
// firmware bundle. params is serialized as the UpdateParameters part and
// the bundle is streamed as the UpdateFile part.
func (c *Client) UploadMultipart(ctx context.Context, path string, bundlePath string, params any) (bool, Payload) {
	file, err := os.Open(bundlePath)
	if err != nil {
		log.Error().Err(err).Str("bundle", bundlePath).Msg("failed to open bundle")
		return false, Payload{}
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode update parameters")
		return false, Payload{}
	}
	if err := writer.WriteField("UpdateParameters", string(paramsJSON)); err != nil {
		log.Error().Err(err).Msg("failed to write update parameters part")
		return false, Payload{}
	}

	part, err := writer.CreateFormFile("UpdateFile", filepath.Base(bundlePath))
	if err != nil {
		log.Error().Err(err).Msg("failed to create bundle part")
		return false, Payload{}
	}
	if _, err := io.Copy(part, file); err != nil {
		log.Error().Err(err).Str("bundle", bundlePath).Msg("failed to read bundle")
		return false, Payload{}
	}
	if err := writer.Close(); err != nil {
		log.Error().Err(err).Msg("failed to finalize multipart body")
		return false, Payload{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &buf)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to build upload request")
		return false, Payload{}
	}
	req.SetBasicAuth(c.endpoint.Username, c.endpoint.Password)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req, http.MethodPost, path)
}

// do executes the request and decodes the response under the transport
// contract.
func (c *Client) do(req *http.Request, method, path string) (bool, Payload) {
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		log.Error().
			Err(err).
			Str("method", method).
			Str("path", path).
			Str("address", c.endpoint.Address).
			Msg("transport call failed")
		return false, Payload{}
	}
	defer resp.Body.Close()

	payload := decodeBody(resp.Body)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	evt := log.Debug()
	if !ok {
		evt = log.Error()
	}
	evt.
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("transport call completed")

	return ok, payload
}

// decodeBody parses a response body as JSON, falling back to a raw
// string wrapper for non-JSON bodies.
func decodeBody(r io.Reader) Payload {
	raw, err := io.ReadAll(r)
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return Payload{}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Payload{"raw": strings.TrimSpace(string(raw))}
	}
	return Payload(decoded)
}
