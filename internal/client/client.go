// Package client talks to the autofill daemon's HTTP API, optionally over mutual TLS.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}

// Origin names the form origin of a request; exactly one field must be set.
type Origin struct {
	Web string
	App string
}

// Fill describes a started flow.
type Fill struct {
	FlowID          string `json:"flow_id"`
	Origin          string `json:"origin"`
	Query           string `json:"query"`
	Strict          bool   `json:"strict"`
	StrictAvailable bool   `json:"strict_available"`
	State           string `json:"state"`
	Generation      uint64 `json:"generation"`
}

// Result is one offered entry.
type Result struct {
	Path       string `json:"path"`
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle"`
	Identifier string `json:"identifier"`
	Account    string `json:"account"`
	Breadcrumb string `json:"breadcrumb"`
}

// Results is the latest delivery of a flow.
type Results struct {
	Generation uint64   `json:"generation"`
	Query      string   `json:"query"`
	Strict     bool     `json:"strict"`
	Pending    bool     `json:"pending"`
	Empty      bool     `json:"empty"`
	Results    []Result `json:"results"`
}

// Completion is the outcome of a selection.
type Completion struct {
	EntryPath      string `json:"entry_path"`
	ClientState    []byte `json:"-"`
	MatchPersisted bool   `json:"match_persisted"`
}

// Client calls the daemon API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// PollInterval is the delay between result polls in WaitResults.
	PollInterval time.Duration
}

// New returns a Client for baseURL using httpClient (http.DefaultClient when nil).
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: httpClient, PollInterval: 25 * time.Millisecond}
}

// LoadClientCertificate builds an HTTP client presenting the bridge certificate and
// trusting the daemon's CA.
func LoadClientCertificate(certFile, keyFile, caFile string) (*http.Client, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert/key: %w", err)
	}
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA cert")
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      caPool,
			MinVersion:   tls.VersionTLS12,
		},
	}
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Health checks that the daemon is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// StartFill starts a flow for origin with the opaque client state.
func (c *Client) StartFill(ctx context.Context, origin Origin, clientState []byte) (Fill, error) {
	var f Fill
	err := c.do(ctx, http.MethodPost, "/api/fill", map[string]string{
		"client_state": base64.StdEncoding.EncodeToString(clientState),
		"web_origin":   origin.Web,
		"app_origin":   origin.App,
	}, &f)
	return f, err
}

// SetQuery updates the query text and returns the new generation.
func (c *Client) SetQuery(ctx context.Context, flowID, text string) (uint64, error) {
	return c.updateQuery(ctx, flowID, map[string]any{"text": text})
}

// SetStrict toggles strict-domain filtering and returns the current generation.
func (c *Client) SetStrict(ctx context.Context, flowID string, strict bool) (uint64, error) {
	return c.updateQuery(ctx, flowID, map[string]any{"strict": strict})
}

func (c *Client) updateQuery(ctx context.Context, flowID string, body map[string]any) (uint64, error) {
	var out struct {
		Generation uint64 `json:"generation"`
	}
	err := c.do(ctx, http.MethodPut, "/api/fill/"+url.PathEscape(flowID)+"/query", body, &out)
	return out.Generation, err
}

// Results returns the latest delivered results of a flow.
func (c *Client) Results(ctx context.Context, flowID string) (Results, error) {
	var r Results
	err := c.do(ctx, http.MethodGet, "/api/fill/"+url.PathEscape(flowID)+"/results", nil, &r)
	return r, err
}

// WaitResults polls until the results of generation gen (or a newer one) are delivered.
func (c *Client) WaitResults(ctx context.Context, flowID string, gen uint64) (Results, error) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	for {
		r, err := c.Results(ctx, flowID)
		if err != nil {
			return Results{}, err
		}
		if !r.Pending && r.Generation >= gen {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return Results{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Select completes a flow with entryPath.
func (c *Client) Select(ctx context.Context, flowID, entryPath string, clear, persist bool) (Completion, error) {
	var out struct {
		Completion
		ClientState string `json:"client_state"`
	}
	err := c.do(ctx, http.MethodPost, "/api/fill/"+url.PathEscape(flowID)+"/select", map[string]any{
		"entry_path": entryPath, "clear": clear, "persist": persist,
	}, &out)
	if err != nil {
		return Completion{}, err
	}
	state, err := base64.StdEncoding.DecodeString(out.ClientState)
	if err != nil {
		return Completion{}, fmt.Errorf("decode client state: %w", err)
	}
	out.Completion.ClientState = state
	return out.Completion, nil
}

// Cancel ends a flow without selection.
func (c *Client) Cancel(ctx context.Context, flowID string) error {
	return c.do(ctx, http.MethodDelete, "/api/fill/"+url.PathEscape(flowID), nil, nil)
}

func originQuery(o Origin) string {
	v := url.Values{}
	if o.Web != "" {
		v.Set("web", o.Web)
	}
	if o.App != "" {
		v.Set("app", o.App)
	}
	return v.Encode()
}

// Matches lists the entries remembered for origin.
func (c *Client) Matches(ctx context.Context, origin Origin) ([]string, error) {
	var out struct {
		Entries []string `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, "/api/matches?"+originQuery(origin), nil, &out)
	return out.Entries, err
}

// ClearMatches forgets the entries remembered for origin.
func (c *Client) ClearMatches(ctx context.Context, origin Origin) error {
	return c.do(ctx, http.MethodDelete, "/api/matches?"+originQuery(origin), nil, nil)
}
