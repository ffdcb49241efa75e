package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the REST implementation of API.
type Client struct {
	baseURL string
	http    *http.Client
	oid     string
	jwt     string
	invID   string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// New returns a Client bound to one organization, credential and
// investigation id.
func New(oid, token, investigationID string, opts ...ClientOption) (*Client, error) {
	claims, err := ParseClaims(token, time.Now())
	if err != nil {
		return nil, err
	}
	if claims.OID != "" && claims.OID != oid {
		return nil, fmt.Errorf("%w: issued for %s, not %s", ErrInvalidToken, claims.OID, oid)
	}
	c := &Client{
		baseURL: DefaultURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		oid:     oid,
		jwt:     token,
		invID:   investigationID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) OID() string { return c.oid }

func (c *Client) InvestigationID() string { return c.invID }

type taskRequest struct {
	Tasks           []string `json:"tasks"`
	InvestigationID string   `json:"investigation_id,omitempty"`
}

func (c *Client) Task(ctx context.Context, sid string, tasks []string, investigationID string) error {
	if investigationID == "" {
		investigationID = c.invID
	}
	return c.do(ctx, http.MethodPost, "/"+url.PathEscape(sid), taskRequest{
		Tasks:           tasks,
		InvestigationID: investigationID,
	})
}

type ruleRequest struct {
	Name      string           `json:"name"`
	Namespace string           `json:"namespace"`
	Detect    map[string]any   `json:"detection"`
	Respond   []map[string]any `json:"response"`
	IsReplace bool             `json:"is_replace"`
}

func (c *Client) PushRule(ctx context.Context, rule Rule) error {
	return c.do(ctx, http.MethodPost, "/rules/"+url.PathEscape(c.oid), ruleRequest{
		Name:      rule.Name,
		Namespace: rule.Namespace,
		Detect:    rule.Detect,
		Respond:   rule.Respond,
		IsReplace: true,
	})
}

func (c *Client) DeleteRule(ctx context.Context, name, namespace string) error {
	return c.do(ctx, http.MethodDelete, "/rules/"+url.PathEscape(c.oid), map[string]string{
		"name":      name,
		"namespace": namespace,
	})
}

// StatusError is returned when the platform answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.jwt)
	if c.invID != "" {
		req.Header.Set("X-Investigation-Id", c.invID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return nil
}
