package ncpsdk

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

// Client is a minimal NCP HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Node is one vertex of a workflow graph (partial, enough to build
// graphs programmatically).
type Node struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Account  map[string]any `json:"account,omitempty"`
	Transfer map[string]any `json:"transfer,omitempty"`
	Swap     map[string]any `json:"swap,omitempty"`
	Scope    map[string]any `json:"scope,omitempty"`
}

// Edge is a directed connection between node ids.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Workflow is a stored graph.
type Workflow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Nodes     []Node `json:"nodes"`
	Edges     []Edge `json:"edges"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Validation is a topology check result.
type Validation struct {
	OK         bool   `json:"ok"`
	Pattern    string `json:"pattern"`
	ScopeCount int    `json:"scope_count"`
	Reason     string `json:"reason"`
	Expected   string `json:"expected"`
	Found      string `json:"found"`
}

// Step is one plan operation.
type Step struct {
	OperationKind   string `json:"operation_kind"`
	AccountAddress  string `json:"account_address"`
	Recipient       string `json:"recipient"`
	Amount          string `json:"amount"`
	ContractAddress string `json:"contract_address,omitempty"`
	Symbol          string `json:"symbol,omitempty"`
	Description     string `json:"description"`
	TransferNodeID  string `json:"transfer_node_id"`
}

// Plan is the synthesized execution plan with its summary.
type Plan struct {
	Plan struct {
		Steps      []Step `json:"steps"`
		TotalSteps int    `json:"total_steps"`
		Skipped    int    `json:"skipped"`
	} `json:"plan"`
	Summary string `json:"summary"`
}

// Grant is a cached permission record.
type Grant struct {
	Key       string         `json:"key"`
	Record    map[string]any `json:"record,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// SessionKey is a stored signing credential (private material is never
// returned by the API).
type SessionKey struct {
	NodeID         string `json:"node_id"`
	AccountAddress string `json:"account_address"`
	PublicAddress  string `json:"public_address"`
	CreatedAt      string `json:"created_at"`
	ExpiresAt      string `json:"expires_at"`
	Authorized     bool   `json:"authorized"`
}

// Event is a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	WorkflowID string         `json:"workflow_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ImportWorkflow stores a graph.
func (c *Client) ImportWorkflow(ctx context.Context, name string, nodes []Node, edges []Edge) (Workflow, error) {
	body := map[string]any{
		"name":  name,
		"nodes": nodes,
		"edges": edges,
	}
	var resp Workflow
	err := c.do(ctx, http.MethodPost, "v0/workflows", body, &resp)
	return resp, err
}

// GetWorkflow fetches a workflow by id.
func (c *Client) GetWorkflow(ctx context.Context, id string) (Workflow, error) {
	var resp Workflow
	err := c.do(ctx, http.MethodGet, c.workflowPath(id, ""), nil, &resp)
	return resp, err
}

// Validate checks a workflow's topology.
func (c *Client) Validate(ctx context.Context, id string) (Validation, error) {
	var resp Validation
	err := c.do(ctx, http.MethodGet, c.workflowPath(id, "validate"), nil, &resp)
	return resp, err
}

// Plan synthesizes the execution plan.
func (c *Client) Plan(ctx context.Context, id string) (Plan, error) {
	var resp Plan
	err := c.do(ctx, http.MethodGet, c.workflowPath(id, "plan"), nil, &resp)
	return resp, err
}

// Execute submits the workflow's plan.
func (c *Client) Execute(ctx context.Context, id string) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodPost, c.workflowPath(id, "execute"), nil, &resp)
	return resp, err
}

// RequestPermission requests a grant for one transfer node.
func (c *Client) RequestPermission(ctx context.Context, workflowID, transferID string) (Grant, error) {
	var resp Grant
	endpoint := c.workflowPath(workflowID, fmt.Sprintf("transfers/%s/permission", url.PathEscape(transferID)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Grants lists cached permission grants.
func (c *Client) Grants(ctx context.Context) ([]Grant, error) {
	var resp []Grant
	err := c.do(ctx, http.MethodGet, "v0/grants", nil, &resp)
	return resp, err
}

// EnsureSessionKey gets or creates the session key for (node, account).
func (c *Client) EnsureSessionKey(ctx context.Context, nodeID, account string) (SessionKey, bool, error) {
	body := map[string]any{
		"node_id":         nodeID,
		"account_address": account,
	}
	var resp struct {
		Key     SessionKey `json:"key"`
		Created bool       `json:"created"`
	}
	err := c.do(ctx, http.MethodPost, "v0/session-keys", body, &resp)
	return resp.Key, resp.Created, err
}

// AuthorizeSessionKey marks the key authorized.
func (c *Client) AuthorizeSessionKey(ctx context.Context, nodeID, account string) error {
	body := map[string]any{
		"node_id":         nodeID,
		"account_address": account,
	}
	return c.do(ctx, http.MethodPost, "v0/session-keys/authorize", body, nil)
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) workflowPath(id, p string) string {
	endpoint := fmt.Sprintf("v0/workflows/%s", url.PathEscape(id))
	if p != "" {
		endpoint += "/" + strings.TrimLeft(p, "/")
	}
	return endpoint
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
