package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Suganthan96/NCP/internal/domain"
)

// HTTPProviders talks JSON-over-HTTP to the external wallet
// infrastructure. Each call POSTs to a fixed path under BaseURL and
// expects a 2xx with a JSON body. An unset BaseURL leaves the
// corresponding engine provider nil.
type HTTPProviders struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPProviders(baseURL string) *HTTPProviders {
	return &HTTPProviders{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *HTTPProviders) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, truncate(raw, 200))
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

func (p *HTTPProviders) CreateAccount(ctx context.Context, ownerSalt string) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	if err := p.post(ctx, "/accounts", map[string]string{"owner_salt": ownerSalt}, &out); err != nil {
		return "", err
	}
	if out.Address == "" {
		return "", errors.New("provider returned no address")
	}
	return out.Address, nil
}

func (p *HTTPProviders) RequestGrant(ctx context.Context, req GrantRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := p.post(ctx, "/permissions", req, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("provider returned no grant record")
	}
	return out, nil
}

func (p *HTTPProviders) Submit(ctx context.Context, steps []domain.Step) (string, error) {
	var out struct {
		TxID string `json:"tx_id"`
	}
	if err := p.post(ctx, "/bundles", map[string]any{"steps": steps}, &out); err != nil {
		return "", err
	}
	if out.TxID == "" {
		return "", errors.New("provider returned no tx id")
	}
	return out.TxID, nil
}
