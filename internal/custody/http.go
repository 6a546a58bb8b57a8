package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/crypto"
	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// Client is a domain.Custody backed by an external custody service. Every
// request is signed with HMAC so the service can reject calls that do not
// come from this engine.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
}

// NewClient creates a custody client for baseURL, e.g. "https://custody.internal".
func NewClient(baseURL string, auth *crypto.HMACAuth) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		auth:       auth,
	}
}

type accountJSON struct {
	ID      string `json:"id"`
	Owner   string `json:"owner"`
	Asset   string `json:"asset"`
	Balance uint64 `json:"balance"`
}

type transferJSON struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	MarketID      string `json:"market_id,omitempty"`
	From          string `json:"from"`
	To            string `json:"to"`
	Amount        uint64 `json:"amount"`
	Asset         string `json:"asset,omitempty"`
	Authority     string `json:"authority"`
	ExpectedOwner string `json:"expected_owner,omitempty"`
}

type receiptJSON struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Amount     uint64    `json:"amount"`
	ExecutedAt time.Time `json:"executed_at"`
}

// OpenAccount creates or fetches an account on the custody service.
func (c *Client) OpenAccount(ctx context.Context, id, owner, asset string) (domain.Account, error) {
	var out accountJSON
	err := c.do(ctx, http.MethodPost, "/v1/accounts", accountJSON{ID: id, Owner: owner, Asset: asset}, &out)
	if err != nil {
		return domain.Account{}, fmt.Errorf("custody: open account %s: %w", id, err)
	}
	return domain.Account(out), nil
}

// Account fetches an account.
func (c *Client) Account(ctx context.Context, id string) (domain.Account, error) {
	var out accountJSON
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(id), nil, &out); err != nil {
		return domain.Account{}, fmt.Errorf("custody: get account %s: %w", id, err)
	}
	return domain.Account(out), nil
}

// Transfer submits a transfer instruction. The service treats the id as an
// idempotency key.
func (c *Client) Transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferReceipt, error) {
	var out receiptJSON
	body := transferJSON{
		ID:            req.ID,
		Kind:          string(req.Kind),
		MarketID:      req.MarketID,
		From:          req.From,
		To:            req.To,
		Amount:        req.Amount,
		Asset:         req.Asset,
		Authority:     req.Authority,
		ExpectedOwner: req.ExpectedOwner,
	}
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", body, &out); err != nil {
		return domain.TransferReceipt{}, fmt.Errorf("custody: transfer %s: %w", req.ID, err)
	}
	return domain.TransferReceipt{
		ID:         out.ID,
		Kind:       domain.TransferKind(out.Kind),
		From:       out.From,
		To:         out.To,
		Amount:     out.Amount,
		ExecutedAt: out.ExecutedAt,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(b)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		for k, v := range c.auth.Headers(method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkHTTPStatus maps error responses to domain errors. The service reports
// a machine-readable code which takes precedence over the status.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.Unmarshal(body, &apiErr)
	if sentinel := domain.FromCode(apiErr.Code); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, apiErr.Error)
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

var _ domain.Custody = (*Client)(nil)
