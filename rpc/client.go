package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tolelom/tolbattle/core"
)

// Client calls a node's JSON-RPC endpoint.
type Client struct {
	URL   string
	Token string
	HTTP  *http.Client

	nextID atomic.Int64
}

// NewClient returns a Client for url with a 30 second request timeout.
func NewClient(url, token string) *Client {
	return &Client{URL: url, Token: token, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

// Call invokes method with params and decodes the result into result when
// it is non-nil. A JSON-RPC error comes back as *Error.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		raw = b
	}
	body, err := json.Marshal(Request{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: raw})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http %s", method, resp.Status)
	}

	var out struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if out.Error != nil {
		return out.Error
	}
	if result != nil && len(out.Result) > 0 {
		if err := json.Unmarshal(out.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

// ChainID asks the node which chain it serves.
func (c *Client) ChainID(ctx context.Context) (string, error) {
	var res map[string]string
	if err := c.Call(ctx, "getStateRoot", nil, &res); err != nil {
		return "", err
	}
	return res["chain_id"], nil
}

// SendTx submits a signed transaction and returns its receipt.
func (c *Client) SendTx(ctx context.Context, tx *core.Transaction) (*core.Receipt, error) {
	var r core.Receipt
	if err := c.Call(ctx, "sendTx", tx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Player fetches and decodes the player record at address.
func (c *Client) Player(ctx context.Context, address string) (*PlayerView, error) {
	var p PlayerView
	if err := c.Call(ctx, "getPlayer", map[string]string{"address": address}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Battlefield fetches and decodes the battlefield record at address.
func (c *Client) Battlefield(ctx context.Context, address string) (*BattlefieldView, error) {
	var bf BattlefieldView
	if err := c.Call(ctx, "getBattlefield", map[string]string{"address": address}, &bf); err != nil {
		return nil, err
	}
	return &bf, nil
}
