package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"evmbridge/rpc"
)

// client is a minimal JSON-RPC client for bridged.
type client struct {
	endpoint string
	token    string
	http     *http.Client
	nextID   atomic.Int64
}

func newClient(endpoint, token string) *client {
	return &client{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/") + "/",
		token:    strings.TrimSpace(token),
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// call invokes method with params as the single params object and decodes the
// result into out when out is non-nil.
func (c *client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      c.nextID.Add(1),
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.RPCError   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("%s: decode response (HTTP %d): %w", method, resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(decoded.Result, out)
}
