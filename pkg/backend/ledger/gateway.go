package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Invocation modes. Queries read state without a transaction; submits are
// signed and ordered by the network.
const (
	modeQuery  = "query"
	modeSubmit = "submit"
)

const maxErrorBody = 4 << 10

// invokeRequest is the body POSTed to {gateway}/invoke.
type invokeRequest struct {
	Network  string `json:"network"`
	Channel  string `json:"channel,omitempty"`
	Contract string `json:"contract"`
	Function string `json:"function"`
	Args     []any  `json:"args"`
	Mode     string `json:"mode"`
}

// invokeResponse is the gateway's reply. Result carries query output;
// Receipt, Status and TxID describe a submitted transaction.
type invokeResponse struct {
	Result  json.RawMessage `json:"result,omitempty"`
	Receipt json.RawMessage `json:"receipt,omitempty"`
	Status  string          `json:"status,omitempty"`
	TxID    string          `json:"txId,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// invoke calls one contract function through the gateway.
func (a *Adapter) invoke(ctx context.Context, req invokeRequest) (*invokeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding invocation: %w", err)
	}

	endpoint := strings.TrimRight(a.cfg.GatewayURL, "/") + "/invoke"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if a.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", req.Function, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var out invokeResponse
		if json.Unmarshal(msg, &out) == nil && out.Error != "" {
			return nil, fmt.Errorf("%s failed: gateway returned %d: %s", req.Function, resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("%s failed: gateway returned %d", req.Function, resp.StatusCode)
	}

	var out invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", req.Function, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%s failed: %s", req.Function, out.Error)
	}
	return &out, nil
}
