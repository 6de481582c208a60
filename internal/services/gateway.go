package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// CreateIntentInput describes a card/wallet charge to set up with the
// external provider. The core never sees provider wire formats beyond this.
type CreateIntentInput struct {
	Amount   decimal.Decimal
	Currency string
	Metadata map[string]string
}

// IntentResult is the provider's handle for a pending charge. The client
// secret goes back to the staff terminal to drive the actual capture.
type IntentResult struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
}

// RefundResult is the provider's handle for a reversal.
type RefundResult struct {
	RefundID string `json:"refund_id"`
}

// CardGateway abstracts the external payment provider.
type CardGateway interface {
	CreateIntent(ctx context.Context, in CreateIntentInput) (*IntentResult, error)
	Refund(ctx context.Context, chargeID string, amount decimal.Decimal) (*RefundResult, error)
}

// HTTPCardGateway talks to the provider's REST API with a bounded timeout.
type HTTPCardGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPCardGateway(baseURL, apiKey string) *HTTPCardGateway {
	return &HTTPCardGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *HTTPCardGateway) CreateIntent(ctx context.Context, in CreateIntentInput) (*IntentResult, error) {
	if g.baseURL == "" {
		return nil, errors.New("card gateway is not configured")
	}

	payload := map[string]any{
		"amount":   in.Amount.StringFixed(2),
		"currency": in.Currency,
		"metadata": in.Metadata,
	}

	var result IntentResult
	if err := g.post(ctx, "/v1/intents", payload, &result); err != nil {
		return nil, err
	}
	if result.IntentID == "" {
		return nil, errors.New("gateway returned an empty intent id")
	}
	return &result, nil
}

func (g *HTTPCardGateway) Refund(ctx context.Context, chargeID string, amount decimal.Decimal) (*RefundResult, error) {
	if g.baseURL == "" {
		return nil, errors.New("card gateway is not configured")
	}

	payload := map[string]any{
		"charge_id": chargeID,
		"amount":    amount.StringFixed(2),
	}

	var result RefundResult
	if err := g.post(ctx, "/v1/refunds", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (g *HTTPCardGateway) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gateway request marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gateway request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway %s: status %d, body: %s", path, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("gateway response unmarshal: %w", err)
	}
	return nil
}
