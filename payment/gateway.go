// Package payment drives the mobile money charge flow: the synchronous STK
// push against the gateway, the bounded poll for its asynchronous
// confirmation, and voucher issuance once a payment is confirmed.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultAPIURL = "https://backend.payhero.co.ke/api/v2"

// ChargeRequest is the gateway's STK push payload.
type ChargeRequest struct {
	Amount            int    `json:"amount"`
	PhoneNumber       string `json:"phone_number"`
	ChannelID         int    `json:"channel_id"`
	Provider          string `json:"provider"`
	ExternalReference string `json:"external_reference"`
	CallbackURL       string `json:"callback_url"`
}

// ChargeResponse is the gateway's synchronous answer. CheckoutRequestID is
// the correlation id joining this charge to its later callback.
type ChargeResponse struct {
	Success           bool   `json:"success"`
	Status            string `json:"status"`
	Reference         string `json:"reference"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ErrorMessage      string `json:"error_message"`
}

// Client calls the hosted mobile money gateway.
type Client struct {
	apiURL     string
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		apiURL:     defaultAPIURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewClientWithURL points the client at a different gateway base URL,
// mainly for tests.
func NewClientWithURL(apiURL string) *Client {
	c := NewClient()
	c.apiURL = apiURL
	return c
}

// InitiateCharge sends the STK push. The token comes from the company's
// gateway settings row.
func (c *Client) InitiateCharge(ctx context.Context, token string, reqParams ChargeRequest) (*ChargeResponse, error) {
	body, err := json.Marshal(reqParams)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway returned %s", resp.Status)
	}

	var chargeResp ChargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&chargeResp); err != nil {
		return nil, fmt.Errorf("failed to parse gateway response: %w", err)
	}
	return &chargeResp, nil
}
