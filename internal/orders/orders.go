package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CustomerDetails identifies the buyer on an order.
type CustomerDetails struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

// Payload is the order shape both remote procedures accept.
type Payload struct {
	Customer         CustomerDetails `json:"customer"`
	ProductID        string          `json:"product_id"`
	TotalPrice       int             `json:"total_price"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Status           string          `json:"status"`
	Design           json.RawMessage `json:"design"`
	ArtifactURL      string          `json:"artifact_url"`
	OrderType        string          `json:"order_type"`
}

// Envelope is the success response from the order procedures.
type Envelope struct {
	OrderID string `json:"order_id"`
	Message string `json:"message,omitempty"`
}

// RemoteError carries the human-readable message a procedure returned in
// its structured error field.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// StockExhaustedMessage is the raw message the inventory-decrement procedure
// returns when the product sold out mid-checkout. The orchestrator rewrites
// it before it reaches the user.
const StockExhaustedMessage = "inventory decrement failed: no stock remaining"

// Placer is the order-placement collaborator: one procedure for
// authenticated users, one for guests, same payload shape.
type Placer interface {
	PlaceOrder(ctx context.Context, p Payload, bearerToken string) (*Envelope, error)
	PlaceGuestOrder(ctx context.Context, p Payload) (*Envelope, error)
}

// FunctionsClient calls the hosted serverless order procedures over HTTP.
type FunctionsClient struct {
	baseURL string
	anonKey string
	client  *http.Client
}

func NewFunctionsClient(baseURL, anonKey string, client *http.Client) *FunctionsClient {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &FunctionsClient{baseURL: baseURL, anonKey: anonKey, client: client}
}

func (c *FunctionsClient) PlaceOrder(ctx context.Context, p Payload, bearerToken string) (*Envelope, error) {
	return c.invoke(ctx, "place-order-and-decrement-inventory", p, bearerToken)
}

func (c *FunctionsClient) PlaceGuestOrder(ctx context.Context, p Payload) (*Envelope, error) {
	return c.invoke(ctx, "guest-register-and-order", p, c.anonKey)
}

func (c *FunctionsClient) invoke(ctx context.Context, procedure string, p Payload, bearer string) (*Envelope, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+procedure, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order procedure %s unreachable: %w", procedure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", procedure, err)
	}

	if resp.StatusCode != http.StatusOK {
		// Prefer the structured error message over a generic transport
		// string when the procedure returned one.
		var remote struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &remote) == nil && remote.Error != "" {
			return nil, &RemoteError{Message: remote.Error}
		}
		return nil, fmt.Errorf("order procedure %s returned status %d", procedure, resp.StatusCode)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", procedure, err)
	}
	return &env, nil
}
