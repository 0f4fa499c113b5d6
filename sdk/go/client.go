package loomlinesdk

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

// Client is a minimal Loomline HTTP API client.
type Client struct {
	BaseURL     string
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

// Product represents a catalog entry.
type Product struct {
	Name          string  `json:"name"`
	StandardHours float64 `json:"standard_hours"`
	CreatedAt     string  `json:"created_at"`
}

// Order represents the API order model.
type Order struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Product         string  `json:"product"`
	Urgency         int     `json:"urgency"`
	Cost            float64 `json:"cost"`
	ProductionHours float64 `json:"production_hours"`
	Score           float64 `json:"score"`
	Deadline        string  `json:"deadline"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	CompletedAt     *string `json:"completed_at,omitempty"`
	AtRisk          bool    `json:"at_risk"`
}

// Summary represents the dashboard summary.
type Summary struct {
	Counts struct {
		Open        int `json:"open"`
		OverdueOpen int `json:"overdue_open"`
		Completed   int `json:"completed"`
	} `json:"counts"`
	PlannedHours   float64  `json:"planned_hours"`
	WeeklyCapacity float64  `json:"weekly_capacity"`
	Utilization    float64  `json:"utilization"`
	AtRiskOrders   []string `json:"at_risk_orders"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body := map[string]any{"username": username, "password": password}
	var resp struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := c.do(ctx, http.MethodPost, "v0/auth/login", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// AddProduct registers a product type.
func (c *Client) AddProduct(ctx context.Context, name string, standardHours float64) (Product, error) {
	body := map[string]any{"name": name, "standard_hours": standardHours}
	var resp Product
	err := c.do(ctx, http.MethodPost, "v0/products", body, &resp)
	return resp, err
}

// ListProducts returns the catalog.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var resp []Product
	err := c.do(ctx, http.MethodGet, "v0/products", nil, &resp)
	return resp, err
}

// SubmitOrder places an order; deadline is YYYY-MM-DD.
func (c *Client) SubmitOrder(ctx context.Context, name, product string, urgency int, cost float64, deadline string) (Order, error) {
	body := map[string]any{
		"name":     name,
		"product":  product,
		"urgency":  urgency,
		"cost":     cost,
		"deadline": deadline,
	}
	var resp Order
	err := c.do(ctx, http.MethodPost, "v0/orders", body, &resp)
	return resp, err
}

// ListOpenOrders returns the ranked production queue.
func (c *Client) ListOpenOrders(ctx context.Context) ([]Order, error) {
	var resp []Order
	err := c.do(ctx, http.MethodGet, "v0/orders?status=open", nil, &resp)
	return resp, err
}

// CompleteOrder marks an order completed.
func (c *Client) CompleteOrder(ctx context.Context, orderID string) (Order, error) {
	var resp Order
	endpoint := fmt.Sprintf("v0/orders/%s/complete", url.PathEscape(orderID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// GetSummary returns counts, planned hours and utilization.
func (c *Client) GetSummary(ctx context.Context) (Summary, error) {
	var resp Summary
	err := c.do(ctx, http.MethodGet, "v0/summary", nil, &resp)
	return resp, err
}

// ProductionOrderSheet downloads the printable order sheet.
func (c *Client) ProductionOrderSheet(ctx context.Context) ([]byte, error) {
	return c.raw(ctx, "v0/report/production-order")
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
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
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

func (c *Client) raw(ctx context.Context, endpoint string) ([]byte, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/"+strings.TrimLeft(endpoint, "/"), nil)
	if err != nil {
		return nil, err
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
