package orders

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

	"github.com/jogardn/order-store/pkg/models"
	"github.com/sirupsen/logrus"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("order service returned %d: %s (%s)", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("order service returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *Client) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &orders); err != nil {
		return nil, err
	}
	c.logger.WithField("count", len(orders)).Debug("Retrieved orders from order service")
	return orders, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := c.do(ctx, http.MethodGet, orderPath(orderID), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateOrder returns the id assigned by the service.
func (c *Client) CreateOrder(ctx context.Context, in models.OrderInput) (string, error) {
	var resp models.MessageResponse
	if err := c.do(ctx, http.MethodPost, "/orders", in, &resp); err != nil {
		return "", err
	}
	c.logger.WithField("order_id", resp.ID).Debug("Order created in order service")
	return resp.ID, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderID, status string) (*models.MessageResponse, error) {
	var resp models.MessageResponse
	body := map[string]string{"status": status}
	if err := c.do(ctx, http.MethodPatch, orderPath(orderID), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) UpdateOrder(ctx context.Context, orderID string, upd models.OrderUpdate) (*models.Order, error) {
	var order models.Order
	if err := c.do(ctx, http.MethodPut, orderPath(orderID), upd, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) DeleteOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodDelete, orderPath(orderID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to order service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var msg models.MessageResponse
		if err := json.NewDecoder(resp.Body).Decode(&msg); err == nil {
			apiErr.Message = msg.Message
			apiErr.Detail = msg.Error
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode order service response: %w", err)
	}
	return nil
}

func orderPath(orderID string) string {
	return "/orders/" + url.PathEscape(orderID)
}
