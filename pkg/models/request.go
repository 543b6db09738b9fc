package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// OrderInput is the payload accepted when creating an order. Both the
// current keys (customer, items, product, ...) and the original Portuguese
// keys (cliente, itens, produto, ...) are understood.
type OrderInput struct {
	ID           string          `json:"id,omitempty"`
	CustomerName string          `json:"customer" validate:"required"`
	Email        string          `json:"email" validate:"required"`
	Total        *float64        `json:"total" validate:"required"`
	Status       string          `json:"status" validate:"required"`
	CreatedAt    *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time      `json:"updatedAt,omitempty"`
	Items        []LineItemInput `json:"items" validate:"dive"`
}

type LineItemInput struct {
	ProductName string   `json:"product" validate:"required"`
	Quantity    *int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice   *float64 `json:"price" validate:"required,gte=0"`
}

// OrderUpdate carries a field update. Nil fields are left untouched.
type OrderUpdate struct {
	CustomerName *string  `json:"customer,omitempty"`
	Email        *string  `json:"email,omitempty"`
	Total        *float64 `json:"total,omitempty"`
	Status       *string  `json:"status,omitempty"`
}

// StatusUpdate is the body of a status-only update. A nil Status means the
// field was absent from the request.
type StatusUpdate struct {
	Status *string `json:"status"`
}

func (in *OrderInput) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string          `json:"id"`
		Customer    string          `json:"customer"`
		Cliente     string          `json:"cliente"`
		Email       string          `json:"email"`
		Total       *float64        `json:"total"`
		Status      string          `json:"status"`
		CreatedAt   string          `json:"createdAt"`
		DataCriacao string          `json:"data_criacao"`
		UpdatedAt   string          `json:"updatedAt"`
		DataAtual   string          `json:"data_atualizacao"`
		Items       []LineItemInput `json:"items"`
		Itens       []LineItemInput `json:"itens"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	created, err := parseOptionalTimestamp("createdAt", firstNonEmpty(raw.CreatedAt, raw.DataCriacao))
	if err != nil {
		return err
	}
	updated, err := parseOptionalTimestamp("updatedAt", firstNonEmpty(raw.UpdatedAt, raw.DataAtual))
	if err != nil {
		return err
	}

	items := raw.Items
	if items == nil {
		items = raw.Itens
	}

	*in = OrderInput{
		ID:           raw.ID,
		CustomerName: firstNonEmpty(raw.Customer, raw.Cliente),
		Email:        raw.Email,
		Total:        raw.Total,
		Status:       raw.Status,
		CreatedAt:    created,
		UpdatedAt:    updated,
		Items:        items,
	}
	return nil
}

func (in *LineItemInput) UnmarshalJSON(data []byte) error {
	var raw struct {
		Product    string   `json:"product"`
		Produto    string   `json:"produto"`
		Quantity   *int     `json:"quantity"`
		Quantidade *int     `json:"quantidade"`
		Price      *float64 `json:"price"`
		Preco      *float64 `json:"preco"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*in = LineItemInput{
		ProductName: firstNonEmpty(raw.Product, raw.Produto),
		Quantity:    raw.Quantity,
		UnitPrice:   raw.Price,
	}
	if in.Quantity == nil {
		in.Quantity = raw.Quantidade
	}
	if in.UnitPrice == nil {
		in.UnitPrice = raw.Preco
	}
	return nil
}

func (u *OrderUpdate) UnmarshalJSON(data []byte) error {
	var raw struct {
		Customer *string  `json:"customer"`
		Cliente  *string  `json:"cliente"`
		Email    *string  `json:"email"`
		Total    *float64 `json:"total"`
		Status   *string  `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*u = OrderUpdate{
		CustomerName: raw.Customer,
		Email:        raw.Email,
		Total:        raw.Total,
		Status:       raw.Status,
	}
	if u.CustomerName == nil {
		u.CustomerName = raw.Cliente
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without a zone are
// taken as UTC. The result is always in UTC.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", value)
}

func parseOptionalTimestamp(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &t, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
