package models

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusCancelled  Status = "CANCELLED"
)

var ErrInvalidStatus = errors.New("invalid status")

// statusNames also accepts the Portuguese names used by the first
// version of the API so older clients keep working.
var statusNames = map[string]Status{
	"PENDING":     StatusPending,
	"PROCESSING":  StatusProcessing,
	"SHIPPED":     StatusShipped,
	"CANCELLED":   StatusCancelled,
	"PENDENTE":    StatusPending,
	"PROCESSANDO": StatusProcessing,
	"ENVIADO":     StatusShipped,
	"CANCELADO":   StatusCancelled,
}

// ParseStatus maps a client supplied status name to a Status. Names are
// matched exactly; any other value yields ErrInvalidStatus.
func ParseStatus(name string) (Status, error) {
	if s, ok := statusNames[name]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, name)
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusCancelled:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Order is the root aggregate. Total is whatever the client last set; it is
// never recomputed from Items.
type Order struct {
	ID           string     `json:"id" db:"id"`
	CustomerName string     `json:"customer" db:"customer_name"`
	Email        string     `json:"email" db:"email"`
	Total        float64    `json:"total" db:"total"`
	Status       Status     `json:"status" db:"status"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
	Items        []LineItem `json:"items" db:"-"`
}

type LineItem struct {
	ID          int64   `json:"id" db:"id"`
	OrderID     string  `json:"-" db:"order_id"`
	ProductName string  `json:"product" db:"product_name"`
	Quantity    int     `json:"quantity" db:"quantity"`
	UnitPrice   float64 `json:"price" db:"unit_price"`
}

// Clone returns a deep copy of the order, items included.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = make([]LineItem, len(o.Items))
	copy(c.Items, o.Items)
	return &c
}

type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}
