package fixtures

import (
	"fmt"
	"os"

	"github.com/jogardn/order-store/pkg/models"
	"gopkg.in/yaml.v3"
)

type File struct {
	Orders []Order `yaml:"orders"`
}

type Order struct {
	ID        string     `yaml:"id"`
	Customer  string     `yaml:"customer"`
	Email     string     `yaml:"email"`
	Total     *float64   `yaml:"total"`
	Status    string     `yaml:"status"`
	CreatedAt string     `yaml:"created_at"`
	UpdatedAt string     `yaml:"updated_at"`
	Items     []LineItem `yaml:"items"`
}

type LineItem struct {
	Product  string   `yaml:"product"`
	Quantity *int     `yaml:"quantity"`
	Price    *float64 `yaml:"price"`
}

// LoadFile reads a YAML fixture file of orders to import.
func LoadFile(path string) ([]models.OrderInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) ([]models.OrderInput, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	inputs := make([]models.OrderInput, 0, len(file.Orders))
	for i, o := range file.Orders {
		in, err := o.Input()
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i+1, err)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func (o Order) Input() (models.OrderInput, error) {
	in := models.OrderInput{
		ID:           o.ID,
		CustomerName: o.Customer,
		Email:        o.Email,
		Total:        o.Total,
		Status:       o.Status,
		Items:        make([]models.LineItemInput, 0, len(o.Items)),
	}

	if o.CreatedAt != "" {
		t, err := models.ParseTimestamp(o.CreatedAt)
		if err != nil {
			return models.OrderInput{}, fmt.Errorf("created_at: %w", err)
		}
		in.CreatedAt = &t
	}
	if o.UpdatedAt != "" {
		t, err := models.ParseTimestamp(o.UpdatedAt)
		if err != nil {
			return models.OrderInput{}, fmt.Errorf("updated_at: %w", err)
		}
		in.UpdatedAt = &t
	}

	for _, item := range o.Items {
		in.Items = append(in.Items, models.LineItemInput{
			ProductName: item.Product,
			Quantity:    item.Quantity,
			UnitPrice:   item.Price,
		})
	}
	return in, nil
}
