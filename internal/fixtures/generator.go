package fixtures

import (
	"math"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jogardn/order-store/pkg/models"
)

var statuses = []string{
	string(models.StatusPending),
	string(models.StatusProcessing),
	string(models.StatusShipped),
	string(models.StatusCancelled),
}

// Generator produces random but valid orders for seeding a local service.
type Generator struct {
	faker    *gofakeit.Faker
	maxItems int
}

// NewGenerator returns a generator; the same seed yields the same orders.
func NewGenerator(seed uint64, maxItems int) *Generator {
	if maxItems <= 0 {
		maxItems = 5
	}
	return &Generator{
		faker:    gofakeit.New(seed),
		maxItems: maxItems,
	}
}

func (g *Generator) Order() models.OrderInput {
	n := g.faker.Number(1, g.maxItems)
	items := make([]models.LineItemInput, 0, n)

	var total float64
	for i := 0; i < n; i++ {
		quantity := g.faker.Number(1, 10)
		price := roundCents(g.faker.Price(1, 500))
		total += float64(quantity) * price
		items = append(items, models.LineItemInput{
			ProductName: g.faker.ProductName(),
			Quantity:    &quantity,
			UnitPrice:   &price,
		})
	}
	total = roundCents(total)

	return models.OrderInput{
		CustomerName: g.faker.Name(),
		Email:        g.faker.Email(),
		Total:        &total,
		Status:       g.faker.RandomString(statuses),
		Items:        items,
	}
}

func (g *Generator) Orders(n int) []models.OrderInput {
	orders := make([]models.OrderInput, 0, n)
	for i := 0; i < n; i++ {
		orders = append(orders, g.Order())
	}
	return orders
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
