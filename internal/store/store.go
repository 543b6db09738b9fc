package store

import (
	"context"
	"time"

	"github.com/jogardn/order-store/pkg/models"
)

// Store persists Order aggregates. Every call runs in its own transaction
// scope; no state is shared between calls.
type Store interface {
	List(ctx context.Context) ([]models.Order, error)
	Get(ctx context.Context, id string) (*models.Order, error)
	Create(ctx context.Context, in models.OrderInput) (*models.Order, error)
	UpdateStatus(ctx context.Context, id string, upd models.StatusUpdate) (*StatusChange, error)
	UpdateFields(ctx context.Context, id string, upd models.OrderUpdate) (*models.Order, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type StatusChange struct {
	ID        string        `json:"id"`
	Status    models.Status `json:"status"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
