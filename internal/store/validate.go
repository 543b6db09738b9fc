package store

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jogardn/order-store/pkg/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// buildOrder validates the input and turns it into an order ready to be
// persisted. Nothing is written when it returns an error.
func buildOrder(in models.OrderInput, now time.Time) (*models.Order, error) {
	if err := validate.Struct(in); err != nil {
		return nil, translateValidation(err)
	}

	status, err := models.ParseStatus(in.Status)
	if err != nil {
		return nil, err
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}

	order := &models.Order{
		ID:           id,
		CustomerName: in.CustomerName,
		Email:        in.Email,
		Total:        *in.Total,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
		Items:        make([]models.LineItem, 0, len(in.Items)),
	}
	if in.CreatedAt != nil {
		order.CreatedAt = normalize(*in.CreatedAt)
	}
	if in.UpdatedAt != nil {
		order.UpdatedAt = normalize(*in.UpdatedAt)
	}

	for _, item := range in.Items {
		order.Items = append(order.Items, models.LineItem{
			OrderID:     id,
			ProductName: item.ProductName,
			Quantity:    *item.Quantity,
			UnitPrice:   *item.UnitPrice,
		})
	}

	return order, nil
}

// checkUpdate validates the fields present in a field update and returns
// the parsed status, if any.
func checkUpdate(upd models.OrderUpdate) (*models.Status, error) {
	if upd.CustomerName != nil && *upd.CustomerName == "" {
		return nil, fmt.Errorf("%w: customer must not be empty", ErrInvalidField)
	}
	if upd.Email != nil && *upd.Email == "" {
		return nil, fmt.Errorf("%w: email must not be empty", ErrInvalidField)
	}
	if upd.Status == nil {
		return nil, nil
	}
	status, err := models.ParseStatus(*upd.Status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func checkStatusUpdate(upd models.StatusUpdate) (models.Status, error) {
	if upd.Status == nil {
		return "", fmt.Errorf("%w: status", ErrMissingField)
	}
	return models.ParseStatus(*upd.Status)
}

func applyUpdate(order *models.Order, upd models.OrderUpdate, status *models.Status, now time.Time) {
	if upd.CustomerName != nil {
		order.CustomerName = *upd.CustomerName
	}
	if upd.Email != nil {
		order.Email = *upd.Email
	}
	if upd.Total != nil {
		order.Total = *upd.Total
	}
	if status != nil {
		order.Status = *status
	}
	order.UpdatedAt = nextUpdatedAt(order.UpdatedAt, now)
}

// nextUpdatedAt keeps updatedAt strictly increasing even when the stored
// value is ahead of the clock, as happens with client supplied timestamps.
func nextUpdatedAt(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}

// normalize truncates to the microsecond resolution of Postgres timestamps.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func translateValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidField, err)
	}

	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	if fe.Tag() == "required" {
		return fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return fmt.Errorf("%w: %s must satisfy %s=%s", ErrInvalidField, field, fe.Tag(), fe.Param())
}
