package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/order-store/internal/events"
	"github.com/jogardn/order-store/internal/store"
	"github.com/jogardn/order-store/pkg/models"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	store     store.Store
	publisher events.Publisher
	timeout   time.Duration
	logger    *logrus.Logger

	mutex         sync.RWMutex
	healthDetails map[string]func() interface{}
}

func NewHandler(st store.Store, publisher events.Publisher, timeout time.Duration, logger *logrus.Logger) *Handler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Handler{
		store:         st,
		publisher:     publisher,
		timeout:       timeout,
		logger:        logger,
		healthDetails: make(map[string]func() interface{}),
	}
}

// AddHealthDetail adds a named value to the /health body, e.g. the state of
// the Kafka circuit breaker.
func (h *Handler) AddHealthDetail(name string, detail func() interface{}) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.healthDetails[name] = detail
}

func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	router.HandleFunc("/orders", h.CreateOrder).Methods(http.MethodPost)
	router.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	router.HandleFunc("/orders/{id}", h.UpdateOrderStatus).Methods(http.MethodPatch)
	router.HandleFunc("/orders/{id}", h.UpdateOrder).Methods(http.MethodPut)
	router.HandleFunc("/orders/{id}", h.DeleteOrder).Methods(http.MethodDelete)
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	orders, err := h.store.List(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list orders")
		h.respondWithError(w, http.StatusInternalServerError, "Error listing orders", err)
		return
	}

	h.logger.WithField("count", len(orders)).Info("Retrieved orders")
	h.respondWithJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	orderID := mux.Vars(r)["id"]
	order, err := h.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.respondWithMessage(w, http.StatusNotFound, "Order not found")
			return
		}
		h.logger.WithError(err).WithField("order_id", orderID).Error("Failed to get order")
		h.respondWithError(w, http.StatusInternalServerError, "Error fetching order", err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, order)
}

// CreateOrder answers every failure with 500, including malformed bodies and
// validation errors, which is what existing clients expect.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	var in models.OrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.logger.WithError(err).Error("Failed to decode order request")
		h.respondWithError(w, http.StatusInternalServerError, "Error saving order", err)
		return
	}

	order, err := h.store.Create(ctx, in)
	if err != nil {
		h.logger.WithError(err).Error("Failed to save order")
		h.respondWithError(w, http.StatusInternalServerError, "Error saving order", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"status":      order.Status,
		"total":       order.Total,
		"items_count": len(order.Items),
	}).Info("Order created")

	h.publish(ctx, events.OrderCreated(order))

	h.respondWithJSON(w, http.StatusCreated, models.MessageResponse{
		Message: "Order saved",
		ID:      order.ID,
	})
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	orderID := mux.Vars(r)["id"]

	var upd models.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.respondWithMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	change, err := h.store.UpdateStatus(ctx, orderID, upd)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrMissingField):
		h.respondWithMessage(w, http.StatusBadRequest, "Field 'status' is required")
		return
	case errors.Is(err, store.ErrInvalidStatus):
		h.respondWithMessage(w, http.StatusBadRequest, "Invalid status")
		return
	case errors.Is(err, store.ErrNotFound):
		h.respondWithMessage(w, http.StatusNotFound, "Order not found")
		return
	default:
		h.logger.WithError(err).WithField("order_id", orderID).Error("Failed to update order status")
		h.respondWithError(w, http.StatusInternalServerError, "Error updating order", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_id": change.ID,
		"status":   change.Status,
	}).Info("Order status updated")

	h.publish(ctx, events.OrderStatusUpdated(change.ID, change.Status))

	// The status is echoed as sent, alias or not.
	h.respondWithJSON(w, http.StatusOK, models.MessageResponse{
		Message: "Order updated",
		Status:  *upd.Status,
	})
}

func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	orderID := mux.Vars(r)["id"]

	var upd models.OrderUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.respondWithMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.store.UpdateFields(ctx, orderID, upd)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrInvalidStatus):
		h.respondWithMessage(w, http.StatusBadRequest, "Invalid status")
		return
	case errors.Is(err, store.ErrInvalidField), errors.Is(err, store.ErrMissingField):
		h.respondWithError(w, http.StatusBadRequest, "Invalid field", err)
		return
	case errors.Is(err, store.ErrNotFound):
		h.respondWithMessage(w, http.StatusNotFound, "Order not found")
		return
	default:
		h.logger.WithError(err).WithField("order_id", orderID).Error("Failed to update order")
		h.respondWithError(w, http.StatusInternalServerError, "Error updating order", err)
		return
	}

	h.logger.WithField("order_id", order.ID).Info("Order updated")
	h.publish(ctx, events.OrderUpdated(order))

	h.respondWithJSON(w, http.StatusOK, order)
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	orderID := mux.Vars(r)["id"]
	if err := h.store.Delete(ctx, orderID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.respondWithMessage(w, http.StatusNotFound, "Order not found")
			return
		}
		h.logger.WithError(err).WithField("order_id", orderID).Error("Failed to delete order")
		h.respondWithError(w, http.StatusInternalServerError, "Error deleting order", err)
		return
	}

	h.logger.WithField("order_id", orderID).Info("Order deleted")
	h.publish(ctx, events.OrderDeleted(orderID))

	h.respondWithMessage(w, http.StatusOK, "Order deleted")
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	body := map[string]interface{}{
		"service": "order-service",
	}

	h.mutex.RLock()
	for name, detail := range h.healthDetails {
		body[name] = detail()
	}
	h.mutex.RUnlock()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("Health check failed")
		body["status"] = "unhealthy"
		body["error"] = "database connection failed"
		h.respondWithJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	body["status"] = "healthy"
	h.respondWithJSON(w, http.StatusOK, body)
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

// publish never fails the request; the mutation is already committed.
func (h *Handler) publish(ctx context.Context, event events.OrderEvent) {
	if err := h.publisher.Publish(ctx, event); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"order_id":   event.OrderID,
			"event_type": event.Type,
		}).Warn("Failed to publish order event")
	}
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
		code = http.StatusInternalServerError
		response = []byte(`{"message":"Error encoding response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) respondWithMessage(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, models.MessageResponse{Message: message})
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string, err error) {
	h.respondWithJSON(w, code, models.MessageResponse{
		Message: message,
		Error:   err.Error(),
	})
}
