package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/order-store/internal/events"
	"github.com/jogardn/order-store/internal/store"
	"github.com/jogardn/order-store/pkg/models"
	"github.com/sirupsen/logrus"
)

const legacyPayload = `{
	"cliente": "Ana",
	"email": "ana@example.com",
	"total": 150.0,
	"status": "PENDENTE",
	"itens": [
		{"produto": "Mouse", "quantidade": 2, "preco": 50.0},
		{"produto": "Teclado", "quantidade": 1, "preco": 50.0}
	]
}`

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []string
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

func newRouter(st store.Store, pub events.Publisher) (*mux.Router, *Handler) {
	h := NewHandler(st, pub, time.Second, quietLogger())
	router := mux.NewRouter()
	h.Register(router)
	return router, h
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeMessage(t *testing.T, rr *httptest.ResponseRecorder) models.MessageResponse {
	t.Helper()
	var msg models.MessageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &msg); err != nil {
		t.Fatalf("Invalid JSON body %q: %v", rr.Body.String(), err)
	}
	return msg
}

func createLegacyOrder(t *testing.T, router http.Handler) string {
	t.Helper()
	rr := do(t, router, http.MethodPost, "/orders", legacyPayload)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	msg := decodeMessage(t, rr)
	if msg.Message != "Order saved" || msg.ID == "" {
		t.Fatalf("Unexpected create response: %+v", msg)
	}
	return msg.ID
}

func TestOrderLifecycle(t *testing.T) {
	pub := &recordingPublisher{}
	router, _ := newRouter(store.NewMemoryStore(), pub)

	id := createLegacyOrder(t, router)

	rr := do(t, router, http.MethodGet, "/orders/"+id, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}
	var order models.Order
	if err := json.Unmarshal(rr.Body.Bytes(), &order); err != nil {
		t.Fatal(err)
	}
	if order.CustomerName != "Ana" || order.Total != 150 || order.Status != models.StatusPending {
		t.Errorf("Unexpected order header: %+v", order)
	}
	if len(order.Items) != 2 || order.Items[0].ProductName != "Mouse" || order.Items[0].Quantity != 2 || order.Items[1].UnitPrice != 50 {
		t.Errorf("Unexpected items: %+v", order.Items)
	}

	rr = do(t, router, http.MethodPatch, "/orders/"+id, `{"status":"ENVIADO"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if msg := decodeMessage(t, rr); msg.Message != "Order updated" || msg.Status != "ENVIADO" {
		t.Errorf("Unexpected patch response: %+v", msg)
	}

	rr = do(t, router, http.MethodGet, "/orders/"+id, "")
	var shipped models.Order
	json.Unmarshal(rr.Body.Bytes(), &shipped)
	if shipped.Status != models.StatusShipped {
		t.Errorf("Expected stored status SHIPPED, got %s", shipped.Status)
	}
	if !shipped.UpdatedAt.After(order.UpdatedAt) || !shipped.CreatedAt.Equal(order.CreatedAt) {
		t.Errorf("Timestamps not maintained: before=%+v after=%+v", order, shipped)
	}

	rr = do(t, router, http.MethodDelete, "/orders/"+id, "")
	if rr.Code != http.StatusOK || decodeMessage(t, rr).Message != "Order deleted" {
		t.Fatalf("Unexpected delete response %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, router, http.MethodGet, "/orders/"+id, "")
	if rr.Code != http.StatusNotFound || decodeMessage(t, rr).Message != "Order not found" {
		t.Errorf("Expected 404 after delete, got %d: %s", rr.Code, rr.Body.String())
	}

	want := []string{events.EventOrderCreated, events.EventOrderStatusUpdated, events.EventOrderDeleted}
	got := pub.types()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected events %v, got %v", want, got)
	}
}

func TestListOrders(t *testing.T) {
	router, _ := newRouter(store.NewMemoryStore(), nil)

	rr := do(t, router, http.MethodGet, "/orders", "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("Expected empty array, got %d: %s", rr.Code, rr.Body.String())
	}

	createLegacyOrder(t, router)
	createLegacyOrder(t, router)

	rr = do(t, router, http.MethodGet, "/orders", "")
	var orders []models.Order
	if err := json.Unmarshal(rr.Body.Bytes(), &orders); err != nil {
		t.Fatal(err)
	}
	if len(orders) != 2 || len(orders[0].Items) != 2 || len(orders[1].Items) != 2 {
		t.Errorf("Unexpected list: %+v", orders)
	}
}

func TestErrorResponses(t *testing.T) {
	router, _ := newRouter(store.NewMemoryStore(), nil)
	id := createLegacyOrder(t, router)

	tests := []struct {
		name        string
		method      string
		path        string
		body        string
		wantCode    int
		wantMessage string
		wantDetail  bool
	}{
		{"patch_missing_status", http.MethodPatch, "/orders/" + id, `{}`, http.StatusBadRequest, "Field 'status' is required", false},
		{"patch_invalid_status", http.MethodPatch, "/orders/" + id, `{"status":"LOST"}`, http.StatusBadRequest, "Invalid status", false},
		{"patch_lowercase_status", http.MethodPatch, "/orders/" + id, `{"status":"shipped"}`, http.StatusBadRequest, "Invalid status", false},
		{"patch_unknown_order", http.MethodPatch, "/orders/missing", `{"status":"SHIPPED"}`, http.StatusNotFound, "Order not found", false},
		{"patch_bad_json", http.MethodPatch, "/orders/" + id, `{"status":`, http.StatusBadRequest, "Invalid request body", false},
		{"post_bad_json", http.MethodPost, "/orders", `{"cliente":`, http.StatusInternalServerError, "Error saving order", true},
		{"post_invalid_status", http.MethodPost, "/orders", `{"cliente":"Bo","email":"b@x","total":1,"status":"LOST"}`, http.StatusInternalServerError, "Error saving order", true},
		{"post_missing_email", http.MethodPost, "/orders", `{"cliente":"Bo","total":1,"status":"PENDING"}`, http.StatusInternalServerError, "Error saving order", true},
		{"post_duplicate_id", http.MethodPost, "/orders", `{"id":"` + id + `","cliente":"Bo","email":"b@x","total":1,"status":"PENDING"}`, http.StatusInternalServerError, "Error saving order", true},
		{"put_empty_customer", http.MethodPut, "/orders/" + id, `{"customer":""}`, http.StatusBadRequest, "Invalid field", true},
		{"put_invalid_status", http.MethodPut, "/orders/" + id, `{"status":"LOST"}`, http.StatusBadRequest, "Invalid status", false},
		{"put_unknown_order", http.MethodPut, "/orders/missing", `{"total":3}`, http.StatusNotFound, "Order not found", false},
		{"put_bad_json", http.MethodPut, "/orders/" + id, `[`, http.StatusBadRequest, "Invalid request body", false},
		{"delete_unknown_order", http.MethodDelete, "/orders/missing", "", http.StatusNotFound, "Order not found", false},
		{"get_unknown_order", http.MethodGet, "/orders/missing", "", http.StatusNotFound, "Order not found", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, router, tt.method, tt.path, tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, rr.Code, rr.Body.String())
			}
			msg := decodeMessage(t, rr)
			if msg.Message != tt.wantMessage {
				t.Errorf("Expected message %q, got %q", tt.wantMessage, msg.Message)
			}
			if tt.wantDetail && msg.Error == "" {
				t.Error("Expected an error detail")
			}
		})
	}

	// None of the rejected updates touched the order.
	rr := do(t, router, http.MethodGet, "/orders/"+id, "")
	var order models.Order
	json.Unmarshal(rr.Body.Bytes(), &order)
	if order.Status != models.StatusPending || order.CustomerName != "Ana" {
		t.Errorf("Rejected requests changed the order: %+v", order)
	}
}

func TestUpdateOrderFields(t *testing.T) {
	pub := &recordingPublisher{}
	router, _ := newRouter(store.NewMemoryStore(), pub)
	id := createLegacyOrder(t, router)

	rr := do(t, router, http.MethodPut, "/orders/"+id, `{"email":"ana@new.example","total":99.5,"status":"CANCELADO"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var order models.Order
	if err := json.Unmarshal(rr.Body.Bytes(), &order); err != nil {
		t.Fatal(err)
	}
	if order.Email != "ana@new.example" || order.Total != 99.5 || order.Status != models.StatusCancelled {
		t.Errorf("Fields not applied: %+v", order)
	}
	if order.CustomerName != "Ana" || len(order.Items) != 2 {
		t.Errorf("Untouched fields changed: %+v", order)
	}
	if types := pub.types(); len(types) != 2 || types[1] != events.EventOrderUpdated {
		t.Errorf("Unexpected events: %v", types)
	}
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("kafka down")}
	router, _ := newRouter(store.NewMemoryStore(), pub)

	id := createLegacyOrder(t, router)
	if rr := do(t, router, http.MethodDelete, "/orders/"+id, ""); rr.Code != http.StatusOK {
		t.Errorf("Expected 200 despite publish failure, got %d", rr.Code)
	}
}

type brokenStore struct {
	store.Store
	err error
}

func (b brokenStore) Ping(context.Context) error { return b.err }

func (b brokenStore) List(context.Context) ([]models.Order, error) {
	return nil, &store.InternalError{Op: "list orders", Err: b.err}
}

func TestHealthCheck(t *testing.T) {
	router, h := newRouter(store.NewMemoryStore(), nil)
	h.AddHealthDetail("kafka", func() interface{} { return "closed" })

	rr := do(t, router, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var body map[string]interface{}
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["status"] != "healthy" || body["kafka"] != "closed" {
		t.Errorf("Unexpected health body: %v", body)
	}

	router, _ = newRouter(brokenStore{err: errors.New("connection refused")}, nil)
	rr = do(t, router, http.MethodGet, "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rr.Code)
	}
}

func TestListStoreFailure(t *testing.T) {
	router, _ := newRouter(brokenStore{err: errors.New("connection refused")}, nil)

	rr := do(t, router, http.MethodGet, "/orders", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rr.Code)
	}
	msg := decodeMessage(t, rr)
	if msg.Message != "Error listing orders" || !strings.Contains(msg.Error, "connection refused") {
		t.Errorf("Unexpected body: %+v", msg)
	}
}

func TestMiddleware(t *testing.T) {
	router, _ := newRouter(store.NewMemoryStore(), nil)
	router.Use(CORSMiddleware())
	router.Use(LoggingMiddleware(quietLogger()))

	rr := do(t, router, http.MethodOptions, "/orders/abc", "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected preflight 200, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header on preflight")
	}

	rr = do(t, router, http.MethodGet, "/orders", "")
	if rr.Code != http.StatusOK || rr.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Errorf("Expected CORS headers on normal request, got %d %v", rr.Code, rr.Header())
	}
}
