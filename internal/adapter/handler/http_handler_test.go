package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/apartment-hub/internal/adapter/broker"
	"github.com/rl1809/apartment-hub/internal/adapter/storage"
	"github.com/rl1809/apartment-hub/internal/auth"
	"github.com/rl1809/apartment-hub/internal/core/domain"
	"github.com/rl1809/apartment-hub/internal/core/service"
	"github.com/rl1809/apartment-hub/internal/obs"
)

const testSecret = "test-secret"

type testApp struct {
	router *gin.Engine
	tokens *auth.Tokens
	orders *service.OrderService
	carts  *service.CartService
}

func setupApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := obs.Discard()
	store := storage.NewMemoryStore()
	events := broker.NewLogPublisher(log)
	catalog := service.NewCatalogService(store, log)
	carts := service.NewCartService(store, log)
	orders := service.NewOrderService(store, storage.NewMemoryLock(), events, log, time.Second)
	bills := service.NewBillService(store, nil, events, log)
	tokens := auth.NewTokens(testSecret)

	h := NewHTTPHandler(catalog, carts, orders, bills, log)
	return &testApp{
		router: NewRouter(h, tokens, log, nil),
		tokens: tokens,
		orders: orders,
		carts:  carts,
	}
}

func (a *testApp) token(t *testing.T, residentID string, role domain.Role) string {
	t.Helper()
	tok, err := a.tokens.Issue(domain.Principal{ResidentID: residentID, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (a *testApp) createProduct(t *testing.T, name string, price int64) domain.Product {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/api/products", a.token(t, "stan", domain.RoleStaff),
		map[string]any{"name": name, "price": price, "stock": 10})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[domain.Product](t, rr)
}

func TestHealth(t *testing.T) {
	app := setupApp(t)
	rr := app.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(headerRequestID))
}

func TestAuthRequired(t *testing.T) {
	app := setupApp(t)

	rr := app.do(t, http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = app.do(t, http.MethodGet, "/api/cart", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	other, err := auth.NewTokens("other-secret").Issue(domain.Principal{ResidentID: "alice", Role: domain.RoleResident}, time.Hour)
	require.NoError(t, err)
	rr = app.do(t, http.MethodGet, "/api/cart", other, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestStaffOnlyRoutes(t *testing.T) {
	app := setupApp(t)
	resident := app.token(t, "alice", domain.RoleResident)

	rr := app.do(t, http.MethodPost, "/api/products", resident, map[string]any{"name": "Rice", "price": 1})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = app.do(t, http.MethodPost, "/api/bills", resident, map[string]any{
		"resident_id": "alice", "amount": 1, "issue_date": "2024-05-01", "due_date": "2024-05-15", "bill_type": "water",
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCartAndOrderFlow(t *testing.T) {
	app := setupApp(t)
	a := app.createProduct(t, "A", 100000)
	b := app.createProduct(t, "B", 50000)
	alice := app.token(t, "alice", domain.RoleResident)

	// quantity defaults to 1
	rr := app.do(t, http.MethodPost, "/api/cart/lines", alice, map[string]any{"product_id": b.ID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = app.do(t, http.MethodPost, "/api/cart/lines", alice, map[string]any{"product_id": a.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	cart := decode[CartResponse](t, rr)
	require.Len(t, cart.Lines, 2)
	assert.True(t, cart.Total.Equal(decimal.NewFromInt(250000)), "total %s", cart.Total)

	rr = app.do(t, http.MethodPost, "/api/cart/lines", alice, map[string]any{"product_id": a.ID, "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = app.do(t, http.MethodPost, "/api/orders", alice, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	order := decode[domain.Order](t, rr)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(250000)))

	rr = app.do(t, http.MethodGet, "/api/cart", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[CartResponse](t, rr).Lines)

	rr = app.do(t, http.MethodPost, "/api/orders/"+order.ID+"/confirm", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.OrderStatusShipping, decode[domain.Order](t, rr).Status)

	rr = app.do(t, http.MethodPost, "/api/orders/"+order.ID+"/confirm", alice, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = app.do(t, http.MethodPost, "/api/orders/"+order.ID+"/advance", alice, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = app.do(t, http.MethodPost, "/api/orders/"+order.ID+"/advance", app.token(t, "stan", domain.RoleStaff), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.OrderStatusInTransit, decode[domain.Order](t, rr).Status)

	rr = app.do(t, http.MethodGet, "/api/orders/"+order.ID, app.token(t, "bob", domain.RoleResident), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCartLineEditing(t *testing.T) {
	app := setupApp(t)
	a := app.createProduct(t, "A", 10)
	b := app.createProduct(t, "B", 20)
	alice := app.token(t, "alice", domain.RoleResident)

	rr := app.do(t, http.MethodGet, "/api/cart", alice, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	app.do(t, http.MethodPost, "/api/cart/lines", alice, map[string]any{"product_id": a.ID, "quantity": 1})
	rr = app.do(t, http.MethodPost, "/api/cart/lines", alice, map[string]any{"product_id": b.ID, "quantity": 1})
	cart := decode[CartResponse](t, rr)
	require.Len(t, cart.Lines, 2)

	rr = app.do(t, http.MethodPatch, "/api/cart/lines", alice, map[string]any{"product_id": a.ID, "quantity": 7})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = app.do(t, http.MethodPatch, "/api/cart/lines", alice, map[string]any{"product_id": b.ID, "quantity": 0})
	require.Equal(t, http.StatusOK, rr.Code)
	cart = decode[CartResponse](t, rr)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 7, cart.Lines[0].Quantity)

	rr = app.do(t, http.MethodDelete, "/api/cart/lines/"+cart.Lines[0].ID, app.token(t, "bob", domain.RoleResident), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = app.do(t, http.MethodDelete, "/api/cart/lines/"+cart.Lines[0].ID, alice, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestPayBill_IgnoresRequestedStatus(t *testing.T) {
	app := setupApp(t)
	staff := app.token(t, "stan", domain.RoleStaff)
	alice := app.token(t, "alice", domain.RoleResident)

	rr := app.do(t, http.MethodPost, "/api/bills", staff, map[string]any{
		"resident_id": "alice", "amount": 350000, "issue_date": "2024-05-01", "due_date": "2024-05-15", "bill_type": "electricity",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	bill := decode[domain.Bill](t, rr)
	assert.Equal(t, domain.PaymentStatusUnpaid, bill.PaymentStatus)

	rr = app.do(t, http.MethodPost, "/api/bills/"+bill.ID+"/pay", alice, map[string]any{"payment_status": "UNPAID"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	paid := decode[domain.Bill](t, rr)
	assert.Equal(t, domain.PaymentStatusPaid, paid.PaymentStatus)

	rr = app.do(t, http.MethodGet, "/api/bills?payment_status=paid", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]domain.Bill](t, rr), 1)

	rr = app.do(t, http.MethodGet, "/api/bills?payment_status=late", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = app.do(t, http.MethodPost, "/api/bills/"+bill.ID+"/pay", app.token(t, "bob", domain.RoleResident), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestIssueBill_BadDate(t *testing.T) {
	app := setupApp(t)
	rr := app.do(t, http.MethodPost, "/api/bills", app.token(t, "stan", domain.RoleStaff), map[string]any{
		"resident_id": "alice", "amount": 1, "issue_date": "01/05/2024", "due_date": "2024-05-15", "bill_type": "water",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestIssueBill_AmountRequired(t *testing.T) {
	app := setupApp(t)
	rr := app.do(t, http.MethodPost, "/api/bills", app.token(t, "stan", domain.RoleStaff), map[string]any{
		"resident_id": "alice", "issue_date": "2024-05-01", "due_date": "2024-05-15", "bill_type": "water",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	rr = app.do(t, http.MethodGet, "/api/bills", app.token(t, "root", domain.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]domain.Bill](t, rr))
}

func TestCreateProduct_FractionalPrice(t *testing.T) {
	app := setupApp(t)
	rr := app.do(t, http.MethodPost, "/api/products", app.token(t, "stan", domain.RoleStaff),
		map[string]any{"name": "Rice", "price": 12.5})
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
}
