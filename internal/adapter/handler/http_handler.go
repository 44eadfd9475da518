package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/rl1809/apartment-hub/internal/core/domain"
	"github.com/rl1809/apartment-hub/internal/core/service"
)

const (
	headerPaymentSignature = "X-Payment-Signature"
	dateLayout             = "2006-01-02"
)

type HTTPHandler struct {
	catalog *service.CatalogService
	carts   *service.CartService
	orders  *service.OrderService
	bills   *service.BillService
	log     *slog.Logger
}

func NewHTTPHandler(
	catalog *service.CatalogService,
	carts *service.CartService,
	orders *service.OrderService,
	bills *service.BillService,
	log *slog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		catalog: catalog,
		carts:   carts,
		orders:  orders,
		bills:   bills,
		log:     log,
	}
}

type AddCartLineRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  *int   `json:"quantity"`
}

type SetCartLineRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  *int   `json:"quantity" binding:"required"`
}

type IssueBillRequest struct {
	ResidentID string           `json:"resident_id" binding:"required"`
	Amount     *decimal.Decimal `json:"amount" binding:"required"`
	IssueDate  string           `json:"issue_date" binding:"required"`
	DueDate    string           `json:"due_date" binding:"required"`
	BillType   string           `json:"bill_type" binding:"required"`
}

type CartLineResponse struct {
	ID       string          `json:"id"`
	Product  domain.Product  `json:"product"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type CartResponse struct {
	ID         string             `json:"id"`
	ResidentID string             `json:"resident_id"`
	Lines      []CartLineResponse `json:"lines"`
	Total      decimal.Decimal    `json:"total"`
}

func newCartResponse(cart *domain.Cart) CartResponse {
	resp := CartResponse{
		ID:         cart.ID,
		ResidentID: cart.ResidentID,
		Lines:      make([]CartLineResponse, 0, len(cart.Lines)),
		Total:      cart.Total(),
	}
	for _, l := range cart.Lines {
		resp.Lines = append(resp.Lines, CartLineResponse{
			ID:       l.ID,
			Product:  l.Product,
			Quantity: l.Quantity,
			Subtotal: l.Subtotal(),
		})
	}
	return resp
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) ListProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *HTTPHandler) GetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *HTTPHandler) CreateProduct(c *gin.Context) {
	var req domain.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, domain.ValidationError(err.Error()))
		return
	}
	product, err := h.catalog.CreateProduct(c.Request.Context(), principal(c), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *HTTPHandler) UpdateProduct(c *gin.Context) {
	var req domain.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, domain.ValidationError(err.Error()))
		return
	}
	product, err := h.catalog.UpdateProduct(c.Request.Context(), principal(c), c.Param("id"), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *HTTPHandler) GetCart(c *gin.Context) {
	cart, err := h.carts.Summarize(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(cart))
}

func (h *HTTPHandler) AddCartLine(c *gin.Context) {
	var req AddCartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, domain.ValidationError(err.Error()))
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, err := h.carts.AddLine(c.Request.Context(), principal(c), req.ProductID, quantity)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(cart))
}

func (h *HTTPHandler) SetCartLineQuantity(c *gin.Context) {
	var req SetCartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, domain.ValidationError(err.Error()))
		return
	}

	cart, err := h.carts.SetLineQuantity(c.Request.Context(), principal(c), req.ProductID, *req.Quantity)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(cart))
}

func (h *HTTPHandler) RemoveCartLine(c *gin.Context) {
	if err := h.carts.RemoveLine(c.Request.Context(), principal(c), c.Param("lineID")); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	order, err := h.orders.CreateFromCart(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	orders, err := h.orders.List(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *HTTPHandler) ConfirmOrder(c *gin.Context) {
	order, err := h.orders.Confirm(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *HTTPHandler) AdvanceOrder(c *gin.Context) {
	order, err := h.orders.Advance(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *HTTPHandler) ListBills(c *gin.Context) {
	bills, err := h.bills.List(c.Request.Context(), principal(c), c.Query("payment_status"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, bills)
}

func (h *HTTPHandler) IssueBill(c *gin.Context) {
	var req IssueBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, domain.ValidationError(err.Error()))
		return
	}
	issued, err := time.Parse(dateLayout, req.IssueDate)
	if err != nil {
		writeError(c, h.log, domain.ValidationError("issue_date must be YYYY-MM-DD"))
		return
	}
	due, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		writeError(c, h.log, domain.ValidationError("due_date must be YYYY-MM-DD"))
		return
	}

	bill, err := h.bills.Issue(c.Request.Context(), principal(c), domain.BillInput{
		ResidentID: req.ResidentID,
		Amount:     *req.Amount,
		IssueDate:  issued,
		DueDate:    due,
		BillType:   req.BillType,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, bill)
}

func (h *HTTPHandler) GetBill(c *gin.Context) {
	bill, err := h.bills.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

// PayBill confirms a payment. The request body is never read: whatever
// payment_status a client sends, the bill ends up PAID.
func (h *HTTPHandler) PayBill(c *gin.Context) {
	bill, err := h.bills.ConfirmPayment(c.Request.Context(), principal(c), c.Param("id"), c.GetHeader(headerPaymentSignature))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}
