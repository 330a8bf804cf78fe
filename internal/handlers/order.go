package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/avolkov/marketplace/internal/logging"
	"github.com/avolkov/marketplace/internal/models"
	"github.com/avolkov/marketplace/internal/mykafka"
	"github.com/avolkov/marketplace/internal/service/checkout"
	"github.com/avolkov/marketplace/internal/service/token"
)

type OrderHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
	Orchestrator *checkout.Orchestrator
}

type CheckoutRequest struct {
	FullName      string `json:"full_name"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	City          string `json:"city"`
	State         string `json:"state"`
	PostalCode    string `json:"postal_code"`
	PaymentMethod string `json:"payment_method"`
}

// Checkout places one order per seller represented in the buyer's cart and
// clears the cart. The whole cart is checked out; there is no line selection.
func (h *OrderHandler) Checkout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.checkout")

	buyerID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.FullName == "" || req.Address == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "full_name and address are required")
	}

	cartLines, err := loadCartLines(h.DB.WithContext(ctx), buyerID)
	if err != nil {
		l.Error("checkout_failed", "reason", "load cart", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to place order")
	}

	lines := make([]checkout.Line, 0, len(cartLines))
	for _, cl := range cartLines {
		lines = append(lines, checkout.Line{
			ProductID: cl.ProductID,
			Quantity:  cl.Quantity,
			Product: checkout.Snapshot{
				Name:          cl.Product.Name,
				Price:         cl.Product.Price,
				SellerID:      cl.Product.SellerID,
				StockQuantity: cl.Product.StockQuantity,
			},
		})
	}

	orders, err := h.Orchestrator.PlaceOrders(ctx, buyerID, checkout.Request{
		Lines: lines,
		Shipping: checkout.ShippingInfo{
			FullName:   req.FullName,
			Phone:      req.Phone,
			Address:    req.Address,
			City:       req.City,
			State:      req.State,
			PostalCode: req.PostalCode,
		},
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			return echo.NewHTTPError(http.StatusBadRequest, "no items in cart")
		case errors.Is(err, checkout.ErrBadPaymentMethod):
			return echo.NewHTTPError(http.StatusBadRequest, "unknown payment method")
		default:
			// the caller gets one generic failure; which seller group failed
			// and whether partial orders were created is not communicated
			l.Error("checkout_failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to place order")
		}
	}

	for _, ord := range orders {
		publish(c, h.Producer, TopicOrderEvents, map[string]any{
			"type":        "order_created",
			"userID":      buyerID,
			"orderID":     ord.ID,
			"orderNumber": ord.OrderNumber,
			"sellerID":    ord.SellerID,
			"total":       ord.TotalAmount,
		})
	}

	l.Info("checkout_complete", "buyer_id", buyerID, "orders", len(orders))
	return c.JSON(http.StatusCreated, echo.Map{"orders": orders})
}

// ListBuyerOrders returns the caller's own orders, items included.
func (h *OrderHandler) ListBuyerOrders(c echo.Context) error {
	buyerID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var orders []models.Order
	if err := h.DB.WithContext(c.Request().Context()).
		Preload("Items").
		Where("buyer_id = ?", buyerID).
		Order("id DESC").
		Find(&orders).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list orders")
	}
	return c.JSON(http.StatusOK, orders)
}

// ListSellerOrders returns orders addressed to the calling seller.
func (h *OrderHandler) ListSellerOrders(c echo.Context) error {
	sellerID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var orders []models.Order
	if err := h.DB.WithContext(c.Request().Context()).
		Preload("Items").
		Where("seller_id = ?", sellerID).
		Order("id DESC").
		Find(&orders).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list orders")
	}
	return c.JSON(http.StatusOK, orders)
}

// UpdateStatus moves a seller's order along the
// pending→confirmed→shipped→delivered chain, or cancels it before shipment.
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.update_status")

	sellerID, err := token.UserID(c)
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var order models.Order
	if err := h.DB.WithContext(ctx).
		Where("id = ? AND seller_id = ?", id, sellerID).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot update order")
	}

	if !models.ValidOrderTransition(order.Status, req.Status) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid status transition")
	}

	order.Status = req.Status
	if err := h.DB.WithContext(ctx).Save(&order).Error; err != nil {
		l.Error("order_status_update_failed", "order_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot update order")
	}

	publish(c, h.Producer, TopicOrderEvents, map[string]any{
		"type":    "order_status_changed",
		"userID":  sellerID,
		"orderID": order.ID,
		"status":  order.Status,
	})

	return c.JSON(http.StatusOK, order)
}
