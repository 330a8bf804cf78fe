package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/avolkov/marketplace/internal/models"
	"github.com/avolkov/marketplace/internal/mykafka"
	"github.com/avolkov/marketplace/internal/service/token"
)

type CartHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
}

// CartLine is a cart row joined with a denormalized product snapshot. The
// snapshot (price, seller, stock) is what checkout later trusts without
// re-validation.
type CartLine struct {
	ID        uint         `json:"id"`
	ProductID uint         `json:"product_id"`
	Quantity  uint         `json:"quantity"`
	Product   ProductBrief `json:"product"`
}

type ProductBrief struct {
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	SellerID      uint    `json:"seller_id"`
	StockQuantity int     `json:"stock_quantity"`
	IsActive      bool    `json:"is_active"`
}

func loadCartLines(db *gorm.DB, userID uint) ([]CartLine, error) {
	var items []models.CartItem
	if err := db.Where("user_id = ?", userID).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}

	lines := make([]CartLine, 0, len(items))
	for _, it := range items {
		var p models.Product
		if err := db.First(&p, it.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// product was deleted from under the cart row; skip it
				continue
			}
			return nil, err
		}
		lines = append(lines, CartLine{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Product: ProductBrief{
				Name:          p.Name,
				Price:         p.Price,
				SellerID:      p.SellerID,
				StockQuantity: p.StockQuantity,
				IsActive:      p.IsActive,
			},
		})
	}
	return lines, nil
}

func (h *CartHandler) GetCart(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	lines, err := loadCartLines(h.DB.WithContext(c.Request().Context()), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot load cart")
	}

	return c.JSON(http.StatusOK, lines)
}

func (h *CartHandler) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint `json:"product_id"`
		Quantity  uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	var product models.Product
	if err := h.DB.WithContext(ctx).First(&product, req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot add to cart")
	}
	if !product.IsActive {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "product is not available")
	}

	var item models.CartItem
	tx := h.DB.WithContext(ctx).Where("user_id = ? AND product_id = ?", userID, req.ProductID).First(&item)
	if tx.Error == nil {
		item.Quantity += req.Quantity
		if err := h.DB.WithContext(ctx).Save(&item).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot add to cart")
		}
	} else if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		item = models.CartItem{
			UserID:    userID,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
		}
		if err := h.DB.WithContext(ctx).Create(&item).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot add to cart")
		}
	} else {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot add to cart")
	}

	publish(c, h.Producer, TopicCartEvents, map[string]any{
		"type":      "cart_item_added",
		"userID":    userID,
		"productID": req.ProductID,
		"quantity":  item.Quantity,
	})
	return c.JSON(http.StatusOK, item)
}

func (h *CartHandler) UpdateItem(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := token.UserID(c)
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req struct {
		Quantity uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Quantity < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "quantity must be positive")
	}

	var item models.CartItem
	if err := h.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot update cart")
	}

	item.Quantity = req.Quantity
	if err := h.DB.WithContext(ctx).Save(&item).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot update cart")
	}

	publish(c, h.Producer, TopicCartEvents, map[string]any{
		"type":     "cart_item_updated",
		"userID":   userID,
		"id":       item.ID,
		"quantity": item.Quantity,
	})
	return c.JSON(http.StatusOK, item)
}

func (h *CartHandler) DeleteItem(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := token.UserID(c)
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	res := h.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.CartItem{})
	if res.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot delete cart item")
	}
	if res.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "item not found")
	}

	publish(c, h.Producer, TopicCartEvents, map[string]any{
		"type":   "cart_item_deleted",
		"userID": userID,
		"id":     id,
	})
	return c.NoContent(http.StatusNoContent)
}

func (h *CartHandler) ClearCart(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	if err := h.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot clear cart")
	}

	publish(c, h.Producer, TopicCartEvents, map[string]any{
		"type":   "cart_cleared",
		"userID": userID,
	})
	return c.NoContent(http.StatusNoContent)
}
