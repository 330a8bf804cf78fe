package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/avolkov/marketplace/internal/es"
	"github.com/avolkov/marketplace/internal/logging"
	"github.com/avolkov/marketplace/internal/models"
	"github.com/avolkov/marketplace/internal/mykafka"
	"github.com/avolkov/marketplace/internal/service/token"
	"github.com/avolkov/marketplace/internal/util"
)

type ProductHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
	ES       *elasticsearch.Client
	ESIndex  string
}

func (h *ProductHandler) indexProduct(c echo.Context, p *models.Product) {
	if h.ES == nil {
		return
	}
	if err := es.IndexProduct(c.Request().Context(), h.ES, h.ESIndex, p); err != nil {
		c.Logger().Errorf("ES index error: %v", err)
	}
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var product models.Product
	if err := h.DB.WithContext(c.Request().Context()).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot get product")
	}

	return c.JSON(http.StatusOK, product)
}

// GetProducts is the public catalog listing: active products only, newest
// last, optionally narrowed to one seller.
func (h *ProductHandler) GetProducts(c echo.Context) error {
	ctx := c.Request().Context()

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	q := h.DB.WithContext(ctx).Model(&models.Product{}).Where("is_active = ?", true)
	if sellerParam := c.QueryParam("seller_id"); sellerParam != "" {
		sellerID, err := strconv.Atoi(sellerParam)
		if err != nil || sellerID <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid seller_id")
		}
		q = q.Where("seller_id = ?", sellerID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list products")
	}

	var items []models.Product
	if err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list products")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

// ListMine returns the calling seller's products, inactive ones included.
func (h *ProductHandler) ListMine(c echo.Context) error {
	sellerID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var items []models.Product
	if err := h.DB.WithContext(c.Request().Context()).
		Where("seller_id = ?", sellerID).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list products")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.create")

	sellerID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var req struct {
		Name          string  `json:"name"`
		Description   string  `json:"description"`
		Price         float64 `json:"price"`
		StockQuantity int     `json:"stock_quantity"`
		IsActive      *bool   `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	if req.Price < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "price cannot be negative")
	}
	if req.StockQuantity < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "stock cannot be negative")
	}

	prod := models.Product{
		SellerID:      sellerID,
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
		IsActive:      true,
	}
	if req.IsActive != nil {
		prod.IsActive = *req.IsActive
	}

	if err := h.DB.WithContext(ctx).Create(&prod).Error; err != nil {
		l.Error("product_create_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot create product")
	}

	h.indexProduct(c, &prod)
	publish(c, h.Producer, TopicProductEvents, map[string]any{
		"type":      "product_created",
		"userID":    sellerID,
		"productID": prod.ID,
		"name":      prod.Name,
	})

	l.Info("product_created", "product_id", prod.ID, "seller_id", sellerID)
	return c.JSON(http.StatusCreated, prod)
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.patch")

	sellerID, err := token.UserID(c)
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req struct {
		Name          *string  `json:"name"`
		Description   *string  `json:"description"`
		Price         *float64 `json:"price"`
		StockQuantity *int     `json:"stock_quantity"`
		IsActive      *bool    `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var prod models.Product
	if err := h.DB.WithContext(ctx).
		Where("id = ? AND seller_id = ?", id, sellerID).
		First(&prod).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot update product")
	}

	if req.Name != nil {
		prod.Name = *req.Name
	}
	if req.Description != nil {
		prod.Description = *req.Description
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "price cannot be negative")
		}
		prod.Price = *req.Price
	}
	if req.StockQuantity != nil {
		if *req.StockQuantity < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "stock cannot be negative")
		}
		prod.StockQuantity = *req.StockQuantity
	}
	if req.IsActive != nil {
		prod.IsActive = *req.IsActive
	}

	if err := h.DB.WithContext(ctx).Save(&prod).Error; err != nil {
		l.Error("product_patch_failed", "product_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot update product")
	}

	h.indexProduct(c, &prod)
	publish(c, h.Producer, TopicProductEvents, map[string]any{
		"type":      "product_updated",
		"userID":    sellerID,
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusOK, prod)
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	ctx := c.Request().Context()

	sellerID, err := token.UserID(c)
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	res := h.DB.WithContext(ctx).
		Where("id = ? AND seller_id = ?", id, sellerID).
		Delete(&models.Product{})
	if res.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot delete product")
	}
	if res.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}

	if h.ES != nil {
		if err := es.DeleteProduct(ctx, h.ES, h.ESIndex, uint(id)); err != nil {
			c.Logger().Errorf("ES delete error: %v", err)
		}
	}
	publish(c, h.Producer, TopicProductEvents, map[string]any{
		"type":      "product_deleted",
		"userID":    sellerID,
		"productID": id,
	})

	return c.NoContent(http.StatusNoContent)
}
