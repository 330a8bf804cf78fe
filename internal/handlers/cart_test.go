package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/marketplace/internal/models"
)

func seedProduct(t *testing.T, env *testEnv, sellerID uint, price float64, stock int) models.Product {
	t.Helper()
	p := models.Product{
		SellerID:      sellerID,
		Name:          "widget",
		Description:   "a widget",
		Price:         price,
		StockQuantity: stock,
		IsActive:      true,
	}
	require.NoError(t, env.DB.Create(&p).Error)
	return p
}

func TestAddToCart(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.createUser("buyer1", models.RoleBuyer)
	seller := env.createUser("seller1", models.RoleSeller)
	p := seedProduct(t, env, seller.ID, 10, 5)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/cart", map[string]uint{
		"product_id": p.ID,
		"quantity":   2,
	})
	as(c, buyer)
	require.NoError(t, env.Cart.AddToCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var item models.CartItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, buyer.ID, item.UserID)
	assert.Equal(t, p.ID, item.ProductID)
	assert.EqualValues(t, 2, item.Quantity)
}

func TestAddToCart_MergesQuantity(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.createUser("buyer1", models.RoleBuyer)
	seller := env.createUser("seller1", models.RoleSeller)
	p := seedProduct(t, env, seller.ID, 10, 5)

	for i := 0; i < 2; i++ {
		_, c := env.doJSONRequest(http.MethodPost, "/api/v1/cart", map[string]uint{
			"product_id": p.ID,
			"quantity":   2,
		})
		as(c, buyer)
		require.NoError(t, env.Cart.AddToCart(c))
	}

	var items []models.CartItem
	require.NoError(t, env.DB.Where("user_id = ?", buyer.ID).Find(&items).Error)
	require.Len(t, items, 1)
	assert.EqualValues(t, 4, items[0].Quantity)
}

func TestAddToCart_InactiveProduct(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.createUser("buyer1", models.RoleBuyer)
	seller := env.createUser("seller1", models.RoleSeller)
	p := seedProduct(t, env, seller.ID, 10, 5)
	require.NoError(t, env.DB.Model(&p).Update("is_active", false).Error)

	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/cart", map[string]uint{
		"product_id": p.ID,
		"quantity":   1,
	})
	as(c, buyer)
	err := env.Cart.AddToCart(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, httpCode(t, err))
}

func TestGetCart_ReturnsSnapshots(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.createUser("buyer1", models.RoleBuyer)
	seller := env.createUser("seller1", models.RoleSeller)
	p := seedProduct(t, env, seller.ID, 199, 10)
	require.NoError(t, env.DB.Create(&models.CartItem{UserID: buyer.ID, ProductID: p.ID, Quantity: 2}).Error)

	rec, c := env.doJSONRequest(http.MethodGet, "/api/v1/cart", nil)
	as(c, buyer)
	require.NoError(t, env.Cart.GetCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var lines []CartLine
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	require.Len(t, lines, 1)
	assert.Equal(t, p.ID, lines[0].ProductID)
	assert.EqualValues(t, 2, lines[0].Quantity)
	assert.Equal(t, float64(199), lines[0].Product.Price)
	assert.Equal(t, seller.ID, lines[0].Product.SellerID)
	assert.Equal(t, 10, lines[0].Product.StockQuantity)
}

func TestUpdateCartItem(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.createUser("buyer1", models.RoleBuyer)
	seller := env.createUser("seller1", models.RoleSeller)
	p := seedProduct(t, env, seller.ID, 10, 5)
	item := models.CartItem{UserID: buyer.ID, ProductID: p.ID, Quantity: 1}
	require.NoError(t, env.DB.Create(&item).Error)

	rec, c := env.doJSONRequest(http.MethodPatch, "/api/v1/cart/1", map[string]uint{"quantity": 3})
	c.SetParamNames("id")
	c.SetParamValues("1")
	as(c, buyer)
	require.NoError(t, env.Cart.UpdateItem(c))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, env.DB.First(&item, item.ID).Error)
	assert.EqualValues(t, 3, item.Quantity)
}

func TestDeleteCartItem_ScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.createUser("buyer1", models.RoleBuyer)
	other := env.createUser("buyer2", models.RoleBuyer)
	seller := env.createUser("seller1", models.RoleSeller)
	p := seedProduct(t, env, seller.ID, 10, 5)
	item := models.CartItem{UserID: buyer.ID, ProductID: p.ID, Quantity: 1}
	require.NoError(t, env.DB.Create(&item).Error)

	_, c := env.doJSONRequest(http.MethodDelete, "/api/v1/cart/1", nil)
	c.SetParamNames("id")
	c.SetParamValues("1")
	as(c, other)
	err := env.Cart.DeleteItem(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httpCode(t, err))

	rec, c := env.doJSONRequest(http.MethodDelete, "/api/v1/cart/1", nil)
	c.SetParamNames("id")
	c.SetParamValues("1")
	as(c, buyer)
	require.NoError(t, env.Cart.DeleteItem(c))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClearCart(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.createUser("buyer1", models.RoleBuyer)
	seller := env.createUser("seller1", models.RoleSeller)
	p1 := seedProduct(t, env, seller.ID, 10, 5)
	p2 := seedProduct(t, env, seller.ID, 20, 5)
	require.NoError(t, env.DB.Create(&models.CartItem{UserID: buyer.ID, ProductID: p1.ID, Quantity: 1}).Error)
	require.NoError(t, env.DB.Create(&models.CartItem{UserID: buyer.ID, ProductID: p2.ID, Quantity: 1}).Error)

	rec, c := env.doJSONRequest(http.MethodDelete, "/api/v1/cart", nil)
	as(c, buyer)
	require.NoError(t, env.Cart.ClearCart(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	var remaining int64
	require.NoError(t, env.DB.Model(&models.CartItem{}).Where("user_id = ?", buyer.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)
}
