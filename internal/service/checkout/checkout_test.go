package checkout

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/avolkov/marketplace/internal/config"
	"github.com/avolkov/marketplace/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return db
}

func line(productID, sellerID uint, price float64, stock int, qty uint) Line {
	return Line{
		ProductID: productID,
		Quantity:  qty,
		Product: Snapshot{
			Name:          "product",
			Price:         price,
			SellerID:      sellerID,
			StockQuantity: stock,
		},
	}
}

func seedProduct(t *testing.T, db *gorm.DB, id, sellerID uint, price float64, stock int) {
	t.Helper()
	p := models.Product{ID: id, SellerID: sellerID, Name: "product", Price: price, StockQuantity: stock}
	require.NoError(t, db.Create(&p).Error)
}

func seedCartItem(t *testing.T, db *gorm.DB, userID, productID, qty uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.CartItem{UserID: userID, ProductID: productID, Quantity: qty}).Error)
}

func TestGroupBySeller(t *testing.T) {
	t.Parallel()

	lines := []Line{
		line(1, 10, 5, 100, 1),
		line(2, 20, 5, 100, 1),
		line(3, 10, 5, 100, 1),
		line(4, 30, 5, 100, 1),
		line(5, 20, 5, 100, 1),
	}

	groups := GroupBySeller(lines)
	require.Len(t, groups, 3)

	assert.Equal(t, uint(10), groups[0].SellerID)
	assert.Equal(t, uint(20), groups[1].SellerID)
	assert.Equal(t, uint(30), groups[2].SellerID)

	require.Len(t, groups[0].Lines, 2)
	assert.Equal(t, uint(1), groups[0].Lines[0].ProductID)
	assert.Equal(t, uint(3), groups[0].Lines[1].ProductID)

	require.Len(t, groups[1].Lines, 2)
	assert.Equal(t, uint(2), groups[1].Lines[0].ProductID)
	assert.Equal(t, uint(5), groups[1].Lines[1].ProductID)

	require.Len(t, groups[2].Lines, 1)
	assert.Equal(t, uint(4), groups[2].Lines[0].ProductID)
}

func TestGroupBySeller_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, GroupBySeller(nil))
}

func TestOrderNumber_Shape(t *testing.T) {
	t.Parallel()

	n1 := OrderNumber()
	n2 := OrderNumber()
	assert.Regexp(t, `^ORD-\d{14}-[0-9A-F]{8}$`, n1)
	assert.NotEqual(t, n1, n2)
}

func TestShippingInfoFormat(t *testing.T) {
	t.Parallel()

	s := ShippingInfo{
		FullName:   "Ann Tester",
		Phone:      "+100200300",
		Address:    "1 Main st",
		City:       "Springfield",
		State:      "",
		PostalCode: "12345",
	}
	assert.Equal(t, "Ann Tester, +100200300, 1 Main st, Springfield, 12345", s.Format())
}

func TestPlaceOrders_EmptyCart(t *testing.T) {
	t.Parallel()

	o := &Orchestrator{DB: newTestDB(t)}
	_, err := o.PlaceOrders(context.Background(), 1, Request{PaymentMethod: models.PaymentCashOnDelivery})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrders_BadPaymentMethod(t *testing.T) {
	t.Parallel()

	o := &Orchestrator{DB: newTestDB(t)}
	req := Request{
		Lines:         []Line{line(1, 10, 5, 100, 1)},
		PaymentMethod: "card",
	}
	_, err := o.PlaceOrders(context.Background(), 1, req)
	require.ErrorIs(t, err, ErrBadPaymentMethod)
}

func TestPlaceOrders_SingleSeller(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedProduct(t, db, 1, 10, 25, 9)
	seedCartItem(t, db, 1, 1, 4)

	o := &Orchestrator{DB: db}
	req := Request{
		Lines:         []Line{line(1, 10, 25, 9, 4)},
		Shipping:      ShippingInfo{FullName: "Ann Tester", Address: "1 Main st"},
		PaymentMethod: models.PaymentOnline,
	}

	orders, err := o.PlaceOrders(context.Background(), 1, req)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	assert.Equal(t, uint(10), orders[0].SellerID)
	assert.Equal(t, float64(100), orders[0].TotalAmount)
	assert.Equal(t, models.OrderStatusPending, orders[0].Status)
	assert.Equal(t, models.PaymentStatusPaid, orders[0].PaymentStatus)
	assert.Equal(t, orders[0].ShippingAddress, orders[0].BillingAddress)

	// stock = snapshot - quantity
	var p models.Product
	require.NoError(t, db.First(&p, 1).Error)
	assert.Equal(t, 5, p.StockQuantity)

	// cart is cleared
	var remaining int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("user_id = ?", 1).Count(&remaining).Error)
	assert.Zero(t, remaining)
}

// Scenario from the seller-split contract: two sellers, cash on delivery.
func TestPlaceOrders_MultiSeller(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedProduct(t, db, 1, 100, 199, 10)
	seedProduct(t, db, 2, 200, 299, 5)
	seedCartItem(t, db, 7, 1, 2)
	seedCartItem(t, db, 7, 2, 1)

	o := &Orchestrator{DB: db}
	req := Request{
		Lines: []Line{
			line(1, 100, 199, 10, 2),
			line(2, 200, 299, 5, 1),
		},
		Shipping:      ShippingInfo{FullName: "Ann Tester", Address: "1 Main st"},
		PaymentMethod: models.PaymentCashOnDelivery,
	}

	orders, err := o.PlaceOrders(context.Background(), 7, req)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, uint(100), orders[0].SellerID)
	assert.Equal(t, float64(398), orders[0].TotalAmount)
	assert.Equal(t, uint(200), orders[1].SellerID)
	assert.Equal(t, float64(299), orders[1].TotalAmount)

	for _, ord := range orders {
		assert.Equal(t, models.PaymentStatusPending, ord.PaymentStatus)
		assert.Equal(t, models.PaymentCashOnDelivery, ord.PaymentMethod)

		// total equals the sum of line totals, lines price from snapshots
		var items []models.OrderItem
		require.NoError(t, db.Where("order_id = ?", ord.ID).Find(&items).Error)
		var sum float64
		for _, it := range items {
			assert.Equal(t, it.PricePerUnit*float64(it.Quantity), it.TotalPrice)
			sum += it.TotalPrice
		}
		assert.Equal(t, ord.TotalAmount, sum)
	}

	var p1, p2 models.Product
	require.NoError(t, db.First(&p1, 1).Error)
	require.NoError(t, db.First(&p2, 2).Error)
	assert.Equal(t, 8, p1.StockQuantity)
	assert.Equal(t, 4, p2.StockQuantity)

	var remaining int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("user_id = ?", 7).Count(&remaining).Error)
	assert.Zero(t, remaining)
}

// A failure on the second seller group leaves the first group's order and
// items committed and the buyer's cart untouched. Nothing is rolled back.
func TestPlaceOrders_PartialFailure(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedProduct(t, db, 1, 100, 199, 10)
	seedProduct(t, db, 2, 200, 299, 5)
	seedCartItem(t, db, 7, 1, 2)
	seedCartItem(t, db, 7, 2, 1)

	// The second generated order number collides with the first, so the
	// second group's insert violates the unique index.
	calls := 0
	o := &Orchestrator{
		DB: db,
		NewOrderNumber: func() string {
			calls++
			return "ORD-COLLIDE"
		},
	}
	req := Request{
		Lines: []Line{
			line(1, 100, 199, 10, 2),
			line(2, 200, 299, 5, 1),
		},
		Shipping:      ShippingInfo{FullName: "Ann Tester", Address: "1 Main st"},
		PaymentMethod: models.PaymentCashOnDelivery,
	}

	_, err := o.PlaceOrders(context.Background(), 7, req)
	require.ErrorIs(t, err, ErrOrderFailed)
	require.Equal(t, 2, calls)

	// first seller's order and items persist
	var orders []models.Order
	require.NoError(t, db.Find(&orders).Error)
	require.Len(t, orders, 1)
	assert.Equal(t, uint(100), orders[0].SellerID)

	var itemCount int64
	require.NoError(t, db.Model(&models.OrderItem{}).Where("order_id = ?", orders[0].ID).Count(&itemCount).Error)
	assert.EqualValues(t, 1, itemCount)

	// first seller's stock was already decremented, second is untouched
	var p1, p2 models.Product
	require.NoError(t, db.First(&p1, 1).Error)
	require.NoError(t, db.First(&p2, 2).Error)
	assert.Equal(t, 8, p1.StockQuantity)
	assert.Equal(t, 5, p2.StockQuantity)

	// the cart keeps every line
	var remaining int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("user_id = ?", 7).Count(&remaining).Error)
	assert.EqualValues(t, 2, remaining)
}
