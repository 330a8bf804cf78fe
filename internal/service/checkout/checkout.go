package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avolkov/marketplace/internal/logging"
	"github.com/avolkov/marketplace/internal/models"
)

var (
	ErrEmptyCart        = errors.New("checkout: cart is empty")
	ErrBadPaymentMethod = errors.New("checkout: unknown payment method")
	ErrOrderFailed      = errors.New("checkout: failed to place order")
)

// Snapshot is the denormalized product state read at cart-load time. Checkout
// trusts it as-is: prices are not re-fetched and the stock decrement is based
// on this value, not on a fresh read.
type Snapshot struct {
	Name          string
	Price         float64
	SellerID      uint
	StockQuantity int
}

type Line struct {
	ProductID uint
	Quantity  uint
	Product   Snapshot
}

type ShippingInfo struct {
	FullName   string
	Phone      string
	Address    string
	City       string
	State      string
	PostalCode string
}

func (s ShippingInfo) Format() string {
	parts := []string{s.FullName, s.Phone, s.Address, s.City, s.State, s.PostalCode}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, ", ")
}

type Request struct {
	Lines         []Line
	Shipping      ShippingInfo
	PaymentMethod string
}

// SellerGroup is the subset of cart lines belonging to one seller; checkout
// creates exactly one order per group.
type SellerGroup struct {
	SellerID uint
	Lines    []Line
}

// GroupBySeller partitions lines by seller, keyed on the product snapshot.
// Group order follows the first occurrence of each seller and the relative
// order of lines inside a group is preserved. No merging, no dedup: the cart
// store's buyer+product uniqueness keeps duplicates out upstream.
func GroupBySeller(lines []Line) []SellerGroup {
	groups := make([]SellerGroup, 0, len(lines))
	index := make(map[uint]int, len(lines))
	for _, l := range lines {
		i, ok := index[l.Product.SellerID]
		if !ok {
			i = len(groups)
			index[l.Product.SellerID] = i
			groups = append(groups, SellerGroup{SellerID: l.Product.SellerID})
		}
		groups[i].Lines = append(groups[i].Lines, l)
	}
	return groups
}

// OrderNumber builds a human-readable order number from the current UTC time
// and a short random suffix. No uniqueness pre-check is done; the unique
// index on order_number is the only safety net.
func OrderNumber() string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102150405"), suffix)
}

type Orchestrator struct {
	DB *gorm.DB

	// NewOrderNumber overrides order number generation when set.
	NewOrderNumber func() string
}

// PlaceOrders converts the buyer's cart selection into one persisted order
// per seller, snapshots line prices, decrements stock from the snapshots and
// finally clears the buyer's cart.
//
// Every store call commits independently: there is no transaction spanning
// the sequence, no retry and no compensation. A failure aborts the remaining
// groups, leaves orders already created in place, and skips the cart clear.
func (o *Orchestrator) PlaceOrders(ctx context.Context, buyerID uint, req Request) ([]models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "checkout", "buyer_id", buyerID)

	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if req.PaymentMethod != models.PaymentCashOnDelivery && req.PaymentMethod != models.PaymentOnline {
		return nil, ErrBadPaymentMethod
	}

	paymentStatus := models.PaymentStatusPaid
	if req.PaymentMethod == models.PaymentCashOnDelivery {
		paymentStatus = models.PaymentStatusPending
	}
	address := req.Shipping.Format()

	newNumber := o.NewOrderNumber
	if newNumber == nil {
		newNumber = OrderNumber
	}

	groups := GroupBySeller(req.Lines)
	orders := make([]models.Order, 0, len(groups))

	for _, g := range groups {
		var total float64
		for _, line := range g.Lines {
			total += line.Product.Price * float64(line.Quantity)
		}

		order := models.Order{
			OrderNumber:     newNumber(),
			BuyerID:         buyerID,
			SellerID:        g.SellerID,
			TotalAmount:     total,
			Status:          models.OrderStatusPending,
			PaymentStatus:   paymentStatus,
			PaymentMethod:   req.PaymentMethod,
			ShippingAddress: address,
			BillingAddress:  address,
		}
		if err := o.DB.WithContext(ctx).Create(&order).Error; err != nil {
			l.Error("order_create_failed", "seller_id", g.SellerID, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrOrderFailed, err)
		}

		for _, line := range g.Lines {
			item := models.OrderItem{
				OrderID:      order.ID,
				ProductID:    line.ProductID,
				Quantity:     line.Quantity,
				PricePerUnit: line.Product.Price,
				TotalPrice:   line.Product.Price * float64(line.Quantity),
			}
			if err := o.DB.WithContext(ctx).Create(&item).Error; err != nil {
				l.Error("order_item_create_failed", "order_id", order.ID, "product_id", line.ProductID, "error", err)
				return nil, fmt.Errorf("%w: %v", ErrOrderFailed, err)
			}
			order.Items = append(order.Items, item)
		}

		// Stock is written as snapshot minus quantity, not as a fresh
		// read-modify-write; concurrent checkouts can lose updates here.
		for _, line := range g.Lines {
			newStock := line.Product.StockQuantity - int(line.Quantity)
			if err := o.DB.WithContext(ctx).
				Model(&models.Product{}).
				Where("id = ?", line.ProductID).
				Update("stock_quantity", newStock).Error; err != nil {
				l.Error("stock_update_failed", "product_id", line.ProductID, "error", err)
				return nil, fmt.Errorf("%w: %v", ErrOrderFailed, err)
			}
		}

		l.Info("seller_order_placed", "order_id", order.ID, "order_number", order.OrderNumber,
			"seller_id", g.SellerID, "total", total, "items", len(g.Lines))
		orders = append(orders, order)
	}

	if err := o.DB.WithContext(ctx).Where("user_id = ?", buyerID).Delete(&models.CartItem{}).Error; err != nil {
		l.Error("cart_clear_failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrOrderFailed, err)
	}

	return orders, nil
}
